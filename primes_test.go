package segdict

import "testing"

func TestNextPrimeIsPrimeAndAscending(t *testing.T) {
	prev := 0
	for want := 1; want <= 5_000_000; want += 977 {
		p := NextPrime(want)
		if p < want && p != MaxCapacity {
			t.Fatalf("NextPrime(%d) = %d, want >= %d", want, p, want)
		}
		if !isPrime(p) {
			t.Fatalf("NextPrime(%d) = %d, not prime", want, p)
		}
		if p < prev {
			t.Fatalf("NextPrime(%d) = %d, smaller than previous result %d", want, p, prev)
		}
		prev = p
	}
}

func TestNextPrimeClampsToMaxCapacity(t *testing.T) {
	if got := NextPrime(1 << 30); got != MaxCapacity {
		t.Fatalf("NextPrime(2^30) = %d, want MaxCapacity %d", got, MaxCapacity)
	}
	if !isPrime(MaxCapacity) {
		t.Fatalf("MaxCapacity %d is not prime", MaxCapacity)
	}
	if MaxCapacity > 32767 {
		t.Fatalf("MaxCapacity %d exceeds the 16-bit signed ceiling", MaxCapacity)
	}
}

func TestExpandPrimeGrowsByAtLeastRequestedFactor(t *testing.T) {
	for _, old := range []int{7, 100, 10_000} {
		next := ExpandPrime(old, 1.5)
		if next <= old {
			t.Fatalf("ExpandPrime(%d, 1.5) = %d, did not grow", old, next)
		}
		if float64(next) < float64(old)*1.5 && next != MaxCapacity {
			t.Fatalf("ExpandPrime(%d, 1.5) = %d, grew less than 1.5x", old, next)
		}
	}
}

func TestLargestPrimeAtMost(t *testing.T) {
	cases := []struct{ limit, want int }{
		{3, 3},
		{4, 3},
		{10, 7},
		{7199369, 7199369},
		{7199370, 7199369},
		{10_000_000, 9999991},
	}
	for _, c := range cases {
		got := largestPrimeAtMost(c.limit)
		if got != c.want {
			t.Fatalf("largestPrimeAtMost(%d) = %d, want %d", c.limit, got, c.want)
		}
		if !isPrime(got) {
			t.Fatalf("largestPrimeAtMost(%d) = %d, not prime", c.limit, got)
		}
		if got > c.limit {
			t.Fatalf("largestPrimeAtMost(%d) = %d, exceeds limit", c.limit, got)
		}
	}
}
