package segdict

// Ascending table of primes used to size both the segment array and each
// segment's bucket array. Consecutive entries are wide apart at the small
// end and settle to roughly 20% apart from about 89 upward, which keeps
// resizes infrequent without wildly overshooting requested capacity. This is the same shape of table
// used by general-purpose hash table implementations that size off
// primes rather than powers of two; it is reproduced here because no
// library in the retrieval pack exposes one (the pack's concurrent maps,
// llxisdsh/pb included, size on powers of two instead).
var primeTable = [...]int{
	3, 7, 11, 17, 23, 29, 37, 47, 59, 71, 89, 107, 131, 163, 197, 239, 293,
	353, 431, 521, 631, 761, 919, 1103, 1327, 1597, 1931, 2333, 2801, 3371,
	4049, 4861, 5839, 7013, 8419, 10103, 12143, 14591, 17519, 21023, 25229,
	30293, 36353, 43627, 52361, 62851, 75431, 90523, 108631, 130363, 156437,
	187751, 225307, 270371, 324449, 389357, 467237, 560689, 672827, 807403,
	968897, 1162687, 1395263, 1674319, 2009191, 2411033, 2893249, 3471899,
	4166287, 4999559, 5999471, 7199369,
}

// MaxCapacity is the largest prime not exceeding 32767, the hard ceiling
// imposed by the 16-bit index economy described in spec §9 (next-links and
// bucket heads are logically 16-bit indices; see entry.go).
const MaxCapacity = 32749

// isPrime reports whether n is prime, used only past the end of
// primeTable.
func isPrime(n int) bool {
	if n <= 1 {
		return false
	}
	if n <= 3 {
		return true
	}
	if n%2 == 0 || n%3 == 0 {
		return false
	}
	for i := 5; i*i <= n; i += 6 {
		if n%i == 0 || n%(i+2) == 0 {
			return false
		}
	}
	return true
}

// nextPrimeAbove computes the smallest prime strictly greater than n,
// walking odd numbers. Used past the end of primeTable.
func nextPrimeAbove(n int) int {
	if n < 2 {
		return 2
	}
	candidate := n + 1
	if candidate%2 == 0 {
		candidate++
	}
	for !isPrime(candidate) {
		candidate += 2
	}
	return candidate
}

// NextPrime returns the smallest prime in the sizing table that is >= min,
// clamped to MaxCapacity. Once min exceeds the table, it falls back to
// trial division, still clamped to MaxCapacity.
func NextPrime(min int) int {
	if min <= 2 {
		return 2
	}
	for _, p := range primeTable {
		if p >= min {
			return clampCapacity(p)
		}
	}
	return clampCapacity(nextPrimeAbove(min - 1))
}

func clampCapacity(n int) int {
	if n > MaxCapacity {
		return MaxCapacity
	}
	return n
}

// largestPrimeAtMost returns the largest prime <= limit, falling back to
// trial division past the end of primeTable. Used to find the largest
// table size that still keeps a segment's entry array under the
// large-object threshold (see alloc.go).
func largestPrimeAtMost(limit int) int {
	if limit < 2 {
		return 2
	}
	if limit <= primeTable[len(primeTable)-1] {
		best := primeTable[0]
		for _, p := range primeTable {
			if p > limit {
				break
			}
			best = p
		}
		return best
	}
	candidate := limit
	if candidate%2 == 0 {
		candidate--
	}
	for candidate > 2 && !isPrime(candidate) {
		candidate -= 2
	}
	return candidate
}

// ExpandPrime computes the next table size for a segment whose current
// table just filled up: roughly oldCount*growth, rounded up to the next
// prime, with the same doubling floor classic prime-sized hash tables use
// to avoid repeated expensive resizes at small sizes.
func ExpandPrime(oldCount int, growth float64) int {
	newSize := int(float64(oldCount) * growth)
	if doubled := oldCount * 2; newSize < doubled {
		newSize = doubled
	}
	return NextPrime(newSize)
}
