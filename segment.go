package segdict

import (
	"sync"
	"sync/atomic"
)

// segmentState is one generation of a segment's backing storage: a dense
// entry pool, a bucket-head array, and the bucket-version words that guard
// them. It is swapped out wholesale, via Segment.state, whenever the
// segment grows; a reader that loaded the old *segmentState before a grow
// keeps reading a perfectly consistent, merely stale, snapshot.
type segmentState[K comparable, V any] struct {
	entries  []Entry[K, V]
	buckets  []int32
	versions []uint32 // one word per 4 consecutive buckets, plus one slack word
	n        int       // prime; len(entries) == len(buckets) == n
}

func newSegmentState[K comparable, V any](n int) *segmentState[K, V] {
	st := &segmentState[K, V]{
		entries:  make([]Entry[K, V], n),
		buckets:  make([]int32, n),
		versions: make([]uint32, (n+3)/4+1),
		n:        n,
	}
	for i := range st.buckets {
		st.buckets[i] = noNext
	}
	return st
}

// versionWriteFlag is bit 31 of a bucket-version word: set while a writer
// is touching one of the word's 4 buckets, clear otherwise. The remaining
// 31 bits are a monotonic counter readers use to detect that nothing
// changed between the start and end of their read.
const versionWriteFlag uint32 = 1 << 31

// Segment is one shard of a Dict: a prime-sized open-addressed-by-chaining
// table with a 16-bit-index-economy entry pool (widened to int32 for
// sync/atomic, see entry.go) and a bucket-version-group seqlock protocol
// that lets any number of readers run concurrently with the single writer
// the caller is responsible for serializing.
//
// H is the injected hash capability, carried as a type parameter so each
// (K, V, H) instantiation monomorphizes its own copy of every method:
// there is no virtual dispatch on the hot path, matching the "zero-sized,
// statically dispatched" hash capability the design calls for.
//
// llxisdsh/pb pads its own hot structures to a cache line using
// unsafe.Sizeof against a concrete field layout (mapof_opt_cachelinesize.go
// and the padded fields in bucketOf/resizeState); it can do that because
// those structs store entries behind unsafe.Pointer indirection, so their
// layout never depends on K or V. Segment can't reuse that trick directly:
// unsafe.Sizeof of a type that depends on a type parameter (here, the
// injected hasher H) is not a Go constant, so an array-length expression
// built from it doesn't compile inside a generic type. Neither Segment nor
// segmentState is padded: the bucket-version words most sensitive to false
// sharing live in their own densely packed []uint32 in segmentState,
// separate from this struct's header, with no padding between words.
type Segment[K comparable, V any, H Hasher[K]] struct {
	state atomic.Pointer[segmentState[K, V]]

	// count, freeCount and freeList are writer-only bookkeeping: no reader
	// ever touches them, so they need no atomicity of their own. Only
	// their derived live count (count - freeCount) is reader-visible,
	// through liveCount below.
	count       int
	freeCount   int
	freeList    int32
	minCapacity int

	maxBeforeLOH int

	liveCount atomic.Int32

	pool *sync.Pool

	guard raceGuard

	hasher H
}

// NewSegment creates a segment with the given hash capability. The
// backing table is not allocated until the first write; capacityHint only
// chooses the prime the lazy first allocation rounds up to, clamped to
// maxBeforeLOH so a segment never starts out already past the
// large-allocation threshold.
func NewSegment[K comparable, V any, H Hasher[K]](hasher H, capacityHint int) *Segment[K, V, H] {
	if capacityHint < MinimumSegmentCapacity {
		capacityHint = MinimumSegmentCapacity
	}
	return &Segment[K, V, H]{
		freeList:     noNext,
		minCapacity:  capacityHint,
		maxBeforeLOH: maxCapacityBeforeLOH[K, V](),
		pool:         newStagingPool[K, V](),
		hasher:       hasher,
	}
}

// EnsureInitialized forces the lazy first allocation to happen now, rather
// than on the first write. Dict uses this so that Capacity/SegmentsCount
// are stable immediately after construction instead of only after the
// first insert into each segment.
func (s *Segment[K, V, H]) EnsureInitialized() {
	s.guard.Lock()
	defer s.guard.Unlock()
	s.ensureStateLocked()
}

func (s *Segment[K, V, H]) ensureStateLocked() *segmentState[K, V] {
	st := s.state.Load()
	if st != nil {
		return st
	}
	n := NextPrime(s.minCapacity)
	if n > s.maxBeforeLOH {
		n = s.maxBeforeLOH
	}
	st = newSegmentState[K, V](n)
	s.state.Store(st)
	return st
}

// Capacity returns the size of the segment's current bucket array, or 0 if
// nothing has been allocated yet.
func (s *Segment[K, V, H]) Capacity() int {
	st := s.state.Load()
	if st == nil {
		return 0
	}
	return st.n
}

// Count returns the number of live pairs in the segment. It is read with
// a single atomic load and may be momentarily stale with respect to a
// writer running concurrently; callers should treat it as advisory, never
// as a basis for correctness decisions.
func (s *Segment[K, V, H]) Count() int {
	return int(s.liveCount.Load())
}

// HasLargeAllocation reports whether this segment's entry array has grown
// past largeObjectThresholdBytes.
func (s *Segment[K, V, H]) HasLargeAllocation() bool {
	st := s.state.Load()
	if st == nil {
		return false
	}
	return entryArrayBytes[K, V](st.n) > largeObjectThresholdBytes
}

func (s *Segment[K, V, H]) markForWriting(st *segmentState[K, V], g int) uint32 {
	old := atomic.LoadUint32(&st.versions[g])
	atomic.StoreUint32(&st.versions[g], old|versionWriteFlag)
	return old
}

func (s *Segment[K, V, H]) unmark(st *segmentState[K, V], g int, old uint32) {
	atomic.StoreUint32(&st.versions[g], (old+1)&0x7fffffff)
}

// TryGetValue looks up key, whose hash has already been computed by the
// caller (normally Dict, after masking off the sign bit). It may run
// concurrently with any number of other readers and with at most one
// writer, without blocking either.
func (s *Segment[K, V, H]) TryGetValue(key K, hash uint32) (value V, ok bool) {
	st := s.state.Load()
	if st == nil {
		return value, false
	}
	bIdx := int(hash % uint32(st.n))
	g := bIdx / 4

	var spins int
	for {
		s.guard.RLock()

		v0 := atomic.LoadUint32(&st.versions[g])
		if v0&versionWriteFlag != 0 {
			s.guard.RUnlock()
			delay(&spins)
			continue
		}

		idx := atomic.LoadInt32(&st.buckets[bIdx])
		matched := false
		var matchedValue V
		retry := false
		for idx != noNext {
			e := &st.entries[idx]
			k := e.Key
			if atomic.LoadUint32(&st.versions[g]) != v0 {
				retry = true
				break
			}
			if k == key {
				matchedValue = e.Value
				if atomic.LoadUint32(&st.versions[g]) != v0 {
					retry = true
					break
				}
				matched = true
				break
			}
			next := atomic.LoadInt32(&e.next)
			if atomic.LoadUint32(&st.versions[g]) != v0 {
				retry = true
				break
			}
			idx = next
		}

		if !retry && atomic.LoadUint32(&st.versions[g]) == v0 {
			s.guard.RUnlock()
			return matchedValue, matched
		}

		s.guard.RUnlock()
		delay(&spins)
	}
}

// Insert adds key/value, or, if key is already present and canOverwrite is
// true, overwrites its value in place. It reports whether a new pair was
// added (false both when the key already existed and was skipped, and
// when it was overwritten). The caller must not call Insert, Remove or
// AddUnsafe concurrently with each other or with itself; TryGetValue and
// Enumerate may run concurrently with it freely.
func (s *Segment[K, V, H]) Insert(key K, value V, hash uint32, canOverwrite bool) (bool, error) {
	s.guard.Lock()
	defer s.guard.Unlock()

	st := s.ensureStateLocked()
	bIdx := int(hash % uint32(st.n))

	for idx := st.buckets[bIdx]; idx != noNext; {
		e := &st.entries[idx]
		if e.Key == key {
			if !canOverwrite {
				return false, nil
			}
			g := bIdx / 4
			oldV := s.markForWriting(st, g)
			e.Value = value
			s.unmark(st, g, oldV)
			return false, nil
		}
		idx = e.next
	}

	if s.freeCount == 0 && s.count == st.n {
		newSt, err := s.growTo(st, s.nextGrowSize(s.count))
		if err != nil {
			return false, err
		}
		st = newSt
		bIdx = int(hash % uint32(st.n))
	}

	var slot int32
	if s.freeCount > 0 {
		slot = s.freeList
		s.freeList = st.entries[slot].next
		s.freeCount--
	} else {
		slot = int32(s.count)
		s.count++
	}

	e := &st.entries[slot]
	e.Key = key
	e.Value = value
	e.next = st.buckets[bIdx]

	g := bIdx / 4
	oldV := s.markForWriting(st, g)
	atomic.StoreInt32(&st.buckets[bIdx], slot)
	s.unmark(st, g, oldV)

	s.liveCount.Add(1)
	return true, nil
}

// Remove deletes key if present and reports whether it was found. Fields
// of the reclaimed slot are cleared so a reader mid-retry can never
// observe a stale pair that has since been handed to a different key.
func (s *Segment[K, V, H]) Remove(key K, hash uint32) bool {
	s.guard.Lock()
	defer s.guard.Unlock()

	st := s.state.Load()
	if st == nil {
		return false
	}
	bIdx := int(hash % uint32(st.n))
	g := bIdx / 4

	prev := noNext
	idx := st.buckets[bIdx]
	for idx != noNext {
		e := &st.entries[idx]
		if e.Key != key {
			prev = idx
			idx = e.next
			continue
		}

		oldNext := e.next
		oldV := s.markForWriting(st, g)
		if prev == noNext {
			atomic.StoreInt32(&st.buckets[bIdx], oldNext)
		} else {
			atomic.StoreInt32(&st.entries[prev].next, oldNext)
		}

		var zeroK K
		var zeroV V
		e.Key = zeroK
		e.Value = zeroV
		atomic.StoreInt32(&e.next, s.freeList)
		s.freeList = idx
		s.freeCount++
		s.unmark(st, g, oldV)

		s.liveCount.Add(-1)
		return true
	}
	return false
}

// AddUnsafe inserts key/value without the bucket-version protocol or
// free-list bookkeeping that Insert uses. It is only valid while no reader
// can observe this segment (building up a freshly allocated, not-yet-
// published segment during a Dict-wide resize) and when the caller
// guarantees the key is not already present.
func (s *Segment[K, V, H]) AddUnsafe(key K, value V, hash uint32) error {
	s.guard.Lock()
	defer s.guard.Unlock()

	st := s.ensureStateLocked()
	if s.count == st.n {
		newSt, err := s.growTo(st, s.nextGrowSize(s.count))
		if err != nil {
			return err
		}
		st = newSt
	}
	s.count = addUnsafeInto(st, key, value, hash, s.count)
	s.liveCount.Store(int32(s.count - s.freeCount))
	return nil
}

// nextGrowSize computes a segment's next table size given its current
// live count, clamped so growth stops at maxBeforeLOH before crossing into
// the large-allocation tier, and capped at MaxCapacity either way.
func (s *Segment[K, V, H]) nextGrowSize(count int) int {
	candidate := ExpandPrime(count, GrowMultiplier)
	if candidate > s.maxBeforeLOH && count < s.maxBeforeLOH {
		candidate = s.maxBeforeLOH
	}
	if candidate > MaxCapacity {
		candidate = MaxCapacity
	}
	return candidate
}

// growTo allocates a new, larger segmentState, rehashes every live pair
// from old into it via addUnsafeInto, and publishes it. Must be called
// with guard already held.
func (s *Segment[K, V, H]) growTo(old *segmentState[K, V], want int) (*segmentState[K, V], error) {
	if old != nil && old.n >= MaxCapacity {
		return nil, ErrCapacityExceeded
	}

	newN := want
	if old != nil && newN <= old.n {
		newN = old.n + 1
	}
	newN = NextPrime(newN)
	if newN > MaxCapacity {
		newN = MaxCapacity
	}
	if old != nil && newN <= old.n {
		return nil, ErrCapacityExceeded
	}

	newSt := newSegmentState[K, V](newN)
	copied := 0
	if old != nil {
		for b := 0; b < old.n; b++ {
			for idx := old.buckets[b]; idx != noNext; {
				e := &old.entries[idx]
				h := nonNegativeHash(s.hasher.Hash(e.Key))
				copied = addUnsafeInto(newSt, e.Key, e.Value, h, copied)
				idx = e.next
			}
		}
	}

	s.state.Store(newSt)
	s.count = copied
	s.freeCount = 0
	s.freeList = noNext
	s.liveCount.Store(int32(copied))
	return newSt, nil
}

// addUnsafeInto appends key/value at slot count in st and threads it onto
// its bucket's chain, with no reader-coordination or free-list handling.
// Returns count+1, the new number of used slots.
func addUnsafeInto[K comparable, V any](st *segmentState[K, V], key K, value V, hash uint32, count int) int {
	bIdx := int(hash % uint32(st.n))
	slot := int32(count)
	e := &st.entries[slot]
	e.Key = key
	e.Value = value
	e.next = st.buckets[bIdx]
	st.buckets[bIdx] = slot
	return count + 1
}
