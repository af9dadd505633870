package segdict

import (
	"math"
	"sync"
	"sync/atomic"
)

// segmentArray is one generation of a Dict's segment table: a fixed set of
// *Segment, routed by hash mod len(segments). A global resize builds a new
// segmentArray and swaps it in atomically; readers that already loaded the
// old one keep routing against it until they reload, which is harmless
// since every key that existed before the resize still exists, under the
// same key, in the new array (only the segment it lives in can change).
type segmentArray[K comparable, V any, H Hasher[K]] struct {
	segments []*Segment[K, V, H]
}

// Dict is a striped segment dictionary: a fixed-at-any-instant array of
// Segments, each an independent seqlock-protected shard, with a global
// resize policy that grows the segment count as load climbs and optionally
// shrinks it back down as it falls. Any number of goroutines may call the
// read operations concurrently with each other and with one writer. Write
// operations (TryAdd/Add/Set/Remove) serialize among themselves on writeMu,
// so unlike a bare Segment the caller need not coordinate writers.
type Dict[K comparable, V any, H Hasher[K]] struct {
	hasher H

	table atomic.Pointer[segmentArray[K, V, H]]

	// writeMu serializes Dict-level write operations. It is not part of
	// the segment's lock-free read path: readers never take it. It exists
	// because Dict, unlike Segment, is the top-level type most callers
	// reach for directly, and a Dict used from multiple goroutines without
	// external coordination should not corrupt itself; Segment keeps the
	// bare single-writer contract the spec describes, and Dict adds this
	// one mutex on top of it.
	writeMu sync.Mutex

	shrinkEnabled bool
	minSegments   int

	// desiredCapacity is the nominal capacity the current segment count
	// and per-segment size were last computed from; it is what grow/shrink
	// escalation scales by GrowMultiplier/ShrinkMultiplier, independently
	// of any particular segment's actual live count.
	desiredCapacity int

	// resizeCooldown suppresses further grow attempts after
	// MaximumResizeAttempts escalating resizes all failed, until this many
	// more successful inserts have occurred. Whether a successful shrink
	// should reset it is left unspecified by the source this spec was
	// drawn from; this implementation leaves it untouched by shrinks (see
	// DESIGN.md).
	resizeCooldown int

	totalGrowths atomic.Int64
	totalShrinks atomic.Int64
}

// New constructs a Dict with the given hash capability and options.
func New[K comparable, V any, H Hasher[K]](hasher H, opts ...Option) *Dict[K, V, H] {
	cfg := defaultDictConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Dict[K, V, H]{
		hasher:          hasher,
		shrinkEnabled:   cfg.shrinkEnabled,
		minSegments:     cfg.minSegments,
		desiredCapacity: cfg.capacity,
	}

	optimal := optimalSegmentCapacity[K, V]()
	segCount := max(d.minSegments, NextPrime(cfg.capacity/optimal))
	perSegment := max(MinimumSegmentCapacity, cfg.capacity/segCount)

	segments := make([]*Segment[K, V, H], segCount)
	for i := range segments {
		segments[i] = NewSegment[K, V, H](hasher, perSegment)
		segments[i].EnsureInitialized()
	}
	d.table.Store(&segmentArray[K, V, H]{segments: segments})
	return d
}

func (d *Dict[K, V, H]) routeFor(table *segmentArray[K, V, H], hash uint32) *Segment[K, V, H] {
	idx := int(hash % uint32(len(table.segments)))
	return table.segments[idx]
}

// TryAdd inserts key/value only if key is not already present, reporting
// whether it was added.
func (d *Dict[K, V, H]) TryAdd(key K, value V) (bool, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.insertLocked(key, value, false)
}

// Add inserts key/value, returning ErrDuplicateKey if key already exists.
func (d *Dict[K, V, H]) Add(key K, value V) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	added, err := d.insertLocked(key, value, false)
	if err != nil {
		return err
	}
	if !added {
		return duplicateKeyError(key)
	}
	return nil
}

// Set inserts key/value unconditionally, overwriting any existing value.
func (d *Dict[K, V, H]) Set(key K, value V) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.insertLocked(key, value, true)
	return err
}

// insertLocked performs the insert, escalating to a dict-wide resize and
// retrying after each successful one if the routed segment can't grow any
// further on its own (ErrCapacityExceeded). Bounded by
// MaximumResizeAttempts+1 routing attempts so a persistently-full dict
// fails fast instead of looping.
func (d *Dict[K, V, H]) insertLocked(key K, value V, overwrite bool) (bool, error) {
	hash := nonNegativeHash(d.hasher.Hash(key))

	var lastErr error
	for attempt := 0; attempt <= MaximumResizeAttempts; attempt++ {
		table := d.table.Load()
		seg := d.routeFor(table, hash)

		added, err := seg.Insert(key, value, hash, overwrite)
		if err == nil {
			if added {
				d.afterSuccessfulAddLocked(table, seg)
			}
			return added, nil
		}
		lastErr = err
		if !d.tryEscalatingGrowLocked(table) {
			return false, lastErr
		}
	}
	return false, lastErr
}

// Remove deletes key, reporting whether it was present.
func (d *Dict[K, V, H]) Remove(key K) bool {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	hash := nonNegativeHash(d.hasher.Hash(key))
	table := d.table.Load()
	seg := d.routeFor(table, hash)
	removed := seg.Remove(key, hash)
	if removed {
		d.maybeShrinkLocked(table)
	}
	return removed
}

// TryGetValue looks up key without blocking any writer and without being
// blocked by one.
func (d *Dict[K, V, H]) TryGetValue(key K) (V, bool) {
	hash := nonNegativeHash(d.hasher.Hash(key))
	table := d.table.Load()
	seg := d.routeFor(table, hash)
	return seg.TryGetValue(key, hash)
}

// ContainsKey reports whether key is present.
func (d *Dict[K, V, H]) ContainsKey(key K) bool {
	_, ok := d.TryGetValue(key)
	return ok
}

// Get looks up key, returning ErrKeyNotFound if absent.
func (d *Dict[K, V, H]) Get(key K) (V, error) {
	v, ok := d.TryGetValue(key)
	if !ok {
		return v, keyNotFoundError(key)
	}
	return v, nil
}

// Count returns the total number of live pairs across every segment. Like
// Segment.Count, it is advisory under concurrent writes.
func (d *Dict[K, V, H]) Count() int {
	table := d.table.Load()
	total := 0
	for _, seg := range table.segments {
		total += seg.Count()
	}
	return total
}

// Capacity returns SegmentsCount x MaxCapacityBeforeLOH: the dictionary's
// nominal working-set ceiling, per spec §4.2. This is independent of any
// segment's actual current bucket-array size, so it stays stable across
// in-place segment growth as long as the segment count itself doesn't
// change — which is what invariant 10 in spec §8 relies on.
func (d *Dict[K, V, H]) Capacity() int {
	return len(d.table.Load().segments) * maxCapacityBeforeLOH[K, V]()
}

// SegmentsCount returns the current number of segments.
func (d *Dict[K, V, H]) SegmentsCount() int {
	return len(d.table.Load().segments)
}

// HasLargeAllocations reports whether any segment's entry array has grown
// past largeObjectThresholdBytes.
func (d *Dict[K, V, H]) HasLargeAllocations() bool {
	table := d.table.Load()
	for _, seg := range table.segments {
		if seg.HasLargeAllocation() {
			return true
		}
	}
	return false
}

// TotalGrowths returns the number of global resizes that grew the segment
// count over the Dict's lifetime.
func (d *Dict[K, V, H]) TotalGrowths() int64 {
	return d.totalGrowths.Load()
}

// TotalShrinks returns the number of global resizes that shrank the
// segment count over the Dict's lifetime.
func (d *Dict[K, V, H]) TotalShrinks() int64 {
	return d.totalShrinks.Load()
}

// Range calls yield for every live pair across every segment. Returning
// false from yield stops the walk early. As with Segment.Enumerate, this
// is not a single consistent point-in-time snapshot of the whole Dict:
// each segment, and within it each bucket, is individually consistent.
func (d *Dict[K, V, H]) Range(yield func(K, V) bool) {
	table := d.table.Load()
	for _, seg := range table.segments {
		stopped := false
		seg.Enumerate(func(k K, v V) bool {
			if !yield(k, v) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
	}
}

// RangeKeys calls yield for every live key across every segment.
func (d *Dict[K, V, H]) RangeKeys(yield func(K) bool) {
	d.Range(func(k K, _ V) bool { return yield(k) })
}

// RangeValues calls yield for every live value across every segment.
func (d *Dict[K, V, H]) RangeValues(yield func(V) bool) {
	d.Range(func(_ K, v V) bool { return yield(v) })
}

// afterSuccessfulAddLocked implements "growth on add" from spec §4.2: once
// the routed segment's live count reaches MaxCapacityBeforeLOH and no
// cooldown is active, escalate through up to MaximumResizeAttempts global
// resizes.
func (d *Dict[K, V, H]) afterSuccessfulAddLocked(table *segmentArray[K, V, H], seg *Segment[K, V, H]) {
	if d.resizeCooldown > 0 {
		d.resizeCooldown--
		return
	}
	if seg.Count() < maxCapacityBeforeLOH[K, V]() {
		return
	}
	d.tryEscalatingGrowLocked(table)
}

// tryEscalatingGrowLocked attempts resizes at desiredCapacity *
// GrowMultiplier^k for k = 1..MaximumResizeAttempts, stopping at the first
// that succeeds. If every attempt fails it arms resizeCooldown so repeated
// inserts into a dict already pinned near MaxCapacity don't all pay the
// cost of a futile resize attempt.
func (d *Dict[K, V, H]) tryEscalatingGrowLocked(table *segmentArray[K, V, H]) bool {
	for k := 1; k <= MaximumResizeAttempts; k++ {
		newDesired := int(float64(d.desiredCapacity) * math.Pow(SegmentCountGrowMultiplier, float64(k)))
		if d.attemptResizeLocked(table, newDesired) {
			d.desiredCapacity = newDesired
			if len(d.table.Load().segments) != len(table.segments) {
				d.totalGrowths.Add(1)
			}
			return true
		}
	}
	d.resizeCooldown = MinimumAddsBetweenFailedResizes
	return false
}

// maybeShrinkLocked implements "shrink on remove" from spec §4.2: a single
// attempt, no cooldown, once the segment count is above the floor and the
// total live count has fallen under ShrinkLoadFactorThreshold of Capacity.
func (d *Dict[K, V, H]) maybeShrinkLocked(table *segmentArray[K, V, H]) {
	if !d.shrinkEnabled || len(table.segments) <= d.minSegments {
		return
	}
	capacity := len(table.segments) * maxCapacityBeforeLOH[K, V]()
	if d.Count() > int(float64(capacity)*ShrinkLoadFactorThreshold) {
		return
	}
	newDesired := int(float64(d.desiredCapacity) * ShrinkMultiplier)
	if d.attemptResizeLocked(table, newDesired) {
		d.desiredCapacity = newDesired
		if len(d.table.Load().segments) != len(table.segments) {
			d.totalShrinks.Add(1)
		}
	}
}

// attemptResizeLocked is the "resize algorithm (global)" from spec §4.2:
// compute S'/perSegment' from newDesired, no-op-succeed if S' doesn't
// change the segment count, otherwise build a fresh segment array and
// AddUnsafe every existing pair into it, aborting (leaving the old table
// untouched) if any new segment would exceed MaxCapacity.
func (d *Dict[K, V, H]) attemptResizeLocked(table *segmentArray[K, V, H], newDesired int) bool {
	if newDesired < 1 {
		newDesired = 1
	}
	optimal := optimalSegmentCapacity[K, V]()
	newS := max(d.minSegments, NextPrime(newDesired/optimal))
	if newS == len(table.segments) {
		return true
	}
	newPerSegment := max(MinimumSegmentCapacity, newDesired/newS)

	newSegments := make([]*Segment[K, V, H], newS)
	for i := range newSegments {
		newSegments[i] = NewSegment[K, V, H](d.hasher, newPerSegment)
		newSegments[i].EnsureInitialized()
	}

	for _, seg := range table.segments {
		aborted := false
		seg.Enumerate(func(k K, v V) bool {
			h := nonNegativeHash(d.hasher.Hash(k))
			target := newSegments[int(h%uint32(newS))]
			if err := target.AddUnsafe(k, v, h); err != nil {
				aborted = true
				return false
			}
			return true
		})
		if aborted {
			return false
		}
	}

	d.table.Store(&segmentArray[K, V, H]{segments: newSegments})
	return true
}
