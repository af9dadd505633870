package segdict

import "unsafe"

// largeObjectThresholdBytes stands in for .NET's generational-GC large
// object heap threshold (~85000 bytes), which Go's allocator has no
// direct equivalent of. Go splits allocations into small and large size
// classes at 32768 bytes (runtime's maxSmallSize); crossing it means the
// entry pool's backing array is allocated straight from the page heap
// instead of a size-classed span. That is the closest static, well-known
// constant Go exposes for "this allocation is categorically bigger", so
// it's what HasLargeAllocations and the segment growth clamp key off of.
const largeObjectThresholdBytes = 32768

// maxCapacityBeforeLOH is the largest prime table size whose entry array
// still fits under largeObjectThresholdBytes, for a given Entry[K, V].
// A segment's own grow step clamps to this value before it is allowed to
// cross into the large-allocation tier on a later grow.
func maxCapacityBeforeLOH[K comparable, V any]() int {
	var e Entry[K, V]
	entrySize := unsafe.Sizeof(e)
	if entrySize == 0 {
		return MaxCapacity
	}
	limit := int(largeObjectThresholdBytes / entrySize)
	if limit < MinimumSegmentCapacity {
		limit = MinimumSegmentCapacity
	}
	return clampCapacity(largestPrimeAtMost(limit))
}

// entryArrayBytes reports the size in bytes of a segment's entry array at
// capacity n, for the HasLargeAllocations diagnostic.
func entryArrayBytes[K comparable, V any](n int) uintptr {
	var e Entry[K, V]
	return uintptr(n) * unsafe.Sizeof(e)
}
