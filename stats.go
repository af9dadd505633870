package segdict

import (
	"fmt"
	"strings"
)

// Stats is a point-in-time snapshot of a Dict's structural state, for
// diagnostics and tests. Grounded on llxisdsh-pb's MapStats/String()
// (mapof.go): a plain value type built by walking the live segment array,
// not a metrics pipeline.
type Stats struct {
	SegmentsCount       int
	Count               int
	Capacity            int
	HasLargeAllocations bool
	TotalGrowths        int64
	TotalShrinks        int64
	SegmentLoads        []int // live count per segment, in segment order
}

// Stats snapshots the Dict's current structural state.
func (d *Dict[K, V, H]) Stats() Stats {
	table := d.table.Load()
	loads := make([]int, len(table.segments))
	count := 0
	hasLarge := false
	for i, seg := range table.segments {
		loads[i] = seg.Count()
		count += loads[i]
		if seg.HasLargeAllocation() {
			hasLarge = true
		}
	}
	return Stats{
		SegmentsCount:       len(table.segments),
		Count:               count,
		Capacity:            len(table.segments) * maxCapacityBeforeLOH[K, V](),
		HasLargeAllocations: hasLarge,
		TotalGrowths:        d.totalGrowths.Load(),
		TotalShrinks:        d.totalShrinks.Load(),
		SegmentLoads:        loads,
	}
}

func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "segdict.Stats{segments=%d count=%d capacity=%d largeAllocations=%t growths=%d shrinks=%d loads=%v}",
		s.SegmentsCount, s.Count, s.Capacity, s.HasLargeAllocations, s.TotalGrowths, s.TotalShrinks, s.SegmentLoads)
	return b.String()
}
