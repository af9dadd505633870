package segdict

import "sync/atomic"

// Enumerate walks every live pair in the segment, bucket by bucket, and
// calls yield for each one. It may run concurrently with Insert/Remove on
// the same segment: each bucket is snapshotted independently under the
// seqlock protocol, so the overall traversal is not a single consistent
// point-in-time view of the segment, only each individual bucket is.
// Returning false from yield stops the walk early.
func (s *Segment[K, V, H]) Enumerate(yield func(K, V) bool) {
	st := s.state.Load()
	if st == nil {
		return
	}

	buf := s.getStagingBuffer()
	defer s.putStagingBuffer(buf)

	for b := 0; b < st.n; b++ {
		pairs := s.tryCopyBucket(st, b, buf)
		for _, p := range pairs {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// tryCopyBucket snapshots bucket b into buf, retrying on a torn read or
// mid-copy version change, and growing buf if the chain outgrows its
// capacity. It returns a slice backed by buf valid until the next call.
func (s *Segment[K, V, H]) tryCopyBucket(st *segmentState[K, V], b int, buf *stagingBuffer[K, V]) []kvPair[K, V] {
	g := b / 4
	var spins int
	for {
		buf.reset()
		s.guard.RLock()

		v0 := atomic.LoadUint32(&st.versions[g])
		if v0&versionWriteFlag != 0 {
			s.guard.RUnlock()
			delay(&spins)
			continue
		}

		idx := atomic.LoadInt32(&st.buckets[b])
		ok := true
		for idx != noNext {
			if buf.len() == buf.cap() {
				buf.grow()
			}
			e := &st.entries[idx]
			k := e.Key
			if atomic.LoadUint32(&st.versions[g]) != v0 {
				ok = false
				break
			}
			v := e.Value
			if atomic.LoadUint32(&st.versions[g]) != v0 {
				ok = false
				break
			}
			next := atomic.LoadInt32(&e.next)
			if atomic.LoadUint32(&st.versions[g]) != v0 {
				ok = false
				break
			}
			buf.append(k, v)
			idx = next
		}

		if ok && atomic.LoadUint32(&st.versions[g]) == v0 {
			s.guard.RUnlock()
			return buf.items
		}
		s.guard.RUnlock()
		delay(&spins)
	}
}
