package reconstruct

// Gap marks missing sequence numbers between two adjacent deltas: everything
// strictly between After and Before is absent from the feed.
type Gap struct {
	After  int64 // Last sequence seen before the gap
	Before int64 // First sequence seen after the gap
}

// DetectGaps scans consecutive sequence numbers in an ordered delta batch
// and returns every adjacent pair differing by more than one. It needs no
// checkpoint or ledger state and is safe to call on any batch in isolation.
func DetectGaps(deltas []Delta) []Gap {
	var gaps []Gap
	for i := 1; i < len(deltas); i++ {
		prev, next := deltas[i-1].Seq, deltas[i].Seq
		if next-prev > 1 {
			gaps = append(gaps, Gap{After: prev, Before: next})
		}
	}
	return gaps
}
