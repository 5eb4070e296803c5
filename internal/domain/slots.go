package domain

import "time"

const DefaultSlotGranularity = 15 * time.Minute

// SlotRequest describes the booking shape the generator must fit into the
// calendar: the core service duration, padding buffers, the walk step, and an
// optional floor ("now" plus the salon's minimum lead time).
type SlotRequest struct {
	Duration     time.Duration
	BufferBefore time.Duration
	BufferAfter  time.Duration
	Granularity  time.Duration
	NotBefore    time.Time
	Limit        int
}

// CandidateSlots walks each working interval at the request's granularity and
// returns the start times at which the padded interval
// [t-BufferBefore, t+Duration+BufferAfter) fits entirely inside the working
// interval and overlaps none of the busy intervals. Results are ascending;
// the function is pure, so a caller can re-run it to resume after any slot.
func CandidateSlots(working []Interval, busy []Interval, req SlotRequest) []time.Time {
	if req.Duration <= 0 {
		return nil
	}
	step := req.Granularity
	if step <= 0 {
		step = DefaultSlotGranularity
	}

	var out []time.Time
	for _, iv := range working {
		for t := iv.Start; t.Before(iv.End); t = t.Add(step) {
			padded := Interval{
				Start: t.Add(-req.BufferBefore),
				End:   t.Add(req.Duration + req.BufferAfter),
			}
			if padded.Start.Before(iv.Start) {
				continue
			}
			if padded.End.After(iv.End) {
				break
			}
			if !req.NotBefore.IsZero() && t.Before(req.NotBefore) {
				continue
			}
			if overlapsAny(padded, busy) {
				continue
			}
			out = append(out, t)
			if req.Limit > 0 && len(out) >= req.Limit {
				return out
			}
		}
	}
	return out
}

func overlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}
