package domain

import (
	"errors"
	"sort"
	"time"
)

// ErrInvalidRange reports a malformed interval: zero, inverted, or a
// working-hour rule that would span midnight.
var ErrInvalidRange = errors.New("invalid time range")

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) (Interval, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return Interval{}, ErrInvalidRange
	}
	return Interval{Start: start, End: end}, nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals intersect. Intervals that
// touch at a boundary do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely within iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Subtract removes cut from iv, yielding zero, one, or two intervals.
func (iv Interval) Subtract(cut Interval) []Interval {
	if !iv.Overlaps(cut) {
		return []Interval{iv}
	}

	out := make([]Interval, 0, 2)
	if cut.Start.After(iv.Start) {
		out = append(out, Interval{Start: iv.Start, End: cut.Start})
	}
	if cut.End.Before(iv.End) {
		out = append(out, Interval{Start: cut.End, End: iv.End})
	}
	return out
}

// SubtractAll removes every cut from every base interval. The result is
// sorted by start time and contains no empty intervals.
func SubtractAll(base []Interval, cuts []Interval) []Interval {
	out := base
	for _, cut := range cuts {
		next := make([]Interval, 0, len(out))
		for _, iv := range out {
			next = append(next, iv.Subtract(cut)...)
		}
		out = next
	}
	sortIntervals(out)
	return out
}

// MergeIntervals sorts intervals and coalesces any that overlap or touch,
// producing a disjoint ordered set.
func MergeIntervals(ivs []Interval) []Interval {
	if len(ivs) <= 1 {
		return ivs
	}
	sorted := make([]Interval, len(ivs))
	copy(sorted, ivs)
	sortIntervals(sorted)

	out := sorted[:1]
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func sortIntervals(ivs []Interval) {
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start.Before(ivs[j].Start) })
}
