package domain

import (
	"time"

	"github.com/google/uuid"
)

// RuleIntervals expands a staff member's working-hour rules into concrete
// intervals on the given local date. Breaks are carved out; time off and
// blocked times are not considered here. date must be a midnight value in the
// salon's timezone. Rules whose end does not come after their start would
// span midnight and are rejected with ErrInvalidRange.
func RuleIntervals(date time.Time, rules []WorkingHourRule) ([]Interval, error) {
	out := make([]Interval, 0, len(rules))
	for i := range rules {
		r := &rules[i]
		if !r.AppliesOn(date) {
			continue
		}
		if r.StartMinute < 0 || r.EndMinute > 24*60 || r.EndMinute <= r.StartMinute {
			return nil, ErrInvalidRange
		}

		iv := Interval{
			Start: date.Add(time.Duration(r.StartMinute) * time.Minute),
			End:   date.Add(time.Duration(r.EndMinute) * time.Minute),
		}

		if r.BreakStartMinute != nil && r.BreakEndMinute != nil {
			bs, be := *r.BreakStartMinute, *r.BreakEndMinute
			if be <= bs || bs < r.StartMinute || be > r.EndMinute {
				return nil, ErrInvalidRange
			}
			brk := Interval{
				Start: date.Add(time.Duration(bs) * time.Minute),
				End:   date.Add(time.Duration(be) * time.Minute),
			}
			out = append(out, iv.Subtract(brk)...)
			continue
		}

		out = append(out, iv)
	}

	return MergeIntervals(out), nil
}

// WorkingIntervals produces the ordered, disjoint intervals during which the
// staff member is schedulable on the given local date: the day's rule
// intervals minus approved time off and minus blocked times that apply to
// this staff member. An empty result means a day off.
func WorkingIntervals(staffID uuid.UUID, date time.Time, rules []WorkingHourRule, timeOff []TimeOffPeriod, blocked []BlockedTime) ([]Interval, error) {
	working, err := RuleIntervals(date, rules)
	if err != nil {
		return nil, err
	}
	if len(working) == 0 {
		return nil, nil
	}

	cuts := make([]Interval, 0, len(timeOff)+len(blocked))
	for i := range timeOff {
		p := &timeOff[i]
		if p.Status != TimeOffStatusApproved || p.StaffID != staffID {
			continue
		}
		cuts = append(cuts, p.Interval())
	}
	for i := range blocked {
		b := &blocked[i]
		if !b.BlocksStaff(staffID) {
			continue
		}
		cuts = append(cuts, b.Interval())
	}

	return SubtractAll(working, cuts), nil
}

// DayStart returns midnight of the calendar day containing the instant t,
// observed in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// CivilDayStart treats t's year/month/day fields as a calendar date and
// returns its midnight in loc. Use this when t encodes a requested date
// (parsed from "2026-01-10") rather than an instant.
func CivilDayStart(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
