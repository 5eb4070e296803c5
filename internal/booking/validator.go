package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shearbook/backend/internal/domain"
	"shearbook/backend/internal/store"
)

// Proposal is a candidate (staff, interval) placement. Start and End bound
// the appointment itself; BufferBefore widens the checked interval on the
// left. ExcludeID names the appointment being rescheduled so it does not
// conflict with itself.
type Proposal struct {
	SalonID      uuid.UUID
	StaffID      uuid.UUID
	Start        time.Time
	End          time.Time
	BufferBefore time.Duration
	Location     *time.Location
	ExcludeID    uuid.UUID
}

func (p Proposal) padded() domain.Interval {
	return domain.Interval{Start: p.Start.Add(-p.BufferBefore), End: p.End}
}

// Validator is the authoritative accept/reject decision for a proposal. It
// re-checks everything at commit time rather than trusting slot generation,
// and reports the first failing check only:
//
//  1. the padded interval lies within a working-hour interval,
//  2. it misses all approved time off,
//  3. it misses all blocked times,
//  4. it misses every other occupying appointment for the staff member.
type Validator struct {
	schedule store.ScheduleStore
}

func NewValidator(schedule store.ScheduleStore) *Validator {
	return &Validator{schedule: schedule}
}

func (v *Validator) Validate(ctx context.Context, tx store.CalendarTx, p Proposal) error {
	if p.Start.IsZero() || p.End.IsZero() || !p.End.After(p.Start) || p.BufferBefore < 0 {
		return domain.ErrInvalidRange
	}
	if p.Location == nil {
		p.Location = time.UTC
	}

	padded := p.padded()
	date := domain.DayStart(padded.Start, p.Location)

	rules, err := v.schedule.WorkingHours(ctx, p.StaffID)
	if err != nil {
		return err
	}
	ruleIvs, err := domain.RuleIntervals(date, rules)
	if err != nil {
		return err
	}
	if !containedInAny(padded, ruleIvs) {
		return v.reject(ErrOutsideWorkingHours, p)
	}

	timeOff, err := v.schedule.ApprovedTimeOff(ctx, p.StaffID, padded.Start, padded.End)
	if err != nil {
		return err
	}
	for i := range timeOff {
		if timeOff[i].Status != domain.TimeOffStatusApproved {
			continue
		}
		if padded.Overlaps(timeOff[i].Interval()) {
			return v.reject(ErrTimeOffConflict, p)
		}
	}

	blocked, err := v.schedule.BlockedTimes(ctx, p.SalonID, p.StaffID, padded.Start, padded.End)
	if err != nil {
		return err
	}
	for i := range blocked {
		if !blocked[i].BlocksStaff(p.StaffID) {
			continue
		}
		if padded.Overlaps(blocked[i].Interval()) {
			return v.reject(ErrBlockedTime, p)
		}
	}

	occupying, err := tx.ListOccupying(ctx, p.StaffID, padded.Start, padded.End)
	if err != nil {
		return err
	}
	for i := range occupying {
		if occupying[i].ID == p.ExcludeID {
			continue
		}
		if padded.Overlaps(occupying[i].Interval()) {
			return v.reject(ErrDoubleBooking, p)
		}
	}

	return nil
}

func (v *Validator) reject(reason error, p Proposal) error {
	return &ConflictError{Reason: reason, StaffID: p.StaffID, Start: p.Start, End: p.End}
}

func containedInAny(iv domain.Interval, ivs []domain.Interval) bool {
	for _, w := range ivs {
		if w.Contains(iv) {
			return true
		}
	}
	return false
}
