package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkingHourRule is one row of a staff member's weekly roster: a contiguous
// working window on one weekday, expressed as minutes from local midnight in
// the salon's timezone. A staff member may have several rules on the same
// weekday for split shifts. An optional break is carved out of the window.
type WorkingHourRule struct {
	bun.BaseModel `bun:"table:staff_schedules"`

	ID               uuid.UUID    `bun:"id,pk,type:uuid"`
	SalonID          uuid.UUID    `bun:"salon_id,notnull,type:uuid"`
	StaffID          uuid.UUID    `bun:"staff_id,notnull,type:uuid"`
	DayOfWeek        time.Weekday `bun:"day_of_week,notnull"`
	StartMinute      int          `bun:"start_minute,notnull"`
	EndMinute        int          `bun:"end_minute,notnull"`
	BreakStartMinute *int         `bun:"break_start_minute"`
	BreakEndMinute   *int         `bun:"break_end_minute"`
	EffectiveFrom    *time.Time   `bun:"effective_from"`
	EffectiveUntil   *time.Time   `bun:"effective_until"`
	IsActive         bool         `bun:"is_active,notnull"`
	CreatedAt        time.Time    `bun:"created_at,notnull"`
	UpdatedAt        time.Time    `bun:"updated_at,notnull"`
}

func (r *WorkingHourRule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stampModel(&r.ID, &r.CreatedAt, &r.UpdatedAt, query)
}

// AppliesOn reports whether the rule is in force on the given local date.
func (r *WorkingHourRule) AppliesOn(date time.Time) bool {
	if !r.IsActive || r.DayOfWeek != date.Weekday() {
		return false
	}
	if r.EffectiveFrom != nil && date.Before(dateOnly(*r.EffectiveFrom, date.Location())) {
		return false
	}
	if r.EffectiveUntil != nil && date.After(dateOnly(*r.EffectiveUntil, date.Location())) {
		return false
	}
	return true
}

type TimeOffStatus string

const (
	TimeOffStatusPending   TimeOffStatus = "pending"
	TimeOffStatusApproved  TimeOffStatus = "approved"
	TimeOffStatusRejected  TimeOffStatus = "rejected"
	TimeOffStatusCancelled TimeOffStatus = "cancelled"
)

// TimeOffPeriod is a staff time-off request. Only approved periods remove
// availability; pending, rejected, and cancelled requests leave the calendar
// untouched.
type TimeOffPeriod struct {
	bun.BaseModel `bun:"table:time_off_periods"`

	ID        uuid.UUID     `bun:"id,pk,type:uuid"`
	SalonID   uuid.UUID     `bun:"salon_id,notnull,type:uuid"`
	StaffID   uuid.UUID     `bun:"staff_id,notnull,type:uuid"`
	StartTime time.Time     `bun:"start_time,notnull"`
	EndTime   time.Time     `bun:"end_time,notnull"`
	Status    TimeOffStatus `bun:"status,notnull"`
	Reason    string        `bun:"reason"`
	CreatedAt time.Time     `bun:"created_at,notnull"`
	UpdatedAt time.Time     `bun:"updated_at,notnull"`
}

func (p *TimeOffPeriod) Interval() Interval {
	return Interval{Start: p.StartTime, End: p.EndTime}
}

func (p *TimeOffPeriod) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stampModel(&p.ID, &p.CreatedAt, &p.UpdatedAt, query)
}

// BlockedTime removes a window from the bookable calendar. StaffID nil means
// the block applies to every staff member of the salon.
type BlockedTime struct {
	bun.BaseModel `bun:"table:blocked_times"`

	ID        uuid.UUID  `bun:"id,pk,type:uuid"`
	SalonID   uuid.UUID  `bun:"salon_id,notnull,type:uuid"`
	StaffID   *uuid.UUID `bun:"staff_id,type:uuid"`
	StartTime time.Time  `bun:"start_time,notnull"`
	EndTime   time.Time  `bun:"end_time,notnull"`
	Reason    string     `bun:"reason"`
	IsActive  bool       `bun:"is_active,notnull"`
	CreatedAt time.Time  `bun:"created_at,notnull"`
	UpdatedAt time.Time  `bun:"updated_at,notnull"`
}

func (b *BlockedTime) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// BlocksStaff reports whether the block applies to the given staff member.
func (b *BlockedTime) BlocksStaff(staffID uuid.UUID) bool {
	if !b.IsActive {
		return false
	}
	return b.StaffID == nil || *b.StaffID == staffID
}

func (b *BlockedTime) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stampModel(&b.ID, &b.CreatedAt, &b.UpdatedAt, query)
}

func stampModel(id *uuid.UUID, createdAt, updatedAt *time.Time, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if *id == uuid.Nil {
			v7, err := uuid.NewV7()
			if err != nil {
				return err
			}
			*id = v7
		}
		if createdAt.IsZero() {
			*createdAt = now
		}
		if updatedAt.IsZero() {
			*updatedAt = now
		}
	case *bun.UpdateQuery:
		*updatedAt = now
	}
	return nil
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
