package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Service is a bookable salon treatment. Buffers are padding around the core
// duration during which the staff member is also unavailable.
type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID                  uuid.UUID `bun:"id,pk,type:uuid"`
	SalonID             uuid.UUID `bun:"salon_id,notnull,type:uuid"`
	Name                string    `bun:"name,notnull"`
	DurationMinutes     int       `bun:"duration_minutes,notnull"`
	BufferBeforeMinutes int       `bun:"buffer_before_minutes,notnull"`
	BufferAfterMinutes  int       `bun:"buffer_after_minutes,notnull"`
	IsActive            bool      `bun:"is_active,notnull"`
	CreatedAt           time.Time `bun:"created_at,notnull"`
	UpdatedAt           time.Time `bun:"updated_at,notnull"`
}

func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

func (s *Service) BufferBefore() time.Duration {
	return time.Duration(s.BufferBeforeMinutes) * time.Minute
}

func (s *Service) BufferAfter() time.Duration {
	return time.Duration(s.BufferAfterMinutes) * time.Minute
}

func (s *Service) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stampModel(&s.ID, &s.CreatedAt, &s.UpdatedAt, query)
}

// SalonSettings carries the per-salon booking knobs: the timezone working
// hours are expressed in, slot granularity, minimum lead time, and how far
// ahead customers may book.
type SalonSettings struct {
	bun.BaseModel `bun:"table:salon_settings"`

	SalonID                uuid.UUID `bun:"salon_id,pk,type:uuid"`
	Timezone               string    `bun:"timezone,notnull"`
	SlotGranularityMinutes int       `bun:"slot_granularity_minutes,notnull"`
	MinLeadTimeMinutes     int       `bun:"min_lead_time_minutes,notnull"`
	MaxAdvanceDays         int       `bun:"max_advance_days,notnull"`
	CreatedAt              time.Time `bun:"created_at,notnull"`
	UpdatedAt              time.Time `bun:"updated_at,notnull"`
}

func (s *SalonSettings) Granularity() time.Duration {
	return time.Duration(s.SlotGranularityMinutes) * time.Minute
}

func (s *SalonSettings) MinLeadTime() time.Duration {
	return time.Duration(s.MinLeadTimeMinutes) * time.Minute
}

func (s *SalonSettings) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}
