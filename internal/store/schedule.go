package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shearbook/backend/internal/domain"
)

// ScheduleStore reads the roster side of the calendar: weekly working-hour
// rules, approved time off, and blocked times.
type ScheduleStore interface {
	WorkingHours(ctx context.Context, staffID uuid.UUID) ([]domain.WorkingHourRule, error)

	// ApprovedTimeOff returns approved periods overlapping the window.
	ApprovedTimeOff(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.TimeOffPeriod, error)

	// BlockedTimes returns active blocks overlapping the window that apply to
	// the staff member, including salon-wide blocks.
	BlockedTimes(ctx context.Context, salonID, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.BlockedTime, error)
}

// ServiceCatalog resolves services and per-salon booking settings.
type ServiceCatalog interface {
	Services(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error)
	SalonSettings(ctx context.Context, salonID uuid.UUID) (domain.SalonSettings, error)
}
