package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shearbook/backend/internal/domain"
)

// AppointmentRepository is the persistence boundary for bookings.
//
// InStaffTransaction runs fn with every concurrent writer to the same staff
// calendar excluded, so a validate-then-insert sequence inside fn cannot race
// another booking for the same staff member. Reads outside a transaction are
// best-effort snapshots.
type AppointmentRepository interface {
	InStaffTransaction(ctx context.Context, staffID uuid.UUID, fn func(ctx context.Context, tx CalendarTx) error) error

	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListOccupying(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

// CalendarTx is the per-staff transactional view used while creating or
// mutating appointments.
type CalendarTx interface {
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListOccupying(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	UpdateAppointmentTimes(ctx context.Context, id uuid.UUID, start, end time.Time) (domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, change StatusChange) (domain.Appointment, error)
}

// StatusChange records a lifecycle transition. CancelledAt and Reason are
// only set when the new status is cancelled or no_show.
type StatusChange struct {
	Status      domain.AppointmentStatus
	Reason      string
	CancelledAt *time.Time
}
