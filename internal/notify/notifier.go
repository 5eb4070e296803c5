package notify

import (
	"context"

	"shearbook/backend/internal/domain"
)

type Event string

const (
	EventCreated     Event = "appointment.created"
	EventRescheduled Event = "appointment.rescheduled"
	EventCancelled   Event = "appointment.cancelled"
	EventNoShow      Event = "appointment.no_show"
	EventConfirmed   Event = "appointment.confirmed"
	EventCompleted   Event = "appointment.completed"
)

// Notifier is invoked after a successful booking mutation. Implementations
// are fire-and-forget: delivery failures are logged, never surfaced to the
// booking caller.
type Notifier interface {
	Notify(ctx context.Context, appt domain.Appointment, event Event)
}

type Nop struct{}

func (Nop) Notify(ctx context.Context, appt domain.Appointment, event Event) {}
