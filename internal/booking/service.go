package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shearbook/backend/internal/domain"
	"shearbook/backend/internal/notify"
	"shearbook/backend/internal/store"
)

// availabilityRangeLimit caps the date range of a single availability query.
const availabilityRangeLimit = 62

// Defaults are the booking knobs used for salons without a settings row.
type Defaults struct {
	Timezone               string
	SlotGranularityMinutes int
	MinLeadTimeMinutes     int
	MaxAdvanceDays         int
}

// Service is the booking orchestrator: the only path by which appointments
// are created, rescheduled, or transitioned. Every mutation runs its conflict
// checks and its write inside one per-staff store transaction, so two
// concurrent requests for overlapping intervals cannot both succeed.
type Service struct {
	appts     store.AppointmentRepository
	schedule  store.ScheduleStore
	catalog   store.ServiceCatalog
	notifier  notify.Notifier
	validator *Validator
	defaults  Defaults
}

func NewService(appts store.AppointmentRepository, schedule store.ScheduleStore, catalog store.ServiceCatalog, notifier notify.Notifier, defaults Defaults) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if defaults.Timezone == "" {
		defaults.Timezone = "UTC"
	}
	if defaults.SlotGranularityMinutes <= 0 {
		defaults.SlotGranularityMinutes = int(domain.DefaultSlotGranularity / time.Minute)
	}
	if defaults.MaxAdvanceDays <= 0 {
		defaults.MaxAdvanceDays = 90
	}
	return &Service{
		appts:     appts,
		schedule:  schedule,
		catalog:   catalog,
		notifier:  notifier,
		validator: NewValidator(schedule),
		defaults:  defaults,
	}
}

type CreateInput struct {
	SalonID        uuid.UUID
	StaffID        uuid.UUID
	CustomerID     uuid.UUID
	ServiceIDs     []uuid.UUID
	StartTime      time.Time
	Notes          string
	ActorID        uuid.UUID
	IdempotencyKey string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	if in.SalonID == uuid.Nil {
		return domain.Appointment{}, validationError("salon_id is required")
	}
	if in.StaffID == uuid.Nil {
		return domain.Appointment{}, validationError("staff_id is required")
	}
	if in.CustomerID == uuid.Nil {
		return domain.Appointment{}, validationError("customer_id is required")
	}
	if len(in.ServiceIDs) == 0 {
		return domain.Appointment{}, validationError("at least one service is required")
	}
	if in.StartTime.IsZero() {
		return domain.Appointment{}, validationError("start_time is required")
	}

	_, loc, err := s.salonSettings(ctx, in.SalonID)
	if err != nil {
		return domain.Appointment{}, err
	}

	shape, err := s.bookingShape(ctx, in.SalonID, in.ServiceIDs)
	if err != nil {
		return domain.Appointment{}, err
	}

	start := in.StartTime.UTC()
	end := start.Add(shape.duration + shape.bufferAfter)

	appt := domain.Appointment{
		SalonID:    in.SalonID,
		StaffID:    in.StaffID,
		CustomerID: in.CustomerID,
		ServiceIDs: in.ServiceIDs,
		StartTime:  start,
		EndTime:    end,
		Status:     domain.AppointmentStatusPending,
		Notes:      in.Notes,
		CreatedBy:  in.ActorID,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Appointment{}, validationError("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("shearbook:create_appointment:"+in.StaffID.String()+":"+key))
	}

	var out domain.Appointment
	replayed := false
	err = s.appts.InStaffTransaction(ctx, in.StaffID, func(ctx context.Context, tx store.CalendarTx) error {
		if appt.ID != uuid.Nil {
			// An idempotent retry lands on the deterministic id before the
			// conflict checks can reject it against its own first attempt.
			existing, err := tx.GetAppointment(ctx, appt.ID)
			switch {
			case err == nil:
				if existing.StaffID != appt.StaffID || existing.CustomerID != appt.CustomerID ||
					!existing.StartTime.Equal(appt.StartTime) || !existing.EndTime.Equal(appt.EndTime) {
					return store.ErrIdempotencyConflict
				}
				out = existing
				replayed = true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		err := s.validator.Validate(ctx, tx, Proposal{
			SalonID:      in.SalonID,
			StaffID:      in.StaffID,
			Start:        start,
			End:          end,
			BufferBefore: shape.bufferBefore,
			Location:     loc,
		})
		if err != nil {
			return err
		}
		created, err := tx.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, s.mapStoreConflict(err, in.StaffID, start, end)
	}

	if !replayed {
		s.notifier.Notify(ctx, out, notify.EventCreated)
	}
	return out, nil
}

type RescheduleInput struct {
	AppointmentID uuid.UUID
	NewStart      time.Time
	ActorID       uuid.UUID
}

func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (domain.Appointment, error) {
	if in.AppointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if in.NewStart.IsZero() {
		return domain.Appointment{}, validationError("new_start is required")
	}

	appt, err := s.appts.Get(ctx, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !appt.Status.IsOccupying() {
		return domain.Appointment{}, validationError(fmt.Sprintf("cannot reschedule a %s appointment", appt.Status))
	}

	_, loc, err := s.salonSettings(ctx, appt.SalonID)
	if err != nil {
		return domain.Appointment{}, err
	}
	shape, err := s.bookingShape(ctx, appt.SalonID, appt.ServiceIDs)
	if err != nil {
		return domain.Appointment{}, err
	}

	start := in.NewStart.UTC()
	end := start.Add(shape.duration + shape.bufferAfter)

	var out domain.Appointment
	err = s.appts.InStaffTransaction(ctx, appt.StaffID, func(ctx context.Context, tx store.CalendarTx) error {
		current, err := tx.GetAppointment(ctx, in.AppointmentID)
		if err != nil {
			return err
		}
		if !current.Status.IsOccupying() {
			return validationError(fmt.Sprintf("cannot reschedule a %s appointment", current.Status))
		}

		err = s.validator.Validate(ctx, tx, Proposal{
			SalonID:      current.SalonID,
			StaffID:      current.StaffID,
			Start:        start,
			End:          end,
			BufferBefore: shape.bufferBefore,
			Location:     loc,
			ExcludeID:    current.ID,
		})
		if err != nil {
			return err
		}

		updated, err := tx.UpdateAppointmentTimes(ctx, in.AppointmentID, start, end)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.Appointment{}, s.mapStoreConflict(err, appt.StaffID, start, end)
	}

	s.notifier.Notify(ctx, out, notify.EventRescheduled)
	return out, nil
}

// Cancel transitions the appointment to cancelled and frees its interval
// immediately. The row is kept for history; nothing is deleted.
func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID, reason string, actorID uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, appointmentID, store.StatusChange{
		Status:      domain.AppointmentStatusCancelled,
		Reason:      strings.TrimSpace(reason),
		CancelledAt: timePtr(time.Now().UTC()),
	}, notify.EventCancelled)
}

func (s *Service) MarkNoShow(ctx context.Context, appointmentID uuid.UUID, actorID uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, appointmentID, store.StatusChange{
		Status:      domain.AppointmentStatusNoShow,
		CancelledAt: timePtr(time.Now().UTC()),
	}, notify.EventNoShow)
}

// UpdateStatus performs the staff-side lifecycle steps: confirm, start,
// complete. Cancellation and no-show go through Cancel and MarkNoShow.
func (s *Service) UpdateStatus(ctx context.Context, appointmentID uuid.UUID, next domain.AppointmentStatus, actorID uuid.UUID) (domain.Appointment, error) {
	switch next {
	case domain.AppointmentStatusConfirmed, domain.AppointmentStatusInProgress, domain.AppointmentStatusCompleted:
	default:
		return domain.Appointment{}, validationError(fmt.Sprintf("unsupported status transition target %q", next))
	}

	event := notify.Event("")
	switch next {
	case domain.AppointmentStatusConfirmed:
		event = notify.EventConfirmed
	case domain.AppointmentStatusCompleted:
		event = notify.EventCompleted
	}

	return s.transition(ctx, appointmentID, store.StatusChange{Status: next}, event)
}

func (s *Service) transition(ctx context.Context, appointmentID uuid.UUID, change store.StatusChange, event notify.Event) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	appt, err := s.appts.Get(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = s.appts.InStaffTransaction(ctx, appt.StaffID, func(ctx context.Context, tx store.CalendarTx) error {
		current, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(change.Status) {
			return validationError(fmt.Sprintf("cannot move a %s appointment to %s", current.Status, change.Status))
		}
		updated, err := tx.UpdateAppointmentStatus(ctx, appointmentID, change)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	if event != "" {
		s.notifier.Notify(ctx, out, event)
	}
	return out, nil
}

type SlotQuery struct {
	SalonID    uuid.UUID
	StaffID    uuid.UUID
	ServiceIDs []uuid.UUID
	Date       time.Time
	Now        time.Time
	Limit      int
}

// AvailableSlots lists the bookable start times for one staff member on one
// date. Every returned slot would pass the validator if booked immediately;
// a concurrent booking can still win the slot between generation and commit.
func (s *Service) AvailableSlots(ctx context.Context, q SlotQuery) ([]time.Time, error) {
	if q.SalonID == uuid.Nil {
		return nil, validationError("salon_id is required")
	}
	if q.StaffID == uuid.Nil {
		return nil, validationError("staff_id is required")
	}
	if len(q.ServiceIDs) == 0 {
		return nil, validationError("at least one service is required")
	}
	if q.Date.IsZero() {
		return nil, validationError("date is required")
	}

	settings, loc, err := s.salonSettings(ctx, q.SalonID)
	if err != nil {
		return nil, err
	}
	shape, err := s.bookingShape(ctx, q.SalonID, q.ServiceIDs)
	if err != nil {
		return nil, err
	}

	day := domain.CivilDayStart(q.Date, loc)
	dayEnd := day.AddDate(0, 0, 1)

	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	if settings.MaxAdvanceDays > 0 {
		horizon := domain.DayStart(now, loc).AddDate(0, 0, settings.MaxAdvanceDays)
		if day.After(horizon) {
			return nil, nil
		}
	}

	working, err := s.workingIntervals(ctx, q.SalonID, q.StaffID, day, dayEnd)
	if err != nil {
		return nil, err
	}
	if len(working) == 0 {
		return nil, nil
	}

	occupying, err := s.appts.ListOccupying(ctx, q.StaffID, day, dayEnd)
	if err != nil {
		return nil, err
	}
	busy := make([]domain.Interval, 0, len(occupying))
	for i := range occupying {
		busy = append(busy, occupying[i].Interval())
	}

	return domain.CandidateSlots(working, busy, domain.SlotRequest{
		Duration:     shape.duration,
		BufferBefore: shape.bufferBefore,
		BufferAfter:  shape.bufferAfter,
		Granularity:  settings.Granularity(),
		NotBefore:    now.Add(settings.MinLeadTime()),
		Limit:        q.Limit,
	}), nil
}

// DayAvailability summarizes one date of a staff calendar: the schedulable
// intervals and the occupying bookings inside them.
type DayAvailability struct {
	Date    time.Time
	Working []domain.Interval
	Booked  []domain.Interval
}

func (s *Service) Availability(ctx context.Context, salonID, staffID uuid.UUID, from, to time.Time) ([]DayAvailability, error) {
	if salonID == uuid.Nil {
		return nil, validationError("salon_id is required")
	}
	if staffID == uuid.Nil {
		return nil, validationError("staff_id is required")
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, validationError("invalid date range")
	}

	_, loc, err := s.salonSettings(ctx, salonID)
	if err != nil {
		return nil, err
	}

	first := domain.CivilDayStart(from, loc)
	last := domain.CivilDayStart(to, loc)
	if last.Sub(first) > availabilityRangeLimit*24*time.Hour {
		return nil, validationError("date range too long")
	}

	var out []DayAvailability
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		dayEnd := day.AddDate(0, 0, 1)

		working, err := s.workingIntervals(ctx, salonID, staffID, day, dayEnd)
		if err != nil {
			return nil, err
		}

		occupying, err := s.appts.ListOccupying(ctx, staffID, day, dayEnd)
		if err != nil {
			return nil, err
		}
		booked := make([]domain.Interval, 0, len(occupying))
		for i := range occupying {
			booked = append(booked, occupying[i].Interval())
		}

		out = append(out, DayAvailability{Date: day, Working: working, Booked: booked})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.appts.Get(ctx, appointmentID)
}

func (s *Service) List(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if staffID == uuid.Nil {
		return nil, validationError("staff_id is required")
	}
	start := windowStart.UTC()
	end := windowEnd.UTC()
	if end.Equal(start) || end.Before(start) {
		return nil, validationError("window_end must be after window_start")
	}
	return s.appts.List(ctx, staffID, start, end)
}

func (s *Service) workingIntervals(ctx context.Context, salonID, staffID uuid.UUID, day, dayEnd time.Time) ([]domain.Interval, error) {
	rules, err := s.schedule.WorkingHours(ctx, staffID)
	if err != nil {
		return nil, err
	}
	timeOff, err := s.schedule.ApprovedTimeOff(ctx, staffID, day, dayEnd)
	if err != nil {
		return nil, err
	}
	blocked, err := s.schedule.BlockedTimes(ctx, salonID, staffID, day, dayEnd)
	if err != nil {
		return nil, err
	}
	return domain.WorkingIntervals(staffID, day, rules, timeOff, blocked)
}

// bookingShape resolves a multi-service booking: total duration is the sum of
// the service durations, the leading buffer comes from the first service and
// the trailing buffer from the last.
type bookingShape struct {
	duration     time.Duration
	bufferBefore time.Duration
	bufferAfter  time.Duration
}

func (s *Service) bookingShape(ctx context.Context, salonID uuid.UUID, serviceIDs []uuid.UUID) (bookingShape, error) {
	svcs, err := s.catalog.Services(ctx, serviceIDs)
	if err != nil {
		return bookingShape{}, err
	}

	byID := make(map[uuid.UUID]*domain.Service, len(svcs))
	for i := range svcs {
		byID[svcs[i].ID] = &svcs[i]
	}

	var shape bookingShape
	for i, id := range serviceIDs {
		svc, ok := byID[id]
		if !ok {
			return bookingShape{}, validationError(fmt.Sprintf("unknown service %s", id))
		}
		if svc.SalonID != salonID {
			return bookingShape{}, validationError(fmt.Sprintf("service %s does not belong to this salon", id))
		}
		if !svc.IsActive {
			return bookingShape{}, validationError(fmt.Sprintf("service %s is not bookable", id))
		}
		if svc.DurationMinutes <= 0 {
			return bookingShape{}, validationError(fmt.Sprintf("service %s has no duration", id))
		}

		shape.duration += svc.Duration()
		if i == 0 {
			shape.bufferBefore = svc.BufferBefore()
		}
		if i == len(serviceIDs)-1 {
			shape.bufferAfter = svc.BufferAfter()
		}
	}
	return shape, nil
}

func (s *Service) salonSettings(ctx context.Context, salonID uuid.UUID) (domain.SalonSettings, *time.Location, error) {
	settings, err := s.catalog.SalonSettings(ctx, salonID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return domain.SalonSettings{}, nil, err
		}
		settings = domain.SalonSettings{
			SalonID:                salonID,
			Timezone:               s.defaults.Timezone,
			SlotGranularityMinutes: s.defaults.SlotGranularityMinutes,
			MinLeadTimeMinutes:     s.defaults.MinLeadTimeMinutes,
			MaxAdvanceDays:         s.defaults.MaxAdvanceDays,
		}
	}
	if settings.SlotGranularityMinutes <= 0 {
		settings.SlotGranularityMinutes = s.defaults.SlotGranularityMinutes
	}

	loc, err := settings.Location()
	if err != nil {
		return domain.SalonSettings{}, nil, validationError("salon has an invalid timezone")
	}
	return settings, loc, nil
}

// mapStoreConflict converts a store-level exclusion-constraint loss into the
// same rejection a validator-detected overlap produces: the slot is gone,
// pick another.
func (s *Service) mapStoreConflict(err error, staffID uuid.UUID, start, end time.Time) error {
	if errors.Is(err, store.ErrConflict) {
		return &ConflictError{Reason: ErrDoubleBooking, StaffID: staffID, Start: start, End: end}
	}
	return err
}

func timePtr(t time.Time) *time.Time {
	return &t
}
