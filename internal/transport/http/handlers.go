package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"shearbook/backend/internal/booking"
	"shearbook/backend/internal/domain"
	"shearbook/backend/internal/store"
)

// ActorIDHeader carries the pre-authenticated caller id, set by the session
// layer in front of this service. The core never derives identity from
// ambient state.
const ActorIDHeader = "X-Actor-Id"

type bookingService interface {
	Create(ctx context.Context, in booking.CreateInput) (domain.Appointment, error)
	Reschedule(ctx context.Context, in booking.RescheduleInput) (domain.Appointment, error)
	Cancel(ctx context.Context, appointmentID uuid.UUID, reason string, actorID uuid.UUID) (domain.Appointment, error)
	MarkNoShow(ctx context.Context, appointmentID uuid.UUID, actorID uuid.UUID) (domain.Appointment, error)
	UpdateStatus(ctx context.Context, appointmentID uuid.UUID, next domain.AppointmentStatus, actorID uuid.UUID) (domain.Appointment, error)
	AvailableSlots(ctx context.Context, q booking.SlotQuery) ([]time.Time, error)
	Availability(ctx context.Context, salonID, staffID uuid.UUID, from, to time.Time) ([]booking.DayAvailability, error)
	Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

type BookingServer struct {
	svc bookingService
	log *slog.Logger
}

func NewBookingServer(svc bookingService, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		log: log.With(slog.String("component", "http.booking")),
	}
}

func (s *BookingServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/appointments", s.handleCreate)
	mux.HandleFunc("GET /v1/appointments/{id}", s.handleGet)
	mux.HandleFunc("POST /v1/appointments/{id}/reschedule", s.handleReschedule)
	mux.HandleFunc("POST /v1/appointments/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /v1/appointments/{id}/no-show", s.handleNoShow)
	mux.HandleFunc("POST /v1/appointments/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /v1/staff/{staffID}/appointments", s.handleList)
	mux.HandleFunc("GET /v1/staff/{staffID}/slots", s.handleSlots)
	mux.HandleFunc("GET /v1/staff/{staffID}/availability", s.handleAvailability)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type appointmentResponse struct {
	ID                 string   `json:"id"`
	SalonID            string   `json:"salon_id"`
	StaffID            string   `json:"staff_id"`
	CustomerID         string   `json:"customer_id"`
	ServiceIDs         []string `json:"service_ids"`
	StartTime          string   `json:"start_time"`
	EndTime            string   `json:"end_time"`
	Status             string   `json:"status"`
	Notes              string   `json:"notes,omitempty"`
	CancelledAt        string   `json:"cancelled_at,omitempty"`
	CancellationReason string   `json:"cancellation_reason,omitempty"`
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	serviceIDs := make([]string, 0, len(a.ServiceIDs))
	for _, id := range a.ServiceIDs {
		serviceIDs = append(serviceIDs, id.String())
	}
	resp := appointmentResponse{
		ID:                 a.ID.String(),
		SalonID:            a.SalonID.String(),
		StaffID:            a.StaffID.String(),
		CustomerID:         a.CustomerID.String(),
		ServiceIDs:         serviceIDs,
		StartTime:          a.StartTime.UTC().Format(time.RFC3339),
		EndTime:            a.EndTime.UTC().Format(time.RFC3339),
		Status:             string(a.Status),
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
	}
	if a.CancelledAt != nil {
		resp.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type createRequest struct {
	SalonID    string   `json:"salon_id"`
	StaffID    string   `json:"staff_id"`
	CustomerID string   `json:"customer_id"`
	ServiceIDs []string `json:"service_ids"`
	StartTime  string   `json:"start_time"`
	Notes      string   `json:"notes"`
}

func (s *BookingServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid json body")
		return
	}

	salonID, err := parseUUID(req.SalonID)
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid salon_id")
		return
	}
	staffID, err := parseUUID(req.StaffID)
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid staff_id")
		return
	}
	customerID, err := parseUUID(req.CustomerID)
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid customer_id")
		return
	}
	serviceIDs, err := parseUUIDs(req.ServiceIDs)
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid service_ids")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid start_time")
		return
	}

	appt, err := s.svc.Create(r.Context(), booking.CreateInput{
		SalonID:        salonID,
		StaffID:        staffID,
		CustomerID:     customerID,
		ServiceIDs:     serviceIDs,
		StartTime:      start,
		Notes:          strings.TrimSpace(req.Notes),
		ActorID:        actorID(r),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (s *BookingServer) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(r.PathValue("id"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	appt, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type rescheduleRequest struct {
	StartTime string `json:"start_time"`
}

func (s *BookingServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(r.PathValue("id"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid json body")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid start_time")
		return
	}

	appt, err := s.svc.Reschedule(r.Context(), booking.RescheduleInput{
		AppointmentID: id,
		NewStart:      start,
		ActorID:       actorID(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *BookingServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(r.PathValue("id"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid json body")
		return
	}

	appt, err := s.svc.Cancel(r.Context(), id, req.Reason, actorID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (s *BookingServer) handleNoShow(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(r.PathValue("id"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	appt, err := s.svc.MarkNoShow(r.Context(), id, actorID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *BookingServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(r.PathValue("id"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid json body")
		return
	}

	appt, err := s.svc.UpdateStatus(r.Context(), id, domain.AppointmentStatus(req.Status), actorID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (s *BookingServer) handleList(w http.ResponseWriter, r *http.Request) {
	staffID, err := parseUUID(r.PathValue("staffID"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid staff id")
		return
	}
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid to")
		return
	}

	appts, err := s.svc.List(r.Context(), staffID, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

type slotItem struct {
	StartTime string `json:"start_time"`
}

func (s *BookingServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	staffID, err := parseUUID(r.PathValue("staffID"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid staff id")
		return
	}
	q := r.URL.Query()

	salonID, err := parseUUID(q.Get("salon_id"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid salon_id")
		return
	}
	serviceIDs, err := parseUUIDs(strings.Split(q.Get("service_ids"), ","))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid service_ids")
		return
	}
	date, err := time.Parse(time.DateOnly, q.Get("date"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeErrorMsg(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	slots, err := s.svc.AvailableSlots(r.Context(), booking.SlotQuery{
		SalonID:    salonID,
		StaffID:    staffID,
		ServiceIDs: serviceIDs,
		Date:       date,
		Limit:      limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]slotItem, 0, len(slots))
	for _, t := range slots {
		out = append(out, slotItem{StartTime: t.UTC().Format(time.RFC3339)})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}

type intervalItem struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type dayAvailabilityItem struct {
	Date    string         `json:"date"`
	Working []intervalItem `json:"working"`
	Booked  []intervalItem `json:"booked"`
}

func (s *BookingServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	staffID, err := parseUUID(r.PathValue("staffID"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid staff id")
		return
	}
	q := r.URL.Query()

	salonID, err := parseUUID(q.Get("salon_id"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid salon_id")
		return
	}
	from, err := time.Parse(time.DateOnly, q.Get("from"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid from, want YYYY-MM-DD")
		return
	}
	to, err := time.Parse(time.DateOnly, q.Get("to"))
	if err != nil {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid to, want YYYY-MM-DD")
		return
	}

	days, err := s.svc.Availability(r.Context(), salonID, staffID, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]dayAvailabilityItem, 0, len(days))
	for _, d := range days {
		item := dayAvailabilityItem{
			Date:    d.Date.Format(time.DateOnly),
			Working: toIntervalItems(d.Working),
			Booked:  toIntervalItems(d.Booked),
		}
		out = append(out, item)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"days": out})
}

func toIntervalItems(ivs []domain.Interval) []intervalItem {
	out := make([]intervalItem, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, intervalItem{
			Start: iv.Start.UTC().Format(time.RFC3339),
			End:   iv.End.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func (s *BookingServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflictErr *booking.ConflictError
	if errors.As(err, &conflictErr) {
		s.log.Info(
			"booking rejected",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("reason", conflictErr.Reason.Error()),
			slog.String("staff_id", conflictErr.StaffID.String()),
			slog.Time("start_time", conflictErr.Start),
			slog.Time("end_time", conflictErr.End),
		)
		s.writeErrorMsg(w, http.StatusConflict, "slot no longer available, please choose another: "+conflictErr.Reason.Error())
		return
	}

	var vErr *booking.ValidationError
	if errors.As(err, &vErr) {
		s.writeErrorMsg(w, http.StatusBadRequest, vErr.Error())
		return
	}
	if errors.Is(err, domain.ErrInvalidRange) {
		s.writeErrorMsg(w, http.StatusBadRequest, "invalid time range")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		s.writeErrorMsg(w, http.StatusNotFound, "appointment not found")
		return
	}
	if errors.Is(err, store.ErrIdempotencyConflict) {
		s.writeErrorMsg(w, http.StatusConflict, "this request key was already used for a different appointment")
		return
	}

	s.log.Error("request failed", slog.Any("err", err), slog.String("request_id", RequestIDFromContext(r.Context())))
	s.writeErrorMsg(w, http.StatusInternalServerError, "internal error")
}

func (s *BookingServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("response encode failed", slog.Any("err", err))
	}
}

func (s *BookingServer) writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func actorID(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(ActorIDHeader)))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(s))
}

func parseUUIDs(ss []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(ss))
	for _, s := range ss {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
