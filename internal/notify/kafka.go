package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"shearbook/backend/internal/domain"
)

const defaultWriteTimeout = 5 * time.Second

// KafkaNotifier publishes appointment lifecycle events to a Kafka topic,
// keyed by salon id so one salon's events stay ordered on one partition.
type KafkaNotifier struct {
	writer  *kafka.Writer
	log     *slog.Logger
	timeout time.Duration
}

type KafkaConfig struct {
	Brokers      string
	Topic        string
	WriteTimeout time.Duration
}

// SplitBrokers parses a comma-separated broker list, dropping empty entries.
func SplitBrokers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewKafkaNotifier returns nil if no brokers are configured; callers fall
// back to Nop.
func NewKafkaNotifier(cfg KafkaConfig, log *slog.Logger) *KafkaNotifier {
	brokers := SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 || strings.TrimSpace(cfg.Topic) == "" {
		return nil
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &KafkaNotifier{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Topic:    cfg.Topic,
			Balancer: &kafka.Hash{},
		}),
		log:     log.With(slog.String("component", "notify.kafka")),
		timeout: cfg.WriteTimeout,
	}
}

type eventPayload struct {
	Event         string   `json:"event"`
	AppointmentID string   `json:"appointment_id"`
	SalonID       string   `json:"salon_id"`
	StaffID       string   `json:"staff_id"`
	CustomerID    string   `json:"customer_id"`
	ServiceIDs    []string `json:"service_ids"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	Status        string   `json:"status"`
	OccurredAt    string   `json:"occurred_at"`
}

func buildEventMessage(appt domain.Appointment, event Event, now time.Time) (kafka.Message, error) {
	serviceIDs := make([]string, 0, len(appt.ServiceIDs))
	for _, id := range appt.ServiceIDs {
		serviceIDs = append(serviceIDs, id.String())
	}

	value, err := json.Marshal(eventPayload{
		Event:         string(event),
		AppointmentID: appt.ID.String(),
		SalonID:       appt.SalonID.String(),
		StaffID:       appt.StaffID.String(),
		CustomerID:    appt.CustomerID.String(),
		ServiceIDs:    serviceIDs,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        string(appt.Status),
		OccurredAt:    now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(appt.SalonID.String()),
		Value: value,
	}, nil
}

func (n *KafkaNotifier) Notify(ctx context.Context, appt domain.Appointment, event Event) {
	msg, err := buildEventMessage(appt, event, time.Now())
	if err != nil {
		n.log.Error("event encode failed", slog.Any("err", err), slog.String("event", string(event)))
		return
	}

	// Detach from the request context so a finished request does not cancel
	// the publish; delivery has its own timeout.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.writer.WriteMessages(writeCtx, msg); err != nil {
		n.log.Error(
			"event publish failed",
			slog.Any("err", err),
			slog.String("event", string(event)),
			slog.String("appointment_id", appt.ID.String()),
		)
		return
	}

	n.log.Debug("event published", slog.String("event", string(event)), slog.String("appointment_id", appt.ID.String()))
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
