// Package events publishes blood-unit lifecycle events. Events are published
// after the owning transaction commits; a failed publish is logged and never
// rolls back or fails the request.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	TypeUnitCreated = "blood_unit.created"
	TypeUnitUpdated = "blood_unit.updated"
	TypeUnitIssued  = "blood_unit.issued"
	TypeUnitExpired = "blood_unit.expired"
	TypeUnitDeleted = "blood_unit.deleted"
)

// Event is one lifecycle change of a blood unit.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	BloodUnitID string    `json:"blood_unit_id"`
	BloodGroup  string    `json:"blood_group"`
	Status      string    `json:"status"`
	PatientID   string    `json:"patient_id,omitempty"`
	ActorID     int       `json:"actor_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewEvent fills in the id and timestamp.
func NewEvent(typ, unitID, group, status string) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        typ,
		BloodUnitID: unitID,
		BloodGroup:  group,
		Status:      status,
		OccurredAt:  time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by blood unit id so every event
// for a unit lands on the same partition in order.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, timeout: 10 * time.Second}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.BloodUnitID),
			Value: value,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
			},
		})
	}

	// The request context may already be close to its deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d events: %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher logs events instead of shipping them. Used when no brokers
// are configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events ...Event) error {
	for _, e := range events {
		p.logger.Info().
			Str("event_id", e.ID).
			Str("event_type", e.Type).
			Str("blood_unit_id", e.BloodUnitID).
			Str("blood_group", e.BloodGroup).
			Str("status", e.Status).
			Msg("blood unit event")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
