// Package events publishes workflow events after a transition commits.
// Publishing is best effort: a failed publish is logged and never undoes
// the committed transition.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	PatientRegistered     = "patient.registered"
	AppointmentBooked     = "appointment.booked"
	ConsultationCompleted = "consultation.completed"
	LabRequested          = "lab.requested"
	LabResultRecorded     = "lab.result_recorded"
	BillCreated           = "bill.created"
	PrescriptionDispensed = "prescription.dispensed"
	RecordAccessed        = "record.accessed"
)

type Event struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

func New(typ, actorID string, payload map[string]interface{}) Event {
	return Event{Type: typ, OccurredAt: time.Now().UTC(), ActorID: actorID, Payload: payload}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Emit publishes evt and logs, rather than returns, any failure.
func Emit(ctx context.Context, pub Publisher, logger zerolog.Logger, evt Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, evt); err != nil {
		logger.Warn().Err(err).Str("event", evt.Type).Msg("event publish failed")
	}
}

// LogPublisher writes events to the log. It is the fallback when no Redis
// is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event", evt.Type).
		Str("actor_id", evt.ActorID).
		Interface("payload", evt.Payload).
		Time("occurred_at", evt.OccurredAt).
		Msg("workflow event")
	return nil
}

// MemoryPublisher collects events in order. Used by tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types lists the recorded event types in publish order.
func (p *MemoryPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
