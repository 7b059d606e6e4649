package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeAppointmentBooked      = "appointment.booked.v1"
	TypeAppointmentCanceled    = "appointment.canceled.v1"
	TypeAppointmentRescheduled = "appointment.rescheduled.v1"
)

// Event is a lifecycle fact emitted after a booking transaction commits.
type Event struct {
	ID          uuid.UUID
	Type        string
	AggregateID uuid.UUID
	OccurredAt  time.Time
	Payload     map[string]any
}

func New(eventType string, aggregateID uuid.UUID, payload map[string]any) Event {
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

// Publisher delivers events on a best-effort basis.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
