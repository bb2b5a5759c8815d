package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventOrderPlaced     EventType = "order_placed"
	EventOrderCancelled  EventType = "order_cancelled"
	EventOrderDelivered  EventType = "order_delivered"
	EventAgentAssigned   EventType = "agent_assigned"
	EventLowStock        EventType = "low_stock"
	EventClosureApproved EventType = "closure_approved"
	EventClosureRejected EventType = "closure_rejected"
)

// Event is a fire-and-forget notification payload. Delivery transports
// (email, SMS, push) live behind the collaborator, not here.
type Event struct {
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Fields     map[string]any `json:"fields,omitempty"`
}

func NewEvent(t EventType, fields map[string]any) Event {
	return Event{Type: t, OccurredAt: time.Now().UTC(), Fields: fields}
}

// Notifier accepts events without a result. Implementations must not block
// the caller on delivery; failures are logged, never propagated.
type Notifier interface {
	Publish(ctx context.Context, event Event)
}

// LogNotifier writes events to the service log. Used until a real
// notification collaborator is wired in.
type LogNotifier struct{}

func (LogNotifier) Publish(_ context.Context, event Event) {
	log.Info().
		Str("event_type", string(event.Type)).
		Interface("fields", event.Fields).
		Msg("notification event published")
}
