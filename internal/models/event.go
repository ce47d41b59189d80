package models

import "time"

// EventKind names a message on the observer feed.
type EventKind string

const (
	EventConnected           EventKind = "connected"
	EventHardwareStatus      EventKind = "hardware_status"
	EventWeightUpdate        EventKind = "weight_update"
	EventPreparationUpdate   EventKind = "preparation_update"
	EventPreparationComplete EventKind = "preparation_complete"
	EventError               EventKind = "error"
)

// Event is the envelope delivered to every observer.
type Event struct {
	Kind      EventKind `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func NewEvent(kind EventKind, data any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Data: data}
}

// PourEvent is a single journal entry.
type PourEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // STARTED | COMPLETED | CANCELLED | FAILED | REJECTED | MANUAL_RELAY | MANUAL_CLEANING
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
