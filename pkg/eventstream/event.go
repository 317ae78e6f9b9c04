package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	eventTypePrefix = "ephemera.session."
)

// Reason says why a session left the active set.
type Reason string

const (
	// ReasonEnded marks an explicit teardown by the application.
	ReasonEnded Reason = "ended"
	// ReasonEvicted marks removal by memory-pressure cleanup.
	ReasonEvicted Reason = "evicted"
	// ReasonExpired marks a session whose keys lapsed on their TTL.
	ReasonExpired Reason = "expired"
)

// EventType returns the topic-level event type for r.
func (r Reason) EventType() string {
	return eventTypePrefix + string(r)
}

// SessionEvent is a transport-neutral payload for a session lifecycle change.
type SessionEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	SessionID     string    `json:"session_id"`
	Reason        Reason    `json:"reason"`
	MessageCount  int64     `json:"message_count"`
	FreedBytes    int64     `json:"freed_bytes"`
}

// NewSessionEvent stamps a fresh event for sessionID.
func NewSessionEvent(sessionID string, reason Reason, at time.Time) *SessionEvent {
	return &SessionEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     reason.EventType(),
		EventID:       uuid.NewString(),
		EmittedAt:     at.UTC(),
		SessionID:     sessionID,
		Reason:        reason,
	}
}
