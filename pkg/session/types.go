package session

import (
	"time"
)

// MessageType classifies who produced a message.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
	MessageSystem    MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageUser, MessageAssistant, MessageSystem:
		return true
	}
	return false
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Message is one immutable chat entry.
type Message struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	SenderID   string         `json:"sender_id"`
	SenderName string         `json:"sender_name,omitempty"`
	Body       string         `json:"body"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       MessageType    `json:"type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Session is the metadata record of a chat session.
type Session struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
	MessageCount     int64     `json:"message_count"`
	ParticipantCount int64     `json:"participant_count"`
	Status           Status    `json:"status"`
}

// ParticipantSnapshot aggregates one sender's activity in a session.
type ParticipantSnapshot struct {
	UserID        string    `json:"user_id"`
	Nickname      string    `json:"nickname,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int64     `json:"message_count"`
}

// Stats summarizes a session for diagnostics.
type Stats struct {
	SessionID        string        `json:"session_id"`
	MessageCount     int64         `json:"message_count"`
	StoredMessages   int64         `json:"stored_messages"`
	ParticipantCount int64         `json:"participant_count"`
	TTL              time.Duration `json:"ttl"`
	Status           Status        `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	LastActivity     time.Time     `json:"last_activity"`
}

// Config controls retention.
type Config struct {
	MessageTTL     time.Duration
	MetadataTTL    time.Duration
	ParticipantTTL time.Duration
	// MaxMessages caps the stored list. Zero keeps every message.
	MaxMessages int64
	// ScanBatch is the COUNT hint for SSCAN over the active set.
	ScanBatch int64
}

// DefaultConfig keeps sessions for a day and at most 1000 messages.
func DefaultConfig() Config {
	return Config{
		MessageTTL:     24 * time.Hour,
		MetadataTTL:    24 * time.Hour,
		ParticipantTTL: 24 * time.Hour,
		MaxMessages:    1000,
		ScanBatch:      200,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MessageTTL <= 0 {
		c.MessageTTL = d.MessageTTL
	}
	if c.MetadataTTL <= 0 {
		c.MetadataTTL = d.MetadataTTL
	}
	if c.ParticipantTTL <= 0 {
		c.ParticipantTTL = d.ParticipantTTL
	}
	if c.MaxMessages < 0 {
		c.MaxMessages = 0
	}
	if c.ScanBatch <= 0 {
		c.ScanBatch = d.ScanBatch
	}
	return c
}
