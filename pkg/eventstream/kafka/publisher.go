// Package kafka publishes session lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/ephemera/pkg/eventstream"
	"github.com/papercomputeco/ephemera/pkg/logger"
)

const defaultWriteTimeout = 5 * time.Second

// Config describes the Kafka target.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes SessionEvents keyed by session ID so one session's events
// stay on one partition in order.
type Publisher struct {
	w       writer
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher returns a Publisher for cfg. Nothing is dialed until the
// first write.
func NewPublisher(cfg Config, l *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if l == nil {
		l = logger.Nop()
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           cfg.WriteTimeout,
	}
	return newPublisher(w, cfg.WriteTimeout, l), nil
}

func newPublisher(w writer, timeout time.Duration, l *slog.Logger) *Publisher {
	return &Publisher{w: w, timeout: timeout, logger: l.With("component", "eventstream.kafka")}
}

// PublishSession writes one event.
func (p *Publisher) PublishSession(ctx context.Context, event *eventstream.SessionEvent) error {
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("publish session event", "session_id", event.SessionID, "event_type", event.EventType, "error", err)
		return fmt.Errorf("kafka publish %s: %w", event.EventType, err)
	}
	return nil
}

// Close flushes pending writes and releases the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func encodeMessage(event *eventstream.SessionEvent) (kafkago.Message, error) {
	if event == nil {
		return kafkago.Message{}, eventstream.ErrNilSessionEvent
	}
	value, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encode session event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.SessionID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}, nil
}
