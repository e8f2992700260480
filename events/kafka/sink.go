// Package kafka forwards committed domain events to a Kafka topic.
//
// A Sink is attached to a stream as a regular subscriber. Messages are keyed
// by the stream identifier so that a hash balancer keeps every stream on a
// single partition, preserving per-stream order downstream.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/grain/events"
)

const defaultWriteTimeout = 10 * time.Second

// Sink writes domain events to a Kafka topic.
type Sink struct {
	writer       *kafka.Writer
	topic        string
	writeTimeout time.Duration
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithWriteTimeout bounds each WriteMessages call.
func WithWriteTimeout(d time.Duration) SinkOption {
	return func(s *Sink) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// NewSink creates a Kafka sink publishing to the given topic.
func NewSink(brokers []string, topic string, opts ...SinkOption) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("events/kafka: at least one broker required")
	}
	if topic == "" {
		return nil, fmt.Errorf("events/kafka: topic required")
	}

	s := &Sink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic:        topic,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// envelope is the wire format written to Kafka.
type envelope struct {
	Stream string             `json:"stream"`
	Event  events.DomainEvent `json:"event"`
}

// Subscriber returns a subscriber that forwards events for the given stream.
// Pass the result to Publisher.Subscribe; a write failure propagates so the
// runtime's redelivery kicks in.
func (s *Sink) Subscriber(stream events.Stream) events.Subscriber {
	key := []byte(stream.String())

	return func(evt events.DomainEvent) error {
		value, err := json.Marshal(envelope{Stream: stream.String(), Event: evt})
		if err != nil {
			return fmt.Errorf("events/kafka: marshal event %s: %w", evt.ID, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()

		if err := s.writer.WriteMessages(ctx, kafka.Message{
			Key:   key,
			Value: value,
			Time:  evt.OccurredAt,
		}); err != nil {
			return fmt.Errorf("events/kafka: write event %s: %w", evt.ID, err)
		}
		return nil
	}
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
