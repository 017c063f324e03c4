package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// envelopeVersion is bumped when the Event layout changes incompatibly.
const envelopeVersion = 1

// Event is the envelope for every message the assistant publishes. Data
// holds the event-specific payload already encoded as JSON.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Option decorates an Event at construction.
type Option func(*Event)

// WithCorrelationID ties the event to the request that caused it.
func WithCorrelationID(id string) Option {
	return func(e *Event) { e.CorrelationID = id }
}

// WithMetadata attaches a key/value pair. Empty values are dropped so
// optional context, such as the username of an anonymous session, never
// shows up as "".
func WithMetadata(key, value string) Option {
	return func(e *Event) {
		if value == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string)
		}
		e.Metadata[key] = value
	}
}

// NewEvent builds an envelope around data.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any, opts ...Option) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	e := &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       envelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          payload,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Message renders the event as a Kafka message for topic. The aggregate ID
// is the partition key, so every event of one session stays ordered.
func (e *Event) Message(topic string) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event envelope: %w", err)
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "source", Value: []byte(e.Source)},
	}
	if e.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
	}

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(e.AggregateID),
		Value:   value,
		Headers: headers,
	}, nil
}
