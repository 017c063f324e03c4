package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/shopassist/pkg/kafka"
	"github.com/utafrali/shopassist/pkg/logger"
)

// Kafka topic constants for assistant activity events.
const (
	TopicSearchCompleted   = "shopassist.search.completed"
	TopicCollectionToggled = "shopassist.collection.toggled"
	TopicCheckoutCompleted = "shopassist.checkout.completed"
	TopicIdentityChanged   = "shopassist.session.identity_changed"
)

// Aggregate type constant.
const AggregateTypeSession = "session"

// Source identifier for events originating from the assistant service.
const SourceAssistantService = "assistant-service"

// SearchCompletedData is the payload for a search.completed event. Superseded
// searches are not published.
type SearchCompletedData struct {
	SessionID   string `json:"session_id"`
	Token       uint64 `json:"token"`
	Payload     string `json:"payload"`
	Prompt      string `json:"prompt,omitempty"`
	ResultCount int    `json:"result_count"`
	InsightKind string `json:"insight_kind"`
	ErrorKind   string `json:"error_kind,omitempty"`
}

// CollectionToggledData is the payload for a collection.toggled event.
type CollectionToggledData struct {
	SessionID  string `json:"session_id"`
	Username   string `json:"username"`
	Collection string `json:"collection"`
	ProductID  string `json:"product_id"`
	Added      bool   `json:"added"`
	Size       int    `json:"size"`
}

// CheckoutCompletedData is the payload for a checkout.completed event.
type CheckoutCompletedData struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	OrderID   string `json:"order_id"`
	ItemCount int    `json:"item_count"`
	Total     string `json:"total"`
}

// IdentityChangedData is the payload for a session.identity_changed event.
type IdentityChangedData struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username,omitempty"`
	LoggedIn  bool   `json:"logged_in"`
	Via       string `json:"via"`
}

// Producer publishes assistant activity events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the assistant service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishSearchCompleted publishes a search.completed event.
func (p *Producer) PublishSearchCompleted(ctx context.Context, data SearchCompletedData) error {
	return p.publish(ctx, TopicSearchCompleted, data.SessionID, data)
}

// PublishCollectionToggled publishes a collection.toggled event.
func (p *Producer) PublishCollectionToggled(ctx context.Context, data CollectionToggledData) error {
	return p.publish(ctx, TopicCollectionToggled, data.SessionID, data)
}

// PublishCheckoutCompleted publishes a checkout.completed event.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, data CheckoutCompletedData) error {
	return p.publish(ctx, TopicCheckoutCompleted, data.SessionID, data)
}

// PublishIdentityChanged publishes a session.identity_changed event.
func (p *Producer) PublishIdentityChanged(ctx context.Context, data IdentityChangedData) error {
	return p.publish(ctx, TopicIdentityChanged, data.SessionID, data)
}

func (p *Producer) publish(ctx context.Context, topic, sessionID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, sessionID, AggregateTypeSession, SourceAssistantService, data,
		pkgkafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
		pkgkafka.WithMetadata("username", logger.UsernameFromContext(ctx)),
	)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("session_id", sessionID),
	)
	return nil
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishSearchCompleted(context.Context, SearchCompletedData) error { return nil }
func (Nop) PublishCollectionToggled(context.Context, CollectionToggledData) error { return nil }
func (Nop) PublishCheckoutCompleted(context.Context, CheckoutCompletedData) error { return nil }
func (Nop) PublishIdentityChanged(context.Context, IdentityChangedData) error { return nil }
