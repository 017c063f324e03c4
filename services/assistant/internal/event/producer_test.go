package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/utafrali/shopassist/pkg/kafka"
	"github.com/utafrali/shopassist/pkg/logger"
)

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func newTestProducer(w *captureWriter) *Producer {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProducer(pkgkafka.NewProducerWithWriter(w, []string{"localhost:9092"}, l), l)
}

func TestPublishCollectionToggled(t *testing.T) {
	w := &captureWriter{}
	p := newTestProducer(w)

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	ctx = logger.WithUsername(ctx, "ana")

	err := p.PublishCollectionToggled(ctx, CollectionToggledData{
		SessionID:  "sess-1",
		Username:   "ana",
		Collection: "cart",
		ProductID:  "p2",
		Added:      true,
		Size:       1,
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, TopicCollectionToggled, msg.Topic)
	assert.Equal(t, "sess-1", string(msg.Key))

	var env pkgkafka.Event
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, TopicCollectionToggled, env.EventType)
	assert.Equal(t, AggregateTypeSession, env.AggregateType)
	assert.Equal(t, SourceAssistantService, env.Source)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.Equal(t, "ana", env.Metadata["username"])
	assert.JSONEq(t,
		`{"session_id":"sess-1","username":"ana","collection":"cart","product_id":"p2","added":true,"size":1}`,
		string(env.Data))
}

func TestPublishSearchCompleted_AnonymousHasNoUsernameMetadata(t *testing.T) {
	w := &captureWriter{}
	p := newTestProducer(w)

	err := p.PublishSearchCompleted(context.Background(), SearchCompletedData{
		SessionID:   "sess-2",
		Token:       3,
		Payload:     "text",
		Prompt:      "red dress",
		ResultCount: 2,
		InsightKind: "plain_text",
	})
	require.NoError(t, err)

	var env pkgkafka.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	assert.Equal(t, TopicSearchCompleted, w.msgs[0].Topic)
	_, ok := env.Metadata["username"]
	assert.False(t, ok)
}

func TestPublish_WriterError(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	p := newTestProducer(w)

	err := p.PublishCheckoutCompleted(context.Background(), CheckoutCompletedData{SessionID: "s", OrderID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish shopassist.checkout.completed event")
}

func TestNop(t *testing.T) {
	var n Nop
	assert.NoError(t, n.PublishIdentityChanged(context.Background(), IdentityChangedData{SessionID: "s"}))
}
