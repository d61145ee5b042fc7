package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"authorship-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func newTestPublisher(w *recordingWriter) *EventPublisher {
	return NewEventPublisher(&Producer{writer: w, logger: zap.NewNop()})
}

func TestPublishPurchaseEvent(t *testing.T) {
	w := &recordingWriter{}
	ep := newTestPublisher(w)

	event := &models.PurchaseEvent{
		BaseEvent:  models.BaseEvent{EventID: "e-1", EventType: models.EventTypePurchaseCompleted, Timestamp: time.Now()},
		PurchaseID: "p-1",
		Status:     models.PaymentStatusCompleted,
	}
	require.NoError(t, ep.PublishPurchaseEvent(context.Background(), event))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "purchase-p-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, models.EventTypePurchaseCompleted, string(msg.Headers[0].Value))

	var decoded models.PurchaseEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "p-1", decoded.PurchaseID)
}

func TestPublishPropagatesWriterError(t *testing.T) {
	ep := newTestPublisher(&recordingWriter{err: errors.New("broker down")})

	err := ep.PublishConflictEvent(context.Background(), &models.ConflictEvent{PurchaseID: "p-1"})
	assert.ErrorContains(t, err, "broker down")
}

func TestEventHandlerRoutes(t *testing.T) {
	eh := NewEventHandler()

	var completed *models.PurchaseEvent
	var refunded *models.RefundEvent
	eh.OnPurchaseCompleted(func(ctx context.Context, e *models.PurchaseEvent) error {
		completed = e
		return nil
	})
	eh.OnPurchaseRefunded(func(ctx context.Context, e *models.RefundEvent) error {
		refunded = e
		return nil
	})

	completedMsg, _ := json.Marshal(models.PurchaseEvent{
		BaseEvent:  models.BaseEvent{EventType: models.EventTypePurchaseCompleted},
		PurchaseID: "p-1",
		BuyerEmail: "asha@example.com",
	})
	refundMsg, _ := json.Marshal(models.RefundEvent{
		BaseEvent:  models.BaseEvent{EventType: models.EventTypePurchaseRefunded},
		PurchaseID: "p-2",
		Amount:     8100,
	})
	createdMsg, _ := json.Marshal(models.PurchaseEvent{
		BaseEvent:  models.BaseEvent{EventType: models.EventTypePurchaseCreated},
		PurchaseID: "p-3",
	})

	ctx := context.Background()
	require.NoError(t, eh.HandleMessage(ctx, kafka.Message{Value: completedMsg}))
	require.NoError(t, eh.HandleMessage(ctx, kafka.Message{Value: refundMsg}))
	require.NoError(t, eh.HandleMessage(ctx, kafka.Message{Value: createdMsg}))

	require.NotNil(t, completed)
	assert.Equal(t, "asha@example.com", completed.BuyerEmail)
	require.NotNil(t, refunded)
	assert.Equal(t, int64(8100), refunded.Amount)
}

func TestEventHandlerRejectsGarbage(t *testing.T) {
	err := NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
