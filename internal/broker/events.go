package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"authorship-service/internal/models"
	"authorship-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing purchase lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func purchaseKey(purchaseID string) string {
	return fmt.Sprintf("purchase-%s", purchaseID)
}

// PublishPurchaseEvent publishes a created/initiated/completed/failed event
func (ep *EventPublisher) PublishPurchaseEvent(ctx context.Context, event *models.PurchaseEvent) error {
	return ep.producer.PublishEvent(ctx, purchaseKey(event.PurchaseID), event.EventType, event)
}

// PublishRefundEvent publishes PurchaseRefunded event
func (ep *EventPublisher) PublishRefundEvent(ctx context.Context, event *models.RefundEvent) error {
	return ep.producer.PublishEvent(ctx, purchaseKey(event.PurchaseID), event.EventType, event)
}

// PublishConflictEvent publishes PaymentConflict event
func (ep *EventPublisher) PublishConflictEvent(ctx context.Context, event *models.ConflictEvent) error {
	return ep.producer.PublishEvent(ctx, purchaseKey(event.PurchaseID), event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onPurchaseCompleted func(context.Context, *models.PurchaseEvent) error
	onPurchaseRefunded  func(context.Context, *models.RefundEvent) error
	onPaymentConflict   func(context.Context, *models.ConflictEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPurchaseCompleted registers a handler for PurchaseCompleted events
func (eh *EventHandler) OnPurchaseCompleted(handler func(context.Context, *models.PurchaseEvent) error) {
	eh.onPurchaseCompleted = handler
}

// OnPurchaseRefunded registers a handler for PurchaseRefunded events
func (eh *EventHandler) OnPurchaseRefunded(handler func(context.Context, *models.RefundEvent) error) {
	eh.onPurchaseRefunded = handler
}

// OnPaymentConflict registers a handler for PaymentConflict events
func (eh *EventHandler) OnPaymentConflict(handler func(context.Context, *models.ConflictEvent) error) {
	eh.onPaymentConflict = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePurchaseCompleted:
		if eh.onPurchaseCompleted != nil {
			var event models.PurchaseEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PurchaseCompleted event: %w", err)
			}
			return eh.onPurchaseCompleted(ctx, &event)
		}

	case models.EventTypePurchaseRefunded:
		if eh.onPurchaseRefunded != nil {
			var event models.RefundEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PurchaseRefunded event: %w", err)
			}
			return eh.onPurchaseRefunded(ctx, &event)
		}

	case models.EventTypePaymentConflict:
		if eh.onPaymentConflict != nil {
			var event models.ConflictEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentConflict event: %w", err)
			}
			return eh.onPaymentConflict(ctx, &event)
		}

	default:
		eh.logger.Debug("Ignoring event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
