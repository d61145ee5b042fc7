package service

import (
	"context"
	"time"

	"authorship-service/internal/gateway"
	"authorship-service/internal/models"
	"authorship-service/internal/store"
	"authorship-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher publishes purchase lifecycle events. *broker.EventPublisher
// implements it.
type EventPublisher interface {
	PublishPurchaseEvent(ctx context.Context, event *models.PurchaseEvent) error
	PublishRefundEvent(ctx context.Context, event *models.RefundEvent) error
	PublishConflictEvent(ctx context.Context, event *models.ConflictEvent) error
}

// HoldLocker takes short-lived owner-tokened holds. *redisclient.Client implements it.
type HoldLocker interface {
	AcquireHold(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseHold(ctx context.Context, key, owner string) (bool, error)
}

// Deduper remembers processed webhook deliveries. *redisclient.Client implements it.
type Deduper interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// WalletClient is the wallet gateway surface used after initiation.
// *gateway.Wallet implements it.
type WalletClient interface {
	CheckStatus(ctx context.Context, transactionID string) (*gateway.StatusReport, error)
	VerifyWebhook(signature string, body []byte) (*gateway.StatusReport, error)
	Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error)
}

type noopPublisher struct{}

func (noopPublisher) PublishPurchaseEvent(context.Context, *models.PurchaseEvent) error { return nil }
func (noopPublisher) PublishRefundEvent(context.Context, *models.RefundEvent) error     { return nil }
func (noopPublisher) PublishConflictEvent(context.Context, *models.ConflictEvent) error { return nil }

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func newPurchaseEvent(eventType string, p *models.Purchase, bookTitle, source string) *models.PurchaseEvent {
	return &models.PurchaseEvent{
		BaseEvent:      newBaseEvent(eventType),
		PurchaseID:     p.ID,
		BookID:         p.BookID,
		BookTitle:      bookTitle,
		UserID:         p.UserID,
		BuyerEmail:     p.BuyerEmail,
		BuyerName:      p.BuyerName,
		BuyerPhone:     p.BuyerPhone,
		PositionNumber: p.Position(),
		TotalAmount:    p.TotalAmount,
		Status:         p.PaymentStatus,
		PaymentMethod:  p.PaymentMethod,
		TransactionID:  p.PaymentRef(),
		Source:         source,
	}
}

// paymentLog appends to the payment event log. A failed write is logged and
// counted but never fails the caller's operation.
type paymentLog struct {
	store  store.EventStore
	logger *zap.Logger
}

func (l *paymentLog) record(ctx context.Context, purchaseID, transactionID string, eventType models.PaymentEventType, data models.EventData) {
	event := &models.PaymentEvent{
		PurchaseID:    purchaseID,
		TransactionID: transactionID,
		EventType:     eventType,
		EventData:     data,
	}
	if err := l.store.AppendPaymentEvent(ctx, event); err != nil {
		util.PaymentEventWriteFailuresTotal.Inc()
		l.logger.Error("Failed to append payment event",
			zap.String("purchase_id", purchaseID),
			zap.String("transaction_id", transactionID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
