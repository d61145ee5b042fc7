package worker

import (
	"context"
	"fmt"
	"time"

	"authorship-service/internal/broker"
	"authorship-service/internal/models"
	"authorship-service/internal/notify"
	"authorship-service/internal/service"
	"authorship-service/internal/util"

	"go.uber.org/zap"
)

const (
	emailAttempts     = 3
	emailInitialDelay = time.Second
)

type messageConsumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// NotificationWorker emails buyers when their purchase completes or is refunded
type NotificationWorker struct {
	consumer     messageConsumer
	eventHandler *broker.EventHandler
	sender       notify.EmailSender
	retryDelay   time.Duration
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer messageConsumer, sender notify.EmailSender) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		sender:       sender,
		retryDelay:   emailInitialDelay,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnPurchaseCompleted(w.handlePurchaseCompleted)
	w.eventHandler.OnPurchaseRefunded(w.handlePurchaseRefunded)
	w.eventHandler.OnPaymentConflict(w.handlePaymentConflict)
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handlePurchaseCompleted(ctx context.Context, event *models.PurchaseEvent) error {
	if event.BuyerEmail == "" {
		w.logger.Info("No buyer email, skipping confirmation", zap.String("purchase_id", event.PurchaseID))
		return nil
	}

	title := event.BookTitle
	if title == "" {
		title = "your book"
	}
	subject := fmt.Sprintf("Your authorship position in %s is confirmed", title)
	body := fmt.Sprintf(
		"Hello %s,\n\nYour payment of %s for position %d in %s has been received.\n"+
			"You will receive %d printed copies once the book is published.\n\n"+
			"Transaction ID: %s\nContact number on file: %s\n\nThank you for writing with us!",
		event.BuyerName,
		notify.FormatINR(event.TotalAmount),
		event.PositionNumber,
		title,
		models.CopiesPerPosition,
		event.TransactionID,
		notify.FormatPhone(event.BuyerPhone),
	)

	return w.send(ctx, event.PurchaseID, event.BuyerEmail, subject, body)
}

func (w *NotificationWorker) handlePurchaseRefunded(ctx context.Context, event *models.RefundEvent) error {
	if event.BuyerEmail == "" {
		return nil
	}

	subject := "Your refund has been initiated"
	body := fmt.Sprintf(
		"Hello %s,\n\nA refund of %s has been initiated for your purchase.\nReason: %s\n"+
			"Refund reference: %s\n\nIt may take 5-7 working days to reach your account.",
		event.BuyerName,
		notify.FormatINR(event.Amount),
		event.Reason,
		event.RefundTransactionID,
	)

	return w.send(ctx, event.PurchaseID, event.BuyerEmail, subject, body)
}

func (w *NotificationWorker) handlePaymentConflict(ctx context.Context, event *models.ConflictEvent) error {
	w.logger.Warn("Payment conflict needs manual review",
		zap.String("purchase_id", event.PurchaseID),
		zap.String("transaction_id", event.TransactionID),
		zap.String("status", string(event.CurrentStatus)),
		zap.String("observed", string(event.ObservedStatus)),
		zap.String("source", event.Source))
	return nil
}

// send retries with exponential backoff. A final failure is logged and
// swallowed so one bad address does not stall the partition.
func (w *NotificationWorker) send(ctx context.Context, purchaseID, to, subject, body string) error {
	delay := w.retryDelay
	var err error
	for attempt := 1; attempt <= emailAttempts; attempt++ {
		err = w.sender.SendEmail(ctx, to, subject, body)
		if err == nil {
			w.logger.Info("Email sent",
				zap.String("purchase_id", purchaseID),
				zap.Int("attempt", attempt))
			return nil
		}
		if attempt == emailAttempts {
			break
		}

		w.logger.Warn("Failed to send email, retrying",
			zap.String("purchase_id", purchaseID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	w.logger.Error("Giving up on email",
		zap.String("purchase_id", purchaseID),
		zap.Error(err))
	return nil
}

// Sweeper runs one reconciliation pass. *service.Reconciler implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (*service.SweepResult, error)
}

// ReconcileWorker periodically reconciles stale pending purchases
type ReconcileWorker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(sweeper Sweeper, interval time.Duration) *ReconcileWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReconcileWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start sweeps on every tick until ctx is cancelled
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconcile worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping reconcile worker")
			return nil
		case <-ticker.C:
			if _, err := w.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("Reconcile sweep failed", zap.Error(err))
			}
		}
	}
}
