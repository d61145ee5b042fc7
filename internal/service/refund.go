package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/gateway"
	"authorship-service/internal/models"
	"authorship-service/internal/store"
	"authorship-service/internal/util"

	"go.uber.org/zap"
)

// RefundService returns money for completed purchases (admin only)
type RefundService struct {
	store     store.Repository
	wallet    WalletClient
	publisher EventPublisher
	events    *paymentLog
	logger    *zap.Logger
	now       func() time.Time
}

// NewRefundService creates a new refund service. wallet may be nil, in which
// case wallet purchases cannot be refunded.
func NewRefundService(repo store.Repository, wallet WalletClient, publisher EventPublisher) *RefundService {
	logger := util.GetLogger()
	return &RefundService{
		store:     repo,
		wallet:    wallet,
		publisher: publisherOrNoop(publisher),
		events:    &paymentLog{store: repo, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// RefundRequest is an admin's refund instruction
type RefundRequest struct {
	PurchaseID string `json:"-"`
	Amount     int64  `json:"amount" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
	Actor      string `json:"-"`
}

// RefundRecord is the refunded purchase and its refund metadata
type RefundRecord struct {
	PurchaseID string               `json:"purchase_id"`
	Status     models.PaymentStatus `json:"payment_status"`
	Refund     models.RefundDetails `json:"refund"`
}

// Refund flips a completed purchase to refunded once the gateway accepts the
// refund. Settlement is not awaited, so the position is available again at once.
// A pending purchase whose payment landed on an already sold position is
// refundable too; it moves pending to refunded.
func (s *RefundService) Refund(ctx context.Context, req *RefundRequest) (*RefundRecord, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Refund")
	defer span.End()

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperr.Invalid("reason", "Refund reason is required")
	}
	if req.Amount <= 0 {
		return nil, apperr.Invalid("amount", "Refund amount must be positive")
	}

	p, err := s.store.GetPurchase(ctx, req.PurchaseID)
	if err != nil {
		return nil, err
	}
	from, err := refundableFrom(p)
	if err != nil {
		return nil, err
	}
	if req.Amount > p.TotalAmount {
		return nil, fmt.Errorf("refund %d > paid %d: %w", req.Amount, p.TotalAmount, apperr.ErrAmountExceedsOriginal)
	}

	details := models.RefundDetails{
		RefundTransactionID:   gateway.NewTransactionID(gateway.PrefixRefund),
		OriginalTransactionID: p.OriginalGatewayTransactionID(),
		Amount:                req.Amount,
		Reason:                reason,
		InitiatedBy:           req.Actor,
		InitiatedAt:           s.now().UTC(),
	}

	switch p.PaymentMethod {
	case models.PaymentMethodWallet:
		if s.wallet == nil {
			return nil, fmt.Errorf("wallet gateway not configured: %w", apperr.ErrGatewayUnavailable)
		}
		res, err := s.wallet.Refund(ctx, &gateway.RefundRequest{
			RefundTransactionID:   details.RefundTransactionID,
			OriginalTransactionID: details.OriginalTransactionID,
			Amount:                req.Amount,
		})
		if err != nil {
			util.RefundsTotal.WithLabelValues("rejected").Inc()
			s.logger.Error("Gateway refused refund",
				zap.String("purchase_id", p.ID),
				zap.String("transaction_id", details.RefundTransactionID),
				zap.Error(err))
			util.RecordError(span, err)
			return nil, err
		}
		details.Status = models.RefundStatusPending
		details.RawResponse = res.Raw
	default:
		details.Status = models.RefundStatusManual
	}

	ok, err := s.store.TransitionStatus(ctx, p.ID, from, models.PaymentStatusRefunded,
		models.PaymentDetails{Refund: &details})
	if err != nil {
		return nil, fmt.Errorf("failed to mark purchase refunded: %w", err)
	}
	if !ok {
		s.logger.Error("Purchase changed while refund was in flight",
			zap.String("purchase_id", p.ID),
			zap.String("transaction_id", details.RefundTransactionID))
		return nil, fmt.Errorf("purchase %s is no longer %s: %w", p.ID, from, apperr.ErrNotEligible)
	}

	util.RefundsTotal.WithLabelValues(details.Status).Inc()
	util.PaymentTransitionsTotal.WithLabelValues(SourceAdmin, string(models.PaymentStatusRefunded)).Inc()

	s.events.record(ctx, p.ID, details.RefundTransactionID, models.PaymentEventRefundInitiated, models.EventData{
		"amount":                  req.Amount,
		"reason":                  reason,
		"refund_status":           details.Status,
		"initiated_by":            req.Actor,
		"original_transaction_id": details.OriginalTransactionID,
		"previous_status":         string(from),
	})

	s.logger.Info("Refund initiated",
		zap.String("purchase_id", p.ID),
		zap.String("transaction_id", details.RefundTransactionID),
		zap.Int64("amount", req.Amount),
		zap.String("refund_status", details.Status))

	event := &models.RefundEvent{
		BaseEvent:           newBaseEvent(models.EventTypePurchaseRefunded),
		PurchaseID:          p.ID,
		BookID:              p.BookID,
		UserID:              p.UserID,
		BuyerEmail:          p.BuyerEmail,
		BuyerName:           p.BuyerName,
		RefundTransactionID: details.RefundTransactionID,
		Amount:              req.Amount,
		Reason:              reason,
		RefundStatus:        details.Status,
	}
	if err := s.publisher.PublishRefundEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish refund event",
			zap.String("purchase_id", p.ID), zap.Error(err))
	}

	return &RefundRecord{
		PurchaseID: p.ID,
		Status:     models.PaymentStatusRefunded,
		Refund:     details,
	}, nil
}

// refundableFrom returns the status a refund moves p out of
func refundableFrom(p *models.Purchase) (models.PaymentStatus, error) {
	switch {
	case p.PaymentStatus == models.PaymentStatusCompleted:
		return p.PaymentStatus, nil
	case p.PaymentStatus == models.PaymentStatusPending && completionBlocked(p):
		return p.PaymentStatus, nil
	}
	return "", fmt.Errorf("purchase %s is %s: %w", p.ID, p.PaymentStatus, apperr.ErrNotEligible)
}
