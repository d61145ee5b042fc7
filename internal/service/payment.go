package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/gateway"
	"authorship-service/internal/models"
	"authorship-service/internal/store"
	"authorship-service/internal/util"
	"authorship-service/internal/validator"

	"go.uber.org/zap"
)

// PaymentService starts gateway payments for pending purchases
type PaymentService struct {
	store      store.Repository
	gateways   map[models.PaymentMethod]gateway.Gateway
	reconciler *Reconciler
	publisher  EventPublisher
	events     *paymentLog
	logger     *zap.Logger
}

// NewPaymentService creates a new payment service over the given gateways
func NewPaymentService(repo store.Repository, reconciler *Reconciler, publisher EventPublisher, gateways ...gateway.Gateway) *PaymentService {
	logger := util.GetLogger()
	byMethod := make(map[models.PaymentMethod]gateway.Gateway, len(gateways))
	for _, gw := range gateways {
		byMethod[gw.Method()] = gw
	}
	return &PaymentService{
		store:      repo,
		gateways:   byMethod,
		reconciler: reconciler,
		publisher:  publisherOrNoop(publisher),
		events:     &paymentLog{store: repo, logger: logger},
		logger:     logger,
	}
}

// InitiateResponse tells the buyer where the payment stands
type InitiateResponse struct {
	PurchaseID    string               `json:"purchase_id"`
	TransactionID string               `json:"transaction_id"`
	RedirectURL   string               `json:"redirect_url,omitempty"`
	Status        models.PaymentStatus `json:"status"`
}

// Initiate sends a purchase to its gateway. The transaction id is stored on
// the purchase before the gateway is called, so a webhook can always be
// correlated. Gateway failures leave the purchase pending.
func (s *PaymentService) Initiate(ctx context.Context, purchaseID, userID string, payer models.Payer) (*InitiateResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Initiate")
	defer span.End()

	p, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(p, userID); err != nil {
		return nil, err
	}
	if err := initiable(p); err != nil {
		return nil, err
	}

	if payer.Name == "" {
		payer.Name = p.BuyerName
	}
	if payer.Phone == "" {
		payer.Phone = p.BuyerPhone
	}
	if payer.Email == "" {
		payer.Email = p.BuyerEmail
	}
	payer, err = validator.ValidatePayer(payer, p.PaymentMethod)
	if err != nil {
		return nil, err
	}

	gw, ok := s.gateways[p.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("no gateway for %s: %w", p.PaymentMethod, apperr.ErrGatewayUnavailable)
	}

	txn, err := s.attach(ctx, p, payer)
	if err != nil {
		return nil, err
	}

	result, err := gw.Initiate(ctx, &gateway.InitiateRequest{
		PurchaseID:    p.ID,
		TransactionID: txn,
		Amount:        p.TotalAmount,
		Payer:         payer,
	})
	if err != nil {
		s.logger.Warn("Payment initiation failed, purchase left pending",
			zap.String("purchase_id", p.ID),
			zap.String("transaction_id", txn),
			zap.String("method", string(p.PaymentMethod)),
			zap.Error(err))
		util.RecordError(span, err)
		return nil, err
	}
	util.PaymentsInitiatedTotal.WithLabelValues(string(p.PaymentMethod)).Inc()

	if p.PaymentMethod == models.PaymentMethodBankVerify {
		return s.completeVerification(ctx, p, txn, result)
	}

	if err := s.store.MergePaymentDetails(ctx, p.ID, result.Details); err != nil {
		s.logger.Error("Failed to store gateway response",
			zap.String("purchase_id", p.ID),
			zap.String("transaction_id", txn),
			zap.ByteString("raw_response", result.Raw),
			zap.Error(err))
	}

	p.PaymentID = &txn
	if err := s.publisher.PublishPurchaseEvent(ctx, newPurchaseEvent(models.EventTypePaymentInitiated, p, "", SourceSync)); err != nil {
		s.logger.Error("Failed to publish payment initiated event",
			zap.String("purchase_id", p.ID), zap.Error(err))
	}

	return &InitiateResponse{
		PurchaseID:    p.ID,
		TransactionID: txn,
		RedirectURL:   result.RedirectURL,
		Status:        models.PaymentStatusPending,
	}, nil
}

func initiable(p *models.Purchase) error {
	switch p.PaymentStatus {
	case models.PaymentStatusCompleted:
		return fmt.Errorf("purchase %s: %w", p.ID, apperr.ErrAlreadyCompleted)
	case models.PaymentStatusPending:
		if completionBlocked(p) {
			return fmt.Errorf("purchase %s is under review: %w", p.ID, apperr.ErrNotEligible)
		}
		return nil
	default:
		return fmt.Errorf("purchase %s is %s: %w", p.ID, p.PaymentStatus, apperr.ErrNotEligible)
	}
}

// attach generates a transaction id and stores it on the purchase, moving any
// earlier id into the attempt history.
func (s *PaymentService) attach(ctx context.Context, p *models.Purchase, payer models.Payer) (string, error) {
	prefix := gateway.PrefixPayment
	if p.PaymentMethod == models.PaymentMethodBankVerify {
		prefix = gateway.PrefixBank
	}
	txn := gateway.NewTransactionID(prefix)

	patch := models.PaymentDetails{
		Initiation: &models.Initiation{
			Gateway:               p.PaymentMethod,
			MerchantTransactionID: txn,
			Amount:                p.TotalAmount,
			PhoneNumber:           payer.Phone,
			CustomerName:          payer.Name,
			InitiatedAt:           time.Now().UTC(),
		},
	}
	if p.PaymentID != nil {
		patch.PreviousAttempts = append(append([]string{}, p.PaymentDetails.PreviousAttempts...), *p.PaymentID)
	}

	ok, err := s.store.SetPaymentReference(ctx, p.ID, p.PaymentID, txn, p.PaymentMethod, patch)
	if err != nil {
		return "", fmt.Errorf("failed to attach transaction: %w", err)
	}
	if !ok {
		current, err := s.store.GetPurchase(ctx, p.ID)
		if err != nil {
			return "", err
		}
		if err := initiable(current); err != nil {
			return "", err
		}
		return "", fmt.Errorf("purchase %s is being initiated concurrently: %w", p.ID, apperr.ErrNotEligible)
	}

	s.events.record(ctx, p.ID, txn, models.PaymentEventInitiated, models.EventData{
		"method": string(p.PaymentMethod),
		"amount": p.TotalAmount,
	})
	return txn, nil
}

// completeVerification applies a bank verification result. A rejected account
// fails the purchase and returns ErrBankVerificationFailed.
func (s *PaymentService) completeVerification(ctx context.Context, p *models.Purchase, txn string, result *gateway.InitiateResult) (*InitiateResponse, error) {
	ref := txn
	if result.TransactionID != "" && result.TransactionID != txn {
		patch := models.PaymentDetails{
			PreviousAttempts: append(append([]string{}, p.PaymentDetails.PreviousAttempts...), txn),
		}
		ok, err := s.store.SetPaymentReference(ctx, p.ID, &txn, result.TransactionID, p.PaymentMethod, patch)
		if err != nil {
			return nil, fmt.Errorf("failed to store bank reference: %w", err)
		}
		if ok {
			ref = result.TransactionID
		} else {
			s.logger.Warn("Purchase changed before bank reference was stored",
				zap.String("purchase_id", p.ID),
				zap.String("transaction_id", txn),
				zap.String("utr", result.TransactionID))
		}
	}

	applied, err := s.reconciler.Apply(ctx, &GatewayObservation{
		PurchaseID:    p.ID,
		TransactionID: ref,
		Status:        result.Status,
		Source:        SourceSync,
		Patch:         result.Details,
	})
	if err != nil {
		return nil, err
	}

	if result.Status != models.PaymentStatusCompleted {
		s.logger.Info("Bank verification rejected",
			zap.String("purchase_id", p.ID),
			zap.String("transaction_id", ref),
			zap.String("code", result.FailureCode),
			zap.ByteString("raw_response", result.Raw))
		return nil, &apperr.GatewayError{Kind: apperr.ErrBankVerificationFailed, Code: result.FailureCode}
	}

	status := applied.Purchase.PaymentStatus
	if status != models.PaymentStatusCompleted {
		return nil, fmt.Errorf("purchase %s is %s after verification: %w", p.ID, status, apperr.ErrNotEligible)
	}

	return &InitiateResponse{
		PurchaseID:    p.ID,
		TransactionID: ref,
		Status:        status,
	}, nil
}

// IsRetryable reports whether an initiation error leaves the purchase payable
func IsRetryable(err error) bool {
	return errors.Is(err, apperr.ErrTimeout) || errors.Is(err, apperr.ErrGatewayUnavailable) ||
		errors.Is(err, apperr.ErrGatewayRejected)
}
