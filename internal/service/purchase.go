package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
	"authorship-service/internal/store"
	"authorship-service/internal/util"
	"authorship-service/internal/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PurchaseService is the only creation path for purchases
type PurchaseService struct {
	store     store.Repository
	ledger    *Ledger
	coupons   *CouponEvaluator
	publisher EventPublisher
	logger    *zap.Logger
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(repo store.Repository, ledger *Ledger, coupons *CouponEvaluator, publisher EventPublisher) *PurchaseService {
	return &PurchaseService{
		store:     repo,
		ledger:    ledger,
		coupons:   coupons,
		publisher: publisherOrNoop(publisher),
		logger:    util.GetLogger(),
	}
}

// SubmitRequest is a buyer's checkout of one position
type SubmitRequest struct {
	UserID         string               `json:"-"`
	BookID         string               `json:"book_id" binding:"required"`
	PositionNumber int                  `json:"position_number" binding:"required,min=1"`
	PaymentMethod  models.PaymentMethod `json:"payment_method" binding:"required"`
	CouponCode     string               `json:"coupon_code,omitempty"`
	Payer          models.Payer         `json:"payer" binding:"required"`
}

// Submit validates a checkout and creates a pending purchase. Checks run in a
// fixed order and the first violation is returned.
func (s *PurchaseService) Submit(ctx context.Context, req *SubmitRequest) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.Submit")
	defer span.End()

	purchase, err := s.submit(ctx, req)
	if err != nil {
		util.PurchaseRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
		util.RecordError(span, err)
		return nil, err
	}
	return purchase, nil
}

func (s *PurchaseService) submit(ctx context.Context, req *SubmitRequest) (*models.Purchase, error) {
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodWallet
	}
	payer, err := validator.ValidatePayer(req.Payer, req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	book, err := s.store.GetBook(ctx, req.BookID)
	if err != nil {
		return nil, err
	}

	reservation, err := s.ledger.Reserve(ctx, book, req.PositionNumber)
	if err != nil {
		return nil, err
	}
	defer s.ledger.Release(ctx, reservation)

	base := reservation.Position.Price
	var discount int64
	var couponCode *string
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		quote, err := s.coupons.Evaluate(ctx, code, base)
		if err != nil {
			return nil, err
		}
		discount = quote.DiscountAmount
		couponCode = &quote.Coupon.Code
	}

	total := base - discount
	if err := validator.ValidateAmount(total); err != nil {
		return nil, err
	}

	position := req.PositionNumber
	purchase := &models.Purchase{
		ID:                 uuid.New().String(),
		BookID:             book.ID,
		UserID:             req.UserID,
		PositionNumber:     &position,
		PositionsPurchased: 1,
		BaseAmount:         base,
		DiscountAmount:     discount,
		TotalAmount:        total,
		PaymentStatus:      models.PaymentStatusPending,
		PaymentMethod:      req.PaymentMethod,
		CouponCode:         couponCode,
		BuyerName:          payer.Name,
		BuyerPhone:         payer.Phone,
		BuyerEmail:         strings.TrimSpace(payer.Email),
	}

	if err := s.store.CreatePurchase(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	s.ledger.Commit(ctx, reservation)

	util.PurchasesCreatedTotal.Inc()
	if couponCode != nil {
		util.CouponRedemptionsTotal.Inc()
	}

	s.logger.Info("Purchase created",
		zap.String("purchase_id", purchase.ID),
		zap.String("book_id", book.ID),
		zap.Int("position", position),
		zap.Int64("total_amount", total))

	event := newPurchaseEvent(models.EventTypePurchaseCreated, purchase, book.Title, "")
	if err := s.publisher.PublishPurchaseEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish purchase created event",
			zap.String("purchase_id", purchase.ID), zap.Error(err))
	}

	return purchase, nil
}

// Get returns a purchase by id
func (s *PurchaseService) Get(ctx context.Context, id string) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.Get")
	defer span.End()

	return s.store.GetPurchase(ctx, id)
}

// GetForUser returns a purchase only to its owner
func (s *PurchaseService) GetForUser(ctx context.Context, id, userID string) (*models.Purchase, error) {
	purchase, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(purchase, userID); err != nil {
		return nil, err
	}
	return purchase, nil
}

func checkOwner(p *models.Purchase, userID string) error {
	if p.UserID != userID {
		return fmt.Errorf("purchase %s belongs to another user: %w", p.ID, apperr.ErrForbidden)
	}
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return "validation"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrSoldOut):
		return "sold_out"
	case errors.Is(err, apperr.ErrInvalidPosition):
		return "invalid_position"
	case errors.Is(err, apperr.ErrPositionHeld):
		return "position_held"
	case errors.Is(err, apperr.ErrCouponExhausted):
		return "coupon_exhausted"
	case errors.Is(err, apperr.ErrNotEligible):
		return "not_eligible"
	default:
		return "internal"
	}
}
