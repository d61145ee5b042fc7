package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
	"authorship-service/internal/store"
	"authorship-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var couponCodeRegex = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// CouponEvaluator prices coupons and administers them
type CouponEvaluator struct {
	store  store.CouponStore
	logger *zap.Logger
	now    func() time.Time
}

// NewCouponEvaluator creates a new coupon evaluator
func NewCouponEvaluator(store store.CouponStore) *CouponEvaluator {
	return &CouponEvaluator{
		store:  store,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// CouponQuote is a discount preview for a base amount
type CouponQuote struct {
	Coupon         *models.Coupon `json:"coupon"`
	BaseAmount     int64          `json:"base_amount"`
	DiscountAmount int64          `json:"discount_amount"`
	TotalAmount    int64          `json:"total_amount"`
}

// Evaluate looks up an applicable coupon and computes its discount on base.
// A used-up coupon fails with ErrCouponExhausted, any other miss with ErrNotFound.
// It never redeems; redemption happens atomically with purchase creation.
func (s *CouponEvaluator) Evaluate(ctx context.Context, code string, base int64) (*CouponQuote, error) {
	ctx, span := util.StartSpan(ctx, "CouponEvaluator.Evaluate")
	defer span.End()

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperr.Invalid("coupon_code", "Coupon code is required")
	}

	coupon, err := s.store.GetCoupon(ctx, code)
	if err != nil {
		return nil, err
	}
	if coupon.MaxUses != nil && coupon.UsedCount >= *coupon.MaxUses {
		return nil, fmt.Errorf("coupon %s: %w", code, apperr.ErrCouponExhausted)
	}
	if !coupon.Applicable(s.now()) {
		return nil, fmt.Errorf("coupon %s is inactive or expired: %w", code, apperr.ErrNotFound)
	}

	discount := ComputeDiscount(coupon, base)
	return &CouponQuote{
		Coupon:         coupon,
		BaseAmount:     base,
		DiscountAmount: discount,
		TotalAmount:    base - discount,
	}, nil
}

// ComputeDiscount returns the discount in whole rupees, never more than base
func ComputeDiscount(c *models.Coupon, base int64) int64 {
	if base <= 0 {
		return 0
	}

	var discount int64
	switch c.DiscountType {
	case models.DiscountTypePercentage:
		discount = decimal.NewFromInt(base).
			Mul(decimal.NewFromInt(c.DiscountValue)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case models.DiscountTypeFixed:
		discount = c.DiscountValue
	}

	if discount < 0 {
		return 0
	}
	if discount > base {
		return base
	}
	return discount
}

// CouponInput holds admin-editable coupon fields
type CouponInput struct {
	Code          string              `json:"code"`
	Description   string              `json:"description"`
	DiscountType  models.DiscountType `json:"discount_type"`
	DiscountValue int64               `json:"discount_value"`
	MaxUses       *int                `json:"max_uses"`
	IsActive      *bool               `json:"is_active"`
	ExpiresAt     *time.Time          `json:"expires_at"`
}

func (in *CouponInput) validate() error {
	if !couponCodeRegex.MatchString(in.Code) {
		return apperr.Invalid("code", "Code must be 3-32 letters, digits, '-' or '_'")
	}
	if !in.DiscountType.IsValid() {
		return apperr.Invalid("discount_type", "Discount type must be percentage or fixed")
	}
	if in.DiscountValue <= 0 {
		return apperr.Invalid("discount_value", "Discount value must be positive")
	}
	if in.DiscountType == models.DiscountTypePercentage && in.DiscountValue > 100 {
		return apperr.Invalid("discount_value", "Percentage discount cannot exceed 100")
	}
	if in.MaxUses != nil && *in.MaxUses < 1 {
		return apperr.Invalid("max_uses", "Max uses must be at least 1")
	}
	return nil
}

// CreateCoupon validates and stores a new coupon
func (s *CouponEvaluator) CreateCoupon(ctx context.Context, in *CouponInput) (*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CouponEvaluator.CreateCoupon")
	defer span.End()

	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if err := in.validate(); err != nil {
		return nil, err
	}

	coupon := &models.Coupon{
		ID:            uuid.New().String(),
		Code:          in.Code,
		Description:   in.Description,
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		MaxUses:       in.MaxUses,
		IsActive:      in.IsActive == nil || *in.IsActive,
		ExpiresAt:     in.ExpiresAt,
	}
	if err := s.store.CreateCoupon(ctx, coupon); err != nil {
		return nil, err
	}

	s.logger.Info("Coupon created", zap.String("code", coupon.Code))
	return coupon, nil
}

// UpdateCoupon replaces a coupon's terms. The usage counter is preserved.
func (s *CouponEvaluator) UpdateCoupon(ctx context.Context, code string, in *CouponInput) (*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CouponEvaluator.UpdateCoupon")
	defer span.End()

	existing, err := s.store.GetCoupon(ctx, code)
	if err != nil {
		return nil, err
	}

	in.Code = existing.Code
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.MaxUses != nil && *in.MaxUses < existing.UsedCount {
		return nil, apperr.Invalid("max_uses", fmt.Sprintf("Max uses cannot be below current usage (%d)", existing.UsedCount))
	}

	existing.Description = in.Description
	existing.DiscountType = in.DiscountType
	existing.DiscountValue = in.DiscountValue
	existing.MaxUses = in.MaxUses
	existing.ExpiresAt = in.ExpiresAt
	if in.IsActive != nil {
		existing.IsActive = *in.IsActive
	}

	if err := s.store.UpdateCoupon(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// ToggleCoupon flips a coupon's active flag
func (s *CouponEvaluator) ToggleCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CouponEvaluator.ToggleCoupon")
	defer span.End()

	coupon, err := s.store.GetCoupon(ctx, code)
	if err != nil {
		return nil, err
	}
	coupon.IsActive = !coupon.IsActive
	if err := s.store.SetCouponActive(ctx, coupon.Code, coupon.IsActive); err != nil {
		return nil, err
	}

	s.logger.Info("Coupon toggled", zap.String("code", coupon.Code), zap.Bool("active", coupon.IsActive))
	return coupon, nil
}

// DeleteCoupon removes a coupon. Purchases keep their snapshot of the code.
func (s *CouponEvaluator) DeleteCoupon(ctx context.Context, code string) error {
	err := s.store.DeleteCoupon(ctx, code)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Error("Failed to delete coupon", zap.String("code", code), zap.Error(err))
	}
	return err
}

// ListCoupons returns all coupons
func (s *CouponEvaluator) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	return s.store.ListCoupons(ctx)
}
