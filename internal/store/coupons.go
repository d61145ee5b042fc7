package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
)

// redeemCouponQuery increments used_count only while the coupon is still applicable.
const redeemCouponQuery = `
	UPDATE coupons SET used_count = used_count + 1
	WHERE code = $1
	  AND is_active
	  AND (expires_at IS NULL OR expires_at > NOW())
	  AND (max_uses IS NULL OR used_count < max_uses)`

// CreateCoupon inserts a coupon
func (s *PostgresStore) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	query := `
		INSERT INTO coupons (id, code, description, discount_type, discount_value, max_uses, used_count, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := s.db.QueryRowxContext(ctx, query,
		c.ID, strings.ToUpper(c.Code), c.Description, c.DiscountType, c.DiscountValue,
		c.MaxUses, c.UsedCount, c.IsActive, c.ExpiresAt,
	).Scan(&c.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Invalid("code", "Coupon code already exists")
	}
	return err
}

// GetCoupon retrieves a coupon by code (case-insensitive)
func (s *PostgresStore) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := s.db.GetContext(ctx, &c, "SELECT * FROM coupons WHERE code = $1", strings.ToUpper(code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("coupon %s: %w", code, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCoupons retrieves all coupons
func (s *PostgresStore) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := s.db.SelectContext(ctx, &coupons, "SELECT * FROM coupons ORDER BY created_at DESC")
	return coupons, err
}

// UpdateCoupon updates a coupon's terms. used_count is never written here.
func (s *PostgresStore) UpdateCoupon(ctx context.Context, c *models.Coupon) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE coupons
		SET description = $1, discount_type = $2, discount_value = $3,
		    max_uses = $4, is_active = $5, expires_at = $6
		WHERE code = $7`,
		c.Description, c.DiscountType, c.DiscountValue, c.MaxUses, c.IsActive, c.ExpiresAt,
		strings.ToUpper(c.Code))
	return expectOne(res, err, "coupon", c.Code)
}

// SetCouponActive toggles a coupon
func (s *PostgresStore) SetCouponActive(ctx context.Context, code string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE coupons SET is_active = $1 WHERE code = $2", active, strings.ToUpper(code))
	return expectOne(res, err, "coupon", code)
}

// DeleteCoupon deletes a coupon
func (s *PostgresStore) DeleteCoupon(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM coupons WHERE code = $1", strings.ToUpper(code))
	return expectOne(res, err, "coupon", code)
}

func expectOne(res sql.Result, err error, entity, key string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, key, apperr.ErrNotFound)
	}
	return nil
}
