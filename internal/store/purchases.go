package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
)

// CreatePurchase inserts a pending purchase inside the position/coupon critical section
func (s *PostgresStore) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// serializes submissions and book edits for the same book
	var total int
	err = tx.GetContext(ctx, &total, "SELECT total_positions FROM books WHERE id = $1 FOR UPDATE", p.BookID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("book %s: %w", p.BookID, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock book: %w", err)
	}

	if p.PositionNumber != nil {
		if *p.PositionNumber > total {
			return fmt.Errorf("position %d outside 1..%d: %w", *p.PositionNumber, total, apperr.ErrInvalidPosition)
		}

		var sold bool
		err = tx.GetContext(ctx, &sold, `
			SELECT EXISTS(
				SELECT 1 FROM purchases
				WHERE book_id = $1 AND position_number = $2 AND payment_status = 'completed'
			)`, p.BookID, *p.PositionNumber)
		if err != nil {
			return fmt.Errorf("failed to check position: %w", err)
		}
		if sold {
			return fmt.Errorf("position %d: %w", *p.PositionNumber, apperr.ErrSoldOut)
		}
	}

	if p.CouponCode != nil {
		res, err := tx.ExecContext(ctx, redeemCouponQuery, *p.CouponCode)
		if err != nil {
			return fmt.Errorf("failed to redeem coupon: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("coupon %s: %w", *p.CouponCode, apperr.ErrCouponExhausted)
		}
	}

	query := `
		INSERT INTO purchases (
			id, book_id, user_id, position_number, positions_purchased,
			base_amount, discount_amount, total_amount, payment_status, payment_method,
			payment_details, coupon_code, buyer_name, buyer_phone, buyer_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		p.ID, p.BookID, p.UserID, p.PositionNumber, p.PositionsPurchased,
		p.BaseAmount, p.DiscountAmount, p.TotalAmount, p.PaymentStatus, p.PaymentMethod,
		p.PaymentDetails, p.CouponCode, p.BuyerName, p.BuyerPhone, p.BuyerEmail,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}

	return tx.Commit()
}

// GetPurchase retrieves a purchase by ID
func (s *PostgresStore) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	var p models.Purchase
	err := s.db.GetContext(ctx, &p, "SELECT * FROM purchases WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("purchase %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPurchaseByPaymentID retrieves a purchase by current or previous transaction id
func (s *PostgresStore) GetPurchaseByPaymentID(ctx context.Context, paymentID string) (*models.Purchase, error) {
	var p models.Purchase
	err := s.db.GetContext(ctx, &p, `
		SELECT * FROM purchases
		WHERE payment_id = $1
		   OR payment_details -> 'previous_attempts' @> jsonb_build_array($1::text)
		ORDER BY (payment_id = $1) DESC NULLS LAST
		LIMIT 1`, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("purchase for transaction %s: %w", paymentID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPurchasesByBook retrieves all purchases for a book
func (s *PostgresStore) ListPurchasesByBook(ctx context.Context, bookID string) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := s.db.SelectContext(ctx, &purchases,
		"SELECT * FROM purchases WHERE book_id = $1 ORDER BY created_at DESC", bookID)
	return purchases, err
}

// ListPendingPurchases retrieves pending purchases not touched since updatedBefore
func (s *PostgresStore) ListPendingPurchases(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := s.db.SelectContext(ctx, &purchases, `
		SELECT * FROM purchases
		WHERE payment_status = 'pending' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`, updatedBefore, limit)
	return purchases, err
}

// SetPaymentReference attaches a gateway transaction id to a pending purchase
func (s *PostgresStore) SetPaymentReference(ctx context.Context, id string, prev *string, paymentID string, method models.PaymentMethod, patch models.PaymentDetails) (bool, error) {
	b, err := patchJSON(patch)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE purchases
		SET payment_id = $1, payment_method = $2,
		    payment_details = payment_details || $3::jsonb, updated_at = NOW()
		WHERE id = $4 AND payment_status = 'pending' AND payment_id IS NOT DISTINCT FROM $5`,
		paymentID, method, b, id, prev)
	if isUniqueViolation(err) {
		return false, apperr.Invalid("payment_id", "Transaction id already in use")
	}
	if err != nil {
		return false, fmt.Errorf("failed to set payment reference: %w", err)
	}

	n, err := res.RowsAffected()
	return n == 1, err
}

// TransitionStatus is the compare-and-set write for purchase status
func (s *PostgresStore) TransitionStatus(ctx context.Context, id string, from, to models.PaymentStatus, patch models.PaymentDetails) (bool, error) {
	b, err := patchJSON(patch)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE purchases
		SET payment_status = $1, payment_details = payment_details || $2::jsonb, updated_at = NOW()
		WHERE id = $3 AND payment_status = $4`,
		to, b, id, from)
	if isUniqueViolation(err) {
		return false, fmt.Errorf("purchase %s: %w", id, apperr.ErrSoldOut)
	}
	if err != nil {
		return false, fmt.Errorf("failed to transition purchase: %w", err)
	}

	n, err := res.RowsAffected()
	return n == 1, err
}

// MergePaymentDetails merges gateway payload sections without touching status
func (s *PostgresStore) MergePaymentDetails(ctx context.Context, id string, patch models.PaymentDetails) error {
	b, err := patchJSON(patch)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE purchases
		SET payment_details = payment_details || $1::jsonb, updated_at = NOW()
		WHERE id = $2`, b, id)
	return expectOne(res, err, "purchase", id)
}
