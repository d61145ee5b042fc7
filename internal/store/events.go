package store

import (
	"context"
	"time"

	"authorship-service/internal/models"
)

// AppendPaymentEvent appends to the payment log
func (s *PostgresStore) AppendPaymentEvent(ctx context.Context, e *models.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (purchase_id, transaction_id, event_type, event_data)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		e.PurchaseID, e.TransactionID, e.EventType, e.EventData,
	).Scan(&e.ID, &e.CreatedAt)
}

// ListPaymentEvents retrieves a purchase's payment log, newest first
func (s *PostgresStore) ListPaymentEvents(ctx context.Context, purchaseID string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM payment_events WHERE purchase_id = $1 ORDER BY created_at DESC, id DESC", purchaseID)
	return events, err
}

// PaymentAnalytics aggregates purchase outcomes per day since the given time
func (s *PostgresStore) PaymentAnalytics(ctx context.Context, since time.Time) ([]models.DailyPaymentStats, error) {
	var stats []models.DailyPaymentStats
	err := s.db.SelectContext(ctx, &stats, `
		SELECT date_trunc('day', updated_at) AS payment_date,
		       COUNT(*) FILTER (WHERE payment_status = 'completed') AS completed_count,
		       COALESCE(SUM(total_amount) FILTER (WHERE payment_status = 'completed'), 0) AS completed_revenue,
		       COUNT(*) FILTER (WHERE payment_status = 'failed') AS failed_count,
		       COUNT(*) FILTER (WHERE payment_status = 'refunded') AS refunded_count
		FROM purchases
		WHERE updated_at >= $1
		GROUP BY 1
		ORDER BY 1 DESC`, since)
	return stats, err
}
