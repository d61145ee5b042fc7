package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
)

// CreateBook inserts a book
func (s *PostgresStore) CreateBook(ctx context.Context, book *models.Book) error {
	query := `
		INSERT INTO books (id, title, genre, description, cover_url, total_positions, position_pricing, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		book.ID, book.Title, book.Genre, book.Description, book.CoverURL,
		book.TotalPositions, book.Positions, book.Status,
	).Scan(&book.CreatedAt, &book.UpdatedAt)
}

// GetBook retrieves a book by ID
func (s *PostgresStore) GetBook(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	err := s.db.GetContext(ctx, &book, "SELECT * FROM books WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// ListBooks retrieves all books, newest first
func (s *PostgresStore) ListBooks(ctx context.Context) ([]models.Book, error) {
	var books []models.Book
	err := s.db.SelectContext(ctx, &books, "SELECT * FROM books ORDER BY created_at DESC")
	return books, err
}

// UpdateBook updates a book's editable fields. The book row is locked while
// positions above the new total are checked, so a submission cannot slip in
// between the check and the write.
func (s *PostgresStore) UpdateBook(ctx context.Context, book *models.Book) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var locked string
	err = tx.GetContext(ctx, &locked, "SELECT id FROM books WHERE id = $1 FOR UPDATE", book.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("book %s: %w", book.ID, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock book: %w", err)
	}

	var usage positionUsage
	err = tx.GetContext(ctx, &usage, `
		SELECT COUNT(*) FILTER (WHERE payment_status = 'completed') AS completed,
		       MIN(position_number) FILTER (WHERE payment_status = 'completed' AND position_number > $2) AS sold_beyond,
		       MIN(position_number) FILTER (WHERE payment_status = 'pending' AND position_number > $2) AS pending_beyond
		FROM purchases WHERE book_id = $1`, book.ID, book.TotalPositions)
	if err != nil {
		return fmt.Errorf("failed to check positions: %w", err)
	}
	if err := usage.check(book.TotalPositions); err != nil {
		return err
	}

	query := `
		UPDATE books
		SET title = $1, genre = $2, description = $3, cover_url = $4,
		    total_positions = $5, position_pricing = $6, status = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING updated_at`

	err = tx.QueryRowxContext(ctx, query,
		book.Title, book.Genre, book.Description, book.CoverURL,
		book.TotalPositions, book.Positions, book.Status, book.ID,
	).Scan(&book.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	return tx.Commit()
}

// positionUsage summarizes the purchases a shrinking book must keep room for
type positionUsage struct {
	Completed     int           `db:"completed"`
	SoldBeyond    sql.NullInt64 `db:"sold_beyond"`
	PendingBeyond sql.NullInt64 `db:"pending_beyond"`
}

func (u positionUsage) check(total int) error {
	switch {
	case u.Completed > total:
		return apperr.Invalid("total_positions", fmt.Sprintf("Book already has %d completed purchases", u.Completed))
	case u.SoldBeyond.Valid:
		return apperr.Invalid("total_positions", fmt.Sprintf("Position %d is already sold", u.SoldBeyond.Int64))
	case u.PendingBeyond.Valid:
		return apperr.Invalid("total_positions", fmt.Sprintf("Position %d has a pending purchase", u.PendingBeyond.Int64))
	}
	return nil
}

// DeleteBook deletes or archives a book depending on its purchase history.
// Pending purchases failed by the archive are logged to payment_events in
// the same transaction and returned.
func (s *PostgresStore) DeleteBook(ctx context.Context, id string) (bool, []string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback()

	var locked string
	err = tx.GetContext(ctx, &locked, "SELECT id FROM books WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, fmt.Errorf("book %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to lock book: %w", err)
	}

	var counts struct {
		Paid  int `db:"paid"`
		Total int `db:"total"`
	}
	err = tx.GetContext(ctx, &counts, `
		SELECT COUNT(*) FILTER (WHERE payment_status IN ('completed', 'refunded')) AS paid,
		       COUNT(*) AS total
		FROM purchases WHERE book_id = $1`, id)
	if err != nil {
		return false, nil, fmt.Errorf("failed to count purchases: %w", err)
	}

	if counts.Paid > 0 {
		return false, nil, fmt.Errorf("book has %d paid purchase(s): %w", counts.Paid, apperr.ErrNotEligible)
	}

	if counts.Total == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM books WHERE id = $1", id); err != nil {
			return false, nil, fmt.Errorf("failed to delete book: %w", err)
		}
		return false, nil, tx.Commit()
	}

	var failed []struct {
		ID        string         `db:"id"`
		PaymentID sql.NullString `db:"payment_id"`
	}
	err = tx.SelectContext(ctx, &failed, `
		UPDATE purchases SET payment_status = 'failed', updated_at = NOW()
		WHERE book_id = $1 AND payment_status = 'pending'
		RETURNING id, payment_id`, id)
	if err != nil {
		return false, nil, fmt.Errorf("failed to fail pending purchases: %w", err)
	}

	ids := make([]string, 0, len(failed))
	for _, p := range failed {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_events (purchase_id, transaction_id, event_type, event_data)
			VALUES ($1, $2, $3, $4)`,
			p.ID, p.PaymentID.String, models.PaymentEventFailed, archiveEventData())
		if err != nil {
			return false, nil, fmt.Errorf("failed to log archived purchase %s: %w", p.ID, err)
		}
		ids = append(ids, p.ID)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE books SET status = 'inactive', updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return false, nil, fmt.Errorf("failed to archive book: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, err
	}
	return true, ids, nil
}

// archiveEventData is the payment event payload for a purchase failed by a book archive
func archiveEventData() models.EventData {
	return models.EventData{
		"source":          "admin",
		"reason":          "book_archived",
		"previous_status": string(models.PaymentStatusPending),
		"status":          string(models.PaymentStatusFailed),
	}
}

// CompletedPositions lists position numbers with a completed purchase and the total
// number of completed purchases, including count-based ones without a position.
func (s *PostgresStore) CompletedPositions(ctx context.Context, bookID string) ([]int, int, error) {
	var rows []sql.NullInt64
	err := s.db.SelectContext(ctx, &rows, `
		SELECT position_number FROM purchases
		WHERE book_id = $1 AND payment_status = 'completed'
		ORDER BY position_number`, bookID)
	if err != nil {
		return nil, 0, err
	}

	positions := make([]int, 0, len(rows))
	for _, r := range rows {
		if r.Valid {
			positions = append(positions, int(r.Int64))
		}
	}
	return positions, len(rows), nil
}
