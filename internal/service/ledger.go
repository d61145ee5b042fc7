package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
	"authorship-service/internal/redisclient"
	"authorship-service/internal/store"
	"authorship-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultHoldTTL    = 15 * time.Second
	holdAttempts      = 3
	holdRetryInterval = 100 * time.Millisecond
)

// Ledger answers which positions of a book can still be sold. Availability is
// always derived from completed purchases; nothing is decremented.
type Ledger struct {
	books   store.BookStore
	holds   HoldLocker
	holdTTL time.Duration
	logger  *zap.Logger
}

// NewLedger creates a new ledger. holds may be nil, in which case only the
// store's transactional re-check guards submissions.
func NewLedger(books store.BookStore, holds HoldLocker, holdTTL time.Duration) *Ledger {
	if holdTTL <= 0 {
		holdTTL = defaultHoldTTL
	}
	return &Ledger{
		books:   books,
		holds:   holds,
		holdTTL: holdTTL,
		logger:  util.GetLogger(),
	}
}

// BookAvailability is the derived sales state of a book
type BookAvailability struct {
	BookID         string            `json:"book_id"`
	TotalPositions int               `json:"total_positions"`
	Available      int               `json:"available_positions"`
	Positions      []models.Position `json:"positions"`
	Sold           []int             `json:"sold_positions"`
}

// Availability loads a book and derives its availability
func (l *Ledger) Availability(ctx context.Context, bookID string) (*BookAvailability, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.Availability")
	defer span.End()

	book, err := l.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return l.availability(ctx, book)
}

// availability computes total minus completed purchases, clamped at zero,
// and the numbered positions that remain purchasable.
func (l *Ledger) availability(ctx context.Context, book *models.Book) (*BookAvailability, error) {
	sold, completed, err := l.books.CompletedPositions(ctx, book.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load completed positions: %w", err)
	}

	soldSet := make(map[int]bool, len(sold))
	for _, n := range sold {
		soldSet[n] = true
	}

	positions := make([]models.Position, 0, len(book.Positions))
	for _, p := range book.Positions {
		if p.Number >= 1 && p.Number <= book.TotalPositions && !soldSet[p.Number] {
			positions = append(positions, p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Number < positions[j].Number })

	available := book.TotalPositions - completed
	if available < 0 {
		available = 0
	}
	if len(positions) > available {
		positions = positions[:available]
	}

	return &BookAvailability{
		BookID:         book.ID,
		TotalPositions: book.TotalPositions,
		Available:      available,
		Positions:      positions,
		Sold:           sold,
	}, nil
}

// AvailablePositions returns the purchasable positions of a book, lowest number first
func (l *Ledger) AvailablePositions(ctx context.Context, bookID string) ([]models.Position, error) {
	a, err := l.Availability(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return a.Positions, nil
}

// Reservation is a short-lived claim on one position while a purchase is created
type Reservation struct {
	BookID   string
	Position models.Position
	key      string
	owner    string
	held     bool
	done     bool
}

// Reserve checks that position can be sold and takes a soft hold on it.
// Fails with ErrInvalidPosition, ErrSoldOut or ErrPositionHeld.
func (l *Ledger) Reserve(ctx context.Context, book *models.Book, position int) (*Reservation, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.Reserve")
	defer span.End()

	if book.Status != models.BookStatusActive {
		return nil, fmt.Errorf("book %s is %s: %w", book.ID, book.Status, apperr.ErrNotEligible)
	}
	if position < 1 || position > book.TotalPositions {
		return nil, fmt.Errorf("position %d outside 1..%d: %w", position, book.TotalPositions, apperr.ErrInvalidPosition)
	}
	pos, ok := book.Positions.Find(position)
	if !ok {
		return nil, fmt.Errorf("position %d has no price: %w", position, apperr.ErrInvalidPosition)
	}

	a, err := l.availability(ctx, book)
	if err != nil {
		return nil, err
	}
	if a.Available == 0 || contains(a.Sold, position) {
		return nil, fmt.Errorf("position %d: %w", position, apperr.ErrSoldOut)
	}

	r := &Reservation{
		BookID:   book.ID,
		Position: pos,
		key:      redisclient.HoldKey(book.ID, position),
		owner:    uuid.New().String(),
	}
	if err := l.acquire(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (l *Ledger) acquire(ctx context.Context, r *Reservation) error {
	if l.holds == nil {
		return nil
	}

	for attempt := 1; attempt <= holdAttempts; attempt++ {
		ok, err := l.holds.AcquireHold(ctx, r.key, r.owner, l.holdTTL)
		if err != nil {
			l.logger.Warn("Hold unavailable, relying on store re-check",
				zap.String("book_id", r.BookID),
				zap.Int("position", r.Position.Number),
				zap.Error(err))
			return nil
		}
		if ok {
			r.held = true
			return nil
		}
		if attempt == holdAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(holdRetryInterval):
		}
	}

	return fmt.Errorf("position %d: %w", r.Position.Number, apperr.ErrPositionHeld)
}

// Commit ends the reservation after the pending purchase is stored
func (l *Ledger) Commit(ctx context.Context, r *Reservation) {
	l.finish(ctx, r, "commit")
}

// Release abandons the reservation
func (l *Ledger) Release(ctx context.Context, r *Reservation) {
	l.finish(ctx, r, "release")
}

func (l *Ledger) finish(ctx context.Context, r *Reservation, op string) {
	if r == nil || r.done {
		return
	}
	r.done = true
	if !r.held || l.holds == nil {
		return
	}
	if _, err := l.holds.ReleaseHold(ctx, r.key, r.owner); err != nil {
		l.logger.Warn("Failed to release hold, it will expire",
			zap.String("op", op),
			zap.String("book_id", r.BookID),
			zap.Int("position", r.Position.Number),
			zap.Error(err))
	}
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
