package store

import (
	"context"
	"time"

	"authorship-service/internal/models"
)

// BookStore persists books and answers ledger queries derived from purchases.
type BookStore interface {
	CreateBook(ctx context.Context, book *models.Book) error
	GetBook(ctx context.Context, id string) (*models.Book, error)
	ListBooks(ctx context.Context) ([]models.Book, error)
	UpdateBook(ctx context.Context, book *models.Book) error
	// DeleteBook removes a book with no purchases, or archives it (status inactive,
	// pending purchases failed) when only unpaid purchases exist. Each failed
	// purchase gets a failed payment event and its id is returned. It refuses with
	// apperr.ErrNotEligible while completed or refunded purchases exist.
	DeleteBook(ctx context.Context, id string) (archived bool, failed []string, err error)
	// CompletedPositions returns the numbered positions held by completed purchases and
	// the count of all completed purchases for the book.
	CompletedPositions(ctx context.Context, bookID string) (positions []int, completed int, err error)
}

// CouponStore persists coupons keyed by uppercase code.
type CouponStore interface {
	CreateCoupon(ctx context.Context, coupon *models.Coupon) error
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
	ListCoupons(ctx context.Context) ([]models.Coupon, error)
	UpdateCoupon(ctx context.Context, coupon *models.Coupon) error
	SetCouponActive(ctx context.Context, code string, active bool) error
	DeleteCoupon(ctx context.Context, code string) error
}

// PurchaseStore persists purchases. Every status change goes through TransitionStatus.
type PurchaseStore interface {
	// CreatePurchase re-checks that the position has no completed purchase, redeems
	// the coupon with a bounded increment, and inserts the purchase atomically.
	CreatePurchase(ctx context.Context, p *models.Purchase) error
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)
	// GetPurchaseByPaymentID matches the current payment id or a previous attempt.
	GetPurchaseByPaymentID(ctx context.Context, paymentID string) (*models.Purchase, error)
	ListPurchasesByBook(ctx context.Context, bookID string) ([]models.Purchase, error)
	ListPendingPurchases(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Purchase, error)
	// SetPaymentReference attaches a gateway correlation id to a pending purchase whose
	// current payment id equals prev.
	SetPaymentReference(ctx context.Context, id string, prev *string, paymentID string, method models.PaymentMethod, patch models.PaymentDetails) (bool, error)
	// TransitionStatus moves a purchase from one status to another only if its status is
	// still from. It reports false when another writer got there first.
	TransitionStatus(ctx context.Context, id string, from, to models.PaymentStatus, patch models.PaymentDetails) (bool, error)
	MergePaymentDetails(ctx context.Context, id string, patch models.PaymentDetails) error
}

// EventStore is the append-only payment log.
type EventStore interface {
	AppendPaymentEvent(ctx context.Context, event *models.PaymentEvent) error
	ListPaymentEvents(ctx context.Context, purchaseID string) ([]models.PaymentEvent, error)
	PaymentAnalytics(ctx context.Context, since time.Time) ([]models.DailyPaymentStats, error)
}

// Repository is the full persistence surface used by the services.
type Repository interface {
	BookStore
	CouponStore
	PurchaseStore
	EventStore
	Ping(ctx context.Context) error
	Close() error
}
