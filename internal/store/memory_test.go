package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBook(t *testing.T, s *MemoryStore, id string) *models.Book {
	t.Helper()
	b := &models.Book{
		ID:             id,
		Title:          "Monsoon Letters",
		Genre:          "Fiction",
		TotalPositions: 4,
		Positions:      models.DefaultPricing(4),
		Status:         models.BookStatusActive,
	}
	require.NoError(t, s.CreateBook(context.Background(), b))
	return b
}

func newPurchase(id, bookID string, position int) *models.Purchase {
	pos := position
	return &models.Purchase{
		ID:                 id,
		BookID:             bookID,
		UserID:             "u-" + id,
		PositionNumber:     &pos,
		PositionsPurchased: 1,
		BaseAmount:         3000,
		TotalAmount:        3000,
		PaymentStatus:      models.PaymentStatusPending,
		PaymentMethod:      models.PaymentMethodWallet,
		BuyerName:          "Ravi",
		BuyerPhone:         "9876543210",
	}
}

func TestMemoryTwoPendingSamePositionThenOneCompletes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedBook(t, s, "b-1")

	require.NoError(t, s.CreatePurchase(ctx, newPurchase("p-1", "b-1", 1)))
	require.NoError(t, s.CreatePurchase(ctx, newPurchase("p-2", "b-1", 1)))

	ok, err := s.TransitionStatus(ctx, "p-1", models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentDetails{})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.TransitionStatus(ctx, "p-2", models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentDetails{})
	assert.ErrorIs(t, err, apperr.ErrSoldOut)

	p2, err := s.GetPurchase(ctx, "p-2")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, p2.PaymentStatus)

	err = s.CreatePurchase(ctx, newPurchase("p-3", "b-1", 1))
	assert.ErrorIs(t, err, apperr.ErrSoldOut)

	positions, completed, err := s.CompletedPositions(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, positions)
	assert.Equal(t, 1, completed)
}

func TestMemoryTransitionStatusIsCompareAndSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedBook(t, s, "b-1")
	require.NoError(t, s.CreatePurchase(ctx, newPurchase("p-1", "b-1", 2)))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TransitionStatus(ctx, "p-1", models.PaymentStatusPending, models.PaymentStatusFailed, models.PaymentDetails{})
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestMemoryCouponRedemptionIsBounded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedBook(t, s, "b-1")

	maxUses := 1
	require.NoError(t, s.CreateCoupon(ctx, &models.Coupon{
		ID: "c-1", Code: "once", DiscountType: models.DiscountTypeFixed,
		DiscountValue: 500, MaxUses: &maxUses, IsActive: true,
	}))

	var succeeded, exhausted int32
	var wg sync.WaitGroup
	for i := 1; i <= 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := newPurchase(fmt.Sprintf("p-%d", n), "b-1", n)
			code := "ONCE"
			p.CouponCode = &code
			err := s.CreatePurchase(ctx, p)
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case assert.ErrorIs(t, err, apperr.ErrCouponExhausted):
				atomic.AddInt32(&exhausted, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, int32(3), exhausted)

	c, err := s.GetCoupon(ctx, "once")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
}

func TestMemoryDuplicatePurchaseKeepsCoupon(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedBook(t, s, "b-1")
	require.NoError(t, s.CreateCoupon(ctx, &models.Coupon{
		ID: "c-1", Code: "SAVE", DiscountType: models.DiscountTypeFixed,
		DiscountValue: 500, IsActive: true,
	}))

	code := "SAVE"
	p := newPurchase("p-1", "b-1", 1)
	p.CouponCode = &code
	require.NoError(t, s.CreatePurchase(ctx, p))

	dup := newPurchase("p-1", "b-1", 2)
	dup.CouponCode = &code
	err := s.CreatePurchase(ctx, dup)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	c, err := s.GetCoupon(ctx, "save")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
}

func TestMemoryGetPurchaseByPreviousAttempt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedBook(t, s, "b-1")
	require.NoError(t, s.CreatePurchase(ctx, newPurchase("p-1", "b-1", 1)))

	ok, err := s.SetPaymentReference(ctx, "p-1", nil, "TXN_1", models.PaymentMethodWallet, models.PaymentDetails{})
	require.NoError(t, err)
	require.True(t, ok)

	prev := "TXN_1"
	ok, err = s.SetPaymentReference(ctx, "p-1", &prev, "TXN_2", models.PaymentMethodWallet,
		models.PaymentDetails{PreviousAttempts: []string{"TXN_1"}})
	require.NoError(t, err)
	require.True(t, ok)

	stale := "TXN_0"
	ok, err = s.SetPaymentReference(ctx, "p-1", &stale, "TXN_3", models.PaymentMethodWallet, models.PaymentDetails{})
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := s.GetPurchaseByPaymentID(ctx, "TXN_1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, "TXN_2", p.PaymentRef())

	_, err = s.GetPurchaseByPaymentID(ctx, "TXN_9")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryDeleteBook(t *testing.T) {
	ctx := context.Background()

	t.Run("no purchases deletes", func(t *testing.T) {
		s := NewMemoryStore()
		seedBook(t, s, "b-1")

		archived, failed, err := s.DeleteBook(ctx, "b-1")
		require.NoError(t, err)
		assert.False(t, archived)
		assert.Empty(t, failed)
		_, err = s.GetBook(ctx, "b-1")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("pending only archives", func(t *testing.T) {
		s := NewMemoryStore()
		seedBook(t, s, "b-1")
		require.NoError(t, s.CreatePurchase(ctx, newPurchase("p-1", "b-1", 1)))
		require.NoError(t, s.CreatePurchase(ctx, newPurchase("p-2", "b-1", 2)))
		_, err := s.TransitionStatus(ctx, "p-2", models.PaymentStatusPending, models.PaymentStatusFailed, models.PaymentDetails{})
		require.NoError(t, err)

		archived, failed, err := s.DeleteBook(ctx, "b-1")
		require.NoError(t, err)
		assert.True(t, archived)
		assert.Equal(t, []string{"p-1"}, failed)

		events, err := s.ListPaymentEvents(ctx, "p-1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, models.PaymentEventFailed, events[0].EventType)
		assert.Equal(t, "book_archived", events[0].EventData["reason"])
		events, err = s.ListPaymentEvents(ctx, "p-2")
		require.NoError(t, err)
		assert.Empty(t, events)

		b, err := s.GetBook(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, models.BookStatusInactive, b.Status)
		p, err := s.GetPurchase(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusFailed, p.PaymentStatus)
	})

	t.Run("completed purchase refuses", func(t *testing.T) {
		s := NewMemoryStore()
		seedBook(t, s, "b-1")
		require.NoError(t, s.CreatePurchase(ctx, newPurchase("p-1", "b-1", 1)))
		_, err := s.TransitionStatus(ctx, "p-1", models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentDetails{})
		require.NoError(t, err)

		_, _, err = s.DeleteBook(ctx, "b-1")
		assert.ErrorIs(t, err, apperr.ErrNotEligible)
	})
}

func TestMemoryUpdateBookKeepsPurchasedPositions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	b := seedBook(t, s, "b-1")
	require.NoError(t, s.CreatePurchase(ctx, newPurchase("p-1", "b-1", 3)))

	shrunk := *b
	shrunk.TotalPositions = 2
	shrunk.Positions = models.DefaultPricing(2)
	err := s.UpdateBook(ctx, &shrunk)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "Position 3 has a pending purchase")

	_, err = s.TransitionStatus(ctx, "p-1", models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentDetails{})
	require.NoError(t, err)
	err = s.UpdateBook(ctx, &shrunk)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "Position 3 is already sold")

	shrunk.TotalPositions = 3
	shrunk.Positions = models.DefaultPricing(3)
	require.NoError(t, s.UpdateBook(ctx, &shrunk))

	// a submission against the old layout is refused once the book shrank
	err = s.CreatePurchase(ctx, newPurchase("p-2", "b-1", 4))
	assert.ErrorIs(t, err, apperr.ErrInvalidPosition)
}

func TestMemoryListPendingPurchasesAndAnalytics(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := now
	s := NewMemoryStore(WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	seedBook(t, s, "b-1")

	require.NoError(t, s.CreatePurchase(ctx, newPurchase("p-old", "b-1", 1)))
	clock = now.Add(10 * time.Minute)
	require.NoError(t, s.CreatePurchase(ctx, newPurchase("p-new", "b-1", 2)))

	pending, err := s.ListPendingPurchases(ctx, now.Add(5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p-old", pending[0].ID)

	_, err = s.TransitionStatus(ctx, "p-new", models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentDetails{})
	require.NoError(t, err)

	stats, err := s.PaymentAnalytics(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].CompletedCount)
	assert.Equal(t, int64(3000), stats[0].CompletedRevenue)
}

func TestMemoryPaymentEventsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, et := range []models.PaymentEventType{models.PaymentEventInitiated, models.PaymentEventWebhookReceived, models.PaymentEventCompleted} {
		require.NoError(t, s.AppendPaymentEvent(ctx, &models.PaymentEvent{PurchaseID: "p-1", EventType: et}))
	}
	require.NoError(t, s.AppendPaymentEvent(ctx, &models.PaymentEvent{PurchaseID: "p-2", EventType: models.PaymentEventInitiated}))

	events, err := s.ListPaymentEvents(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.PaymentEventCompleted, events[0].EventType)
	assert.Equal(t, models.PaymentEventInitiated, events[2].EventType)
}
