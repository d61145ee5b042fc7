package service

import (
	"context"
	"sync"
	"testing"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitCreatesPendingPurchase(t *testing.T) {
	f := newFixture(t)
	book := f.seedBook(t, 10000, 9000)

	p := f.submit(t, book, 2, models.PaymentMethodWallet)

	assert.Equal(t, models.PaymentStatusPending, p.PaymentStatus)
	assert.Equal(t, int64(9000), p.BaseAmount)
	assert.Equal(t, int64(0), p.DiscountAmount)
	assert.Equal(t, int64(9000), p.TotalAmount)
	assert.Equal(t, 2, p.Position())
	assert.Equal(t, testUser, p.UserID)
	assert.Nil(t, p.PaymentID)
	assert.Equal(t, 0, f.holds.count())
	assert.Equal(t, []string{models.EventTypePurchaseCreated}, f.publisher.purchaseTypes())

	stored := f.reload(t, p.ID)
	assert.Equal(t, int64(9000), stored.TotalAmount)
}

func TestSubmitWithCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.seedBook(t, 10000, 9000)
	f.seedCoupon(t, "SAVE10", models.DiscountTypePercentage, 10, intPtr(1))

	p, err := f.purchases.Submit(ctx, &SubmitRequest{
		UserID: testUser, BookID: book.ID, PositionNumber: 2,
		PaymentMethod: models.PaymentMethodWallet, CouponCode: "save10", Payer: testPayer,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(900), p.DiscountAmount)
	assert.Equal(t, int64(8100), p.TotalAmount)
	require.NotNil(t, p.CouponCode)
	assert.Equal(t, "SAVE10", *p.CouponCode)

	c, err := f.store.GetCoupon(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)

	_, err = f.purchases.Submit(ctx, &SubmitRequest{
		UserID: testUser, BookID: book.ID, PositionNumber: 1,
		PaymentMethod: models.PaymentMethodWallet, CouponCode: "SAVE10", Payer: testPayer,
	})
	assert.ErrorIs(t, err, apperr.ErrCouponExhausted)
}

func TestSubmitConcurrentCouponUse(t *testing.T) {
	f := newFixture(t)
	book := f.seedBook(t, 5000, 5000, 5000, 5000, 5000)
	f.seedCoupon(t, "ONCE", models.DiscountTypeFixed, 1000, intPtr(1))

	var wg sync.WaitGroup
	errs := make([]error, book.TotalPositions)
	for i := 0; i < book.TotalPositions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.purchases.Submit(context.Background(), &SubmitRequest{
				UserID: testUser, BookID: book.ID, PositionNumber: i + 1,
				PaymentMethod: models.PaymentMethodWallet, CouponCode: "ONCE", Payer: testPayer,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrCouponExhausted)
	}
	assert.Equal(t, 1, succeeded)

	c, err := f.store.GetCoupon(context.Background(), "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
}

func TestSubmitValidationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.seedBook(t, 10000, 9000)
	f.complete(t, f.submit(t, book, 1, models.PaymentMethodWallet))

	tests := []struct {
		name   string
		req    SubmitRequest
		field  string
		target error
	}{
		{
			name:  "bad phone before sold position",
			req:   SubmitRequest{BookID: book.ID, PositionNumber: 1, Payer: models.Payer{Name: "Asha", Phone: "12345"}},
			field: "phone_number",
		},
		{
			name:  "short name",
			req:   SubmitRequest{BookID: book.ID, PositionNumber: 2, Payer: models.Payer{Name: " <a> ", Phone: "9876543210"}},
			field: "name",
		},
		{
			name: "bank account required",
			req: SubmitRequest{BookID: book.ID, PositionNumber: 2, PaymentMethod: models.PaymentMethodBankVerify,
				Payer: models.Payer{Name: "Asha", Phone: "9876543210", IFSC: "HDFC0001234"}},
			field: "bank_account",
		},
		{
			name: "ifsc format",
			req: SubmitRequest{BookID: book.ID, PositionNumber: 2, PaymentMethod: models.PaymentMethodBankVerify,
				Payer: models.Payer{Name: "Asha", Phone: "9876543210", AccountNumber: "123456789012", IFSC: "HDFC1234"}},
			field: "ifsc",
		},
		{
			name:   "sold position",
			req:    SubmitRequest{BookID: book.ID, PositionNumber: 1, Payer: testPayer},
			target: apperr.ErrSoldOut,
		},
		{
			name:   "position out of range",
			req:    SubmitRequest{BookID: book.ID, PositionNumber: 3, Payer: testPayer},
			target: apperr.ErrInvalidPosition,
		},
		{
			name:   "unknown book",
			req:    SubmitRequest{BookID: "missing", PositionNumber: 1, Payer: testPayer},
			target: apperr.ErrNotFound,
		},
		{
			name:   "unknown coupon",
			req:    SubmitRequest{BookID: book.ID, PositionNumber: 2, Payer: testPayer, CouponCode: "GHOST"},
			target: apperr.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.UserID = testUser
			_, err := f.purchases.Submit(ctx, &req)
			require.Error(t, err)
			if tt.field != "" {
				var fe *apperr.FieldError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, tt.field, fe.Field)
			} else {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
	assert.Equal(t, 0, f.holds.count())
}

func TestSubmitAmountCeiling(t *testing.T) {
	f := newFixture(t)
	book := f.seedBook(t, 600000)

	_, err := f.purchases.Submit(context.Background(), &SubmitRequest{
		UserID: testUser, BookID: book.ID, PositionNumber: 1, Payer: testPayer,
	})
	var fe *apperr.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "amount", fe.Field)
}

func TestSubmitFullDiscountIsRejected(t *testing.T) {
	f := newFixture(t)
	book := f.seedBook(t, 5000)
	f.seedCoupon(t, "FREE", models.DiscountTypePercentage, 100, nil)

	_, err := f.purchases.Submit(context.Background(), &SubmitRequest{
		UserID: testUser, BookID: book.ID, PositionNumber: 1, Payer: testPayer, CouponCode: "FREE",
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	c, err := f.store.GetCoupon(context.Background(), "FREE")
	require.NoError(t, err)
	assert.Equal(t, 0, c.UsedCount)
}

func TestSubmitSanitizesName(t *testing.T) {
	f := newFixture(t)
	book := f.seedBook(t, 5000)

	p, err := f.purchases.Submit(context.Background(), &SubmitRequest{
		UserID: testUser, BookID: book.ID, PositionNumber: 1,
		Payer: models.Payer{Name: "  <Asha> Rao ", Phone: "9876543210"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", p.BuyerName)
	assert.Equal(t, models.PaymentMethodWallet, p.PaymentMethod)
}

func TestGetForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.seedBook(t, 5000), 1, models.PaymentMethodWallet)

	got, err := f.purchases.GetForUser(ctx, p.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.purchases.GetForUser(ctx, p.ID, "someone-else")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.purchases.GetForUser(ctx, "missing", testUser)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
