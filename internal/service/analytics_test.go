package service

import (
	"context"
	"testing"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.seedBook(t, 9000, 8000, 7000)

	f.complete(t, f.submit(t, book, 1, models.PaymentMethodWallet))
	f.advance(24 * time.Hour)
	f.complete(t, f.submit(t, book, 2, models.PaymentMethodWallet))
	failed := f.submit(t, book, 3, models.PaymentMethodWallet)
	ok, err := f.store.TransitionStatus(ctx, failed.ID, models.PaymentStatusPending, models.PaymentStatusFailed, models.PaymentDetails{})
	require.NoError(t, err)
	require.True(t, ok)

	report, err := f.analytics.DailyStats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, report.Days)
	assert.Len(t, report.Daily, 2)
	assert.Equal(t, 2, report.CompletedCount)
	assert.Equal(t, int64(17000), report.CompletedRevenue)
	assert.Equal(t, 1, report.FailedCount)

	today, err := f.analytics.DailyStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, today.CompletedCount)
	assert.Equal(t, int64(8000), today.CompletedRevenue)

	for _, days := range []int{-1, 366} {
		_, err := f.analytics.DailyStats(ctx, days)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
}

func TestPaymentLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.seedBook(t, 9000), 1, models.PaymentMethodWallet)

	logs, err := f.analytics.PaymentLogs(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)

	f.attach(t, p, "TXN_LOG")
	f.wallet.webhook = walletReport("TXN_LOG", "COMPLETED", "SUCCESS")
	_, err = f.reconciler.HandleWebhook(ctx, "sig", nil)
	require.NoError(t, err)

	logs, err = f.analytics.PaymentLogs(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.PaymentEventCompleted, logs[0].EventType)
	assert.Equal(t, models.PaymentEventWebhookReceived, logs[1].EventType)

	_, err = f.analytics.PaymentLogs(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
