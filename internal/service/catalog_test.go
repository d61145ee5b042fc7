package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	key, contentType, body string
	err                    error
}

func (u *fakeUploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	b, _ := io.ReadAll(body)
	u.key, u.contentType, u.body = key, contentType, string(b)
	return "https://cdn.example/" + key, nil
}

func TestCreateBookDefaultPricing(t *testing.T) {
	f := newFixture(t)

	view, err := f.catalog.CreateBook(context.Background(), &BookInput{Title: "  Rainfall  ", TotalPositions: 2})
	require.NoError(t, err)
	assert.Equal(t, "Rainfall", view.Title)
	assert.Equal(t, models.BookStatusActive, view.Status)
	assert.Equal(t, models.PositionList{{Number: 1, Price: 10000}, {Number: 2, Price: 9000}}, view.Positions)
	assert.Equal(t, 4, view.TotalCopies)
	assert.Equal(t, 2, view.Availability.Available)
}

func TestCreateBookValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		input BookInput
		field string
	}{
		{"missing title", BookInput{TotalPositions: 2}, "title"},
		{"too many positions", BookInput{Title: "T", TotalPositions: models.MaxPositions + 1}, "total_positions"},
		{"pricing count", BookInput{Title: "T", TotalPositions: 2, Positions: models.PositionList{{Number: 1, Price: 100}}}, "positions"},
		{"pricing gap", BookInput{Title: "T", TotalPositions: 2, Positions: models.PositionList{{Number: 1, Price: 100}, {Number: 3, Price: 100}}}, "positions"},
		{"zero price", BookInput{Title: "T", TotalPositions: 1, Positions: models.PositionList{{Number: 1, Price: 0}}}, "positions"},
		{"bad status", BookInput{Title: "T", TotalPositions: 1, Status: "draft"}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			_, err := f.catalog.CreateBook(context.Background(), &in)
			var fe *apperr.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestUpdateBookKeepsSoldPositions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.seedBook(t, 8000, 7000, 6000)
	f.complete(t, f.submit(t, book, 3, models.PaymentMethodWallet))

	_, err := f.catalog.UpdateBook(ctx, book.ID, &BookInput{Title: book.Title, TotalPositions: 2})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	view, err := f.catalog.UpdateBook(ctx, book.ID, &BookInput{
		Title:          "Renamed",
		TotalPositions: 4,
		Positions: models.PositionList{
			{Number: 4, Price: 4000}, {Number: 1, Price: 7000}, {Number: 2, Price: 6000}, {Number: 3, Price: 5000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", view.Title)
	assert.Equal(t, 1, view.Positions[0].Number)
	assert.Equal(t, 3, view.Availability.Available)
	assert.Equal(t, []int{3}, view.Availability.Sold)
}

func TestUpdateBookKeepsPendingPositions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.seedBook(t, 8000, 7000, 6000)
	p := f.submit(t, book, 3, models.PaymentMethodWallet)

	_, err := f.catalog.UpdateBook(ctx, book.ID, &BookInput{Title: book.Title, TotalPositions: 2})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	stored, err := f.store.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.TotalPositions)

	f.complete(t, p)
	assert.Equal(t, models.PaymentStatusCompleted, f.reload(t, p.ID).PaymentStatus)
}

func TestDeleteBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unsold := f.seedBook(t, 9000)
	archived, err := f.catalog.DeleteBook(ctx, unsold.ID)
	require.NoError(t, err)
	assert.False(t, archived)
	_, err = f.catalog.GetBook(ctx, unsold.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	unpaid := f.seedBook(t, 9000)
	p := f.submit(t, unpaid, 1, models.PaymentMethodWallet)
	f.attach(t, p, "TXN_ARCHIVED")
	archived, err = f.catalog.DeleteBook(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.True(t, archived)
	assert.Equal(t, models.PaymentStatusFailed, f.reload(t, p.ID).PaymentStatus)

	// the archive leaves an audit trail like any other failure
	events, err := f.store.ListPaymentEvents(ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, models.PaymentEventFailed, events[0].EventType)
	assert.Equal(t, "TXN_ARCHIVED", events[0].TransactionID)
	assert.Equal(t, SourceAdmin, events[0].EventData["source"])

	visible, err := f.catalog.ListBooks(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, visible)
	all, err := f.catalog.ListBooks(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	paid := f.seedBook(t, 9000)
	f.complete(t, f.submit(t, paid, 1, models.PaymentMethodWallet))
	_, err = f.catalog.DeleteBook(ctx, paid.ID)
	assert.ErrorIs(t, err, apperr.ErrNotEligible)
}

func TestUploadCover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.seedBook(t, 9000)

	_, err := f.catalog.UploadCover(ctx, book.ID, "cover.png", "image/png", strings.NewReader("png"))
	assert.ErrorIs(t, err, apperr.ErrNotEligible)

	uploader := &fakeUploader{}
	catalog := NewCatalogService(f.store, f.ledger, uploader)

	_, err = catalog.UploadCover(ctx, book.ID, "cover.pdf", "application/pdf", strings.NewReader("pdf"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	view, err := catalog.UploadCover(ctx, book.ID, "Cover.PNG", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uploader.key, "covers/"+book.ID+"/"))
	assert.True(t, strings.HasSuffix(uploader.key, ".png"))
	assert.Equal(t, "png-bytes", uploader.body)
	assert.Equal(t, "https://cdn.example/"+uploader.key, view.CoverURL)

	uploader.err = errors.New("bucket missing")
	_, err = catalog.UploadCover(ctx, book.ID, "c.jpg", "image/jpeg", strings.NewReader("jpg"))
	assert.Error(t, err)

	stored, err := f.store.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, view.CoverURL, stored.CoverURL)
}
