package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
	"authorship-service/internal/store"
	"authorship-service/internal/util"
	"authorship-service/internal/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CoverUploader stores a cover image and returns its public URL.
// *storage.S3Uploader implements it.
type CoverUploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// CatalogService manages books and presents them with derived availability
type CatalogService struct {
	store    store.BookStore
	ledger   *Ledger
	uploader CoverUploader
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service. uploader may be nil.
func NewCatalogService(books store.BookStore, ledger *Ledger, uploader CoverUploader) *CatalogService {
	return &CatalogService{
		store:    books,
		ledger:   ledger,
		uploader: uploader,
		logger:   util.GetLogger(),
	}
}

// BookView is a book with its availability
type BookView struct {
	models.Book
	TotalCopies  int               `json:"total_copies"`
	Availability *BookAvailability `json:"availability"`
}

// BookInput holds admin-editable book fields. Positions default to the
// standard price ladder when empty.
type BookInput struct {
	Title          string              `json:"title" binding:"required"`
	Genre          string              `json:"genre"`
	Description    string              `json:"description"`
	TotalPositions int                 `json:"total_positions" binding:"required,min=1"`
	Positions      models.PositionList `json:"positions"`
	Status         models.BookStatus   `json:"status"`
}

func (in *BookInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Genre = strings.TrimSpace(in.Genre)
	if in.Title == "" {
		return apperr.Invalid("title", "Title is required")
	}
	if in.TotalPositions < 1 || in.TotalPositions > models.MaxPositions {
		return apperr.Invalid("total_positions", fmt.Sprintf("Total positions must be between 1 and %d", models.MaxPositions))
	}
	if in.Status == "" {
		in.Status = models.BookStatusActive
	}
	if !in.Status.IsValid() {
		return apperr.Invalid("status", "Unknown book status")
	}

	if len(in.Positions) == 0 {
		in.Positions = models.DefaultPricing(in.TotalPositions)
		return nil
	}
	if len(in.Positions) != in.TotalPositions {
		return apperr.Invalid("positions", "Pricing must list every position exactly once")
	}

	positions := append(models.PositionList(nil), in.Positions...)
	sort.Slice(positions, func(i, j int) bool { return positions[i].Number < positions[j].Number })
	for i, p := range positions {
		if p.Number != i+1 {
			return apperr.Invalid("positions", "Positions must be numbered 1 to total_positions")
		}
		if err := validator.ValidateAmount(p.Price); err != nil {
			return apperr.Invalid("positions", fmt.Sprintf("Position %d: price must be between 1 and %d", p.Number, validator.MaxAmount))
		}
	}
	in.Positions = positions
	return nil
}

// CreateBook validates and stores a new book
func (s *CatalogService) CreateBook(ctx context.Context, in *BookInput) (*BookView, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateBook")
	defer span.End()

	if err := in.normalize(); err != nil {
		return nil, err
	}

	book := &models.Book{
		ID:             uuid.New().String(),
		Title:          in.Title,
		Genre:          in.Genre,
		Description:    in.Description,
		TotalPositions: in.TotalPositions,
		Positions:      in.Positions,
		Status:         in.Status,
	}
	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}

	s.logger.Info("Book created", zap.String("book_id", book.ID), zap.Int("positions", book.TotalPositions))
	return s.view(ctx, book)
}

// UpdateBook replaces a book's details and pricing. Positions that already
// have a completed or pending purchase must survive with the same number;
// the store checks this under the book lock.
func (s *CatalogService) UpdateBook(ctx context.Context, id string, in *BookInput) (*BookView, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateBook")
	defer span.End()

	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	book.Title = in.Title
	book.Genre = in.Genre
	book.Description = in.Description
	book.TotalPositions = in.TotalPositions
	book.Positions = in.Positions
	book.Status = in.Status

	if err := s.store.UpdateBook(ctx, book); err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update book: %w", err)
	}
	return s.view(ctx, book)
}

// DeleteBook removes an unsold book, or archives it when unpaid purchases
// reference it. Books with paid purchases are kept.
func (s *CatalogService) DeleteBook(ctx context.Context, id string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteBook")
	defer span.End()

	archived, failed, err := s.store.DeleteBook(ctx, id)
	if err != nil {
		return false, err
	}
	for _, purchaseID := range failed {
		util.PaymentTransitionsTotal.WithLabelValues(SourceAdmin, string(models.PaymentStatusFailed)).Inc()
		s.logger.Info("Pending purchase failed by book archive",
			zap.String("purchase_id", purchaseID), zap.String("book_id", id))
	}
	s.logger.Info("Book deleted", zap.String("book_id", id), zap.Bool("archived", archived),
		zap.Int("failed_purchases", len(failed)))
	return archived, nil
}

// GetBook returns one book with availability
func (s *CatalogService) GetBook(ctx context.Context, id string) (*BookView, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetBook")
	defer span.End()

	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, book)
}

// ListBooks returns books newest first. Inactive books are hidden unless
// includeInactive is set.
func (s *CatalogService) ListBooks(ctx context.Context, includeInactive bool) ([]BookView, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListBooks")
	defer span.End()

	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]BookView, 0, len(books))
	for i := range books {
		if !includeInactive && books[i].Status == models.BookStatusInactive {
			continue
		}
		v, err := s.view(ctx, &books[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// UploadCover stores a cover image and points the book at it
func (s *CatalogService) UploadCover(ctx context.Context, id, filename, contentType string, body io.Reader) (*BookView, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UploadCover")
	defer span.End()

	if s.uploader == nil {
		return nil, fmt.Errorf("object storage not configured: %w", apperr.ErrNotEligible)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperr.Invalid("cover", "Cover must be an image")
	}

	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("covers/%s/%s%s", book.ID, uuid.New().String(), strings.ToLower(path.Ext(filename)))
	url, err := s.uploader.Upload(ctx, key, contentType, body)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to upload cover: %w", err)
	}

	book.CoverURL = url
	if err := s.store.UpdateBook(ctx, book); err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update book: %w", err)
	}
	return s.view(ctx, book)
}

func (s *CatalogService) view(ctx context.Context, book *models.Book) (*BookView, error) {
	a, err := s.ledger.availability(ctx, book)
	if err != nil {
		return nil, err
	}
	return &BookView{
		Book:         *book,
		TotalCopies:  book.TotalCopies(),
		Availability: a,
	}, nil
}
