package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
)

var _ Repository = (*MemoryStore)(nil)

// MemoryStore is an in-process Repository with the same conditional-write semantics
// as PostgresStore. It returns copies, never internal pointers.
type MemoryStore struct {
	mu        sync.RWMutex
	books     map[string]*models.Book
	coupons   map[string]*models.Coupon
	purchases map[string]*models.Purchase
	events    []models.PaymentEvent
	nextEvent int64
	now       func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		books:     make(map[string]*models.Book),
		coupons:   make(map[string]*models.Coupon),
		purchases: make(map[string]*models.Purchase),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                   { return nil }

func copyBook(b *models.Book) *models.Book {
	out := *b
	out.Positions = append(models.PositionList(nil), b.Positions...)
	return &out
}

func copyPurchase(p *models.Purchase) *models.Purchase {
	out := *p
	out.PaymentDetails = models.PaymentDetails{}.Merge(p.PaymentDetails)
	return &out
}

func (m *MemoryStore) CreateBook(ctx context.Context, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[book.ID]; ok {
		return apperr.Invalid("id", "Book already exists")
	}
	now := m.now()
	book.CreatedAt, book.UpdatedAt = now, now
	m.books[book.ID] = copyBook(book)
	return nil
}

func (m *MemoryStore) GetBook(ctx context.Context, id string) (*models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.books[id]
	if !ok {
		return nil, fmt.Errorf("book %s: %w", id, apperr.ErrNotFound)
	}
	return copyBook(b), nil
}

func (m *MemoryStore) ListBooks(ctx context.Context) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	books := make([]models.Book, 0, len(m.books))
	for _, b := range m.books {
		books = append(books, *copyBook(b))
	}
	sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt.After(books[j].CreatedAt) })
	return books, nil
}

func (m *MemoryStore) UpdateBook(ctx context.Context, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.books[book.ID]
	if !ok {
		return fmt.Errorf("book %s: %w", book.ID, apperr.ErrNotFound)
	}

	var usage positionUsage
	for _, p := range m.purchases {
		if p.BookID != book.ID {
			continue
		}
		if p.PaymentStatus == models.PaymentStatusCompleted {
			usage.Completed++
		}
		if p.PositionNumber == nil || *p.PositionNumber <= book.TotalPositions {
			continue
		}
		n := int64(*p.PositionNumber)
		switch p.PaymentStatus {
		case models.PaymentStatusCompleted:
			if !usage.SoldBeyond.Valid || n < usage.SoldBeyond.Int64 {
				usage.SoldBeyond = sql.NullInt64{Int64: n, Valid: true}
			}
		case models.PaymentStatusPending:
			if !usage.PendingBeyond.Valid || n < usage.PendingBeyond.Int64 {
				usage.PendingBeyond = sql.NullInt64{Int64: n, Valid: true}
			}
		}
	}
	if err := usage.check(book.TotalPositions); err != nil {
		return err
	}

	book.CreatedAt = existing.CreatedAt
	book.UpdatedAt = m.now()
	m.books[book.ID] = copyBook(book)
	return nil
}

func (m *MemoryStore) DeleteBook(ctx context.Context, id string) (bool, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[id]
	if !ok {
		return false, nil, fmt.Errorf("book %s: %w", id, apperr.ErrNotFound)
	}

	var paid, total int
	for _, p := range m.purchases {
		if p.BookID != id {
			continue
		}
		total++
		if p.PaymentStatus == models.PaymentStatusCompleted || p.PaymentStatus == models.PaymentStatusRefunded {
			paid++
		}
	}

	if paid > 0 {
		return false, nil, fmt.Errorf("book has %d paid purchase(s): %w", paid, apperr.ErrNotEligible)
	}
	if total == 0 {
		delete(m.books, id)
		return false, nil, nil
	}

	now := m.now()
	var failed []string
	for _, p := range m.purchases {
		if p.BookID != id || p.PaymentStatus != models.PaymentStatusPending {
			continue
		}
		p.PaymentStatus = models.PaymentStatusFailed
		p.UpdatedAt = now

		m.nextEvent++
		m.events = append(m.events, models.PaymentEvent{
			ID:            m.nextEvent,
			PurchaseID:    p.ID,
			TransactionID: p.PaymentRef(),
			EventType:     models.PaymentEventFailed,
			EventData:     archiveEventData(),
			CreatedAt:     now,
		})
		failed = append(failed, p.ID)
	}
	sort.Strings(failed)
	b.Status = models.BookStatusInactive
	b.UpdatedAt = now
	return true, failed, nil
}

func (m *MemoryStore) CompletedPositions(ctx context.Context, bookID string) ([]int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	positions := []int{}
	completed := 0
	for _, p := range m.purchases {
		if p.BookID != bookID || p.PaymentStatus != models.PaymentStatusCompleted {
			continue
		}
		completed++
		if p.PositionNumber != nil {
			positions = append(positions, *p.PositionNumber)
		}
	}
	sort.Ints(positions)
	return positions, completed, nil
}

func (m *MemoryStore) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.Code = strings.ToUpper(c.Code)
	if _, ok := m.coupons[c.Code]; ok {
		return apperr.Invalid("code", "Coupon code already exists")
	}
	c.CreatedAt = m.now()
	cp := *c
	m.coupons[c.Code] = &cp
	return nil
}

func (m *MemoryStore) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, fmt.Errorf("coupon %s: %w", code, apperr.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	coupons := make([]models.Coupon, 0, len(m.coupons))
	for _, c := range m.coupons {
		coupons = append(coupons, *c)
	}
	sort.Slice(coupons, func(i, j int) bool { return coupons[i].Code < coupons[j].Code })
	return coupons, nil
}

func (m *MemoryStore) UpdateCoupon(ctx context.Context, c *models.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.coupons[strings.ToUpper(c.Code)]
	if !ok {
		return fmt.Errorf("coupon %s: %w", c.Code, apperr.ErrNotFound)
	}
	existing.Description = c.Description
	existing.DiscountType = c.DiscountType
	existing.DiscountValue = c.DiscountValue
	existing.MaxUses = c.MaxUses
	existing.IsActive = c.IsActive
	existing.ExpiresAt = c.ExpiresAt
	return nil
}

func (m *MemoryStore) SetCouponActive(ctx context.Context, code string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.coupons[strings.ToUpper(code)]
	if !ok {
		return fmt.Errorf("coupon %s: %w", code, apperr.ErrNotFound)
	}
	c.IsActive = active
	return nil
}

func (m *MemoryStore) DeleteCoupon(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToUpper(code)
	if _, ok := m.coupons[key]; !ok {
		return fmt.Errorf("coupon %s: %w", code, apperr.ErrNotFound)
	}
	delete(m.coupons, key)
	return nil
}

func (m *MemoryStore) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[p.BookID]
	if !ok {
		return fmt.Errorf("book %s: %w", p.BookID, apperr.ErrNotFound)
	}
	if p.PositionNumber != nil && *p.PositionNumber > b.TotalPositions {
		return fmt.Errorf("position %d outside 1..%d: %w", *p.PositionNumber, b.TotalPositions, apperr.ErrInvalidPosition)
	}
	if p.PositionNumber != nil && m.positionSoldLocked(p.BookID, *p.PositionNumber, "") {
		return fmt.Errorf("position %d: %w", *p.PositionNumber, apperr.ErrSoldOut)
	}

	if _, ok := m.purchases[p.ID]; ok {
		return apperr.Invalid("id", "Purchase already exists")
	}

	now := m.now()
	if p.CouponCode != nil {
		c, ok := m.coupons[strings.ToUpper(*p.CouponCode)]
		if !ok || !c.Applicable(now) {
			return fmt.Errorf("coupon %s: %w", *p.CouponCode, apperr.ErrCouponExhausted)
		}
		c.UsedCount++
	}
	p.CreatedAt, p.UpdatedAt = now, now
	m.purchases[p.ID] = copyPurchase(p)
	return nil
}

func (m *MemoryStore) positionSoldLocked(bookID string, position int, exceptID string) bool {
	for _, other := range m.purchases {
		if other.ID == exceptID || other.BookID != bookID || other.PositionNumber == nil {
			continue
		}
		if *other.PositionNumber == position && other.PaymentStatus == models.PaymentStatusCompleted {
			return true
		}
	}
	return false
}

func (m *MemoryStore) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.purchases[id]
	if !ok {
		return nil, fmt.Errorf("purchase %s: %w", id, apperr.ErrNotFound)
	}
	return copyPurchase(p), nil
}

func (m *MemoryStore) GetPurchaseByPaymentID(ctx context.Context, paymentID string) (*models.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var fallback *models.Purchase
	for _, p := range m.purchases {
		if p.PaymentRef() == paymentID && paymentID != "" {
			return copyPurchase(p), nil
		}
		if fallback == nil && p.MatchesTransaction(paymentID) {
			fallback = p
		}
	}
	if fallback != nil {
		return copyPurchase(fallback), nil
	}
	return nil, fmt.Errorf("purchase for transaction %s: %w", paymentID, apperr.ErrNotFound)
}

func (m *MemoryStore) ListPurchasesByBook(ctx context.Context, bookID string) ([]models.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Purchase
	for _, p := range m.purchases {
		if p.BookID == bookID {
			out = append(out, *copyPurchase(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListPendingPurchases(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Purchase
	for _, p := range m.purchases {
		if p.PaymentStatus == models.PaymentStatusPending && p.UpdatedAt.Before(updatedBefore) {
			out = append(out, *copyPurchase(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SetPaymentReference(ctx context.Context, id string, prev *string, paymentID string, method models.PaymentMethod, patch models.PaymentDetails) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.purchases[id]
	if !ok || p.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	if !samePaymentID(p.PaymentID, prev) {
		return false, nil
	}
	for _, other := range m.purchases {
		if other.ID != id && other.PaymentRef() == paymentID {
			return false, apperr.Invalid("payment_id", "Transaction id already in use")
		}
	}

	ref := paymentID
	p.PaymentID = &ref
	p.PaymentMethod = method
	p.PaymentDetails = p.PaymentDetails.Merge(patch)
	p.UpdatedAt = m.now()
	return true, nil
}

func samePaymentID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *MemoryStore) TransitionStatus(ctx context.Context, id string, from, to models.PaymentStatus, patch models.PaymentDetails) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.purchases[id]
	if !ok || p.PaymentStatus != from {
		return false, nil
	}
	if to == models.PaymentStatusCompleted && p.PositionNumber != nil &&
		m.positionSoldLocked(p.BookID, *p.PositionNumber, p.ID) {
		return false, fmt.Errorf("purchase %s: %w", id, apperr.ErrSoldOut)
	}

	p.PaymentStatus = to
	p.PaymentDetails = p.PaymentDetails.Merge(patch)
	p.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) MergePaymentDetails(ctx context.Context, id string, patch models.PaymentDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.purchases[id]
	if !ok {
		return fmt.Errorf("purchase %s: %w", id, apperr.ErrNotFound)
	}
	p.PaymentDetails = p.PaymentDetails.Merge(patch)
	p.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) AppendPaymentEvent(ctx context.Context, e *models.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEvent++
	e.ID = m.nextEvent
	e.CreatedAt = m.now()
	cp := *e
	m.events = append(m.events, cp)
	return nil
}

func (m *MemoryStore) ListPaymentEvents(ctx context.Context, purchaseID string) ([]models.PaymentEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.PaymentEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].PurchaseID == purchaseID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) PaymentAnalytics(ctx context.Context, since time.Time) ([]models.DailyPaymentStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byDay := make(map[time.Time]*models.DailyPaymentStats)
	for _, p := range m.purchases {
		if p.UpdatedAt.Before(since) {
			continue
		}
		day := p.UpdatedAt.UTC().Truncate(24 * time.Hour)
		s, ok := byDay[day]
		if !ok {
			s = &models.DailyPaymentStats{PaymentDate: day}
			byDay[day] = s
		}
		switch p.PaymentStatus {
		case models.PaymentStatusCompleted:
			s.CompletedCount++
			s.CompletedRevenue += p.TotalAmount
		case models.PaymentStatusFailed:
			s.FailedCount++
		case models.PaymentStatusRefunded:
			s.RefundedCount++
		}
	}

	out := make([]models.DailyPaymentStats, 0, len(byDay))
	for _, s := range byDay {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentDate.After(out[j].PaymentDate) })
	return out, nil
}
