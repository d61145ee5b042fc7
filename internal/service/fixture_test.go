package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"authorship-service/internal/gateway"
	"authorship-service/internal/models"
	"authorship-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testUser = "user-1"

var testPayer = models.Payer{Name: "Asha Rao", Phone: "9876543210", Email: "asha@example.com"}

type fakeHolds struct {
	mu   sync.Mutex
	held map[string]string
	err  error
}

func newFakeHolds() *fakeHolds {
	return &fakeHolds{held: make(map[string]string)}
}

func (h *fakeHolds) AcquireHold(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return false, h.err
	}
	if _, ok := h.held[key]; ok {
		return false, nil
	}
	h.held[key] = owner
	return true, nil
}

func (h *fakeHolds) ReleaseHold(ctx context.Context, key, owner string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.held[key] != owner {
		return false, nil
	}
	delete(h.held, key)
	return true, nil
}

func (h *fakeHolds) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.held)
}

type fakeDeduper struct {
	mu   sync.Mutex
	keys map[string]interface{}
}

func (d *fakeDeduper) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.keys[key]
	return ok, nil
}

func (d *fakeDeduper) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = value
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	purchases []*models.PurchaseEvent
	refunds   []*models.RefundEvent
	conflicts []*models.ConflictEvent
}

func (p *recordingPublisher) PublishPurchaseEvent(ctx context.Context, e *models.PurchaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purchases = append(p.purchases, e)
	return nil
}

func (p *recordingPublisher) PublishRefundEvent(ctx context.Context, e *models.RefundEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, e)
	return nil
}

func (p *recordingPublisher) PublishConflictEvent(ctx context.Context, e *models.ConflictEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conflicts = append(p.conflicts, e)
	return nil
}

func (p *recordingPublisher) purchaseTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []string
	for _, e := range p.purchases {
		types = append(types, e.EventType)
	}
	return types
}

type fakeWallet struct {
	mu         sync.Mutex
	statuses   map[string]*gateway.StatusReport
	statusErr  error
	webhook    *gateway.StatusReport
	webhookErr error
	refundErr  error
	refunds    []*gateway.RefundRequest
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{statuses: make(map[string]*gateway.StatusReport)}
}

func (w *fakeWallet) CheckStatus(ctx context.Context, transactionID string) (*gateway.StatusReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.statusErr != nil {
		return nil, w.statusErr
	}
	r, ok := w.statuses[transactionID]
	if !ok {
		return nil, errors.New("no status stubbed for " + transactionID)
	}
	return r, nil
}

func (w *fakeWallet) VerifyWebhook(signature string, body []byte) (*gateway.StatusReport, error) {
	if w.webhookErr != nil {
		return nil, w.webhookErr
	}
	return w.webhook, nil
}

func (w *fakeWallet) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refunds = append(w.refunds, req)
	if w.refundErr != nil {
		return nil, w.refundErr
	}
	return &gateway.RefundResult{Code: "PAYMENT_PENDING", Raw: json.RawMessage(`{"success":true}`)}, nil
}

func walletReport(txn, state, responseCode string) *gateway.StatusReport {
	raw, _ := json.Marshal(map[string]string{"state": state, "responseCode": responseCode, "merchantTransactionId": txn})
	return &gateway.StatusReport{
		Success:               state == "COMPLETED",
		Code:                  "PAYMENT_" + state,
		MerchantTransactionID: txn,
		GatewayTransactionID:  "T" + txn,
		State:                 state,
		ResponseCode:          responseCode,
		HasData:               true,
		Raw:                   raw,
	}
}

type fakeGateway struct {
	mu       sync.Mutex
	method   models.PaymentMethod
	result   gateway.InitiateResult
	err      error
	requests []*gateway.InitiateRequest
}

func (g *fakeGateway) Method() models.PaymentMethod { return g.method }

func (g *fakeGateway) Initiate(ctx context.Context, req *gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	r := g.result
	if r.TransactionID == "" {
		r.TransactionID = req.TransactionID
	}
	return &r, nil
}

type fixture struct {
	clock      time.Time
	store      *store.MemoryStore
	holds      *fakeHolds
	deduper    *fakeDeduper
	publisher  *recordingPublisher
	wallet     *fakeWallet
	ledger     *Ledger
	coupons    *CouponEvaluator
	purchases  *PurchaseService
	reconciler *Reconciler
	refunds    *RefundService
	catalog    *CatalogService
	analytics  *AnalyticsService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		holds:     newFakeHolds(),
		deduper:   &fakeDeduper{keys: make(map[string]interface{})},
		publisher: &recordingPublisher{},
		wallet:    newFakeWallet(),
	}
	now := func() time.Time { return f.clock }

	f.store = store.NewMemoryStore(store.WithClock(now))
	f.ledger = NewLedger(f.store, f.holds, time.Second)
	f.coupons = NewCouponEvaluator(f.store)
	f.coupons.now = now
	f.purchases = NewPurchaseService(f.store, f.ledger, f.coupons, f.publisher)
	f.reconciler = NewReconciler(f.store, f.wallet, f.deduper, f.publisher, ReconcilerConfig{
		DedupeTTL:        time.Hour,
		PendingPollAfter: 5 * time.Minute,
		AbandonAfter:     time.Hour,
	})
	f.reconciler.now = now
	f.refunds = NewRefundService(f.store, f.wallet, f.publisher)
	f.refunds.now = now
	f.catalog = NewCatalogService(f.store, f.ledger, nil)
	f.analytics = NewAnalyticsService(f.store)
	f.analytics.now = now
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) seedBook(t *testing.T, prices ...int64) *models.Book {
	t.Helper()

	positions := make(models.PositionList, 0, len(prices))
	for i, price := range prices {
		positions = append(positions, models.Position{Number: i + 1, Price: price})
	}
	book := &models.Book{
		ID:             uuid.New().String(),
		Title:          "The Monsoon Anthology",
		Genre:          "Fiction",
		TotalPositions: len(prices),
		Positions:      positions,
		Status:         models.BookStatusActive,
	}
	require.NoError(t, f.store.CreateBook(context.Background(), book))
	return book
}

func (f *fixture) seedCoupon(t *testing.T, code string, kind models.DiscountType, value int64, maxUses *int) {
	t.Helper()

	require.NoError(t, f.store.CreateCoupon(context.Background(), &models.Coupon{
		ID:            uuid.New().String(),
		Code:          code,
		DiscountType:  kind,
		DiscountValue: value,
		MaxUses:       maxUses,
		IsActive:      true,
	}))
}

func (f *fixture) submit(t *testing.T, book *models.Book, position int, method models.PaymentMethod) *models.Purchase {
	t.Helper()

	payer := testPayer
	if method == models.PaymentMethodBankVerify {
		payer = bankPayer
	}
	p, err := f.purchases.Submit(context.Background(), &SubmitRequest{
		UserID:         testUser,
		BookID:         book.ID,
		PositionNumber: position,
		PaymentMethod:  method,
		Payer:          payer,
	})
	require.NoError(t, err)
	return p
}

// attach stores txn as the purchase's payment id
func (f *fixture) attach(t *testing.T, p *models.Purchase, txn string) {
	t.Helper()

	ok, err := f.store.SetPaymentReference(context.Background(), p.ID, p.PaymentID, txn, p.PaymentMethod, models.PaymentDetails{})
	require.NoError(t, err)
	require.True(t, ok)
	p.PaymentID = &txn
}

// complete moves a purchase straight to completed
func (f *fixture) complete(t *testing.T, p *models.Purchase) {
	t.Helper()

	ok, err := f.store.TransitionStatus(context.Background(), p.ID, models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentDetails{})
	require.NoError(t, err)
	require.True(t, ok)
}

func (f *fixture) reload(t *testing.T, id string) *models.Purchase {
	t.Helper()

	p, err := f.store.GetPurchase(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) eventTypes(t *testing.T, purchaseID string) []models.PaymentEventType {
	t.Helper()

	events, err := f.store.ListPaymentEvents(context.Background(), purchaseID)
	require.NoError(t, err)
	types := make([]models.PaymentEventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

func countEvents(types []models.PaymentEventType, want models.PaymentEventType) int {
	n := 0
	for _, t := range types {
		if t == want {
			n++
		}
	}
	return n
}

func intPtr(n int) *int { return &n }
