package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
	"authorship-service/internal/store"
	"authorship-service/internal/util"

	"go.uber.org/zap"
)

// Observation sources.
const (
	SourceSync    = "sync"
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
	SourceSweep   = "sweep"
	SourceAdmin   = "admin"
)

const (
	maxTransitionAttempts = 3
	completionBlockedKey  = "completion_blocked"
	defaultSweepBatch     = 100
)

var errConcurrentUpdate = errors.New("purchase updated concurrently")

// Outcome classifies what an observed status does to a purchase.
type Outcome int

const (
	// OutcomeUnchanged: the purchase already has the observed status.
	OutcomeUnchanged Outcome = iota
	// OutcomeApplied: the observed status is written.
	OutcomeApplied
	// OutcomeStale: the observation is older than the stored state and is ignored.
	OutcomeStale
	// OutcomeConflict: two terminal states disagree. Logged, never written.
	OutcomeConflict
	// OutcomeRejected: the edge is not reachable through reconciliation.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeApplied:
		return "applied"
	case OutcomeStale:
		return "stale"
	case OutcomeConflict:
		return "conflict"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// Transition is the payment state machine. It returns the status to store and
// how the observation relates to the current status. Only pending moves
// forward. Every edge into refunded belongs to the refund flow: completed to
// refunded, and pending to refunded for a completion-blocked purchase.
func Transition(current, observed models.PaymentStatus) (models.PaymentStatus, Outcome) {
	if !current.IsValid() || !observed.IsValid() {
		return current, OutcomeRejected
	}
	if current == observed {
		return current, OutcomeUnchanged
	}
	if observed == models.PaymentStatusRefunded {
		return current, OutcomeRejected
	}

	switch current {
	case models.PaymentStatusPending:
		return observed, OutcomeApplied
	case models.PaymentStatusCompleted, models.PaymentStatusRefunded:
		if observed == models.PaymentStatusFailed {
			return current, OutcomeConflict
		}
		return current, OutcomeStale
	case models.PaymentStatusFailed:
		if observed == models.PaymentStatusCompleted {
			return current, OutcomeConflict
		}
		return current, OutcomeStale
	}
	return current, OutcomeRejected
}

// GatewayObservation is one report of a purchase's payment status
type GatewayObservation struct {
	PurchaseID    string
	TransactionID string
	Status        models.PaymentStatus
	Source        string
	Patch         models.PaymentDetails
}

// ApplyResult is the purchase after reconciliation
type ApplyResult struct {
	Purchase *models.Purchase     `json:"purchase"`
	Outcome  Outcome              `json:"outcome"`
	Previous models.PaymentStatus `json:"previous_status"`
}

// ReconcilerConfig tunes the webhook dedupe window and the pending sweep
type ReconcilerConfig struct {
	DedupeTTL        time.Duration
	PendingPollAfter time.Duration
	AbandonAfter     time.Duration
	SweepBatch       int
}

// Reconciler converges purchase status from sync responses, webhooks and polls
type Reconciler struct {
	store     store.Repository
	wallet    WalletClient
	deduper   Deduper
	publisher EventPublisher
	events    *paymentLog
	config    ReconcilerConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewReconciler creates a new reconciler. wallet and deduper may be nil.
func NewReconciler(repo store.Repository, wallet WalletClient, deduper Deduper, publisher EventPublisher, config ReconcilerConfig) *Reconciler {
	if config.DedupeTTL <= 0 {
		config.DedupeTTL = 24 * time.Hour
	}
	if config.PendingPollAfter <= 0 {
		config.PendingPollAfter = 5 * time.Minute
	}
	if config.AbandonAfter <= 0 {
		config.AbandonAfter = time.Hour
	}
	if config.SweepBatch <= 0 {
		config.SweepBatch = defaultSweepBatch
	}
	logger := util.GetLogger()
	return &Reconciler{
		store:     repo,
		wallet:    wallet,
		deduper:   deduper,
		publisher: publisherOrNoop(publisher),
		events:    &paymentLog{store: repo, logger: logger},
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Apply reconciles one observation through a compare-and-set on the current
// status. A lost race is retried against the fresh record.
func (r *Reconciler) Apply(ctx context.Context, obs *GatewayObservation) (*ApplyResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Apply")
	defer span.End()

	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		p, err := r.store.GetPurchase(ctx, obs.PurchaseID)
		if err != nil {
			return nil, err
		}

		next, outcome := Transition(p.PaymentStatus, obs.Status)
		if outcome == OutcomeApplied && obs.TransactionID != "" && obs.TransactionID != p.PaymentRef() &&
			obs.Status != models.PaymentStatusCompleted {
			// a superseded attempt failing says nothing about the current one
			outcome = OutcomeStale
		}

		result := &ApplyResult{Purchase: p, Outcome: outcome, Previous: p.PaymentStatus}

		switch outcome {
		case OutcomeUnchanged:
			if !obs.Patch.IsEmpty() {
				if err := r.store.MergePaymentDetails(ctx, p.ID, obs.Patch); err != nil {
					return nil, fmt.Errorf("failed to merge payment details: %w", err)
				}
				p.PaymentDetails = p.PaymentDetails.Merge(obs.Patch)
			}
			return result, nil

		case OutcomeStale, OutcomeRejected:
			r.logger.Info("Ignoring payment observation",
				zap.String("purchase_id", p.ID),
				zap.String("transaction_id", obs.TransactionID),
				zap.String("source", obs.Source),
				zap.String("status", string(p.PaymentStatus)),
				zap.String("observed", string(obs.Status)),
				zap.Stringer("outcome", outcome))
			return result, nil

		case OutcomeConflict:
			r.recordConflict(ctx, p, obs, obs.Patch)
			return result, nil
		}

		ok, err := r.store.TransitionStatus(ctx, p.ID, p.PaymentStatus, next, obs.Patch)
		if errors.Is(err, apperr.ErrSoldOut) {
			return r.blockCompletion(ctx, p, obs, err)
		}
		if err != nil {
			util.RecordError(span, err)
			return nil, fmt.Errorf("failed to transition purchase: %w", err)
		}
		if !ok {
			r.logger.Debug("Lost status race, retrying",
				zap.String("purchase_id", p.ID),
				zap.Int("attempt", attempt))
			continue
		}

		p.PaymentStatus = next
		p.PaymentDetails = p.PaymentDetails.Merge(obs.Patch)
		r.applied(ctx, p, obs, result.Previous)
		return result, nil
	}

	return nil, fmt.Errorf("purchase %s: %w", obs.PurchaseID, errConcurrentUpdate)
}

func (r *Reconciler) applied(ctx context.Context, p *models.Purchase, obs *GatewayObservation, previous models.PaymentStatus) {
	util.PaymentTransitionsTotal.WithLabelValues(obs.Source, string(p.PaymentStatus)).Inc()

	r.logger.Info("Payment status updated",
		zap.String("purchase_id", p.ID),
		zap.String("transaction_id", obs.TransactionID),
		zap.String("source", obs.Source),
		zap.String("from", string(previous)),
		zap.String("status", string(p.PaymentStatus)))

	eventType := models.PaymentEventFailed
	kafkaType := models.EventTypePurchaseFailed
	if p.PaymentStatus == models.PaymentStatusCompleted {
		eventType = models.PaymentEventCompleted
		kafkaType = models.EventTypePurchaseCompleted
	}

	r.events.record(ctx, p.ID, obs.TransactionID, eventType, models.EventData{
		"source":          obs.Source,
		"previous_status": string(previous),
		"status":          string(p.PaymentStatus),
	})

	var title string
	if book, err := r.store.GetBook(ctx, p.BookID); err == nil {
		title = book.Title
	}
	if err := r.publisher.PublishPurchaseEvent(ctx, newPurchaseEvent(kafkaType, p, title, obs.Source)); err != nil {
		r.logger.Error("Failed to publish purchase event",
			zap.String("purchase_id", p.ID),
			zap.String("event_type", kafkaType),
			zap.Error(err))
	}
}

// recordConflict logs a terminal disagreement and keeps the observation in the
// payment details for manual review.
func (r *Reconciler) recordConflict(ctx context.Context, p *models.Purchase, obs *GatewayObservation, patch models.PaymentDetails) {
	util.PaymentConflictsTotal.WithLabelValues(obs.Source).Inc()

	r.logger.Warn("Payment status conflict",
		zap.String("purchase_id", p.ID),
		zap.String("transaction_id", obs.TransactionID),
		zap.String("source", obs.Source),
		zap.String("status", string(p.PaymentStatus)),
		zap.String("observed", string(obs.Status)))

	if !patch.IsEmpty() {
		if err := r.store.MergePaymentDetails(ctx, p.ID, patch); err != nil {
			r.logger.Error("Failed to keep conflicting observation",
				zap.String("purchase_id", p.ID), zap.Error(err))
		} else {
			p.PaymentDetails = p.PaymentDetails.Merge(patch)
		}
	}

	r.events.record(ctx, p.ID, obs.TransactionID, models.PaymentEventConflict, models.EventData{
		"source":          obs.Source,
		"current_status":  string(p.PaymentStatus),
		"observed_status": string(obs.Status),
	})

	event := &models.ConflictEvent{
		BaseEvent:      newBaseEvent(models.EventTypePaymentConflict),
		PurchaseID:     p.ID,
		TransactionID:  obs.TransactionID,
		CurrentStatus:  p.PaymentStatus,
		ObservedStatus: obs.Status,
		Source:         obs.Source,
	}
	if err := r.publisher.PublishConflictEvent(ctx, event); err != nil {
		r.logger.Error("Failed to publish conflict event",
			zap.String("purchase_id", p.ID), zap.Error(err))
	}
}

// blockCompletion handles a payment that succeeded for a position another
// purchase already completed. The purchase stays pending and is flagged so the
// sweep leaves it; RefundService returns the money.
func (r *Reconciler) blockCompletion(ctx context.Context, p *models.Purchase, obs *GatewayObservation, cause error) (*ApplyResult, error) {
	extra := make(map[string]json.RawMessage, len(p.PaymentDetails.Extra)+1)
	for k, v := range p.PaymentDetails.Extra {
		extra[k] = v
	}
	extra[completionBlockedKey] = json.RawMessage(`true`)

	patch := obs.Patch
	patch.Extra = extra
	r.recordConflict(ctx, p, obs, patch)

	return &ApplyResult{Purchase: p, Outcome: OutcomeConflict, Previous: p.PaymentStatus},
		fmt.Errorf("payment received for a sold position: %w", cause)
}

func completionBlocked(p *models.Purchase) bool {
	_, ok := p.PaymentDetails.Extra[completionBlockedKey]
	return ok
}

// HandleWebhook verifies and reconciles a wallet callback. Redelivery of the
// same state is acknowledged without touching the purchase.
func (r *Reconciler) HandleWebhook(ctx context.Context, signature string, body []byte) (*ApplyResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleWebhook")
	defer span.End()

	if r.wallet == nil {
		return nil, fmt.Errorf("wallet gateway not configured: %w", apperr.ErrGatewayUnavailable)
	}

	report, err := r.wallet.VerifyWebhook(signature, body)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, apperr.ErrInvalidSignature) {
			reason = "signature"
		}
		util.WebhookRejectedTotal.WithLabelValues(reason).Inc()
		r.logger.Warn("Webhook rejected", zap.String("reason", reason), zap.Error(err))
		return nil, err
	}

	txn := report.MerchantTransactionID
	status := report.WebhookStatus()
	if report.State == "" {
		r.logger.Warn("Webhook without payment state",
			zap.String("transaction_id", txn),
			zap.String("code", report.Code),
			zap.String("status", string(status)))
	}

	p, err := r.store.GetPurchaseByPaymentID(ctx, txn)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			util.WebhookRejectedTotal.WithLabelValues("unknown_transaction").Inc()
			r.logger.Warn("Webhook for unknown transaction",
				zap.String("transaction_id", txn),
				zap.ByteString("raw_response", report.Raw))
		}
		return nil, err
	}

	r.events.record(ctx, p.ID, txn, models.PaymentEventWebhookReceived, models.EventData{
		"state":         report.State,
		"response_code": report.ResponseCode,
		"code":          report.Code,
		"raw_response":  json.RawMessage(report.Raw),
	})

	key := fmt.Sprintf("webhook:%s:%s:%s", txn, report.State, report.ResponseCode)
	if r.deduper != nil {
		seen, err := r.deduper.CheckIdempotencyKey(ctx, key)
		if err != nil {
			r.logger.Warn("Webhook dedupe unavailable", zap.String("transaction_id", txn), zap.Error(err))
		} else if seen {
			r.logger.Info("Duplicate webhook delivery", zap.String("transaction_id", txn))
			return &ApplyResult{Purchase: p, Outcome: OutcomeUnchanged, Previous: p.PaymentStatus}, nil
		}
	}

	result, err := r.Apply(ctx, &GatewayObservation{
		PurchaseID:    p.ID,
		TransactionID: txn,
		Status:        status,
		Source:        SourceWebhook,
		Patch:         models.PaymentDetails{Webhook: report.Observation(r.now().UTC())},
	})
	if err != nil && !errors.Is(err, apperr.ErrSoldOut) {
		return nil, err
	}

	if r.deduper != nil {
		if err := r.deduper.SetIdempotencyKey(ctx, key, string(result.Purchase.PaymentStatus), r.config.DedupeTTL); err != nil {
			r.logger.Warn("Failed to remember webhook delivery", zap.String("transaction_id", txn), zap.Error(err))
		}
	}
	return result, nil
}

// Poll asks the wallet gateway for a transaction's state on behalf of the
// purchase owner and reconciles it.
func (r *Reconciler) Poll(ctx context.Context, transactionID, userID string) (*ApplyResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Poll")
	defer span.End()

	if transactionID == "" {
		return nil, apperr.Invalid("transaction_id", "Transaction id is required")
	}

	p, err := r.store.GetPurchaseByPaymentID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(p, userID); err != nil {
		return nil, err
	}

	return r.poll(ctx, p, transactionID, SourcePoll)
}

func (r *Reconciler) poll(ctx context.Context, p *models.Purchase, transactionID, source string) (*ApplyResult, error) {
	if p.PaymentMethod != models.PaymentMethodWallet {
		// bank verification is synchronous, there is nothing to ask
		return &ApplyResult{Purchase: p, Outcome: OutcomeUnchanged, Previous: p.PaymentStatus}, nil
	}
	if r.wallet == nil {
		return nil, fmt.Errorf("wallet gateway not configured: %w", apperr.ErrGatewayUnavailable)
	}

	report, err := r.wallet.CheckStatus(ctx, transactionID)
	if err != nil {
		r.logger.Warn("Status check failed",
			zap.String("purchase_id", p.ID),
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		return nil, err
	}

	r.events.record(ctx, p.ID, transactionID, models.PaymentEventStatusChecked, models.EventData{
		"source":        source,
		"code":          report.Code,
		"state":         report.State,
		"response_code": report.ResponseCode,
		"raw_response":  json.RawMessage(report.Raw),
	})

	status, err := report.Status()
	if err != nil {
		r.logger.Warn("Status check returned an unknown code",
			zap.String("purchase_id", p.ID),
			zap.String("transaction_id", transactionID),
			zap.String("code", report.Code),
			zap.ByteString("raw_response", report.Raw))
		return nil, err
	}

	return r.Apply(ctx, &GatewayObservation{
		PurchaseID:    p.ID,
		TransactionID: transactionID,
		Status:        status,
		Source:        source,
		Patch:         models.PaymentDetails{StatusCheck: report.Observation(r.now().UTC())},
	})
}

// SweepResult summarises one pass over pending purchases
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Polled    int `json:"polled"`
	Abandoned int `json:"abandoned"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Sweep polls stale wallet payments and fails purchases that never reached
// a gateway (no payment id). Errors on individual purchases are counted, not
// returned.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Sweep")
	defer span.End()

	now := r.now()
	pending, err := r.store.ListPendingPurchases(ctx, now.Add(-r.config.PendingPollAfter), r.config.SweepBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending purchases: %w", err)
	}

	result := &SweepResult{Scanned: len(pending)}
	for i := range pending {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		p := &pending[i]
		if completionBlocked(p) {
			result.Skipped++
			continue
		}
		abandoned := now.Sub(p.CreatedAt) > r.config.AbandonAfter

		switch {
		case p.PaymentRef() != "" && p.PaymentMethod == models.PaymentMethodWallet:
			result.Polled++
			if _, err := r.poll(ctx, p, p.PaymentRef(), SourceSweep); err != nil {
				result.Errors++
			}
		case p.PaymentRef() != "":
			// reached a gateway without a verdict; never failed on local age alone
			if abandoned {
				r.logger.Warn("Pending purchase with gateway reference needs manual review",
					zap.String("purchase_id", p.ID),
					zap.String("transaction_id", p.PaymentRef()),
					zap.String("method", string(p.PaymentMethod)))
			}
			result.Skipped++
		case abandoned:
			_, err := r.Apply(ctx, &GatewayObservation{
				PurchaseID:    p.ID,
				TransactionID: p.PaymentRef(),
				Status:        models.PaymentStatusFailed,
				Source:        SourceSweep,
			})
			if err != nil {
				result.Errors++
				r.logger.Error("Failed to abandon purchase", zap.String("purchase_id", p.ID), zap.Error(err))
				continue
			}
			result.Abandoned++
		default:
			result.Skipped++
		}
	}

	if result.Scanned > 0 {
		r.logger.Info("Pending sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("polled", result.Polled),
			zap.Int("abandoned", result.Abandoned),
			zap.Int("errors", result.Errors))
	}
	return result, nil
}
