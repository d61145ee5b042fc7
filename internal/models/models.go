package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CopiesPerPosition is the number of printed copies each position entitles its buyer to.
const CopiesPerPosition = 2

// MaxPositions bounds total_positions on a book.
const MaxPositions = 10

// BookStatus is the publication state of a book.
type BookStatus string

const (
	BookStatusActive   BookStatus = "active"
	BookStatusInactive BookStatus = "inactive"
	BookStatusSoldOut  BookStatus = "sold_out"
)

func (s BookStatus) IsValid() bool {
	switch s {
	case BookStatusActive, BookStatusInactive, BookStatusSoldOut:
		return true
	}
	return false
}

// Position is a numbered, individually priced authorship slot.
type Position struct {
	Number int   `json:"position"`
	Price  int64 `json:"price"`
}

// PositionList is stored as a JSONB array.
type PositionList []Position

func (l PositionList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *PositionList) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(b, l)
}

// Find returns the position with the given number.
func (l PositionList) Find(number int) (Position, bool) {
	for _, p := range l {
		if p.Number == number {
			return p, true
		}
	}
	return Position{}, false
}

// Book is a limited-capacity title whose authorship positions are sold individually.
type Book struct {
	ID             string       `db:"id" json:"id"`
	Title          string       `db:"title" json:"title"`
	Genre          string       `db:"genre" json:"genre"`
	Description    string       `db:"description" json:"description"`
	CoverURL       string       `db:"cover_url" json:"cover_url,omitempty"`
	TotalPositions int          `db:"total_positions" json:"total_positions"`
	Positions      PositionList `db:"position_pricing" json:"positions"`
	Status         BookStatus   `db:"status" json:"status"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// TotalCopies is the number of printed copies across all positions.
func (b *Book) TotalCopies() int {
	return b.TotalPositions * CopiesPerPosition
}

// DefaultPricing returns the standard price ladder for a book with n positions.
func DefaultPricing(n int) PositionList {
	tiers := map[int][]int64{
		1: {16000},
		2: {10000, 9000},
		3: {8000, 7000, 6000},
		4: {7000, 6000, 5000, 4000},
	}

	prices, ok := tiers[n]
	positions := make(PositionList, 0, n)
	for i := 1; i <= n; i++ {
		price := int64(5000)
		if ok {
			price = prices[i-1]
		}
		positions = append(positions, Position{Number: i, Price: price})
	}
	return positions
}

// PaymentStatus is the purchase lifecycle state.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// PaymentMethod selects the gateway adapter.
type PaymentMethod string

const (
	PaymentMethodWallet     PaymentMethod = "wallet"
	PaymentMethodBankVerify PaymentMethod = "bank_verify"
)

func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodWallet || m == PaymentMethodBankVerify
}

// Purchase is one buyer's attempt to acquire a position.
type Purchase struct {
	ID                 string         `db:"id" json:"id"`
	BookID             string         `db:"book_id" json:"book_id"`
	UserID             string         `db:"user_id" json:"user_id"`
	PositionNumber     *int           `db:"position_number" json:"position_number"`
	PositionsPurchased int            `db:"positions_purchased" json:"positions_purchased"`
	BaseAmount         int64          `db:"base_amount" json:"base_amount"`
	DiscountAmount     int64          `db:"discount_amount" json:"discount_amount"`
	TotalAmount        int64          `db:"total_amount" json:"total_amount"`
	PaymentStatus      PaymentStatus  `db:"payment_status" json:"payment_status"`
	PaymentID          *string        `db:"payment_id" json:"payment_id,omitempty"`
	PaymentMethod      PaymentMethod  `db:"payment_method" json:"payment_method"`
	PaymentDetails     PaymentDetails `db:"payment_details" json:"payment_details"`
	CouponCode         *string        `db:"coupon_code" json:"coupon_code,omitempty"`
	BuyerName          string         `db:"buyer_name" json:"buyer_name"`
	BuyerPhone         string         `db:"buyer_phone" json:"buyer_phone"`
	BuyerEmail         string         `db:"buyer_email" json:"buyer_email,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// Position returns the purchased position number, or 0 for count-based purchases.
func (p *Purchase) Position() int {
	if p.PositionNumber == nil {
		return 0
	}
	return *p.PositionNumber
}

// PaymentRef returns the gateway correlation id, or "".
func (p *Purchase) PaymentRef() string {
	if p.PaymentID == nil {
		return ""
	}
	return *p.PaymentID
}

// MatchesTransaction reports whether txnID is the current or a previous attempt of p.
func (p *Purchase) MatchesTransaction(txnID string) bool {
	if txnID == "" {
		return false
	}
	if p.PaymentRef() == txnID {
		return true
	}
	for _, prev := range p.PaymentDetails.PreviousAttempts {
		if prev == txnID {
			return true
		}
	}
	return false
}

// DiscountType is how a coupon reduces the base amount.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (t DiscountType) IsValid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

// Coupon is a discount code. Code is stored uppercase.
type Coupon struct {
	ID            string       `db:"id" json:"id"`
	Code          string       `db:"code" json:"code"`
	Description   string       `db:"description" json:"description,omitempty"`
	DiscountType  DiscountType `db:"discount_type" json:"discount_type"`
	DiscountValue int64        `db:"discount_value" json:"discount_value"`
	MaxUses       *int         `db:"max_uses" json:"max_uses,omitempty"`
	UsedCount     int          `db:"used_count" json:"used_count"`
	IsActive      bool         `db:"is_active" json:"is_active"`
	ExpiresAt     *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// Applicable reports whether the coupon can be redeemed at now.
func (c *Coupon) Applicable(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return false
	}
	return true
}

// PaymentEventType enumerates payment log entries.
type PaymentEventType string

const (
	PaymentEventInitiated       PaymentEventType = "initiated"
	PaymentEventWebhookReceived PaymentEventType = "webhook_received"
	PaymentEventStatusChecked   PaymentEventType = "status_checked"
	PaymentEventCompleted       PaymentEventType = "completed"
	PaymentEventFailed          PaymentEventType = "failed"
	PaymentEventConflict        PaymentEventType = "conflict"
	PaymentEventRefundInitiated PaymentEventType = "refund_initiated"
)

// PaymentEvent is an append-only payment log record.
type PaymentEvent struct {
	ID            int64            `db:"id" json:"id"`
	PurchaseID    string           `db:"purchase_id" json:"purchase_id"`
	TransactionID string           `db:"transaction_id" json:"transaction_id"`
	EventType     PaymentEventType `db:"event_type" json:"event_type"`
	EventData     EventData        `db:"event_data" json:"event_data"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// EventData is the opaque JSONB payload of a payment event.
type EventData map[string]interface{}

func (d EventData) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *EventData) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*d = EventData{}
		return nil
	}
	return json.Unmarshal(b, d)
}

// DailyPaymentStats is one row of the payment analytics view.
type DailyPaymentStats struct {
	PaymentDate      time.Time `db:"payment_date" json:"payment_date"`
	CompletedCount   int       `db:"completed_count" json:"completed_count"`
	CompletedRevenue int64     `db:"completed_revenue" json:"completed_revenue"`
	FailedCount      int       `db:"failed_count" json:"failed_count"`
	RefundedCount    int       `db:"refunded_count" json:"refunded_count"`
}

func jsonBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON source type %T", src)
	}
}

// Payer holds buyer details collected at checkout. Bank fields are used only by the
// bank-verification gateway and are never persisted.
type Payer struct {
	Name          string `json:"name"`
	Phone         string `json:"phone_number"`
	Email         string `json:"email,omitempty"`
	AccountNumber string `json:"bank_account,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
}
