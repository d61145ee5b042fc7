package models

import "time"

// Event types published on the purchase events topic.
const (
	EventTypePurchaseCreated   = "PURCHASE_CREATED"
	EventTypePaymentInitiated  = "PAYMENT_INITIATED"
	EventTypePurchaseCompleted = "PURCHASE_COMPLETED"
	EventTypePurchaseFailed    = "PURCHASE_FAILED"
	EventTypePurchaseRefunded  = "PURCHASE_REFUNDED"
	EventTypePaymentConflict   = "PAYMENT_CONFLICT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PurchaseEvent describes a purchase lifecycle change.
type PurchaseEvent struct {
	BaseEvent
	PurchaseID     string        `json:"purchase_id"`
	BookID         string        `json:"book_id"`
	BookTitle      string        `json:"book_title,omitempty"`
	UserID         string        `json:"user_id"`
	BuyerEmail     string        `json:"buyer_email,omitempty"`
	BuyerName      string        `json:"buyer_name,omitempty"`
	BuyerPhone     string        `json:"buyer_phone,omitempty"`
	PositionNumber int           `json:"position_number"`
	TotalAmount    int64         `json:"total_amount"`
	Status         PaymentStatus `json:"status"`
	PaymentMethod  PaymentMethod `json:"payment_method,omitempty"`
	TransactionID  string        `json:"transaction_id,omitempty"`
	Source         string        `json:"source,omitempty"`
}

// RefundEvent is published when a refund is initiated.
type RefundEvent struct {
	BaseEvent
	PurchaseID          string `json:"purchase_id"`
	BookID              string `json:"book_id"`
	UserID              string `json:"user_id"`
	BuyerEmail          string `json:"buyer_email,omitempty"`
	BuyerName           string `json:"buyer_name,omitempty"`
	RefundTransactionID string `json:"refund_transaction_id"`
	Amount              int64  `json:"amount"`
	Reason              string `json:"reason"`
	RefundStatus        string `json:"refund_status"`
}

// ConflictEvent is published when triggers disagree on a terminal state.
type ConflictEvent struct {
	BaseEvent
	PurchaseID     string        `json:"purchase_id"`
	TransactionID  string        `json:"transaction_id"`
	CurrentStatus  PaymentStatus `json:"current_status"`
	ObservedStatus PaymentStatus `json:"observed_status"`
	Source         string        `json:"source"`
}
