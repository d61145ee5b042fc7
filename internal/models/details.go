package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// PaymentDetails is the gateway payload record kept on a purchase. Each top-level
// section is written by one stage of the payment flow; merging replaces whole
// sections and never clears sections absent from the patch.
type PaymentDetails struct {
	Initiation       *Initiation                `json:"initiation,omitempty"`
	Webhook          *GatewayObservation        `json:"webhook,omitempty"`
	StatusCheck      *GatewayObservation        `json:"status_check,omitempty"`
	BankVerification *BankVerification          `json:"bank_verification,omitempty"`
	Refund           *RefundDetails             `json:"refund,omitempty"`
	PreviousAttempts []string                   `json:"previous_attempts,omitempty"`
	Extra            map[string]json.RawMessage `json:"extra,omitempty"`
}

// Initiation records the request sent to a gateway.
type Initiation struct {
	Gateway               PaymentMethod   `json:"gateway"`
	MerchantTransactionID string          `json:"merchant_transaction_id"`
	Amount                int64           `json:"amount"`
	PhoneNumber           string          `json:"phone_number"`
	CustomerName          string          `json:"customer_name"`
	RedirectURL           string          `json:"redirect_url,omitempty"`
	RawResponse           json.RawMessage `json:"raw_response,omitempty"`
	InitiatedAt           time.Time       `json:"initiated_at"`
}

// GatewayObservation is a status reported by a wallet webhook or status poll.
type GatewayObservation struct {
	State                string          `json:"state"`
	ResponseCode         string          `json:"response_code"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	AmountMinor          int64           `json:"amount_minor,omitempty"`
	RawResponse          json.RawMessage `json:"raw_response,omitempty"`
	ObservedAt           time.Time       `json:"observed_at"`
}

// BankVerification is the synchronous result of a bank-account check.
type BankVerification struct {
	AccountStatus     string          `json:"account_status"`
	AccountStatusCode string          `json:"account_status_code,omitempty"`
	UTR               string          `json:"utr,omitempty"`
	NameMatchScore    string          `json:"name_match_score,omitempty"`
	BankName          string          `json:"bank_name,omitempty"`
	RawResponse       json.RawMessage `json:"raw_response,omitempty"`
	VerifiedAt        time.Time       `json:"verified_at"`
}

// Refund statuses recorded in RefundDetails.
const (
	RefundStatusPending = "pending"
	RefundStatusManual  = "manual"
)

// RefundDetails records an admin-initiated refund.
type RefundDetails struct {
	RefundTransactionID   string          `json:"refund_transaction_id"`
	OriginalTransactionID string          `json:"original_transaction_id"`
	Amount                int64           `json:"refund_amount"`
	Reason                string          `json:"refund_reason"`
	Status                string          `json:"refund_status"`
	InitiatedBy           string          `json:"refund_initiated_by"`
	InitiatedAt           time.Time       `json:"refund_initiated_at"`
	RawResponse           json.RawMessage `json:"raw_response,omitempty"`
}

// Merge returns d with every section present in patch replaced.
func (d PaymentDetails) Merge(patch PaymentDetails) PaymentDetails {
	out := d
	if patch.Initiation != nil {
		out.Initiation = patch.Initiation
	}
	if patch.Webhook != nil {
		out.Webhook = patch.Webhook
	}
	if patch.StatusCheck != nil {
		out.StatusCheck = patch.StatusCheck
	}
	if patch.BankVerification != nil {
		out.BankVerification = patch.BankVerification
	}
	if patch.Refund != nil {
		out.Refund = patch.Refund
	}
	if patch.PreviousAttempts != nil {
		out.PreviousAttempts = append([]string(nil), patch.PreviousAttempts...)
	}
	if patch.Extra != nil {
		out.Extra = patch.Extra
	}
	return out
}

// IsEmpty reports whether no section is set.
func (d PaymentDetails) IsEmpty() bool {
	return d.Initiation == nil && d.Webhook == nil && d.StatusCheck == nil &&
		d.BankVerification == nil && d.Refund == nil && d.PreviousAttempts == nil && d.Extra == nil
}

// OriginalGatewayTransactionID is the id the gateway assigned to the settled payment,
// falling back to the merchant transaction id.
func (p *Purchase) OriginalGatewayTransactionID() string {
	if w := p.PaymentDetails.Webhook; w != nil && w.GatewayTransactionID != "" {
		return w.GatewayTransactionID
	}
	if s := p.PaymentDetails.StatusCheck; s != nil && s.GatewayTransactionID != "" {
		return s.GatewayTransactionID
	}
	return p.PaymentRef()
}

func (d PaymentDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *PaymentDetails) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	*d = PaymentDetails{}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, d)
}
