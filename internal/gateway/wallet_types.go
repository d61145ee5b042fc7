package gateway

import (
	"encoding/json"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
)

const (
	walletPayPath    = "/pg/v1/pay"
	walletStatusPath = "/pg/v1/status/%s/%s"
	walletRefundPath = "/pg/v1/refund"

	walletStateCompleted = "COMPLETED"
	walletStatePending   = "PENDING"
	walletCodeSuccess    = "SUCCESS"
)

type walletPayRequest struct {
	MerchantID            string           `json:"merchantId"`
	MerchantTransactionID string           `json:"merchantTransactionId"`
	MerchantUserID        string           `json:"merchantUserId"`
	Amount                int64            `json:"amount"`
	RedirectURL           string           `json:"redirectUrl"`
	RedirectMode          string           `json:"redirectMode"`
	CallbackURL           string           `json:"callbackUrl"`
	MobileNumber          string           `json:"mobileNumber"`
	PaymentInstrument     walletInstrument `json:"paymentInstrument"`
}

type walletInstrument struct {
	Type string `json:"type"`
}

type walletRefundRequest struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	Amount                int64  `json:"amount"`
	CallbackURL           string `json:"callbackUrl"`
}

type walletEnvelope struct {
	Request string `json:"request"`
}

type walletCallback struct {
	Response string `json:"response"`
}

type walletResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    *walletData `json:"data"`
}

type walletData struct {
	MerchantID            string                    `json:"merchantId"`
	MerchantTransactionID string                    `json:"merchantTransactionId"`
	TransactionID         string                    `json:"transactionId"`
	Amount                int64                     `json:"amount"`
	State                 string                    `json:"state"`
	ResponseCode          string                    `json:"responseCode"`
	InstrumentResponse    *walletInstrumentResponse `json:"instrumentResponse"`
}

type walletInstrumentResponse struct {
	Type         string `json:"type"`
	RedirectInfo *struct {
		URL    string `json:"url"`
		Method string `json:"method"`
	} `json:"redirectInfo"`
}

func (r *walletResponse) redirectURL() string {
	if r.Data == nil || r.Data.InstrumentResponse == nil || r.Data.InstrumentResponse.RedirectInfo == nil {
		return ""
	}
	return r.Data.InstrumentResponse.RedirectInfo.URL
}

// StatusReport is a payment state reported by the wallet gateway, either pushed
// through a webhook or returned by a status poll.
type StatusReport struct {
	Success               bool
	Code                  string
	Message               string
	MerchantTransactionID string
	GatewayTransactionID  string
	AmountMinor           int64
	State                 string
	ResponseCode          string
	HasData               bool
	Raw                   json.RawMessage
}

func newStatusReport(resp *walletResponse, raw []byte) *StatusReport {
	r := &StatusReport{
		Success: resp.Success,
		Code:    resp.Code,
		Message: resp.Message,
		Raw:     raw,
	}
	if resp.Data != nil {
		r.HasData = true
		r.MerchantTransactionID = resp.Data.MerchantTransactionID
		r.GatewayTransactionID = resp.Data.TransactionID
		r.AmountMinor = resp.Data.Amount
		r.State = resp.Data.State
		r.ResponseCode = resp.Data.ResponseCode
	}
	return r
}

// Status maps the report onto a purchase status. Reports without a payment
// state are mapped by error code; unknown codes are rejected so the purchase
// is left untouched.
func (r *StatusReport) Status() (models.PaymentStatus, error) {
	if r.HasData && r.State != "" {
		return MapWalletState(r.State, r.ResponseCode), nil
	}

	switch r.Code {
	case "PAYMENT_PENDING", "INTERNAL_SERVER_ERROR":
		return models.PaymentStatusPending, nil
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT":
		return models.PaymentStatusFailed, nil
	case "PAYMENT_SUCCESS":
		return models.PaymentStatusCompleted, nil
	}
	return "", &apperr.GatewayError{Kind: apperr.ErrGatewayRejected, Code: r.Code, Detail: r.Message}
}

// WebhookStatus maps a signed callback. A callback is the gateway's own
// verdict on the transaction, so anything that is neither completed nor
// pending counts as failed, including a missing state with an unknown code.
func (r *StatusReport) WebhookStatus() models.PaymentStatus {
	status, err := r.Status()
	if err != nil {
		return models.PaymentStatusFailed
	}
	return status
}

// Observation records the report in the purchase's payment details.
func (r *StatusReport) Observation(at time.Time) *models.GatewayObservation {
	return &models.GatewayObservation{
		State:                r.State,
		ResponseCode:         r.ResponseCode,
		GatewayTransactionID: r.GatewayTransactionID,
		AmountMinor:          r.AmountMinor,
		RawResponse:          r.Raw,
		ObservedAt:           at,
	}
}

// MapWalletState maps a wallet state/response code pair to a purchase status.
func MapWalletState(state, responseCode string) models.PaymentStatus {
	switch {
	case state == walletStateCompleted && responseCode == walletCodeSuccess:
		return models.PaymentStatusCompleted
	case state == walletStatePending:
		return models.PaymentStatusPending
	default:
		return models.PaymentStatusFailed
	}
}

// RefundRequest asks the wallet gateway to return money for a completed payment.
type RefundRequest struct {
	RefundTransactionID   string
	OriginalTransactionID string
	Amount                int64
}

// RefundResult is the gateway's acceptance of a refund.
type RefundResult struct {
	Code    string
	Message string
	Raw     json.RawMessage
}
