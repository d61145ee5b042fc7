package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
)

var _ Gateway = (*Wallet)(nil)

// Wallet is the wallet-redirect gateway adapter
type Wallet struct {
	config *WalletConfig
	http   *httpDoer
}

// NewWallet creates a new wallet adapter
func NewWallet(config *WalletConfig) (*Wallet, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Wallet{
		config: config,
		http: &httpDoer{
			name:   "wallet",
			client: &http.Client{Timeout: timeoutOrDefault(config.Timeout)},
		},
	}, nil
}

// Method returns the payment method served by this adapter
func (w *Wallet) Method() models.PaymentMethod {
	return models.PaymentMethodWallet
}

// Initiate creates a pay-page session and returns the buyer's redirect URL
func (w *Wallet) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	payload := walletPayRequest{
		MerchantID:            w.config.MerchantID,
		MerchantTransactionID: req.TransactionID,
		MerchantUserID:        "USER_" + req.PurchaseID,
		Amount:                ToMinorUnits(req.Amount),
		RedirectURL:           w.redirectURL(req.TransactionID),
		RedirectMode:          "POST",
		CallbackURL:           w.config.CallbackURL,
		MobileNumber:          req.Payer.Phone,
		PaymentInstrument:     walletInstrument{Type: "PAY_PAGE"},
	}

	body, err := w.post(ctx, "initiate", walletPayPath, payload)
	if err != nil {
		return nil, err
	}

	var resp walletResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &apperr.GatewayError{Kind: apperr.ErrGatewayRejected, Code: "INVALID_RESPONSE", Detail: err.Error()}
	}

	redirect := resp.redirectURL()
	if !resp.Success || redirect == "" {
		return nil, &apperr.GatewayError{Kind: apperr.ErrGatewayRejected, Code: resp.Code, Detail: resp.Message}
	}

	return &InitiateResult{
		TransactionID: req.TransactionID,
		RedirectURL:   redirect,
		Status:        models.PaymentStatusPending,
		Raw:           body,
		Details: models.PaymentDetails{
			Initiation: &models.Initiation{
				Gateway:               models.PaymentMethodWallet,
				MerchantTransactionID: req.TransactionID,
				Amount:                req.Amount,
				PhoneNumber:           req.Payer.Phone,
				CustomerName:          req.Payer.Name,
				RedirectURL:           redirect,
				RawResponse:           body,
				InitiatedAt:           time.Now().UTC(),
			},
		},
	}, nil
}

// CheckStatus polls the gateway for a transaction's state
func (w *Wallet) CheckStatus(ctx context.Context, transactionID string) (*StatusReport, error) {
	path := fmt.Sprintf(walletStatusPath, w.config.MerchantID, transactionID)
	headers := map[string]string{
		"X-VERIFY":      Checksum(path, w.config.SaltKey, w.config.SaltIndex),
		"X-MERCHANT-ID": w.config.MerchantID,
	}

	_, body, err := w.http.do(ctx, "status", http.MethodGet, w.config.BaseURL+path, nil, headers)
	if err != nil {
		return nil, err
	}

	var resp walletResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &apperr.GatewayError{Kind: apperr.ErrGatewayRejected, Code: "INVALID_RESPONSE", Detail: err.Error()}
	}

	report := newStatusReport(&resp, body)
	if report.MerchantTransactionID == "" {
		report.MerchantTransactionID = transactionID
	}
	return report, nil
}

// VerifyWebhook authenticates a server-to-server callback and decodes it.
// The signature covers the base64 response field exactly as received.
func (w *Wallet) VerifyWebhook(signature string, body []byte) (*StatusReport, error) {
	if signature == "" {
		return nil, fmt.Errorf("missing X-VERIFY header: %w", apperr.ErrInvalidSignature)
	}

	var cb walletCallback
	if err := json.Unmarshal(body, &cb); err != nil || cb.Response == "" {
		return nil, apperr.Invalid("response", "Webhook body must carry a response field")
	}

	if !VerifyChecksum(signature, cb.Response, w.config.SaltKey, w.config.SaltIndex) {
		return nil, fmt.Errorf("webhook checksum mismatch: %w", apperr.ErrInvalidSignature)
	}

	decoded, err := base64.StdEncoding.DecodeString(cb.Response)
	if err != nil {
		return nil, apperr.Invalid("response", "Webhook response is not valid base64")
	}

	var resp walletResponse
	if err := json.Unmarshal(decoded, &resp); err != nil {
		return nil, apperr.Invalid("response", "Webhook response is not valid JSON")
	}
	if resp.Data == nil || resp.Data.MerchantTransactionID == "" {
		return nil, apperr.Invalid("merchantTransactionId", "Webhook response has no transaction id")
	}

	return newStatusReport(&resp, decoded), nil
}

// Refund asks the gateway to refund part or all of a completed payment
func (w *Wallet) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	payload := walletRefundRequest{
		MerchantID:            w.config.MerchantID,
		MerchantTransactionID: req.RefundTransactionID,
		OriginalTransactionID: req.OriginalTransactionID,
		Amount:                ToMinorUnits(req.Amount),
		CallbackURL:           w.config.CallbackURL,
	}

	body, err := w.post(ctx, "refund", walletRefundPath, payload)
	if err != nil {
		return nil, err
	}

	var resp walletResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &apperr.GatewayError{Kind: apperr.ErrGatewayRejected, Code: "INVALID_RESPONSE", Detail: err.Error()}
	}
	if !resp.Success {
		return nil, &apperr.GatewayError{Kind: apperr.ErrGatewayRejected, Code: resp.Code, Detail: resp.Message}
	}

	return &RefundResult{Code: resp.Code, Message: resp.Message, Raw: body}, nil
}

// post base64-encodes payload, signs it for path and sends the request envelope
func (w *Wallet) post(ctx context.Context, operation, path string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to marshal request: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	envelope, err := json.Marshal(walletEnvelope{Request: encoded})
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to marshal envelope: %w", err)
	}

	headers := map[string]string{
		"X-VERIFY": Checksum(encoded+path, w.config.SaltKey, w.config.SaltIndex),
	}
	_, body, err := w.http.do(ctx, operation, http.MethodPost, w.config.BaseURL+path, envelope, headers)
	return body, err
}

func (w *Wallet) redirectURL(transactionID string) string {
	if w.config.RedirectURL == "" {
		return ""
	}
	u, err := url.Parse(w.config.RedirectURL)
	if err != nil {
		return w.config.RedirectURL
	}
	q := u.Query()
	q.Set("txnId", transactionID)
	u.RawQuery = q.Encode()
	return u.String()
}
