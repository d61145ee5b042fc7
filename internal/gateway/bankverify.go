package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
)

const bankStatusValid = "VALID"

var _ Gateway = (*BankVerifier)(nil)

type bankVerifyRequest struct {
	BankAccount string `json:"bank_account"`
	IFSC        string `json:"ifsc"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
}

type bankVerifyResponse struct {
	AccountStatus     string          `json:"account_status"`
	AccountStatusCode string          `json:"account_status_code"`
	UTR               string          `json:"utr"`
	NameMatchScore    json.RawMessage `json:"name_match_score"`
	BankName          string          `json:"bank_name"`
	Message           string          `json:"message"`
}

// BankVerifier is the synchronous bank-account verification gateway adapter
type BankVerifier struct {
	config *BankConfig
	http   *httpDoer
}

// NewBankVerifier creates a new bank verification adapter
func NewBankVerifier(config *BankConfig) (*BankVerifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &BankVerifier{
		config: config,
		http: &httpDoer{
			name:   "bank_verify",
			client: &http.Client{Timeout: timeoutOrDefault(config.Timeout)},
		},
	}, nil
}

// Method returns the payment method served by this adapter
func (b *BankVerifier) Method() models.PaymentMethod {
	return models.PaymentMethodBankVerify
}

// Initiate verifies the payer's bank account. The result is final: completed
// when the account is valid, failed with FailureCode otherwise.
func (b *BankVerifier) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	payload, err := json.Marshal(bankVerifyRequest{
		BankAccount: req.Payer.AccountNumber,
		IFSC:        req.Payer.IFSC,
		Name:        req.Payer.Name,
		Phone:       req.Payer.Phone,
	})
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"x-client-id":     b.config.ClientID,
		"x-client-secret": b.config.ClientSecret,
	}
	status, body, err := b.http.do(ctx, "verify", http.MethodPost, b.config.URL, payload, headers)
	if err != nil {
		return nil, err
	}

	var resp bankVerifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &apperr.GatewayError{Kind: apperr.ErrGatewayRejected, Code: "INVALID_RESPONSE", Detail: err.Error()}
	}
	if resp.AccountStatus == "" && status >= 400 {
		return nil, &apperr.GatewayError{Kind: apperr.ErrGatewayRejected, Code: http.StatusText(status), Detail: resp.Message}
	}

	result := &InitiateResult{
		TransactionID: req.TransactionID,
		Status:        models.PaymentStatusFailed,
		Raw:           body,
		Details: models.PaymentDetails{
			BankVerification: &models.BankVerification{
				AccountStatus:     resp.AccountStatus,
				AccountStatusCode: resp.AccountStatusCode,
				UTR:               resp.UTR,
				NameMatchScore:    rawScalar(resp.NameMatchScore),
				BankName:          resp.BankName,
				RawResponse:       body,
				VerifiedAt:        time.Now().UTC(),
			},
		},
	}

	if resp.AccountStatus != bankStatusValid {
		result.FailureCode = resp.AccountStatusCode
		if result.FailureCode == "" {
			result.FailureCode = "INVALID_BANK_DETAILS"
		}
		return result, nil
	}

	result.Status = models.PaymentStatusCompleted
	if resp.UTR != "" {
		result.TransactionID = resp.UTR
	}
	return result, nil
}

// rawScalar renders a JSON number or string as plain text
func rawScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}
