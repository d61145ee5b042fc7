package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
	"authorship-service/internal/util"

	"github.com/shopspring/decimal"
)

// Gateway initiates payments for one payment method.
type Gateway interface {
	Method() models.PaymentMethod
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)
}

// InitiateRequest carries a purchase's amount and payer to a gateway.
// TransactionID is generated by the caller before the external call.
type InitiateRequest struct {
	PurchaseID    string
	TransactionID string
	Amount        int64
	Payer         models.Payer
}

// InitiateResult is the gateway's answer to an initiation.
type InitiateResult struct {
	// TransactionID is the correlation id to keep on the purchase. It differs from
	// the requested id when the gateway supplies its own (bank UTR).
	TransactionID string
	RedirectURL   string
	Status        models.PaymentStatus
	// FailureCode is the gateway reason when Status is failed.
	FailureCode string
	Details     models.PaymentDetails
	Raw         json.RawMessage
}

// ToMinorUnits converts whole rupees to paise.
func ToMinorUnits(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(decimal.NewFromInt(100)).IntPart()
}

// FromMinorUnits converts paise to whole rupees, rounding half up.
func FromMinorUnits(minor int64) int64 {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}

// httpDoer sends one JSON request and returns the status code and body.
type httpDoer struct {
	name   string
	client *http.Client
}

func (d *httpDoer) do(ctx context.Context, operation, method, url string, body []byte, headers map[string]string) (int, []byte, error) {
	start := time.Now()
	defer func() {
		util.GatewayRequestDuration.WithLabelValues(d.name, operation).Observe(time.Since(start).Seconds())
	}()

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: failed to create request: %w", d.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, transportError(d.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, transportError(d.name, err)
	}

	if resp.StatusCode >= 500 {
		return resp.StatusCode, respBody, fmt.Errorf("%w: %s HTTP %d", apperr.ErrGatewayUnavailable, d.name, resp.StatusCode)
	}
	return resp.StatusCode, respBody, nil
}

func transportError(name string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %s: %v", apperr.ErrTimeout, name, err)
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrGatewayUnavailable, name, err)
}
