package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"authorship-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBank(t *testing.T, handler http.HandlerFunc) *BankVerifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	b, err := NewBankVerifier(&BankConfig{URL: server.URL + "/verification/bank-account/sync", ClientID: "cid", ClientSecret: "secret"})
	require.NoError(t, err)
	return b
}

var bankPayer = models.Payer{Name: "Asha Rao", Phone: "9876543210", AccountNumber: "123456789012", IFSC: "HDFC0001234"}

func TestBankVerifierValidWithUTR(t *testing.T) {
	b := newTestBank(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verification/bank-account/sync", r.URL.Path)
		assert.Equal(t, "cid", r.Header.Get("x-client-id"))
		assert.Equal(t, "secret", r.Header.Get("x-client-secret"))

		var req bankVerifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "123456789012", req.BankAccount)
		assert.Equal(t, "HDFC0001234", req.IFSC)

		w.Write([]byte(`{"account_status":"VALID","account_status_code":"ACCOUNT_IS_VALID","utr":"UTR9001","name_match_score":92.5,"bank_name":"HDFC BANK"}`))
	})

	res, err := b.Initiate(context.Background(), &InitiateRequest{PurchaseID: "p-1", TransactionID: "CF_1", Amount: 9000, Payer: bankPayer})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, res.Status)
	assert.Equal(t, "UTR9001", res.TransactionID)
	require.NotNil(t, res.Details.BankVerification)
	assert.Equal(t, "92.5", res.Details.BankVerification.NameMatchScore)
	assert.Equal(t, "HDFC BANK", res.Details.BankVerification.BankName)
}

func TestBankVerifierValidWithoutUTRKeepsPlatformID(t *testing.T) {
	b := newTestBank(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"account_status":"VALID","name_match_score":"88"}`))
	})

	res, err := b.Initiate(context.Background(), &InitiateRequest{TransactionID: "CF_1", Payer: bankPayer})
	require.NoError(t, err)
	assert.Equal(t, "CF_1", res.TransactionID)
	assert.Equal(t, "88", res.Details.BankVerification.NameMatchScore)
}

func TestBankVerifierInvalidAccount(t *testing.T) {
	b := newTestBank(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"account_status":"INVALID","account_status_code":"INVALID_ACCOUNT"}`))
	})

	res, err := b.Initiate(context.Background(), &InitiateRequest{TransactionID: "CF_1", Payer: bankPayer})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, res.Status)
	assert.Equal(t, "INVALID_ACCOUNT", res.FailureCode)
	assert.Equal(t, "CF_1", res.TransactionID)
}

func TestBankConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, (&BankConfig{}).Validate(), ErrMissingBaseURL)
	assert.ErrorIs(t, (&BankConfig{URL: "u"}).Validate(), ErrMissingClientID)
	assert.ErrorIs(t, (&BankConfig{URL: "u", ClientID: "c"}).Validate(), ErrMissingClientSecret)
	assert.NoError(t, (&BankConfig{URL: "u", ClientID: "c", ClientSecret: "s"}).Validate())
}
