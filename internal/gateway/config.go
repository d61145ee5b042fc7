package gateway

import (
	"errors"
	"time"
)

const defaultTimeout = 30 * time.Second

// WalletConfig contains configuration for the wallet-redirect gateway
type WalletConfig struct {
	// BaseURL is the gateway API root, e.g. https://api-preprod.phonepe.com/apis/pg-sandbox
	BaseURL    string
	MerchantID string
	SaltKey    string
	SaltIndex  int
	// CallbackURL receives server-to-server webhooks
	CallbackURL string
	// RedirectURL is where the buyer lands after paying; ?txnId= is appended
	RedirectURL string
	Timeout     time.Duration
}

// BankConfig contains configuration for the bank-verification gateway
type BankConfig struct {
	URL          string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Errors for configuration validation
var (
	ErrMissingBaseURL      = errors.New("gateway: missing base URL")
	ErrMissingMerchantID   = errors.New("gateway: missing merchant ID")
	ErrMissingSaltKey      = errors.New("gateway: missing salt key")
	ErrInvalidSaltIndex    = errors.New("gateway: salt index must be positive")
	ErrMissingCallbackURL  = errors.New("gateway: missing callback URL")
	ErrMissingClientID     = errors.New("gateway: missing client ID")
	ErrMissingClientSecret = errors.New("gateway: missing client secret")
)

// Validate validates the configuration
func (c *WalletConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.MerchantID == "" {
		return ErrMissingMerchantID
	}
	if c.SaltKey == "" {
		return ErrMissingSaltKey
	}
	if c.SaltIndex <= 0 {
		return ErrInvalidSaltIndex
	}
	if c.CallbackURL == "" {
		return ErrMissingCallbackURL
	}
	return nil
}

// Validate validates the configuration
func (c *BankConfig) Validate() error {
	if c.URL == "" {
		return ErrMissingBaseURL
	}
	if c.ClientID == "" {
		return ErrMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrMissingClientSecret
	}
	return nil
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}
