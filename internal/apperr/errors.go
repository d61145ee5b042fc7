package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Wrap with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrSoldOut                = errors.New("position sold out")
	ErrInvalidPosition        = errors.New("invalid position")
	ErrPositionHeld           = errors.New("position is being purchased by another buyer")
	ErrCouponExhausted        = errors.New("coupon exhausted")
	ErrGatewayRejected        = errors.New("gateway rejected request")
	ErrGatewayUnavailable     = errors.New("gateway unavailable")
	ErrBankVerificationFailed = errors.New("bank verification failed")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrAlreadyCompleted       = errors.New("payment already completed")
	ErrNotEligible            = errors.New("not eligible")
	ErrAmountExceedsOriginal  = errors.New("refund amount exceeds original payment")
	ErrTimeout                = errors.New("gateway timeout")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
)

// FieldError reports the first invalid input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a FieldError.
func Invalid(field, message string) error {
	return &FieldError{Field: field, Message: message}
}

// GatewayError carries the gateway's own reason code alongside the error kind.
type GatewayError struct {
	Kind   error
	Code   string
	Detail string
}

func (e *GatewayError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *GatewayError) Unwrap() error {
	return e.Kind
}

// Message returns a short user-facing message for err.
func Message(err error) string {
	var fe *FieldError
	switch {
	case errors.As(err, &fe):
		return fe.Message
	case errors.Is(err, ErrValidation):
		return "Invalid input"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrSoldOut):
		return "This position has already been sold"
	case errors.Is(err, ErrInvalidPosition):
		return "Invalid position number"
	case errors.Is(err, ErrPositionHeld):
		return "This position is currently being purchased, try again shortly"
	case errors.Is(err, ErrCouponExhausted):
		return "Coupon is no longer available"
	case errors.Is(err, ErrBankVerificationFailed):
		return "Bank account verification failed"
	case errors.Is(err, ErrGatewayRejected):
		return "Payment gateway rejected the request"
	case errors.Is(err, ErrGatewayUnavailable):
		return "Payment gateway is unavailable, try again shortly"
	case errors.Is(err, ErrInvalidSignature):
		return "Invalid signature"
	case errors.Is(err, ErrAlreadyCompleted):
		return "Payment already completed for this purchase"
	case errors.Is(err, ErrNotEligible):
		return "Operation not allowed in the current state"
	case errors.Is(err, ErrAmountExceedsOriginal):
		return "Refund amount cannot exceed original payment"
	case errors.Is(err, ErrTimeout):
		return "Payment gateway did not respond in time"
	case errors.Is(err, ErrUnauthorized):
		return "Authentication required"
	case errors.Is(err, ErrForbidden):
		return "Access denied"
	default:
		return "Internal error"
	}
}
