package api

import (
	"errors"
	"net/http"

	"authorship-service/internal/apperr"
	"authorship-service/internal/service"
	"authorship-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = []struct {
	kind   error
	status int
}{
	{apperr.ErrValidation, http.StatusBadRequest},
	{apperr.ErrInvalidPosition, http.StatusBadRequest},
	{apperr.ErrAmountExceedsOriginal, http.StatusBadRequest},
	{apperr.ErrNotFound, http.StatusNotFound},
	{apperr.ErrSoldOut, http.StatusConflict},
	{apperr.ErrPositionHeld, http.StatusConflict},
	{apperr.ErrCouponExhausted, http.StatusConflict},
	{apperr.ErrAlreadyCompleted, http.StatusConflict},
	{apperr.ErrNotEligible, http.StatusConflict},
	{apperr.ErrBankVerificationFailed, http.StatusPaymentRequired},
	{apperr.ErrGatewayRejected, http.StatusBadGateway},
	{apperr.ErrGatewayUnavailable, http.StatusServiceUnavailable},
	{apperr.ErrTimeout, http.StatusGatewayTimeout},
	{apperr.ErrInvalidSignature, http.StatusUnauthorized},
	{apperr.ErrUnauthorized, http.StatusUnauthorized},
	{apperr.ErrForbidden, http.StatusForbidden},
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	for _, s := range statusByKind {
		if errors.Is(err, s.kind) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	body := gin.H{
		"error":   apperr.Message(err),
		"details": err.Error(),
	}
	var fe *apperr.FieldError
	if errors.As(err, &fe) {
		body["field"] = fe.Field
	}
	var ge *apperr.GatewayError
	if errors.As(err, &ge) && ge.Code != "" {
		body["code"] = ge.Code
	}
	if service.IsRetryable(err) {
		body["retryable"] = true
	}
	c.AbortWithStatusJSON(status, body)
}

func respondBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
