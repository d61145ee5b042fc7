package api

import (
	"errors"
	"io"
	"net/http"

	"authorship-service/internal/models"
	"authorship-service/internal/service"

	"github.com/gin-gonic/gin"
)

// payerBody carries buyer details. Format checks here give early feedback;
// the services re-validate.
type payerBody struct {
	Name          string `json:"name"`
	Phone         string `json:"phone_number" binding:"omitempty,phone_in"`
	Email         string `json:"email" binding:"omitempty,email"`
	AccountNumber string `json:"bank_account" binding:"omitempty,account_no"`
	IFSC          string `json:"ifsc" binding:"omitempty,ifsc"`
}

func (p payerBody) payer() models.Payer {
	return models.Payer{
		Name:          p.Name,
		Phone:         p.Phone,
		Email:         p.Email,
		AccountNumber: p.AccountNumber,
		IFSC:          p.IFSC,
	}
}

type createPurchaseRequest struct {
	BookID         string               `json:"book_id" binding:"required"`
	PositionNumber int                  `json:"position_number" binding:"required"`
	PaymentMethod  models.PaymentMethod `json:"payment_method"`
	CouponCode     string               `json:"coupon_code"`
	Payer          payerBody            `json:"payer"`
}

type initiatePaymentRequest struct {
	Payer payerBody `json:"payer"`
}

type paymentStatusRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
}

// createPurchase submits a checkout for the signed-in buyer
func (h *Handler) createPurchase(c *gin.Context) {
	var req createPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	claims := currentClaims(c)
	payer := req.Payer.payer()
	if payer.Email == "" {
		payer.Email = claims.Email
	}

	purchase, err := h.svc.Purchases.Submit(c.Request.Context(), &service.SubmitRequest{
		UserID:         claims.UserID(),
		BookID:         req.BookID,
		PositionNumber: req.PositionNumber,
		PaymentMethod:  req.PaymentMethod,
		CouponCode:     req.CouponCode,
		Payer:          payer,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

// getPurchase returns one of the buyer's purchases. Admins may read any.
func (h *Handler) getPurchase(c *gin.Context) {
	claims := currentClaims(c)
	ctx := c.Request.Context()

	var (
		purchase *models.Purchase
		err      error
	)
	if claims.IsAdmin() {
		purchase, err = h.svc.Purchases.Get(ctx, c.Param("id"))
	} else {
		purchase, err = h.svc.Purchases.GetForUser(ctx, c.Param("id"), claims.UserID())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

// initiatePayment sends a pending purchase to its gateway. The body is optional.
func (h *Handler) initiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBindError(c, err)
		return
	}

	resp, err := h.svc.Payments.Initiate(c.Request.Context(), c.Param("id"), currentClaims(c).UserID(), req.Payer.payer())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// paymentStatus polls the gateway for a transaction the buyer owns
func (h *Handler) paymentStatus(c *gin.Context) {
	var req paymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.svc.Reconciler.Poll(c.Request.Context(), req.TransactionID, currentClaims(c).UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"purchase_id":    result.Purchase.ID,
		"transaction_id": req.TransactionID,
		"status":         result.Purchase.PaymentStatus,
		"outcome":        result.Outcome,
	})
}

// paymentWebhook receives the wallet gateway's server-to-server callback
func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.svc.Reconciler.HandleWebhook(c.Request.Context(), c.GetHeader("X-VERIFY"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"purchase_id": result.Purchase.ID,
		"status":      result.Purchase.PaymentStatus,
		"outcome":     result.Outcome,
	})
}
