package api

import (
	"net/http"
	"strconv"

	"authorship-service/internal/apperr"
	"authorship-service/internal/service"

	"github.com/gin-gonic/gin"
)

const maxCoverBytes = 5 << 20

// refundPurchase refunds a completed purchase
func (h *Handler) refundPurchase(c *gin.Context) {
	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	req.PurchaseID = c.Param("id")
	req.Actor = currentClaims(c).UserID()

	record, err := h.svc.Refunds.Refund(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) paymentLogs(c *gin.Context) {
	events, err := h.svc.Analytics.PaymentLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) paymentAnalytics(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, apperr.Invalid("days", "Days must be a number"))
			return
		}
		days = n
	}

	report, err := h.svc.Analytics.DailyStats(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) adminListBooks(c *gin.Context) {
	books, err := h.svc.Catalog.ListBooks(c.Request.Context(), true)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (h *Handler) createBook(c *gin.Context) {
	var in service.BookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}

	book, err := h.svc.Catalog.CreateBook(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *Handler) updateBook(c *gin.Context) {
	var in service.BookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}

	book, err := h.svc.Catalog.UpdateBook(c.Request.Context(), c.Param("id"), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) deleteBook(c *gin.Context) {
	archived, err := h.svc.Catalog.DeleteBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "archived": archived})
}

// uploadCover accepts a multipart "cover" image
func (h *Handler) uploadCover(c *gin.Context) {
	header, err := c.FormFile("cover")
	if err != nil {
		respondError(c, apperr.Invalid("cover", "Cover image is required"))
		return
	}
	if header.Size > maxCoverBytes {
		respondError(c, apperr.Invalid("cover", "Cover image must be at most 5 MB"))
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	book, err := h.svc.Catalog.UploadCover(c.Request.Context(), c.Param("id"), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) listCoupons(c *gin.Context) {
	coupons, err := h.svc.Coupons.ListCoupons(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

func (h *Handler) createCoupon(c *gin.Context) {
	var in service.CouponInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}

	coupon, err := h.svc.Coupons.CreateCoupon(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

func (h *Handler) updateCoupon(c *gin.Context) {
	var in service.CouponInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}

	coupon, err := h.svc.Coupons.UpdateCoupon(c.Request.Context(), c.Param("code"), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, coupon)
}

func (h *Handler) deleteCoupon(c *gin.Context) {
	if err := h.svc.Coupons.DeleteCoupon(c.Request.Context(), c.Param("code")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) toggleCoupon(c *gin.Context) {
	coupon, err := h.svc.Coupons.ToggleCoupon(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, coupon)
}
