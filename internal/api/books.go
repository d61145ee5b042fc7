package api

import (
	"fmt"
	"net/http"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"

	"github.com/gin-gonic/gin"
)

type evaluateCouponRequest struct {
	Code           string `json:"code" binding:"required"`
	BookID         string `json:"book_id" binding:"required"`
	PositionNumber int    `json:"position_number" binding:"required,min=1"`
}

// listBooks returns active books with availability
func (h *Handler) listBooks(c *gin.Context) {
	books, err := h.svc.Catalog.ListBooks(c.Request.Context(), false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

// getBook returns a book and its available positions
func (h *Handler) getBook(c *gin.Context) {
	book, err := h.svc.Catalog.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if book.Status != models.BookStatusActive {
		respondError(c, fmt.Errorf("book %s: %w", book.ID, apperr.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, book)
}

// evaluateCoupon previews a coupon's discount on one position
func (h *Handler) evaluateCoupon(c *gin.Context) {
	var req evaluateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ctx := c.Request.Context()
	book, err := h.svc.Catalog.GetBook(ctx, req.BookID)
	if err != nil {
		respondError(c, err)
		return
	}
	pos, ok := book.Positions.Find(req.PositionNumber)
	if !ok {
		respondError(c, fmt.Errorf("position %d: %w", req.PositionNumber, apperr.ErrInvalidPosition))
		return
	}

	quote, err := h.svc.Coupons.Evaluate(ctx, req.Code, pos.Price)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}
