package api

import (
	"context"
	"net/http"
	"time"

	"authorship-service/internal/auth"
	"authorship-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readinessTimeout = 2 * time.Second

// Services are the operations exposed over HTTP
type Services struct {
	Catalog    *service.CatalogService
	Coupons    *service.CouponEvaluator
	Purchases  *service.PurchaseService
	Payments   *service.PaymentService
	Reconciler *service.Reconciler
	Refunds    *service.RefundService
	Analytics  *service.AnalyticsService
}

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	svc      Services
	verifier *auth.Verifier
	checks   map[string]ReadinessCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, verifier *auth.Verifier) *Handler {
	return &Handler{
		svc:      svc,
		verifier: verifier,
		checks:   make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	registerValidators()

	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/books", h.listBooks)
		v1.GET("/books/:id", h.getBook)
		v1.POST("/coupons/evaluate", h.evaluateCoupon)
		v1.POST("/payments/webhook", h.paymentWebhook)
	}

	authed := v1.Group("", authMiddleware(h.verifier))
	{
		authed.POST("/purchases", h.createPurchase)
		authed.GET("/purchases/:id", h.getPurchase)
		authed.POST("/purchases/:id/pay", h.initiatePayment)
		authed.POST("/payments/status", h.paymentStatus)
	}

	admin := v1.Group("/admin", authMiddleware(h.verifier), requireAdmin())
	{
		admin.POST("/purchases/:id/refund", h.refundPurchase)
		admin.GET("/purchases/:id/events", h.paymentLogs)
		admin.GET("/analytics", h.paymentAnalytics)

		admin.GET("/books", h.adminListBooks)
		admin.POST("/books", h.createBook)
		admin.PUT("/books/:id", h.updateBook)
		admin.DELETE("/books/:id", h.deleteBook)
		admin.POST("/books/:id/cover", h.uploadCover)

		admin.GET("/coupons", h.listCoupons)
		admin.POST("/coupons", h.createCoupon)
		admin.PUT("/coupons/:code", h.updateCoupon)
		admin.DELETE("/coupons/:code", h.deleteCoupon)
		admin.POST("/coupons/:code/toggle", h.toggleCoupon)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(gin.H, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
		"time":   time.Now().Unix(),
	})
}
