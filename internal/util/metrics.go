package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurchasesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchases_created_total",
		Help: "Total number of pending purchases created",
	})

	PurchaseRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_rejections_total",
		Help: "Total number of rejected purchase submissions",
	}, []string{"reason"})

	PaymentsInitiatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Total number of payment initiations sent to a gateway",
	}, []string{"method"})

	PaymentTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transitions_total",
		Help: "Total number of applied purchase status transitions",
	}, []string{"source", "status"})

	PaymentConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_conflicts_total",
		Help: "Total number of conflicting terminal observations",
	}, []string{"source"})

	WebhookRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_rejected_total",
		Help: "Total number of rejected webhook deliveries",
	}, []string{"reason"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Total number of refunds recorded",
	}, []string{"status"})

	CouponRedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_redemptions_total",
		Help: "Total number of coupons redeemed at submission",
	})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of external payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "operation"})

	PaymentEventWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_event_write_failures_total",
		Help: "Total number of payment log writes that failed",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
