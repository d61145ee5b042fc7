package service

import (
	"context"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
	"authorship-service/internal/store"
	"authorship-service/internal/util"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
)

// AnalyticsService serves the admin payment log and daily statistics
type AnalyticsService struct {
	store store.Repository
	now   func() time.Time
}

func NewAnalyticsService(repo store.Repository) *AnalyticsService {
	return &AnalyticsService{store: repo, now: time.Now}
}

// PaymentLogs returns a purchase's payment events, newest first
func (s *AnalyticsService) PaymentLogs(ctx context.Context, purchaseID string) ([]models.PaymentEvent, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.PaymentLogs")
	defer span.End()

	if _, err := s.store.GetPurchase(ctx, purchaseID); err != nil {
		return nil, err
	}
	events, err := s.store.ListPaymentEvents(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.PaymentEvent{}
	}
	return events, nil
}

// PaymentReport aggregates daily payment statistics
type PaymentReport struct {
	Days             int                        `json:"days"`
	Since            time.Time                  `json:"since"`
	Daily            []models.DailyPaymentStats `json:"daily"`
	CompletedCount   int                        `json:"completed_count"`
	CompletedRevenue int64                      `json:"completed_revenue"`
	FailedCount      int                        `json:"failed_count"`
	RefundedCount    int                        `json:"refunded_count"`
}

// DailyStats reports the last days days (default 30, at most 365)
func (s *AnalyticsService) DailyStats(ctx context.Context, days int) (*PaymentReport, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.DailyStats")
	defer span.End()

	if days == 0 {
		days = defaultAnalyticsDays
	}
	if days < 1 || days > maxAnalyticsDays {
		return nil, apperr.Invalid("days", "Days must be between 1 and 365")
	}

	since := s.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
	daily, err := s.store.PaymentAnalytics(ctx, since)
	if err != nil {
		return nil, err
	}
	if daily == nil {
		daily = []models.DailyPaymentStats{}
	}

	report := &PaymentReport{Days: days, Since: since, Daily: daily}
	for _, d := range daily {
		report.CompletedCount += d.CompletedCount
		report.CompletedRevenue += d.CompletedRevenue
		report.FailedCount += d.FailedCount
		report.RefundedCount += d.RefundedCount
	}
	return report, nil
}
