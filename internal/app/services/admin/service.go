// Package admin exposes platform-wide aggregates for the admin dashboard.
package admin

import (
	"context"

	"github.com/nutrilink/platform/internal/app/storage"
	"github.com/nutrilink/platform/pkg/logger"
)

// Service serves admin analytics.
type Service struct {
	analytics storage.AnalyticsStore
	log       *logger.Logger
}

// New constructs an admin service.
func New(analytics storage.AnalyticsStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("admin")
	}
	return &Service{analytics: analytics, log: log}
}

// Summary returns platform-wide activity counters.
func (s *Service) Summary(ctx context.Context) (storage.AnalyticsSummary, error) {
	return s.analytics.Summary(ctx)
}
