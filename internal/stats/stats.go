// Package stats provides aggregate figures over stored reports.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/expertise-auto/chiffrage/internal/domain"
)

const (
	overviewCacheKey = "stats:overview"
	overviewTTL      = 60 * time.Second
)

// Overview is a snapshot of the office's activity. Figures are
// aggregated in the database and cached briefly; they may lag writes by
// up to the cache TTL.
type Overview struct {
	ReportCount     int64            `json:"reportCount"`
	ReportsByStatus map[string]int64 `json:"reportsByStatus"`
	ReportTotalSum  float64          `json:"reportTotalSum"`
	FeeTotalSum     float64          `json:"feeTotalSum"`
	Since           time.Time        `json:"since"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// Service computes activity aggregates.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	window time.Duration
}

// NewService creates a stats service. The window bounds the report count
// aggregate; sums and status breakdowns cover all reports.
func NewService(repo domain.Repository, cache domain.Cache, window time.Duration) *Service {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		window: window,
	}
}

// Overview returns the current aggregate snapshot, serving from cache
// when a fresh one exists.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, overviewCacheKey); err == nil && data != nil {
			var cached Overview
			if err := json.Unmarshal(data, &cached); err != nil {
				slog.Warn("discarding unreadable cached overview", "error", err)
			} else {
				return &cached, nil
			}
		}
	}

	now := time.Now().UTC()
	since := now.Add(-s.window)

	count, err := s.repo.CountReports(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}

	statusCounts, err := s.repo.CountReportsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports by status: %w", err)
	}
	byStatus := make(map[string]int64, len(statusCounts))
	for status, n := range statusCounts {
		byStatus[string(status)] = n
	}

	totalSum, err := s.repo.SumReportTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum report totals: %w", err)
	}

	feeSum, err := s.repo.SumFeeTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum fee totals: %w", err)
	}

	overview := &Overview{
		ReportCount:     count,
		ReportsByStatus: byStatus,
		ReportTotalSum:  totalSum,
		FeeTotalSum:     feeSum,
		Since:           since,
		GeneratedAt:     now,
	}

	if s.cache != nil {
		if data, err := json.Marshal(overview); err == nil {
			if err := s.cache.Set(ctx, overviewCacheKey, data, overviewTTL); err != nil {
				slog.Warn("failed to cache overview", "error", err)
			}
		}
	}

	return overview, nil
}

// Invalidate drops the cached snapshot so the next read hits the
// database.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, overviewCacheKey); err != nil {
		slog.Warn("failed to invalidate overview cache", "error", err)
	}
}
