package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/expertise-auto/chiffrage/internal/cache"
	"github.com/expertise-auto/chiffrage/internal/domain"
	"github.com/expertise-auto/chiffrage/internal/repository"
)

func newTestStats(t *testing.T) (*Service, domain.Repository) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "stats_test.db")
	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return NewService(repo, cache.NewLRUCache(100), 30*24*time.Hour), repo
}

func seedReport(t *testing.T, repo domain.Repository, status domain.ReportStatus, total, feeTotal float64) {
	t.Helper()

	id := uuid.New().String()
	rpt := &domain.Report{
		ID:          id,
		ReportType:  "expertise",
		ClaimNumber: "SIN-" + id[:8],
		ClaimDate:   time.Now().UTC(),
		VisitDate:   time.Now().UTC(),
		Status:      status,
		Total:       total,
		Fee: &domain.FeeRecord{
			ID:       uuid.New().String(),
			ReportID: id,
			TotalFee: feeTotal,
		},
	}
	if err := repo.CreateReport(context.Background(), rpt); err != nil {
		t.Fatalf("failed to seed report: %v", err)
	}
}

func TestOverview(t *testing.T) {
	svc, repo := newTestStats(t)
	ctx := context.Background()

	seedReport(t, repo, domain.StatusDraft, 17000, 25000)
	seedReport(t, repo, domain.StatusCompleted, 45000, 30000)
	seedReport(t, repo, domain.StatusCompleted, 8000, 12000)

	ov, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}

	if ov.ReportCount != 3 {
		t.Errorf("expected 3 reports, got %d", ov.ReportCount)
	}
	if ov.ReportsByStatus["completed"] != 2 {
		t.Errorf("expected 2 completed reports, got %d", ov.ReportsByStatus["completed"])
	}
	if ov.ReportTotalSum != 70000 {
		t.Errorf("expected total sum 70000, got %v", ov.ReportTotalSum)
	}
	if ov.FeeTotalSum != 67000 {
		t.Errorf("expected fee sum 67000, got %v", ov.FeeTotalSum)
	}
}

func TestOverviewServedFromCache(t *testing.T) {
	svc, repo := newTestStats(t)
	ctx := context.Background()

	seedReport(t, repo, domain.StatusDraft, 10000, 5000)

	first, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}

	// A write behind the cache does not show until invalidation.
	seedReport(t, repo, domain.StatusDraft, 20000, 5000)

	cached, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if cached.ReportCount != first.ReportCount {
		t.Errorf("expected cached count %d, got %d", first.ReportCount, cached.ReportCount)
	}

	svc.Invalidate(ctx)

	fresh, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if fresh.ReportCount != 2 {
		t.Errorf("expected fresh count 2, got %d", fresh.ReportCount)
	}
}

func TestOverviewWithoutCache(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stats_nocache.db")
	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := NewService(repo, nil, 0)
	ov, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if ov.ReportCount != 0 {
		t.Errorf("expected empty overview, got %d reports", ov.ReportCount)
	}
}
