package domain

import (
	"context"
	"time"
)

// Repository defines the persistence surface consumed by the calculation
// engine. The engine never opens its own connection: already-fetched rule
// rows and line items arrive through this interface.
type Repository interface {
	// Tariff table operations
	SaveTariffRule(ctx context.Context, rule *TariffRule) error
	GetTariffRule(ctx context.Context, ruleID string) (*TariffRule, error)
	ListTariffRules(ctx context.Context, kind TariffKind) ([]*TariffRule, error)
	DeactivateTariffRule(ctx context.Context, ruleID string) error

	// FindRate returns the single active rule exactly matching kind and
	// category. ErrNotFound when no rule matches.
	FindRate(ctx context.Context, kind TariffKind, category string) (*TariffRule, error)

	// FindRangeRules returns all active range rules of a kind, ordered
	// ascending by the relevant range's lower bound.
	FindRangeRules(ctx context.Context, kind TariffKind) ([]*TariffRule, error)

	// Report operations
	CreateReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, reportID string) (*Report, error)
	GetImpactsWithSupplies(ctx context.Context, reportID string) ([]*ImpactLine, error)
	UpdateReportTotal(ctx context.Context, reportID string, total float64) error
	UpdateReportStatus(ctx context.Context, reportID string, status ReportStatus) error

	// Supply operations
	GetSupply(ctx context.Context, supplyID string) (*SupplyItem, error)
	UpdateSupply(ctx context.Context, item *SupplyItem) error

	// Fee operations
	SaveFeeRecord(ctx context.Context, fee *FeeRecord) error
	GetFeeRecord(ctx context.Context, reportID string) (*FeeRecord, error)

	// Statistics
	CountReports(ctx context.Context, since time.Time) (int64, error)
	CountReportsByStatus(ctx context.Context) (map[ReportStatus]int64, error)
	SumReportTotals(ctx context.Context) (float64, error)
	SumFeeTotals(ctx context.Context) (float64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
