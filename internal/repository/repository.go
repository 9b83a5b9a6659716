// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/expertise-auto/chiffrage/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTariffRule inserts or updates a tariff rule.
func (r *SQLRepository) SaveTariffRule(ctx context.Context, rule *domain.TariffRule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}
	if !rule.Kind.Valid() {
		return fmt.Errorf("%w: unknown tariff kind %q", ErrInvalidInput, rule.Kind)
	}

	active := 0
	if rule.Active {
		active = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO tariff_rules (
			id, kind, vehicle_category, age_min, age_max, km_min, km_max,
			amount_min, amount_max, value, unit, guard, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			vehicle_category = excluded.vehicle_category,
			age_min = excluded.age_min,
			age_max = excluded.age_max,
			km_min = excluded.km_min,
			km_max = excluded.km_max,
			amount_min = excluded.amount_min,
			amount_max = excluded.amount_max,
			value = excluded.value,
			unit = excluded.unit,
			guard = excluded.guard,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, string(rule.Kind), rule.VehicleCategory,
		rule.AgeMin, rule.AgeMax, rule.KmMin, rule.KmMax,
		rule.AmountMin, rule.AmountMax,
		rule.Value, string(rule.Unit), rule.Guard, active,
		now, now,
	)
	return err
}

const tariffRuleColumns = `id, kind, vehicle_category, age_min, age_max, km_min, km_max,
	   amount_min, amount_max, value, unit, guard, active`

func scanTariffRule(scan func(dest ...any) error) (*domain.TariffRule, error) {
	var rule domain.TariffRule
	var kind, unit string
	var category, guard sql.NullString
	var ageMin, ageMax, kmMin, kmMax, amountMin, amountMax sql.NullFloat64
	var active int

	if err := scan(
		&rule.ID, &kind, &category,
		&ageMin, &ageMax, &kmMin, &kmMax, &amountMin, &amountMax,
		&rule.Value, &unit, &guard, &active,
	); err != nil {
		return nil, err
	}

	rule.Kind = domain.TariffKind(kind)
	rule.Unit = domain.TariffUnit(unit)
	rule.VehicleCategory = category.String
	rule.Guard = guard.String
	rule.Active = active == 1
	rule.AgeMin = nullableFloat(ageMin)
	rule.AgeMax = nullableFloat(ageMax)
	rule.KmMin = nullableFloat(kmMin)
	rule.KmMax = nullableFloat(kmMax)
	rule.AmountMin = nullableFloat(amountMin)
	rule.AmountMax = nullableFloat(amountMax)

	return &rule, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// GetTariffRule retrieves a tariff rule by ID, active or not.
func (r *SQLRepository) GetTariffRule(ctx context.Context, ruleID string) (*domain.TariffRule, error) {
	query := `SELECT ` + tariffRuleColumns + ` FROM tariff_rules WHERE id = ?`

	rule, err := scanTariffRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListTariffRules retrieves tariff rules, optionally filtered by kind.
// Ordered the way the tariff table is displayed: kind, then category,
// then ascending range bounds.
func (r *SQLRepository) ListTariffRules(ctx context.Context, kind domain.TariffKind) ([]*domain.TariffRule, error) {
	query := `SELECT ` + tariffRuleColumns + ` FROM tariff_rules`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY kind, vehicle_category, age_min, km_min, amount_min`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.TariffRule
	for rows.Next() {
		rule, err := scanTariffRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeactivateTariffRule soft-deletes a rule by setting active = 0.
// Inactive rules are never matched by resolution.
func (r *SQLRepository) DeactivateTariffRule(ctx context.Context, ruleID string) error {
	query := `UPDATE tariff_rules SET active = 0, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// FindRate returns the active rule exactly matching kind and category.
func (r *SQLRepository) FindRate(ctx context.Context, kind domain.TariffKind, category string) (*domain.TariffRule, error) {
	query := `
		SELECT ` + tariffRuleColumns + `
		FROM tariff_rules
		WHERE kind = ? AND vehicle_category = ? AND active = 1
		LIMIT 1
	`

	rule, err := scanTariffRule(r.db.QueryRowContext(ctx, r.rebind(query), string(kind), category).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// FindRangeRules returns all active rules of a kind ordered ascending by
// the relevant range lower bound. Per kind only one range column pair is
// populated, so coalescing across them yields the right ordering key.
func (r *SQLRepository) FindRangeRules(ctx context.Context, kind domain.TariffKind) ([]*domain.TariffRule, error) {
	query := `
		SELECT ` + tariffRuleColumns + `
		FROM tariff_rules
		WHERE kind = ? AND active = 1
		ORDER BY COALESCE(age_min, km_min, amount_min, 0) ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.TariffRule
	for rows.Next() {
		rule, err := scanTariffRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// CreateReport stores a report together with its nested vehicle, impacts,
// supplies and fee record in a single transaction. Either everything is
// written or nothing is.
func (r *SQLRepository) CreateReport(ctx context.Context, report *domain.Report) error {
	if report.ID == "" {
		return fmt.Errorf("%w: report ID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now

	query := `
		INSERT INTO reports (
			id, report_type, service_order, office_id, claim_number,
			claim_date, visit_date, status, total, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(query),
		report.ID, report.ReportType, report.ServiceOrder, report.OfficeID,
		report.ClaimNumber, report.ClaimDate, report.VisitDate,
		string(report.Status), report.Total, report.CreatedAt, report.UpdatedAt,
	); err != nil {
		return err
	}

	if report.Vehicle != nil {
		v := report.Vehicle
		query := `
			INSERT INTO vehicles (
				id, report_id, make, model, registration, category,
				first_registration, mileage, fiscal_power, hourly_rate, depreciation_pct
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			v.ID, report.ID, v.Make, v.Model, v.Registration, v.Category,
			v.FirstRegistration, v.Mileage, v.FiscalPower, v.HourlyRate, v.DepreciationPct,
		); err != nil {
			return err
		}
	}

	for _, impact := range report.Impacts {
		query := `
			INSERT INTO impacts (id, report_id, name, description, repair_hours, paint_amount, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			impact.ID, report.ID, impact.Name, impact.Description,
			impact.RepairHours, impact.PaintAmount, impact.Position,
		); err != nil {
			return err
		}

		for _, item := range impact.Supplies {
			query := `
				INSERT INTO supplies (id, impact_id, designation, reference, family, quantity, unit_price, total_price)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`
			if _, err := tx.ExecContext(ctx, r.rebind(query),
				item.ID, impact.ID, item.Designation, item.Reference, item.Family,
				item.Quantity, item.UnitPrice, item.TotalPrice,
			); err != nil {
				return err
			}
		}
	}

	if report.Fee != nil {
		f := report.Fee
		query := `
			INSERT INTO fee_records (id, report_id, base_amount, distance_km, travel_fee, total_fee)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			f.ID, report.ID, f.BaseAmount, f.DistanceKm, f.TravelFee, f.TotalFee,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetReport retrieves a report with its vehicle, impacts, supplies and fee.
func (r *SQLRepository) GetReport(ctx context.Context, reportID string) (*domain.Report, error) {
	query := `
		SELECT id, report_type, service_order, office_id, claim_number,
			   claim_date, visit_date, status, total, created_at, updated_at
		FROM reports
		WHERE id = ?
	`

	var report domain.Report
	var status string

	err := r.db.QueryRowContext(ctx, r.rebind(query), reportID).Scan(
		&report.ID, &report.ReportType, &report.ServiceOrder, &report.OfficeID,
		&report.ClaimNumber, &report.ClaimDate, &report.VisitDate,
		&status, &report.Total, &report.CreatedAt, &report.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	report.Status = domain.ReportStatus(status)

	vehicle, err := r.getVehicle(ctx, reportID)
	if err != nil {
		return nil, err
	}
	report.Vehicle = vehicle

	report.Impacts, err = r.GetImpactsWithSupplies(ctx, reportID)
	if err != nil {
		return nil, err
	}

	fee, err := r.GetFeeRecord(ctx, reportID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	report.Fee = fee

	return &report, nil
}

func (r *SQLRepository) getVehicle(ctx context.Context, reportID string) (*domain.Vehicle, error) {
	query := `
		SELECT id, report_id, make, model, registration, category,
			   first_registration, mileage, fiscal_power, hourly_rate, depreciation_pct
		FROM vehicles
		WHERE report_id = ?
	`

	var v domain.Vehicle
	err := r.db.QueryRowContext(ctx, r.rebind(query), reportID).Scan(
		&v.ID, &v.ReportID, &v.Make, &v.Model, &v.Registration, &v.Category,
		&v.FirstRegistration, &v.Mileage, &v.FiscalPower, &v.HourlyRate, &v.DepreciationPct,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetImpactsWithSupplies retrieves all impact lines of a report with their
// supply items, ordered by display position.
func (r *SQLRepository) GetImpactsWithSupplies(ctx context.Context, reportID string) ([]*domain.ImpactLine, error) {
	query := `
		SELECT id, report_id, name, description, repair_hours, paint_amount, position
		FROM impacts
		WHERE report_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var impacts []*domain.ImpactLine
	for rows.Next() {
		var impact domain.ImpactLine
		if err := rows.Scan(
			&impact.ID, &impact.ReportID, &impact.Name, &impact.Description,
			&impact.RepairHours, &impact.PaintAmount, &impact.Position,
		); err != nil {
			return nil, err
		}
		impacts = append(impacts, &impact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, impact := range impacts {
		supplies, err := r.getSupplies(ctx, impact.ID)
		if err != nil {
			return nil, err
		}
		impact.Supplies = supplies
	}

	return impacts, nil
}

func (r *SQLRepository) getSupplies(ctx context.Context, impactID string) ([]*domain.SupplyItem, error) {
	query := `
		SELECT id, impact_id, designation, reference, family, quantity, unit_price, total_price
		FROM supplies
		WHERE impact_id = ?
		ORDER BY designation
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), impactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var supplies []*domain.SupplyItem
	for rows.Next() {
		var item domain.SupplyItem
		if err := rows.Scan(
			&item.ID, &item.ImpactID, &item.Designation, &item.Reference,
			&item.Family, &item.Quantity, &item.UnitPrice, &item.TotalPrice,
		); err != nil {
			return nil, err
		}
		supplies = append(supplies, &item)
	}
	return supplies, rows.Err()
}

// UpdateReportTotal writes the derived total back to the report.
func (r *SQLRepository) UpdateReportTotal(ctx context.Context, reportID string, total float64) error {
	query := `UPDATE reports SET total = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), total, time.Now().UTC(), reportID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateReportStatus moves a report to a new workflow status.
func (r *SQLRepository) UpdateReportStatus(ctx context.Context, reportID string, status domain.ReportStatus) error {
	query := `UPDATE reports SET status = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(status), time.Now().UTC(), reportID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSupply retrieves a single supply item.
func (r *SQLRepository) GetSupply(ctx context.Context, supplyID string) (*domain.SupplyItem, error) {
	query := `
		SELECT id, impact_id, designation, reference, family, quantity, unit_price, total_price
		FROM supplies
		WHERE id = ?
	`

	var item domain.SupplyItem
	err := r.db.QueryRowContext(ctx, r.rebind(query), supplyID).Scan(
		&item.ID, &item.ImpactID, &item.Designation, &item.Reference,
		&item.Family, &item.Quantity, &item.UnitPrice, &item.TotalPrice,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateSupply persists a supply item including its derived total.
func (r *SQLRepository) UpdateSupply(ctx context.Context, item *domain.SupplyItem) error {
	query := `
		UPDATE supplies
		SET designation = ?, reference = ?, family = ?, quantity = ?, unit_price = ?, total_price = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		item.Designation, item.Reference, item.Family,
		item.Quantity, item.UnitPrice, item.TotalPrice, item.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveFeeRecord inserts or replaces the fee record of a report.
func (r *SQLRepository) SaveFeeRecord(ctx context.Context, fee *domain.FeeRecord) error {
	if fee.ReportID == "" {
		return fmt.Errorf("%w: report ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO fee_records (id, report_id, base_amount, distance_km, travel_fee, total_fee)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(report_id) DO UPDATE SET
			base_amount = excluded.base_amount,
			distance_km = excluded.distance_km,
			travel_fee = excluded.travel_fee,
			total_fee = excluded.total_fee
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		fee.ID, fee.ReportID, fee.BaseAmount, fee.DistanceKm, fee.TravelFee, fee.TotalFee,
	)
	return err
}

// GetFeeRecord retrieves the fee record of a report.
func (r *SQLRepository) GetFeeRecord(ctx context.Context, reportID string) (*domain.FeeRecord, error) {
	query := `
		SELECT id, report_id, base_amount, distance_km, travel_fee, total_fee
		FROM fee_records
		WHERE report_id = ?
	`

	var fee domain.FeeRecord
	err := r.db.QueryRowContext(ctx, r.rebind(query), reportID).Scan(
		&fee.ID, &fee.ReportID, &fee.BaseAmount, &fee.DistanceKm, &fee.TravelFee, &fee.TotalFee,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fee, nil
}

// CountReports counts reports created at or after since.
func (r *SQLRepository) CountReports(ctx context.Context, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM reports WHERE created_at >= ?`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), since).Scan(&count)
	return count, err
}

// CountReportsByStatus counts reports grouped by workflow status.
func (r *SQLRepository) CountReportsByStatus(ctx context.Context) (map[domain.ReportStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM reports GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ReportStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.ReportStatus(status)] = count
	}
	return counts, rows.Err()
}

// SumReportTotals sums the derived totals of all reports.
func (r *SQLRepository) SumReportTotals(ctx context.Context) (float64, error) {
	var sum float64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total), 0) FROM reports`).Scan(&sum)
	return sum, err
}

// SumFeeTotals sums the fee totals of all fee records.
func (r *SQLRepository) SumFeeTotals(ctx context.Context) (float64, error) {
	var sum float64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_fee), 0) FROM fee_records`).Scan(&sum)
	return sum, err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
