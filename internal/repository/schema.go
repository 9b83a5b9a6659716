package repository

// Schema definitions for the Chiffrage database.
// Compatible with both SQLite and PostgreSQL.

const schemaTariffRules = `
CREATE TABLE IF NOT EXISTS tariff_rules (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    vehicle_category TEXT,
    age_min REAL,
    age_max REAL,
    km_min REAL,
    km_max REAL,
    amount_min REAL,
    amount_max REAL,
    value REAL NOT NULL,
    unit TEXT NOT NULL,
    guard TEXT,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tariff_rules_kind ON tariff_rules(kind, active);
CREATE INDEX IF NOT EXISTS idx_tariff_rules_category ON tariff_rules(kind, vehicle_category, active);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    report_type TEXT NOT NULL,
    service_order TEXT NOT NULL,
    office_id TEXT NOT NULL,
    claim_number TEXT NOT NULL,
    claim_date TIMESTAMP NOT NULL,
    visit_date TIMESTAMP NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    total REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_claim ON reports(claim_number);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
`

const schemaVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    id TEXT PRIMARY KEY,
    report_id TEXT NOT NULL UNIQUE REFERENCES reports(id) ON DELETE CASCADE,
    make TEXT NOT NULL,
    model TEXT NOT NULL,
    registration TEXT NOT NULL,
    category TEXT NOT NULL,
    first_registration TIMESTAMP NOT NULL,
    mileage INTEGER NOT NULL DEFAULT 0,
    fiscal_power INTEGER NOT NULL DEFAULT 0,
    hourly_rate REAL NOT NULL DEFAULT 0,
    depreciation_pct REAL NOT NULL DEFAULT 0
);
`

const schemaImpacts = `
CREATE TABLE IF NOT EXISTS impacts (
    id TEXT PRIMARY KEY,
    report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    repair_hours REAL NOT NULL DEFAULT 0,
    paint_amount REAL NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_impacts_report ON impacts(report_id);
`

const schemaSupplies = `
CREATE TABLE IF NOT EXISTS supplies (
    id TEXT PRIMARY KEY,
    impact_id TEXT NOT NULL REFERENCES impacts(id) ON DELETE CASCADE,
    designation TEXT NOT NULL,
    reference TEXT NOT NULL DEFAULT '',
    family TEXT NOT NULL DEFAULT 'autre',
    quantity INTEGER NOT NULL DEFAULT 1,
    unit_price REAL NOT NULL DEFAULT 0,
    total_price REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_supplies_impact ON supplies(impact_id);
`

const schemaFeeRecords = `
CREATE TABLE IF NOT EXISTS fee_records (
    id TEXT PRIMARY KEY,
    report_id TEXT NOT NULL UNIQUE REFERENCES reports(id) ON DELETE CASCADE,
    base_amount REAL NOT NULL DEFAULT 0,
    distance_km INTEGER NOT NULL DEFAULT 0,
    travel_fee REAL NOT NULL DEFAULT 0,
    total_fee REAL NOT NULL DEFAULT 0
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTariffRules,
		schemaReports,
		schemaVehicles,
		schemaImpacts,
		schemaSupplies,
		schemaFeeRecords,
	}
}
