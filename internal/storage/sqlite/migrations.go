package sqlite

// Schema defines the SQLite database schema
const Schema = `
-- Indicator definitions table (mirrored from the definition files)
CREATE TABLE IF NOT EXISTS indicators (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	unit TEXT NOT NULL,
	frequency TEXT NOT NULL,
	method TEXT NOT NULL,
	is_automatic BOOLEAN NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	is_cumulative BOOLEAN NOT NULL DEFAULT 0,
	formula_key TEXT NOT NULL DEFAULT '',
	data_source_json TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Indicator values: one row per (indicator, period, region, gender).
-- region_code and gender default to '' rather than NULL so the unique
-- constraint actually enforces the idempotency key.
CREATE TABLE IF NOT EXISTS indicator_values (
	id TEXT PRIMARY KEY,
	indicator_code TEXT NOT NULL,
	period_start TIMESTAMP NOT NULL,
	period_end TIMESTAMP NOT NULL,
	region_code TEXT NOT NULL DEFAULT '',
	gender TEXT NOT NULL DEFAULT '',
	value REAL,
	qualitative_value TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	validated BOOLEAN NOT NULL DEFAULT 0,
	validated_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (indicator_code, period_start, period_end, region_code, gender)
);

CREATE INDEX IF NOT EXISTS idx_values_indicator ON indicator_values(indicator_code);
CREATE INDEX IF NOT EXISTS idx_values_period ON indicator_values(period_start, period_end);

-- Batch execution audit log, append-only
CREATE TABLE IF NOT EXISTS monitoring_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	period_start TIMESTAMP NOT NULL,
	period_end TIMESTAMP NOT NULL,
	executed_at TIMESTAMP NOT NULL,
	executed_by TEXT NOT NULL DEFAULT '',
	indicators_count INTEGER NOT NULL DEFAULT 0,
	success BOOLEAN NOT NULL DEFAULT 1,
	error_details TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_logs_executed_at ON monitoring_logs(executed_at DESC);

-- Mapped field-survey submissions (written upstream, read here)
CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	form_type TEXT NOT NULL,
	submission_uuid TEXT NOT NULL UNIQUE,
	submitted_at TIMESTAMP NOT NULL,
	beneficiary_id TEXT NOT NULL DEFAULT '',
	location_code TEXT NOT NULL DEFAULT '',
	period TEXT NOT NULL DEFAULT '',
	json_ext TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_submissions_form_type ON submissions(form_type);
CREATE INDEX IF NOT EXISTS idx_submissions_submitted_at ON submissions(submitted_at);

-- Transactional program tables, consumed read-only by the engine
CREATE TABLE IF NOT EXISTS benefit_plans (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS beneficiaries (
	id TEXT PRIMARY KEY,
	individual_id TEXT NOT NULL,
	plan_code TEXT NOT NULL,
	status TEXT NOT NULL,
	json_ext TEXT NOT NULL DEFAULT '{}',
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_beneficiaries_individual ON beneficiaries(individual_id);
CREATE INDEX IF NOT EXISTS idx_beneficiaries_plan ON beneficiaries(plan_code);

CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	individual_id TEXT NOT NULL,
	plan_code TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	amount REAL NOT NULL DEFAULT 0,
	date_due TIMESTAMP NOT NULL,
	is_deleted BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_payments_individual ON payments(individual_id);
CREATE INDEX IF NOT EXISTS idx_payments_date_due ON payments(date_due);

CREATE TABLE IF NOT EXISTS tickets (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	date_created TIMESTAMP NOT NULL,
	json_ext TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
`
