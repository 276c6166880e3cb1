package config

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

func InitDB() (*sql.DB, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

		// One connection per tenant. Token columns hold cipher output only.
		`CREATE TABLE IF NOT EXISTS qbo_connections (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			tenant_id UUID UNIQUE NOT NULL,
			realm_id VARCHAR(64) NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			access_expires_at TIMESTAMP NOT NULL,
			refresh_expires_at TIMESTAMP,
			scope TEXT,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			last_error TEXT,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS report_periods (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			tenant_id UUID NOT NULL,
			period_type VARCHAR(16) NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			label VARCHAR(64) NOT NULL,
			created_at TIMESTAMP DEFAULT NOW(),
			UNIQUE(tenant_id, period_type, start_date, end_date)
		)`,

		`CREATE TABLE IF NOT EXISTS qbo_reports (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			tenant_id UUID NOT NULL,
			period_id UUID REFERENCES report_periods(id) ON DELETE CASCADE,
			report_type VARCHAR(32) NOT NULL,
			payload JSONB NOT NULL,
			synced_at TIMESTAMP DEFAULT NOW(),
			UNIQUE(tenant_id, report_type, period_id)
		)`,

		`CREATE TABLE IF NOT EXISTS financial_metrics (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			tenant_id UUID NOT NULL,
			period_id UUID REFERENCES report_periods(id) ON DELETE CASCADE,
			metric_key VARCHAR(48) NOT NULL,
			value NUMERIC(18,2) NOT NULL,
			unit VARCHAR(16) NOT NULL,
			updated_at TIMESTAMP DEFAULT NOW(),
			UNIQUE(tenant_id, period_id, metric_key)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_report_periods_tenant_id ON report_periods(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_qbo_reports_tenant_id ON qbo_reports(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_qbo_reports_period_id ON qbo_reports(period_id)`,
		`CREATE INDEX IF NOT EXISTS idx_financial_metrics_tenant_id ON financial_metrics(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_financial_metrics_period_id ON financial_metrics(period_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}
