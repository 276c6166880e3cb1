package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/ledgerlink/books-api/models"
	"github.com/shopspring/decimal"
)

// ReportStore persists periods, raw report payloads and derived metrics.
type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// EnsurePeriod is an idempotent get-or-create: lookup first, then insert
// with a conflict fallback so a concurrent sync racing the insert still
// converges on one row per (tenant, period_type, start, end).
func (s *ReportStore) EnsurePeriod(ctx context.Context, tenantID, periodType string, start, end time.Time, label string) (*models.Period, error) {
	selectQuery := `
		SELECT id, tenant_id, period_type, start_date, end_date, label, created_at
		FROM report_periods
		WHERE tenant_id = $1 AND period_type = $2 AND start_date = $3 AND end_date = $4
	`

	period := &models.Period{}
	err := s.db.QueryRowContext(ctx, selectQuery, tenantID, periodType, start, end).Scan(
		&period.ID, &period.TenantID, &period.PeriodType,
		&period.StartDate, &period.EndDate, &period.Label, &period.CreatedAt,
	)
	if err == nil {
		return period, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	insertQuery := `
		INSERT INTO report_periods (tenant_id, period_type, start_date, end_date, label)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, period_type, start_date, end_date)
		DO UPDATE SET label = EXCLUDED.label
		RETURNING id, tenant_id, period_type, start_date, end_date, label, created_at
	`
	err = s.db.QueryRowContext(ctx, insertQuery, tenantID, periodType, start, end, label).Scan(
		&period.ID, &period.TenantID, &period.PeriodType,
		&period.StartDate, &period.EndDate, &period.Label, &period.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return period, nil
}

// UpsertReport overwrites the raw payload for (tenant, report_type,
// period) and refreshes synced_at.
func (s *ReportStore) UpsertReport(ctx context.Context, tenantID, periodID, reportType string, payload []byte) error {
	query := `
		INSERT INTO qbo_reports (tenant_id, period_id, report_type, payload, synced_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, report_type, period_id)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			synced_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, tenantID, periodID, reportType, payload)
	return err
}

// GetReportPayload returns the stored raw payload, or sql.ErrNoRows.
func (s *ReportStore) GetReportPayload(ctx context.Context, tenantID, periodID, reportType string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM qbo_reports WHERE tenant_id = $1 AND period_id = $2 AND report_type = $3`,
		tenantID, periodID, reportType,
	).Scan(&payload)
	return payload, err
}

// UpsertMetric overwrites one derived metric for (tenant, period, key).
func (s *ReportStore) UpsertMetric(ctx context.Context, tenantID, periodID, metricKey string, value decimal.Decimal, unit string) error {
	query := `
		INSERT INTO financial_metrics (tenant_id, period_id, metric_key, value, unit, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tenant_id, period_id, metric_key)
		DO UPDATE SET
			value = EXCLUDED.value,
			unit = EXCLUDED.unit,
			updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, tenantID, periodID, metricKey, value, unit)
	return err
}

// ListPeriods returns the tenant's periods, newest range first.
func (s *ReportStore) ListPeriods(ctx context.Context, tenantID string) ([]models.Period, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, period_type, start_date, end_date, label, created_at
		FROM report_periods
		WHERE tenant_id = $1
		ORDER BY start_date DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []models.Period
	for rows.Next() {
		var p models.Period
		if err := rows.Scan(&p.ID, &p.TenantID, &p.PeriodType, &p.StartDate, &p.EndDate, &p.Label, &p.CreatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// GetMetrics returns the derived metrics for one period.
func (s *ReportStore) GetMetrics(ctx context.Context, tenantID, periodID string) ([]models.Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, period_id, metric_key, value, unit, updated_at
		FROM financial_metrics
		WHERE tenant_id = $1 AND period_id = $2
		ORDER BY metric_key
	`, tenantID, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []models.Metric
	for rows.Next() {
		var m models.Metric
		if err := rows.Scan(&m.ID, &m.TenantID, &m.PeriodID, &m.MetricKey, &m.Value, &m.Unit, &m.UpdatedAt); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// GetReport returns one stored report row.
func (s *ReportStore) GetReport(ctx context.Context, tenantID, periodID, reportType string) (*models.Report, error) {
	var r models.Report
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, period_id, report_type, payload, synced_at
		FROM qbo_reports
		WHERE tenant_id = $1 AND period_id = $2 AND report_type = $3
	`, tenantID, periodID, reportType).Scan(&r.ID, &r.TenantID, &r.PeriodID, &r.ReportType, &r.Payload, &r.SyncedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
