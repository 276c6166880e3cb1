package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerlink/books-api/config"
	"github.com/ledgerlink/books-api/models"
	"github.com/ledgerlink/books-api/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Consumer-side interfaces so the orchestrator takes explicit handles
// instead of globals; tests substitute doubles.

type syncTokens interface {
	GetValidAccessToken(ctx context.Context, tenantID string) (*models.TokenPair, error)
}

type reportClient interface {
	FetchReport(ctx context.Context, tenantID, reportType string, start, end time.Time, accountingMethod string) (json.RawMessage, error)
}

type syncStore interface {
	EnsurePeriod(ctx context.Context, tenantID, periodType string, start, end time.Time, label string) (*models.Period, error)
	UpsertReport(ctx context.Context, tenantID, periodID, reportType string, payload []byte) error
	GetReportPayload(ctx context.Context, tenantID, periodID, reportType string) ([]byte, error)
	UpsertMetric(ctx context.Context, tenantID, periodID, metricKey string, value decimal.Decimal, unit string) error
}

// SyncNotifier receives sync lifecycle events. Optional.
type SyncNotifier interface {
	SyncEvent(tenantID, event string, summary *models.SyncSummary)
}

var requiredReports = []string{models.ReportProfitAndLoss, models.ReportBalanceSheet}

var optionalReports = []string{
	models.ReportCashFlow,
	models.ReportARAging,
	models.ReportAPAging,
	models.ReportChartOfAccounts,
}

type SyncService struct {
	tokens   syncTokens
	client   reportClient
	store    syncStore
	notifier SyncNotifier
	log      *logrus.Logger
	now      func() time.Time
}

func NewSyncService(tokens syncTokens, client reportClient, store syncStore, notifier SyncNotifier) *SyncService {
	return &SyncService{
		tokens:   tokens,
		client:   client,
		store:    store,
		notifier: notifier,
		log:      config.Logger(),
		now:      time.Now,
	}
}

// SyncReports pulls the configured reports for one integrated period
// covering the requested range, persists raw payloads, derives metrics,
// and aggregates partial failures. The pre-flight token check is the one
// early abort: a tenant that never connected gets ErrNoConnection and
// zero writes, not a pile of per-report failures.
func (s *SyncService) SyncReports(ctx context.Context, tenantID string, req models.SyncRequest) (*models.SyncSummary, error) {
	if _, err := s.tokens.GetValidAccessToken(ctx, tenantID); err != nil {
		return nil, err
	}

	start, end, periodType, label, err := computeRange(req.Range, s.now())
	if err != nil {
		return nil, err
	}
	if req.PeriodType != "" {
		if req.PeriodType != models.PeriodTypeMonth && req.PeriodType != models.PeriodTypeQuarter {
			return nil, fmt.Errorf("invalid period_type %q", req.PeriodType)
		}
		periodType = req.PeriodType
	}

	period, err := s.store.EnsurePeriod(ctx, tenantID, periodType, start, end, label)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure period: %w", err)
	}

	summary := &models.SyncSummary{
		PeriodID:         period.ID,
		PeriodLabel:      period.Label,
		PeriodsProcessed: 1,
		Errors:           []string{},
	}
	s.notify(tenantID, "sync_started", summary)

	reportTypes := append([]string{}, requiredReports...)
	if req.IncludeOptional {
		reportTypes = append(reportTypes, optionalReports...)
	}

	for _, reportType := range reportTypes {
		payload, err := s.client.FetchReport(ctx, tenantID, reportType, start, end, req.AccountingMethod)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s %s: %v", period.Label, reportType, err))
			continue
		}
		if err := s.store.UpsertReport(ctx, tenantID, period.ID, reportType, payload); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s %s: save failed: %v", period.Label, reportType, err))
			continue
		}
		summary.ReportsSaved++
	}

	s.deriveMetrics(ctx, tenantID, period, summary)

	s.log.WithFields(logrus.Fields{
		"module":       "services",
		"tenant":       utils.MaskID(tenantID),
		"period":       period.Label,
		"reportsSaved": summary.ReportsSaved,
		"errors":       len(summary.Errors),
	}).Info("sync completed")

	if summary.ReportsSaved == 0 && len(summary.Errors) > 0 {
		s.notify(tenantID, "sync_failed", summary)
		return summary, &utils.SyncFailedError{Errors: summary.Errors}
	}

	s.notify(tenantID, "sync_completed", summary)
	return summary, nil
}

// deriveMetrics recomputes the period's metrics from whatever P&L and
// balance-sheet payloads are stored now. Failures land in the error list
// without undoing already-saved reports.
func (s *SyncService) deriveMetrics(ctx context.Context, tenantID string, period *models.Period, summary *models.SyncSummary) {
	sources := []struct {
		reportType string
		derive     func(*ReportTree) []DerivedMetric
	}{
		{models.ReportProfitAndLoss, DeriveFromProfitAndLoss},
		{models.ReportBalanceSheet, DeriveFromBalanceSheet},
	}

	for _, source := range sources {
		reportType := source.reportType
		payload, err := s.store.GetReportPayload(ctx, tenantID, period.ID, reportType)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s %s: %v",
				period.Label, reportType, &utils.DerivationError{ReportType: reportType, Cause: err}))
			continue
		}

		tree, err := ParseReportTree(payload)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s %s: %v",
				period.Label, reportType, &utils.DerivationError{ReportType: reportType, Cause: err}))
			continue
		}

		for _, metric := range source.derive(tree) {
			if err := s.store.UpsertMetric(ctx, tenantID, period.ID, metric.Key, metric.Value, metric.Unit); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s %s: %v",
					period.Label, reportType, &utils.DerivationError{ReportType: reportType, Cause: err}))
			}
		}
	}
}

func (s *SyncService) notify(tenantID, event string, summary *models.SyncSummary) {
	if s.notifier != nil {
		s.notifier.SyncEvent(tenantID, event, summary)
	}
}

// computeRange maps a range preset to one continuous date span. 3m/6m/12m
// cover trailing N whole months ending at the current month; 4q covers the
// trailing 4 whole quarters. One integrated period per sync call, matching
// how reports are requested from the provider.
func computeRange(preset string, now time.Time) (start, end time.Time, periodType, label string, err error) {
	switch preset {
	case "3m", "6m", "12m":
		months := map[string]int{"3m": 3, "6m": 6, "12m": 12}[preset]
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start = firstOfMonth.AddDate(0, -(months - 1), 0)
		end = firstOfMonth.AddDate(0, 1, -1)
		periodType = models.PeriodTypeMonth
		label = fmt.Sprintf("%s - %s", start.Format("Jan 2006"), end.Format("Jan 2006"))
		return start, end, periodType, label, nil

	case "4q":
		quarterStartMonth := time.Month(((int(now.Month())-1)/3)*3 + 1)
		currentQuarterStart := time.Date(now.Year(), quarterStartMonth, 1, 0, 0, 0, 0, time.UTC)
		start = currentQuarterStart.AddDate(0, -9, 0)
		end = currentQuarterStart.AddDate(0, 3, -1)
		periodType = models.PeriodTypeQuarter
		label = fmt.Sprintf("%s - %s", quarterLabel(start), quarterLabel(end))
		return start, end, periodType, label, nil

	default:
		return time.Time{}, time.Time{}, "", "", fmt.Errorf("invalid range %q: must be one of 3m, 6m, 12m, 4q", preset)
	}
}

func quarterLabel(t time.Time) string {
	quarter := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("Q%d %d", quarter, t.Year())
}
