package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PeriodTypeMonth   = "month"
	PeriodTypeQuarter = "quarter"
)

// Report types the orchestrator knows how to fetch. ProfitAndLoss and
// BalanceSheet are always synced; the rest only when optional reports are
// requested.
const (
	ReportProfitAndLoss   = "profit_and_loss"
	ReportBalanceSheet    = "balance_sheet"
	ReportCashFlow        = "cash_flow"
	ReportARAging         = "ar_aging"
	ReportAPAging         = "ap_aging"
	ReportChartOfAccounts = "chart_of_accounts"
)

// Metric keys and units.
const (
	MetricRevenue            = "revenue"
	MetricExpenses           = "expenses"
	MetricNetIncome          = "net_income"
	MetricProfitMarginPct    = "profit_margin_pct"
	MetricCash               = "cash"
	MetricAccountsReceivable = "accounts_receivable"
	MetricAccountsPayable    = "accounts_payable"

	UnitCurrency = "currency"
	UnitRatio    = "ratio"
)

// Period is a named, de-duplicated date range scoped to a tenant. Created
// lazily the first time a range is synced, never mutated afterwards.
type Period struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	PeriodType string    `json:"period_type"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Label      string    `json:"label"`
	CreatedAt  time.Time `json:"created_at"`
}

// Report is one raw provider payload for (tenant, report_type, period).
// Re-syncing overwrites the payload and refreshes SyncedAt.
type Report struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	PeriodID   string    `json:"period_id"`
	ReportType string    `json:"report_type"`
	Payload    []byte    `json:"payload"`
	SyncedAt   time.Time `json:"synced_at"`
}

// Metric is one normalized numeric fact derived from reports, recomputed
// on every sync of its period.
type Metric struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	PeriodID  string          `json:"period_id"`
	MetricKey string          `json:"metric_key"`
	Value     decimal.Decimal `json:"value"`
	Unit      string          `json:"unit"`
	UpdatedAt time.Time       `json:"updated_at"`
}
