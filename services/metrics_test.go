package services

import (
	"testing"

	"github.com/ledgerlink/books-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsByKey(metrics []DerivedMetric) map[string]DerivedMetric {
	out := make(map[string]DerivedMetric, len(metrics))
	for _, m := range metrics {
		out[m.Key] = m
	}
	return out
}

func leafRow(label, value string) string {
	return `{"ColData": [{"value": "` + label + `"}, {"value": "` + value + `"}]}`
}

func treeOf(t *testing.T, rows ...string) *ReportTree {
	t.Helper()
	payload := `{"Rows": {"Row": [`
	for i, r := range rows {
		if i > 0 {
			payload += ","
		}
		payload += r
	}
	payload += `]}}`
	tree, err := ParseReportTree([]byte(payload))
	require.NoError(t, err)
	return tree
}

func TestDeriveFromProfitAndLoss(t *testing.T) {
	tree := treeOf(t,
		leafRow("Total Income", "100000.00"),
		leafRow("Total Expenses", "85000.00"),
		leafRow("Net Income", "15000.00"),
	)

	got := metricsByKey(DeriveFromProfitAndLoss(tree))
	require.Len(t, got, 4)

	assert.True(t, got[models.MetricRevenue].Value.Equal(decimal.NewFromInt(100000)))
	assert.True(t, got[models.MetricExpenses].Value.Equal(decimal.NewFromInt(85000)))
	assert.True(t, got[models.MetricNetIncome].Value.Equal(decimal.NewFromInt(15000)))

	margin := got[models.MetricProfitMarginPct]
	assert.Equal(t, models.UnitRatio, margin.Unit)
	assert.Equal(t, "15", margin.Value.String())
}

func TestDeriveProfitMarginRounding(t *testing.T) {
	tree := treeOf(t,
		leafRow("Total Income", "30000.00"),
		leafRow("Net Income", "10000.00"),
	)

	got := metricsByKey(DeriveFromProfitAndLoss(tree))
	assert.Equal(t, "33.3", got[models.MetricProfitMarginPct].Value.String())
}

func TestDeriveZeroRevenueYieldsZeroMargin(t *testing.T) {
	tree := treeOf(t,
		leafRow("Total Income", "0.00"),
		leafRow("Net Income", "-500.00"),
	)

	got := metricsByKey(DeriveFromProfitAndLoss(tree))
	margin, ok := got[models.MetricProfitMarginPct]
	require.True(t, ok)
	assert.True(t, margin.Value.IsZero())
}

func TestDeriveNegativeRevenueUsesAbsoluteValue(t *testing.T) {
	tree := treeOf(t,
		leafRow("Total Income", "(10000.00)"),
		leafRow("Net Income", "-2000.00"),
	)

	got := metricsByKey(DeriveFromProfitAndLoss(tree))
	assert.Equal(t, "-20", got[models.MetricProfitMarginPct].Value.String())
}

func TestRevenueExclusionsAreNotCaptured(t *testing.T) {
	// None of these may be picked up as revenue.
	tree := treeOf(t,
		leafRow("Net Income", "15000.00"),
		leafRow("Other Income", "300.00"),
		leafRow("Gross Income", "99000.00"),
		leafRow("Total Cost of Goods Sold", "40000.00"),
	)

	got := metricsByKey(DeriveFromProfitAndLoss(tree))
	_, hasRevenue := got[models.MetricRevenue]
	assert.False(t, hasRevenue)
}

func TestLastMatchWinsOverDetailRows(t *testing.T) {
	// Detail "income" lines come before the total; the total wins.
	tree := treeOf(t,
		leafRow("Design Income", "40000.00"),
		leafRow("Consulting Income", "60000.00"),
		leafRow("Total Income", "100000.00"),
	)

	got := metricsByKey(DeriveFromProfitAndLoss(tree))
	assert.True(t, got[models.MetricRevenue].Value.Equal(decimal.NewFromInt(100000)))
}

func TestDeriveFromBalanceSheet(t *testing.T) {
	tree := treeOf(t,
		leafRow("Total Bank Accounts", "42000.00"),
		leafRow("Undeposited Funds", "1500.00"),
		leafRow("Total Accounts Receivable (A/R)", "12000.00"),
		leafRow("Total Accounts Payable (A/P)", "6000.00"),
	)

	got := metricsByKey(DeriveFromBalanceSheet(tree))
	require.Len(t, got, 3)

	assert.True(t, got[models.MetricCash].Value.Equal(decimal.NewFromInt(43500)))
	assert.True(t, got[models.MetricAccountsReceivable].Value.Equal(decimal.NewFromInt(12000)))
	assert.True(t, got[models.MetricAccountsPayable].Value.Equal(decimal.NewFromInt(6000)))
}

func TestDeriveCashFromBankAccountsOnly(t *testing.T) {
	tree := treeOf(t, leafRow("Total Bank Accounts", "9000.00"))

	got := metricsByKey(DeriveFromBalanceSheet(tree))
	cash, ok := got[models.MetricCash]
	require.True(t, ok)
	assert.True(t, cash.Value.Equal(decimal.NewFromInt(9000)))
}

func TestDeriveBalanceSheetWithNoMatches(t *testing.T) {
	tree := treeOf(t, leafRow("Fixed Assets", "120000.00"))
	assert.Empty(t, DeriveFromBalanceSheet(tree))
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Total Income", "total income"},
		{"NetIncome", "net income"},
		{"  Accounts   Receivable ", "accounts receivable"},
		{"TOTAL EXPENSES", "total expenses"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeLabel(tt.in), "input %q", tt.in)
	}
}
