package services

import (
	"strings"
	"unicode"

	"github.com/ledgerlink/books-api/models"
	"github.com/shopspring/decimal"
)

// DerivedMetric is one extracted financial fact, ready for upsert.
type DerivedMetric struct {
	Key   string
	Value decimal.Decimal
	Unit  string
}

// metricRule is one declarative matching rule: a row's normalized label
// must contain one of the include patterns and none of the exclude
// patterns. New label variants are added here, not in code.
type metricRule struct {
	Key     string
	Include []string
	Exclude []string
}

// Profit-and-loss rules. Revenue excludes net/other/gross/cost so "Net
// Income" or "Total Cost of Goods Sold" can never be captured as revenue.
var profitAndLossRules = []metricRule{
	{
		Key:     models.MetricRevenue,
		Include: []string{"total income", "total revenue", "revenue", "income"},
		Exclude: []string{"net", "other", "gross", "cost"},
	},
	{
		Key:     models.MetricExpenses,
		Include: []string{"total expenses", "total operating expenses", "expenses"},
		Exclude: []string{"other"},
	},
	{
		Key:     models.MetricNetIncome,
		Include: []string{"net income", "net profit", "net earnings"},
	},
}

// Balance-sheet rules. AR and AP mutually exclude each other's keyword.
// There is no single "cash" row on the provider's balance sheet; cash is
// the sum of the bank-accounts total and undeposited funds.
var bankAccountsRule = metricRule{
	Key:     "bank_accounts",
	Include: []string{"total bank accounts", "bank accounts", "total cash and cash equivalents"},
}

var undepositedFundsRule = metricRule{
	Key:     "undeposited_funds",
	Include: []string{"undeposited funds"},
}

var balanceSheetRules = []metricRule{
	{
		Key:     models.MetricAccountsReceivable,
		Include: []string{"total accounts receivable", "accounts receivable", "a/r"},
		Exclude: []string{"payable"},
	},
	{
		Key:     models.MetricAccountsPayable,
		Include: []string{"total accounts payable", "accounts payable", "a/p"},
		Exclude: []string{"receivable"},
	},
}

// DeriveFromProfitAndLoss extracts revenue, expenses, net income and the
// profit margin from a P&L tree. Zero revenue yields a 0 margin, never a
// division error.
func DeriveFromProfitAndLoss(tree *ReportTree) []DerivedMetric {
	rows := Flatten(tree)

	out := make([]DerivedMetric, 0, 4)
	found := map[string]decimal.Decimal{}
	for _, rule := range profitAndLossRules {
		if v, ok := lastMatch(rows, rule); ok {
			found[rule.Key] = v
			out = append(out, DerivedMetric{Key: rule.Key, Value: v, Unit: models.UnitCurrency})
		}
	}

	if net, ok := found[models.MetricNetIncome]; ok {
		margin := decimal.Zero
		if revenue, ok := found[models.MetricRevenue]; ok && !revenue.IsZero() {
			margin = net.Div(revenue.Abs()).Mul(decimal.NewFromInt(100)).Round(1)
		}
		out = append(out, DerivedMetric{Key: models.MetricProfitMarginPct, Value: margin, Unit: models.UnitRatio})
	}

	return out
}

// DeriveFromBalanceSheet extracts cash, accounts receivable and accounts
// payable from a balance-sheet tree.
func DeriveFromBalanceSheet(tree *ReportTree) []DerivedMetric {
	rows := Flatten(tree)

	out := make([]DerivedMetric, 0, 3)

	cash := decimal.Zero
	haveCash := false
	if v, ok := lastMatch(rows, bankAccountsRule); ok {
		cash = cash.Add(v)
		haveCash = true
	}
	if v, ok := lastMatch(rows, undepositedFundsRule); ok {
		cash = cash.Add(v)
		haveCash = true
	}
	if haveCash {
		out = append(out, DerivedMetric{Key: models.MetricCash, Value: cash, Unit: models.UnitCurrency})
	}

	for _, rule := range balanceSheetRules {
		if v, ok := lastMatch(rows, rule); ok {
			out = append(out, DerivedMetric{Key: rule.Key, Value: v, Unit: models.UnitCurrency})
		}
	}

	return out
}

// lastMatch scans for the LAST matching row with a parseable amount.
// Reports place total lines after their detail lines, and totals are what
// a metric represents.
func lastMatch(rows []FlatRow, rule metricRule) (decimal.Decimal, bool) {
	var value decimal.Decimal
	found := false
	for _, row := range rows {
		label := normalizeLabel(row.Label)
		if !matches(label, rule) {
			continue
		}
		if v, ok := ParseAmount(row.Value); ok {
			value = v
			found = true
		}
	}
	return value, found
}

func matches(label string, rule metricRule) bool {
	for _, pattern := range rule.Exclude {
		if strings.Contains(label, pattern) {
			return false
		}
	}
	for _, pattern := range rule.Include {
		if strings.Contains(label, pattern) {
			return true
		}
	}
	return false
}

// normalizeLabel case-folds, splits camel-case boundaries ("NetIncome" ->
// "net income") and collapses whitespace.
func normalizeLabel(label string) string {
	var b strings.Builder
	b.Grow(len(label) + 4)

	runes := []rune(label)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			b.WriteRune(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
