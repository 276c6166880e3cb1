package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfitAndLoss = `{
	"Header": {
		"ReportName": "ProfitAndLoss",
		"StartPeriod": "2026-01-01",
		"EndPeriod": "2026-03-31",
		"Currency": "USD"
	},
	"Rows": {
		"Row": [
			{
				"Header": {"ColData": [{"value": "Income"}]},
				"Rows": {
					"Row": [
						{"ColData": [{"value": "Sales", "id": "1"}, {"value": "80000.00"}]},
						{"ColData": [{"value": "Services"}, {"value": "20000.00"}]}
					]
				},
				"Summary": {"ColData": [{"value": "Total Income"}, {"value": "100000.00"}]},
				"type": "Section"
			},
			{"ColData": [{"value": "Net Income"}, {"value": "15000.00"}], "group": "NetIncome"}
		]
	}
}`

func TestFlattenSampleTree(t *testing.T) {
	tree, err := ParseReportTree([]byte(sampleProfitAndLoss))
	require.NoError(t, err)
	assert.Equal(t, "ProfitAndLoss", tree.Header.ReportName)

	rows := Flatten(tree)
	require.Len(t, rows, 5)

	assert.Equal(t, FlatRow{Label: "Income", Value: NoValue, Depth: 0, Bold: true}, rows[0])
	assert.Equal(t, FlatRow{Label: "Sales", Value: "80000.00", Depth: 1, Bold: false}, rows[1])
	assert.Equal(t, FlatRow{Label: "Services", Value: "20000.00", Depth: 1, Bold: false}, rows[2])
	assert.Equal(t, FlatRow{Label: "Total Income", Value: "100000.00", Depth: 0, Bold: true}, rows[3])
	assert.Equal(t, FlatRow{Label: "Net Income", Value: "15000.00", Depth: 0, Bold: false}, rows[4])
}

func TestFlattenSectionWithoutHeaderLabel(t *testing.T) {
	payload := `{
		"Rows": {"Row": [
			{
				"Rows": {"Row": [{"ColData": [{"value": "Checking"}, {"value": "500.00"}]}]},
				"Summary": {"ColData": [{"value": "Total Bank Accounts"}, {"value": "500.00"}]}
			}
		]}
	}`
	tree, err := ParseReportTree([]byte(payload))
	require.NoError(t, err)

	rows := Flatten(tree)
	require.Len(t, rows, 2)
	assert.Equal(t, "Checking", rows[0].Label)
	assert.Equal(t, 1, rows[0].Depth)
	assert.Equal(t, "Total Bank Accounts", rows[1].Label)
	assert.True(t, rows[1].Bold)
}

func TestFlattenEmptyAndHeaderOnlyRows(t *testing.T) {
	payload := `{"Rows": {"Row": [
		{},
		{"ColData": []},
		{"ColData": [{"value": "Only Label"}]}
	]}}`
	tree, err := ParseReportTree([]byte(payload))
	require.NoError(t, err)

	rows := Flatten(tree)
	require.Len(t, rows, 1)
	assert.Equal(t, "Only Label", rows[0].Label)
	assert.Equal(t, NoValue, rows[0].Value)
}

func TestFlattenPicksFirstNumericColumn(t *testing.T) {
	payload := `{"Rows": {"Row": [
		{"ColData": [{"value": "Sales"}, {"value": "notes"}, {"value": "1,250.00"}, {"value": "whatever"}]}
	]}}`
	tree, err := ParseReportTree([]byte(payload))
	require.NoError(t, err)

	rows := Flatten(tree)
	require.Len(t, rows, 1)
	assert.Equal(t, "1,250.00", rows[0].Value)
}

func TestFlattenFallsBackToLastColumn(t *testing.T) {
	payload := `{"Rows": {"Row": [
		{"ColData": [{"value": "Memo"}, {"value": "first"}, {"value": "last"}]},
		{"ColData": [{"value": "Blank Tail"}, {"value": ""}]}
	]}}`
	tree, err := ParseReportTree([]byte(payload))
	require.NoError(t, err)

	rows := Flatten(tree)
	require.Len(t, rows, 2)
	assert.Equal(t, "last", rows[0].Value)
	assert.Equal(t, NoValue, rows[1].Value)
}

func TestParseReportTreeMalformed(t *testing.T) {
	_, err := ParseReportTree([]byte(`{"Rows": [`))
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1234.56", "1234.56", true},
		{"0", "0", true},
		{"0.00", "0", true},
		{"-42.10", "-42.1", true},
		{"1,234,567.89", "1234567.89", true},
		{"$1,200.00", "1200", true},
		{"€500", "500", true},
		{"£99.99", "99.99", true},
		{"(1,500.00)", "-1500", true},
		{"($250.00)", "-250", true},
		{" 12.5 ", "12.5", true},
		{"", "0", false},
		{"—", "0", false},
		{"N/A", "0", false},
		{"()", "0", false},
		{"abc", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			want, err := decimal.NewFromString(tt.want)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "want %s, got %s", want, got)
		})
	}
}
