package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NoValue marks a cell with no usable amount. Zero is a valid amount;
// absence is not, so the two are never conflated.
const NoValue = "—"

// Provider report trees arrive as a recursive structure where every row is
// one of a few observed shapes: a leaf data row (ColData only), a section
// with nested rows plus optional Header and Summary lines, or a
// header-only row. The structs below normalize provider JSON into that
// union before any business logic touches it.

type ReportCell struct {
	Value string `json:"value"`
	ID    string `json:"id,omitempty"`
}

type ReportLine struct {
	ColData []ReportCell `json:"ColData"`
}

type ReportRows struct {
	Row []ReportRow `json:"Row"`
}

type ReportRow struct {
	Type    string       `json:"type,omitempty"`
	Group   string       `json:"group,omitempty"`
	ColData []ReportCell `json:"ColData,omitempty"`
	Header  *ReportLine  `json:"Header,omitempty"`
	Rows    *ReportRows  `json:"Rows,omitempty"`
	Summary *ReportLine  `json:"Summary,omitempty"`
}

type ReportHeader struct {
	ReportName  string `json:"ReportName"`
	StartPeriod string `json:"StartPeriod"`
	EndPeriod   string `json:"EndPeriod"`
	Currency    string `json:"Currency"`
}

type ReportTree struct {
	Header ReportHeader `json:"Header"`
	Rows   ReportRows   `json:"Rows"`
}

// ParseReportTree decodes a raw provider payload into the row union.
func ParseReportTree(payload []byte) (*ReportTree, error) {
	var tree ReportTree
	if err := json.Unmarshal(payload, &tree); err != nil {
		return nil, fmt.Errorf("malformed report payload: %w", err)
	}
	return &tree, nil
}

// FlatRow is one rendered line of a flattened report. Transient; produced
// fresh on each parse and never stored.
type FlatRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Depth int    `json:"depth"`
	Bold  bool   `json:"bold"`
}

// Flatten walks the tree depth-first and returns the ordered flat rows.
// Pure and deterministic: same tree in, same rows out.
func Flatten(tree *ReportTree) []FlatRow {
	out := make([]FlatRow, 0, len(tree.Rows.Row))
	flattenRows(tree.Rows.Row, 0, &out)
	return out
}

func flattenRows(rows []ReportRow, depth int, out *[]FlatRow) {
	for _, row := range rows {
		flattenRow(row, depth, out)
	}
}

func flattenRow(row ReportRow, depth int, out *[]FlatRow) {
	if isSection(row) {
		if row.Header != nil && len(row.Header.ColData) > 0 {
			label, value := labelAndValue(row.Header.ColData)
			if label != "" {
				*out = append(*out, FlatRow{Label: label, Value: value, Depth: depth, Bold: true})
			}
		}
		if row.Rows != nil {
			flattenRows(row.Rows.Row, depth+1, out)
		}
		if row.Summary != nil && len(row.Summary.ColData) > 0 {
			label, value := labelAndValue(row.Summary.ColData)
			*out = append(*out, FlatRow{Label: label, Value: value, Depth: depth, Bold: true})
		}
		return
	}

	if len(row.ColData) == 0 {
		return
	}
	label, value := labelAndValue(row.ColData)
	*out = append(*out, FlatRow{Label: label, Value: value, Depth: depth, Bold: false})
}

func isSection(row ReportRow) bool {
	return row.Rows != nil || row.Header != nil || strings.EqualFold(row.Type, "Section")
}

// labelAndValue takes the first column as label and the first column after
// it that parses as a number as value, falling back to the last column,
// then to the sentinel.
func labelAndValue(cells []ReportCell) (string, string) {
	label := strings.TrimSpace(cells[0].Value)
	if len(cells) < 2 {
		return label, NoValue
	}

	for _, cell := range cells[1:] {
		if _, ok := ParseAmount(cell.Value); ok {
			return label, cell.Value
		}
	}

	last := strings.TrimSpace(cells[len(cells)-1].Value)
	if last == "" {
		return label, NoValue
	}
	return label, last
}

// ParseAmount turns a formatted report value into a decimal. Currency
// symbols and thousands separators are stripped; parenthesized numbers are
// negative per accounting convention.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s == NoValue {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}
