package models

// SyncRequest is the inbound shape for a sync call.
type SyncRequest struct {
	Range            string `json:"range" binding:"required"` // 3m | 6m | 12m | 4q
	PeriodType       string `json:"period_type"`              // month | quarter, defaulted from range
	IncludeOptional  bool   `json:"include_optional"`
	AccountingMethod string `json:"accounting_method"` // Accrual (default) | Cash
}

// SyncSummary aggregates one sync run. Errors holds per-report failures
// prefixed with the period label and report type; a run with saved reports
// and a non-empty error list is a partial success.
type SyncSummary struct {
	PeriodID         string   `json:"period_id"`
	PeriodLabel      string   `json:"period_label"`
	PeriodsProcessed int      `json:"periods_processed"`
	ReportsSaved     int      `json:"reports_saved"`
	Errors           []string `json:"errors"`
}
