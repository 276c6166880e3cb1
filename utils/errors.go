package utils

import (
	"errors"
	"fmt"
)

// ErrNoConnection means the tenant never completed the OAuth connect flow.
// Deliberately distinct from an expired or revoked token: the remediation
// is "connect", not "re-authorize".
var ErrNoConnection = errors.New("no QuickBooks connection for this tenant - connect first")

// NeedsReauthError signals that automated token refresh cannot proceed and
// a human must re-authorize. It is threaded intact from the refresh
// exchange through the API client to the orchestrator.
type NeedsReauthError struct {
	TenantID string
	Reason   string
}

func (e *NeedsReauthError) Error() string {
	return fmt.Sprintf("quickbooks connection needs re-authorization: %s", e.Reason)
}

// RateLimitError is raised once the 429 retry budget is exhausted.
type RateLimitError struct {
	Code    string
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("quickbooks rate limit exceeded (code %s): %s", e.Code, e.Message)
}

// APIError is any other non-2xx provider response, parsed from the fault
// envelope so callers see status/code/message/detail instead of a bare
// string.
type APIError struct {
	Status  int
	Code    string
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("quickbooks api error %d (code %s): %s - %s", e.Status, e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("quickbooks api error %d (code %s): %s", e.Status, e.Code, e.Message)
}

// DerivationError marks a failed metric extraction for one period. Never
// fatal to the sync that produced it.
type DerivationError struct {
	ReportType string
	Cause      error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("metric derivation from %s failed: %v", e.ReportType, e.Cause)
}

func (e *DerivationError) Unwrap() error { return e.Cause }

// SyncFailedError is returned when a sync run completed but saved nothing
// while collecting errors. It makes the "ok but empty" outcome an explicit
// failure instead of a convention callers must remember to check.
type SyncFailedError struct {
	Errors []string
}

func (e *SyncFailedError) Error() string {
	return fmt.Sprintf("sync saved no reports (%d errors, first: %s)", len(e.Errors), first(e.Errors))
}

func first(errs []string) string {
	if len(errs) == 0 {
		return "none recorded"
	}
	return errs[0]
}
