package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ledgerlink/books-api/config"
	"github.com/ledgerlink/books-api/models"
	"github.com/ledgerlink/books-api/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	pair *models.TokenPair
	err  error
}

func (f *staticTokens) GetValidAccessToken(ctx context.Context, tenantID string) (*models.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pair, nil
}

func newTestQuickBooks(baseURL string) *QuickBooksService {
	return &QuickBooksService{
		tokens:  &staticTokens{pair: &models.TokenPair{AccessToken: "tok-abc", RealmID: "realm123"}},
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
		Backoff: time.Millisecond,
		log:     config.Logger(),
	}
}

func TestRequestSuccessPassesThroughJSON(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	s := newTestQuickBooks(srv.URL)
	raw, err := s.Request(context.Background(), "tenant-1", APIRequest{Method: http.MethodGet, Path: "/ping"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(raw))
	assert.Equal(t, "Bearer tok-abc", gotAuth)
}

func TestRequestRetriesRateLimitThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"recovered": true}`))
	}))
	defer srv.Close()

	s := newTestQuickBooks(srv.URL)
	raw, err := s.Request(context.Background(), "tenant-1", APIRequest{Method: http.MethodGet, Path: "/ping"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"recovered": true}`, string(raw))
	assert.Equal(t, 3, calls)
}

func TestRequestGivesUpAfterRetryCap(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"Fault": {"Error": [{"Message": "ThrottleExceeded", "code": "3001"}]}}`))
	}))
	defer srv.Close()

	s := newTestQuickBooks(srv.URL)
	_, err := s.Request(context.Background(), "tenant-1", APIRequest{Method: http.MethodGet, Path: "/ping"})

	var rateErr *utils.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "3001", rateErr.Code)
	assert.Equal(t, "ThrottleExceeded", rateErr.Message)
	// Initial attempt plus the retry cap.
	assert.Equal(t, maxRateLimitRetries+1, calls)
}

func TestRequestUnauthorizedIsNeedsReauth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := newTestQuickBooks(srv.URL)
	_, err := s.Request(context.Background(), "tenant-1", APIRequest{Method: http.MethodGet, Path: "/ping"})

	var reauthErr *utils.NeedsReauthError
	require.ErrorAs(t, err, &reauthErr)
	assert.Equal(t, "tenant-1", reauthErr.TenantID)
}

func TestRequestFaultEnvelopeBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"Fault": {"Error": [{"Message": "Invalid query", "Detail": "bad column", "code": "4000"}]}}`))
	}))
	defer srv.Close()

	s := newTestQuickBooks(srv.URL)
	_, err := s.Request(context.Background(), "tenant-1", APIRequest{Method: http.MethodGet, Path: "/query"})

	var apiErr *utils.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "4000", apiErr.Code)
	assert.Equal(t, "Invalid query", apiErr.Message)
	assert.Equal(t, "bad column", apiErr.Detail)
}

func TestRequestTokenFailurePropagates(t *testing.T) {
	s := newTestQuickBooks("http://127.0.0.1:0")
	s.tokens = &staticTokens{err: utils.ErrNoConnection}

	_, err := s.Request(context.Background(), "tenant-1", APIRequest{Method: http.MethodGet, Path: "/ping"})
	assert.ErrorIs(t, err, utils.ErrNoConnection)
}

func TestRequestNonJSONSuccessIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain body"))
	}))
	defer srv.Close()

	s := newTestQuickBooks(srv.URL)
	raw, err := s.Request(context.Background(), "tenant-1", APIRequest{Method: http.MethodGet, Path: "/ping"})
	require.NoError(t, err)

	var got string
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "plain body", got)
}

func TestFetchReportBuildsProviderRequest(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Encode()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := newTestQuickBooks(srv.URL)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	_, err := s.FetchReport(context.Background(), "tenant-1", models.ReportProfitAndLoss, start, end, "")
	require.NoError(t, err)

	assert.Equal(t, "/v3/company/realm123/reports/ProfitAndLoss", gotPath)
	assert.Equal(t, "accounting_method=Accrual&end_date=2026-03-31&start_date=2026-01-01", gotQuery)
}

func TestFetchReportChartOfAccountsUsesAccountList(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := newTestQuickBooks(srv.URL)
	_, err := s.FetchReport(context.Background(), "tenant-1", models.ReportChartOfAccounts,
		time.Now(), time.Now(), "Cash")
	require.NoError(t, err)
	assert.Equal(t, "/v3/company/realm123/reports/AccountList", gotPath)
}

func TestFetchReportUnknownType(t *testing.T) {
	s := newTestQuickBooks("http://127.0.0.1:0")
	_, err := s.FetchReport(context.Background(), "tenant-1", "general_ledger", time.Now(), time.Now(), "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "unknown report type")
}

func TestParseFault(t *testing.T) {
	tests := []struct {
		name                string
		body                string
		code, message, detail string
	}{
		{
			name:    "capitalized envelope",
			body:    `{"Fault": {"Error": [{"Message": "msg", "Detail": "det", "code": "100"}]}}`,
			code:    "100",
			message: "msg",
			detail:  "det",
		},
		{
			name:    "lowercase envelope",
			body:    `{"fault": {"error": [{"message": "msg", "detail": "det", "code": "100"}]}}`,
			code:    "100",
			message: "msg",
			detail:  "det",
		},
		{
			name:    "non-json body",
			body:    "  gateway timeout  ",
			message: "gateway timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message, detail := parseFault([]byte(tt.body))
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.message, message)
			assert.Equal(t, tt.detail, detail)
		})
	}
}

func TestRetryAfter(t *testing.T) {
	mk := func(value string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if value != "" {
			resp.Header.Set("Retry-After", value)
		}
		return resp
	}

	assert.Equal(t, time.Duration(0), retryAfter(mk("")))
	assert.Equal(t, time.Duration(0), retryAfter(mk("soon")))
	assert.Equal(t, time.Duration(0), retryAfter(mk("-1")))
	assert.Equal(t, 2*time.Second, retryAfter(mk("2")))
}
