package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerlink/books-api/config"
	"github.com/ledgerlink/books-api/models"
	"github.com/ledgerlink/books-api/utils"
	"github.com/sirupsen/logrus"
)

const (
	maxRateLimitRetries = 3
	backoffBase         = time.Second
)

// tokenProvider resolves a fresh access token and realm id per call.
// TokenService implements it; tests inject a fake.
type tokenProvider interface {
	GetValidAccessToken(ctx context.Context, tenantID string) (*models.TokenPair, error)
}

type QuickBooksService struct {
	tokens  tokenProvider
	BaseURL string
	Client  *http.Client
	Backoff time.Duration
	log     *logrus.Logger
}

func NewQuickBooksService(tokens tokenProvider, cfg *config.QuickBooksConfig) *QuickBooksService {
	return &QuickBooksService{
		tokens:  tokens,
		BaseURL: cfg.APIBaseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Backoff: backoffBase,
		log:     config.Logger(),
	}
}

// APIRequest describes one provider call. Path is relative to the
// company root, e.g. "/reports/ProfitAndLoss".
type APIRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Request issues an authenticated call. 401 always surfaces NeedsReauth
// regardless of cause; 429 is retried honoring Retry-After or exponential
// backoff until the retry cap; any other non-2xx becomes a structured
// APIError. Non-JSON success bodies come back as a JSON-encoded string.
func (s *QuickBooksService) Request(ctx context.Context, tenantID string, apiReq APIRequest) (json.RawMessage, error) {
	pair, err := s.tokens.GetValidAccessToken(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	endpoint := s.BaseURL + "/v3/company/" + pair.RealmID + apiReq.Path
	if len(apiReq.Query) > 0 {
		endpoint += "?" + apiReq.Query.Encode()
	}

	var bodyBytes []byte
	if apiReq.Body != nil {
		if bodyBytes, err = json.Marshal(apiReq.Body); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, apiReq.Method, endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		req.Header.Set("Accept", "application/json")
		if apiReq.Body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("quickbooks request failed: %w", err)
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			code, message, _ := parseFault(respBody)
			if attempt >= maxRateLimitRetries {
				return nil, &utils.RateLimitError{Code: code, Message: message}
			}
			wait := retryAfter(resp)
			if wait <= 0 {
				wait = s.Backoff << attempt
			}
			s.log.WithFields(logrus.Fields{
				"module":  "services",
				"tenant":  utils.MaskID(tenantID),
				"path":    apiReq.Path,
				"wait":    wait.String(),
				"attempt": attempt + 1,
			}).Warn("quickbooks rate limited, retrying")
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &utils.NeedsReauthError{TenantID: tenantID, Reason: "provider returned 401"}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			code, message, detail := parseFault(respBody)
			return nil, &utils.APIError{Status: resp.StatusCode, Code: code, Message: message, Detail: detail}
		}

		if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
			return json.Marshal(string(respBody))
		}
		return json.RawMessage(respBody), nil
	}
}

// providerReportNames maps our report types to the provider's report
// endpoints. The chart of accounts is served by the AccountList report.
var providerReportNames = map[string]string{
	models.ReportProfitAndLoss:   "ProfitAndLoss",
	models.ReportBalanceSheet:    "BalanceSheet",
	models.ReportCashFlow:        "CashFlow",
	models.ReportARAging:         "AgedReceivables",
	models.ReportAPAging:         "AgedPayables",
	models.ReportChartOfAccounts: "AccountList",
}

// FetchReport pulls one date-ranged report tree.
func (s *QuickBooksService) FetchReport(ctx context.Context, tenantID, reportType string, start, end time.Time, accountingMethod string) (json.RawMessage, error) {
	name, ok := providerReportNames[reportType]
	if !ok {
		return nil, fmt.Errorf("unknown report type %q", reportType)
	}
	if accountingMethod == "" {
		accountingMethod = "Accrual"
	}

	query := url.Values{
		"start_date":        {start.Format("2006-01-02")},
		"end_date":          {end.Format("2006-01-02")},
		"accounting_method": {accountingMethod},
	}
	return s.Request(ctx, tenantID, APIRequest{Method: http.MethodGet, Path: "/reports/" + name, Query: query})
}

// Query runs an ad hoc entity query (customers, invoices, ...) outside the
// sync path.
func (s *QuickBooksService) Query(ctx context.Context, tenantID, statement string) (json.RawMessage, error) {
	return s.Request(ctx, tenantID, APIRequest{
		Method: http.MethodGet,
		Path:   "/query",
		Query:  url.Values{"query": {statement}},
	})
}

// parseFault reads the provider fault envelope. encoding/json matches
// keys case-insensitively, which also covers the lowercase
// fault/error/message variant seen in the wild.
func parseFault(body []byte) (code, message, detail string) {
	var envelope struct {
		Fault struct {
			Error []struct {
				Message string `json:"Message"`
				Detail  string `json:"Detail"`
				Code    string `json:"code"`
			} `json:"Error"`
		} `json:"Fault"`
	}

	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Fault.Error) > 0 {
		first := envelope.Fault.Error[0]
		return first.Code, first.Message, first.Detail
	}

	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 256 {
		trimmed = trimmed[:256]
	}
	return "", trimmed, ""
}

func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
