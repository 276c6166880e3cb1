package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/ledgerlink/books-api/config"
	"github.com/ledgerlink/books-api/middleware"
	"github.com/ledgerlink/books-api/models"
	"github.com/ledgerlink/books-api/services"
	"github.com/ledgerlink/books-api/utils"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	Sync  *services.SyncService
	Store *services.ReportStore
}

func NewSyncHandler(sync *services.SyncService, store *services.ReportStore) *SyncHandler {
	return &SyncHandler{Sync: sync, Store: store}
}

// SyncReports runs a sync for the authenticated tenant. Error classes map
// to distinct statuses so the caller's remediation is obvious: connect,
// re-authorize, back off, or retry.
func (h *SyncHandler) SyncReports(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": "range is required (3m, 6m, 12m or 4q)"})
		return
	}

	summary, err := h.Sync.SyncReports(c.Request.Context(), tenantID, req)
	if err != nil {
		h.renderSyncError(c, summary, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *SyncHandler) renderSyncError(c *gin.Context, summary *models.SyncSummary, err error) {
	var needsReauth *utils.NeedsReauthError
	var rateLimited *utils.RateLimitError
	var syncFailed *utils.SyncFailedError

	switch {
	case errors.Is(err, utils.ErrNoConnection):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "no_connection"})
	case errors.As(err, &needsReauth):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "needs_reauth"})
	case errors.As(err, &rateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "code": "rate_limited"})
	case errors.As(err, &syncFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": "sync_failed", "summary": summary})
	default:
		config.LogError("handlers", "SyncReports", "sync run", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetPeriods lists the tenant's synced periods.
func (h *SyncHandler) GetPeriods(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	periods, err := h.Store.ListPeriods(c.Request.Context(), tenantID)
	if err != nil {
		config.LogError("handlers", "GetPeriods", "list periods", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load periods"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"periods": periods})
}

// GetMetrics returns derived metrics for one period.
func (h *SyncHandler) GetMetrics(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	periodID := c.Query("period_id")
	if periodID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period_id is required"})
		return
	}

	metrics, err := h.Store.GetMetrics(c.Request.Context(), tenantID, periodID)
	if err != nil {
		config.LogError("handlers", "GetMetrics", "load metrics", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}

// GetReport returns one stored raw report, flattened on request.
func (h *SyncHandler) GetReport(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	reportType := c.Param("type")
	periodID := c.Query("period_id")
	if periodID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period_id is required"})
		return
	}

	report, err := h.Store.GetReport(c.Request.Context(), tenantID, periodID, reportType)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "No report stored for this period"})
		return
	}
	if err != nil {
		config.LogError("handlers", "GetReport", "load report", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load report"})
		return
	}

	if c.Query("flat") == "true" {
		tree, err := services.ParseReportTree(report.Payload)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Stored payload is not a parseable report tree"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"report_type": report.ReportType,
			"synced_at":   report.SyncedAt,
			"rows":        services.Flatten(tree),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}
