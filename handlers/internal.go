package handlers

import (
	"net/http"

	"github.com/ledgerlink/books-api/config"
	"github.com/ledgerlink/books-api/models"
	"github.com/ledgerlink/books-api/services"
	"github.com/ledgerlink/books-api/utils"

	"github.com/gin-gonic/gin"
)

// InternalHandler serves scheduler-only endpoints. Requests must carry
// the shared cron secret, these routes sit outside the JWT surface.
type InternalHandler struct {
	Sync        *services.SyncService
	Connections *services.ConnectionService
	CronSecret  string
}

type tenantSyncResult struct {
	TenantID string `json:"tenant_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// SyncAll runs a default sync for every connected tenant. One tenant
// failing never blocks the rest.
func (h *InternalHandler) SyncAll(c *gin.Context) {
	if h.CronSecret == "" || c.GetHeader("X-Cron-Secret") != h.CronSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid cron secret"})
		return
	}

	tenantIDs, err := h.Connections.ListConnectedTenantIDs(c.Request.Context())
	if err != nil {
		config.LogError("handlers", "SyncAll", "listing connected tenants", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tenants"})
		return
	}

	results := h.syncTenants(c, tenantIDs)

	failed := 0
	for _, r := range results {
		if r.Status == "failed" {
			failed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"tenants_total":  len(tenantIDs),
		"tenants_failed": failed,
		"results":        results,
	})
}

func (h *InternalHandler) syncTenants(c *gin.Context, tenantIDs []string) []tenantSyncResult {
	log := config.Logger()
	results := make([]tenantSyncResult, 0, len(tenantIDs))

	req := models.SyncRequest{Range: "3m"}

	for _, tenantID := range tenantIDs {
		_, err := h.Sync.SyncReports(c.Request.Context(), tenantID, req)
		if err != nil {
			log.WithFields(map[string]interface{}{
				"tenant_id": utils.MaskID(tenantID),
				"error":     err.Error(),
			}).Warn("scheduled sync failed for tenant")
			results = append(results, tenantSyncResult{TenantID: tenantID, Status: "failed", Error: err.Error()})
			continue
		}
		results = append(results, tenantSyncResult{TenantID: tenantID, Status: "ok"})
	}

	return results
}
