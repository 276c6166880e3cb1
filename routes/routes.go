package routes

import (
	"github.com/ledgerlink/books-api/handlers"

	"github.com/gin-gonic/gin"
)

// SetupConnectRoutes sets up the QuickBooks connection lifecycle routes.
// The OAuth callback is registered separately because the provider calls
// it without a bearer token.
func SetupConnectRoutes(rg *gin.RouterGroup, h *handlers.ConnectHandler) {
	rg.GET("/quickbooks/connect", h.Connect)
	rg.GET("/quickbooks/connection", h.Status)
	rg.DELETE("/quickbooks/connection", h.Disconnect)
}

// SetupCallbackRoute registers the public OAuth redirect endpoint.
func SetupCallbackRoute(rg *gin.RouterGroup, h *handlers.ConnectHandler) {
	rg.GET("/quickbooks/callback", h.Callback)
}

// SetupSyncRoutes sets up protected sync and read routes.
func SetupSyncRoutes(rg *gin.RouterGroup, h *handlers.SyncHandler) {
	rg.POST("/sync", h.SyncReports)
	rg.GET("/periods", h.GetPeriods)
	rg.GET("/metrics", h.GetMetrics)
	rg.GET("/reports/:type", h.GetReport)
}

// SetupQueryRoutes sets up protected ad hoc query routes.
func SetupQueryRoutes(rg *gin.RouterGroup, h *handlers.QueryHandler) {
	rg.GET("/quickbooks/customers", h.GetCustomers)
	rg.GET("/quickbooks/invoices", h.GetInvoices)
}

// SetupInternalRoutes sets up scheduler-only routes guarded by the cron
// secret header instead of JWT auth.
func SetupInternalRoutes(rg *gin.RouterGroup, h *handlers.InternalHandler) {
	rg.POST("/internal/sync-all", h.SyncAll)
}

// SetupWSRoutes registers the sync event stream.
func SetupWSRoutes(rg *gin.RouterGroup, h *handlers.WSHandler) {
	rg.GET("/ws/sync/:tenant_id", h.HandleWS)
}
