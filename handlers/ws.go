package handlers

import (
	"encoding/json"
	"time"

	"github.com/ledgerlink/books-api/config"
	"github.com/ledgerlink/books-api/models"

	"github.com/gin-gonic/gin"
	"github.com/olahol/melody"
)

// WSHandler streams sync lifecycle events to clients watching a tenant.
// Implements services.SyncNotifier.
type WSHandler struct {
	M *melody.Melody
}

func NewWSHandler() *WSHandler {
	m := melody.New()

	m.Config.MaxMessageSize = 64 * 1024

	// Keep-alive so idle watchers survive proxies between sync runs.
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	m.HandleError(func(s *melody.Session, err error) {
		config.LogError("handlers", "NewWSHandler", "websocket session", err)
	})

	return &WSHandler{M: m}
}

// HandleWS upgrades the request and pins the session to a tenant.
func (h *WSHandler) HandleWS(c *gin.Context) {
	keys := map[string]interface{}{"tenant_id": c.Param("tenant_id")}

	if err := h.M.HandleRequestWithKeys(c.Writer, c.Request, keys); err != nil {
		config.LogError("handlers", "HandleWS", "websocket upgrade", err)
	}
}

// SyncEvent broadcasts one sync lifecycle event to the tenant's watchers.
func (h *WSHandler) SyncEvent(tenantID, event string, summary *models.SyncSummary) {
	payload, err := json.Marshal(gin.H{
		"type":    event,
		"summary": summary,
	})
	if err != nil {
		return
	}

	err = h.M.BroadcastFilter(payload, func(s *melody.Session) bool {
		id, exists := s.Get("tenant_id")
		return exists && id == tenantID
	})
	if err != nil {
		config.LogError("handlers", "SyncEvent", "broadcast", err)
	}
}
