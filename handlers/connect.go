package handlers

import (
	"database/sql"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/ledgerlink/books-api/config"
	"github.com/ledgerlink/books-api/middleware"
	"github.com/ledgerlink/books-api/models"
	"github.com/ledgerlink/books-api/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const stateTTL = 10 * time.Minute

type ConnectHandler struct {
	Config      *config.QuickBooksConfig
	Tokens      *services.TokenService
	Connections *services.ConnectionService
}

func NewConnectHandler(cfg *config.QuickBooksConfig, tokens *services.TokenService, conns *services.ConnectionService) *ConnectHandler {
	return &ConnectHandler{Config: cfg, Tokens: tokens, Connections: conns}
}

// Connect returns the provider authorize URL. The OAuth state is a signed
// short-lived JWT carrying the tenant id, so the callback can recover the
// tenant without trusting anything the provider echoes back.
func (h *ConnectHandler) Connect(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	state, err := h.signState(tenantID)
	if err != nil {
		config.LogError("handlers", "Connect", "sign oauth state", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build authorization URL"})
		return
	}

	query := url.Values{
		"client_id":     {h.Config.ClientID},
		"scope":         {h.Config.Scope},
		"redirect_uri":  {h.Config.RedirectURI},
		"response_type": {"code"},
		"state":         {state},
	}

	c.JSON(http.StatusOK, gin.H{
		"authorize_url": h.Config.AuthorizeURL + "?" + query.Encode(),
		"state":         state,
	})
}

// Callback completes the OAuth exchange. The provider redirects here with
// code, state and the company realm id.
func (h *ConnectHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	realmID := c.Query("realmId")

	if code == "" || state == "" || realmID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing code, state or realmId parameter"})
		return
	}

	tenantID, err := h.verifyState(state)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired state"})
		return
	}

	conn, err := h.Tokens.ExchangeAuthCode(c.Request.Context(), tenantID, code, realmID)
	if err != nil {
		config.LogError("handlers", "Callback", "authorization code exchange", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to complete connection", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   conn.Status,
		"realm_id": conn.RealmID,
	})
}

// Status reports the tenant's connection without any secret material.
func (h *ConnectHandler) Status(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	conn, err := h.Connections.Get(c.Request.Context(), tenantID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusOK, gin.H{"status": models.StatusDisconnected})
		return
	}
	if err != nil {
		config.LogError("handlers", "Status", "load connection", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load connection"})
		return
	}

	c.JSON(http.StatusOK, conn)
}

// Disconnect deletes the connection and all synced state for the tenant.
func (h *ConnectHandler) Disconnect(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	if err := h.Connections.Disconnect(c.Request.Context(), tenantID); err != nil {
		config.LogError("handlers", "Disconnect", "delete connection", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to disconnect"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.StatusDisconnected})
}

func (h *ConnectHandler) signState(tenantID string) (string, error) {
	claims := jwt.MapClaims{
		"tenant_id": tenantID,
		"nonce":     uuid.NewString(),
		"exp":       time.Now().Add(stateTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(os.Getenv("JWT_SECRET")))
}

func (h *ConnectHandler) verifyState(state string) (string, error) {
	token, err := jwt.Parse(state, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}
	tenantID, _ := claims["tenant_id"].(string)
	if tenantID == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return tenantID, nil
}
