package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ledgerlink/books-api/config"
	"github.com/ledgerlink/books-api/middleware"
	"github.com/ledgerlink/books-api/services"
	"github.com/ledgerlink/books-api/utils"

	"github.com/gin-gonic/gin"
)

// QueryHandler serves ad hoc provider lookups outside the sync path.
type QueryHandler struct {
	QuickBooks *services.QuickBooksService
}

func NewQueryHandler(qb *services.QuickBooksService) *QueryHandler {
	return &QueryHandler{QuickBooks: qb}
}

func (h *QueryHandler) GetCustomers(c *gin.Context) {
	h.runQuery(c, "Customer")
}

func (h *QueryHandler) GetInvoices(c *gin.Context) {
	h.runQuery(c, "Invoice")
}

func (h *QueryHandler) runQuery(c *gin.Context, entity string) {
	tenantID := middleware.GetTenantID(c)

	limit := 100
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 1000 {
		limit = v
	}

	statement := fmt.Sprintf("select * from %s maxresults %d", entity, limit)
	result, err := h.QuickBooks.Query(c.Request.Context(), tenantID, statement)
	if err != nil {
		h.renderQueryError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", result)
}

func (h *QueryHandler) renderQueryError(c *gin.Context, err error) {
	var needsReauth *utils.NeedsReauthError
	var rateLimited *utils.RateLimitError
	var apiErr *utils.APIError

	switch {
	case errors.Is(err, utils.ErrNoConnection):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "no_connection"})
	case errors.As(err, &needsReauth):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "needs_reauth"})
	case errors.As(err, &rateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "code": "rate_limited"})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": apiErr.Code})
	default:
		config.LogError("handlers", "runQuery", "provider query", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
