package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ledgerlink/books-api/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func jsonUnmarshalBody(w *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}

func testConnectHandler() *ConnectHandler {
	return &ConnectHandler{Config: &config.QuickBooksConfig{
		ClientID:     "client-id",
		RedirectURI:  "https://app.example.com/callback",
		AuthorizeURL: "https://appcenter.intuit.com/connect/oauth2",
		Scope:        "com.intuit.quickbooks.accounting",
	}}
}

func TestStateRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := testConnectHandler()

	state, err := h.signState("tenant-1")
	require.NoError(t, err)

	tenantID, err := h.verifyState(state)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
}

func TestVerifyStateRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret-a")
	h := testConnectHandler()

	state, err := h.signState("tenant-1")
	require.NoError(t, err)

	t.Setenv("JWT_SECRET", "secret-b")
	_, err = h.verifyState(state)
	assert.Error(t, err)
}

func TestVerifyStateRejectsExpired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := testConnectHandler()

	claims := jwt.MapClaims{
		"tenant_id": "tenant-1",
		"exp":       time.Now().Add(-time.Minute).Unix(),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = h.verifyState(state)
	assert.Error(t, err)
}

func TestVerifyStateRejectsMissingTenant(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := testConnectHandler()

	claims := jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = h.verifyState(state)
	assert.Error(t, err)
}

func TestConnectBuildsAuthorizeURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := testConnectHandler()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/quickbooks/connect", nil)
	c.Set("tenant_id", "tenant-1")

	h.Connect(c)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AuthorizeURL string `json:"authorize_url"`
		State        string `json:"state"`
	}
	require.NoError(t, jsonUnmarshalBody(w, &resp))

	parsed, err := url.Parse(resp.AuthorizeURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, resp.State, q.Get("state"))

	tenantID, err := h.verifyState(resp.State)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
}

func TestCallbackMissingParams(t *testing.T) {
	h := testConnectHandler()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/quickbooks/callback?code=abc", nil)

	h.Callback(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackInvalidState(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := testConnectHandler()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet,
		"/api/v1/quickbooks/callback?code=abc&state=garbage&realmId=realm123", nil)

	h.Callback(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
