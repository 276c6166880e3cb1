package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ledgerlink/books-api/config"
	"github.com/ledgerlink/books-api/models"
	"github.com/ledgerlink/books-api/utils"
	"github.com/sirupsen/logrus"
)

// expirySkew is the safety margin subtracted from a credential's real
// expiry to force proactive refresh.
const expirySkew = 120 * time.Second

// ConnectionStore is the slice of connection persistence the token
// lifecycle needs. ConnectionService implements it; tests use doubles.
type ConnectionStore interface {
	GetConnected(ctx context.Context, tenantID string) (*models.Connection, error)
	Upsert(ctx context.Context, conn *models.Connection) (string, error)
	UpdateTokensIfCurrent(ctx context.Context, tenantID string, observedExpiry time.Time,
		accessToken, refreshToken string, accessExpiresAt time.Time, refreshExpiresAt *time.Time) (bool, error)
	MarkNeedsReauth(ctx context.Context, tenantID string, reason string) error
}

type TokenService struct {
	store  ConnectionStore
	cipher *utils.Cipher
	cfg    *config.QuickBooksConfig
	client *http.Client
	log    *logrus.Logger

	mu          sync.Mutex
	tenantLocks map[string]*sync.Mutex
}

func NewTokenService(store ConnectionStore, cipher *utils.Cipher, cfg *config.QuickBooksConfig) *TokenService {
	return &TokenService{
		store:       store,
		cipher:      cipher,
		cfg:         cfg,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         config.Logger(),
		tenantLocks: make(map[string]*sync.Mutex),
	}
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int    `json:"expires_in"`
	RefreshTokenExpiresIn int    `json:"x_refresh_token_expires_in"`
}

// GetValidAccessToken returns a usable access token and the realm id for
// the tenant, refreshing first when the stored token is inside the skew
// window. A refresh failure marks the connection needs_reauth and
// surfaces as NeedsReauthError.
func (s *TokenService) GetValidAccessToken(ctx context.Context, tenantID string) (*models.TokenPair, error) {
	conn, err := s.store.GetConnected(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	accessToken, refreshToken, err := s.decryptPair(conn)
	if err != nil {
		return nil, err
	}

	if time.Until(conn.AccessExpiresAt) > expirySkew {
		return &models.TokenPair{AccessToken: accessToken, RealmID: conn.RealmID}, nil
	}

	lock := s.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have refreshed while we waited on the lock.
	conn, err = s.store.GetConnected(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	accessToken, refreshToken, err = s.decryptPair(conn)
	if err != nil {
		return nil, err
	}
	if time.Until(conn.AccessExpiresAt) > expirySkew {
		return &models.TokenPair{AccessToken: accessToken, RealmID: conn.RealmID}, nil
	}

	return s.refresh(ctx, conn, refreshToken)
}

func (s *TokenService) refresh(ctx context.Context, conn *models.Connection, refreshToken string) (*models.TokenPair, error) {
	tok, err := s.exchange(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		if markErr := s.store.MarkNeedsReauth(ctx, conn.TenantID, err.Error()); markErr != nil {
			config.LogError("services", "refresh", "mark needs_reauth", markErr)
		}
		s.log.WithFields(logrus.Fields{
			"module": "services",
			"tenant": utils.MaskID(conn.TenantID),
		}).Warn("token refresh failed, connection needs re-authorization")
		return nil, &utils.NeedsReauthError{TenantID: conn.TenantID, Reason: err.Error()}
	}

	encAccess, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, err
	}

	// Providers may omit the refresh token on refresh; the stored one
	// stays valid in that case and must not be treated as credential loss.
	encRefresh := conn.RefreshToken
	if tok.RefreshToken != "" {
		if encRefresh, err = s.cipher.Encrypt(tok.RefreshToken); err != nil {
			return nil, err
		}
	}

	accessExpiresAt := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	var refreshExpiresAt *time.Time
	if tok.RefreshTokenExpiresIn > 0 {
		t := time.Now().Add(time.Duration(tok.RefreshTokenExpiresIn) * time.Second)
		refreshExpiresAt = &t
	}

	updated, err := s.store.UpdateTokensIfCurrent(ctx, conn.TenantID, conn.AccessExpiresAt,
		encAccess, encRefresh, accessExpiresAt, refreshExpiresAt)
	if err != nil {
		return nil, err
	}
	if !updated {
		// A concurrent refresh won; use its result.
		current, err := s.store.GetConnected(ctx, conn.TenantID)
		if err != nil {
			return nil, err
		}
		access, _, err := s.decryptPair(current)
		if err != nil {
			return nil, err
		}
		return &models.TokenPair{AccessToken: access, RealmID: current.RealmID}, nil
	}

	s.log.WithFields(logrus.Fields{
		"module": "services",
		"tenant": utils.MaskID(conn.TenantID),
		"token":  utils.MaskToken(tok.AccessToken),
	}).Info("access token refreshed")

	return &models.TokenPair{AccessToken: tok.AccessToken, RealmID: conn.RealmID}, nil
}

// ExchangeAuthCode completes the connect flow: trades the authorization
// code for a credential pair and stores the connection as connected.
func (s *TokenService) ExchangeAuthCode(ctx context.Context, tenantID, code, realmID string) (*models.Connection, error) {
	tok, err := s.exchange(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {s.cfg.RedirectURI},
	})
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange failed: %w", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return nil, fmt.Errorf("provider returned an incomplete credential pair")
	}

	encAccess, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	encRefresh, err := s.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return nil, err
	}

	conn := &models.Connection{
		TenantID:        tenantID,
		RealmID:         realmID,
		AccessToken:     encAccess,
		RefreshToken:    encRefresh,
		AccessExpiresAt: time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
		Scope:           s.cfg.Scope,
		Status:          models.StatusConnected,
	}
	if tok.RefreshTokenExpiresIn > 0 {
		t := time.Now().Add(time.Duration(tok.RefreshTokenExpiresIn) * time.Second)
		conn.RefreshExpiresAt = &t
	}

	id, err := s.store.Upsert(ctx, conn)
	if err != nil {
		return nil, err
	}
	conn.ID = id

	s.log.WithFields(logrus.Fields{
		"module": "services",
		"tenant": utils.MaskID(tenantID),
		"realm":  utils.MaskID(realmID),
	}).Info("quickbooks connection established")

	return conn, nil
}

// exchange posts to the provider token endpoint with HTTP basic client
// authentication and a form body.
func (s *TokenService) exchange(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("token decode error: %w", err)
	}
	return &tok, nil
}

func (s *TokenService) decryptPair(conn *models.Connection) (string, string, error) {
	if conn.AccessToken == "" || conn.RefreshToken == "" {
		return "", "", fmt.Errorf("connection %s is missing stored credentials", conn.ID)
	}
	accessToken, err := s.cipher.Decrypt(conn.AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("cannot decrypt access credential: %w", err)
	}
	refreshToken, err := s.cipher.Decrypt(conn.RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("cannot decrypt refresh credential: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (s *TokenService) lockFor(tenantID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.tenantLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		s.tenantLocks[tenantID] = lock
	}
	return lock
}
