package models

import (
	"time"
)

// Connection statuses. "connected" implies both credentials are present and
// decryptable; a failed refresh moves the row to "needs_reauth" and records
// the error so the status is never stale next to invalid credentials.
const (
	StatusPending      = "pending"
	StatusConnected    = "connected"
	StatusNeedsReauth  = "needs_reauth"
	StatusError        = "error"
	StatusDisconnected = "disconnected"
)

// Connection links one tenant to one QuickBooks company (realm). Token
// fields hold cipher output, never plaintext.
type Connection struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	RealmID          string     `json:"realm_id"`
	AccessToken      string     `json:"-"`
	RefreshToken     string     `json:"-"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
	Scope            string     `json:"scope"`
	Status           string     `json:"status"`
	LastError        string     `json:"last_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TokenPair is a decrypted, ready-to-use credential set handed out by the
// token lifecycle manager.
type TokenPair struct {
	AccessToken string
	RealmID     string
}
