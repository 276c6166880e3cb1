package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	authorizeURL       = "https://appcenter.intuit.com/connect/oauth2"
	tokenURL           = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	sandboxAPIBaseURL  = "https://sandbox-quickbooks.api.intuit.com"
	productionBaseURL  = "https://quickbooks.api.intuit.com"
	accountingScope    = "com.intuit.quickbooks.accounting"
	encryptionKeyBytes = 32
)

// QuickBooksConfig carries everything the connector needs to talk to the
// provider. Built once at startup; a bad value is fatal there, not at
// request time.
type QuickBooksConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Environment  string // "sandbox" or "production"
	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string
	Scope        string
}

func LoadQuickBooksConfig() (*QuickBooksConfig, error) {
	clientID := strings.TrimSpace(os.Getenv("QBO_CLIENT_ID"))
	clientSecret := strings.TrimSpace(os.Getenv("QBO_CLIENT_SECRET"))
	redirectURI := strings.TrimSpace(os.Getenv("QBO_REDIRECT_URI"))

	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("QBO_CLIENT_ID and QBO_CLIENT_SECRET are required")
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("QBO_REDIRECT_URI is required")
	}

	env := strings.ToLower(strings.TrimSpace(os.Getenv("QBO_ENVIRONMENT")))
	if env == "" {
		env = "sandbox"
	}

	baseURL := sandboxAPIBaseURL
	switch env {
	case "sandbox":
	case "production":
		baseURL = productionBaseURL
	default:
		return nil, fmt.Errorf("QBO_ENVIRONMENT must be sandbox or production, got %q", env)
	}

	return &QuickBooksConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Environment:  env,
		AuthorizeURL: authorizeURL,
		TokenURL:     tokenURL,
		APIBaseURL:   baseURL,
		Scope:        accountingScope,
	}, nil
}

// EncryptionKey returns the 32-byte master key used by the credential
// cipher. Absence or a wrong length is a configuration error.
func EncryptionKey() ([]byte, error) {
	key := os.Getenv("DATA_ENCRYPTION_KEY")
	if len(key) != encryptionKeyBytes {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be exactly %d characters", encryptionKeyBytes)
	}
	return []byte(key), nil
}

// CronSecret guards the scheduled-sync trigger endpoint. Empty means the
// endpoint is disabled.
func CronSecret() string {
	return strings.TrimSpace(os.Getenv("CRON_SECRET"))
}
