package connection

import (
	"time"

	"github.com/google/uuid"
)

// Status describes whether a connection may be used and refreshed.
type Status string

const (
	// StatusActive connections are polled and refreshed before expiry.
	StatusActive Status = "active"
	// StatusDisabled connections failed terminally (e.g. revoked refresh
	// token) and require the tenant to re-authorize.
	StatusDisabled Status = "disabled"
	// StatusDisconnected connections were unlinked by the tenant. They are
	// kept for audit but never polled again.
	StatusDisconnected Status = "disconnected"
)

// Connection is one tenant's authorized link to an external provider,
// plus the bookkeeping the refresh engine needs. The credential payload
// itself lives encrypted in the secret store, keyed by ID.
type Connection struct {
	ID          string
	TenantID    string
	ProviderKey string
	Environment string
	Status      Status

	// Version is bumped on every credential write and used for
	// compare-and-swap updates.
	Version int64

	// ExpiresAt mirrors the credential's expiry so the due-query can run
	// without decrypting anything.
	ExpiresAt time.Time

	LastRefreshedAt       time.Time
	RefreshAttemptCount   int
	LastRefreshError      string
	NextEligibleRefreshAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds an active connection with a fresh ID.
func New(tenantID, providerKey, environment string) *Connection {
	now := time.Now().UTC()
	return &Connection{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ProviderKey: providerKey,
		Environment: environment,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DueForRefresh reports whether the connection should be selected this tick.
func (c *Connection) DueForRefresh(window time.Duration, now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if c.ExpiresAt.Sub(now) >= window {
		return false
	}
	return !c.NextEligibleRefreshAt.After(now)
}

// Credential is the decrypted payload stored for a connection. It never
// touches the repository in plaintext; only the secret store gateway
// handles it.
type Credential struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
	ExpiresAt    time.Time         `json:"expires_at"`
	ClientID     string            `json:"client_id"`
	ClientSecret string            `json:"client_secret"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Apply merges a token exchange result into the credential. A provider
// that does not rotate refresh tokens leaves the previous one in place;
// connectors already guarantee TokenSet.RefreshToken is never empty on
// success, but the fallback is kept here as well so a stored refresh
// token can never be cleared by a refresh.
func (c *Credential) Apply(ts TokenSet, now time.Time) {
	c.AccessToken = ts.AccessToken
	if ts.RefreshToken != "" {
		c.RefreshToken = ts.RefreshToken
	}
	if ts.TokenType != "" {
		c.TokenType = ts.TokenType
	}
	c.ExpiresAt = now.Add(time.Duration(ts.ExpiresIn) * time.Second)
	if len(ts.Meta) > 0 {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string, len(ts.Meta))
		}
		for k, v := range ts.Meta {
			c.Metadata[k] = v
		}
	}
}

// TokenSet is the normalized result of an init or refresh exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds, provider-reported
	TokenType    string
	Meta         map[string]string
}
