// Package connector implements per-provider OAuth 2.0 token endpoint
// adapters. Connectors are stateless protocol translators: one outbound
// HTTPS call per invocation, no retries, no persistence. Transient-fault
// policy belongs to the refresher.
package connector

import (
	"context"

	"github.com/staylink/connections/connection"
)

// Connector adapts one provider's token endpoint conventions.
type Connector interface {
	// Init exchanges an authorization code for the first token set.
	Init(ctx context.Context, req InitRequest) (*connection.TokenSet, error)

	// Refresh exchanges a refresh token for a new token set. When the
	// provider omits a rotated refresh token, the returned TokenSet carries
	// the previous one unchanged — callers depend on this to never lose a
	// still-valid refresh token.
	Refresh(ctx context.Context, req RefreshRequest) (*connection.TokenSet, error)
}

// InitRequest carries the inputs of an authorization-code exchange.
type InitRequest struct {
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	Metadata     map[string]string
}

// RefreshRequest carries the inputs of a refresh-token exchange.
type RefreshRequest struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Metadata     map[string]string
}
