package connector

import (
	"context"
	"net/url"

	"github.com/staylink/connections/connection"
)

const guestlineTokenURL = "https://identity.guestline.app/connect/token"

// Guestline implements the Guestline Rezlynx token endpoint. Guestline
// takes client credentials inline, reports expiry as a numeric string, and
// never rotates refresh tokens: a refresh response carries only the new
// access token, so the previous refresh token is reported back unchanged.
// The site_id issued during onboarding travels as connection metadata and
// is forwarded on every exchange.
type Guestline struct {
	e *Endpoint
}

// NewGuestline creates the connector. An empty tokenURL selects the
// production endpoint.
func NewGuestline(tokenURL string) *Guestline {
	if tokenURL == "" {
		tokenURL = guestlineTokenURL
	}
	return &Guestline{e: NewEndpoint("guestline", tokenURL, AuthStyleParams)}
}

// Init exchanges an authorization code for the first token set.
func (g *Guestline) Init(ctx context.Context, req InitRequest) (*connection.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", req.Code)
	form.Set("redirect_uri", req.RedirectURI)
	if site := req.Metadata["site_id"]; site != "" {
		form.Set("site_id", site)
	}

	payload, err := g.e.Exchange(ctx, req.ClientID, req.ClientSecret, form)
	if err != nil {
		return nil, err
	}
	return g.normalize(payload, "")
}

// Refresh exchanges a refresh token for a new token set.
func (g *Guestline) Refresh(ctx context.Context, req RefreshRequest) (*connection.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", req.RefreshToken)
	if site := req.Metadata["site_id"]; site != "" {
		form.Set("site_id", site)
	}

	payload, err := g.e.Exchange(ctx, req.ClientID, req.ClientSecret, form)
	if err != nil {
		return nil, err
	}
	return g.normalize(payload, req.RefreshToken)
}

func (g *Guestline) normalize(payload map[string]any, prevRefreshToken string) (*connection.TokenSet, error) {
	access := stringField(payload, "access_token")
	if access == "" {
		return nil, &MalformedResponseError{Provider: g.e.Provider, Reason: "missing access_token"}
	}
	// Guestline reports "expires" as a numeric string.
	expires, ok := expirySeconds(payload["expires_in"])
	if !ok {
		expires, ok = expirySeconds(payload["expires"])
	}
	if !ok {
		return nil, &MalformedResponseError{Provider: g.e.Provider, Reason: "missing expires_in"}
	}
	refresh := stringField(payload, "refresh_token")
	if refresh == "" {
		refresh = prevRefreshToken
	}
	tokenType := stringField(payload, "token_type")
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &connection.TokenSet{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    expires,
		TokenType:    tokenType,
	}, nil
}
