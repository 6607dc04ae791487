package connector

import (
	"context"
	"net/url"

	"github.com/staylink/connections/connection"
)

const cloudbedsTokenURL = "https://hotels.cloudbeds.com/api/v1.1/access_token"

// Cloudbeds implements the Cloudbeds PMS token endpoint. Cloudbeds expects
// client credentials inline as form fields and rotates the refresh token on
// every exchange.
type Cloudbeds struct {
	e *Endpoint
}

// NewCloudbeds creates the connector. An empty tokenURL selects the
// production endpoint.
func NewCloudbeds(tokenURL string) *Cloudbeds {
	if tokenURL == "" {
		tokenURL = cloudbedsTokenURL
	}
	return &Cloudbeds{e: NewEndpoint("cloudbeds", tokenURL, AuthStyleParams)}
}

// Init exchanges an authorization code for the first token set.
func (c *Cloudbeds) Init(ctx context.Context, req InitRequest) (*connection.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", req.Code)
	form.Set("redirect_uri", req.RedirectURI)

	payload, err := c.e.Exchange(ctx, req.ClientID, req.ClientSecret, form)
	if err != nil {
		return nil, err
	}
	return c.normalize(payload, "")
}

// Refresh exchanges a refresh token for a new token set.
func (c *Cloudbeds) Refresh(ctx context.Context, req RefreshRequest) (*connection.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", req.RefreshToken)

	payload, err := c.e.Exchange(ctx, req.ClientID, req.ClientSecret, form)
	if err != nil {
		return nil, err
	}
	return c.normalize(payload, req.RefreshToken)
}

func (c *Cloudbeds) normalize(payload map[string]any, prevRefreshToken string) (*connection.TokenSet, error) {
	access := stringField(payload, "access_token")
	if access == "" {
		return nil, &MalformedResponseError{Provider: c.e.Provider, Reason: "missing access_token"}
	}
	expires, ok := expirySeconds(payload["expires_in"])
	if !ok {
		return nil, &MalformedResponseError{Provider: c.e.Provider, Reason: "missing expires_in"}
	}
	refresh := stringField(payload, "refresh_token")
	if refresh == "" {
		refresh = prevRefreshToken
	}
	ts := &connection.TokenSet{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    expires,
		TokenType:    stringField(payload, "token_type"),
	}
	// Cloudbeds scopes every token to one property.
	if prop := stringField(payload, "property_id"); prop != "" {
		ts.Meta = map[string]string{"property_id": prop}
	}
	return ts, nil
}
