package connector

import (
	"context"
	"net/url"

	"github.com/staylink/connections/connection"
)

const mewsTokenURL = "https://auth.mews.com/oauth2/token"

// Mews implements the Mews Open API token endpoint. Mews authenticates the
// client with an HTTP Basic header built from the credential pair and
// reports the enterprise the grant is bound to alongside the tokens.
type Mews struct {
	e *Endpoint
}

// NewMews creates the connector. An empty tokenURL selects the production
// endpoint.
func NewMews(tokenURL string) *Mews {
	if tokenURL == "" {
		tokenURL = mewsTokenURL
	}
	return &Mews{e: NewEndpoint("mews", tokenURL, AuthStyleBasicHeader)}
}

// Init exchanges an authorization code for the first token set.
func (m *Mews) Init(ctx context.Context, req InitRequest) (*connection.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", req.Code)
	form.Set("redirect_uri", req.RedirectURI)

	payload, err := m.e.Exchange(ctx, req.ClientID, req.ClientSecret, form)
	if err != nil {
		return nil, err
	}
	return m.normalize(payload, "")
}

// Refresh exchanges a refresh token for a new token set.
func (m *Mews) Refresh(ctx context.Context, req RefreshRequest) (*connection.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", req.RefreshToken)

	payload, err := m.e.Exchange(ctx, req.ClientID, req.ClientSecret, form)
	if err != nil {
		return nil, err
	}
	return m.normalize(payload, req.RefreshToken)
}

func (m *Mews) normalize(payload map[string]any, prevRefreshToken string) (*connection.TokenSet, error) {
	access := stringField(payload, "access_token")
	if access == "" {
		return nil, &MalformedResponseError{Provider: m.e.Provider, Reason: "missing access_token"}
	}
	expires, ok := expirySeconds(payload["expires_in"])
	if !ok {
		return nil, &MalformedResponseError{Provider: m.e.Provider, Reason: "missing expires_in"}
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
	if ent := stringField(payload, "enterprise_id"); ent != "" {
		ts.Meta = map[string]string{"enterprise_id": ent}
	}
	return ts, nil
}
