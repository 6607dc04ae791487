package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthStyle selects where a connector places the client credentials.
// Providers disagree on this; it is a per-connector choice, not a global
// convention.
type AuthStyle int

const (
	// AuthStyleParams sends client_id/client_secret as form fields.
	AuthStyleParams AuthStyle = iota
	// AuthStyleBasicHeader sends the pair as an HTTP Basic Authorization
	// header and omits them from the form.
	AuthStyleBasicHeader
)

const (
	defaultCallTimeout = 30 * time.Second
	maxResponseBytes   = 1 << 20
)

// Endpoint performs a single form-encoded POST against one provider's token
// URL and decodes the JSON response. It carries no per-request state.
type Endpoint struct {
	Provider  string
	TokenURL  string
	AuthStyle AuthStyle

	http *http.Client
}

// NewEndpoint builds an endpoint with the bounded default timeout. Retries
// are the refresher's responsibility, never the endpoint's.
func NewEndpoint(provider, tokenURL string, style AuthStyle) *Endpoint {
	return &Endpoint{
		Provider:  provider,
		TokenURL:  tokenURL,
		AuthStyle: style,
		http:      &http.Client{Timeout: defaultCallTimeout},
	}
}

// Exchange posts the form and returns the decoded JSON object. Numbers are
// kept as json.Number so connectors can normalize providers that report
// expiry as a string, a float or an int.
func (e *Endpoint) Exchange(ctx context.Context, clientID, clientSecret string, form url.Values) (map[string]any, error) {
	if e.AuthStyle == AuthStyleParams {
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if e.AuthStyle == AuthStyleBasicHeader {
		req.SetBasicAuth(url.QueryEscape(clientID), url.QueryEscape(clientSecret))
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: token endpoint call: %w", e.Provider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read token response: %w", e.Provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamAuthError{
			Provider: e.Provider,
			Status:   resp.StatusCode,
			Body:     string(body),
			Code:     oauthErrorCode(body),
		}
	}

	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, &MalformedResponseError{Provider: e.Provider, Reason: "invalid JSON"}
	}
	return payload, nil
}

// oauthErrorCode pulls the standard "error" field out of an error body,
// tolerating bodies that are not JSON at all.
func oauthErrorCode(body []byte) string {
	var p struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return ""
	}
	return p.Error
}

// stringField returns the named field when it is a non-empty string.
func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// expirySeconds normalizes expires_in values: providers report JSON numbers,
// numeric strings, or floats.
func expirySeconds(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := json.Number(n).Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
