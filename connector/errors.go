package connector

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnknownProvider is returned by Registry.Resolve for an unregistered
// provider key. A registry miss is a configuration defect, never retried.
var ErrUnknownProvider = errors.New("unknown provider")

// UpstreamAuthError is a rejection from the provider's token endpoint. It
// carries the HTTP status, the raw response body and the OAuth error code
// parsed from it (when present) so the refresher can classify it.
type UpstreamAuthError struct {
	Provider string
	Status   int
	Body     string
	Code     string // e.g. "invalid_grant", empty if the body had none
}

func (e *UpstreamAuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: token endpoint returned %d (%s)", e.Provider, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: token endpoint returned %d", e.Provider, e.Status)
}

// Terminal reports whether the rejection means the grant itself is dead:
// a revoked or invalid refresh token, or credentials the provider no longer
// accepts. Retrying those only burns quota. 429 and 5xx are never terminal.
func (e *UpstreamAuthError) Terminal() bool {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusTooManyRequests:
		return false
	}
	if e.Status >= 400 && e.Status < 500 {
		switch e.Code {
		case "invalid_grant", "invalid_token", "invalid_client", "unauthorized_client":
			return true
		}
	}
	return false
}

// MalformedResponseError means the provider answered 2xx but the body was
// missing required fields or was not decodable. Treated as retryable since
// it may be a transient upstream incident.
type MalformedResponseError struct {
	Provider string
	Reason   string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed token response: %s", e.Provider, e.Reason)
}

// IsTerminalAuth returns true if the error is an upstream rejection that
// requires the tenant to re-authorize.
func IsTerminalAuth(err error) bool {
	var ue *UpstreamAuthError
	return errors.As(err, &ue) && ue.Terminal()
}

// IsRetryable returns true for every connector error that may succeed on a
// later attempt: network failures, timeouts, 5xx, 429 and malformed
// responses. Unknown-provider misses and terminal rejections are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnknownProvider) {
		return false
	}
	return !IsTerminalAuth(err)
}
