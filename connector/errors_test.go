package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestUpstreamAuthError_Terminal(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   bool
	}{
		{"400 invalid_grant", 400, "invalid_grant", true},
		{"400 invalid_token", 400, "invalid_token", true},
		{"400 invalid_client", 400, "invalid_client", true},
		{"400 without code", 400, "", false},
		{"400 temporarily_unavailable", 400, "temporarily_unavailable", false},
		{"401", 401, "", true},
		{"403", 403, "", true},
		{"429", 429, "", false},
		{"500", 500, "", false},
		{"502", 502, "invalid_grant", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &UpstreamAuthError{Provider: "test", Status: tt.status, Code: tt.code}
			if got := e.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
	if IsRetryable(fmt.Errorf("resolve: %w", ErrUnknownProvider)) {
		t.Error("unknown provider is never retried")
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Error("timeouts are retryable")
	}
	if !IsRetryable(&UpstreamAuthError{Status: http.StatusServiceUnavailable}) {
		t.Error("5xx is retryable")
	}
	if IsRetryable(&UpstreamAuthError{Status: http.StatusBadRequest, Code: "invalid_grant"}) {
		t.Error("revoked grant is not retryable")
	}
	if !IsRetryable(&MalformedResponseError{Provider: "test", Reason: "missing access_token"}) {
		t.Error("malformed response is retryable")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	cb := NewCloudbeds("")
	reg.Register("cloudbeds", cb)

	got, err := reg.Resolve("cloudbeds")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != cb {
		t.Error("resolved wrong connector")
	}

	_, err = reg.Resolve("nonexistent")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}

	if n := len(reg.Providers()); n != 1 {
		t.Errorf("expected 1 provider, got %d", n)
	}
}
