package refresher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/staylink/connections/connection"
	"github.com/staylink/connections/connector"
	"github.com/staylink/connections/secret"
)

func TestTokenSource_ServesStoredTokenWhileFresh(t *testing.T) {
	conn := testConnection()
	gateway := secret.NewMockGateway()
	seedGateway(t, gateway, conn, &connection.Credential{
		AccessToken:  "A1",
		RefreshToken: "R1",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
	})

	stub := &stubConnector{
		refreshFunc: func(ctx context.Context, req connector.RefreshRequest) (*connection.TokenSet, error) {
			t.Error("refresh triggered for a fresh token")
			return nil, errors.New("unreachable")
		},
	}
	repo := &connection.MockRepository{
		GetFunc: func(ctx context.Context, id string) (*connection.Connection, error) { return conn, nil },
	}
	s := newTestScheduler(repo, gateway, stub, Options{})

	tok, err := s.TokenSource(context.Background(), conn.ID).Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "A1" || tok.TokenType != "Bearer" {
		t.Errorf("token = %+v", tok)
	}
}

func TestTokenSource_RefreshesNearExpiry(t *testing.T) {
	conn := testConnection()
	gateway := secret.NewMockGateway()
	seedGateway(t, gateway, conn, &connection.Credential{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    time.Now().Add(10 * time.Second), // inside the leeway
	})

	stub := &stubConnector{
		refreshFunc: func(ctx context.Context, req connector.RefreshRequest) (*connection.TokenSet, error) {
			return &connection.TokenSet{AccessToken: "A2", RefreshToken: "R2", ExpiresIn: 3600}, nil
		},
	}
	repo := &connection.MockRepository{
		GetFunc: func(ctx context.Context, id string) (*connection.Connection, error) { return conn, nil },
	}
	s := newTestScheduler(repo, gateway, stub, Options{})
	s.now = time.Now

	tok, err := s.TokenSource(context.Background(), conn.ID).Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "A2" {
		t.Errorf("access token = %q, want refreshed A2", tok.AccessToken)
	}
}

func TestTokenSource_DisabledConnection(t *testing.T) {
	conn := testConnection()
	conn.Status = connection.StatusDisabled
	gateway := secret.NewMockGateway()
	seedGateway(t, gateway, conn, &connection.Credential{
		AccessToken: "A1",
		ExpiresAt:   time.Now().Add(-time.Minute),
	})
	repo := &connection.MockRepository{
		GetFunc: func(ctx context.Context, id string) (*connection.Connection, error) { return conn, nil },
	}
	s := newTestScheduler(repo, gateway, &stubConnector{}, Options{})

	if _, err := s.TokenSource(context.Background(), conn.ID).Token(); !errors.Is(err, ErrConnectionNotActive) {
		t.Fatalf("err = %v, want ErrConnectionNotActive", err)
	}
}
