package connection

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	conn := New("tenant-1", "cloudbeds", "live")
	if conn.ID == "" {
		t.Fatal("expected generated ID")
	}
	if conn.Status != StatusActive {
		t.Errorf("expected active status, got %s", conn.Status)
	}
	if conn.TenantID != "tenant-1" || conn.ProviderKey != "cloudbeds" || conn.Environment != "live" {
		t.Errorf("unexpected identity fields: %+v", conn)
	}
}

func TestConnection_DueForRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 10 * time.Minute

	tests := []struct {
		name string
		conn Connection
		want bool
	}{
		{
			name: "expiring inside window",
			conn: Connection{Status: StatusActive, ExpiresAt: now.Add(5 * time.Minute)},
			want: true,
		},
		{
			name: "already expired",
			conn: Connection{Status: StatusActive, ExpiresAt: now.Add(-time.Minute)},
			want: true,
		},
		{
			name: "expiry outside window is never selected",
			conn: Connection{Status: StatusActive, ExpiresAt: now.Add(window)},
			want: false,
		},
		{
			name: "backoff gate in the future",
			conn: Connection{
				Status:                StatusActive,
				ExpiresAt:             now.Add(time.Minute),
				NextEligibleRefreshAt: now.Add(30 * time.Second),
			},
			want: false,
		},
		{
			name: "backoff gate exactly now",
			conn: Connection{
				Status:                StatusActive,
				ExpiresAt:             now.Add(time.Minute),
				NextEligibleRefreshAt: now,
			},
			want: true,
		},
		{
			name: "disabled",
			conn: Connection{Status: StatusDisabled, ExpiresAt: now.Add(time.Minute)},
			want: false,
		},
		{
			name: "disconnected",
			conn: Connection{Status: StatusDisconnected, ExpiresAt: now.Add(time.Minute)},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conn.DueForRefresh(window, now); got != tt.want {
				t.Errorf("DueForRefresh = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCredential_Apply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("rotated refresh token replaces the old one", func(t *testing.T) {
		cred := Credential{AccessToken: "A1", RefreshToken: "R1"}
		cred.Apply(TokenSet{AccessToken: "A2", RefreshToken: "R2", ExpiresIn: 3600, TokenType: "Bearer"}, now)
		if cred.AccessToken != "A2" || cred.RefreshToken != "R2" {
			t.Errorf("unexpected tokens: %+v", cred)
		}
		if !cred.ExpiresAt.Equal(now.Add(time.Hour)) {
			t.Errorf("expected expiry %v, got %v", now.Add(time.Hour), cred.ExpiresAt)
		}
	})

	t.Run("missing refresh token keeps the previous value", func(t *testing.T) {
		cred := Credential{AccessToken: "A1", RefreshToken: "R1"}
		cred.Apply(TokenSet{AccessToken: "A2", ExpiresIn: 3600}, now)
		if cred.RefreshToken != "R1" {
			t.Errorf("expected refresh token R1 retained, got %q", cred.RefreshToken)
		}
		if cred.AccessToken != "A2" {
			t.Errorf("expected access token A2, got %q", cred.AccessToken)
		}
	})

	t.Run("meta merges into existing metadata", func(t *testing.T) {
		cred := Credential{Metadata: map[string]string{"site_id": "S1", "region": "eu"}}
		cred.Apply(TokenSet{AccessToken: "A", ExpiresIn: 60, Meta: map[string]string{"region": "us", "property_id": "P9"}}, now)
		if cred.Metadata["site_id"] != "S1" {
			t.Errorf("expected site_id preserved")
		}
		if cred.Metadata["region"] != "us" || cred.Metadata["property_id"] != "P9" {
			t.Errorf("expected meta merged, got %v", cred.Metadata)
		}
	})
}
