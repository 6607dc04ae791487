package secret

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/staylink/connections/connection"
)

func testMasterKey(t *testing.T, fill byte) *LocalMasterKey {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = fill + byte(i)
	}
	m, err := NewLocalMasterKey(raw)
	if err != nil {
		t.Fatalf("NewLocalMasterKey: %v", err)
	}
	return m
}

func testCredential() *connection.Credential {
	return &connection.Credential{
		AccessToken:  "A1",
		RefreshToken: "R1",
		TokenType:    "Bearer",
		ExpiresAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ClientID:     "cid",
		ClientSecret: "csecret",
		Metadata:     map[string]string{"property_id": "P42"},
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	master := testMasterKey(t, 1)
	env, err := seal(master, testCredential())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := open(master, env)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := testCredential()
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Errorf("tokens mismatch: %+v", got)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("expiry mismatch: %v", got.ExpiresAt)
	}
	if got.Metadata["property_id"] != "P42" {
		t.Errorf("metadata mismatch: %v", got.Metadata)
	}
}

func TestOpen_DetectsTamper(t *testing.T) {
	master := testMasterKey(t, 1)
	env, err := seal(master, testCredential())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	env.Ciphertext[len(env.Ciphertext)-1] ^= 0x01
	if _, err := open(master, env); err == nil {
		t.Fatal("expected auth error, got nil")
	}
}

func TestOpen_WrongMasterKey(t *testing.T) {
	env, err := seal(testMasterKey(t, 1), testCredential())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := open(testMasterKey(t, 99), env); err == nil {
		t.Fatal("expected unwrap failure, got nil")
	}
}

func TestSeal_FreshDataKeyPerWrite(t *testing.T) {
	master := testMasterKey(t, 1)
	a, err := seal(master, testCredential())
	if err != nil {
		t.Fatal(err)
	}
	b, err := seal(master, testCredential())
	if err != nil {
		t.Fatal(err)
	}
	if string(a.Ciphertext) == string(b.Ciphertext) {
		t.Error("identical ciphertexts for two seals")
	}
	if string(a.WrappedKey) == string(b.WrappedKey) {
		t.Error("identical wrapped keys for two seals")
	}
}

func TestMasterKeyFromEnv(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		t.Setenv(masterKeyEnvVar, "")
		if _, err := MasterKeyFromEnv(); err == nil {
			t.Fatal("expected error when key missing")
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		t.Setenv(masterKeyEnvVar, base64.StdEncoding.EncodeToString([]byte("short")))
		if _, err := MasterKeyFromEnv(); err == nil {
			t.Fatal("expected error for short key")
		}
	})

	t.Run("valid", func(t *testing.T) {
		raw := make([]byte, 32)
		for i := range raw {
			raw[i] = byte(i)
		}
		t.Setenv(masterKeyEnvVar, base64.StdEncoding.EncodeToString(raw))
		m, err := MasterKeyFromEnv()
		if err != nil {
			t.Fatalf("MasterKeyFromEnv: %v", err)
		}
		if m == nil {
			t.Fatal("nil master key")
		}
	})
}

func TestMockGateway_VersionConflict(t *testing.T) {
	g := NewMockGateway()
	ctx := context.Background()

	if err := g.Write(ctx, "conn-1", testCredential(), 0); err != nil {
		t.Fatalf("initial write: %v", err)
	}
	_, version, err := g.Read(ctx, "conn-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}

	// A stale writer loses.
	if err := g.Write(ctx, "conn-1", testCredential(), 0); err != ErrVersionConflict {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if err := g.Write(ctx, "conn-1", testCredential(), 1); err != nil {
		t.Fatalf("CAS write: %v", err)
	}
}
