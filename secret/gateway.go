// Package secret persists connection credentials encrypted at rest. The
// payload is envelope-encrypted: a throwaway data key seals the credential,
// and the data key itself is sealed by a master key. The gateway never
// stores plaintext.
package secret

import (
	"context"
	"errors"

	"github.com/staylink/connections/connection"
)

var (
	// ErrNotFound is returned when no credential is stored for the ID.
	ErrNotFound = errors.New("credential not found")
	// ErrVersionConflict signals an optimistic-concurrency collision: a
	// concurrent writer won. The caller should abandon this cycle's write
	// and re-read before the next attempt.
	ErrVersionConflict = errors.New("credential version conflict")
	// ErrUnavailable wraps transport failures of the backing store. The
	// fault is systemic, not per-record: callers must not mark individual
	// connections over it. Decrypt and corruption errors are per-record and
	// never carry this sentinel.
	ErrUnavailable = errors.New("secret store unavailable")
)

// Gateway reads and compare-and-swap writes one connection's credential.
type Gateway interface {
	// Read decrypts and returns the stored credential and its version.
	Read(ctx context.Context, connectionID string) (*connection.Credential, int64, error)

	// Write encrypts and persists the credential if the stored version still
	// equals expectedVersion. Pass 0 to create the initial record.
	Write(ctx context.Context, connectionID string, cred *connection.Credential, expectedVersion int64) error

	// Delete removes the stored credential (tenant disconnect).
	Delete(ctx context.Context, connectionID string) error
}
