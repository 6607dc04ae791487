package connection

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no connection matches the given ID.
	ErrNotFound = errors.New("connection not found")
	// ErrVersionConflict is returned by compare-and-swap updates when the
	// stored version no longer matches the caller's expectation.
	ErrVersionConflict = errors.New("connection version conflict")
)

// Repository defines all persistence operations around connection records.
type Repository interface {
	// Create inserts a new connection record.
	Create(ctx context.Context, conn *Connection) error

	// Get fetches one connection by ID.
	Get(ctx context.Context, connectionID string) (*Connection, error)

	// ListByTenant returns a tenant's connections, optionally narrowed to
	// one environment. An empty environment matches all of them.
	ListByTenant(ctx context.Context, tenantID, environment string) ([]*Connection, error)

	// FindDueForRefresh returns every active connection whose token expires
	// within the window and whose backoff gate has passed.
	FindDueForRefresh(ctx context.Context, window time.Duration, now time.Time) ([]*Connection, error)

	// RecordRefreshSuccess updates the bookkeeping after a successful
	// refresh. The update is compare-and-swap on expectedVersion: it resets
	// the attempt counter, clears the last error and bumps the version.
	RecordRefreshSuccess(ctx context.Context, connectionID string, expiresAt, now time.Time, expectedVersion int64) error

	// RecordRefreshFailure increments the attempt counter and arms the
	// backoff gate. Prior credentials are left untouched.
	RecordRefreshFailure(ctx context.Context, connectionID, cause string, nextEligible, now time.Time) error

	// Disable marks the connection terminally failed. It is excluded from
	// polling until the tenant re-authorizes.
	Disable(ctx context.Context, connectionID, cause string) error

	// Disconnect logically deletes the connection.
	Disconnect(ctx context.Context, connectionID string) error
}
