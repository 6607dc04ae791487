package connection

import (
	"context"
	"time"
)

// MockRepository provides customizable hooks for testing Repository behavior.
type MockRepository struct {
	CreateFunc               func(ctx context.Context, conn *Connection) error
	GetFunc                  func(ctx context.Context, connectionID string) (*Connection, error)
	ListByTenantFunc         func(ctx context.Context, tenantID, environment string) ([]*Connection, error)
	FindDueForRefreshFunc    func(ctx context.Context, window time.Duration, now time.Time) ([]*Connection, error)
	RecordRefreshSuccessFunc func(ctx context.Context, connectionID string, expiresAt, now time.Time, expectedVersion int64) error
	RecordRefreshFailureFunc func(ctx context.Context, connectionID, cause string, nextEligible, now time.Time) error
	DisableFunc              func(ctx context.Context, connectionID, cause string) error
	DisconnectFunc           func(ctx context.Context, connectionID string) error
}

// Ensure MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Create calls CreateFunc if set, otherwise returns nil
func (m *MockRepository) Create(ctx context.Context, conn *Connection) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, conn)
	}
	return nil
}

// Get calls GetFunc if set, otherwise returns ErrNotFound
func (m *MockRepository) Get(ctx context.Context, connectionID string) (*Connection, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, connectionID)
	}
	return nil, ErrNotFound
}

// ListByTenant calls ListByTenantFunc if set, otherwise returns nil, nil
func (m *MockRepository) ListByTenant(ctx context.Context, tenantID, environment string) ([]*Connection, error) {
	if m.ListByTenantFunc != nil {
		return m.ListByTenantFunc(ctx, tenantID, environment)
	}
	return nil, nil
}

// FindDueForRefresh calls FindDueForRefreshFunc if set, otherwise returns nil, nil
func (m *MockRepository) FindDueForRefresh(ctx context.Context, window time.Duration, now time.Time) ([]*Connection, error) {
	if m.FindDueForRefreshFunc != nil {
		return m.FindDueForRefreshFunc(ctx, window, now)
	}
	return nil, nil
}

// RecordRefreshSuccess calls RecordRefreshSuccessFunc if set, otherwise returns nil
func (m *MockRepository) RecordRefreshSuccess(ctx context.Context, connectionID string, expiresAt, now time.Time, expectedVersion int64) error {
	if m.RecordRefreshSuccessFunc != nil {
		return m.RecordRefreshSuccessFunc(ctx, connectionID, expiresAt, now, expectedVersion)
	}
	return nil
}

// RecordRefreshFailure calls RecordRefreshFailureFunc if set, otherwise returns nil
func (m *MockRepository) RecordRefreshFailure(ctx context.Context, connectionID, cause string, nextEligible, now time.Time) error {
	if m.RecordRefreshFailureFunc != nil {
		return m.RecordRefreshFailureFunc(ctx, connectionID, cause, nextEligible, now)
	}
	return nil
}

// Disable calls DisableFunc if set, otherwise returns nil
func (m *MockRepository) Disable(ctx context.Context, connectionID, cause string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, connectionID, cause)
	}
	return nil
}

// Disconnect calls DisconnectFunc if set, otherwise returns nil
func (m *MockRepository) Disconnect(ctx context.Context, connectionID string) error {
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc(ctx, connectionID)
	}
	return nil
}
