package secret

import (
	"context"
	"sync"

	"github.com/staylink/connections/connection"
)

// MockGateway is an in-memory Gateway with optional hooks, for tests.
type MockGateway struct {
	ReadFunc   func(ctx context.Context, connectionID string) (*connection.Credential, int64, error)
	WriteFunc  func(ctx context.Context, connectionID string, cred *connection.Credential, expectedVersion int64) error
	DeleteFunc func(ctx context.Context, connectionID string) error

	mu    sync.Mutex
	creds map[string]*connection.Credential
	vers  map[string]int64
}

// Ensure MockGateway implements Gateway
var _ Gateway = (*MockGateway)(nil)

// NewMockGateway creates an empty in-memory gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		creds: map[string]*connection.Credential{},
		vers:  map[string]int64{},
	}
}

// Read calls ReadFunc if set, otherwise serves from memory.
func (m *MockGateway) Read(ctx context.Context, connectionID string) (*connection.Credential, int64, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, connectionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[connectionID]
	if !ok {
		return nil, 0, ErrNotFound
	}
	cp := *cred
	return &cp, m.vers[connectionID], nil
}

// Write calls WriteFunc if set, otherwise applies the compare-and-swap in
// memory.
func (m *MockGateway) Write(ctx context.Context, connectionID string, cred *connection.Credential, expectedVersion int64) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, connectionID, cred, expectedVersion)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vers[connectionID] != expectedVersion {
		return ErrVersionConflict
	}
	cp := *cred
	m.creds[connectionID] = &cp
	m.vers[connectionID] = expectedVersion + 1
	return nil
}

// Delete calls DeleteFunc if set, otherwise removes from memory.
func (m *MockGateway) Delete(ctx context.Context, connectionID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, connectionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, connectionID)
	delete(m.vers, connectionID)
	return nil
}
