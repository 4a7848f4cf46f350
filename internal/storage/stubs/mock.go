package stubs

import (
	"context"
	"sort"
	"sync"

	"pizzabot/internal/models"
	"pizzabot/internal/session"
	"pizzabot/internal/storage"
)

// MockDB is an in-memory implementation of SessionStore and OrderJournal
type MockDB struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	orders   []models.OrderRecord
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		sessions: make(map[string][]byte),
		orders:   make([]models.OrderRecord, 0),
	}
}

// CheckSchema always succeeds; the mock has no schema
func (m *MockDB) CheckSchema(ctx context.Context) error {
	return nil
}

// Get returns a decoded copy of the stored session
func (m *MockDB) Get(ctx context.Context, userKey string) (*session.Session, error) {
	m.mu.RLock()
	data, ok := m.sessions[userKey]
	m.mu.RUnlock()

	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	return session.Decode(userKey, data)
}

// Put stores the encoded session, replacing any previous record.
// Sessions are kept encoded so callers never share memory with the store.
func (m *MockDB) Put(ctx context.Context, s *session.Session) error {
	data, err := session.Encode(s)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserKey] = data
	return nil
}

// SetRaw stores a raw record, used to simulate corrupted sessions in tests
func (m *MockDB) SetRaw(userKey string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userKey] = data
}

// RecordOrder appends the order to the journal
func (m *MockDB) RecordOrder(ctx context.Context, order models.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders = append(m.orders, order)
	return nil
}

// RecentOrders returns the last N orders
func (m *MockDB) RecentOrders(ctx context.Context, limit int) ([]models.OrderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Sort orders by creation time descending
	sorted := make([]models.OrderRecord, len(m.orders))
	copy(sorted, m.orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if limit > len(sorted) {
		limit = len(sorted)
	}

	return sorted[:limit], nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
