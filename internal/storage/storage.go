package storage

import (
	"context"
	"errors"

	"pizzabot/internal/models"
	"pizzabot/internal/session"
)

// ErrSessionNotFound is returned by SessionStore.Get for a user without a record
var ErrSessionNotFound = errors.New("session not found")

// SessionStore defines the interface for per-user session persistence
type SessionStore interface {
	// Get returns the stored session or ErrSessionNotFound
	Get(ctx context.Context, userKey string) (*session.Session, error)

	// Put fully replaces the stored record for the session's user key
	Put(ctx context.Context, s *session.Session) error

	Close() error
}

// OrderJournal defines the interface for the confirmed-orders log
type OrderJournal interface {
	RecordOrder(ctx context.Context, order models.OrderRecord) error

	// RecentOrders returns the last N orders, newest first
	RecentOrders(ctx context.Context, limit int) ([]models.OrderRecord, error)

	// CheckSchema verifies the journal schema is in place
	CheckSchema(ctx context.Context) error
	Close() error
}
