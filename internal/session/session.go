// Package session defines the persisted per-user conversation record.
//
// A session is stored as JSON of the shape
//
//	{"state": "Browsing", "context": {"menu_page": 2, ...}}
//
// under the user's key. The state machine reads it, mutates an in-memory
// copy and writes the whole record back.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pizzabot/internal/models"
)

// ErrCorrupted is returned by Decode for a record that is not valid JSON
var ErrCorrupted = errors.New("corrupted session record")

// State is a named stage of the conversation
type State string

const (
	StateStart               State = "Start"
	StateBrowsing            State = "Browsing"
	StateProductDetail       State = "ProductDetail"
	StateCart                State = "Cart"
	StateAwaitingLocation    State = "AwaitingLocation"
	StateChoosingFulfillment State = "ChoosingFulfillment"
	StateAwaitingPayment     State = "AwaitingPayment"
)

// States lists every known state in conversation order
func States() []State {
	return []State{
		StateStart,
		StateBrowsing,
		StateProductDetail,
		StateCart,
		StateAwaitingLocation,
		StateChoosingFulfillment,
		StateAwaitingPayment,
	}
}

// Valid reports whether s is one of the known states
func (s State) Valid() bool {
	for _, known := range States() {
		if s == known {
			return true
		}
	}
	return false
}

// StoreChoice is the nearest store together with its distance to the customer
type StoreChoice struct {
	models.Store
	DistanceKm float64 `json:"distance_km"`
}

// Context holds conversation-scoped working data
type Context struct {
	MenuPage          int                 `json:"menu_page"`
	SelectedProductID string              `json:"selected_product_id,omitempty"`
	ResolvedLocation  *models.Coordinates `json:"resolved_location,omitempty"`
	NearestStore      *StoreChoice        `json:"nearest_store,omitempty"`
	DeliveryTier      string              `json:"delivery_tier,omitempty"`
	DeliveryFee       *decimal.Decimal    `json:"delivery_fee,omitempty"`
	Fulfillment       string              `json:"fulfillment,omitempty"`
	PendingOrderTotal *decimal.Decimal    `json:"pending_order_total,omitempty"`
	PaymentToken      string              `json:"payment_token,omitempty"`
	OrderID           string              `json:"order_id,omitempty"`
}

// Session is the persisted conversation record of one user
type Session struct {
	UserKey string  `json:"-"`
	State   State   `json:"state"`
	Context Context `json:"context"`
}

// New returns a fresh session in the initial state
func New(userKey string) *Session {
	return &Session{UserKey: userKey, State: StateStart}
}

// Reset returns the session to the initial state and drops all context
func (s *Session) Reset() {
	s.State = StateStart
	s.Context = Context{}
}

// Clone returns a deep copy so handlers can mutate without touching the original
func (s *Session) Clone() *Session {
	c := *s
	if s.Context.ResolvedLocation != nil {
		loc := *s.Context.ResolvedLocation
		c.Context.ResolvedLocation = &loc
	}
	if s.Context.NearestStore != nil {
		store := *s.Context.NearestStore
		c.Context.NearestStore = &store
	}
	if s.Context.DeliveryFee != nil {
		fee := *s.Context.DeliveryFee
		c.Context.DeliveryFee = &fee
	}
	if s.Context.PendingOrderTotal != nil {
		total := *s.Context.PendingOrderTotal
		c.Context.PendingOrderTotal = &total
	}
	return &c
}

// Encode serializes the session into its wire shape
func Encode(s *Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", s.UserKey, err)
	}
	return data, nil
}

// Decode parses a stored record. Unknown state values are kept as-is so the
// caller can detect and recover from them.
func Decode(userKey string, data []byte) (*Session, error) {
	s := &Session{UserKey: userKey}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w: %w", userKey, ErrCorrupted, err)
	}
	return s, nil
}
