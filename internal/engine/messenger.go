package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"pizzabot/internal/models"
)

// EventKind is the shape of an inbound event
type EventKind string

const (
	KindText     EventKind = "text"
	KindCallback EventKind = "callback"
	KindLocation EventKind = "location"
)

// Event is an inbound message normalized by a platform adapter
type Event struct {
	UserKey     string
	Kind        EventKind
	Text        string
	Payload     string
	Coordinates *models.Coordinates

	// UserName is the display name if the platform provides one
	UserName string
}

// Button is one option offered to the user
type Button struct {
	Label string
	Value string
}

// Reply asks the adapter to show content with options. Buttons are grouped in rows.
type Reply struct {
	UserKey         string
	Text            string
	PhotoURL        string
	Buttons         [][]Button
	RemoveKeyboard  bool
	RequestLocation bool
}

// Invoice is a card payment request for a pending order
type Invoice struct {
	UserKey     string
	Title       string
	Description string
	Token       string
	Amount      decimal.Decimal
	Currency    string
}

// PaymentConfirmation is the payment provider's callback
type PaymentConfirmation struct {
	UserKey  string `json:"user_key"`
	Token    string `json:"payload_token"`
	Approved bool   `json:"approved"`
}

// Messenger delivers outbound messages to the user's platform
type Messenger interface {
	Send(ctx context.Context, reply Reply) error
	SendLocation(ctx context.Context, userKey string, location models.Coordinates) error
	SendInvoice(ctx context.Context, invoice Invoice) error
}
