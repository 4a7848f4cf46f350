package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Coordinates is a point on the globe in (longitude, latitude) order
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Money is an amount with its currency and the backend's display form
type Money struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Formatted string          `json:"formatted,omitempty"`
}

// String returns the backend formatting when present
func (m Money) String() string {
	if m.Formatted != "" {
		return m.Formatted
	}
	if m.Currency == "" {
		return m.Amount.StringFixed(2)
	}
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}

// ProductRef is a catalog entry as shown in the menu
type ProductRef struct {
	ID   string
	Name string
}

// Product is a catalog product with its details
type Product struct {
	ID          string
	Name        string
	Description string
	Price       Money
	ImageID     string
}

// CartLine is one line of a user's cart
type CartLine struct {
	ID        string
	ProductID string
	Name      string
	Quantity  int
	UnitPrice Money
	LineTotal Money
}

// Store represents a pizzeria the order can be fulfilled from
type Store struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Address      string      `json:"address"`
	Location     Coordinates `json:"location"`
	DelivererKey string      `json:"deliverer_key,omitempty"`
}

// CustomerEntry is the fulfillment record stored in the commerce backend
type CustomerEntry struct {
	OrderRef     string
	CustomerName string
	Location     Coordinates
}

// Fulfillment modes
const (
	FulfillmentPickup   = "pickup"
	FulfillmentDelivery = "delivery"
)

// Payment methods
const (
	PaymentCash = "cash"
	PaymentCard = "card"
)

// OrderRecord is a confirmed order as written to the order journal
type OrderRecord struct {
	ID            string
	UserKey       string
	Platform      string
	Fulfillment   string
	StoreID       string
	StoreName     string
	DistanceKm    float64
	DeliveryFee   decimal.Decimal
	Total         decimal.Decimal
	Currency      string
	PaymentMethod string
	CreatedAt     time.Time
}
