// Package commerce defines the catalog, cart and fulfillment backend
// consumed by the conversation engine.
package commerce

import (
	"context"
	"errors"

	"pizzabot/internal/models"
)

// ErrNotFound is returned when a product, image or cart line does not exist
var ErrNotFound = errors.New("not found")

// Client is the commerce backend. Carts are keyed by the user key.
type Client interface {
	// Catalog
	ListProducts(ctx context.Context) ([]models.ProductRef, error)
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	GetImageURL(ctx context.Context, imageID string) (string, error)

	// Cart
	AddToCart(ctx context.Context, cartRef, productID string, quantity int) error
	CartItems(ctx context.Context, cartRef string) ([]models.CartLine, error)
	RemoveCartItem(ctx context.Context, cartRef, lineID string) error
	CartTotal(ctx context.Context, cartRef string) (models.Money, error)
	DeleteCart(ctx context.Context, cartRef string) error

	// Fulfillment
	ListStores(ctx context.Context) ([]models.Store, error)
	CreateCustomerEntry(ctx context.Context, entry models.CustomerEntry) error
}
