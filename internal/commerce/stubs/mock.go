package stubs

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"pizzabot/internal/commerce"
	"pizzabot/internal/models"
)

// MockCommerce is an in-memory commerce backend
type MockCommerce struct {
	mu       sync.RWMutex
	currency string
	products []models.Product
	images   map[string]string
	stores   []models.Store
	carts    map[string][]models.CartLine
	entries  []models.CustomerEntry
	nextLine int
	failure  error
}

// NewMockCommerce creates a backend serving the given catalog and stores
func NewMockCommerce(currency string, products []models.Product, stores []models.Store) *MockCommerce {
	images := make(map[string]string)
	for _, p := range products {
		if p.ImageID != "" {
			images[p.ImageID] = "https://img.example.com/" + p.ImageID + ".jpg"
		}
	}
	return &MockCommerce{
		currency: currency,
		products: products,
		images:   images,
		stores:   stores,
		carts:    make(map[string][]models.CartLine),
	}
}

// SetFailure makes every following call return err; nil restores normal operation
func (m *MockCommerce) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// Entries returns the customer entries created so far
func (m *MockCommerce) Entries() []models.CustomerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.CustomerEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *MockCommerce) ListProducts(ctx context.Context) ([]models.ProductRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	refs := make([]models.ProductRef, 0, len(m.products))
	for _, p := range m.products {
		refs = append(refs, models.ProductRef{ID: p.ID, Name: p.Name})
	}
	return refs, nil
}

func (m *MockCommerce) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	p, ok := m.product(productID)
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, commerce.ErrNotFound)
	}
	return &p, nil
}

func (m *MockCommerce) GetImageURL(ctx context.Context, imageID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return "", m.failure
	}

	url, ok := m.images[imageID]
	if !ok {
		return "", fmt.Errorf("image %s: %w", imageID, commerce.ErrNotFound)
	}
	return url, nil
}

func (m *MockCommerce) AddToCart(ctx context.Context, cartRef, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}

	p, ok := m.product(productID)
	if !ok {
		return fmt.Errorf("product %s: %w", productID, commerce.ErrNotFound)
	}

	lines := m.carts[cartRef]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity += quantity
			lines[i].LineTotal = m.money(p.Price.Amount.Mul(decimal.NewFromInt(int64(lines[i].Quantity))))
			return nil
		}
	}

	m.nextLine++
	m.carts[cartRef] = append(lines, models.CartLine{
		ID:        fmt.Sprintf("line-%d", m.nextLine),
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  quantity,
		UnitPrice: m.money(p.Price.Amount),
		LineTotal: m.money(p.Price.Amount.Mul(decimal.NewFromInt(int64(quantity)))),
	})
	return nil
}

func (m *MockCommerce) CartItems(ctx context.Context, cartRef string) ([]models.CartLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	lines := make([]models.CartLine, len(m.carts[cartRef]))
	copy(lines, m.carts[cartRef])
	return lines, nil
}

func (m *MockCommerce) RemoveCartItem(ctx context.Context, cartRef, lineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}

	lines := m.carts[cartRef]
	for i := range lines {
		if lines[i].ID == lineID {
			m.carts[cartRef] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("cart line %s: %w", lineID, commerce.ErrNotFound)
}

func (m *MockCommerce) CartTotal(ctx context.Context, cartRef string) (models.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return models.Money{}, m.failure
	}

	total := decimal.Zero
	for _, line := range m.carts[cartRef] {
		total = total.Add(line.LineTotal.Amount)
	}
	return m.money(total), nil
}

func (m *MockCommerce) DeleteCart(ctx context.Context, cartRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}

	delete(m.carts, cartRef)
	return nil
}

func (m *MockCommerce) ListStores(ctx context.Context) ([]models.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	stores := make([]models.Store, len(m.stores))
	copy(stores, m.stores)
	return stores, nil
}

func (m *MockCommerce) CreateCustomerEntry(ctx context.Context, entry models.CustomerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}

	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockCommerce) product(id string) (models.Product, bool) {
	for _, p := range m.products {
		if p.ID == id {
			return p, true
		}
	}
	return models.Product{}, false
}

func (m *MockCommerce) money(amount decimal.Decimal) models.Money {
	return models.Money{Amount: amount, Currency: m.currency}
}
