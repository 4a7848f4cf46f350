package commerce

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"pizzabot/internal/models"
)

const (
	productsKey = "products"
	storesKey   = "stores"
)

// Cached wraps a Client and keeps read-only catalog data for a fixed TTL.
// Cart and fulfillment calls always go to the backend.
type Cached struct {
	Client

	lists    *ttlcache.Cache[string, []models.ProductRef]
	products *ttlcache.Cache[string, *models.Product]
	images   *ttlcache.Cache[string, string]
	stores   *ttlcache.Cache[string, []models.Store]
}

// NewCached creates the caching decorator and starts expiry loops
func NewCached(client Client, ttl time.Duration) *Cached {
	c := &Cached{
		Client: client,
		lists: ttlcache.New[string, []models.ProductRef](
			ttlcache.WithTTL[string, []models.ProductRef](ttl),
			ttlcache.WithDisableTouchOnHit[string, []models.ProductRef](),
		),
		products: ttlcache.New[string, *models.Product](
			ttlcache.WithTTL[string, *models.Product](ttl),
			ttlcache.WithDisableTouchOnHit[string, *models.Product](),
		),
		images: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](ttl),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		stores: ttlcache.New[string, []models.Store](
			ttlcache.WithTTL[string, []models.Store](ttl),
			ttlcache.WithDisableTouchOnHit[string, []models.Store](),
		),
	}

	go c.lists.Start()
	go c.products.Start()
	go c.images.Start()
	go c.stores.Start()

	return c
}

func (c *Cached) ListProducts(ctx context.Context) ([]models.ProductRef, error) {
	if item := c.lists.Get(productsKey); item != nil {
		return item.Value(), nil
	}
	refs, err := c.Client.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	c.lists.Set(productsKey, refs, ttlcache.DefaultTTL)
	return refs, nil
}

func (c *Cached) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	if item := c.products.Get(productID); item != nil {
		p := *item.Value()
		return &p, nil
	}
	p, err := c.Client.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	stored := *p
	c.products.Set(productID, &stored, ttlcache.DefaultTTL)
	return p, nil
}

func (c *Cached) GetImageURL(ctx context.Context, imageID string) (string, error) {
	if item := c.images.Get(imageID); item != nil {
		return item.Value(), nil
	}
	url, err := c.Client.GetImageURL(ctx, imageID)
	if err != nil {
		return "", err
	}
	c.images.Set(imageID, url, ttlcache.DefaultTTL)
	return url, nil
}

func (c *Cached) ListStores(ctx context.Context) ([]models.Store, error) {
	if item := c.stores.Get(storesKey); item != nil {
		return item.Value(), nil
	}
	stores, err := c.Client.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	c.stores.Set(storesKey, stores, ttlcache.DefaultTTL)
	return stores, nil
}

// Stop stops the expiry loops
func (c *Cached) Stop() {
	c.lists.Stop()
	c.products.Stop()
	c.images.Stop()
	c.stores.Stop()
}
