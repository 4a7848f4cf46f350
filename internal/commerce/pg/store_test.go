package pg

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgresTC "github.com/testcontainers/testcontainers-go/modules/postgres"

	"pizzabot/internal/commerce"
	"pizzabot/internal/commerce/stubs"
	"pizzabot/internal/models"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgresTC.Run(ctx,
		"postgres:16-alpine",
		postgresTC.WithDatabase("pizzabot"),
		postgresTC.WithUsername("pizzabot"),
		postgresTC.WithPassword("pizzabot"),
		postgresTC.BasicWaitStrategies(),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(dsn, "RUB")
	require.NoError(t, err, "Failed to connect to PostgreSQL")

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	require.NoError(t, store.Migrate(migrateCtx))

	err = store.Seed(ctx, stubs.DemoCatalog("RUB"), stubs.DemoStores(), func(p models.Product) string {
		return "https://img.example.com/" + p.ID + ".jpg"
	})
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		pgContainer.Terminate(ctx)
	}
	return store, cleanup
}

func TestStore_Catalog(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	refs, err := store.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 9)
	assert.Equal(t, "margherita", refs[0].ID)

	p, err := store.GetProduct(ctx, "pepperoni")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(459).Equal(p.Price.Amount))

	url, err := store.GetImageURL(ctx, p.ImageID)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/pepperoni.jpg", url)

	_, err = store.GetProduct(ctx, "nope")
	assert.ErrorIs(t, err, commerce.ErrNotFound)

	stores, err := store.ListStores(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 2)
}

func TestStore_CartAddListRemove(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.AddToCart(ctx, "tg_1", "pepperoni", 3))

	lines, err := store.CartItems(ctx, "tg_1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "pepperoni", lines[0].ProductID)
	assert.Equal(t, 3, lines[0].Quantity)

	// Adding the same product again merges into one line
	require.NoError(t, store.AddToCart(ctx, "tg_1", "pepperoni", 1))
	lines, err = store.CartItems(ctx, "tg_1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 4, lines[0].Quantity)

	total, err := store.CartTotal(ctx, "tg_1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4*459).Equal(total.Amount), "total %s", total.Amount)

	require.NoError(t, store.RemoveCartItem(ctx, "tg_1", lines[0].ID))
	lines, err = store.CartItems(ctx, "tg_1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	err = store.RemoveCartItem(ctx, "tg_1", "999")
	assert.ErrorIs(t, err, commerce.ErrNotFound)
}

func TestStore_DeleteCartAndEntries(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.AddToCart(ctx, "vk_1", "veggie", 1))
	require.NoError(t, store.AddToCart(ctx, "vk_2", "veggie", 1))
	require.NoError(t, store.DeleteCart(ctx, "vk_1"))

	lines, err := store.CartItems(ctx, "vk_1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, err = store.CartItems(ctx, "vk_2")
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	err = store.CreateCustomerEntry(ctx, models.CustomerEntry{
		OrderRef:     "o-1",
		CustomerName: "vk_1",
		Location:     models.Coordinates{Lon: 37.6, Lat: 55.7},
	})
	require.NoError(t, err)
}
