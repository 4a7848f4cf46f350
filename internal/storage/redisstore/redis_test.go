package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redisTC "github.com/testcontainers/testcontainers-go/modules/redis"

	"pizzabot/internal/models"
	"pizzabot/internal/session"
	"pizzabot/internal/storage"
)

func setupTestStore(t *testing.T, ttl time.Duration) (*RedisStore, func()) {
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}
	ctx := context.Background()

	redisContainer, err := redisTC.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "Failed to start Redis container")

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)

	port, err := redisContainer.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	store, err := NewRedisStore(host+":"+port.Port(), "", 0, ttl)
	require.NoError(t, err, "Failed to connect to Redis")

	cleanup := func() {
		store.Close()
		redisContainer.Terminate(ctx)
	}
	return store, cleanup
}

func TestRedisStore_GetMissing(t *testing.T) {
	store, cleanup := setupTestStore(t, 0)
	defer cleanup()

	_, err := store.Get(context.Background(), "tg_404")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestRedisStore_PutGet(t *testing.T) {
	store, cleanup := setupTestStore(t, 0)
	defer cleanup()

	ctx := context.Background()

	s := session.New("vk_7")
	s.State = session.StateChoosingFulfillment
	s.Context.MenuPage = 2
	s.Context.ResolvedLocation = &models.Coordinates{Lon: 37.62, Lat: 55.75}
	s.Context.NearestStore = &session.StoreChoice{
		Store:      models.Store{ID: "s1", Name: "Central"},
		DistanceKm: 1.2,
	}
	require.NoError(t, store.Put(ctx, s))

	got, err := store.Get(ctx, "vk_7")
	require.NoError(t, err)
	assert.Equal(t, "vk_7", got.UserKey)
	assert.Equal(t, session.StateChoosingFulfillment, got.State)
	assert.Equal(t, 2, got.Context.MenuPage)
	require.NotNil(t, got.Context.NearestStore)
	assert.Equal(t, "Central", got.Context.NearestStore.Name)

	// Full replace drops fields absent from the new record
	require.NoError(t, store.Put(ctx, session.New("vk_7")))
	got, err = store.Get(ctx, "vk_7")
	require.NoError(t, err)
	assert.Equal(t, session.StateStart, got.State)
	assert.Nil(t, got.Context.NearestStore)
}

func TestRedisStore_TTL(t *testing.T) {
	store, cleanup := setupTestStore(t, time.Hour)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, session.New("fb_1")))

	ttl, err := store.client.TTL(ctx, "session:fb_1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}
