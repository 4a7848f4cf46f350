package moltin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzabot/internal/commerce"
	"pizzabot/internal/models"
)

type fakeMoltin struct {
	server     *httptest.Server
	tokenCalls atomic.Int32
	lastBody   map[string]any
}

func newFakeMoltin(t *testing.T) *fakeMoltin {
	f := &fakeMoltin{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		f.tokenCalls.Add(1)
		w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("GET /v2/products", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"p1","name":"Pepperoni"},{"id":"p2","name":"Margherita"}]}`))
	}))
	mux.HandleFunc("GET /v2/products/p1", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"p1","name":"Pepperoni","description":"Spicy",
			"meta":{"display_price":{"with_tax":{"amount":45900,"currency":"RUB","formatted":"459.00 ₽"}}},
			"relationships":{"main_image":{"data":{"id":"img1","type":"main_image"}}}}}`))
	}))
	mux.HandleFunc("GET /v2/products/missing", auth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	mux.HandleFunc("GET /v2/files/img1", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"link":{"href":"https://cdn.example.com/img1.png"}}}`))
	}))
	mux.HandleFunc("POST /v2/carts/tg_1/items", auth(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.lastBody = body
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":[]}`))
	}))
	mux.HandleFunc("GET /v2/carts/tg_1/items", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"line1","product_id":"p1","name":"Pepperoni","quantity":3,
			"meta":{"display_price":{"with_tax":{
				"unit":{"amount":45900,"currency":"RUB","formatted":"459.00 ₽"},
				"value":{"amount":137700,"currency":"RUB","formatted":"1377.00 ₽"}}}}}]}`))
	}))
	mux.HandleFunc("GET /v2/carts/tg_1", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"meta":{"display_price":{"with_tax":{"amount":137700,"currency":"RUB","formatted":"1377.00 ₽"}}}}}`))
	}))
	mux.HandleFunc("DELETE /v2/carts/tg_1/items/line1", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	mux.HandleFunc("GET /v2/flows/pizzerias/entries", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"id":"s1","pizza-alias":"Arbat","pizza-address":"Arbat 10","longitude":"37.5961","latitude":"55.7510","deliverer":"tg_42"},
			{"id":"s2","pizza-alias":"Taganka","pizza-address":"Taganskaya 1","longitude":37.6535,"latitude":55.7416},
			{"id":"s3","pizza-alias":"Sokol","pizza-address":"Leningradsky 75","longitude":"37.5149","latitude":"55.8050","deliverer":"358268301"}]}`))
	}))
	mux.HandleFunc("POST /v2/flows/addresses/entries", auth(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.lastBody = body
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"e1"}}`))
	}))

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newTestClient(f *fakeMoltin) *Client {
	return NewClient(Config{BaseURL: f.server.URL, ClientID: "id", ClientSecret: "secret"})
}

func TestClient_Catalog(t *testing.T) {
	f := newFakeMoltin(t)
	c := newTestClient(f)
	ctx := context.Background()

	refs, err := c.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ProductRef{{ID: "p1", Name: "Pepperoni"}, {ID: "p2", Name: "Margherita"}}, refs)

	p, err := c.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Spicy", p.Description)
	assert.Equal(t, "img1", p.ImageID)
	assert.True(t, decimal.RequireFromString("459").Equal(p.Price.Amount))
	assert.Equal(t, "459.00 ₽", p.Price.String())

	href, err := c.GetImageURL(ctx, "img1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/img1.png", href)

	_, err = c.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, commerce.ErrNotFound)

	assert.EqualValues(t, 1, f.tokenCalls.Load(), "token should be cached between calls")
}

func TestClient_Cart(t *testing.T) {
	f := newFakeMoltin(t)
	c := newTestClient(f)
	ctx := context.Background()

	require.NoError(t, c.AddToCart(ctx, "tg_1", "p1", 3))
	data := f.lastBody["data"].(map[string]any)
	assert.Equal(t, "p1", data["id"])
	assert.Equal(t, "cart_item", data["type"])
	assert.EqualValues(t, 3, data["quantity"])

	lines, err := c.CartItems(ctx, "tg_1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "line1", lines[0].ID)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("1377").Equal(lines[0].LineTotal.Amount))

	total, err := c.CartTotal(ctx, "tg_1")
	require.NoError(t, err)
	assert.Equal(t, "1377.00 ₽", total.Formatted)

	require.NoError(t, c.RemoveCartItem(ctx, "tg_1", "line1"))
}

func TestClient_Stores(t *testing.T) {
	f := newFakeMoltin(t)
	c := newTestClient(f)
	ctx := context.Background()

	stores, err := c.ListStores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 3)

	assert.Equal(t, "Arbat", stores[0].Name)
	assert.Equal(t, "tg_42", stores[0].DelivererKey)
	assert.Empty(t, stores[1].DelivererKey)
	assert.Equal(t, "tg_358268301", stores[2].DelivererKey)
	assert.InDelta(t, 37.5961, stores[0].Location.Lon, 1e-9)
	assert.InDelta(t, 55.7416, stores[1].Location.Lat, 1e-9)

	err = c.CreateCustomerEntry(ctx, models.CustomerEntry{
		OrderRef:     "order-1",
		CustomerName: "tg_1",
		Location:     models.Coordinates{Lon: 37.6, Lat: 55.7},
	})
	require.NoError(t, err)
	data := f.lastBody["data"].(map[string]any)
	assert.Equal(t, "entry", data["type"])
	assert.Equal(t, "order-1", data["order"])
	assert.InDelta(t, 55.7, data["latitude"].(float64), 1e-9)
}

func TestDelivererKey(t *testing.T) {
	tests := map[string]string{
		"":            "",
		"tg_42":       "tg_42",
		"vk_7":        "vk_7",
		"358268301":   "tg_358268301",
		" 358268301 ": "tg_358268301",
		"-100123":     "tg_-100123",
	}
	for in, want := range tests {
		assert.Equal(t, want, delivererKey(in), "input %q", in)
	}
}

func TestClient_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/access_token" {
			w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	_, err := c.ListProducts(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, commerce.ErrNotFound)
}
