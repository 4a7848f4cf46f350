package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pizzabot/internal/commerce"
	commercestubs "pizzabot/internal/commerce/stubs"
	"pizzabot/internal/config"
	"pizzabot/internal/engine"
	"pizzabot/internal/models"
	"pizzabot/internal/platform"
	"pizzabot/internal/platform/facebook"
	"pizzabot/internal/session"
	"pizzabot/internal/storage/stubs"
)

type recordingSender struct {
	mu      sync.Mutex
	replies []engine.Reply
}

func (s *recordingSender) Send(ctx context.Context, reply engine.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply)
	return nil
}

func (s *recordingSender) SendLocation(ctx context.Context, userKey string, location models.Coordinates) error {
	return nil
}

func (s *recordingSender) SendInvoice(ctx context.Context, invoice engine.Invoice) error {
	return nil
}

const testSecret = "s3cret"

func newTestApp(t *testing.T) (*App, *stubs.MockDB, *recordingSender) {
	t.Helper()

	db := stubs.NewMockDB()
	sender := &recordingSender{}
	cfg := &config.Config{
		FBPageToken:           "page-token",
		FBVerifyToken:         "verify-me",
		UseMockDB:             true,
		CommerceBackend:       config.CommerceMock,
		MenuPageSize:          7,
		DeliveryFeeLow:        decimal.NewFromInt(100),
		DeliveryFeeHigh:       decimal.NewFromInt(300),
		Currency:              "RUB",
		PaymentCallbackSecret: testSecret,
	}

	a := &App{
		config:        cfg,
		logger:        zap.NewNop(),
		sessions:      db,
		journal:       db,
		closeCommerce: func() error { return nil },
		router:        platform.NewRouter(),
	}
	a.catalog = commerce.NewCached(commercestubs.NewMockCommerce("RUB",
		commercestubs.DemoCatalog("RUB"), commercestubs.DemoStores()), time.Minute)
	a.facebook = facebook.NewBot(cfg.FBPageToken, cfg.FBVerifyToken, nil, facebook.Options{}, a.logger)
	a.router.Register(platform.Telegram, sender)

	a.initEngine()
	a.initHTTPServer()
	t.Cleanup(func() { _ = a.Shutdown() })

	return a, db, sender
}

func pendingSession(t *testing.T, db *stubs.MockDB, userKey, token string) {
	t.Helper()
	total := decimal.NewFromInt(918)
	s := session.New(userKey)
	s.State = session.StateAwaitingPayment
	s.Context.Fulfillment = models.FulfillmentPickup
	s.Context.PendingOrderTotal = &total
	s.Context.PaymentToken = token
	s.Context.OrderID = "order-1"
	require.NoError(t, db.Put(context.Background(), s))
}

func doRequest(t *testing.T, a *App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := a.server.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthAndRoot(t *testing.T) {
	a, _, _ := newTestApp(t)

	status, body := doRequest(t, a, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	status, body = doRequest(t, a, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"mode":"polling"`)
	assert.Contains(t, body, `"tg"`)
}

func TestFacebookRoutesMounted(t *testing.T) {
	a, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/facebook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=7", nil)
	status, body := doRequest(t, a, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "7", body)
}

func paymentRequest(secret, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	return req
}

func TestPaymentCallback(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		body   string
		status int
	}{
		{name: "missing secret", body: `{}`, status: http.StatusForbidden},
		{name: "wrong secret", secret: "nope", body: `{}`, status: http.StatusForbidden},
		{name: "malformed body", secret: testSecret, body: `{`, status: http.StatusBadRequest},
		{
			name:   "token mismatch",
			secret: testSecret,
			body:   `{"user_key":"tg_5","payload_token":"forged","approved":true}`,
			status: http.StatusConflict,
		},
		{
			name:   "approved",
			secret: testSecret,
			body:   `{"user_key":"tg_5","payload_token":"tok-1","approved":true}`,
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, db, sender := newTestApp(t)
			pendingSession(t, db, "tg_5", "tok-1")

			status, body := doRequest(t, a, paymentRequest(tt.secret, tt.body))
			assert.Equal(t, tt.status, status, body)

			s, err := db.Get(context.Background(), "tg_5")
			require.NoError(t, err)
			if tt.status == http.StatusOK {
				assert.Equal(t, session.StateStart, s.State)
				require.Len(t, sender.replies, 1)
				orders, err := db.RecentOrders(context.Background(), 10)
				require.NoError(t, err)
				require.Len(t, orders, 1)
				assert.Equal(t, models.PaymentCard, orders[0].PaymentMethod)
			} else {
				assert.Equal(t, session.StateAwaitingPayment, s.State)
				assert.Empty(t, sender.replies)
			}
		})
	}
}

func TestPaymentCallbackDisabledWithoutSecret(t *testing.T) {
	a, _, _ := newTestApp(t)
	a.config.PaymentCallbackSecret = ""

	status, _ := doRequest(t, a, paymentRequest("", `{}`))
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestRecentOrders(t *testing.T) {
	a, db, _ := newTestApp(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, db.RecordOrder(ctx, models.OrderRecord{
			ID:            id,
			UserKey:       "vk_1",
			Platform:      platform.VK,
			Fulfillment:   models.FulfillmentDelivery,
			DeliveryFee:   decimal.NewFromInt(100),
			Total:         decimal.NewFromInt(1000),
			Currency:      "RUB",
			PaymentMethod: models.PaymentCash,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/orders?limit=2", nil)
	req.Header.Set(secretHeader, testSecret)
	status, body := doRequest(t, a, req)
	require.Equal(t, http.StatusOK, status, body)

	var resp struct {
		Orders []orderView `json:"orders"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.Len(t, resp.Orders, 2)
	assert.Equal(t, "o3", resp.Orders[0].ID)
	assert.Equal(t, "o2", resp.Orders[1].ID)
	assert.True(t, resp.Orders[0].Total.Equal(decimal.NewFromInt(1000)))

	req = httptest.NewRequest(http.MethodGet, "/api/orders?limit=500", nil)
	req.Header.Set(secretHeader, testSecret)
	status, _ = doRequest(t, a, req)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, a, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusForbidden, status)
}
