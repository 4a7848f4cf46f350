package platform

import (
	"context"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzabot/internal/engine"
	"pizzabot/internal/models"
)

type recordingSender struct {
	replies   []engine.Reply
	locations []string
	invoices  []engine.Invoice
}

func (s *recordingSender) Send(ctx context.Context, reply engine.Reply) error {
	s.replies = append(s.replies, reply)
	return nil
}

func (s *recordingSender) SendLocation(ctx context.Context, userKey string, location models.Coordinates) error {
	s.locations = append(s.locations, userKey)
	return nil
}

func (s *recordingSender) SendInvoice(ctx context.Context, invoice engine.Invoice) error {
	s.invoices = append(s.invoices, invoice)
	return nil
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		prefix  string
		id      string
		wantErr bool
	}{
		{name: "telegram", key: "tg_42", prefix: "tg", id: "42"},
		{name: "facebook psid", key: "fb_2837462", prefix: "fb", id: "2837462"},
		{name: "no separator", key: "tg42", wantErr: true},
		{name: "empty id", key: "vk_", wantErr: true},
		{name: "empty prefix", key: "_42", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, id, err := SplitKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, prefix)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.key, Key(prefix, id))
		})
	}
}

func TestNumericID(t *testing.T) {
	id, err := NumericID("tg_-100123", Telegram)
	require.NoError(t, err)
	assert.Equal(t, int64(-100123), id)

	_, err = NumericID("vk_1", Telegram)
	assert.Error(t, err)

	_, err = NumericID("tg_abc", Telegram)
	assert.Error(t, err)
}

func TestRouter_RoutesByPrefix(t *testing.T) {
	ctx := context.Background()
	tg := &recordingSender{}
	vk := &recordingSender{}

	r := NewRouter()
	r.Register(Telegram, tg)
	r.Register(VK, vk)
	assert.ElementsMatch(t, []string{"tg", "vk"}, r.Platforms())

	require.NoError(t, r.Send(ctx, engine.Reply{UserKey: "tg_1", Text: "hi"}))
	require.NoError(t, r.SendLocation(ctx, "vk_2", models.Coordinates{Lon: 37.6, Lat: 55.7}))
	require.NoError(t, r.SendInvoice(ctx, engine.Invoice{UserKey: "tg_1", Token: "t"}))

	assert.Len(t, tg.replies, 1)
	assert.Len(t, tg.invoices, 1)
	assert.Equal(t, []string{"vk_2"}, vk.locations)
	assert.Empty(t, vk.replies)

	err := r.Send(ctx, engine.Reply{UserKey: "fb_3"})
	assert.ErrorIs(t, err, ErrUnknownPlatform)

	err = r.Send(ctx, engine.Reply{UserKey: "garbage"})
	assert.Error(t, err)
}

func TestPaymentLink(t *testing.T) {
	link, err := PaymentLink("https://pay.example.com/checkout?shop=7", engine.Invoice{
		UserKey:  "vk_5",
		Token:    "abc-123",
		Amount:   decimal.RequireFromString("1600"),
		Currency: "RUB",
	})
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "pay.example.com", u.Host)
	assert.Equal(t, "7", u.Query().Get("shop"))
	assert.Equal(t, "vk_5", u.Query().Get("user_key"))
	assert.Equal(t, "abc-123", u.Query().Get("token"))
	assert.Equal(t, "1600.00", u.Query().Get("amount"))
}

func TestShouldApologize(t *testing.T) {
	assert.False(t, ShouldApologize(nil))
	assert.False(t, ShouldApologize(&engine.UnrecognizedStateError{State: "HANDLE_MENU"}))
	assert.True(t, ShouldApologize(&engine.ExternalServiceError{Op: "send", Err: assert.AnError}))
	assert.True(t, ShouldApologize(&engine.MissingContextFieldError{Field: "nearest_store"}))
}

func TestNewLimiter(t *testing.T) {
	unlimited := NewLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}

	limited := NewLimiter(2)
	assert.True(t, limited.Allow())
	assert.True(t, limited.Allow())
	assert.False(t, limited.Allow())
}
