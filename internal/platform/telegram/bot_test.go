package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pizzabot/internal/engine"
	"pizzabot/internal/platform"
)

// Note: tgbotapi.BotAPI cannot be mocked, so tests run with a nil api and
// check what the adapter hands to the engine

type recordingHandler struct {
	events   []engine.Event
	verified []string
	payments []engine.PaymentConfirmation
	err      error
	panics   bool
}

func (h *recordingHandler) HandleEvent(ctx context.Context, ev engine.Event) error {
	if h.panics {
		panic("boom")
	}
	h.events = append(h.events, ev)
	return h.err
}

func (h *recordingHandler) VerifyPayment(ctx context.Context, userKey, token string) error {
	h.verified = append(h.verified, userKey+":"+token)
	if token != "good" {
		return engine.ErrPaymentTokenMismatch
	}
	return nil
}

func (h *recordingHandler) ConfirmPayment(ctx context.Context, pc engine.PaymentConfirmation) error {
	h.payments = append(h.payments, pc)
	return nil
}

func newTestBot(handler platform.Handler) *Bot {
	return &Bot{
		api:     nil, // Not needed for internal logic tests
		handler: handler,
		limiter: platform.NewLimiter(0),
		logger:  zap.NewNop(),
		menus:   make(map[int64]int),
	}
}

func TestBot_TextMessageBecomesTextEvent(t *testing.T) {
	handler := &recordingHandler{}
	bot := newTestBot(handler)

	bot.HandleWebhookUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 123, FirstName: "Ann"},
		Chat: &tgbotapi.Chat{ID: 123},
		Text: "/start",
	}})

	require.Len(t, handler.events, 1)
	ev := handler.events[0]
	assert.Equal(t, "tg_123", ev.UserKey)
	assert.Equal(t, engine.KindText, ev.Kind)
	assert.Equal(t, "/start", ev.Text)
	assert.Equal(t, "Ann", ev.UserName)
}

func TestBot_LocationMessageBecomesLocationEvent(t *testing.T) {
	handler := &recordingHandler{}
	bot := newTestBot(handler)

	bot.HandleWebhookUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 123},
		Chat:     &tgbotapi.Chat{ID: 123},
		Location: &tgbotapi.Location{Longitude: 37.6173, Latitude: 55.7558},
	}})

	require.Len(t, handler.events, 1)
	ev := handler.events[0]
	assert.Equal(t, engine.KindLocation, ev.Kind)
	require.NotNil(t, ev.Coordinates)
	assert.Equal(t, 37.6173, ev.Coordinates.Lon)
	assert.Equal(t, 55.7558, ev.Coordinates.Lat)
}

func TestBot_StickerIsIgnored(t *testing.T) {
	handler := &recordingHandler{}
	bot := newTestBot(handler)

	bot.HandleWebhookUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From:    &tgbotapi.User{ID: 123},
		Chat:    &tgbotapi.Chat{ID: 123},
		Sticker: &tgbotapi.Sticker{FileID: "x"},
	}})

	assert.Empty(t, handler.events)
}

func TestBot_CallbackBecomesCallbackEvent(t *testing.T) {
	handler := &recordingHandler{}
	bot := newTestBot(handler)

	bot.HandleWebhookUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q1",
		From:    &tgbotapi.User{ID: 123},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 456}},
		Data:    "cart 3",
	}})

	require.Len(t, handler.events, 1)
	ev := handler.events[0]
	assert.Equal(t, "tg_456", ev.UserKey)
	assert.Equal(t, engine.KindCallback, ev.Kind)
	assert.Equal(t, "cart 3", ev.Payload)
}

func TestBot_PreCheckoutAsksEngine(t *testing.T) {
	handler := &recordingHandler{}
	bot := newTestBot(handler)

	bot.HandleWebhookUpdate(tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
		ID:             "pc1",
		From:           &tgbotapi.User{ID: 123},
		InvoicePayload: "forged",
	}})

	assert.Equal(t, []string{"tg_123:forged"}, handler.verified)
	assert.Empty(t, handler.events)
}

func TestBot_SuccessfulPaymentConfirms(t *testing.T) {
	handler := &recordingHandler{}
	bot := newTestBot(handler)

	bot.HandleWebhookUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 123},
		Chat: &tgbotapi.Chat{ID: 123},
		SuccessfulPayment: &tgbotapi.SuccessfulPayment{
			Currency:       "RUB",
			TotalAmount:    150000,
			InvoicePayload: "token-1",
		},
	}})

	require.Len(t, handler.payments, 1)
	assert.Equal(t, engine.PaymentConfirmation{UserKey: "tg_123", Token: "token-1", Approved: true}, handler.payments[0])
	assert.Empty(t, handler.events, "payment messages are not conversation events")
}

func TestBot_HandlerErrorsAndPanicsDoNotEscape(t *testing.T) {
	handler := &recordingHandler{err: errors.New("backend down")}
	bot := newTestBot(handler)

	message := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 1},
		Chat: &tgbotapi.Chat{ID: 1},
		Text: "basket",
	}
	bot.HandleWebhookUpdate(tgbotapi.Update{Message: message})
	assert.Len(t, handler.events, 1)

	handler.panics = true
	assert.NotPanics(t, func() {
		bot.HandleWebhookUpdate(tgbotapi.Update{Message: message})
	})
}

func TestInlineKeyboard(t *testing.T) {
	keyboard := inlineKeyboard([][]engine.Button{
		{{Label: "Pepperoni", Value: "pepperoni"}},
		{},
		{{Label: "⬅️ Back", Value: "prev"}, {Label: "Next ➡️", Value: "next"}},
	})

	require.Len(t, keyboard.InlineKeyboard, 2)
	assert.Equal(t, "Pepperoni", keyboard.InlineKeyboard[0][0].Text)
	require.NotNil(t, keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "pepperoni", *keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Len(t, keyboard.InlineKeyboard[1], 2)
}

func TestReplyMarkup(t *testing.T) {
	tests := []struct {
		name  string
		reply engine.Reply
		check func(t *testing.T, markup interface{})
	}{
		{
			name:  "plain text keeps keyboard",
			reply: engine.Reply{Text: "hi"},
			check: func(t *testing.T, markup interface{}) { assert.Nil(t, markup) },
		},
		{
			name:  "buttons",
			reply: engine.Reply{Buttons: [][]engine.Button{{{Label: "Cart", Value: "basket"}}}},
			check: func(t *testing.T, markup interface{}) {
				assert.IsType(t, tgbotapi.InlineKeyboardMarkup{}, markup)
			},
		},
		{
			name:  "location request",
			reply: engine.Reply{RequestLocation: true},
			check: func(t *testing.T, markup interface{}) {
				keyboard, ok := markup.(tgbotapi.ReplyKeyboardMarkup)
				require.True(t, ok)
				assert.True(t, keyboard.Keyboard[0][0].RequestLocation)
				assert.True(t, keyboard.OneTimeKeyboard)
			},
		},
		{
			name:  "remove keyboard",
			reply: engine.Reply{RemoveKeyboard: true},
			check: func(t *testing.T, markup interface{}) {
				remove, ok := markup.(tgbotapi.ReplyKeyboardRemove)
				require.True(t, ok)
				assert.True(t, remove.RemoveKeyboard)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, replyMarkup(tt.reply))
		})
	}
}

func TestBot_ReplaceMenu(t *testing.T) {
	bot := newTestBot(&recordingHandler{})

	assert.Equal(t, 0, bot.replaceMenu(1, 10))
	assert.Equal(t, 10, bot.replaceMenu(1, 11))
	assert.Equal(t, 0, bot.replaceMenu(2, 20), "menus are tracked per chat")
}

func TestBot_SendRejectsForeignKeys(t *testing.T) {
	bot := newTestBot(&recordingHandler{})
	ctx := context.Background()

	assert.Error(t, bot.Send(ctx, engine.Reply{UserKey: "vk_1", Text: "hi"}))
	assert.NoError(t, bot.Send(ctx, engine.Reply{UserKey: "tg_1", Text: "hi"}))
}

func TestBot_SendInvoiceNeedsProviderToken(t *testing.T) {
	bot := newTestBot(&recordingHandler{})
	err := bot.SendInvoice(context.Background(), engine.Invoice{UserKey: "tg_1", Token: "t"})
	assert.Error(t, err)
}

func TestInvoiceConfig(t *testing.T) {
	cfg := invoiceConfig(42, engine.Invoice{
		UserKey:     "tg_42",
		Title:       "Pizza order",
		Description: "Order 1",
		Token:       "token-1",
		Amount:      decimal.RequireFromString("1599.50"),
		Currency:    "RUB",
	}, "provider")

	assert.Equal(t, "token-1", cfg.Payload)
	assert.Equal(t, "RUB", cfg.Currency)
	require.Len(t, cfg.Prices, 1)
	assert.Equal(t, 159950, cfg.Prices[0].Amount)
	assert.NotNil(t, cfg.SuggestedTipAmounts)
}
