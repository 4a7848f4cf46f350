package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/SevereCloud/vksdk/v2/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pizzabot/internal/engine"
	"pizzabot/internal/platform"
)

type recordingHandler struct {
	events []engine.Event
	err    error
}

func (h *recordingHandler) HandleEvent(ctx context.Context, ev engine.Event) error {
	h.events = append(h.events, ev)
	return h.err
}

func (h *recordingHandler) VerifyPayment(ctx context.Context, userKey, token string) error {
	return nil
}

func (h *recordingHandler) ConfirmPayment(ctx context.Context, pc engine.PaymentConfirmation) error {
	return nil
}

func newTestBot(handler platform.Handler) *Bot {
	return &Bot{
		handler: handler,
		limiter: platform.NewLimiter(0),
		logger:  zap.NewNop(),
	}
}

func TestEventFromMessage(t *testing.T) {
	geo := object.MessagesMessage{PeerID: 7}
	geo.Geo.Type = "point"
	geo.Geo.Coordinates.Latitude = 55.75
	geo.Geo.Coordinates.Longitude = 37.61

	tests := []struct {
		name    string
		msg     object.MessagesMessage
		want    engine.Event
		ignored bool
	}{
		{
			name: "plain text",
			msg:  object.MessagesMessage{PeerID: 7, Text: "Arbat 10"},
			want: engine.Event{UserKey: "vk_7", Kind: engine.KindText, Text: "Arbat 10"},
		},
		{
			name: "button press",
			msg:  object.MessagesMessage{PeerID: 7, Text: "Next ➡️", Payload: `{"command":"next"}`},
			want: engine.Event{UserKey: "vk_7", Kind: engine.KindCallback, Payload: "next"},
		},
		{
			name: "community start button",
			msg:  object.MessagesMessage{PeerID: 7, Text: "Начать", Payload: `{"command":"start"}`},
			want: engine.Event{UserKey: "vk_7", Kind: engine.KindText, Text: "start"},
		},
		{
			name: "foreign payload falls back to text",
			msg:  object.MessagesMessage{PeerID: 7, Text: "hello", Payload: `"hello"`},
			want: engine.Event{UserKey: "vk_7", Kind: engine.KindText, Text: "hello"},
		},
		{
			name:    "empty message",
			msg:     object.MessagesMessage{PeerID: 7},
			ignored: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := eventFromMessage(tt.msg)
			if tt.ignored {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, ev)
		})
	}

	t.Run("location", func(t *testing.T) {
		ev, ok := eventFromMessage(geo)
		require.True(t, ok)
		assert.Equal(t, engine.KindLocation, ev.Kind)
		require.NotNil(t, ev.Coordinates)
		assert.Equal(t, 37.61, ev.Coordinates.Lon)
		assert.Equal(t, 55.75, ev.Coordinates.Lat)
	})
}

func TestKeyboard(t *testing.T) {
	t.Run("buttons carry the command as payload", func(t *testing.T) {
		kb := keyboard(engine.Reply{Buttons: [][]engine.Button{
			{{Label: "Pepperoni", Value: "pepperoni"}},
			{{Label: "⬅️ Back", Value: "prev"}, {Label: "Next ➡️", Value: "next"}},
		}})
		require.NotNil(t, kb)
		require.Len(t, kb.Buttons, 2)
		assert.Len(t, kb.Buttons[1], 2)

		var p buttonPayload
		require.NoError(t, json.Unmarshal([]byte(kb.Buttons[0][0].Action.Payload), &p))
		assert.Equal(t, "pepperoni", p.Command)
	})

	t.Run("rows are capped and the last row is kept", func(t *testing.T) {
		var rows [][]engine.Button
		for i := 0; i < 14; i++ {
			rows = append(rows, []engine.Button{{Label: fmt.Sprintf("Line %d", i), Value: fmt.Sprintf("remove %d", i)}})
		}
		rows = append(rows, []engine.Button{{Label: "Checkout", Value: "checkout"}})

		kb := keyboard(engine.Reply{Buttons: rows})
		require.Len(t, kb.Buttons, maxRows)
		assert.Equal(t, "Checkout", kb.Buttons[maxRows-1][0].Action.Label)
	})

	t.Run("location request", func(t *testing.T) {
		kb := keyboard(engine.Reply{RequestLocation: true})
		require.NotNil(t, kb)
		assert.Equal(t, "location", kb.Buttons[0][0].Action.Type)
	})

	t.Run("remove keyboard is empty", func(t *testing.T) {
		kb := keyboard(engine.Reply{RemoveKeyboard: true})
		require.NotNil(t, kb)
		data, err := json.Marshal(kb)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"buttons":[]`)
	})

	t.Run("plain text keeps keyboard", func(t *testing.T) {
		assert.Nil(t, keyboard(engine.Reply{Text: "hi"}))
	})
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Pepperoni", label("Pepperoni"))

	long := label("❌ Remove Four cheese pizza with extra mozzarella and basil")
	assert.Len(t, []rune(long), maxLabelLen)
}

func TestBot_HandleMessage(t *testing.T) {
	handler := &recordingHandler{err: errors.New("backend down")}
	bot := newTestBot(handler)

	bot.handleMessage(context.Background(), object.MessagesMessage{PeerID: 9, Text: "/start"})
	bot.handleMessage(context.Background(), object.MessagesMessage{PeerID: 9})

	require.Len(t, handler.events, 1)
	assert.Equal(t, "vk_9", handler.events[0].UserKey)
}

func TestBot_SendInvoiceNeedsPaymentPage(t *testing.T) {
	bot := newTestBot(&recordingHandler{})
	ctx := context.Background()

	err := bot.SendInvoice(ctx, engine.Invoice{UserKey: "vk_1", Token: "t"})
	assert.Error(t, err)

	bot.paymentPageURL = "https://pay.example.com"
	assert.NoError(t, bot.SendInvoice(ctx, engine.Invoice{UserKey: "vk_1", Token: "t"}))
	assert.Error(t, bot.SendInvoice(ctx, engine.Invoice{UserKey: "tg_1", Token: "t"}))
}
