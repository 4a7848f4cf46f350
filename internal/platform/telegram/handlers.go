package telegram

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"pizzabot/internal/engine"
	"pizzabot/internal/models"
	"pizzabot/internal/platform"
)

func userKey(chatID int64) string {
	return platform.Key(platform.Telegram, strconv.FormatInt(chatID, 10))
}

// eventFromMessage converts a message into an engine event. Messages with
// neither text nor a location are not events.
func eventFromMessage(message *tgbotapi.Message) (engine.Event, bool) {
	ev := engine.Event{UserKey: userKey(message.Chat.ID)}
	if message.From != nil {
		ev.UserName = message.From.FirstName
	}

	switch {
	case message.Location != nil:
		ev.Kind = engine.KindLocation
		ev.Coordinates = &models.Coordinates{
			Lon: message.Location.Longitude,
			Lat: message.Location.Latitude,
		}
	case message.Text != "":
		ev.Kind = engine.KindText
		ev.Text = message.Text
	default:
		return engine.Event{}, false
	}
	return ev, true
}

// callbackChatID is the chat the clicked menu lives in
func callbackChatID(query *tgbotapi.CallbackQuery) int64 {
	if query.Message != nil && query.Message.Chat != nil {
		return query.Message.Chat.ID
	}
	return query.From.ID
}

// eventFromCallback converts an inline button click into an engine event
func eventFromCallback(query *tgbotapi.CallbackQuery) engine.Event {
	return engine.Event{
		UserKey:  userKey(callbackChatID(query)),
		Kind:     engine.KindCallback,
		Payload:  query.Data,
		UserName: query.From.FirstName,
	}
}

// handleMessage processes a single message
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.sendText(message.Chat.ID, platform.FailureText)
		}
	}()

	if message.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, message)
		return
	}

	ev, ok := eventFromMessage(message)
	if !ok {
		return
	}
	b.dispatch(ctx, message.Chat.ID, ev)
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	// Answer the callback query to remove loading state
	if b.api != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
			b.logger.Warn("Failed to answer callback query", zap.Error(err))
		}
	}

	b.dispatch(ctx, callbackChatID(query), eventFromCallback(query))
}

// handlePreCheckout accepts the payment only for the pending order it was issued for
func (b *Bot) handlePreCheckout(ctx context.Context, query *tgbotapi.PreCheckoutQuery) {
	key := userKey(query.From.ID)
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}

	if err := b.handler.VerifyPayment(ctx, key, query.InvoicePayload); err != nil {
		b.logger.Warn("Pre-checkout rejected",
			zap.Error(err),
			zap.String("user_key", key),
		)
		answer.OK = false
		answer.ErrorMessage = "This order is no longer awaiting payment. Please start a new one with /start."
	}

	if b.api == nil {
		return
	}
	if _, err := b.api.Request(answer); err != nil {
		b.logger.Error("Failed to answer pre-checkout query", zap.Error(err), zap.String("user_key", key))
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, message *tgbotapi.Message) {
	key := userKey(message.Chat.ID)
	payment := message.SuccessfulPayment

	b.logger.Info("Payment received",
		zap.String("user_key", key),
		zap.String("currency", payment.Currency),
		zap.Int("total_amount", payment.TotalAmount),
	)

	err := b.handler.ConfirmPayment(ctx, engine.PaymentConfirmation{
		UserKey:  key,
		Token:    payment.InvoicePayload,
		Approved: true,
	})
	if err != nil {
		b.logger.Error("Failed to confirm payment",
			zap.Error(err),
			zap.String("user_key", key),
			zap.String("charge_id", payment.TelegramPaymentChargeID),
		)
	}
}

// dispatch hands the event to the engine and tells the user when it failed
func (b *Bot) dispatch(ctx context.Context, chatID int64, ev engine.Event) {
	err := b.handler.HandleEvent(ctx, ev)
	if err == nil {
		return
	}

	b.logger.Warn("Event failed",
		zap.Error(err),
		zap.String("user_key", ev.UserKey),
		zap.String("event_kind", string(ev.Kind)),
	)
	if platform.ShouldApologize(err) {
		b.sendText(chatID, platform.FailureText)
	}
}
