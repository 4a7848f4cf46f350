package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"pizzabot/internal/platform"
)

// NewBot creates a new Telegram adapter
func NewBot(token string, handler platform.Handler, opts Options, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Telegram bot created", zap.String("bot_username", api.Self.UserName))

	return &Bot{
		api:           api,
		handler:       handler,
		providerToken: opts.PaymentProviderToken,
		limiter:       platform.NewLimiter(opts.SendRatePerSec),
		logger:        logger,
		menus:         make(map[int64]int),
	}, nil
}

// SetHandler replaces the event handler. The engine needs the adapter as its
// messenger, so the handler is set after both exist.
func (b *Bot) SetHandler(handler platform.Handler) {
	b.handler = handler
}
