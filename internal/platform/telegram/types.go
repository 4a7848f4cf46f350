package telegram

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pizzabot/internal/platform"
)

// Bot represents the Telegram adapter
type Bot struct {
	api           *tgbotapi.BotAPI
	handler       platform.Handler
	providerToken string
	limiter       *rate.Limiter
	logger        *zap.Logger

	// menus holds the id of the last inline menu per chat so it can be
	// deleted when the next one is shown
	menus   map[int64]int
	menusMu sync.Mutex
}

// Options tune the adapter
type Options struct {
	// PaymentProviderToken is issued by BotFather for native invoices
	PaymentProviderToken string
	SendRatePerSec       float64
}
