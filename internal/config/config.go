package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Commerce backends
const (
	CommerceMoltin   = "moltin"
	CommercePostgres = "postgres"
	CommerceMock     = "mock"
)

// Config holds the application configuration
type Config struct {
	// Telegram
	TelegramToken string
	WebhookMode   bool   // If true, Telegram pushes updates to /telegram-webhook
	WebhookURL    string // Public base URL (required if WebhookMode is true)

	// VK
	VKToken   string
	VKGroupID int

	// Facebook
	FBPageToken   string
	FBVerifyToken string

	Port string

	UseMockDB bool

	// Redis sessions
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	// ClickHouse order journal
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	// Commerce
	CommerceBackend    string
	MoltinClientID     string
	MoltinClientSecret string
	MoltinBaseURL      string
	PostgresDSN        string
	CatalogCacheTTL    time.Duration

	YandexGeocoderKey string

	// Conversation
	MenuPageSize    int
	DeliveryFeeLow  decimal.Decimal
	DeliveryFeeHigh decimal.Decimal
	Currency        string
	ReminderDelay   time.Duration

	// Payments
	PaymentProviderToken  string
	PaymentPageURL        string
	PaymentCallbackSecret string

	SendRatePerSec float64
	LogLevel       string
}

// TelegramEnabled reports whether the Telegram adapter is configured
func (c *Config) TelegramEnabled() bool { return c.TelegramToken != "" }

// VKEnabled reports whether the VK adapter is configured
func (c *Config) VKEnabled() bool { return c.VKToken != "" }

// FacebookEnabled reports whether the Facebook adapter is configured
func (c *Config) FacebookEnabled() bool { return c.FBPageToken != "" }

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}
	var err error

	// Platforms (at least one is required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	config.VKToken = os.Getenv("VK_TOKEN")
	config.FBPageToken = os.Getenv("FB_PAGE_TOKEN")
	if !config.TelegramEnabled() && !config.VKEnabled() && !config.FacebookEnabled() {
		return nil, fmt.Errorf("at least one of TELEGRAM_BOT_TOKEN, VK_TOKEN, FB_PAGE_TOKEN is required")
	}

	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = os.Getenv("WEBHOOK_URL")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}

	if config.VKEnabled() {
		groupStr := os.Getenv("VK_GROUP_ID")
		if groupStr == "" {
			return nil, fmt.Errorf("VK_GROUP_ID is required when VK_TOKEN is set")
		}
		config.VKGroupID, err = strconv.Atoi(groupStr)
		if err != nil {
			return nil, fmt.Errorf("invalid VK_GROUP_ID: %w", err)
		}
	}

	if config.FacebookEnabled() {
		config.FBVerifyToken = os.Getenv("FB_VERIFY_TOKEN")
		if config.FBVerifyToken == "" {
			return nil, fmt.Errorf("FB_VERIFY_TOKEN is required when FB_PAGE_TOKEN is set")
		}
	}

	config.Port = os.Getenv("PORT")
	if config.Port == "" {
		config.Port = "8080"
	}

	// Use Mock DB (default: false)
	config.UseMockDB = os.Getenv("USE_MOCK_DB") == "true"

	// Redis and ClickHouse are required if not using mock
	if !config.UseMockDB {
		config.RedisAddr = os.Getenv("REDIS_ADDR")
		if config.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when USE_MOCK_DB is not set")
		}
		config.RedisPassword = os.Getenv("REDIS_PASSWORD")
		if config.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
			return nil, err
		}
		if config.SessionTTL, err = durationEnv("SESSION_TTL", 0); err != nil {
			return nil, err
		}

		config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
		if config.ClickHouseHost == "" {
			return nil, fmt.Errorf("CLICKHOUSE_HOST is required when USE_MOCK_DB is not set")
		}
		if config.ClickHousePort, err = intEnv("CLICKHOUSE_PORT", 9000); err != nil {
			return nil, err
		}

		config.ClickHouseDatabase = os.Getenv("CLICKHOUSE_DATABASE")
		if config.ClickHouseDatabase == "" {
			config.ClickHouseDatabase = "default"
		}

		config.ClickHouseUser = os.Getenv("CLICKHOUSE_USER")
		if config.ClickHouseUser == "" {
			config.ClickHouseUser = "default"
		}

		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		// Password is optional, can be empty

		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	}

	// Commerce backend
	config.CommerceBackend = strings.ToLower(os.Getenv("COMMERCE_BACKEND"))
	if config.CommerceBackend == "" {
		config.CommerceBackend = CommerceMoltin
	}
	switch config.CommerceBackend {
	case CommerceMoltin:
		config.MoltinClientID = os.Getenv("MOLTIN_CLIENT_ID")
		if config.MoltinClientID == "" {
			return nil, fmt.Errorf("MOLTIN_CLIENT_ID is required for the moltin commerce backend")
		}
		config.MoltinClientSecret = os.Getenv("MOLTIN_CLIENT_SECRET")
		config.MoltinBaseURL = os.Getenv("MOLTIN_BASE_URL")
	case CommercePostgres:
		config.PostgresDSN = os.Getenv("POSTGRES_DSN")
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required for the postgres commerce backend")
		}
	case CommerceMock:
	default:
		return nil, fmt.Errorf("invalid COMMERCE_BACKEND: %s (expected moltin, postgres or mock)", config.CommerceBackend)
	}
	if config.CatalogCacheTTL, err = durationEnv("CATALOG_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	config.YandexGeocoderKey = os.Getenv("YANDEX_GEOCODER_KEY")

	// Conversation
	if config.MenuPageSize, err = intEnv("MENU_PAGE_SIZE", 7); err != nil {
		return nil, err
	}
	if config.MenuPageSize <= 0 {
		return nil, fmt.Errorf("MENU_PAGE_SIZE must be positive")
	}
	if config.DeliveryFeeLow, err = decimalEnv("DELIVERY_FEE_LOW", 100); err != nil {
		return nil, err
	}
	if config.DeliveryFeeHigh, err = decimalEnv("DELIVERY_FEE_HIGH", 300); err != nil {
		return nil, err
	}
	config.Currency = strings.ToUpper(os.Getenv("CURRENCY"))
	if config.Currency == "" {
		config.Currency = "RUB"
	}
	if config.ReminderDelay, err = durationEnv("REMINDER_DELAY", time.Hour); err != nil {
		return nil, err
	}

	// Payments are optional; without them card payment fails on that platform
	config.PaymentProviderToken = os.Getenv("PAYMENT_PROVIDER_TOKEN")
	config.PaymentPageURL = os.Getenv("PAYMENT_PAGE_URL")
	config.PaymentCallbackSecret = os.Getenv("PAYMENT_CALLBACK_SECRET")

	rateStr := os.Getenv("SEND_RATE_PER_SEC")
	if rateStr == "" {
		config.SendRatePerSec = 25
	} else {
		config.SendRatePerSec, err = strconv.ParseFloat(rateStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SEND_RATE_PER_SEC: %w", err)
		}
	}

	config.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))

	return config, nil
}

func intEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", name)
	}
	return v, nil
}

func decimalEnv(name string, def int64) (decimal.Decimal, error) {
	s := os.Getenv(name)
	if s == "" {
		return decimal.NewFromInt(def), nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: must not be negative", name)
	}
	return v, nil
}
