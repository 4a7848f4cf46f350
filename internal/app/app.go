package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pizzabot/internal/commerce"
	"pizzabot/internal/commerce/moltin"
	"pizzabot/internal/commerce/pg"
	commercestubs "pizzabot/internal/commerce/stubs"
	"pizzabot/internal/config"
	"pizzabot/internal/engine"
	"pizzabot/internal/geo"
	"pizzabot/internal/models"
	"pizzabot/internal/platform"
	"pizzabot/internal/platform/facebook"
	"pizzabot/internal/platform/telegram"
	"pizzabot/internal/platform/vk"
	"pizzabot/internal/storage"
	"pizzabot/internal/storage/ch"
	"pizzabot/internal/storage/redisstore"
	"pizzabot/internal/storage/stubs"
)

// App represents the application
type App struct {
	config *config.Config
	logger *zap.Logger

	sessions      storage.SessionStore
	journal       storage.OrderJournal
	catalog       *commerce.Cached
	closeCommerce func() error

	engine   *engine.Engine
	router   *platform.Router
	telegram *telegram.Bot
	vk       *vk.Bot
	facebook *facebook.Bot

	server *fiber.App
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting Pizza Bot...")

	if err := app.initStorage(); err != nil {
		return nil, err
	}

	if err := app.initCommerce(); err != nil {
		return nil, err
	}

	if err := app.initPlatforms(); err != nil {
		return nil, err
	}

	app.initEngine()
	app.initHTTPServer()

	return app, nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// initStorage connects the session store and the order journal
func (a *App) initStorage() error {
	if a.config.UseMockDB {
		a.logger.Info("Using mock database")
		db := stubs.NewMockDB()
		a.sessions = db
		a.journal = db
	} else {
		a.logger.Info("Connecting to Redis",
			zap.String("addr", a.config.RedisAddr),
			zap.Int("db", a.config.RedisDB),
			zap.Duration("session_ttl", a.config.SessionTTL),
		)
		sessions, err := redisstore.NewRedisStore(a.config.RedisAddr, a.config.RedisPassword, a.config.RedisDB, a.config.SessionTTL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.sessions = sessions

		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.Bool("tls", a.config.ClickHouseUseTLS),
		)
		journal, err := ch.NewClickHouseDB(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		a.journal = journal
	}

	ctx := context.Background()
	if err := a.journal.CheckSchema(ctx); err != nil {
		return fmt.Errorf("failed to verify order journal: %w", err)
	}
	a.logger.Info("Storage initialized successfully")
	return nil
}

// initCommerce selects the catalog and cart backend
func (a *App) initCommerce() error {
	var client commerce.Client
	a.closeCommerce = func() error { return nil }

	switch a.config.CommerceBackend {
	case config.CommerceMoltin:
		a.logger.Info("Using Moltin commerce backend")
		client = moltin.NewClient(moltin.Config{
			BaseURL:      a.config.MoltinBaseURL,
			ClientID:     a.config.MoltinClientID,
			ClientSecret: a.config.MoltinClientSecret,
		})

	case config.CommercePostgres:
		a.logger.Info("Using PostgreSQL commerce backend")
		store, err := pg.Open(a.config.PostgresDSN, a.config.Currency)
		if err != nil {
			return err
		}
		ctx := context.Background()
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return err
		}
		if err := a.seedIfEmpty(ctx, store); err != nil {
			_ = store.Close()
			return err
		}
		client = store
		a.closeCommerce = store.Close

	default:
		a.logger.Warn("Using in-memory commerce backend with the demo menu")
		client = commercestubs.NewMockCommerce(a.config.Currency,
			commercestubs.DemoCatalog(a.config.Currency), commercestubs.DemoStores())
	}

	a.catalog = commerce.NewCached(client, a.config.CatalogCacheTTL)
	return nil
}

// seedIfEmpty loads the demo menu into an empty database
func (a *App) seedIfEmpty(ctx context.Context, store *pg.Store) error {
	products, err := store.ListProducts(ctx)
	if err != nil {
		return err
	}
	if len(products) > 0 {
		return nil
	}

	a.logger.Info("Seeding empty catalog with the demo menu")
	return store.Seed(ctx, commercestubs.DemoCatalog(a.config.Currency), commercestubs.DemoStores(), demoImageURL)
}

func demoImageURL(p models.Product) string {
	if p.ImageID == "" {
		return ""
	}
	return "https://img.example.com/" + p.ImageID + ".jpg"
}

// initPlatforms creates an adapter for every configured platform. Handlers
// are attached once the engine exists.
func (a *App) initPlatforms() error {
	a.router = platform.NewRouter()

	if a.config.TelegramEnabled() {
		bot, err := telegram.NewBot(a.config.TelegramToken, nil, telegram.Options{
			PaymentProviderToken: a.config.PaymentProviderToken,
			SendRatePerSec:       a.config.SendRatePerSec,
		}, a.logger.With(zap.String("platform", platform.Telegram)))
		if err != nil {
			return fmt.Errorf("failed to create Telegram bot: %w", err)
		}
		a.telegram = bot
		a.router.Register(platform.Telegram, bot)
	}

	if a.config.VKEnabled() {
		bot, err := vk.NewBot(a.config.VKToken, a.config.VKGroupID, nil, vk.Options{
			PaymentPageURL: a.config.PaymentPageURL,
			SendRatePerSec: a.config.SendRatePerSec,
		}, a.logger.With(zap.String("platform", platform.VK)))
		if err != nil {
			return fmt.Errorf("failed to create VK bot: %w", err)
		}
		a.vk = bot
		a.router.Register(platform.VK, bot)
	}

	if a.config.FacebookEnabled() {
		bot := facebook.NewBot(a.config.FBPageToken, a.config.FBVerifyToken, nil, facebook.Options{
			PaymentPageURL: a.config.PaymentPageURL,
			SendRatePerSec: a.config.SendRatePerSec,
		}, a.logger.With(zap.String("platform", platform.Facebook)))
		a.facebook = bot
		a.router.Register(platform.Facebook, bot)
	}

	a.logger.Info("Platforms configured", zap.Strings("platforms", a.router.Platforms()))
	return nil
}

// initEngine builds the state machine and hands it to every adapter
func (a *App) initEngine() {
	if a.config.YandexGeocoderKey == "" {
		a.logger.Warn("YANDEX_GEOCODER_KEY is not set, typed addresses will fail to resolve")
	}

	cfg := engine.Config{
		PageSize: a.config.MenuPageSize,
		Policy: geo.Policy{
			LowFee:  a.config.DeliveryFeeLow,
			HighFee: a.config.DeliveryFeeHigh,
		},
		Currency:      a.config.Currency,
		ReminderDelay: a.config.ReminderDelay,
	}

	a.engine = engine.New(cfg, engine.Deps{
		Sessions:  a.sessions,
		Journal:   a.journal,
		Commerce:  a.catalog,
		Geocoder:  geo.NewYandexGeocoder(a.config.YandexGeocoderKey, ""),
		Messenger: a.router,
	}, a.logger)

	if a.telegram != nil {
		a.telegram.SetHandler(a.engine)
	}
	if a.vk != nil {
		a.vk.SetHandler(a.engine)
	}
	if a.facebook != nil {
		a.facebook.SetHandler(a.engine)
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.Listen(":" + a.config.Port); err != nil {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	if a.telegram != nil {
		if a.config.WebhookMode {
			// Webhook mode: configure webhook and wait for HTTP requests
			a.logger.Info("Starting Telegram bot in WEBHOOK mode", zap.String("webhook_url", a.config.WebhookURL))
			if err := a.telegram.StartWebhook(a.config.WebhookURL); err != nil {
				return fmt.Errorf("failed to setup webhook: %w", err)
			}
		} else {
			// Polling mode: actively poll Telegram servers
			go func() {
				a.logger.Info("Starting Telegram bot in POLLING mode")
				if err := a.telegram.Start(); err != nil {
					a.logger.Error("Telegram polling stopped", zap.Error(err))
				}
			}()
		}
	}

	if a.vk != nil {
		go func() {
			if err := a.vk.Start(); err != nil {
				a.logger.Error("VK long poll stopped", zap.Error(err))
			}
		}()
	}

	if a.facebook != nil {
		a.logger.Info("Facebook webhook listening on /facebook")
	}

	// Wait for interrupt signal
	<-sigChan

	a.logger.Info("Shutting down...")
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	if a.telegram != nil {
		a.telegram.Stop()
	}
	if a.vk != nil {
		a.vk.Stop()
	}

	// Shutdown HTTP server gracefully
	if err := a.server.ShutdownWithTimeout(5 * time.Second); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	a.engine.Close()
	a.catalog.Stop()

	var firstErr error
	if err := a.closeCommerce(); err != nil {
		a.logger.Error("Error closing commerce backend", zap.Error(err))
		firstErr = err
	}
	if err := a.sessions.Close(); err != nil {
		a.logger.Error("Error closing session store", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	// The mock DB serves both roles and is closed once
	if !a.config.UseMockDB {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("Error closing order journal", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return firstErr
}
