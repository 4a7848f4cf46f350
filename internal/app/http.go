package app

import (
	"encoding/json"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzabot/internal/engine"
	"pizzabot/internal/models"
)

// secretHeader carries PAYMENT_CALLBACK_SECRET on the payment and order endpoints
const secretHeader = "X-Pizzabot-Secret"

const (
	defaultOrdersLimit = 20
	maxOrdersLimit     = 100
)

// orderView is the JSON shape of a journal entry
type orderView struct {
	ID            string          `json:"id"`
	UserKey       string          `json:"user_key"`
	Platform      string          `json:"platform"`
	Fulfillment   string          `json:"fulfillment"`
	StoreID       string          `json:"store_id,omitempty"`
	StoreName     string          `json:"store_name,omitempty"`
	DistanceKm    float64         `json:"distance_km"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	CreatedAt     time.Time       `json:"created_at"`
}

func newOrderView(o models.OrderRecord) orderView {
	return orderView{
		ID:            o.ID,
		UserKey:       o.UserKey,
		Platform:      o.Platform,
		Fulfillment:   o.Fulfillment,
		StoreID:       o.StoreID,
		StoreName:     o.StoreName,
		DistanceKm:    o.DistanceKm,
		DeliveryFee:   o.DeliveryFee,
		Total:         o.Total,
		Currency:      o.Currency,
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
	}
}

// initHTTPServer builds the fiber app for health checks, webhooks and payments
func (a *App) initHTTPServer() {
	app := fiber.New(fiber.Config{
		AppName:               "Pizza Bot",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})
	app.Use(recover.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		mode := "polling"
		if a.config.WebhookMode {
			mode = "webhook"
		}
		return c.JSON(fiber.Map{
			"service":   "Pizza Bot",
			"status":    "running",
			"mode":      mode,
			"platforms": a.router.Platforms(),
		})
	})

	// Telegram webhook endpoint (only used in webhook mode)
	if a.telegram != nil {
		app.Post("/telegram-webhook", a.handleTelegramWebhook)
	}

	if a.facebook != nil {
		a.facebook.RegisterRoutes(app)
	}

	app.Post("/payments/callback", a.handlePaymentCallback)
	app.Get("/api/orders", a.handleRecentOrders)

	a.server = app
}

func (a *App) handleTelegramWebhook(c *fiber.Ctx) error {
	var update tgbotapi.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		a.logger.Warn("Error decoding webhook update", zap.Error(err))
		return c.SendStatus(fiber.StatusBadRequest)
	}

	// Process update in background to respond quickly to Telegram
	go a.telegram.HandleWebhookUpdate(update)

	return c.SendStatus(fiber.StatusOK)
}

// authorized checks the shared secret; an unset secret closes the endpoint
func (a *App) authorized(c *fiber.Ctx) error {
	if a.config.PaymentCallbackSecret == "" {
		return fiber.NewError(fiber.StatusServiceUnavailable, "endpoint is not configured")
	}
	if c.Get(secretHeader) != a.config.PaymentCallbackSecret {
		return fiber.NewError(fiber.StatusForbidden, "invalid secret")
	}
	return nil
}

// handlePaymentCallback receives the payment provider's result for a pending order
func (a *App) handlePaymentCallback(c *fiber.Ctx) error {
	if err := a.authorized(c); err != nil {
		return err
	}

	var pc engine.PaymentConfirmation
	if err := json.Unmarshal(c.Body(), &pc); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment confirmation")
	}

	err := a.engine.ConfirmPayment(c.UserContext(), pc)
	switch {
	case errors.Is(err, engine.ErrPaymentTokenMismatch):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case err != nil:
		a.logger.Error("Payment callback failed", zap.Error(err), zap.String("user_key", pc.UserKey))
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleRecentOrders lists the newest journal entries
func (a *App) handleRecentOrders(c *fiber.Ctx) error {
	if err := a.authorized(c); err != nil {
		return err
	}

	limit := c.QueryInt("limit", defaultOrdersLimit)
	if limit <= 0 || limit > maxOrdersLimit {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 100")
	}

	orders, err := a.journal.RecentOrders(c.UserContext(), limit)
	if err != nil {
		a.logger.Error("Failed to list orders", zap.Error(err))
		return err
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, newOrderView(o))
	}
	return c.JSON(fiber.Map{"orders": views})
}
