// Package facebook is the Messenger adapter. Facebook pushes events to a
// webhook; replies go through the Graph API Send endpoint.
package facebook

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pizzabot/internal/engine"
	"pizzabot/internal/models"
	"pizzabot/internal/platform"
)

// DefaultGraphURL is the Graph API version the adapter speaks
const DefaultGraphURL = "https://graph.facebook.com/v17.0"

// getStartedPayload is the postback of the "Get Started" button
const getStartedPayload = "GET_STARTED"

// Bot is the Facebook Messenger adapter
type Bot struct {
	pageToken      string
	verifyToken    string
	graphURL       string
	paymentPageURL string
	httpClient     *http.Client
	handler        platform.Handler
	limiter        *rate.Limiter
	logger         *zap.Logger
}

// Options tune the adapter
type Options struct {
	GraphURL       string
	PaymentPageURL string
	SendRatePerSec float64
}

// NewBot creates the adapter for one page
func NewBot(pageToken, verifyToken string, handler platform.Handler, opts Options, logger *zap.Logger) *Bot {
	graphURL := opts.GraphURL
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}
	return &Bot{
		pageToken:      pageToken,
		verifyToken:    verifyToken,
		graphURL:       strings.TrimRight(graphURL, "/"),
		paymentPageURL: opts.PaymentPageURL,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		handler:        handler,
		limiter:        platform.NewLimiter(opts.SendRatePerSec),
		logger:         logger,
	}
}

// SetHandler replaces the event handler
func (b *Bot) SetHandler(handler platform.Handler) {
	b.handler = handler
}

// webhookPayload is the body Facebook posts to the webhook
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string      `json:"id"`
		Messaging []messaging `json:"messaging"`
	} `json:"entry"`
}

type messaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *struct {
		IsEcho     bool   `json:"is_echo"`
		Text       string `json:"text"`
		QuickReply *struct {
			Payload string `json:"payload"`
		} `json:"quick_reply"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				Coordinates *struct {
					Lat  float64 `json:"lat"`
					Long float64 `json:"long"`
				} `json:"coordinates"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`
	Postback *struct {
		Title   string `json:"title"`
		Payload string `json:"payload"`
	} `json:"postback"`
}

// RegisterRoutes mounts the webhook verification and event endpoints
func (b *Bot) RegisterRoutes(router fiber.Router) {
	router.Get("/facebook", b.handleVerify)
	router.Post("/facebook", b.handleWebhook)
}

// handleVerify answers the subscription handshake
func (b *Bot) handleVerify(c *fiber.Ctx) error {
	if c.Query("hub.mode") != "subscribe" || c.Query("hub.challenge") == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing subscription parameters")
	}
	if c.Query("hub.verify_token") != b.verifyToken {
		b.logger.Warn("Facebook webhook verification failed")
		return c.Status(fiber.StatusForbidden).SendString("Verification token mismatch")
	}
	b.logger.Info("Facebook webhook verified")
	return c.SendString(c.Query("hub.challenge"))
}

// handleWebhook acknowledges the delivery at once and processes it in the background
func (b *Bot) handleWebhook(c *fiber.Ctx) error {
	var payload webhookPayload
	if err := c.BodyParser(&payload); err != nil {
		b.logger.Warn("Failed to decode Facebook webhook", zap.Error(err))
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if payload.Object != "page" {
		return c.SendStatus(fiber.StatusNotFound)
	}

	var evs []engine.Event
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			if ev, ok := eventFromMessaging(m); ok {
				evs = append(evs, ev)
			}
		}
	}
	if len(evs) > 0 {
		go b.process(evs)
	}
	return c.SendString("ok")
}

func (b *Bot) process(evs []engine.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in Facebook webhook", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()
	for _, ev := range evs {
		err := b.handler.HandleEvent(ctx, ev)
		if err == nil {
			continue
		}
		b.logger.Warn("Event failed",
			zap.Error(err),
			zap.String("user_key", ev.UserKey),
			zap.String("event_kind", string(ev.Kind)),
		)
		if platform.ShouldApologize(err) {
			if err := b.Send(ctx, engine.Reply{UserKey: ev.UserKey, Text: platform.FailureText}); err != nil {
				b.logger.Error("Failed to send failure notice", zap.Error(err), zap.String("user_key", ev.UserKey))
			}
		}
	}
}

// eventFromMessaging converts one messaging item into an engine event.
// Quick replies and postbacks are button presses.
func eventFromMessaging(m messaging) (engine.Event, bool) {
	if m.Sender.ID == "" {
		return engine.Event{}, false
	}
	ev := engine.Event{UserKey: platform.Key(platform.Facebook, m.Sender.ID)}

	switch {
	case m.Postback != nil:
		if m.Postback.Payload == getStartedPayload {
			ev.Kind = engine.KindText
			ev.Text = "start"
			return ev, true
		}
		ev.Kind = engine.KindCallback
		ev.Payload = m.Postback.Payload
		return ev, true

	case m.Message == nil || m.Message.IsEcho:
		return engine.Event{}, false

	case m.Message.QuickReply != nil:
		ev.Kind = engine.KindCallback
		ev.Payload = m.Message.QuickReply.Payload
		return ev, true
	}

	for _, a := range m.Message.Attachments {
		if a.Type == "location" && a.Payload.Coordinates != nil {
			ev.Kind = engine.KindLocation
			ev.Coordinates = &models.Coordinates{
				Lon: a.Payload.Coordinates.Long,
				Lat: a.Payload.Coordinates.Lat,
			}
			return ev, true
		}
	}

	if strings.TrimSpace(m.Message.Text) == "" {
		return engine.Event{}, false
	}
	ev.Kind = engine.KindText
	ev.Text = m.Message.Text
	return ev, true
}
