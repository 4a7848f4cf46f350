// Package vk is the VK community messages adapter. It receives events through
// the Bots Long Poll API and replies with regular keyboards whose buttons carry
// the command as JSON payload.
package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/SevereCloud/vksdk/v2/api"
	"github.com/SevereCloud/vksdk/v2/events"
	longpoll "github.com/SevereCloud/vksdk/v2/longpoll-bot"
	"github.com/SevereCloud/vksdk/v2/object"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pizzabot/internal/engine"
	"pizzabot/internal/models"
	"pizzabot/internal/platform"
)

// Bot is the VK adapter
type Bot struct {
	vk             *api.VK
	lp             *longpoll.LongPoll
	handler        platform.Handler
	paymentPageURL string
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *zap.Logger
}

// Options tune the adapter
type Options struct {
	// PaymentPageURL is the external page card payments are made on
	PaymentPageURL string
	SendRatePerSec float64
}

// buttonPayload is the JSON VK returns when a keyboard button is pressed
type buttonPayload struct {
	Command string `json:"command"`
}

// NewBot connects to the community long poll server
func NewBot(token string, groupID int, handler platform.Handler, opts Options, logger *zap.Logger) (*Bot, error) {
	vk := api.NewVK(token)

	lp, err := longpoll.NewLongPoll(vk, groupID)
	if err != nil {
		logger.Error("Failed to create VK long poll", zap.Error(err), zap.Int("group_id", groupID))
		return nil, fmt.Errorf("failed to create vk long poll: %w", err)
	}

	logger.Info("VK bot created", zap.Int("group_id", groupID))

	return &Bot{
		vk:             vk,
		lp:             lp,
		handler:        handler,
		paymentPageURL: opts.PaymentPageURL,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		limiter:        platform.NewLimiter(opts.SendRatePerSec),
		logger:         logger,
	}, nil
}

// SetHandler replaces the event handler
func (b *Bot) SetHandler(handler platform.Handler) {
	b.handler = handler
}

// Start receives events until Stop is called
func (b *Bot) Start() error {
	b.lp.MessageNew(func(ctx context.Context, obj events.MessageNewObject) {
		b.handleMessage(ctx, obj.Message)
	})

	b.logger.Info("VK bot started. Waiting for events...")
	if err := b.lp.Run(); err != nil {
		return fmt.Errorf("vk long poll stopped: %w", err)
	}
	return nil
}

// Stop ends the long poll loop
func (b *Bot) Stop() {
	if b.lp != nil {
		b.lp.Shutdown()
	}
}

func userKey(peerID int) string {
	return platform.Key(platform.VK, strconv.Itoa(peerID))
}

// eventFromMessage converts an incoming message into an engine event.
// A pressed button arrives as a message whose payload holds the command.
func eventFromMessage(msg object.MessagesMessage) (engine.Event, bool) {
	ev := engine.Event{UserKey: userKey(msg.PeerID)}

	if msg.Geo.Type != "" {
		ev.Kind = engine.KindLocation
		ev.Coordinates = &models.Coordinates{
			Lon: msg.Geo.Coordinates.Longitude,
			Lat: msg.Geo.Coordinates.Latitude,
		}
		return ev, true
	}

	if msg.Payload != "" {
		var p buttonPayload
		if err := json.Unmarshal([]byte(msg.Payload), &p); err == nil && p.Command != "" {
			// The community "Start" button sends {"command":"start"}
			if p.Command == "start" {
				ev.Kind = engine.KindText
				ev.Text = p.Command
				return ev, true
			}
			ev.Kind = engine.KindCallback
			ev.Payload = p.Command
			return ev, true
		}
	}

	if strings.TrimSpace(msg.Text) == "" {
		return engine.Event{}, false
	}
	ev.Kind = engine.KindText
	ev.Text = msg.Text
	return ev, true
}

func (b *Bot) handleMessage(ctx context.Context, msg object.MessagesMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
		}
	}()

	ev, ok := eventFromMessage(msg)
	if !ok {
		return
	}

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
		if err := b.Send(ctx, engine.Reply{UserKey: ev.UserKey, Text: platform.FailureText}); err != nil {
			b.logger.Error("Failed to send failure notice", zap.Error(err), zap.String("user_key", ev.UserKey))
		}
	}
}
