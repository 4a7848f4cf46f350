// Package engine is the conversation state machine shared by every chat
// platform.
//
// Each inbound event is handled under a per-user lock: the session is loaded,
// the event is classified for the session's state, the matching handler runs
// against a copy of the session and the copy is written back only if the
// handler succeeded. Events a state does not handle change nothing and send
// nothing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzabot/internal/commerce"
	"pizzabot/internal/geo"
	"pizzabot/internal/session"
	"pizzabot/internal/storage"
)

// Config holds conversation settings
type Config struct {
	PageSize      int
	Policy        geo.Policy
	Currency      string
	ReminderDelay time.Duration
}

// DefaultConfig returns the settings the bot ships with
func DefaultConfig() Config {
	return Config{
		PageSize: 7,
		Policy: geo.Policy{
			LowFee:  decimal.NewFromInt(100),
			HighFee: decimal.NewFromInt(300),
		},
		Currency:      "RUB",
		ReminderDelay: time.Hour,
	}
}

// Deps are the collaborators of the engine. Journal and Scheduler are optional.
type Deps struct {
	Sessions  storage.SessionStore
	Journal   storage.OrderJournal
	Commerce  commerce.Client
	Geocoder  geo.Geocoder
	Messenger Messenger
	Scheduler Scheduler
}

type handlerFunc func(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error)

// Engine dispatches inbound events to state handlers
type Engine struct {
	sessions  storage.SessionStore
	journal   storage.OrderJournal
	commerce  commerce.Client
	geocoder  geo.Geocoder
	messenger Messenger
	scheduler Scheduler
	logger    *zap.Logger
	cfg       Config

	locks    *keyedMutex
	table    map[session.State]map[category]handlerFunc
	newToken func() string
	now      func() time.Time
}

// New creates an engine
func New(cfg Config, deps Deps, logger *zap.Logger) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewTimerScheduler()
	}

	e := &Engine{
		sessions:  deps.Sessions,
		journal:   deps.Journal,
		commerce:  deps.Commerce,
		geocoder:  deps.Geocoder,
		messenger: deps.Messenger,
		scheduler: deps.Scheduler,
		logger:    logger,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		newToken:  func() string { return uuid.NewString() },
		now:       time.Now,
	}
	e.table = e.buildTable()
	return e
}

// buildTable maps every (state, event category) pair to its handler.
// Pairs that are absent are no-ops.
func (e *Engine) buildTable() map[session.State]map[category]handlerFunc {
	table := map[session.State]map[category]handlerFunc{
		session.StateStart: {
			catAny: e.handleStart,
		},
		session.StateBrowsing: {
			catNext:    e.handleNext,
			catPrev:    e.handlePrev,
			catBasket:  e.handleBasket,
			catProduct: e.handleProduct,
		},
		session.StateProductDetail: {
			catBack:     e.handleBackToMenu,
			catBasket:   e.handleBasket,
			catQuantity: e.handleQuantity,
		},
		session.StateCart: {
			catBack:     e.handleBackToMenu,
			catRemove:   e.handleRemove,
			catCheckout: e.handleCheckout,
		},
		session.StateAwaitingLocation: {
			catAddress:  e.handleAddress,
			catLocation: e.handleLocation,
		},
		session.StateChoosingFulfillment: {
			catPickup:   e.handlePickup,
			catDelivery: e.handleDelivery,
		},
		session.StateAwaitingPayment: {
			catCash: e.handleCash,
			catCard: e.handleCard,
		},
	}

	// Restart works from anywhere
	for _, handlers := range table {
		handlers[catRestart] = e.handleStart
	}
	return table
}

// HandleEvent processes one inbound event for its user
func (e *Engine) HandleEvent(ctx context.Context, ev Event) error {
	if ev.UserKey == "" {
		return errors.New("event without user key")
	}

	unlock := e.locks.Lock(ev.UserKey)
	defer unlock()

	s, err := e.loadSession(ctx, ev.UserKey)
	if errors.Is(err, session.ErrCorrupted) {
		s, err = session.New(ev.UserKey), &UnrecognizedStateError{State: "<corrupted>"}
	} else if err == nil && !s.State.Valid() {
		err = &UnrecognizedStateError{State: s.State}
	}
	var stateErr *UnrecognizedStateError
	if errors.As(err, &stateErr) {
		e.logger.Error("Resetting session with unrecognized state",
			zap.Error(stateErr),
			zap.String("user_key", ev.UserKey),
			zap.String("event_kind", string(ev.Kind)),
		)
		s.Reset()
		if err := e.sessions.Put(ctx, s); err != nil {
			e.logger.Error("Failed to persist reset session", zap.Error(err), zap.String("user_key", ev.UserKey))
		}
		return stateErr
	}
	if err != nil {
		e.logger.Error("Failed to load session",
			zap.Error(err),
			zap.String("user_key", ev.UserKey),
			zap.String("event_kind", string(ev.Kind)),
		)
		return err
	}

	cat, arg := classify(s.State, ev)
	handler, ok := e.table[s.State][cat]
	if !ok {
		e.logger.Debug("Event not handled in state",
			zap.String("user_key", ev.UserKey),
			zap.String("state", string(s.State)),
			zap.String("event_kind", string(ev.Kind)),
			zap.String("payload", command(ev)),
		)
		return nil
	}

	working := s.Clone()
	next, err := e.run(ctx, handler, working, ev, arg)
	if errors.Is(err, errIgnored) || errors.Is(err, errCommitted) {
		return nil
	}
	if err != nil {
		e.logger.Error("Transition aborted",
			zap.Error(err),
			zap.String("user_key", ev.UserKey),
			zap.String("state", string(s.State)),
			zap.String("event_kind", string(ev.Kind)),
			zap.String("payload", command(ev)),
		)
		return err
	}

	working.State = next
	if err := e.sessions.Put(ctx, working); err != nil {
		e.logger.Error("Failed to persist session",
			zap.Error(err),
			zap.String("user_key", ev.UserKey),
			zap.String("state", string(next)),
		)
		return fmt.Errorf("failed to persist session: %w", err)
	}

	e.logger.Debug("Transition",
		zap.String("user_key", ev.UserKey),
		zap.String("from", string(s.State)),
		zap.String("to", string(next)),
	)
	return nil
}

// Close stops pending reminders
func (e *Engine) Close() {
	e.scheduler.Stop()
}

// run executes a handler, turning a panic into an error
func (e *Engine) run(ctx context.Context, h handlerFunc, s *session.Session, ev Event, arg string) (next session.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, s, ev, arg)
}

func (e *Engine) loadSession(ctx context.Context, userKey string) (*session.Session, error) {
	s, err := e.sessions.Get(ctx, userKey)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return session.New(userKey), nil
	}
	if errors.Is(err, session.ErrCorrupted) {
		return nil, err
	}
	if err != nil {
		return nil, external("load session", err)
	}
	return s, nil
}

// platformOf returns the prefix of a user key such as "tg" in "tg_42"
func platformOf(userKey string) string {
	prefix, _, ok := strings.Cut(userKey, "_")
	if !ok {
		return ""
	}
	return prefix
}
