// Package platform connects chat platforms to the conversation engine.
//
// Every user is addressed by a key of the form "<prefix>_<id>", for example
// "tg_42" or "vk_1001". The prefix selects the adapter that owns the user and
// the rest is the platform's own chat or user id.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"pizzabot/internal/engine"
	"pizzabot/internal/models"
)

// Platform prefixes
const (
	Telegram = "tg"
	VK       = "vk"
	Facebook = "fb"
)

// ErrUnknownPlatform is returned for a user key no adapter is registered for
var ErrUnknownPlatform = errors.New("unknown platform")

// FailureText is shown when an event could not be processed
const FailureText = "⚠️ Something went wrong, please try again in a minute."

// Handler is the engine side an adapter feeds events into
type Handler interface {
	HandleEvent(ctx context.Context, ev engine.Event) error
	VerifyPayment(ctx context.Context, userKey, token string) error
	ConfirmPayment(ctx context.Context, pc engine.PaymentConfirmation) error
}

// Sender delivers messages on one platform. Every adapter implements it.
type Sender interface {
	Send(ctx context.Context, reply engine.Reply) error
	SendLocation(ctx context.Context, userKey string, location models.Coordinates) error
	SendInvoice(ctx context.Context, invoice engine.Invoice) error
}

// Key builds a user key
func Key(prefix, id string) string {
	return prefix + "_" + id
}

// SplitKey returns the prefix and platform id of a user key
func SplitKey(userKey string) (string, string, error) {
	prefix, id, ok := strings.Cut(userKey, "_")
	if !ok || prefix == "" || id == "" {
		return "", "", fmt.Errorf("invalid user key %q", userKey)
	}
	return prefix, id, nil
}

// NumericID returns the numeric id of a key owned by the given platform
func NumericID(userKey, prefix string) (int64, error) {
	p, id, err := SplitKey(userKey)
	if err != nil {
		return 0, err
	}
	if p != prefix {
		return 0, fmt.Errorf("user key %q does not belong to %s", userKey, prefix)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s id in %q: %w", prefix, userKey, err)
	}
	return n, nil
}

// NewLimiter returns the outbound limiter shared by one adapter's sends.
// A non-positive rate disables limiting.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := max(int(perSecond), 1)
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Router sends each message through the adapter owning the user key
type Router struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{senders: make(map[string]Sender)}
}

// Register makes sender responsible for keys with the given prefix
func (r *Router) Register(prefix string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[prefix] = sender
}

// Platforms returns the registered prefixes
func (r *Router) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.senders))
	for prefix := range r.senders {
		out = append(out, prefix)
	}
	return out
}

func (r *Router) sender(userKey string) (Sender, error) {
	prefix, _, err := SplitKey(userKey)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[prefix]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, prefix)
	}
	return s, nil
}

func (r *Router) Send(ctx context.Context, reply engine.Reply) error {
	s, err := r.sender(reply.UserKey)
	if err != nil {
		return err
	}
	return s.Send(ctx, reply)
}

func (r *Router) SendLocation(ctx context.Context, userKey string, location models.Coordinates) error {
	s, err := r.sender(userKey)
	if err != nil {
		return err
	}
	return s.SendLocation(ctx, userKey, location)
}

func (r *Router) SendInvoice(ctx context.Context, invoice engine.Invoice) error {
	s, err := r.sender(invoice.UserKey)
	if err != nil {
		return err
	}
	return s.SendInvoice(ctx, invoice)
}

// ShouldApologize reports whether the user should be told the event failed.
// Ignored events and reset sessions produce no message.
func ShouldApologize(err error) bool {
	if err == nil {
		return false
	}
	var stateErr *engine.UnrecognizedStateError
	return !errors.As(err, &stateErr)
}

// PaymentLink builds the external payment page address for an invoice.
// The page posts the confirmation back with the same user key and token.
func PaymentLink(pageURL string, invoice engine.Invoice) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse payment page url: %w", err)
	}
	q := u.Query()
	q.Set("user_key", invoice.UserKey)
	q.Set("token", invoice.Token)
	q.Set("amount", invoice.Amount.StringFixed(2))
	q.Set("currency", invoice.Currency)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
