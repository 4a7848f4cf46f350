package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzabot/internal/models"
	"pizzabot/internal/session"
	"pizzabot/internal/storage"
)

const reminderText = "Enjoy your meal! 🍕\n\nIf your order did not arrive within an hour, the next pizza is on us."

// VerifyPayment checks a pre-checkout request against the user's pending order
func (e *Engine) VerifyPayment(ctx context.Context, userKey, token string) error {
	unlock := e.locks.Lock(userKey)
	defer unlock()

	s, err := e.sessions.Get(ctx, userKey)
	if err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		return external("load session", err)
	}
	if err != nil || !tokenMatches(s, token) {
		e.logger.Warn("Payment verification rejected", zap.String("user_key", userKey))
		return ErrPaymentTokenMismatch
	}
	return nil
}

// ConfirmPayment handles the provider callback. A token that does not match
// the one issued for the pending order never confirms anything.
func (e *Engine) ConfirmPayment(ctx context.Context, pc PaymentConfirmation) error {
	if pc.UserKey == "" {
		return ErrPaymentTokenMismatch
	}

	unlock := e.locks.Lock(pc.UserKey)
	defer unlock()

	s, err := e.sessions.Get(ctx, pc.UserKey)
	if err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		e.logger.Error("Failed to load session for payment", zap.Error(err), zap.String("user_key", pc.UserKey))
		return external("load session", err)
	}
	if err != nil || !tokenMatches(s, pc.Token) {
		e.logger.Warn("Payment confirmation rejected",
			zap.Error(ErrPaymentTokenMismatch),
			zap.String("user_key", pc.UserKey),
			zap.Bool("approved", pc.Approved),
		)
		return ErrPaymentTokenMismatch
	}

	if !pc.Approved {
		e.logger.Info("Payment declined", zap.String("user_key", pc.UserKey))
		return e.sendText(ctx, pc.UserKey, "❌ The payment did not go through. You can try again or pay in cash.")
	}

	if err := e.confirmOrder(ctx, s.Clone(), models.PaymentCard); err != nil {
		e.logger.Error("Failed to confirm paid order",
			zap.Error(err),
			zap.String("user_key", pc.UserKey),
			zap.String("state", string(s.State)),
		)
		return err
	}
	return nil
}

func tokenMatches(s *session.Session, token string) bool {
	return s.State == session.StateAwaitingPayment &&
		s.Context.PaymentToken != "" &&
		s.Context.PaymentToken == token
}

// confirmOrder resets the conversation and stores it before anything else
// happens, so the payment token is spent exactly once. The journal entry,
// cart removal, thank-you and reminder follow the successful write.
func (e *Engine) confirmOrder(ctx context.Context, s *session.Session, method string) error {
	if s.Context.PendingOrderTotal == nil {
		return &MissingContextFieldError{Field: "pending_order_total", State: s.State}
	}

	order := e.orderRecord(s, method)
	s.Reset()
	if err := e.sessions.Put(ctx, s); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	if err := e.sendText(ctx, s.UserKey, "🎉 Thank you for your order! We have started cooking."); err != nil {
		e.logger.Warn("Failed to thank for order", zap.Error(err), zap.String("user_key", s.UserKey))
	}

	e.recordOrder(ctx, order)

	if err := e.commerce.DeleteCart(ctx, s.UserKey); err != nil {
		e.logger.Warn("Failed to delete cart", zap.Error(err), zap.String("user_key", s.UserKey))
	}

	e.scheduleReminder(s.UserKey)
	return nil
}

func (e *Engine) orderRecord(s *session.Session, method string) models.OrderRecord {
	order := models.OrderRecord{
		ID:            s.Context.OrderID,
		UserKey:       s.UserKey,
		Platform:      platformOf(s.UserKey),
		Fulfillment:   s.Context.Fulfillment,
		Total:         *s.Context.PendingOrderTotal,
		DeliveryFee:   decimal.Zero,
		Currency:      e.cfg.Currency,
		PaymentMethod: method,
		CreatedAt:     e.now().UTC(),
	}
	if order.ID == "" {
		order.ID = e.newToken()
	}
	if store := s.Context.NearestStore; store != nil {
		order.StoreID = store.ID
		order.StoreName = store.Name
		order.DistanceKm = store.DistanceKm
	}
	if s.Context.Fulfillment == models.FulfillmentDelivery && s.Context.DeliveryFee != nil {
		order.DeliveryFee = *s.Context.DeliveryFee
	}
	return order
}

// recordOrder writes the journal entry; failures are logged only
func (e *Engine) recordOrder(ctx context.Context, order models.OrderRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordOrder(ctx, order); err != nil {
		e.logger.Error("Failed to record order",
			zap.Error(err),
			zap.String("user_key", order.UserKey),
			zap.String("order_id", order.ID),
		)
	}
}

// scheduleReminder sends the reminder later, whatever the order state is by then
func (e *Engine) scheduleReminder(userKey string) {
	if e.cfg.ReminderDelay <= 0 {
		return
	}
	e.scheduler.After(e.cfg.ReminderDelay, func() {
		if err := e.sendText(context.Background(), userKey, reminderText); err != nil {
			e.logger.Warn("Failed to send reminder", zap.Error(err), zap.String("user_key", userKey))
		}
	})
}
