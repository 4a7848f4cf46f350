package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"pizzabot/internal/commerce"
	"pizzabot/internal/geo"
	"pizzabot/internal/models"
	"pizzabot/internal/session"
)

var allowedQuantities = map[int]bool{1: true, 3: true, 5: true}

// handleStart clears the conversation and shows the first menu page
func (e *Engine) handleStart(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	s.Reset()
	if err := e.renderMenu(ctx, s, 0); err != nil {
		return "", err
	}
	return session.StateBrowsing, nil
}

func (e *Engine) handleNext(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	return e.turnPage(ctx, s, s.Context.MenuPage+1)
}

func (e *Engine) handlePrev(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	return e.turnPage(ctx, s, s.Context.MenuPage-1)
}

// turnPage moves to page, clamped to the catalog; staying on the same page is a no-op
func (e *Engine) turnPage(ctx context.Context, s *session.Session, page int) (session.State, error) {
	products, err := e.commerce.ListProducts(ctx)
	if err != nil {
		return "", external("list products", err)
	}

	page = clampPage(page, pageCount(len(products), e.cfg.PageSize))
	if page == s.Context.MenuPage {
		return "", errIgnored
	}

	if err := e.showMenu(ctx, s, products, page); err != nil {
		return "", err
	}
	return session.StateBrowsing, nil
}

func (e *Engine) handleBasket(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	if err := e.renderCart(ctx, s); err != nil {
		return "", err
	}
	return session.StateCart, nil
}

// handleProduct shows the product the user picked from the menu
func (e *Engine) handleProduct(ctx context.Context, s *session.Session, ev Event, productID string) (session.State, error) {
	product, err := e.commerce.GetProduct(ctx, productID)
	if errors.Is(err, commerce.ErrNotFound) {
		return "", errIgnored
	}
	if err != nil {
		return "", external("get product", err)
	}

	if err := e.renderProduct(ctx, s, product); err != nil {
		return "", err
	}
	s.Context.SelectedProductID = product.ID
	return session.StateProductDetail, nil
}

// handleBackToMenu returns to the last viewed menu page
func (e *Engine) handleBackToMenu(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	if err := e.renderMenu(ctx, s, s.Context.MenuPage); err != nil {
		return "", err
	}
	s.Context.SelectedProductID = ""
	return session.StateBrowsing, nil
}

func (e *Engine) handleQuantity(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	quantity, err := strconv.Atoi(arg)
	if err != nil || !allowedQuantities[quantity] {
		return "", errIgnored
	}
	if s.Context.SelectedProductID == "" {
		return "", &MissingContextFieldError{Field: "selected_product_id", State: s.State}
	}

	if err := e.commerce.AddToCart(ctx, s.UserKey, s.Context.SelectedProductID, quantity); err != nil {
		return "", external("add to cart", err)
	}
	if err := e.sendText(ctx, s.UserKey, fmt.Sprintf("✅ Added %d pcs to your cart", quantity)); err != nil {
		return "", err
	}
	return session.StateProductDetail, nil
}

func (e *Engine) handleRemove(ctx context.Context, s *session.Session, ev Event, lineID string) (session.State, error) {
	err := e.commerce.RemoveCartItem(ctx, s.UserKey, lineID)
	if err != nil && !errors.Is(err, commerce.ErrNotFound) {
		return "", external("remove cart item", err)
	}
	if err := e.renderCart(ctx, s); err != nil {
		return "", err
	}
	return session.StateCart, nil
}

// handleCheckout asks for an address unless the cart is empty
func (e *Engine) handleCheckout(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	lines, err := e.commerce.CartItems(ctx, s.UserKey)
	if err != nil {
		return "", external("get cart items", err)
	}
	if len(lines) == 0 {
		if err := e.sendText(ctx, s.UserKey, "🛒 Your cart is empty, add a pizza first."); err != nil {
			return "", err
		}
		return session.StateCart, nil
	}

	err = e.send(ctx, Reply{
		UserKey:         s.UserKey,
		Text:            "📍 Please send your address as text or share your location.",
		RequestLocation: true,
	})
	if err != nil {
		return "", err
	}
	return session.StateAwaitingLocation, nil
}

func (e *Engine) handleAddress(ctx context.Context, s *session.Session, ev Event, address string) (session.State, error) {
	location, err := e.geocoder.Geocode(ctx, address)
	if errors.Is(err, geo.ErrAddressNotFound) {
		err := e.send(ctx, Reply{
			UserKey:         s.UserKey,
			Text:            "🤷 We could not find this address. Please try again or share your location.",
			RequestLocation: true,
		})
		if err != nil {
			return "", err
		}
		return session.StateAwaitingLocation, nil
	}
	if err != nil {
		return "", external("geocode address", err)
	}
	return e.chooseStore(ctx, s, location)
}

func (e *Engine) handleLocation(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	if ev.Coordinates == nil {
		return "", errIgnored
	}
	return e.chooseStore(ctx, s, *ev.Coordinates)
}

// chooseStore picks the nearest store, prices delivery and offers fulfillment options
func (e *Engine) chooseStore(ctx context.Context, s *session.Session, location models.Coordinates) (session.State, error) {
	stores, err := e.commerce.ListStores(ctx)
	if err != nil {
		return "", external("list stores", err)
	}
	store, km, err := geo.NearestStore(location, stores)
	if err != nil {
		return "", external("find nearest store", err)
	}
	tier := geo.TierFor(km, e.cfg.Policy)

	if err := e.send(ctx, Reply{UserKey: s.UserKey, Text: "👌 Got it!", RemoveKeyboard: true}); err != nil {
		return "", err
	}

	options := []Button{{Label: "🏃 Pickup", Value: cmdPickup}}
	if tier.DeliveryOffered {
		options = append(options, Button{Label: "🛵 Delivery", Value: cmdDelivery})
	}
	err = e.send(ctx, Reply{
		UserKey: s.UserKey,
		Text:    tierMessage(tier, store, km, e.cfg.Currency),
		Buttons: [][]Button{options},
	})
	if err != nil {
		return "", err
	}

	fee := tier.Fee
	s.Context.ResolvedLocation = &location
	s.Context.NearestStore = &session.StoreChoice{Store: store, DistanceKm: km}
	s.Context.DeliveryTier = tier.Name
	s.Context.DeliveryFee = &fee
	return session.StateChoosingFulfillment, nil
}

func tierMessage(tier geo.Tier, store models.Store, km float64, currency string) string {
	switch tier.Name {
	case geo.TierFree:
		return fmt.Sprintf("There is a pizzeria right next to you at %s. Delivery is free, or you can pick the order up yourself.", store.Address)
	case geo.TierLow:
		return fmt.Sprintf("The nearest pizzeria is only %.1f km away. Delivery costs %s %s. Delivery or pickup?", km, tier.Fee.StringFixed(0), currency)
	case geo.TierHigh:
		return fmt.Sprintf("Your pizzeria is %s, delivery costs %s %s. Delivery or pickup?", store.Name, tier.Fee.StringFixed(0), currency)
	default:
		return fmt.Sprintf("Sorry, we do not deliver that far. The nearest pizzeria is %.0f km away at %s, you can pick the order up there.", km, store.Address)
	}
}

// fulfillmentContext returns the store and location chosen in AwaitingLocation
func fulfillmentContext(s *session.Session) (*session.StoreChoice, models.Coordinates, error) {
	if s.Context.NearestStore == nil {
		return nil, models.Coordinates{}, &MissingContextFieldError{Field: "nearest_store", State: s.State}
	}
	if s.Context.ResolvedLocation == nil {
		return nil, models.Coordinates{}, &MissingContextFieldError{Field: "resolved_location", State: s.State}
	}
	return s.Context.NearestStore, *s.Context.ResolvedLocation, nil
}

func (e *Engine) handlePickup(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	store, location, err := fulfillmentContext(s)
	if err != nil {
		return "", err
	}

	cartTotal, err := e.commerce.CartTotal(ctx, s.UserKey)
	if err != nil {
		return "", external("get cart total", err)
	}

	err = e.send(ctx, Reply{
		UserKey:  s.UserKey,
		Text:     fmt.Sprintf("🏠 We are waiting for you at %s", store.Address),
		PhotoURL: geo.StaticMapURL(store.Location),
	})
	if err != nil {
		return "", err
	}
	total := cartTotal.Amount
	token, err := e.offerPayment(ctx, s, total)
	if err != nil {
		return "", err
	}

	// Writes to other parties come last
	orderID := e.newToken()
	if err := e.createCustomerEntry(ctx, s, ev, orderID, location); err != nil {
		return "", err
	}

	s.Context.Fulfillment = models.FulfillmentPickup
	s.Context.OrderID = orderID
	s.Context.PendingOrderTotal = &total
	s.Context.PaymentToken = token
	return session.StateAwaitingPayment, nil
}

func (e *Engine) handleDelivery(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	store, location, err := fulfillmentContext(s)
	if err != nil {
		return "", err
	}
	if s.Context.DeliveryTier == geo.TierOutOfRange {
		return "", errIgnored
	}
	if s.Context.DeliveryFee == nil {
		return "", &MissingContextFieldError{Field: "delivery_fee", State: s.State}
	}

	cartTotal, err := e.commerce.CartTotal(ctx, s.UserKey)
	if err != nil {
		return "", external("get cart total", err)
	}
	var lines []models.CartLine
	if store.DelivererKey != "" {
		if lines, err = e.commerce.CartItems(ctx, s.UserKey); err != nil {
			return "", external("get cart items", err)
		}
	}

	err = e.send(ctx, Reply{
		UserKey:  s.UserKey,
		Text:     "🛵 Your order will be delivered to the location on the map",
		PhotoURL: geo.StaticMapURL(location),
	})
	if err != nil {
		return "", err
	}
	total := cartTotal.Amount.Add(*s.Context.DeliveryFee)
	token, err := e.offerPayment(ctx, s, total)
	if err != nil {
		return "", err
	}

	orderID := e.newToken()
	if err := e.createCustomerEntry(ctx, s, ev, orderID, location); err != nil {
		return "", err
	}
	if err := e.notifyDeliverer(ctx, store, location, lines, cartTotal); err != nil {
		return "", err
	}

	s.Context.Fulfillment = models.FulfillmentDelivery
	s.Context.OrderID = orderID
	s.Context.PendingOrderTotal = &total
	s.Context.PaymentToken = token
	return session.StateAwaitingPayment, nil
}

func (e *Engine) createCustomerEntry(ctx context.Context, s *session.Session, ev Event, orderID string, location models.Coordinates) error {
	name := ev.UserName
	if name == "" {
		name = s.UserKey
	}
	err := e.commerce.CreateCustomerEntry(ctx, models.CustomerEntry{
		OrderRef:     orderID,
		CustomerName: name,
		Location:     location,
	})
	return external("create customer entry", err)
}

// notifyDeliverer sends the cart and the customer location to the store's deliverer
func (e *Engine) notifyDeliverer(ctx context.Context, store *session.StoreChoice, location models.Coordinates, lines []models.CartLine, total models.Money) error {
	if store.DelivererKey == "" {
		return nil
	}

	text := fmt.Sprintf("📦 New delivery from %s\n\n%s", store.Name, cartSummary(lines, total))
	if err := e.sendText(ctx, store.DelivererKey, text); err != nil {
		return err
	}
	return external("send location", e.messenger.SendLocation(ctx, store.DelivererKey, location))
}

// offerPayment shows the amount due and issues the payment token for it
func (e *Engine) offerPayment(ctx context.Context, s *session.Session, total decimal.Decimal) (string, error) {
	token := e.newToken()
	err := e.send(ctx, Reply{
		UserKey: s.UserKey,
		Text:    fmt.Sprintf("💳 Amount due: %s %s. How would you like to pay?", total.StringFixed(2), e.cfg.Currency),
		Buttons: [][]Button{{
			{Label: "💵 Cash", Value: cmdCash},
			{Label: "💳 Card", Value: cmdCard},
		}},
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (e *Engine) handleCash(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	if err := e.confirmOrder(ctx, s, models.PaymentCash); err != nil {
		return "", err
	}
	return "", errCommitted
}

// handleCard sends an invoice; the order is confirmed by the payment callback
func (e *Engine) handleCard(ctx context.Context, s *session.Session, ev Event, arg string) (session.State, error) {
	if s.Context.PendingOrderTotal == nil {
		return "", &MissingContextFieldError{Field: "pending_order_total", State: s.State}
	}
	if s.Context.PaymentToken == "" {
		return "", &MissingContextFieldError{Field: "payment_token", State: s.State}
	}

	err := e.messenger.SendInvoice(ctx, Invoice{
		UserKey:     s.UserKey,
		Title:       "Pizza order",
		Description: fmt.Sprintf("Order %s, %s", s.Context.OrderID, s.Context.Fulfillment),
		Token:       s.Context.PaymentToken,
		Amount:      *s.Context.PendingOrderTotal,
		Currency:    e.cfg.Currency,
	})
	if err != nil {
		return "", external("send invoice", err)
	}
	return session.StateAwaitingPayment, nil
}
