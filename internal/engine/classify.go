package engine

import (
	"strings"

	"pizzabot/internal/session"
)

// category is what an event means in the state it arrives in
type category int

const (
	catNone category = iota
	catAny
	catRestart
	catNext
	catPrev
	catBasket
	catBack
	catProduct
	catQuantity
	catRemove
	catCheckout
	catAddress
	catLocation
	catPickup
	catDelivery
	catCash
	catCard
)

// Commands carried by buttons
const (
	cmdNext     = "next"
	cmdPrev     = "prev"
	cmdBasket   = "basket"
	cmdBack     = "back"
	cmdCart     = "cart"
	cmdRemove   = "remove"
	cmdCheckout = "checkout"
	cmdPickup   = "pickup"
	cmdDelivery = "delivery"
	cmdCash     = "cash"
	cmdCard     = "card"
	cmdOnline   = "online"
)

var restartWords = map[string]bool{
	"/start": true,
	"start":  true,
	"старт":  true,
	"начать": true,
}

// command returns the text a button or message carries
func command(ev Event) string {
	if ev.Kind == KindCallback {
		return strings.TrimSpace(ev.Payload)
	}
	return strings.TrimSpace(ev.Text)
}

// classify maps an event to its category in state and returns the argument
// the handler needs, such as a product id or a quantity.
func classify(state session.State, ev Event) (category, string) {
	if ev.Kind == KindLocation {
		if state == session.StateAwaitingLocation {
			return catLocation, ""
		}
		return catNone, ""
	}

	cmd := command(ev)
	lower := strings.ToLower(cmd)
	if ev.Kind == KindText && restartWords[lower] {
		return catRestart, ""
	}

	switch state {
	case session.StateStart:
		return catAny, ""

	case session.StateBrowsing:
		switch lower {
		case cmdNext:
			return catNext, ""
		case cmdPrev:
			return catPrev, ""
		case cmdBasket:
			return catBasket, ""
		case "":
			return catNone, ""
		}
		return catProduct, cmd

	case session.StateProductDetail:
		switch lower {
		case cmdBack:
			return catBack, ""
		case cmdBasket:
			return catBasket, ""
		}
		if qty, ok := strings.CutPrefix(lower, cmdCart+" "); ok {
			return catQuantity, strings.TrimSpace(qty)
		}

	case session.StateCart:
		switch lower {
		case cmdBack:
			return catBack, ""
		case cmdCheckout:
			return catCheckout, ""
		}
		if ev.Kind == KindCallback {
			if line, ok := strings.CutPrefix(cmd, cmdRemove+" "); ok {
				return catRemove, strings.TrimSpace(line)
			}
		}

	case session.StateAwaitingLocation:
		if ev.Kind == KindText && cmd != "" {
			return catAddress, cmd
		}

	case session.StateChoosingFulfillment:
		switch lower {
		case cmdPickup:
			return catPickup, ""
		case cmdDelivery:
			return catDelivery, ""
		}

	case session.StateAwaitingPayment:
		switch lower {
		case cmdCash:
			return catCash, ""
		case cmdCard, cmdOnline:
			return catCard, ""
		}
	}
	return catNone, ""
}
