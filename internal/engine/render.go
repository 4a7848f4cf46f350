package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pizzabot/internal/models"
	"pizzabot/internal/session"
)

// pageCount is never below one so an empty catalog still has page 0
func pageCount(items, size int) int {
	if items == 0 {
		return 1
	}
	return (items + size - 1) / size
}

func clampPage(page, pages int) int {
	if page < 0 {
		return 0
	}
	if page > pages-1 {
		return pages - 1
	}
	return page
}

// showMenu renders one catalog page and records it in the context
func (e *Engine) showMenu(ctx context.Context, s *session.Session, products []models.ProductRef, page int) error {
	pages := pageCount(len(products), e.cfg.PageSize)
	page = clampPage(page, pages)

	start := page * e.cfg.PageSize
	end := min(start+e.cfg.PageSize, len(products))

	var buttons [][]Button
	for _, p := range products[start:end] {
		buttons = append(buttons, []Button{{Label: p.Name, Value: p.ID}})
	}

	var nav []Button
	if page > 0 {
		nav = append(nav, Button{Label: "⬅️ Back", Value: cmdPrev})
	}
	if page < pages-1 {
		nav = append(nav, Button{Label: "Next ➡️", Value: cmdNext})
	}
	if len(nav) > 0 {
		buttons = append(buttons, nav)
	}
	buttons = append(buttons, []Button{{Label: "🛒 Cart", Value: cmdBasket}})

	text := "🍕 Please choose a pizza:"
	if pages > 1 {
		text = fmt.Sprintf("🍕 Please choose a pizza (page %d of %d):", page+1, pages)
	}
	if len(products) == 0 {
		text = "The menu is empty right now, please come back later."
	}

	if err := e.send(ctx, Reply{UserKey: s.UserKey, Text: text, Buttons: buttons}); err != nil {
		return err
	}
	s.Context.MenuPage = page
	return nil
}

// renderMenu loads the catalog and shows the given page
func (e *Engine) renderMenu(ctx context.Context, s *session.Session, page int) error {
	products, err := e.commerce.ListProducts(ctx)
	if err != nil {
		return external("list products", err)
	}
	return e.showMenu(ctx, s, products, page)
}

// cartSummary formats cart lines and the total
func cartSummary(lines []models.CartLine, total models.Money) string {
	var sb strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&sb, "%s\n%d pcs for %s\n\n", line.Name, line.Quantity, line.LineTotal)
	}
	fmt.Fprintf(&sb, "Total: %s", total)
	return sb.String()
}

// renderCart shows the cart with a remove button per line
func (e *Engine) renderCart(ctx context.Context, s *session.Session) error {
	lines, err := e.commerce.CartItems(ctx, s.UserKey)
	if err != nil {
		return external("get cart items", err)
	}

	if len(lines) == 0 {
		return e.send(ctx, Reply{
			UserKey: s.UserKey,
			Text:    "🛒 Your cart is empty.",
			Buttons: [][]Button{{{Label: "📋 Menu", Value: cmdBack}}},
		})
	}

	total, err := e.commerce.CartTotal(ctx, s.UserKey)
	if err != nil {
		return external("get cart total", err)
	}

	var buttons [][]Button
	for _, line := range lines {
		buttons = append(buttons, []Button{{
			Label: "❌ Remove " + line.Name,
			Value: cmdRemove + " " + line.ID,
		}})
	}
	buttons = append(buttons, []Button{
		{Label: "📋 Menu", Value: cmdBack},
		{Label: "✅ Checkout", Value: cmdCheckout},
	})

	return e.send(ctx, Reply{
		UserKey: s.UserKey,
		Text:    "🛒 Your cart:\n\n" + cartSummary(lines, total),
		Buttons: buttons,
	})
}

// renderProduct shows product details, the quantity choice and what is already in the cart
func (e *Engine) renderProduct(ctx context.Context, s *session.Session, p *models.Product) error {
	lines, err := e.commerce.CartItems(ctx, s.UserKey)
	if err != nil {
		return external("get cart items", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\nPrice: %s\n\n%s", p.Name, p.Price, p.Description)
	for _, line := range lines {
		if line.ProductID == p.ID {
			fmt.Fprintf(&sb, "\n\nAlready in cart: %d pcs, %s in total", line.Quantity, line.LineTotal)
			break
		}
	}

	var photo string
	if p.ImageID != "" {
		photo, err = e.commerce.GetImageURL(ctx, p.ImageID)
		if err != nil {
			e.logger.Warn("Failed to get product image", zap.Error(err), zap.String("product_id", p.ID))
			photo = ""
		}
	}

	return e.send(ctx, Reply{
		UserKey:  s.UserKey,
		Text:     sb.String(),
		PhotoURL: photo,
		Buttons: [][]Button{
			{
				{Label: "1 pc", Value: cmdCart + " 1"},
				{Label: "3 pcs", Value: cmdCart + " 3"},
				{Label: "5 pcs", Value: cmdCart + " 5"},
			},
			{{Label: "🛒 Cart", Value: cmdBasket}},
			{{Label: "⬅️ Back to menu", Value: cmdBack}},
		},
	})
}

func (e *Engine) send(ctx context.Context, reply Reply) error {
	return external("send message", e.messenger.Send(ctx, reply))
}

func (e *Engine) sendText(ctx context.Context, userKey, text string) error {
	return e.send(ctx, Reply{UserKey: userKey, Text: text})
}
