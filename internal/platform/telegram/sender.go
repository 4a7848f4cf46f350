package telegram

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"pizzabot/internal/engine"
	"pizzabot/internal/models"
	"pizzabot/internal/platform"
)

// Telegram rejects photo captions longer than this
const captionLimit = 1024

// inlineKeyboard builds an inline keyboard, one keyboard row per button row
func inlineKeyboard(buttons [][]engine.Button) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var current []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			current = append(current, tgbotapi.NewInlineKeyboardButtonData(button.Label, button.Value))
		}
		if len(current) > 0 {
			rows = append(rows, current)
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// replyMarkup picks the keyboard for a reply; nil keeps the current one
func replyMarkup(reply engine.Reply) interface{} {
	switch {
	case len(reply.Buttons) > 0:
		return inlineKeyboard(reply.Buttons)
	case reply.RequestLocation:
		keyboard := tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonLocation("📍 Send my location")),
		)
		keyboard.OneTimeKeyboard = true
		keyboard.ResizeKeyboard = true
		return keyboard
	case reply.RemoveKeyboard:
		return tgbotapi.NewRemoveKeyboard(true)
	}
	return nil
}

// Send delivers a reply. A reply with buttons replaces the previous menu.
func (b *Bot) Send(ctx context.Context, reply engine.Reply) error {
	chatID, err := platform.NumericID(reply.UserKey, platform.Telegram)
	if err != nil {
		return err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}

	markup := replyMarkup(reply)

	var sent tgbotapi.Message
	if reply.PhotoURL != "" && utf8.RuneCountInString(reply.Text) <= captionLimit {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(reply.PhotoURL))
		photo.Caption = reply.Text
		photo.ReplyMarkup = markup
		sent, err = b.send(photo)
	} else {
		if reply.PhotoURL != "" {
			if _, err := b.send(tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(reply.PhotoURL))); err != nil {
				return fmt.Errorf("failed to send photo: %w", err)
			}
		}
		msg := tgbotapi.NewMessage(chatID, reply.Text)
		msg.ReplyMarkup = markup
		sent, err = b.send(msg)
	}
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	if len(reply.Buttons) > 0 && sent.MessageID != 0 {
		if previous := b.replaceMenu(chatID, sent.MessageID); previous != 0 {
			b.deleteMessage(chatID, previous)
		}
	}
	return nil
}

// SendLocation shares a map point with the chat
func (b *Bot) SendLocation(ctx context.Context, userKey string, location models.Coordinates) error {
	chatID, err := platform.NumericID(userKey, platform.Telegram)
	if err != nil {
		return err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}

	if _, err := b.send(tgbotapi.NewLocation(chatID, location.Lat, location.Lon)); err != nil {
		return fmt.Errorf("failed to send location: %w", err)
	}
	return nil
}

// SendInvoice sends a native invoice whose payload is the payment token
func (b *Bot) SendInvoice(ctx context.Context, invoice engine.Invoice) error {
	chatID, err := platform.NumericID(invoice.UserKey, platform.Telegram)
	if err != nil {
		return err
	}
	if b.providerToken == "" {
		return errors.New("payment provider token is not configured")
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}

	cfg := invoiceConfig(chatID, invoice, b.providerToken)
	if _, err := b.send(cfg); err != nil {
		return fmt.Errorf("failed to send invoice: %w", err)
	}
	return nil
}

// invoiceConfig converts the amount to minor units as Telegram expects
func invoiceConfig(chatID int64, invoice engine.Invoice, providerToken string) tgbotapi.InvoiceConfig {
	prices := []tgbotapi.LabeledPrice{{
		Label:  invoice.Title,
		Amount: int(invoice.Amount.Shift(2).Round(0).IntPart()),
	}}
	cfg := tgbotapi.NewInvoice(chatID, invoice.Title, invoice.Description, invoice.Token,
		providerToken, "", invoice.Currency, prices)
	cfg.SuggestedTipAmounts = []int{}
	return cfg
}

// replaceMenu remembers the newest menu of a chat and returns the one it replaces
func (b *Bot) replaceMenu(chatID int64, messageID int) int {
	b.menusMu.Lock()
	defer b.menusMu.Unlock()
	previous := b.menus[chatID]
	b.menus[chatID] = messageID
	return previous
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if b.api == nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.logger.Debug("Failed to delete previous menu",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
		)
	}
}

// send is a no-op without an API so handlers can be tested offline
func (b *Bot) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.api == nil {
		return tgbotapi.Message{}, nil
	}
	return b.api.Send(c)
}

func (b *Bot) sendText(chatID int64, text string) {
	if _, err := b.send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error("Failed to send message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}
