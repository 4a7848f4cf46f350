package vk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/SevereCloud/vksdk/v2/api/params"
	"github.com/SevereCloud/vksdk/v2/object"
	"go.uber.org/zap"

	"pizzabot/internal/engine"
	"pizzabot/internal/models"
	"pizzabot/internal/platform"
)

// VK keyboard limits
const (
	maxRows     = 10
	maxLabelLen = 40
)

const buttonColor = "secondary"

func label(s string) string {
	r := []rune(s)
	if len(r) <= maxLabelLen {
		return s
	}
	return string(r[:maxLabelLen-1]) + "…"
}

// fitRows keeps the keyboard within the row limit. The last row carries
// navigation, so it survives and the rows before it are cut.
func fitRows(rows [][]engine.Button) [][]engine.Button {
	if len(rows) <= maxRows {
		return rows
	}
	out := append([][]engine.Button{}, rows[:maxRows-1]...)
	return append(out, rows[len(rows)-1])
}

// keyboard returns the keyboard for a reply or nil to leave the current one
func keyboard(reply engine.Reply) *object.MessagesKeyboard {
	switch {
	case len(reply.Buttons) > 0:
		kb := object.NewMessagesKeyboard(false)
		for _, row := range fitRows(reply.Buttons) {
			if len(row) == 0 {
				continue
			}
			kb.AddRow()
			for _, button := range row {
				kb.AddTextButton(label(button.Label), buttonPayload{Command: button.Value}, buttonColor)
			}
		}
		return kb
	case reply.RequestLocation:
		kb := object.NewMessagesKeyboard(true)
		kb.AddRow()
		kb.AddLocationButton(buttonPayload{Command: "location"})
		return kb
	case reply.RemoveKeyboard:
		kb := object.NewMessagesKeyboard(true)
		kb.Buttons = [][]object.MessagesKeyboardButton{}
		return kb
	}
	return nil
}

// Send delivers a reply. Photos are uploaded to VK first; a failed upload
// sends the message without the photo.
func (b *Bot) Send(ctx context.Context, reply engine.Reply) error {
	peerID, err := platform.NumericID(reply.UserKey, platform.VK)
	if err != nil {
		return err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}

	builder := params.NewMessagesSendBuilder()
	builder.PeerID(int(peerID))
	builder.RandomID(0)
	builder.Message(reply.Text)
	if kb := keyboard(reply); kb != nil {
		builder.Keyboard(kb)
	}

	if reply.PhotoURL != "" {
		attachment, err := b.uploadPhoto(ctx, int(peerID), reply.PhotoURL)
		if err != nil {
			b.logger.Warn("Failed to upload photo", zap.Error(err), zap.String("url", reply.PhotoURL))
		} else {
			builder.Attachment(attachment)
		}
	}

	return b.send(builder)
}

// SendLocation sends a message with a map point attached
func (b *Bot) SendLocation(ctx context.Context, userKey string, location models.Coordinates) error {
	peerID, err := platform.NumericID(userKey, platform.VK)
	if err != nil {
		return err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}

	builder := params.NewMessagesSendBuilder()
	builder.PeerID(int(peerID))
	builder.RandomID(0)
	builder.Message("📍")
	builder.Lat(location.Lat)
	builder.Long(location.Lon)
	return b.send(builder)
}

// SendInvoice sends a link button to the external payment page
func (b *Bot) SendInvoice(ctx context.Context, invoice engine.Invoice) error {
	peerID, err := platform.NumericID(invoice.UserKey, platform.VK)
	if err != nil {
		return err
	}
	if b.paymentPageURL == "" {
		return errors.New("payment page url is not configured")
	}
	link, err := platform.PaymentLink(b.paymentPageURL, invoice)
	if err != nil {
		return err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}

	kb := object.NewMessagesKeyboardInline()
	kb.AddRow()
	kb.AddOpenLinkButton(link, "💳 Pay online", buttonPayload{Command: "pay"})

	builder := params.NewMessagesSendBuilder()
	builder.PeerID(int(peerID))
	builder.RandomID(0)
	builder.Message(fmt.Sprintf("%s: %s %s", invoice.Title, invoice.Amount.StringFixed(2), invoice.Currency))
	builder.Keyboard(kb)
	return b.send(builder)
}

// uploadPhoto downloads the image and uploads it as a message photo
func (b *Bot) uploadPhoto(ctx context.Context, peerID int, imageURL string) (string, error) {
	if b.vk == nil {
		return "", errors.New("vk api is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	photos, err := b.vk.UploadMessagesPhoto(peerID, resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to upload photo: %w", err)
	}
	if len(photos) == 0 {
		return "", errors.New("failed to upload photo: empty response")
	}
	return fmt.Sprintf("photo%d_%d", photos[0].OwnerID, photos[0].ID), nil
}

// send is a no-op without an API so handlers can be tested offline
func (b *Bot) send(builder *params.MessagesSendBuilder) error {
	if b.vk == nil {
		return nil
	}
	if _, err := b.vk.MessagesSend(builder.Params); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
