package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"pizzabot/internal/engine"
	"pizzabot/internal/geo"
	"pizzabot/internal/models"
	"pizzabot/internal/platform"
)

// Messenger limits
const (
	maxQuickReplies = 13
	maxTitleLen     = 20
	maxTextLen      = 2000
)

type sendRequest struct {
	Recipient     recipient       `json:"recipient"`
	MessagingType string          `json:"messaging_type"`
	Message       outgoingMessage `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type outgoingMessage struct {
	Text         string       `json:"text,omitempty"`
	QuickReplies []quickReply `json:"quick_replies,omitempty"`
	Attachment   *attachment  `json:"attachment,omitempty"`
}

type quickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

type attachment struct {
	Type    string            `json:"type"`
	Payload attachmentPayload `json:"payload"`
}

type attachmentPayload struct {
	URL          string      `json:"url,omitempty"`
	IsReusable   bool        `json:"is_reusable,omitempty"`
	TemplateType string      `json:"template_type,omitempty"`
	Text         string      `json:"text,omitempty"`
	Buttons      []urlButton `json:"buttons,omitempty"`
}

type urlButton struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// quickReplies flattens button rows. When there are too many, the last row
// (navigation) is kept and the rest is filled from the front.
func quickReplies(rows [][]engine.Button) []quickReply {
	var all []engine.Button
	for _, row := range rows {
		all = append(all, row...)
	}
	if len(all) > maxQuickReplies && len(rows) > 0 {
		tail := rows[len(rows)-1]
		head := all[:max(maxQuickReplies-len(tail), 0)]
		all = append(append([]engine.Button{}, head...), tail...)
		if len(all) > maxQuickReplies {
			all = all[:maxQuickReplies]
		}
	}

	out := make([]quickReply, 0, len(all))
	for _, button := range all {
		out = append(out, quickReply{
			ContentType: "text",
			Title:       truncate(button.Label, maxTitleLen),
			Payload:     button.Value,
		})
	}
	return out
}

func recipientID(userKey string) (string, error) {
	prefix, id, err := platform.SplitKey(userKey)
	if err != nil {
		return "", err
	}
	if prefix != platform.Facebook {
		return "", fmt.Errorf("user key %q does not belong to %s", userKey, platform.Facebook)
	}
	return id, nil
}

// Send delivers a reply. A photo goes out as a separate image message first.
// Messenger has no persistent keyboards, so buttons become quick replies.
func (b *Bot) Send(ctx context.Context, reply engine.Reply) error {
	id, err := recipientID(reply.UserKey)
	if err != nil {
		return err
	}

	if reply.PhotoURL != "" {
		if err := b.post(ctx, id, imageMessage(reply.PhotoURL)); err != nil {
			return err
		}
	}
	if reply.Text == "" {
		return nil
	}

	msg := outgoingMessage{Text: truncate(reply.Text, maxTextLen)}
	if len(reply.Buttons) > 0 {
		msg.QuickReplies = quickReplies(reply.Buttons)
	}
	return b.post(ctx, id, msg)
}

// SendLocation sends a static map of the point
func (b *Bot) SendLocation(ctx context.Context, userKey string, location models.Coordinates) error {
	id, err := recipientID(userKey)
	if err != nil {
		return err
	}
	return b.post(ctx, id, imageMessage(geo.StaticMapURL(location)))
}

// SendInvoice sends a button leading to the external payment page
func (b *Bot) SendInvoice(ctx context.Context, invoice engine.Invoice) error {
	id, err := recipientID(invoice.UserKey)
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

	return b.post(ctx, id, outgoingMessage{Attachment: &attachment{
		Type: "template",
		Payload: attachmentPayload{
			TemplateType: "button",
			Text:         fmt.Sprintf("%s: %s %s", invoice.Title, invoice.Amount.StringFixed(2), invoice.Currency),
			Buttons:      []urlButton{{Type: "web_url", URL: link, Title: "💳 Pay online"}},
		},
	}})
}

func imageMessage(imageURL string) outgoingMessage {
	return outgoingMessage{Attachment: &attachment{
		Type:    "image",
		Payload: attachmentPayload{URL: imageURL, IsReusable: true},
	}}
}

// post calls the Send API
func (b *Bot) post(ctx context.Context, recipientID string, msg outgoingMessage) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}

	body, err := json.Marshal(sendRequest{
		Recipient:     recipient{ID: recipientID},
		MessagingType: "RESPONSE",
		Message:       msg,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	endpoint := b.graphURL + "/me/messages?access_token=" + url.QueryEscape(b.pageToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call send api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ge graphError
		if json.Unmarshal(data, &ge) == nil && ge.Error.Message != "" {
			return fmt.Errorf("send api returned %d: %s (code %d)", resp.StatusCode, ge.Error.Message, ge.Error.Code)
		}
		return fmt.Errorf("send api returned %d", resp.StatusCode)
	}
	return nil
}
