package line

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/ktwhotel/concierge/pkg/logging"
)

const maxWebhookBody = 1 << 20

var ErrInvalidSignature = errors.New("line: invalid webhook signature")

// EventHandler receives parsed follow and text events.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev InboundEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, ev InboundEvent) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, ev InboundEvent) error {
	return f(ctx, ev)
}

// WebhookHandler verifies and parses LINE webhook deliveries.
type WebhookHandler struct {
	channelSecret string
	handler       EventHandler
	logger        *logging.Logger
}

func NewWebhookHandler(channelSecret string, handler EventHandler, logger *logging.Logger) *WebhookHandler {
	if handler == nil {
		panic("line: event handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		channelSecret: channelSecret,
		handler:       handler,
		logger:        logger,
	}
}

// ServeHTTP handles POST /webhooks/line.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	err = h.Process(r.Context(), body, r.Header.Get("X-Line-Signature"))
	switch {
	case errors.Is(err, ErrInvalidSignature):
		h.logger.Warn("line webhook rejected: bad signature", "remote_addr", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	case err != nil:
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Process verifies the raw body and hands each relevant event to the handler.
// Handler failures are logged; LINE would otherwise redeliver the whole batch.
func (h *WebhookHandler) Process(ctx context.Context, body []byte, signature string) error {
	if h.channelSecret == "" || signature == "" {
		return ErrInvalidSignature
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("line: build webhook request: %w", err)
	}
	req.Header.Set("X-Line-Signature", signature)

	cb, err := webhook.ParseRequest(h.channelSecret, req)
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		return ErrInvalidSignature
	case err != nil:
		return fmt.Errorf("line: decode webhook: %w", err)
	}

	for _, ev := range ParseEvents(cb.Events) {
		if err := h.handler.HandleEvent(ctx, ev); err != nil {
			h.logger.Error("line event handling failed", "error", err, "event_id", ev.EventID, "kind", ev.Kind, "user_id", ev.UserID)
		}
	}
	return nil
}

// ParseEvents keeps follow events and text messages from users. Standby-mode
// events belong to another channel and are skipped.
func ParseEvents(events []webhook.EventInterface) []InboundEvent {
	var out []InboundEvent
	for _, raw := range events {
		var (
			ev   InboundEvent
			mode webhook.EventMode
			dc   *webhook.DeliveryContext
			src  webhook.SourceInterface
			ts   int64
		)
		switch e := raw.(type) {
		case webhook.FollowEvent:
			ev = InboundEvent{Kind: KindFollow, EventID: e.WebhookEventId, ReplyToken: e.ReplyToken}
			mode, dc, src, ts = e.Mode, e.DeliveryContext, e.Source, e.Timestamp
		case *webhook.FollowEvent:
			ev = InboundEvent{Kind: KindFollow, EventID: e.WebhookEventId, ReplyToken: e.ReplyToken}
			mode, dc, src, ts = e.Mode, e.DeliveryContext, e.Source, e.Timestamp
		case webhook.MessageEvent:
			text, ok := messageText(e.Message)
			if !ok {
				continue
			}
			ev = InboundEvent{Kind: KindText, EventID: e.WebhookEventId, ReplyToken: e.ReplyToken, Text: text}
			mode, dc, src, ts = e.Mode, e.DeliveryContext, e.Source, e.Timestamp
		case *webhook.MessageEvent:
			text, ok := messageText(e.Message)
			if !ok {
				continue
			}
			ev = InboundEvent{Kind: KindText, EventID: e.WebhookEventId, ReplyToken: e.ReplyToken, Text: text}
			mode, dc, src, ts = e.Mode, e.DeliveryContext, e.Source, e.Timestamp
		default:
			continue
		}

		ev.UserID = sourceUserID(src)
		if string(mode) == "standby" || ev.UserID == "" {
			continue
		}
		ev.Timestamp = time.UnixMilli(ts)
		if dc != nil {
			ev.IsRedelivery = dc.IsRedelivery
		}
		out = append(out, ev)
	}
	return out
}

func messageText(m webhook.MessageContentInterface) (string, bool) {
	switch c := m.(type) {
	case webhook.TextMessageContent:
		return c.Text, true
	case *webhook.TextMessageContent:
		return c.Text, true
	}
	return "", false
}

func sourceUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case *webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case *webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	case *webhook.RoomSource:
		return s.UserId
	}
	return ""
}
