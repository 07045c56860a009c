package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ktwhotel/concierge/pkg/logging"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestProcess_Signature(t *testing.T) {
	secret := "channel_secret"
	body := []byte(`{"destination":"U0","events":[]}`)
	valid := sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		wantErr   bool
	}{
		{"valid signature", secret, body, valid, false},
		{"wrong secret", "other", body, valid, true},
		{"empty signature", secret, body, "", true},
		{"empty secret", "", body, valid, true},
		{"not base64", secret, body, "%%%", true},
		{"tampered body", secret, []byte(`{}`), valid, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWebhookHandler(tt.secret, &recordingHandler{}, logging.Discard())
			err := h.Process(context.Background(), tt.body, tt.signature)
			if got := errors.Is(err, ErrInvalidSignature); got != tt.wantErr {
				t.Errorf("Process() error = %v, want invalid signature %v", err, tt.wantErr)
			}
		})
	}
}

const sampleWebhook = `{
  "destination": "Ubot",
  "events": [
    {"type":"follow","mode":"active","timestamp":1748757600000,"replyToken":"rt-follow","source":{"type":"user","userId":"U1"},"webhookEventId":"ev1"},
    {"type":"message","mode":"active","timestamp":1748757601000,"replyToken":"rt-text","source":{"type":"user","userId":"U1"},"message":{"id":"m1","type":"text","text":"今天訂房"},"webhookEventId":"ev2","deliveryContext":{"isRedelivery":true}},
    {"type":"message","mode":"active","timestamp":1748757602000,"replyToken":"rt-sticker","source":{"type":"user","userId":"U1"},"message":{"id":"m2","type":"sticker"},"webhookEventId":"ev3"},
    {"type":"message","mode":"standby","timestamp":1748757603000,"source":{"type":"user","userId":"U2"},"message":{"id":"m3","type":"text","text":"hi"},"webhookEventId":"ev4"},
    {"type":"unfollow","mode":"active","timestamp":1748757604000,"source":{"type":"user","userId":"U3"},"webhookEventId":"ev5"}
  ]
}`

type recordingHandler struct {
	events []InboundEvent
	err    error
}

func (r *recordingHandler) HandleEvent(_ context.Context, ev InboundEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestWebhookHandler_DeliversFollowAndText(t *testing.T) {
	rec := &recordingHandler{}
	h := NewWebhookHandler("secret", rec, logging.Discard())

	body := []byte(sampleWebhook)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", sign("secret", body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(rec.events) != 2 {
		t.Fatalf("events = %+v, want follow and text", rec.events)
	}
	if rec.events[0].Kind != KindFollow || rec.events[0].ReplyToken != "rt-follow" {
		t.Fatalf("first event = %+v", rec.events[0])
	}
	text := rec.events[1]
	if text.Kind != KindText || text.Text != "今天訂房" || text.UserID != "U1" || text.EventID != "ev2" {
		t.Fatalf("text event = %+v", text)
	}
	if !text.IsRedelivery {
		t.Fatalf("redelivery flag not carried")
	}
}

func TestWebhookHandler_RejectsBadSignature(t *testing.T) {
	rec := &recordingHandler{}
	h := NewWebhookHandler("secret", rec, logging.Discard())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader([]byte(sampleWebhook)))
	req.Header.Set("X-Line-Signature", sign("wrong", []byte(sampleWebhook)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if len(rec.events) != 0 {
		t.Fatalf("handler should not run on bad signature")
	}
}

func TestWebhookHandler_MalformedBody(t *testing.T) {
	h := NewWebhookHandler("secret", &recordingHandler{}, logging.Discard())
	body := []byte(`{"events":`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", sign("secret", body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhookHandler_HandlerErrorsAreAbsorbed(t *testing.T) {
	rec := &recordingHandler{err: errors.New("queue down")}
	h := NewWebhookHandler("secret", rec, logging.Discard())
	body := []byte(sampleWebhook)

	if err := h.Process(context.Background(), body, sign("secret", body)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(rec.events) != 2 {
		t.Fatalf("every event should still be attempted, got %d", len(rec.events))
	}
}
