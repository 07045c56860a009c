package line

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

type sentMessages struct {
	ReplyToken string `json:"replyToken"`
	To         string `json:"to"`
	Messages   []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"messages"`
}

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient("token", url)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClient_RequiresToken(t *testing.T) {
	if _, err := NewClient(" ", ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestClient_Reply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/reply" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Fatalf("Authorization = %q", got)
		}
		var req sentMessages
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.ReplyToken != "rt" || len(req.Messages) != 1 || req.Messages[0].Text != "您好" || req.Messages[0].Type != "text" {
			t.Fatalf("request = %+v", req)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newClient(t, server.URL)
	if err := c.Reply(context.Background(), "rt", "您好", "  "); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
}

func TestClient_PushSetsRetryKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/push" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Line-Retry-Key") == "" {
			t.Fatalf("missing retry key")
		}
		var req sentMessages
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.To != "U1" {
			t.Fatalf("to = %q", req.To)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := newClient(t, server.URL).Push(context.Background(), "U1", "hello"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer server.Close()

	err := newClient(t, server.URL).Reply(context.Background(), "expired", "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || !strings.Contains(apiErr.Message, "Invalid reply token") {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestClient_Profile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v2/bot/profile/U1" {
			t.Fatalf("%s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"userId":"U1","displayName":"小明"}`))
	}))
	defer server.Close()

	p, err := newClient(t, server.URL).Profile(context.Background(), "U1")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.DisplayName != "小明" || p.UserID != "U1" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestTextChunks(t *testing.T) {
	long := strings.Repeat("房", maxTextRunes+10)
	chunks := textChunks([]string{"", long})
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2", len(chunks))
	}
	if n := utf8.RuneCountInString(chunks[0]); n != maxTextRunes {
		t.Fatalf("first chunk = %d runes", n)
	}
	if n := utf8.RuneCountInString(chunks[1]); n != 10 {
		t.Fatalf("second chunk = %d runes", n)
	}

	many := textMessages([]string{"a", "b", "c", "d", "e", "f"})
	if len(many) != maxMessagesPerCall {
		t.Fatalf("len = %d, want cap %d", len(many), maxMessagesPerCall)
	}
}
