package main

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/ktwhotel/concierge/internal/line"
	"github.com/ktwhotel/concierge/pkg/logging"
)

type stubProcessor struct {
	err       error
	body      []byte
	signature string
	calls     int
}

func (s *stubProcessor) Process(_ context.Context, body []byte, signature string) error {
	s.calls++
	s.body = body
	s.signature = signature
	return s.err
}

func request(method, path, body string, headers map[string]string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		Headers: headers,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method: method,
				Path:   path,
			},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	proc := &stubProcessor{}
	resp, err := handle(context.Background(), proc, logging.Discard(), request(http.MethodGet, "/health", "", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "ok" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if proc.calls != 0 {
		t.Fatalf("health check should not reach the webhook")
	}
}

func TestHandleRouting(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "unknown path", method: http.MethodPost, path: "/webhooks/twilio", want: http.StatusNotFound},
		{name: "wrong method", method: http.MethodGet, path: webhookPath, want: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := handle(context.Background(), &stubProcessor{}, logging.Discard(), request(tt.method, tt.path, "", nil))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestHandleForwardsDecodedBodyAndSignature(t *testing.T) {
	proc := &stubProcessor{}
	evt := request(http.MethodPost, webhookPath, base64.StdEncoding.EncodeToString([]byte(`{"events":[]}`)),
		map[string]string{"X-Line-Signature": "sig=="})
	evt.IsBase64Encoded = true

	resp, err := handle(context.Background(), proc, logging.Discard(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if string(proc.body) != `{"events":[]}` {
		t.Fatalf("body = %q", proc.body)
	}
	if proc.signature != "sig==" {
		t.Fatalf("signature = %q", proc.signature)
	}
}

func TestHandleMapsWebhookErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "bad signature", err: line.ErrInvalidSignature, want: http.StatusUnauthorized},
		{name: "bad payload", err: errors.New("line: decode webhook: unexpected EOF"), want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := handle(context.Background(), &stubProcessor{err: tt.err}, logging.Discard(),
				request(http.MethodPost, webhookPath, "{}", nil))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestHandleRejectsInvalidBase64(t *testing.T) {
	evt := request(http.MethodPost, webhookPath, "%%%", nil)
	evt.IsBase64Encoded = true

	resp, err := handle(context.Background(), &stubProcessor{}, logging.Discard(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.StatusCode)
	}
}
