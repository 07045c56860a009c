package router

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ktwhotel/concierge/internal/dispatch"
	"github.com/ktwhotel/concierge/internal/flow"
	"github.com/ktwhotel/concierge/internal/http/handlers"
	httpmiddleware "github.com/ktwhotel/concierge/internal/http/middleware"
	"github.com/ktwhotel/concierge/internal/line"
	"github.com/ktwhotel/concierge/internal/observability/metrics"
	"github.com/ktwhotel/concierge/internal/pms"
	"github.com/ktwhotel/concierge/internal/session"
	"github.com/ktwhotel/concierge/pkg/logging"
)

const (
	testTenant  = "ktw_hotel"
	adminSecret = "admin-secret"
	lineSecret  = "line-secret"
)

type captured struct {
	events []line.InboundEvent
}

func (c *captured) HandleEvent(_ context.Context, ev line.InboundEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *captured) {
	t.Helper()
	logger := logging.Discard()
	loc := time.FixedZone("CST", 8*60*60)
	afternoon := func() time.Time { return time.Date(2025, 6, 1, 14, 0, 0, 0, loc) }

	reg := prometheus.NewRegistry()
	store := session.NewStore(session.NewMemoryBackend(), testTenant, logger)
	d := dispatch.New(store, flow.NewEngine(flow.DefaultPolicy()), pms.NewMemoryService(pms.DemoAvailability(), nil), logger,
		dispatch.WithClock(afternoon, loc),
		dispatch.WithMetrics(metrics.NewDispatchMetrics(reg)),
	)

	events := &captured{}
	return New(&Config{
		Logger:            logger,
		TenantID:          testTenant,
		LineWebhook:       line.NewWebhookHandler(lineSecret, events, logger),
		Messages:          handlers.NewMessagesHandler(d, testTenant, logger),
		AdminSessions:     handlers.NewAdminSessionsHandler(store, logger),
		AdminAuthSecret:   adminSecret,
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		MessagesPerMinute: 600,
	}), events
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, httpmiddleware.AdminClaims{
		TenantID: testTenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "desk-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(adminSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := do(t, router, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected request id header")
	}
}

func TestRouterMessagesDriveConversationAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/tenants/ktw_hotel/messages", strings.NewReader(`{"user_id":"U1","text":"今天想訂雙人房"}`))
	rr := do(t, router, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var resp handlers.MessageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.State, "booking.") {
		t.Fatalf("state = %q, want a booking state", resp.State)
	}
	if !strings.Contains(resp.Reply, "NT$2,800") {
		t.Fatalf("reply should list today's price, got %q", resp.Reply)
	}

	metricsResp := do(t, router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(metricsResp.Body.String(), `concierge_dispatch_total{flow="idle",outcome="ok"} 1`) {
		t.Fatalf("dispatch metric missing:\n%s", metricsResp.Body.String())
	}
}

func TestRouterLineWebhook(t *testing.T) {
	router, events := newTestRouter(t)

	body := []byte(`{"destination":"Ubot","events":[{"type":"message","mode":"active","timestamp":1748757600000,"replyToken":"rt","source":{"type":"user","userId":"U1"},"message":{"id":"1","type":"text","text":"查訂單"},"webhookEventId":"ev1"}]}`)
	mac := hmac.New(sha256.New, []byte(lineSecret))
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	if rr := do(t, router, req); rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(events.events) != 1 || events.events[0].Text != "查訂單" {
		t.Fatalf("events = %+v", events.events)
	}

	bad := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	bad.Header.Set("X-Line-Signature", "AAAA")
	if rr := do(t, router, bad); rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature status = %d", rr.Code)
	}
}

func TestRouterAdminSessions(t *testing.T) {
	router, _ := newTestRouter(t)
	do(t, router, httptest.NewRequest(http.MethodPost, "/v1/tenants/ktw_hotel/messages", strings.NewReader(`{"user_id":"U1","text":"今天想訂雙人房"}`)))

	if rr := do(t, router, httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rr.Code)
	}

	list := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	list.Header.Set("Authorization", adminToken(t))
	rr := do(t, router, list)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var resp handlers.SessionsListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Sessions[0].Flow != "booking" {
		t.Fatalf("sessions = %+v", resp)
	}

	del := httptest.NewRequest(http.MethodDelete, "/admin/sessions/U1", nil)
	del.Header.Set("Authorization", adminToken(t))
	if rr := do(t, router, del); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	get := httptest.NewRequest(http.MethodGet, "/admin/sessions/U1", nil)
	get.Header.Set("Authorization", adminToken(t))
	if rr := do(t, router, get); rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rr.Code)
	}
}
