package bootstrap

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/ktwhotel/concierge/internal/config"
	"github.com/ktwhotel/concierge/internal/events"
	"github.com/ktwhotel/concierge/internal/line"
	"github.com/ktwhotel/concierge/internal/pms"
	"github.com/ktwhotel/concierge/internal/worker"
	"github.com/ktwhotel/concierge/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		TenantID:           "ktw_hotel",
		Timezone:           "Asia/Taipei",
		SessionBackend:     BackendMemory,
		SessionTTL:         time.Hour,
		SessionIdleTimeout: 30 * time.Minute,
		UseMemoryQueue:     true,
		WorkerCount:        1,
		PMSTimeout:         time.Second,
		BookingCutoffHour:  22,
		MaxRoomsPerBooking: 5,
		BookingURL:         "https://example.com/book",
		AIProvider:         "none",
		AWSRegion:          "ap-northeast-1",
	}
}

// fakeAWS counts loads and never touches the network.
type fakeAWS struct {
	mu    sync.Mutex
	loads int
}

func (f *fakeAWS) load(context.Context, *appconfig.Config) (aws.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return aws.Config{Region: "ap-northeast-1", Credentials: aws.AnonymousCredentials{}}, nil
}

func buildTest(t *testing.T, cfg *appconfig.Config) *Runtime {
	t.Helper()
	rt, err := build(context.Background(), cfg, logging.Discard(), (&fakeAWS{}).load)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestBuildRequiresConfig(t *testing.T) {
	if _, err := Build(context.Background(), nil, logging.Discard()); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildMemoryDefaults(t *testing.T) {
	rt := buildTest(t, testConfig())

	if rt.Sessions == nil || rt.Dispatcher == nil {
		t.Fatalf("runtime missing core components: %+v", rt)
	}
	if _, ok := rt.Processed.(*events.MemoryProcessedStore); !ok {
		t.Fatalf("processed store = %T, want memory store", rt.Processed)
	}
	if _, ok := rt.Queue.(*worker.MemoryQueue); !ok {
		t.Fatalf("queue = %T, want memory queue", rt.Queue)
	}
	if _, ok := rt.Messenger.(*worker.LogMessenger); !ok {
		t.Fatalf("messenger = %T, want log messenger", rt.Messenger)
	}
	if rt.Profiles != nil {
		t.Fatalf("profiles should be nil without a channel token")
	}
	if sw, err := rt.Sweeper(context.Background()); err != nil || sw == nil {
		t.Fatalf("sweeper = %v, err = %v", sw, err)
	}
}

func TestBuildRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.SessionBackend = BackendRedis
	cfg.RedisAddr = mr.Addr()

	rt := buildTest(t, cfg)
	if _, err := rt.Sessions.Get(context.Background(), "U1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !mr.Exists("concierge:session:ktw_hotel:U1") {
		t.Fatalf("expected session key in redis, have %v", mr.Keys())
	}
}

func TestBuildRedisSessionsUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.SessionBackend = BackendRedis
	cfg.RedisAddr = "127.0.0.1:1"

	if _, err := build(context.Background(), cfg, logging.Discard(), (&fakeAWS{}).load); err == nil {
		t.Fatalf("expected error when redis is unreachable")
	}
}

func TestBuildSQLiteSessions(t *testing.T) {
	cfg := testConfig()
	cfg.SessionBackend = BackendSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "nested", "sessions.db")

	rt := buildTest(t, cfg)
	if _, err := rt.Sessions.Get(context.Background(), "U1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := os.Stat(cfg.SQLitePath); err != nil {
		t.Fatalf("sqlite file not created: %v", err)
	}
}

func TestBuildPostgresRequiresDatabaseURL(t *testing.T) {
	cfg := testConfig()
	cfg.SessionBackend = BackendPostgres

	_, err := build(context.Background(), cfg, logging.Discard(), (&fakeAWS{}).load)
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("error = %v, want DATABASE_URL hint", err)
	}
}

func TestBuildUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.SessionBackend = "etcd"

	if _, err := build(context.Background(), cfg, logging.Discard(), (&fakeAWS{}).load); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildAWSBackedComponentsShareConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SessionBackend = BackendDynamo
	cfg.SessionTable = "conversation_sessions"
	cfg.UseMemoryQueue = false
	cfg.QueueURL = "https://sqs.ap-northeast-1.amazonaws.com/123/inbound"
	cfg.EmailProvider = "ses"
	cfg.AIProvider = "bedrock"
	cfg.BedrockModelID = "anthropic.claude-3-haiku"

	loader := &fakeAWS{}
	rt, err := build(context.Background(), cfg, logging.Discard(), loader.load)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer rt.Close()

	if _, ok := rt.Queue.(*worker.SQSQueue); !ok {
		t.Fatalf("queue = %T, want SQS queue", rt.Queue)
	}
	if loader.loads != 1 {
		t.Fatalf("aws config loaded %d times, want 1", loader.loads)
	}
}

func TestBuildSQSQueueRequiresURL(t *testing.T) {
	cfg := testConfig()
	cfg.UseMemoryQueue = false

	if _, err := build(context.Background(), cfg, logging.Discard(), (&fakeAWS{}).load); err == nil {
		t.Fatalf("expected error without QUEUE_URL")
	}
}

func TestBuildPMS(t *testing.T) {
	cfg := testConfig()
	if _, ok := BuildPMS(cfg, logging.Discard()).(*pms.MemoryService); !ok {
		t.Fatalf("expected in-memory PMS without base URL")
	}
	cfg.PMSBaseURL = "https://pms.example.com"
	if _, ok := BuildPMS(cfg, logging.Discard()).(*pms.Client); !ok {
		t.Fatalf("expected HTTP PMS client with base URL")
	}
}

func TestBuildAdvisor(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		want     bool
		wantErr  bool
	}{
		{name: "disabled", provider: "none"},
		{name: "gemini without key", provider: "gemini"},
		{name: "bedrock without model", provider: "bedrock"},
		{name: "bedrock", provider: "bedrock", model: "anthropic.claude-3-haiku", want: true},
		{name: "failover with bedrock only", provider: "failover", model: "anthropic.claude-3-haiku", want: true},
		{name: "unknown", provider: "openai", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.AIProvider = tt.provider
			cfg.BedrockModelID = tt.model
			rt := &Runtime{Config: cfg, Logger: logging.Discard(), loadAWS: (&fakeAWS{}).load}
			defer rt.Close()

			advisor, err := rt.buildAdvisor(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (advisor != nil) != tt.want {
				t.Fatalf("advisor = %v, want present %v", advisor, tt.want)
			}
		})
	}
}

func TestBuildNotifier(t *testing.T) {
	for _, provider := range []string{"", "stub", "sendgrid", "ses"} {
		cfg := testConfig()
		cfg.EmailProvider = provider
		rt := &Runtime{Config: cfg, Logger: logging.Discard(), loadAWS: (&fakeAWS{}).load}
		if n, err := rt.buildNotifier(context.Background()); err != nil || n == nil {
			t.Fatalf("provider %q: notifier = %v, err = %v", provider, n, err)
		}
	}

	cfg := testConfig()
	cfg.EmailProvider = "mailgun"
	rt := &Runtime{Config: cfg, Logger: logging.Discard()}
	if _, err := rt.buildNotifier(context.Background()); err == nil {
		t.Fatalf("expected error for unknown email provider")
	}
}

func TestBuildMessengerWithToken(t *testing.T) {
	cfg := testConfig()
	cfg.LineChannelToken = "token"
	cfg.LineAPIBaseURL = "https://line.example.com"

	m, p := BuildMessenger(cfg, logging.Discard())
	if _, ok := m.(*line.Client); !ok {
		t.Fatalf("messenger = %T, want line client", m)
	}
	if p == nil {
		t.Fatalf("expected profile source")
	}
}

func TestBuildRedisClient(t *testing.T) {
	if c := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.Discard(), true); c != nil {
		t.Fatalf("expected nil client without address")
	}
	if c := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: "127.0.0.1:1"}, logging.Discard(), true); c != nil {
		t.Fatalf("expected nil client when ping fails")
	}

	mr := miniredis.RunT(t)
	c := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logging.Discard(), true)
	if c == nil {
		t.Fatalf("expected client for reachable redis")
	}
	_ = c.Close()
}

type recordingMessenger struct {
	mu    sync.Mutex
	texts []string
	done  chan struct{}
}

func (m *recordingMessenger) Reply(_ context.Context, _ string, texts ...string) error {
	m.mu.Lock()
	m.texts = append(m.texts, texts...)
	m.mu.Unlock()
	select {
	case m.done <- struct{}{}:
	default:
	}
	return nil
}

func (m *recordingMessenger) Push(ctx context.Context, _ string, texts ...string) error {
	return m.Reply(ctx, "", texts...)
}

func TestWebhookFeedsWorker(t *testing.T) {
	cfg := testConfig()
	cfg.LineChannelSecret = "channel-secret"
	rt := buildTest(t, cfg)

	msgr := &recordingMessenger{done: make(chan struct{}, 1)}
	rt.Messenger = msgr

	ctx, cancel := context.WithCancel(context.Background())
	w := rt.Worker(worker.WithReceiveWaitSeconds(1))
	w.Start(ctx)
	defer func() {
		cancel()
		w.Wait()
	}()

	body := []byte(`{"destination":"Uhotel","events":[{"type":"message","mode":"active","timestamp":1717200000000,"replyToken":"rt-1","webhookEventId":"ev-1","source":{"type":"user","userId":"U1"},"message":{"id":"m1","type":"text","text":"我有訂房"},"deliveryContext":{"isRedelivery":false}}]}`)
	mac := hmac.New(sha256.New, []byte(cfg.LineChannelSecret))
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	rec := httptest.NewRecorder()
	rt.Webhook().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", rec.Code)
	}

	select {
	case <-msgr.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for worker reply")
	}
	msgr.mu.Lock()
	defer msgr.mu.Unlock()
	if len(msgr.texts) == 0 || strings.TrimSpace(msgr.texts[0]) == "" {
		t.Fatalf("expected a reply, got %q", msgr.texts)
	}
}
