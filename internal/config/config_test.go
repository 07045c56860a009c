package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SESSION_BACKEND", "")
	t.Setenv("BOOKING_CUTOFF_HOUR", "")
	t.Setenv("BOOKING_URL", "")
	t.Setenv("SESSION_IDLE_TIMEOUT", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SessionBackend != "memory" {
		t.Fatalf("expected memory session backend, got %s", cfg.SessionBackend)
	}
	if cfg.BookingCutoffHour != 22 {
		t.Fatalf("expected cutoff hour 22, got %d", cfg.BookingCutoffHour)
	}
	if cfg.MaxRoomsPerBooking != 5 {
		t.Fatalf("expected max rooms 5, got %d", cfg.MaxRoomsPerBooking)
	}
	if cfg.BookingURL != "https://ktwhotel.com/2cTrT" {
		t.Fatalf("unexpected booking url %s", cfg.BookingURL)
	}
	if cfg.SessionIdleTimeout != 30*time.Minute {
		t.Fatalf("expected default idle timeout, got %s", cfg.SessionIdleTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("SESSION_BACKEND", " Redis ")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("USE_MEMORY_QUEUE", "false")
	t.Setenv("PMS_TIMEOUT", "2s")
	t.Setenv("AI_PROVIDER", "GEMINI")

	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.SessionBackend != "redis" {
		t.Fatalf("expected normalized backend, got %q", cfg.SessionBackend)
	}
	if cfg.WorkerCount != 8 {
		t.Fatalf("expected worker count 8, got %d", cfg.WorkerCount)
	}
	if cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue disabled")
	}
	if cfg.PMSTimeout != 2*time.Second {
		t.Fatalf("expected pms timeout 2s, got %s", cfg.PMSTimeout)
	}
	if cfg.AIProvider != "gemini" {
		t.Fatalf("expected ai provider gemini, got %s", cfg.AIProvider)
	}
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("SESSION_TTL", "forever")

	cfg := Load()
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected fallback worker count, got %d", cfg.WorkerCount)
	}
	if cfg.SessionTTL != 0 {
		t.Fatalf("expected sessions to default to no expiry, got %s", cfg.SessionTTL)
	}
}

func TestLocationFallsBackToFixedZone(t *testing.T) {
	cfg := &Config{Timezone: "Not/AZone"}
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, cfg.Location()).Zone()
	if offset != 8*60*60 {
		t.Fatalf("expected +8h fallback offset, got %d", offset)
	}
}
