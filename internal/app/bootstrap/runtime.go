// Package bootstrap wires configuration into the long-lived dependencies
// shared by the api, worker, lambda and sweeper binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ktwhotel/concierge/cmd/mainconfig"
	appconfig "github.com/ktwhotel/concierge/internal/config"
	"github.com/ktwhotel/concierge/internal/dispatch"
	"github.com/ktwhotel/concierge/internal/flow"
	"github.com/ktwhotel/concierge/internal/observability/metrics"
	"github.com/ktwhotel/concierge/internal/session"
	"github.com/ktwhotel/concierge/internal/worker"
	"github.com/ktwhotel/concierge/pkg/logging"
)

// ProcessedEvents dedupes webhook redeliveries across workers.
type ProcessedEvents interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Runtime holds what a binary needs to serve guests. Close releases it.
type Runtime struct {
	Config     *appconfig.Config
	Logger     *logging.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.DispatchMetrics
	Sessions   *session.Store
	Dispatcher *dispatch.Dispatcher
	Processed  ProcessedEvents
	Queue      worker.Queue
	Messenger  worker.Messenger
	Profiles   worker.ProfileSource

	loadAWS func(context.Context, *appconfig.Config) (aws.Config, error)
	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error

	pool    *pgxpool.Pool
	closers []func()
}

// Build wires a Runtime from cfg. Every optional integration degrades to an
// in-process stand-in when it is not configured.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Runtime, error) {
	return build(ctx, cfg, logger, mainconfig.LoadAWSConfig)
}

func build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, loadAWS func(context.Context, *appconfig.Config) (aws.Config, error)) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.NewDispatchMetrics(reg),
		loadAWS:  loadAWS,
	}
	if err := r.wire(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runtime) wire(ctx context.Context) error {
	cfg := r.Config

	store, err := r.buildSessionStore(ctx)
	if err != nil {
		return err
	}
	r.Sessions = store
	r.closers = append(r.closers, func() {
		if err := store.Close(); err != nil {
			r.Logger.Warn("failed to close session backend", "error", err)
		}
	})

	svc := BuildPMS(cfg, r.Logger)
	opts := []dispatch.Option{
		dispatch.WithMetrics(r.Metrics),
		dispatch.WithClock(nil, cfg.Location()),
		dispatch.WithCallTimeout(cfg.PMSTimeout),
	}
	advisor, err := r.buildAdvisor(ctx)
	if err != nil {
		return err
	}
	if advisor != nil {
		opts = append(opts, dispatch.WithAdvisor(advisor))
	}
	notifier, err := r.buildNotifier(ctx)
	if err != nil {
		return err
	}
	opts = append(opts, dispatch.WithNotifier(notifier))

	engine := flow.NewEngine(flow.Policy{
		CutoffHour: cfg.BookingCutoffHour,
		MaxRooms:   cfg.MaxRoomsPerBooking,
		BookingURL: cfg.BookingURL,
	})
	r.Dispatcher = dispatch.New(store, engine, svc, r.Logger, opts...)

	if r.Processed, err = r.buildProcessedStore(ctx); err != nil {
		return err
	}
	if r.Queue, err = r.buildQueue(ctx); err != nil {
		return err
	}
	r.Messenger, r.Profiles = BuildMessenger(cfg, r.Logger)
	return nil
}

// Close releases pools and backends in reverse order of creation.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// AWS loads the shared SDK config on first use.
func (r *Runtime) AWS(ctx context.Context) (aws.Config, error) {
	r.awsOnce.Do(func() {
		if r.loadAWS == nil {
			r.awsErr = errors.New("bootstrap: aws config loader not set")
			return
		}
		r.awsCfg, r.awsErr = r.loadAWS(ctx, r.Config)
		if r.awsErr != nil {
			r.awsErr = fmt.Errorf("bootstrap: load aws config: %w", r.awsErr)
		}
	})
	return r.awsCfg, r.awsErr
}

// Pool connects to DATABASE_URL on first use and returns nil when it is
// unset.
func (r *Runtime) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	if r.pool != nil {
		return r.pool, nil
	}
	dsn := strings.TrimSpace(r.Config.DatabaseURL)
	if dsn == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	r.pool = pool
	r.closers = append(r.closers, pool.Close)
	return pool, nil
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}
