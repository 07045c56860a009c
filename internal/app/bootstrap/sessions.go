package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/ktwhotel/concierge/internal/session"
)

// Session backend names accepted by SESSION_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendDynamo   = "dynamodb"
)

func (r *Runtime) buildSessionStore(ctx context.Context) (*session.Store, error) {
	backend, err := r.buildSessionBackend(ctx)
	if err != nil {
		return nil, err
	}
	return session.NewStore(backend, r.Config.TenantID, r.Logger), nil
}

func (r *Runtime) buildSessionBackend(ctx context.Context) (session.Backend, error) {
	cfg := r.Config
	logger := r.Logger.With("session_backend", cfg.SessionBackend)

	switch cfg.SessionBackend {
	case "", BackendMemory:
		logger.Warn("using in-memory sessions; conversations are lost on restart")
		return session.NewMemoryBackend(), nil

	case BackendRedis:
		client := BuildRedisClient(ctx, cfg, r.Logger, true)
		if client == nil {
			return nil, fmt.Errorf("bootstrap: redis session backend unavailable at %q", cfg.RedisAddr)
		}
		r.closers = append(r.closers, func() { _ = client.Close() })
		logger.Info("using redis sessions", "addr", cfg.RedisAddr)
		return session.NewRedisBackend(client, cfg.SessionTTL, nil), nil

	case BackendPostgres:
		pool, err := r.Pool(ctx)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: postgres session backend requires DATABASE_URL")
		}
		logger.Info("using postgres sessions")
		return session.NewPostgresBackend(pool), nil

	case BackendSQLite:
		backend, err := session.OpenSQLiteBackend(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		logger.Info("using sqlite sessions", "path", cfg.SQLitePath)
		return backend, nil

	case BackendDynamo:
		awsCfg, err := r.AWS(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info("using dynamodb sessions", "table", cfg.SessionTable)
		return session.NewDynamoBackend(dynamodb.NewFromConfig(awsCfg), cfg.SessionTable, cfg.SessionTTL, r.Logger), nil

	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionBackend)
	}
}
