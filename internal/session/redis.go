package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisBackend stores JSON-encoded sessions under
// "concierge:session:<tenant>:<user>". Keys never expire unless a positive
// ttl is given; idle conversations are ended by the sweeper.
type RedisBackend struct {
	redis  *redis.Client
	ttl    time.Duration
	now    func() time.Time
	tracer trace.Tracer
}

// NewRedisBackend builds a Redis session backend.
func NewRedisBackend(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisBackend {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if tracer == nil {
		tracer = otel.Tracer("concierge.internal.session.redis")
	}
	return &RedisBackend{
		redis:  client,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		tracer: tracer,
	}
}

func redisKey(key Key) string {
	return fmt.Sprintf("concierge:session:%s:%s", key.TenantID, key.UserID)
}

func (b *RedisBackend) Get(ctx context.Context, key Key) (*Session, error) {
	ctx, span := b.tracer.Start(ctx, "session.redis.get")
	defer span.End()

	data, err := b.redis.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	return Decode(data)
}

func (b *RedisBackend) Put(ctx context.Context, s *Session) error {
	ctx, span := b.tracer.Start(ctx, "session.redis.put")
	defer span.End()

	s.UpdatedAt = b.now()
	data, err := Encode(s)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := b.redis.Set(ctx, redisKey(s.Key()), data, b.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key Key) error {
	ctx, span := b.tracer.Start(ctx, "session.redis.delete")
	defer span.End()

	if err := b.redis.Del(ctx, redisKey(key)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

func (b *RedisBackend) List(ctx context.Context, tenantID string) ([]*Session, error) {
	ctx, span := b.tracer.Start(ctx, "session.redis.list")
	defer span.End()

	prefix := redisKey(Key{TenantID: tenantID})
	var keys []string
	iter := b.redis.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: redis scan: %w", err)
	}
	sort.Strings(keys)

	out := make([]*Session, 0, len(keys))
	for _, k := range keys {
		data, err := b.redis.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("session: redis get %s: %w", k, err)
		}
		s, err := Decode(data)
		if err != nil {
			s = Unreadable(Key{TenantID: tenantID, UserID: strings.TrimPrefix(k, prefix)})
		}
		out = append(out, s)
	}
	return out, nil
}
