package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ktwhotel/concierge/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Backend persists serialized sessions. Implementations must assign
// UpdatedAt on every Put and treat Delete of an absent key as success.
type Backend interface {
	Get(ctx context.Context, key Key) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, key Key) error
	List(ctx context.Context, tenantID string) ([]*Session, error)
}

// Store is the public session contract for one tenant. It serializes
// read-modify-write cycles per user; distinct users never contend.
type Store struct {
	backend  Backend
	tenantID string
	locks    *keyedMutex
	now      func() time.Time
	logger   *logging.Logger
	tracer   trace.Tracer
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock overrides the clock used for default sessions.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTracer sets the tracer used for backend spans.
func WithTracer(t trace.Tracer) StoreOption {
	return func(s *Store) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewStore wires a store over backend for tenantID.
func NewStore(backend Backend, tenantID string, logger *logging.Logger, opts ...StoreOption) *Store {
	if backend == nil {
		panic("session: backend cannot be nil")
	}
	if tenantID == "" {
		panic("session: tenant id cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		backend:  backend,
		tenantID: tenantID,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
		tracer:   otel.Tracer("concierge.internal.session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TenantID is the tenant this store serves.
func (s *Store) TenantID() string {
	return s.tenantID
}

func (s *Store) key(userID string) Key {
	return Key{TenantID: s.tenantID, UserID: userID}
}

// Get returns the user's session, creating and persisting the default idle
// session on first access. A corrupt record is replaced by a fresh one.
func (s *Store) Get(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("session: user id required")
	}
	ctx, span := s.tracer.Start(ctx, "session.get", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	key := s.key(userID)
	sess, err := s.backend.Get(ctx, key)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, ErrCorrupt):
		s.logger.Warn("discarding corrupt session", "tenant_id", key.TenantID, "user_id", key.UserID, "error", err)
	case errors.Is(err, ErrNotFound):
	default:
		span.RecordError(err)
		return nil, fmt.Errorf("session: load %s: %w", key, err)
	}

	fresh := New(key, s.now())
	if err := s.backend.Put(ctx, fresh); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: create %s: %w", key, err)
	}
	return fresh.Clone(), nil
}

// Lookup returns the stored session without creating one. Absent sessions
// yield ErrNotFound.
func (s *Store) Lookup(ctx context.Context, userID string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.lookup", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	sess, err := s.backend.Get(ctx, s.key(userID))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}
	return sess, nil
}

// Set writes the session. The backend stamps UpdatedAt.
func (s *Store) Set(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("session: session cannot be nil")
	}
	if sess.UserID == "" {
		return errors.New("session: user id required")
	}
	sess.TenantID = s.tenantID
	if err := sess.Validate(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "session.set", trace.WithAttributes(
		attribute.String("user_id", sess.UserID),
		attribute.String("state", string(sess.State)),
	))
	defer span.End()

	if err := s.backend.Put(ctx, sess); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: save %s: %w", sess.Key(), err)
	}
	return nil
}

// Delete removes the user's session. Deleting an absent session succeeds.
func (s *Store) Delete(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	if err := s.backend.Delete(ctx, s.key(userID)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: delete %s: %w", s.key(userID), err)
	}
	return nil
}

// List returns every stored session for the tenant.
func (s *Store) List(ctx context.Context) ([]*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.list")
	defer span.End()

	sessions, err := s.backend.List(ctx, s.tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: list: %w", err)
	}
	for _, sess := range sessions {
		if sess.Corrupt {
			s.logger.Warn("listing corrupt session", "tenant_id", sess.TenantID, "user_id", sess.UserID)
		}
	}
	return sessions, nil
}

// ListActive returns the user ids with a stored session.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.UserID)
	}
	return ids, nil
}

// WithLock runs fn while holding the user's lock. Use it around every
// get/handle/set cycle.
func (s *Store) WithLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	unlock, err := s.locks.lock(ctx, s.key(userID).String())
	if err != nil {
		return fmt.Errorf("session: lock %s: %w", userID, err)
	}
	defer unlock()
	return fn(ctx)
}

// Close releases the backend when it holds resources.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
