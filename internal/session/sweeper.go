package session

import (
	"context"
	"errors"
	"time"

	"github.com/ktwhotel/concierge/pkg/logging"
)

// Sweeper deletes sessions idle for longer than a threshold. The store has
// no timers of its own; a deployment opts in by running a Sweeper.
type Sweeper struct {
	store    *Store
	idle     time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *logging.Logger
	onDelete func(*Session)
}

// NewSweeper builds a sweeper over store.
func NewSweeper(store *Store, idle, interval time.Duration, logger *logging.Logger) *Sweeper {
	if store == nil {
		panic("session: store cannot be nil")
	}
	if idle <= 0 {
		panic("session: idle timeout must be positive")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		store:    store,
		idle:     idle,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// OnDelete registers a hook called for every expired session, e.g. metrics.
func (s *Sweeper) OnDelete(fn func(*Session)) {
	s.onDelete = fn
}

// SweepOnce runs one pass and reports how many sessions were removed. Each
// candidate is re-read under its user lock so a conversation that moved on
// since the listing is left alone.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.idle)
	removed := 0
	for _, candidate := range sessions {
		if !candidate.UpdatedAt.Before(cutoff) {
			continue
		}
		userID := candidate.UserID
		err := s.store.WithLock(ctx, userID, func(ctx context.Context) error {
			current, err := s.store.backend.Get(ctx, s.store.key(userID))
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil && !errors.Is(err, ErrCorrupt) {
				return err
			}
			if current != nil && !current.UpdatedAt.Before(cutoff) {
				return nil
			}
			if err := s.store.Delete(ctx, userID); err != nil {
				return err
			}
			removed++
			s.logger.Info("expired idle session", "user_id", userID, "state", string(candidate.State), "updated_at", candidate.UpdatedAt)
			if s.onDelete != nil {
				s.onDelete(candidate)
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return removed, ctx.Err()
			}
			s.logger.Warn("failed to expire session", "user_id", userID, "error", err)
		}
	}
	return removed, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("session sweeper started", "idle_timeout", s.idle.String(), "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopped")
			return nil
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("session sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Info("session sweep complete", "removed", n)
			}
		}
	}
}
