package session

import (
	"context"
	"testing"
	"time"

	"github.com/ktwhotel/concierge/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RemovesOnlyIdleSessions(t *testing.T) {
	backend := NewMemoryBackend()
	store := NewStore(backend, "ktw", logging.Discard())
	ctx := context.Background()

	old := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	backend.SetClock(func() time.Time { return old })
	_, err := store.Get(ctx, "stale")
	require.NoError(t, err)

	fresh := old.Add(50 * time.Minute)
	backend.SetClock(func() time.Time { return fresh })
	_, err = store.Get(ctx, "fresh")
	require.NoError(t, err)

	sweeper := NewSweeper(store, 30*time.Minute, time.Minute, logging.Discard())
	sweeper.now = func() time.Time { return old.Add(time.Hour) }
	var expired []string
	sweeper.OnDelete(func(s *Session) { expired = append(expired, s.UserID) })

	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"stale"}, expired)

	ids, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids)
}

func TestSweeper_DeletesCorruptRecords(t *testing.T) {
	backend := NewMemoryBackend()
	store := NewStore(backend, "ktw", logging.Discard())
	ctx := context.Background()

	_, err := store.Get(ctx, "fresh")
	require.NoError(t, err)
	backend.mu.Lock()
	backend.items[Key{TenantID: "ktw", UserID: "broken"}] = []byte("{not json")
	backend.mu.Unlock()

	ids, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "fresh"}, ids)

	sweeper := NewSweeper(store, 30*time.Minute, time.Minute, logging.Discard())
	var expired []*Session
	sweeper.OnDelete(func(s *Session) { expired = append(expired, s) })

	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, expired, 1)
	assert.Equal(t, "broken", expired[0].UserID)
	assert.True(t, expired[0].Corrupt)

	ids, err = store.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	store := NewStore(NewMemoryBackend(), "ktw", logging.Discard())
	sweeper := NewSweeper(store, time.Minute, 5*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
