package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ktwhotel/concierge/internal/intent"
	"github.com/ktwhotel/concierge/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	return NewStore(backend, "ktw", logging.Discard()), backend
}

func TestStore_GetIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Get(ctx, "U1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "U1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, StateIdle, first.State)
	assert.Nil(t, first.Pending)
	assert.Equal(t, FlowNone, first.Draft.Flow())
	assert.Equal(t, "ktw", first.TenantID)
}

func TestStore_SetStampsUpdatedAt(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()
	stamp := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	backend.SetClock(func() time.Time { return stamp })

	sess, err := store.Get(ctx, "U1")
	require.NoError(t, err)
	sess.State = Qualify(FlowBooking, "show_rooms")
	sess.Draft = Draft{Booking: &BookingDraft{Prices: map[string]int{"SD": 2800}}}
	sess.UpdatedAt = time.Time{}
	require.NoError(t, store.Set(ctx, sess))

	got, err := store.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, stamp, got.UpdatedAt)
	assert.Equal(t, 2800, got.Draft.Booking.Prices["SD"])
}

func TestStore_SetRejectsForeignDraft(t *testing.T) {
	store, _ := newTestStore(t)
	sess := New(Key{UserID: "U1"}, time.Now())
	sess.State = Qualify(FlowOrderQuery, "searching")
	sess.Draft = Draft{Booking: &BookingDraft{}}

	err := store.Set(context.Background(), sess)
	assert.Error(t, err)
}

func TestStore_CorruptRecordFailsClosed(t *testing.T) {
	store, backend := newTestStore(t)
	backend.items[Key{TenantID: "ktw", UserID: "U1"}] = []byte(`{"state":`)

	sess, err := store.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, sess.State)

	backend.items[Key{TenantID: "ktw", UserID: "U2"}] = []byte(`{"state":"booking.confirm","draft":{"order_query":{}}}`)
	sess, err = store.Get(context.Background(), "U2")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, sess.State)
}

func TestStore_DeleteAndListActive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"U2", "U1", "U3"} {
		_, err := store.Get(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, store.Delete(ctx, "U2"))
	require.NoError(t, store.Delete(ctx, "missing"))

	ids, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U3"}, ids)
}

func TestStore_LookupDoesNotCreate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Lookup(ctx, "U9")
	require.ErrorIs(t, err, ErrNotFound)
	ids, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = store.Get(ctx, "U9")
	require.NoError(t, err)
	sess, err := store.Lookup(ctx, "U9")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, sess.State)
}

func TestStore_ConcurrentSameUserSerializes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	const writers = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithLock(ctx, "U1", func(ctx context.Context) error {
				sess, err := store.Get(ctx, "U1")
				if err != nil {
					return err
				}
				if sess.Draft.Booking == nil {
					sess.State = Qualify(FlowBooking, "collect_count")
					sess.Draft = Draft{Booking: &BookingDraft{}}
				}
				sess.Draft.Booking.Count++
				return store.Set(ctx, sess)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := store.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, writers, sess.Draft.Booking.Count)
	assert.Zero(t, store.locks.size(), "lock entries should be released")
}

func TestStore_DifferentUsersDoNotBlock(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithLock(ctx, "U1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	done := make(chan struct{})
	go func() {
		_ = store.WithLock(ctx, "U2", func(context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for U2 blocked behind U1")
	}
	close(release)
}

func TestStore_WithLockHonorsContext(t *testing.T) {
	store, _ := newTestStore(t)
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithLock(context.Background(), "U1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.WithLock(ctx, "U1", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSession_StateHelpers(t *testing.T) {
	assert.Equal(t, FlowBooking, State("booking.collect_count").Flow())
	assert.Equal(t, "collect_count", State("booking.collect_count").Name())
	assert.Equal(t, FlowNone, StateIdle.Flow())
	assert.Equal(t, FlowNone, State("weather.ask").Flow())
	assert.True(t, State("").IsIdle())
}

func TestSession_CloneIsDeep(t *testing.T) {
	sess := New(Key{TenantID: "ktw", UserID: "U1"}, time.Now().UTC())
	sess.State = Qualify(FlowBooking, "collect_guest_info")
	sess.Draft.Booking = &BookingDraft{GuestName: "王小明"}
	sess.Pending = &PendingIntent{Intent: intent.OrderQuery, Message: "查訂單"}

	clone := sess.Clone()
	clone.Draft.Booking.GuestName = "changed"
	clone.Pending.Message = "changed"

	assert.Equal(t, "王小明", sess.Draft.Booking.GuestName)
	assert.Equal(t, "查訂單", sess.Pending.Message)
}

func TestDecode_RoundTripsNestedDraft(t *testing.T) {
	sess := New(Key{TenantID: "ktw", UserID: "U1"}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sess.State = Qualify(FlowBooking, "confirm")
	sess.Draft.Booking = &BookingDraft{Multi: true, TotalPrice: 6400, Phone: "0912345678"}

	data, err := Encode(sess)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}
