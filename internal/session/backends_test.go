package session

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktwhotel/concierge/pkg/logging"
)

func bookingSession(userID string) *Session {
	s := New(Key{TenantID: "ktw", UserID: userID}, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	s.State = Qualify(FlowBooking, "collect_count")
	s.Draft.Booking = &BookingDraft{Prices: map[string]int{"SD": 2800}}
	return s
}

func TestRedisBackend_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackend(client, time.Hour, nil)
	ctx := context.Background()

	_, err := backend.Get(ctx, Key{TenantID: "ktw", UserID: "U1"})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, backend.Put(ctx, bookingSession("U1")))
	require.NoError(t, backend.Put(ctx, bookingSession("U2")))

	got, err := backend.Get(ctx, Key{TenantID: "ktw", UserID: "U1"})
	require.NoError(t, err)
	assert.Equal(t, Qualify(FlowBooking, "collect_count"), got.State)
	assert.False(t, got.UpdatedAt.IsZero())
	assert.Equal(t, time.Hour, mr.TTL("concierge:session:ktw:U1"))

	all, err := backend.List(ctx, "ktw")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "U1", all[0].UserID)

	require.NoError(t, backend.Delete(ctx, Key{TenantID: "ktw", UserID: "U1"}))
	assert.False(t, mr.Exists("concierge:session:ktw:U1"))
}

func TestRedisBackend_NoTTLKeepsSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackend(client, 0, nil)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, bookingSession("U1")))
	assert.Zero(t, mr.TTL("concierge:session:ktw:U1"))

	mr.FastForward(25 * time.Hour)
	got, err := backend.Get(ctx, Key{TenantID: "ktw", UserID: "U1"})
	require.NoError(t, err)
	assert.Equal(t, Qualify(FlowBooking, "collect_count"), got.State)
}

func TestRedisBackend_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackend(client, 0, nil)
	require.NoError(t, mr.Set("concierge:session:ktw:U1", "not json"))

	_, err := backend.Get(context.Background(), Key{TenantID: "ktw", UserID: "U1"})
	assert.ErrorIs(t, err, ErrCorrupt)

	all, err := backend.List(context.Background(), "ktw")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "U1", all[0].UserID)
	assert.True(t, all[0].Corrupt)
}

func TestPostgresBackend_PutUpserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO conversation_sessions").
		WithArgs("ktw", "U1", "booking.collect_count", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	backend := NewPostgresBackend(mock)
	sess := bookingSession("U1")
	require.NoError(t, backend.Put(context.Background(), sess))
	assert.False(t, sess.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackend_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	data, err := Encode(bookingSession("U1"))
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data").
		WithArgs("ktw", "U1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))
	mock.ExpectQuery("SELECT data").
		WithArgs("ktw", "U2").
		WillReturnError(pgx.ErrNoRows)

	backend := NewPostgresBackend(mock)
	got, err := backend.Get(context.Background(), Key{TenantID: "ktw", UserID: "U1"})
	require.NoError(t, err)
	assert.Equal(t, 2800, got.Draft.Booking.Prices["SD"])

	_, err = backend.Get(context.Background(), Key{TenantID: "ktw", UserID: "U2"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackend_ListKeepsCorruptRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	good, err := Encode(bookingSession("U1"))
	require.NoError(t, err)
	mock.ExpectQuery("SELECT user_id, data").
		WithArgs("ktw").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "data"}).
			AddRow("U1", good).
			AddRow("U2", []byte("{")))

	backend := NewPostgresBackend(mock)
	all, err := backend.List(context.Background(), "ktw")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[0].Corrupt)
	assert.Equal(t, "U2", all[1].UserID)
	assert.True(t, all[1].Corrupt)
	assert.True(t, all[1].UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackend_DeleteError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM conversation_sessions").
		WithArgs("ktw", "U1").
		WillReturnError(errors.New("connection reset"))

	backend := NewPostgresBackend(mock)
	err = backend.Delete(context.Background(), Key{TenantID: "ktw", UserID: "U1"})
	assert.ErrorContains(t, err, "connection reset")
}

func TestSQLiteBackend_SQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	data, err := Encode(bookingSession("U1"))
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO conversation_sessions").
		WithArgs("ktw", "U1", "booking.collect_count", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT data FROM conversation_sessions").
		WithArgs("ktw", "U1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(string(data)))
	mock.ExpectQuery("SELECT data FROM conversation_sessions").
		WithArgs("ktw", "U9").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	backend := NewSQLiteBackend(db)
	ctx := context.Background()
	require.NoError(t, backend.Put(ctx, bookingSession("U1")))

	got, err := backend.Get(ctx, Key{TenantID: "ktw", UserID: "U1"})
	require.NoError(t, err)
	assert.Equal(t, "U1", got.UserID)

	_, err = backend.Get(ctx, Key{TenantID: "ktw", UserID: "U9"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteBackend_File(t *testing.T) {
	backend, err := OpenSQLiteBackend(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer backend.Close()

	store := NewStore(backend, "ktw", logging.Discard())
	ctx := context.Background()

	sess, err := store.Get(ctx, "U1")
	require.NoError(t, err)
	sess.State = Qualify(FlowCancellation, "confirm")
	sess.Draft.Cancellation = &CancellationDraft{}
	sess.Draft.Cancellation.Booking.OrderID = "T-1"
	require.NoError(t, store.Set(ctx, sess))

	got, err := store.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "T-1", got.Draft.Cancellation.Booking.OrderID)

	ids, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, ids)
}

type mockDynamo struct {
	items     map[string]map[string]types.AttributeValue
	putErr    error
	queryCall int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func dynamoMapKey(key map[string]types.AttributeValue) string {
	tenant := key["tenantId"].(*types.AttributeValueMemberS).Value
	user := key["userId"].(*types.AttributeValueMemberS).Value
	return tenant + "|" + user
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.items[dynamoMapKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: m.items[dynamoMapKey(in.Key)]}, nil
}

func (m *mockDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(m.items, dynamoMapKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query returns one item per page to exercise pagination.
func (m *mockDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.queryCall++
	tenant := in.ExpressionAttributeValues[":tenant"].(*types.AttributeValueMemberS).Value
	var keys []string
	for k := range m.items {
		if len(k) > len(tenant) && k[:len(tenant)+1] == tenant+"|" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if in.ExclusiveStartKey != nil {
		last := dynamoMapKey(in.ExclusiveStartKey)
		for i, k := range keys {
			if k == last {
				start = i + 1
			}
		}
	}
	if start >= len(keys) {
		return &dynamodb.QueryOutput{}, nil
	}
	item := m.items[keys[start]]
	out := &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}
	if start+1 < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"tenantId": item["tenantId"],
			"userId":   item["userId"],
		}
	}
	return out, nil
}

func TestDynamoBackend_RoundTripAndPagination(t *testing.T) {
	mock := newMockDynamo()
	backend := NewDynamoBackend(mock, "conversation_sessions", time.Hour, logging.Discard())
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, bookingSession("U1")))
	require.NoError(t, backend.Put(ctx, bookingSession("U2")))

	var stored dynamoItem
	require.NoError(t, attributevalue.UnmarshalMap(mock.items["ktw|U1"], &stored))
	assert.Equal(t, "booking.collect_count", stored.State)
	assert.Greater(t, stored.ExpiresAt, time.Now().Unix())

	got, err := backend.Get(ctx, Key{TenantID: "ktw", UserID: "U2"})
	require.NoError(t, err)
	assert.Equal(t, "U2", got.UserID)

	all, err := backend.List(ctx, "ktw")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, mock.queryCall)

	require.NoError(t, backend.Delete(ctx, Key{TenantID: "ktw", UserID: "U1"}))
	_, err = backend.Get(ctx, Key{TenantID: "ktw", UserID: "U1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoBackend_NoTTLOmitsExpiry(t *testing.T) {
	mock := newMockDynamo()
	backend := NewDynamoBackend(mock, "conversation_sessions", 0, logging.Discard())

	require.NoError(t, backend.Put(context.Background(), bookingSession("U1")))
	_, ok := mock.items["ktw|U1"]["expiresAt"]
	assert.False(t, ok)
}

func TestDynamoBackend_PutError(t *testing.T) {
	mock := newMockDynamo()
	mock.putErr = errors.New("throttled")
	backend := NewDynamoBackend(mock, "conversation_sessions", 0, nil)

	err := backend.Put(context.Background(), bookingSession("U1"))
	assert.ErrorContains(t, err, "throttled")
}
