package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktwhotel/concierge/internal/session"
	"github.com/ktwhotel/concierge/pkg/logging"
)

type putCall struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

type mockS3Client struct {
	puts []putCall
	err  error
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, _ := io.ReadAll(input.Body)
	m.puts = append(m.puts, putCall{
		bucket:      *input.Bucket,
		key:         *input.Key,
		contentType: *input.ContentType,
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func TestStore_ArchiveSession(t *testing.T) {
	mock := &mockS3Client{}
	store := NewStore(mock, "sessions-bucket", logging.Discard())
	fixed := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	sess := session.New(session.Key{TenantID: "ktw_hotel", UserID: "U1"}, fixed.Add(-time.Hour))
	sess.State = session.Qualify(session.FlowBooking, "collect_info")

	require.NoError(t, store.ArchiveSession(context.Background(), sess))
	require.Len(t, mock.puts, 1)

	put := mock.puts[0]
	assert.Equal(t, "sessions-bucket", put.bucket)
	assert.Equal(t, "sessions/v1/ktw_hotel/2025/06/01/U1-1748788200.json", put.key)
	assert.Equal(t, "application/json", put.contentType)

	var rec Record
	require.NoError(t, json.Unmarshal(put.body, &rec))
	assert.Equal(t, "booking.collect_info", rec.State)
	assert.Equal(t, "booking", rec.Flow)
	assert.True(t, fixed.Equal(rec.ArchivedAt))
	require.NotNil(t, rec.Session)
	assert.Equal(t, "U1", rec.Session.UserID)
}

func TestStore_Disabled(t *testing.T) {
	var nilStore *Store
	assert.False(t, nilStore.Enabled())
	assert.NoError(t, nilStore.ArchiveSession(context.Background(), &session.Session{}))

	mock := &mockS3Client{}
	store := NewStore(mock, " ", nil)
	assert.False(t, store.Enabled())
	assert.NoError(t, store.ArchiveSession(context.Background(), &session.Session{UserID: "U1"}))
	assert.Empty(t, mock.puts)
}

func TestStore_PutFailure(t *testing.T) {
	store := NewStore(&mockS3Client{err: errors.New("AccessDenied")}, "bucket", logging.Discard())
	err := store.ArchiveSession(context.Background(), &session.Session{TenantID: "ktw_hotel", UserID: "U1"})
	assert.ErrorContains(t, err, "AccessDenied")
}
