// Package archive keeps a copy of expired conversation sessions in S3 so the
// front desk can review abandoned bookings after the sweeper removes them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ktwhotel/concierge/internal/session"
	"github.com/ktwhotel/concierge/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Record is the archived document.
type Record struct {
	TenantID   string           `json:"tenant_id"`
	UserID     string           `json:"user_id"`
	State      string           `json:"state"`
	Flow       string           `json:"flow,omitempty"`
	LastActive time.Time        `json:"last_active"`
	ArchivedAt time.Time        `json:"archived_at"`
	Session    *session.Session `json:"session"`
}

// Store writes expired sessions to a bucket. A nil Store or empty bucket
// turns every call into a no-op.
type Store struct {
	bucket string
	client S3API
	now    func() time.Time
	logger *logging.Logger
}

func NewStore(client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket: strings.TrimSpace(bucket),
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Enabled reports whether archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.client != nil
}

// Key is where a session expiring at t is stored.
func Key(tenantID, userID string, t time.Time) string {
	return fmt.Sprintf("sessions/v1/%s/%d/%02d/%02d/%s-%d.json",
		tenantID, t.Year(), t.Month(), t.Day(), userID, t.Unix())
}

// ArchiveSession uploads one session as JSON.
func (s *Store) ArchiveSession(ctx context.Context, sess *session.Session) error {
	if !s.Enabled() || sess == nil {
		return nil
	}
	now := s.now()
	rec := Record{
		TenantID:   sess.TenantID,
		UserID:     sess.UserID,
		State:      string(sess.State),
		Flow:       string(sess.Flow()),
		LastActive: sess.UpdatedAt,
		ArchivedAt: now,
		Session:    sess,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: marshal session: %w", err)
	}

	key := Key(sess.TenantID, sess.UserID, now)
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archived expired session", "user_id", sess.UserID, "state", rec.State, "s3_key", key)
	return nil
}
