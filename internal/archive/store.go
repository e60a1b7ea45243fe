package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/creditsales-ai-platform/internal/conversation"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store writes finished sessions to S3 as one JSON object each, plus a
// daily JSONL manifest.
type Store struct {
	bucket string
	client S3API
	logger *logging.Logger
	now    func() time.Time
}

// NewStore returns a Store. With an empty bucket every call is a no-op.
func NewStore(client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket: bucket,
		client: client,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.client != nil
}

// ArchiveSession satisfies conversation.SessionArchiver.
func (s *Store) ArchiveSession(ctx context.Context, session conversation.Session, reason string) error {
	if !s.Enabled() {
		return nil
	}
	rec := NewSessionRecord(session, reason, s.now())
	key, err := s.put(ctx, rec)
	if err != nil {
		return err
	}
	s.logger.Info("archived session", "s3_key", key, "final_phase", rec.FinalPhase, "reason", reason)

	entry := ManifestEntry{
		Key:          key,
		CustomerHash: rec.CustomerHash,
		FinalPhase:   rec.FinalPhase,
		Reason:       reason,
		ArchivedAt:   rec.ArchivedAt,
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		// The record itself is already stored.
		s.logger.Warn("failed to append archive manifest", "s3_key", key, "error", err)
	}
	return nil
}

// NewSessionRecord strips a session down to its archivable fields.
func NewSessionRecord(session conversation.Session, reason string, at time.Time) SessionRecord {
	phase := string(conversation.PhaseGreeting)
	if session.Phase != nil {
		phase = string(session.Phase.Kind())
	}
	meta := session.Metadata
	return SessionRecord{
		Version:        recordVersion,
		CustomerHash:   HashCustomerKey(session.CustomerKey),
		Reason:         reason,
		FinalPhase:     phase,
		Segment:        meta.Segment,
		Credit:         meta.Credit,
		NSE:            meta.NSE,
		AgeVerified:    meta.AgeVerified,
		LastCategory:   meta.LastCategory,
		DNIAttempts:    len(meta.AttemptedDNIs),
		StartedAt:      meta.CreatedAt,
		LastActivityAt: meta.LastActivityAt,
		ArchivedAt:     at,
	}
}

func (s *Store) put(ctx context.Context, rec SessionRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("archive: marshal record: %w", err)
	}
	at := rec.ArchivedAt
	key := fmt.Sprintf("sessions/v%d/by-date/%d/%02d/%02d/%s-%d.json",
		recordVersion, at.Year(), at.Month(), at.Day(), rec.CustomerHash[:16], at.Unix())

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	return key, nil
}

// AppendManifest adds a JSONL line to the day's manifest. S3 has no append,
// so this is read-modify-write; concurrent writers can lose a line.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	at := entry.ArchivedAt
	key := fmt.Sprintf("sessions/v%d/manifests/%d-%02d-%02d.jsonl", recordVersion, at.Year(), at.Month(), at.Day())

	var buf bytes.Buffer
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		_, readErr := io.Copy(&buf, resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("archive: read manifest: %w", readErr)
		}
		if n := buf.Len(); n > 0 && buf.Bytes()[n-1] != '\n' {
			buf.WriteByte('\n')
		}
	case isNotFound(err):
	default:
		return fmt.Errorf("archive: get manifest: %w", err)
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	return errors.As(err, &nf)
}
