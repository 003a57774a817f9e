package repository

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/algolog/stats-service/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// RawArchiveRepository stores upstream payloads that failed to parse so the
// scraper can be fixed against the exact markup that broke it.
type RawArchiveRepository struct {
	client *minio.Client
	bucket string
	region string
	logger zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

func NewRawArchiveRepository(endpoint, accessKey, secretKey, bucket, region string, useSSL bool, logger zerolog.Logger) (*RawArchiveRepository, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	logger.Info().
		Str("endpoint", endpoint).
		Str("bucket", bucket).
		Bool("ssl", useSSL).
		Msg("Raw payload archive configured")

	return &RawArchiveRepository{
		client: client,
		bucket: bucket,
		region: region,
		logger: logger,
	}, nil
}

// ensureBucket is lazy so a MinIO outage never blocks startup.
func (r *RawArchiveRepository) ensureBucket(ctx context.Context) error {
	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()
	if r.bucketEnsured {
		return nil
	}

	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{Region: r.region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		r.logger.Info().Str("bucket", r.bucket).Msg("Created new bucket")
	}

	r.bucketEnsured = true
	return nil
}

func (r *RawArchiveRepository) Archive(ctx context.Context, attempt models.FetchAttempt, raw *models.RawResponse) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := r.ensureBucket(ctx); err != nil {
		return err
	}

	for name, body := range archiveBodies(raw) {
		key := archiveKey(attempt, name, raw.ContentType)
		info, err := r.client.PutObject(ctx, r.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
			ContentType: contentTypeOr(raw.ContentType),
			UserMetadata: map[string]string{
				"platform":    attempt.Platform.String(),
				"student-id":  attempt.StudentID,
				"handle":      attempt.Handle,
				"status-code": strconv.Itoa(raw.StatusCode),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to archive %s: %w", key, err)
		}

		r.logger.Info().
			Str("bucket", r.bucket).
			Str("key", key).
			Int64("size", info.Size).
			Msg("Archived unparseable payload")
	}
	return nil
}

func archiveBodies(raw *models.RawResponse) map[string][]byte {
	if len(raw.Parts) > 0 {
		return raw.Parts
	}
	return map[string][]byte{"": raw.Body}
}

// archiveKey lays objects out as parse-errors/<platform>/<date>/<student>-<attempt>[-part].<ext>.
func archiveKey(attempt models.FetchAttempt, part, contentType string) string {
	ext := "html"
	if strings.Contains(contentType, "json") {
		ext = "json"
	}
	name := attempt.StudentID + "-" + attempt.ID
	if part != "" {
		name += "-" + part
	}
	return fmt.Sprintf("parse-errors/%s/%s/%s.%s",
		attempt.Platform, attempt.StartedAt.UTC().Format("2006-01-02"), name, ext)
}

func contentTypeOr(ct string) string {
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
