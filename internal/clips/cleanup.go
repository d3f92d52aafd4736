package clips

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// clipFilePrefix identifies files this package owns; cleanup never touches
// anything else in the directory.
const clipFilePrefix = "noise-"

const (
	// cleanupHour is the local hour of day the nightly sweep runs at.
	cleanupHour = 3

	s3CleanupTimeout = 5 * time.Minute
)

// nextCleanupRun returns the next cleanupHour local time after now.
func nextCleanupRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), cleanupHour, 0, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// startCleanupScheduler fires RunCleanup every night at cleanupHour.
func (s *Store) startCleanupScheduler() {
	go func() {
		for {
			next := nextCleanupRun(time.Now())
			slog.Info("clip cleanup scheduler: next run scheduled", "at", next.Format(time.DateTime))

			select {
			case <-time.After(time.Until(next)):
				s.RunCleanup()
			case <-s.cleanupStopCh:
				slog.Info("clip cleanup scheduler stopped")
				return
			}
		}
	}()
}

// RunCleanup deletes clips older than the configured retention.
func (s *Store) RunCleanup() {
	cfg := s.Config()

	// Retention 0 means keep forever
	if cfg.RetentionDays == 0 {
		return
	}

	slog.Info("clip cleanup: starting", "retention_days", cfg.RetentionDays)
	cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)

	var localDeleted, s3Deleted int
	if cfg.StorageMode == types.ClipStorageLocal || cfg.StorageMode == types.ClipStorageBoth {
		localDeleted = s.cleanupLocalFiles(cfg.directory(), cutoff)
	}
	if cfg.StorageMode == types.ClipStorageS3 || cfg.StorageMode == types.ClipStorageBoth {
		s3Deleted = s.cleanupS3Files(cfg.S3.Bucket, cutoff)
	}

	s.logCleanupEvent(cfg, localDeleted, s3Deleted)
	slog.Info("clip cleanup: completed", "local_deleted", localDeleted, "s3_deleted", s3Deleted)
}

func (s *Store) logCleanupEvent(cfg StoreConfig, localDeleted, s3Deleted int) {
	if s.events == nil || localDeleted+s3Deleted == 0 {
		return
	}
	storageType := "local"
	if s3Deleted > 0 && localDeleted == 0 {
		storageType = "s3"
	}
	if err := s.events.LogClip(eventlog.CleanupCompleted, "", string(cfg.StorageMode), "", "", 0, localDeleted+s3Deleted, storageType); err != nil {
		slog.Warn("failed to write cleanup event", "error", err)
	}
}

// clipExpired reports whether name is a dated clip older than cutoff.
func clipExpired(name string, cutoff time.Time) bool {
	if !strings.HasPrefix(name, clipFilePrefix) {
		return false
	}
	fileDate, ok := extractDateFromFilename(name)
	return ok && fileDate.Before(cutoff)
}

// cleanupLocalFiles removes local clips dated before cutoff.
func (s *Store) cleanupLocalFiles(dir string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("clip cleanup: failed to read directory", "path", dir, "error", err)
		}
		return 0
	}

	var deleted int
	for _, entry := range entries {
		if entry.IsDir() || !clipExpired(entry.Name(), cutoff) {
			continue
		}

		filePath := filepath.Join(dir, entry.Name())
		if err := os.Remove(filePath); err != nil {
			slog.Warn("clip cleanup: failed to delete file", "path", filePath, "error", err)
			continue
		}
		deleted++
		slog.Debug("clip cleanup: deleted file", "file", entry.Name())
	}

	if deleted > 0 {
		slog.Info("clip cleanup: deleted local clips", "count", deleted)
	}
	return deleted
}

// cleanupS3Files removes S3 clips dated before cutoff.
func (s *Store) cleanupS3Files(bucket string, cutoff time.Time) int {
	if bucket == "" {
		return 0
	}

	client, err := s.getOrCreateS3Client()
	if err != nil || client == nil {
		slog.Warn("clip cleanup: no S3 client available", "error", err)
		return 0
	}

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		s3CleanupTimeout,
		errors.New("s3 cleanup timeout"),
	)
	defer cancel()

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(s3Prefix),
	})

	var deleted int
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Warn("clip cleanup: failed to list S3 objects", "bucket", bucket, "error", err)
			return deleted
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !clipExpired(filepath.Base(key), cutoff) {
				continue
			}

			_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(bucket),
				Key:    obj.Key,
			})
			if err != nil {
				slog.Warn("clip cleanup: failed to delete S3 object", "key", key, "error", err)
				continue
			}
			deleted++
			slog.Debug("clip cleanup: deleted S3 object", "key", key)
		}
	}

	if deleted > 0 {
		slog.Info("clip cleanup: deleted S3 clips", "count", deleted)
	}
	return deleted
}

// extractDateFromFilename extracts the date from a filename like "noise-2025-01-15_14-32-05.wav".
func extractDateFromFilename(filename string) (time.Time, bool) {
	matches := datePattern.FindStringSubmatch(filename)
	if len(matches) < 2 {
		return time.Time{}, false
	}

	date, err := time.Parse(time.DateOnly, matches[1])
	if err != nil {
		return time.Time{}, false
	}

	return date, true
}
