package clips

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

const (
	// MaxUploadRetryAge is how long a failed upload is retried before
	// being abandoned.
	MaxUploadRetryAge = 24 * time.Hour

	// retryInterval is how often the retry queue is processed.
	retryInterval = 15 * time.Minute

	// uploadTimeout bounds a single S3 PutObject call.
	uploadTimeout = 5 * time.Minute

	// uploadQueueSize bounds the number of clips waiting for upload.
	uploadQueueSize = 16

	// s3Prefix is the key prefix for uploaded clips.
	s3Prefix = "clips/"

	// clipContentType is the MIME type for uploaded clips.
	clipContentType = "audio/wav"
)

// datePattern matches the date in a clip filename: noise-YYYY-MM-DD_HH-MM-SS.wav
var datePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// S3Config holds the credentials and endpoint for clip uploads.
type S3Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// IsConfigured reports whether all required S3 fields are set.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// StoreConfig holds the storage settings for finished clips.
type StoreConfig struct {
	Enabled       bool
	Directory     string
	StorageMode   types.ClipStorage
	RetentionDays int
	S3            S3Config
}

// Directory returns the effective local clip directory.
func (c *StoreConfig) directory() string {
	if c.Directory == "" {
		return DefaultDir()
	}
	return c.Directory
}

// createS3Client builds an S3 client for the configured endpoint.
func createS3Client(cfg *S3Config) (*s3.Client, error) {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...), nil
}

// TestS3Connection round-trips a small object to prove the bucket works.
func TestS3Connection(cfg *S3Config) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("S3 is not configured")
	}

	client, err := createS3Client(cfg)
	if err != nil {
		return fmt.Errorf("create S3 client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30000*time.Millisecond)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("ZuidWest FM noisewatch connection test")

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}

type uploadRequest struct {
	localPath string
	s3Key     string
	fileSize  int64
}

type pendingUpload struct {
	request      uploadRequest
	firstAttempt time.Time
	retryCount   int
	lastError    string
}

// AbandonedUpload describes an upload given up on after exhausting retries.
type AbandonedUpload struct {
	Filename   string
	S3Key      string
	RetryCount int
	LastError  string
}

// AbandonedCallback is invoked when an upload is abandoned, so the caller
// can alert an operator.
type AbandonedCallback func(info AbandonedUpload)

// Store persists finished clips according to the configured storage mode,
// uploads them to S3 when asked to, and deletes clips past retention.
type Store struct {
	mu  sync.RWMutex
	cfg StoreConfig

	// S3 client is rebuilt when the credentials it was built from change.
	s3Client    *s3.Client
	s3Signature string

	uploadQueue  chan uploadRequest
	uploadStopCh chan struct{}
	uploadWg     sync.WaitGroup
	retryQueue   []pendingUpload

	cleanupStopCh chan struct{}

	events      *eventlog.Logger
	onAbandoned AbandonedCallback
}

// NewStore creates a clip store. events and onAbandoned may be nil.
func NewStore(cfg StoreConfig, events *eventlog.Logger, onAbandoned AbandonedCallback) *Store {
	return &Store{
		cfg:           cfg,
		uploadQueue:   make(chan uploadRequest, uploadQueueSize),
		uploadStopCh:  make(chan struct{}),
		cleanupStopCh: make(chan struct{}),
		events:        events,
		onAbandoned:   onAbandoned,
	}
}

// Start launches the upload worker and the daily cleanup scheduler.
func (s *Store) Start() {
	s.uploadWg.Add(1)
	go s.uploadWorker()
	s.startCleanupScheduler()
}

// Stop shuts down the workers, draining any queued uploads first.
func (s *Store) Stop() {
	close(s.uploadStopCh)
	close(s.cleanupStopCh)
	s.uploadWg.Wait()
}

// UpdateConfig swaps the storage settings. An in-flight upload finishes
// with the settings it started with.
func (s *Store) UpdateConfig(cfg StoreConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Config returns a copy of the current storage settings.
func (s *Store) Config() StoreConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Settings returns the status representation of the store configuration.
func (s *Store) Settings() types.ClipSettings {
	cfg := s.Config()
	return types.ClipSettings{
		Enabled:       cfg.Enabled,
		Directory:     cfg.directory(),
		RetentionDays: cfg.RetentionDays,
		Storage:       cfg.StorageMode,
	}
}

// HandleClip files a finished clip: logs it and queues the S3 upload when
// the storage mode asks for one. Called from the capturer's callback
// goroutine.
func (s *Store) HandleClip(result *ClipResult) {
	cfg := s.Config()

	if result.Error != nil {
		slog.Error("clip encoding failed", "error", result.Error)
		s.logClipEvent(eventlog.ClipSaved, result.Filename, cfg, "", result.Error.Error())
		return
	}

	s.logClipEvent(eventlog.ClipSaved, result.Filename, cfg, "", "")

	if cfg.StorageMode == types.ClipStorageS3 || cfg.StorageMode == types.ClipStorageBoth {
		s.queueUpload(result)
	}
}

// queueUpload hands a clip to the upload worker without blocking.
func (s *Store) queueUpload(result *ClipResult) {
	req := uploadRequest{
		localPath: result.FilePath,
		s3Key:     s3Prefix + result.Filename,
		fileSize:  result.FileSize,
	}

	select {
	case s.uploadQueue <- req:
		slog.Info("queued clip for upload", "file", result.Filename)
		s.logClipEvent(eventlog.UploadQueued, result.Filename, s.Config(), req.s3Key, "")
	default:
		slog.Warn("upload queue full, dropping clip upload", "file", result.Filename)
	}
}

// uploadWorker feeds queued clips to S3 and runs the retry sweep.
func (s *Store) uploadWorker() {
	defer s.uploadWg.Done()

	retryTicker := time.NewTicker(retryInterval)
	defer retryTicker.Stop()

	for {
		select {
		case <-s.uploadStopCh:
			// Flush whatever is still queued, then exit.
			for {
				select {
				case req := <-s.uploadQueue:
					s.uploadFile(req)
				default:
					return
				}
			}
		case req := <-s.uploadQueue:
			s.uploadFile(req)
		case <-retryTicker.C:
			s.processRetryQueue()
		}
	}
}

// getOrCreateS3Client returns the cached client, rebuilding it when the
// configuration it was built from has changed.
func (s *Store) getOrCreateS3Client() (*s3.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s3cfg := s.cfg.S3
	if !s3cfg.IsConfigured() {
		return nil, nil
	}

	signature := s3cfg.Endpoint + "|" + s3cfg.Bucket + "|" + s3cfg.AccessKeyID + "|" + s3cfg.SecretAccessKey
	if s.s3Client != nil && s.s3Signature == signature {
		return s.s3Client, nil
	}

	client, err := createS3Client(&s3cfg)
	if err != nil {
		return nil, err
	}
	s.s3Client = client
	s.s3Signature = signature
	return client, nil
}

// uploadFile uploads to S3 and deletes the local file in S3-only mode.
func (s *Store) uploadFile(req uploadRequest) {
	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		uploadTimeout,
		errors.New("s3 upload timeout"),
	)
	defer cancel()

	file, err := os.Open(req.localPath)
	if err != nil {
		slog.Error("failed to open clip for upload", "path", req.localPath, "error", err)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close clip after upload", "error", err)
		}
	}()

	client, err := s.getOrCreateS3Client()
	if err != nil {
		slog.Error("failed to create S3 client", "error", err)
		return
	}
	if client == nil {
		slog.Warn("no S3 client available, clip stays local", "file", filepath.Base(req.localPath))
		return
	}

	cfg := s.Config()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.S3.Bucket),
		Key:           aws.String(req.s3Key),
		Body:          file,
		ContentLength: aws.Int64(req.fileSize),
		ContentType:   aws.String(clipContentType),
	})

	if err != nil {
		slog.Error("clip upload failed", "s3_key", req.s3Key, "error", err)
		s.logClipEvent(eventlog.UploadFailed, filepath.Base(req.localPath), cfg, req.s3Key, err.Error())
		s.addToRetryQueue(req, err.Error())
		return
	}

	slog.Info("clip upload completed", "s3_key", req.s3Key)
	s.logClipEvent(eventlog.UploadCompleted, filepath.Base(req.localPath), cfg, req.s3Key, "")

	// In S3-only mode the local copy goes away once the upload lands; in
	// "both" mode it stays until retention cleanup.
	if cfg.StorageMode == types.ClipStorageS3 {
		if err := os.Remove(req.localPath); err != nil {
			slog.Warn("failed to delete clip after upload", "path", req.localPath, "error", err)
		} else {
			slog.Debug("deleted clip after upload", "path", req.localPath)
		}
	}
}

// addToRetryQueue records a failed upload for the next retry sweep.
func (s *Store) addToRetryQueue(req uploadRequest, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// One pending entry per file.
	for _, p := range s.retryQueue {
		if p.request.localPath == req.localPath {
			return
		}
	}

	s.retryQueue = append(s.retryQueue, pendingUpload{
		request:      req,
		firstAttempt: time.Now(),
		retryCount:   0,
		lastError:    errMsg,
	})

	slog.Info("clip upload queued for retry", "file", filepath.Base(req.localPath))
}

// processRetryQueue retries every pending upload, abandoning stale ones.
func (s *Store) processRetryQueue() {
	s.mu.Lock()
	if len(s.retryQueue) == 0 {
		s.mu.Unlock()
		return
	}

	// Work on a copy so the lock is not held across uploads.
	pending := make([]pendingUpload, len(s.retryQueue))
	copy(pending, s.retryQueue)
	s.retryQueue = nil
	s.mu.Unlock()

	now := time.Now()

	for i := range pending {
		p := &pending[i]

		if now.Sub(p.firstAttempt) > MaxUploadRetryAge {
			slog.Warn("clip upload abandoned after 24h",
				"file", filepath.Base(p.request.localPath),
				"attempts", p.retryCount+1)
			s.logRetryEvent(eventlog.UploadAbandoned, p, "exceeded 24h retry limit")
			if s.onAbandoned != nil {
				s.onAbandoned(AbandonedUpload{
					Filename:   filepath.Base(p.request.localPath),
					S3Key:      p.request.s3Key,
					RetryCount: p.retryCount,
					LastError:  p.lastError,
				})
			}
			continue
		}

		p.retryCount++
		slog.Info("retrying clip upload",
			"file", filepath.Base(p.request.localPath),
			"attempt", p.retryCount)
		s.logRetryEvent(eventlog.UploadRetry, p, "")

		if !s.retryUpload(p) {
			s.mu.Lock()
			s.retryQueue = append(s.retryQueue, *p)
			s.mu.Unlock()
		}
	}
}

// retryUpload reattempts one upload, reporting success.
func (s *Store) retryUpload(p *pendingUpload) bool {
	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		uploadTimeout,
		errors.New("s3 upload timeout"),
	)
	defer cancel()

	file, err := os.Open(p.request.localPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("retry clip no longer exists", "path", p.request.localPath)
			return true // Nothing to upload
		}
		p.lastError = err.Error()
		return false
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close clip after retry", "error", err)
		}
	}()

	client, err := s.getOrCreateS3Client()
	if err != nil || client == nil {
		if err != nil {
			p.lastError = err.Error()
		}
		return false
	}

	cfg := s.Config()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.S3.Bucket),
		Key:           aws.String(p.request.s3Key),
		Body:          file,
		ContentLength: aws.Int64(p.request.fileSize),
		ContentType:   aws.String(clipContentType),
	})

	if err != nil {
		p.lastError = err.Error()
		slog.Error("clip retry upload failed", "s3_key", p.request.s3Key, "error", err)
		s.logClipEvent(eventlog.UploadFailed, filepath.Base(p.request.localPath), cfg, p.request.s3Key, err.Error())
		return false
	}

	slog.Info("clip retry upload completed", "s3_key", p.request.s3Key)
	s.logClipEvent(eventlog.UploadCompleted, filepath.Base(p.request.localPath), cfg, p.request.s3Key, "")

	if cfg.StorageMode == types.ClipStorageS3 {
		if err := os.Remove(p.request.localPath); err != nil {
			slog.Warn("failed to delete clip after retry upload", "path", p.request.localPath, "error", err)
		}
	}

	return true
}

func (s *Store) logClipEvent(eventType eventlog.EventType, filename string, cfg StoreConfig, s3Key, errMsg string) {
	if s.events == nil {
		return
	}
	if err := s.events.LogClip(eventType, filename, string(cfg.StorageMode), s3Key, errMsg, 0, 0, ""); err != nil {
		slog.Warn("failed to write clip event", "error", err)
	}
}

func (s *Store) logRetryEvent(eventType eventlog.EventType, p *pendingUpload, errMsg string) {
	if s.events == nil {
		return
	}
	cfg := s.Config()
	if err := s.events.LogClip(eventType, filepath.Base(p.request.localPath), string(cfg.StorageMode), p.request.s3Key, errMsg, p.retryCount, 0, ""); err != nil {
		slog.Warn("failed to write clip event", "error", err)
	}
}
