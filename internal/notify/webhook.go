package notify

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

const (
	webhookTimeout = 10 * time.Second

	// maxWebhookClipBytes caps the clip size embedded in a webhook payload.
	// Larger clips are referenced by filename only.
	maxWebhookClipBytes = 8 * 1024 * 1024
)

// WebhookPayload is the JSON body sent to the configured webhook URL.
type WebhookPayload struct {
	Event           string  `json:"event"`
	NoiseDurationMs int64   `json:"noise_duration_ms,omitempty"`
	LevelDB         float64 `json:"level_db,omitempty"`
	PeakDB          float64 `json:"peak_db,omitempty"`
	ThresholdDB     float64 `json:"threshold_db,omitempty"`
	Message         string  `json:"message,omitempty"`
	Timestamp       string  `json:"timestamp"`

	// Audio clip of the episode, present on noise_ended when clips are
	// enabled and the recording succeeded.
	AudioClipBase64    string `json:"audio_clip_base64,omitempty"`
	AudioClipFilename  string `json:"audio_clip_filename,omitempty"`
	AudioClipSizeBytes int64  `json:"audio_clip_size_bytes,omitempty"`
	AudioClipError     string `json:"audio_clip_error,omitempty"`
}

// SendNoiseWebhook notifies the webhook that a noise episode started.
func SendNoiseWebhook(url string, levelDB, thresholdDB float64) error {
	return sendWebhook(url, WebhookPayload{
		Event:       "noise_detected",
		LevelDB:     levelDB,
		ThresholdDB: thresholdDB,
		Timestamp:   timestampUTC(),
	})
}

// SendRecoveryWebhook notifies the webhook that a noise episode ended,
// attaching the recorded clip when one is available.
func SendRecoveryWebhook(url string, durationMs int64, levelDB, peakDB, thresholdDB float64, clip *clips.ClipResult) error {
	payload := WebhookPayload{
		Event:           "noise_ended",
		NoiseDurationMs: durationMs,
		LevelDB:         levelDB,
		PeakDB:          peakDB,
		ThresholdDB:     thresholdDB,
		Timestamp:       timestampUTC(),
	}
	attachClip(&payload, clip)
	return sendWebhook(url, payload)
}

// SendTestWebhook sends a test notification to verify the webhook works.
func SendTestWebhook(url, stationName string) error {
	return sendWebhook(url, WebhookPayload{
		Event:     "test",
		Message:   fmt.Sprintf("Test notification from %s (%s)", AppName, stationName),
		Timestamp: timestampUTC(),
	})
}

// attachClip fills the audio clip fields of a payload from a clip result.
func attachClip(payload *WebhookPayload, clip *clips.ClipResult) {
	if clip == nil {
		return
	}
	payload.AudioClipFilename = clip.Filename
	payload.AudioClipSizeBytes = clip.FileSize
	if clip.Error != nil {
		payload.AudioClipError = clip.Error.Error()
		return
	}
	if clip.FileSize > maxWebhookClipBytes {
		payload.AudioClipError = fmt.Sprintf("clip too large to embed (%d bytes)", clip.FileSize)
		return
	}
	data, err := os.ReadFile(clip.FilePath)
	if err != nil {
		slog.Warn("failed to read clip for webhook", "path", clip.FilePath, "error", err)
		payload.AudioClipError = err.Error()
		return
	}
	payload.AudioClipBase64 = base64.StdEncoding.EncodeToString(data)
}

// sendWebhook posts a payload to the webhook URL. An empty URL is silently
// skipped so callers do not need to check configuration.
func sendWebhook(url string, payload WebhookPayload) error {
	if !util.IsConfigured(url) {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal webhook payload", err)
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return util.WrapError("send webhook", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close webhook response", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
