package notify

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
)

// captureWebhook returns a test server that decodes each posted payload
// onto the channel.
func captureWebhook(t *testing.T, status int) (*httptest.Server, <-chan WebhookPayload) {
	t.Helper()
	got := make(chan WebhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var payload WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		got <- payload
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestSendWebhookSkipsEmptyURL(t *testing.T) {
	assert.NoError(t, SendNoiseWebhook("", -12.0, -30.0))
}

func TestSendNoiseWebhook(t *testing.T) {
	srv, got := captureWebhook(t, http.StatusOK)

	require.NoError(t, SendNoiseWebhook(srv.URL, -12.5, -30.0))

	payload := <-got
	assert.Equal(t, "noise_detected", payload.Event)
	assert.InDelta(t, -12.5, payload.LevelDB, 1e-9)
	assert.InDelta(t, -30.0, payload.ThresholdDB, 1e-9)
	assert.NotEmpty(t, payload.Timestamp)
	assert.Empty(t, payload.AudioClipBase64)
}

func TestSendRecoveryWebhookEmbedsClip(t *testing.T) {
	srv, got := captureWebhook(t, http.StatusOK)

	content := []byte("RIFF fake wav bytes")
	path := filepath.Join(t.TempDir(), "noise-2026-01-02T15-04-05.wav")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	clip := &clips.ClipResult{
		FilePath: path,
		Filename: filepath.Base(path),
		FileSize: int64(len(content)),
	}
	require.NoError(t, SendRecoveryWebhook(srv.URL, 4200, -35.0, -8.2, -30.0, clip))

	payload := <-got
	assert.Equal(t, "noise_ended", payload.Event)
	assert.Equal(t, int64(4200), payload.NoiseDurationMs)
	assert.InDelta(t, -8.2, payload.PeakDB, 1e-9)
	assert.Equal(t, clip.Filename, payload.AudioClipFilename)
	assert.Equal(t, clip.FileSize, payload.AudioClipSizeBytes)
	assert.Empty(t, payload.AudioClipError)

	decoded, err := base64.StdEncoding.DecodeString(payload.AudioClipBase64)
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestSendRecoveryWebhookReportsClipError(t *testing.T) {
	srv, got := captureWebhook(t, http.StatusOK)

	clip := &clips.ClipResult{
		Filename: "noise-broken.wav",
		Error:    errors.New("encode failed"),
	}
	require.NoError(t, SendRecoveryWebhook(srv.URL, 1000, -35.0, -8.2, -30.0, clip))

	payload := <-got
	assert.Equal(t, "encode failed", payload.AudioClipError)
	assert.Empty(t, payload.AudioClipBase64)
}

func TestSendRecoveryWebhookWithoutClip(t *testing.T) {
	srv, got := captureWebhook(t, http.StatusOK)

	require.NoError(t, SendRecoveryWebhook(srv.URL, 1000, -35.0, -8.2, -30.0, nil))

	payload := <-got
	assert.Empty(t, payload.AudioClipFilename)
	assert.Empty(t, payload.AudioClipBase64)
	assert.Empty(t, payload.AudioClipError)
}

func TestAttachClipTooLarge(t *testing.T) {
	clip := &clips.ClipResult{
		Filename: "noise-huge.wav",
		FileSize: maxWebhookClipBytes + 1,
	}
	var payload WebhookPayload
	attachClip(&payload, clip)

	assert.Equal(t, fmt.Sprintf("clip too large to embed (%d bytes)", clip.FileSize), payload.AudioClipError)
	assert.Empty(t, payload.AudioClipBase64)
	assert.Equal(t, clip.FileSize, payload.AudioClipSizeBytes)
}

func TestSendWebhookRejectsErrorStatus(t *testing.T) {
	srv, _ := captureWebhook(t, http.StatusInternalServerError)

	err := SendTestWebhook(srv.URL, "Test FM")
	assert.ErrorContains(t, err, "webhook returned status 500")
}
