package notify

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
)

func newTestNotifier(t *testing.T) (*NoiseNotifier, *config.Config) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Load())
	return NewNoiseNotifier(cfg), cfg
}

func TestBuildGraphConfig(t *testing.T) {
	snap := config.Snapshot{
		GraphTenantID:     "tenant",
		GraphClientID:     "client",
		GraphClientSecret: "secret",
		GraphFromAddress:  "from@example.com",
		GraphRecipients:   "a@example.com,b@example.com",
	}

	got := BuildGraphConfig(snap)
	assert.Equal(t, "tenant", got.TenantID)
	assert.Equal(t, "client", got.ClientID)
	assert.Equal(t, "secret", got.ClientSecret)
	assert.Equal(t, "from@example.com", got.FromAddress)
	assert.Equal(t, "a@example.com,b@example.com", got.Recipients)
}

func TestBuildZabbixConfig(t *testing.T) {
	snap := config.Snapshot{
		ZabbixServer: "zabbix.example.com",
		ZabbixPort:   10051,
		ZabbixHost:   "studio-pc",
		ZabbixKey:    "noise.alert",
	}

	got := BuildZabbixConfig(snap)
	assert.Equal(t, "zabbix.example.com", got.Server)
	assert.Equal(t, 10051, got.Port)
	assert.Equal(t, "studio-pc", got.Host)
	assert.Equal(t, "noise.alert", got.Key)
}

func TestTrySendLatchesPerEpisode(t *testing.T) {
	n, _ := newTestNotifier(t)
	fired := make(chan struct{}, 2)

	n.trySend(&n.webhookSent, true, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("first send did not fire")
	}
	assert.True(t, n.webhookSent)

	// Latched: the same episode never sends twice.
	n.trySend(&n.webhookSent, true, func() { fired <- struct{}{} })
	select {
	case <-fired:
		t.Fatal("latched send fired again")
	case <-time.After(100 * time.Millisecond):
	}

	// An unmet condition neither fires nor latches.
	n.trySend(&n.emailSent, false, func() { fired <- struct{}{} })
	assert.False(t, n.emailSent)
}

func TestResetClearsFlags(t *testing.T) {
	n, _ := newTestNotifier(t)

	n.trySend(&n.webhookSent, true, func() {})
	n.trySend(&n.emailSent, true, func() {})
	n.trySend(&n.logSent, true, func() {})
	n.trySend(&n.zabbixSent, true, func() {})

	n.Reset()
	assert.False(t, n.webhookSent)
	assert.False(t, n.emailSent)
	assert.False(t, n.logSent)
	assert.False(t, n.zabbixSent)
}

func TestNotifierEdgeTriggeredWebhook(t *testing.T) {
	srv, got := captureWebhook(t, http.StatusOK)
	n, cfg := newTestNotifier(t)
	require.NoError(t, cfg.SetWebhookURL(srv.URL))

	n.HandleStart(-12.0, -30.0)
	select {
	case payload := <-got:
		assert.Equal(t, "noise_detected", payload.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("no start notification")
	}

	// Still the same episode: no repeat.
	n.HandleStart(-11.0, -30.0)
	select {
	case <-got:
		t.Fatal("repeated start notification")
	case <-time.After(100 * time.Millisecond):
	}

	n.HandleEnd(1500, -40.0, -8.0, -30.0, nil)
	select {
	case payload := <-got:
		assert.Equal(t, "noise_ended", payload.Event)
		assert.Equal(t, int64(1500), payload.NoiseDurationMs)
	case <-time.After(2 * time.Second):
		t.Fatal("no recovery notification")
	}

	// Recovery without a preceding start stays silent.
	n.HandleEnd(1500, -40.0, -8.0, -30.0, nil)
	select {
	case <-got:
		t.Fatal("recovery without start notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClipAttachment(t *testing.T) {
	assert.Nil(t, clipAttachment(nil))
	assert.Nil(t, clipAttachment(&clips.ClipResult{Error: errors.New("encode failed")}))
	assert.Nil(t, clipAttachment(&clips.ClipResult{Filename: "noise-x.wav"}))
	assert.Nil(t, clipAttachment(&clips.ClipResult{
		FilePath: "/tmp/noise-huge.wav",
		Filename: "noise-huge.wav",
		FileSize: MaxAttachmentBytes + 1,
	}))

	content := []byte("RIFF fake wav bytes")
	path := filepath.Join(t.TempDir(), "noise-clip.wav")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	att := clipAttachment(&clips.ClipResult{
		FilePath: path,
		Filename: "noise-clip.wav",
		FileSize: int64(len(content)),
	})
	require.NotNil(t, att)
	assert.Equal(t, "noise-clip.wav", att.Filename)
	assert.Equal(t, "audio/wav", att.ContentType)
	assert.Equal(t, content, att.Data)
}
