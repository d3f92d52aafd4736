package notify

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// NoiseNotifier manages notifications for noise episodes.
//
// Start notifications fire when an episode is confirmed. End notifications
// fire after the quiet window, and wait for the clip recording when clips
// are enabled so the webhook, email and log can carry the audio evidence.
type NoiseNotifier struct {
	cfg *config.Config

	// mu guards the per-episode sent flags and the cached client.
	mu sync.Mutex

	webhookSent bool
	emailSent   bool
	logSent     bool
	zabbixSent  bool

	graphClient *GraphClient
}

// NewNoiseNotifier returns a NoiseNotifier backed by the given config.
func NewNoiseNotifier(cfg *config.Config) *NoiseNotifier {
	return &NoiseNotifier{cfg: cfg}
}

// InvalidateGraphClient drops the cached Graph client so the next email
// picks up changed credentials.
func (n *NoiseNotifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// getOrCreateGraphClient returns the cached Graph client, building one on
// first use.
func (n *NoiseNotifier) getOrCreateGraphClient(cfg *types.GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// HandleStart triggers notifications when a noise episode is confirmed.
func (n *NoiseNotifier) HandleStart(levelDB, thresholdDB float64) {
	cfg := n.cfg.Snapshot()

	n.trySend(&n.webhookSent, cfg.HasWebhook(), func() { n.sendNoiseWebhook(cfg, levelDB, thresholdDB) })
	n.trySend(&n.emailSent, cfg.HasGraph(), func() { n.sendNoiseEmail(cfg, levelDB, thresholdDB) })
	n.trySend(&n.logSent, cfg.HasLogPath(), func() { n.logNoiseStart(cfg, levelDB, thresholdDB) })
	n.trySend(&n.zabbixSent, cfg.HasZabbix(), func() { n.sendNoiseZabbix(cfg, levelDB, thresholdDB) })
}

// trySend latches sent and fires sender in the background, at most once per
// episode and only when condition holds.
func (n *NoiseNotifier) trySend(sent *bool, condition bool, sender func()) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		go sender()
	}
}

// HandleEnd triggers recovery notifications when a noise episode ends.
// clip may be nil when clip recording is disabled or failed to start.
func (n *NoiseNotifier) HandleEnd(durationMs int64, levelDB, peakDB, thresholdDB float64, clip *clips.ClipResult) {
	cfg := n.cfg.Snapshot()

	// Recovery goes only to channels that received the start notification.
	n.mu.Lock()
	shouldSendWebhookRecovery := n.webhookSent
	shouldSendEmailRecovery := n.emailSent
	shouldSendLogRecovery := n.logSent
	shouldSendZabbixRecovery := n.zabbixSent
	// Clear for the next episode.
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.zabbixSent = false
	n.mu.Unlock()

	if shouldSendWebhookRecovery {
		go n.sendRecoveryWebhook(cfg, durationMs, levelDB, peakDB, thresholdDB, clip)
	}

	if shouldSendEmailRecovery {
		go n.sendRecoveryEmail(cfg, durationMs, levelDB, peakDB, thresholdDB, clip)
	}

	if shouldSendLogRecovery {
		go n.logNoiseEnd(cfg, durationMs, levelDB, peakDB, thresholdDB, clip)
	}

	if shouldSendZabbixRecovery {
		go n.sendRecoveryZabbix(cfg, durationMs, levelDB, peakDB, thresholdDB)
	}
}

// Reset clears the per-episode sent flags.
func (n *NoiseNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.zabbixSent = false
	n.mu.Unlock()
}

// BuildGraphConfig maps the config snapshot onto a GraphConfig.
func BuildGraphConfig(cfg config.Snapshot) *types.GraphConfig {
	return &types.GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}

// BuildZabbixConfig maps the config snapshot onto a ZabbixConfig.
func BuildZabbixConfig(cfg config.Snapshot) *types.ZabbixConfig {
	return &types.ZabbixConfig{
		Server: cfg.ZabbixServer,
		Port:   cfg.ZabbixPort,
		Host:   cfg.ZabbixHost,
		Key:    cfg.ZabbixKey,
	}
}

func (n *NoiseNotifier) sendNoiseWebhook(cfg config.Snapshot, levelDB, thresholdDB float64) {
	util.LogNotifyResult(
		func() error { return SendNoiseWebhook(cfg.WebhookURL, levelDB, thresholdDB) },
		"Noise webhook",
	)
}

func (n *NoiseNotifier) sendRecoveryWebhook(cfg config.Snapshot, durationMs int64, levelDB, peakDB, thresholdDB float64, clip *clips.ClipResult) {
	util.LogNotifyResult(
		func() error {
			return SendRecoveryWebhook(cfg.WebhookURL, durationMs, levelDB, peakDB, thresholdDB, clip)
		},
		"Recovery webhook",
	)
}

func (n *NoiseNotifier) sendNoiseEmail(cfg config.Snapshot, levelDB, thresholdDB float64) {
	graphCfg := BuildGraphConfig(cfg)
	util.LogNotifyResult(
		func() error {
			return n.sendNoiseEmailWithClient(graphCfg, cfg.StationName, levelDB, thresholdDB)
		},
		"Noise email",
	)
}

func (n *NoiseNotifier) sendRecoveryEmail(cfg config.Snapshot, durationMs int64, levelDB, peakDB, thresholdDB float64, clip *clips.ClipResult) {
	graphCfg := BuildGraphConfig(cfg)
	util.LogNotifyResult(
		func() error {
			return n.sendRecoveryEmailWithClient(graphCfg, cfg.StationName, durationMs, levelDB, peakDB, thresholdDB, clip)
		},
		"Recovery email",
	)
}

// sendEmail resolves the client and recipients shared by every email
// notification, then delivers the message.
func (n *NoiseNotifier) sendEmail(cfg *types.GraphConfig, subject, body string, attachment *EmailAttachment) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMailWithAttachment(recipients, subject, body, attachment); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}

// sendNoiseEmailWithClient sends a noise alert email using the cached Graph client.
func (n *NoiseNotifier) sendNoiseEmailWithClient(cfg *types.GraphConfig, stationName string, levelDB, thresholdDB float64) error {
	subject := "[ALERT] Noise Detected - " + stationName
	body := fmt.Sprintf(
		"Noise detected in the monitored studio.\n\n"+
			"Level:     %s\n"+
			"Threshold: %s\n"+
			"Time:      %s\n\n"+
			"Noise is ongoing. Please check the studio.",
		util.FormatDB(levelDB), util.FormatDB(thresholdDB), util.HumanTime(),
	)
	return n.sendEmail(cfg, subject, body, nil)
}

// sendRecoveryEmailWithClient sends a recovery email using the cached Graph client,
// attaching the episode clip when it fits the Graph attachment limit.
func (n *NoiseNotifier) sendRecoveryEmailWithClient(cfg *types.GraphConfig, stationName string, durationMs int64, levelDB, peakDB, thresholdDB float64, clip *clips.ClipResult) error {
	subject := "[OK] Noise Ended - " + stationName
	body := fmt.Sprintf(
		"The studio is quiet again.\n\n"+
			"Level:        %s\n"+
			"Peak:         %s\n"+
			"Noise lasted: %s\n"+
			"Threshold:    %s\n"+
			"Time:         %s",
		util.FormatDB(levelDB), util.FormatDB(peakDB),
		util.FormatDuration(durationMs), util.FormatDB(thresholdDB), util.HumanTime(),
	)
	return n.sendEmail(cfg, subject, body, clipAttachment(clip))
}

// clipAttachment loads a clip as an email attachment. Returns nil when there
// is no clip, the clip failed, or it exceeds the Graph attachment limit.
func clipAttachment(clip *clips.ClipResult) *EmailAttachment {
	if clip == nil || clip.Error != nil || clip.FilePath == "" {
		return nil
	}
	if clip.FileSize > MaxAttachmentBytes {
		slog.Info("clip too large for email attachment", "file", clip.Filename, "bytes", clip.FileSize)
		return nil
	}
	data, err := os.ReadFile(clip.FilePath)
	if err != nil {
		slog.Warn("failed to read clip for email", "path", clip.FilePath, "error", err)
		return nil
	}
	return &EmailAttachment{
		Filename:    clip.Filename,
		ContentType: "audio/wav",
		Data:        data,
	}
}

func (n *NoiseNotifier) logNoiseStart(cfg config.Snapshot, levelDB, thresholdDB float64) {
	util.LogNotifyResult(
		func() error { return LogNoiseStart(cfg.LogPath, levelDB, thresholdDB) },
		"Noise log",
	)
}

func (n *NoiseNotifier) logNoiseEnd(cfg config.Snapshot, durationMs int64, levelDB, peakDB, thresholdDB float64, clip *clips.ClipResult) {
	util.LogNotifyResult(
		func() error {
			return LogNoiseEndWithClip(cfg.LogPath, durationMs, levelDB, peakDB, thresholdDB, clip)
		},
		"Recovery log",
	)
}

func (n *NoiseNotifier) sendNoiseZabbix(cfg config.Snapshot, levelDB, thresholdDB float64) {
	util.LogNotifyResult(
		func() error { return SendNoiseZabbix(BuildZabbixConfig(cfg), levelDB, thresholdDB) },
		"Noise zabbix",
	)
}

func (n *NoiseNotifier) sendRecoveryZabbix(cfg config.Snapshot, durationMs int64, levelDB, peakDB, thresholdDB float64) {
	util.LogNotifyResult(
		func() error {
			return SendRecoveryZabbix(BuildZabbixConfig(cfg), durationMs, levelDB, peakDB, thresholdDB)
		},
		"Recovery zabbix",
	)
}
