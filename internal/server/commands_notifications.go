package server

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// runTest dispatches to the appropriate notification channel test.
func (h *CommandHandler) runTest(testType string) error {
	snap := h.cfg.Snapshot()

	switch testType {
	case "webhook":
		if !snap.HasWebhook() {
			return fmt.Errorf("webhook URL not configured")
		}
		return notify.SendTestWebhook(snap.WebhookURL, snap.StationName)
	case "log":
		if !snap.HasLogPath() {
			return fmt.Errorf("log file path not configured")
		}
		return notify.WriteTestLog(snap.LogPath, h.state.Threshold())
	case "email":
		return notify.SendTestEmail(notify.BuildGraphConfig(snap), snap.StationName)
	case "zabbix":
		if !snap.HasZabbix() {
			return fmt.Errorf("zabbix server not configured")
		}
		return notify.SendTestZabbix(notify.BuildZabbixConfig(snap))
	default:
		return fmt.Errorf("unknown test type: %s", testType)
	}
}

// handleTest runs one notification channel test and reports the outcome.
// testCmd carries the channel as a suffix, as in "test_email" or "test_webhook".
func (h *CommandHandler) handleTest(send chan<- any, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in test handler", "command", testCmd, "panic", r)
			}
		}()

		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := h.runTest(testType); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		// Drop the result rather than block if the client already left.
		select {
		case send <- result:
		default:
			slog.Warn("failed to send test response: channel full or closed", "command", testCmd)
		}
	}()
}

// handleViewAlertLog reads and returns the alert log file contents.
func (h *CommandHandler) handleViewAlertLog(send chan<- any) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in alert log handler", "panic", r)
			}
		}()

		result := types.WSAlertLogResult{
			Type:    "alert_log_result",
			Success: true,
		}

		logPath := h.cfg.LogPath()
		if logPath == "" {
			result.Success = false
			result.Error = "Log file path not configured"
		} else {
			entries, err := readAlertLog(logPath, MaxLogEntries)
			if err != nil {
				result.Success = false
				result.Error = err.Error()
			} else {
				result.Entries = entries
				result.Path = logPath
			}
		}

		// Drop the result rather than block if the client already left.
		select {
		case send <- result:
		default:
			slog.Warn("failed to send alert log response: channel full or closed")
		}
	}()
}

// readAlertLog reads the last N entries from the alert log file.
func readAlertLog(logPath string, maxEntries int) ([]types.AlertLogEntry, error) {
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return []types.AlertLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return []types.AlertLogEntry{}, nil
	}

	start := max(0, len(lines)-maxEntries)
	lines = lines[start:]

	entries := make([]types.AlertLogEntry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry types.AlertLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // malformed entry
		}
		entries = append(entries, entry)
	}

	// Newest first.
	slices.Reverse(entries)

	return entries, nil
}

// handleEventsGet processes an events/get command against the event log.
func (h *CommandHandler) handleEventsGet(cmd WSCommand, send chan<- any) {
	var req EventsRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		if h.events == nil {
			return nil, fmt.Errorf("event log not available")
		}

		limit := cmp.Or(req.Limit, MaxLogEntries)
		events, hasMore, err := eventlog.ReadLast(h.events.Path(), limit, req.Offset, eventlog.TypeFilter(req.Filter))
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"events":   events,
			"has_more": hasMore,
		}, nil
	})
}

// handleConfigGet sends the full configuration to the client.
func (h *CommandHandler) handleConfigGet(send chan<- any) {
	trySend(send, "config", types.WSConfigResponse{
		Type:   "config",
		Config: configView(h.cfg.Snapshot()),
	})
}

// configView assembles the client-facing configuration. Secrets are
// reported as present or absent, never echoed back.
func configView(snap config.Snapshot) map[string]any {
	return map[string]any{
		"system": map[string]any{
			"port":        snap.WebPort,
			"api_key_set": snap.APIKey != "",
		},
		"web": map[string]any{
			"station_name": snap.StationName,
		},
		"audio": map[string]any{
			"input":               snap.AudioInput,
			"output":              snap.AudioOutput,
			"sample_rate":         snap.SampleRate,
			"capture_seconds":     snap.CaptureSeconds,
			"cycle_delay_seconds": snap.CycleDelaySeconds,
		},
		"alert": map[string]any{
			"threshold_db":          snap.AlertThreshold,
			"shape":                 snap.ToneShape,
			"frequency_hz":          snap.ToneFrequencyHz,
			"duration_ms":           snap.ToneDurationMs,
			"volume_pct":            snap.ToneVolumePct,
			"noise_min_duration_ms": snap.NoiseMinDurationMs,
			"noise_quiet_ms":        snap.NoiseQuietMs,
		},
		"notifications": map[string]any{
			"webhook": map[string]any{
				"url": snap.WebhookURL,
			},
			"log": map[string]any{
				"path": snap.LogPath,
			},
			"email": map[string]any{
				"tenant_id":         snap.GraphTenantID,
				"client_id":         snap.GraphClientID,
				"client_secret_set": snap.GraphClientSecret != "",
				"from_address":      snap.GraphFromAddress,
				"recipients":        snap.GraphRecipients,
			},
			"zabbix": map[string]any{
				"server": snap.ZabbixServer,
				"port":   snap.ZabbixPort,
				"host":   snap.ZabbixHost,
				"key":    snap.ZabbixKey,
			},
		},
		"clips": map[string]any{
			"enabled":           snap.ClipsEnabled,
			"directory":         snap.ClipsDirectory,
			"storage_mode":      snap.ClipsStorageMode,
			"retention_days":    snap.ClipRetentionDays,
			"s3_endpoint":       snap.S3Endpoint,
			"s3_bucket":         snap.S3Bucket,
			"s3_access_key_set": snap.S3AccessKeyID != "",
			"s3_secret_set":     snap.S3SecretAccessKey != "",
		},
	}
}
