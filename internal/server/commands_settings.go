package server

import (
	"log/slog"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// --- Audio commands ---

// handleAudioUpdate processes an audio/update command. Nil fields keep
// their current values; the running loop picks the new bundle up on its
// next cycle.
func (h *CommandHandler) handleAudioUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *AudioUpdateRequest) error {
		snap := h.cfg.Snapshot()

		if req.Input != nil || req.Output != nil {
			input := snap.AudioInput
			output := snap.AudioOutput
			if req.Input != nil {
				input = *req.Input
			}
			if req.Output != nil {
				output = *req.Output
			}
			slog.Info("audio/update: changing audio devices", "input", input, "output", output)
			if err := h.cfg.SetAudioDevices(input, output); err != nil {
				return err
			}
		}

		if req.SampleRate != nil || req.CaptureSeconds != nil || req.CycleDelaySeconds != nil {
			rate := snap.SampleRate
			capture := snap.CaptureSeconds
			delay := snap.CycleDelaySeconds
			if req.SampleRate != nil {
				rate = *req.SampleRate
			}
			if req.CaptureSeconds != nil {
				capture = *req.CaptureSeconds
			}
			if req.CycleDelaySeconds != nil {
				delay = *req.CycleDelaySeconds
			}
			if err := h.cfg.SetAudioTiming(rate, capture, delay); err != nil {
				return err
			}
		}

		h.engine.RefreshSettings()
		return nil
	})
}

// --- Alert handlers ---

// handleAlertUpdate processes an alert/update command.
func (h *CommandHandler) handleAlertUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *AlertUpdateRequest) error {
		if req.ThresholdDB != nil {
			if err := h.cfg.SetAlertThreshold(*req.ThresholdDB); err != nil {
				return err
			}
			// The live threshold is owned by shared state; config only
			// carries it across restarts.
			h.state.SetThreshold(*req.ThresholdDB)
		}

		if req.Shape != nil || req.FrequencyHz != nil || req.DurationMs != nil || req.VolumePct != nil {
			snap := h.cfg.Snapshot()
			shape := snap.ToneShape
			freq := snap.ToneFrequencyHz
			dur := snap.ToneDurationMs
			vol := snap.ToneVolumePct
			if req.Shape != nil {
				shape = types.Waveform(*req.Shape)
			}
			if req.FrequencyHz != nil {
				freq = *req.FrequencyHz
			}
			if req.DurationMs != nil {
				dur = *req.DurationMs
			}
			if req.VolumePct != nil {
				vol = *req.VolumePct
			}
			if err := h.cfg.SetTone(shape, freq, dur, vol); err != nil {
				return err
			}
		}

		if req.NoiseMinDurationMs != nil || req.NoiseQuietMs != nil {
			snap := h.cfg.Snapshot()
			minMs := snap.NoiseMinDurationMs
			quietMs := snap.NoiseQuietMs
			if req.NoiseMinDurationMs != nil {
				minMs = *req.NoiseMinDurationMs
			}
			if req.NoiseQuietMs != nil {
				quietMs = *req.NoiseQuietMs
			}
			if err := h.cfg.SetNoiseTiming(minMs, quietMs); err != nil {
				return err
			}
		}

		h.engine.RefreshSettings()
		return nil
	})
}

// --- Notification commands ---

// handleWebhookUpdate applies a notifications/webhook/update command.
func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(req.URL)
	})
}

// handleLogUpdate applies a notifications/log/update command.
func (h *CommandHandler) handleLogUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *LogUpdateRequest) error {
		if req.Path != "" {
			if err := util.ValidatePath("path", req.Path); err != nil {
				return err
			}
		}
		return h.cfg.SetLogPath(req.Path)
	})
}

// handleEmailUpdate applies a notifications/email/update command.
func (h *CommandHandler) handleEmailUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *EmailUpdateRequest) error {
		if err := h.cfg.SetGraphConfig(
			req.TenantID,
			req.ClientID,
			req.ClientSecret,
			req.FromAddress,
			req.Recipients,
		); err != nil {
			return err
		}

		// Drop the cached Graph client so the next send authenticates with
		// the new credentials, and re-check secret expiry against them.
		h.notifier.InvalidateGraphClient()
		h.expiry.UpdateConfig(notify.BuildGraphConfig(h.cfg.Snapshot()))
		return nil
	})
}

// handleZabbixUpdate applies a notifications/zabbix/update command.
func (h *CommandHandler) handleZabbixUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *ZabbixUpdateRequest) error {
		return h.cfg.SetZabbixConfig(req.Server, req.Port, req.Host, req.Key)
	})
}

// --- Clip storage handlers ---

// handleClipsUpdate processes a clips/update command.
func (h *CommandHandler) handleClipsUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *ClipsUpdateRequest) error {
		snap := h.cfg.Snapshot()

		next := config.ClipsConfig{
			Enabled:           snap.ClipsEnabled,
			Directory:         snap.ClipsDirectory,
			StorageMode:       snap.ClipsStorageMode,
			RetentionDays:     snap.ClipRetentionDays,
			S3Endpoint:        snap.S3Endpoint,
			S3Bucket:          snap.S3Bucket,
			S3AccessKeyID:     snap.S3AccessKeyID,
			S3SecretAccessKey: snap.S3SecretAccessKey,
		}

		if req.Enabled != nil {
			next.Enabled = *req.Enabled
		}
		if req.Directory != nil {
			if *req.Directory != "" {
				if err := util.ValidatePath("directory", *req.Directory); err != nil {
					return err
				}
				if err := util.CheckPathWritable(*req.Directory); err != nil {
					return err
				}
			}
			next.Directory = *req.Directory
		}
		if req.StorageMode != nil {
			next.StorageMode = types.ClipStorage(*req.StorageMode)
		}
		if req.RetentionDays != nil {
			next.RetentionDays = *req.RetentionDays
		}
		if req.S3Endpoint != nil {
			next.S3Endpoint = *req.S3Endpoint
		}
		if req.S3Bucket != nil {
			next.S3Bucket = *req.S3Bucket
		}
		if req.S3AccessKeyID != nil {
			next.S3AccessKeyID = *req.S3AccessKeyID
		}
		if req.S3SecretAccessKey != nil {
			next.S3SecretAccessKey = *req.S3SecretAccessKey
		}

		if err := h.cfg.SetClips(next); err != nil {
			return err
		}

		// Enabling or disabling clip capture takes effect on the next
		// monitoring session; storage changes apply immediately.
		h.clips.UpdateConfig(ClipStoreConfig(h.cfg.Snapshot()))
		return nil
	})
}

// handleTestClipsS3 processes a clips/test-s3 command by uploading and
// deleting a small object with the submitted credentials.
func (h *CommandHandler) handleTestClipsS3(cmd WSCommand, send chan<- any) {
	var req S3TestRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		err := clips.TestS3Connection(&clips.S3Config{
			Endpoint:        req.Endpoint,
			Bucket:          req.Bucket,
			AccessKeyID:     req.AccessKey,
			SecretAccessKey: req.SecretKey,
		})
		return nil, err
	})
}

// ClipStoreConfig assembles the clip store configuration from a snapshot.
func ClipStoreConfig(snap config.Snapshot) clips.StoreConfig {
	return clips.StoreConfig{
		Enabled:       snap.ClipsEnabled,
		Directory:     snap.ClipsDirectory,
		StorageMode:   snap.ClipsStorageMode,
		RetentionDays: snap.ClipRetentionDays,
		S3: clips.S3Config{
			Endpoint:        snap.S3Endpoint,
			Bucket:          snap.S3Bucket,
			AccessKeyID:     snap.S3AccessKeyID,
			SecretAccessKey: snap.S3SecretAccessKey,
		},
	}
}

// --- System handlers ---

// handleGenerateAPIKey processes a system/generate-key command. The new key
// takes effect for subsequent requests; the connection that asked for it is
// already authenticated.
func (h *CommandHandler) handleGenerateAPIKey(send chan<- any) {
	HandleActionAsync(WSCommand{Type: "system/generate-key"}, send, func() (any, error) {
		newKey, err := config.GenerateAPIKey()
		if err != nil {
			return nil, err
		}

		if err := h.cfg.SetAPIKey(newKey); err != nil {
			return nil, err
		}

		slog.Info("API key regenerated")

		return map[string]string{"api_key": newKey}, nil
	})
}
