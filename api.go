package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/audio"
	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/server"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// Device access can hang on misbehaving hardware, so calibration and
// tone playback over the REST surface run under their own deadline
// instead of the open-ended request context.
const deviceOpTimeout = 15 * time.Second

// JSON writers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// parseJSON decodes the request body into T. When it returns false an
// error response has already been written.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := s.readJSON(r, &v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// parseOptionalJSON is parseJSON for endpoints where the body may be absent.
func parseOptionalJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := s.readJSON(r, &v); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// coalesce picks the first non-zero of the given values.
func coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// handleHealth is a liveness probe.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// handleState returns the shared monitoring state.
// GET /api/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, s.state.Get())
}

// handleThreshold sets the alert threshold.
// POST /api/threshold
func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[struct {
		Threshold *float64 `json:"threshold"`
	}](s, w, r)
	if !ok {
		return
	}

	if req.Threshold == nil {
		s.writeError(w, http.StatusBadRequest, "No threshold provided")
		return
	}

	if err := s.config.SetAlertThreshold(*req.Threshold); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.state.SetThreshold(*req.Threshold)
	s.engine.RefreshSettings()

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleMonitoringStart asks the monitor loop to arm.
// POST /api/monitoring/start
//
// The response acknowledges the request; whether the loop actually armed
// shows up in subsequent state reads.
func (s *Server) handleMonitoringStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.state.RequestStart()
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleMonitoringStop asks the monitor loop to return to idle.
// POST /api/monitoring/stop
func (s *Server) handleMonitoringStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.state.RequestStop()
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleMessage queues a text message for speech delivery.
// POST /api/message
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[struct {
		Message string `json:"message"`
	}](s, w, r)
	if !ok {
		return
	}

	if err := server.ValidateMessage(req.Message); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.state.EnqueueSpeech(req.Message)
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleStatus returns the full status document, identical to the
// WebSocket status frame.
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleDevices returns available audio devices.
// GET /api/devices
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	devices, err := audio.ListDevices()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
	})
}

// handleCalibrate measures ambient noise and suggests a threshold.
// POST /api/calibrate
func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseOptionalJSON[struct {
		Device string `json:"device"`
	}](s, w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), deviceOpTimeout)
	defer cancel()

	result, err := s.engine.Calibrate(ctx, req.Device)
	if errors.Is(err, monitor.ErrMonitorArmed) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"ambient_db":          result.AmbientDB,
		"suggested_threshold": result.SuggestedDB,
	})
}

// handleToneTest plays the configured alert tone once.
// POST /api/tone/test
func (s *Server) handleToneTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), deviceOpTimeout)
	defer cancel()

	if err := s.engine.PlayTestTone(ctx); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SettingsUpdateRequest is the POST /api/settings body. All fields are
// optional; absent fields keep their current value.
type SettingsUpdateRequest struct {
	// Audio
	AudioInput        *string  `json:"audio_input"`
	AudioOutput       *string  `json:"audio_output"`
	SampleRate        *int     `json:"sample_rate"`
	CaptureSeconds    *float64 `json:"capture_seconds"`
	CycleDelaySeconds *float64 `json:"cycle_delay_seconds"`

	// Alert threshold and tone
	Threshold          *float64 `json:"threshold"`
	ToneShape          *string  `json:"tone_shape"`
	ToneFrequencyHz    *float64 `json:"tone_frequency_hz"`
	ToneDurationMs     *int     `json:"tone_duration_ms"`
	ToneVolumePct      *int     `json:"tone_volume_pct"`
	NoiseMinDurationMs *int64   `json:"noise_min_duration_ms"`
	NoiseQuietMs       *int64   `json:"noise_quiet_ms"`

	// Webhook
	WebhookURL *string `json:"webhook_url"`

	// Log
	LogPath *string `json:"log_path"`

	// Zabbix
	ZabbixServer *string `json:"zabbix_server"`
	ZabbixPort   *int    `json:"zabbix_port"`
	ZabbixHost   *string `json:"zabbix_host"`
	ZabbixKey    *string `json:"zabbix_key"`

	// Email (Graph)
	GraphTenantID     *string `json:"graph_tenant_id"`
	GraphClientID     *string `json:"graph_client_id"`
	GraphClientSecret *string `json:"graph_client_secret"`
	GraphFromAddress  *string `json:"graph_from_address"`
	GraphRecipients   *string `json:"graph_recipients"`

	// Clips
	ClipsEnabled       *bool   `json:"clips_enabled"`
	ClipsDirectory     *string `json:"clips_directory"`
	ClipsStorageMode   *string `json:"clips_storage_mode"`
	ClipsRetentionDays *int    `json:"clips_retention_days"`
	S3Endpoint         *string `json:"s3_endpoint"`
	S3Bucket           *string `json:"s3_bucket"`
	S3AccessKeyID      *string `json:"s3_access_key_id"`
	S3SecretAccessKey  *string `json:"s3_secret_access_key"`
}

// handleSettings updates all settings atomically.
// POST /api/settings
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[SettingsUpdateRequest](s, w, r)
	if !ok {
		return
	}

	cfg := s.config.Snapshot()

	if err := s.applyAudioSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.applyAlertSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.applyNotificationSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.applyClipSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The monitor picks up the new settings on its next cycle
	s.engine.RefreshSettings()

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// applyAudioSettings applies device and capture pacing settings from the request.
func (s *Server) applyAudioSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.AudioInput != nil || req.AudioOutput != nil {
		input := cfg.AudioInput
		output := cfg.AudioOutput
		if req.AudioInput != nil {
			input = *req.AudioInput
		}
		if req.AudioOutput != nil {
			output = *req.AudioOutput
		}
		if err := s.config.SetAudioDevices(input, output); err != nil {
			return err
		}
	}

	if req.SampleRate != nil || req.CaptureSeconds != nil || req.CycleDelaySeconds != nil {
		rate := cfg.SampleRate
		capture := cfg.CaptureSeconds
		delay := cfg.CycleDelaySeconds
		if req.SampleRate != nil {
			rate = *req.SampleRate
		}
		if req.CaptureSeconds != nil {
			capture = *req.CaptureSeconds
		}
		if req.CycleDelaySeconds != nil {
			delay = *req.CycleDelaySeconds
		}
		if err := s.config.SetAudioTiming(rate, capture, delay); err != nil {
			return err
		}
	}

	return nil
}

// applyAlertSettings applies threshold, tone and episode timing settings.
func (s *Server) applyAlertSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.Threshold != nil {
		if err := s.config.SetAlertThreshold(*req.Threshold); err != nil {
			return err
		}
		// The live threshold is owned by shared state; config only
		// carries it across restarts.
		s.state.SetThreshold(*req.Threshold)
	}

	if req.ToneShape != nil || req.ToneFrequencyHz != nil || req.ToneDurationMs != nil || req.ToneVolumePct != nil {
		shape := cfg.ToneShape
		freq := cfg.ToneFrequencyHz
		dur := cfg.ToneDurationMs
		vol := cfg.ToneVolumePct
		if req.ToneShape != nil {
			shape = types.Waveform(*req.ToneShape)
		}
		if req.ToneFrequencyHz != nil {
			freq = *req.ToneFrequencyHz
		}
		if req.ToneDurationMs != nil {
			dur = *req.ToneDurationMs
		}
		if req.ToneVolumePct != nil {
			vol = *req.ToneVolumePct
		}
		if err := s.config.SetTone(shape, freq, dur, vol); err != nil {
			return err
		}
	}

	if req.NoiseMinDurationMs != nil || req.NoiseQuietMs != nil {
		minDur := cfg.NoiseMinDurationMs
		quiet := cfg.NoiseQuietMs
		if req.NoiseMinDurationMs != nil {
			minDur = *req.NoiseMinDurationMs
		}
		if req.NoiseQuietMs != nil {
			quiet = *req.NoiseQuietMs
		}
		if err := s.config.SetNoiseTiming(minDur, quiet); err != nil {
			return err
		}
	}

	return nil
}

// applyNotificationSettings stores the notification fields of the request.
func (s *Server) applyNotificationSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.WebhookURL != nil {
		if err := s.config.SetWebhookURL(*req.WebhookURL); err != nil {
			return err
		}
	}

	if req.LogPath != nil {
		if *req.LogPath != "" {
			if err := util.ValidatePath("log_path", *req.LogPath); err != nil {
				return err
			}
		}
		if err := s.config.SetLogPath(*req.LogPath); err != nil {
			return err
		}
	}

	if err := s.applyZabbixSettings(req, cfg); err != nil {
		return err
	}

	if err := s.applyGraphSettings(req, cfg); err != nil {
		return err
	}

	return nil
}

// applyZabbixSettings stores the Zabbix fields of the request.
func (s *Server) applyZabbixSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.ZabbixServer == nil && req.ZabbixPort == nil && req.ZabbixHost == nil && req.ZabbixKey == nil {
		return nil
	}

	zserver := cfg.ZabbixServer
	port := cfg.ZabbixPort
	host := cfg.ZabbixHost
	key := cfg.ZabbixKey
	if req.ZabbixServer != nil {
		zserver = *req.ZabbixServer
	}
	if req.ZabbixPort != nil {
		port = *req.ZabbixPort
	}
	if req.ZabbixHost != nil {
		host = *req.ZabbixHost
	}
	if req.ZabbixKey != nil {
		key = *req.ZabbixKey
	}
	return s.config.SetZabbixConfig(zserver, port, host, key)
}

// applyGraphSettings stores the Graph email fields of the request.
func (s *Server) applyGraphSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.GraphTenantID == nil && req.GraphClientID == nil && req.GraphClientSecret == nil &&
		req.GraphFromAddress == nil && req.GraphRecipients == nil {
		return nil
	}

	tenantID := cfg.GraphTenantID
	clientID := cfg.GraphClientID
	clientSecret := cfg.GraphClientSecret
	fromAddr := cfg.GraphFromAddress
	recipients := cfg.GraphRecipients
	if req.GraphTenantID != nil {
		tenantID = *req.GraphTenantID
	}
	if req.GraphClientID != nil {
		clientID = *req.GraphClientID
	}
	if req.GraphClientSecret != nil {
		clientSecret = *req.GraphClientSecret
	}
	if req.GraphFromAddress != nil {
		fromAddr = *req.GraphFromAddress
	}
	if req.GraphRecipients != nil {
		recipients = *req.GraphRecipients
	}
	if err := s.config.SetGraphConfig(tenantID, clientID, clientSecret, fromAddr, recipients); err != nil {
		return err
	}

	// Drop the cached Graph client so the next send authenticates with
	// the new credentials, and re-check secret expiry against them.
	s.notifier.InvalidateGraphClient()
	s.expiry.UpdateConfig(notify.BuildGraphConfig(s.config.Snapshot()))
	return nil
}

// applyClipSettings applies clip storage settings from the request.
func (s *Server) applyClipSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.ClipsEnabled == nil && req.ClipsDirectory == nil && req.ClipsStorageMode == nil &&
		req.ClipsRetentionDays == nil && req.S3Endpoint == nil && req.S3Bucket == nil &&
		req.S3AccessKeyID == nil && req.S3SecretAccessKey == nil {
		return nil
	}

	next := config.ClipsConfig{
		Enabled:           cfg.ClipsEnabled,
		Directory:         cfg.ClipsDirectory,
		StorageMode:       cfg.ClipsStorageMode,
		RetentionDays:     cfg.ClipRetentionDays,
		S3Endpoint:        cfg.S3Endpoint,
		S3Bucket:          cfg.S3Bucket,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
	}
	if req.ClipsEnabled != nil {
		next.Enabled = *req.ClipsEnabled
	}
	if req.ClipsDirectory != nil {
		if *req.ClipsDirectory != "" {
			if err := util.ValidatePath("clips_directory", *req.ClipsDirectory); err != nil {
				return err
			}
			if err := util.CheckPathWritable(*req.ClipsDirectory); err != nil {
				return err
			}
		}
		next.Directory = *req.ClipsDirectory
	}
	if req.ClipsStorageMode != nil {
		next.StorageMode = types.ClipStorage(*req.ClipsStorageMode)
	}
	if req.ClipsRetentionDays != nil {
		next.RetentionDays = *req.ClipsRetentionDays
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
	if err := s.config.SetClips(next); err != nil {
		return err
	}

	s.clips.UpdateConfig(server.ClipStoreConfig(s.config.Snapshot()))
	return nil
}

// handleEvents returns recent event log entries.
// GET /api/events?limit=N&offset=N&filter=TYPE
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.events == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "event log not available"})
		return
	}

	q := r.URL.Query()
	limit := server.MaxLogEntries
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > eventlog.MaxReadLimit {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}

	events, hasMore, err := eventlog.ReadLast(s.events.Path(), limit, offset, eventlog.TypeFilter(q.Get("filter")))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"has_more": hasMore,
	})
}

// NotificationTestRequest is the request body for the notification test
// endpoints. Values override the saved configuration for the test only.
type NotificationTestRequest struct {
	// Webhook
	WebhookURL string `json:"webhook_url,omitempty"`

	// Log
	LogPath string `json:"log_path,omitempty"`

	// Email (Graph)
	GraphTenantID     string `json:"graph_tenant_id,omitempty"`
	GraphClientID     string `json:"graph_client_id,omitempty"`
	GraphClientSecret string `json:"graph_client_secret,omitempty"`
	GraphFromAddress  string `json:"graph_from_address,omitempty"`
	GraphRecipients   string `json:"graph_recipients,omitempty"`

	// Zabbix
	ZabbixServer string `json:"zabbix_server,omitempty"`
	ZabbixPort   int    `json:"zabbix_port,omitempty"`
	ZabbixHost   string `json:"zabbix_host,omitempty"`
	ZabbixKey    string `json:"zabbix_key,omitempty"`
}

func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseOptionalJSON[NotificationTestRequest](s, w, r)
	if !ok {
		return
	}

	cfg := s.config.Snapshot()
	url := coalesce(req.WebhookURL, cfg.WebhookURL)

	if url == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "No webhook URL configured"})
		return
	}

	if err := notify.SendTestWebhook(url, cfg.StationName); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleTestLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseOptionalJSON[NotificationTestRequest](s, w, r)
	if !ok {
		return
	}

	path := coalesce(req.LogPath, s.config.Snapshot().LogPath)

	if path == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "No log path configured"})
		return
	}

	if err := notify.WriteTestLog(path, s.state.Threshold()); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseOptionalJSON[NotificationTestRequest](s, w, r)
	if !ok {
		return
	}

	// Request values win; anything omitted comes from the saved config.
	cfg := s.config.Snapshot()
	tenantID := coalesce(req.GraphTenantID, cfg.GraphTenantID)
	clientID := coalesce(req.GraphClientID, cfg.GraphClientID)
	clientSecret := coalesce(req.GraphClientSecret, cfg.GraphClientSecret)
	fromAddress := coalesce(req.GraphFromAddress, cfg.GraphFromAddress)
	recipients := coalesce(req.GraphRecipients, cfg.GraphRecipients)

	if tenantID == "" || clientID == "" || clientSecret == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Email not fully configured"})
		return
	}

	graphCfg := &types.GraphConfig{
		TenantID:     tenantID,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		FromAddress:  fromAddress,
		Recipients:   recipients,
	}

	if err := notify.SendTestEmail(graphCfg, cfg.StationName); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleTestZabbix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseOptionalJSON[NotificationTestRequest](s, w, r)
	if !ok {
		return
	}

	// Request values win; anything omitted comes from the saved config.
	cfg := s.config.Snapshot()
	zserver := coalesce(req.ZabbixServer, cfg.ZabbixServer)
	port := coalesce(req.ZabbixPort, cfg.ZabbixPort)
	host := coalesce(req.ZabbixHost, cfg.ZabbixHost)
	key := coalesce(req.ZabbixKey, cfg.ZabbixKey)

	if zserver == "" || host == "" || key == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Zabbix not fully configured"})
		return
	}

	zabbixCfg := &types.ZabbixConfig{
		Server: zserver,
		Port:   port,
		Host:   host,
		Key:    key,
	}

	if err := notify.SendTestZabbix(zabbixCfg); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// S3TestRequest is the request body for POST /api/test/s3.
type S3TestRequest struct {
	Endpoint        string `json:"s3_endpoint,omitempty"`
	Bucket          string `json:"s3_bucket,omitempty"`
	AccessKeyID     string `json:"s3_access_key_id,omitempty"`
	SecretAccessKey string `json:"s3_secret_access_key,omitempty"`
}

func (s *Server) handleTestS3(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseOptionalJSON[S3TestRequest](s, w, r)
	if !ok {
		return
	}

	// Request values win; anything omitted comes from the saved config.
	cfg := s.config.Snapshot()
	s3cfg := &clips.S3Config{
		Endpoint:        coalesce(req.Endpoint, cfg.S3Endpoint),
		Bucket:          coalesce(req.Bucket, cfg.S3Bucket),
		AccessKeyID:     coalesce(req.AccessKeyID, cfg.S3AccessKeyID),
		SecretAccessKey: coalesce(req.SecretAccessKey, cfg.S3SecretAccessKey),
	}

	if !s3cfg.IsConfigured() {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "S3 not fully configured"})
		return
	}

	if err := clips.TestS3Connection(s3cfg); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
