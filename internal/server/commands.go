package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/state"
)

// MaxLogEntries is the maximum number of alert log entries returned to a client.
const MaxLogEntries = 100

// WSCommand is one inbound WebSocket message, type plus raw payload.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Deps bundles the application components the command handler operates on.
type Deps struct {
	Config   *config.Config
	Engine   *monitor.Engine
	State    *state.State
	Clips    *clips.Store
	Notifier *notify.NoiseNotifier
	Expiry   *notify.SecretExpiryChecker
	Events   *eventlog.Logger
}

// CommandHandler executes commands arriving over the WebSocket.
type CommandHandler struct {
	cfg      *config.Config
	engine   *monitor.Engine
	state    *state.State
	clips    *clips.Store
	notifier *notify.NoiseNotifier
	expiry   *notify.SecretExpiryChecker
	events   *eventlog.Logger
}

// NewCommandHandler wires a handler to the application components.
func NewCommandHandler(deps Deps) *CommandHandler {
	return &CommandHandler{
		cfg:      deps.Config,
		engine:   deps.Engine,
		state:    deps.State,
		clips:    deps.Clips,
		notifier: deps.Notifier,
		expiry:   deps.Expiry,
		events:   deps.Events,
	}
}

// Handle runs one WebSocket command. Command names are slash-style,
// namespace/action, like "monitor/start" or "alert/update".
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "monitor":
		h.handleMonitor(action, cmd, send)
	case "alert":
		h.handleAlert(action, cmd, send)
	case "tone":
		h.handleTone(action, cmd, send)
	case "speech":
		h.handleSpeech(action, cmd, send)
	case "audio":
		h.handleAudio(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "clips":
		h.handleClips(action, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "system":
		h.handleSystem(action, send)
	case "config":
		h.handleConfig(action, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Command namespaces ---

// handleMonitor routes monitor/* commands
func (h *CommandHandler) handleMonitor(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		h.handleMonitorStart(cmd, send)
	case "stop":
		h.handleMonitorStop(cmd, send)
	case "calibrate":
		h.handleCalibrate(cmd, send)
	default:
		slog.Warn("unknown monitor action", "action", action)
	}
}

// handleAlert routes alert/* commands
func (h *CommandHandler) handleAlert(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleAlertUpdate(cmd, send)
	default:
		slog.Warn("unknown alert action", "action", action)
	}
}

// handleTone routes tone/* commands
func (h *CommandHandler) handleTone(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "test":
		h.handleToneTest(cmd, send)
	default:
		slog.Warn("unknown tone action", "action", action)
	}
}

// handleSpeech routes speech/* commands
func (h *CommandHandler) handleSpeech(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "send":
		h.handleSpeechSend(cmd, send)
	default:
		slog.Warn("unknown speech action", "action", action)
	}
}

// handleAudio covers the audio/* namespace
func (h *CommandHandler) handleAudio(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleAudioUpdate(cmd, send)
	default:
		slog.Warn("unknown audio action", "action", action)
	}
}

// handleNotifications covers the notifications/*/* namespace
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			h.handleWebhookUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_webhook")
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "log":
		switch subaction {
		case "update":
			h.handleLogUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_log")
		case "view":
			h.handleViewAlertLog(send)
		default:
			slog.Warn("unknown log action", "subaction", subaction)
		}
	case "email":
		switch subaction {
		case "update":
			h.handleEmailUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_email")
		default:
			slog.Warn("unknown email action", "subaction", subaction)
		}
	case "zabbix":
		switch subaction {
		case "update":
			h.handleZabbixUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_zabbix")
		default:
			slog.Warn("unknown zabbix action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleClips routes clips/* commands
func (h *CommandHandler) handleClips(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleClipsUpdate(cmd, send)
	case "test-s3":
		h.handleTestClipsS3(cmd, send)
	default:
		slog.Warn("unknown clips action", "action", action)
	}
}

// handleEvents routes events/* commands
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "get":
		h.handleEventsGet(cmd, send)
	default:
		slog.Warn("unknown events action", "action", action)
	}
}

// handleSystem routes system/* commands
func (h *CommandHandler) handleSystem(action string, send chan<- any) {
	switch action {
	case "generate-key":
		h.handleGenerateAPIKey(send)
	default:
		slog.Warn("unknown system action", "action", action)
	}
}

// handleConfig covers the config/* namespace
func (h *CommandHandler) handleConfig(action string, send chan<- any) {
	switch action {
	case "get":
		h.handleConfigGet(send)
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleStatus covers the status/* namespace
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	switch action {
	case "get":
		// No direct reply. Handle's status trigger pushes a fresh frame.
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
