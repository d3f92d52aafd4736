package main

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/audio"
	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/server"
	"github.com/oszuidwest/zwfm-noisewatch/internal/speech"
	"github.com/oszuidwest/zwfm-noisewatch/internal/state"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// Server is the HTTP server for the remote control API and the live
// WebSocket feed. The web panel itself is hosted elsewhere; this process
// only speaks JSON.
type Server struct {
	config   *config.Config
	engine   *monitor.Engine
	state    *state.State
	clips    *clips.Store
	notifier *notify.NoiseNotifier
	expiry   *notify.SecretExpiryChecker
	events   *eventlog.Logger
	tts      speech.Engine
	commands *server.CommandHandler
	version  *VersionChecker
}

// NewServer wires the HTTP layer to the application components.
func NewServer(deps server.Deps, tts speech.Engine) *Server {
	return &Server{
		config:   deps.Config,
		engine:   deps.Engine,
		state:    deps.State,
		clips:    deps.Clips,
		notifier: deps.Notifier,
		expiry:   deps.Expiry,
		events:   deps.Events,
		tts:      tts,
		commands: server.NewCommandHandler(deps),
		version:  NewVersionChecker(),
	}
}

// handleWebSocket upgrades the request and serves the live feed until the
// client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// All writes go through send; the writer goroutine is the only caller
	// of WriteJSON on this connection.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter drains send onto the connection and closes it when the
// channel is closed or a write fails.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader dispatches incoming commands and signals done when the
// connection drops.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes periodic level and status frames until the
// reader signals done.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(100 * time.Millisecond)  // 10 fps for the level meter
	statusTicker := time.NewTicker(3000 * time.Millisecond) // status refresh
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	// trySend blocks until the message is queued or done closes.
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Status snapshot first so the client can render immediately.
	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		case <-levelsTicker.C:
			if !trySend(types.WSLevelsResponse{Type: "levels", Levels: s.engine.Levels()}) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// buildWSStatus assembles the full status frame for the live feed.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()

	devices, err := audio.ListDevices()
	if err != nil {
		slog.Debug("device enumeration failed", "error", err)
	}

	return types.WSStatusResponse{
		Type:          "status",
		Monitor:       s.engine.Status(),
		Settings:      cfg.MonitorSettings(s.state.Threshold()),
		Devices:       devices,
		SpeechPending: s.state.SpeechPending(),
		SpeechEngine:  s.tts.Name(),
		WebhookURL:    cfg.WebhookURL,
		AlertLogPath:  cfg.LogPath,
		ZabbixServer:  cfg.ZabbixServer,
		ZabbixPort:    cfg.ZabbixPort,
		ZabbixHost:    cfg.ZabbixHost,
		ZabbixKey:     cfg.ZabbixKey,
		GraphTenantID: cfg.GraphTenantID,
		GraphClientID: cfg.GraphClientID,
		GraphFrom:     cfg.GraphFromAddress,
		GraphTo:       cfg.GraphRecipients,
		GraphExpiry:   s.expiry.GetInfo(),
		Clips:         s.clips.Settings(),
		Platform:      runtime.GOOS,
		Version:       s.version.Info(),
	}
}

// SetupRoutes builds the handler for the whole HTTP surface.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.apiKeyAuth

	// Health stays public so load balancers can probe without a key.
	mux.HandleFunc("/health", s.handleHealth)

	// Monitoring state and control
	mux.HandleFunc("/api/state", auth(s.handleState))
	mux.HandleFunc("/api/threshold", auth(s.handleThreshold))
	mux.HandleFunc("/api/monitoring/start", auth(s.handleMonitoringStart))
	mux.HandleFunc("/api/monitoring/stop", auth(s.handleMonitoringStop))
	mux.HandleFunc("/api/message", auth(s.handleMessage))

	// Diagnostics and configuration
	mux.HandleFunc("/api/status", auth(s.handleStatus))
	mux.HandleFunc("/api/devices", auth(s.handleDevices))
	mux.HandleFunc("/api/calibrate", auth(s.handleCalibrate))
	mux.HandleFunc("/api/tone/test", auth(s.handleToneTest))
	mux.HandleFunc("/api/settings", auth(s.handleSettings))
	mux.HandleFunc("/api/events", auth(s.handleEvents))

	// Notification channel tests
	mux.HandleFunc("/api/test/webhook", auth(s.handleTestWebhook))
	mux.HandleFunc("/api/test/log", auth(s.handleTestLog))
	mux.HandleFunc("/api/test/email", auth(s.handleTestEmail))
	mux.HandleFunc("/api/test/zabbix", auth(s.handleTestZabbix))
	mux.HandleFunc("/api/test/s3", auth(s.handleTestS3))

	// Live feed
	mux.HandleFunc("/ws", auth(s.handleWebSocket))

	return securityHeaders(mux)
}

// securityHeaders stamps the standard hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// apiKeyAuth returns middleware for API key authentication. An empty
// configured key leaves the control surface open, for single-studio
// deployments on a trusted network.
func (s *Server) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := s.config.APIKey()
		if apiKey == "" {
			next(w, r)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if providedKey == "" {
			// Browser WebSocket clients cannot set request headers.
			providedKey = r.URL.Query().Get("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// Start launches the HTTP server in the background and returns it so the
// caller can shut it down gracefully.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
