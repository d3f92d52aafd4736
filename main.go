// Package main provides a studio noise monitor that watches a microphone for
// sustained loud sound and plays an audible alert in the studio when the
// level crosses the configured threshold.
//
// Usage:
//
//	noisewatch [-config path/to/config.json]
//
// When -config is omitted, config.json is read from the directory the
// binary lives in.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/server"
	"github.com/oszuidwest/zwfm-noisewatch/internal/speech"
	"github.com/oszuidwest/zwfm-noisewatch/internal/state"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	// The event log is best effort; the monitor runs without it.
	events, err := eventlog.NewLogger(eventlog.DefaultLogPath())
	if err != nil {
		slog.Warn("event log disabled", "error", err)
		events = nil
	}

	tts := speech.NewEngine()
	if tts.Available() {
		slog.Info("speech engine found", "engine", tts.Name())
	} else {
		slog.Warn("speech engine not available - spoken messages will be dropped", "engine", tts.Name())
	}

	queue := speech.NewQueue()
	worker := speech.NewWorker(queue, tts, events)

	st := state.New(snap.AlertThreshold, queue)
	notifier := notify.NewNoiseNotifier(cfg)
	expiry := notify.NewSecretExpiryChecker(notify.BuildGraphConfig(snap))

	clipStore := clips.NewStore(server.ClipStoreConfig(snap), events, func(info clips.AbandonedUpload) {
		snap := cfg.Snapshot()
		if !snap.HasGraph() {
			return
		}
		if err := notify.SendUploadAbandonedEmail(notify.BuildGraphConfig(snap), snap.StationName, info); err != nil {
			slog.Error("failed to send abandoned upload email", "error", err)
		}
	})
	clipStore.Start()

	mon := monitor.New(cfg, st, notifier, events, clipStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)

	monDone := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(monDone)
	}()

	srv := NewServer(server.Deps{
		Config:   cfg,
		Engine:   mon,
		State:    st,
		Clips:    clipStore,
		Notifier: notifier,
		Expiry:   expiry,
		Events:   events,
	}, tts)

	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	srv.version.Stop()

	// HTTP first so no new commands arrive while everything else drains.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Stop the monitor loop and the speech worker.
	cancel()
	select {
	case <-monDone:
	case <-time.After(5 * time.Second):
		slog.Warn("monitor loop did not stop in time")
	}
	worker.Wait()

	clipStore.Stop()

	if events != nil {
		if err := events.Close(); err != nil {
			slog.Error("error closing event log", "error", err)
		}
	}

	slog.Info("shutdown complete")
}
