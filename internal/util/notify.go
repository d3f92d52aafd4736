package util

import "log/slog"

// LogNotifyResult runs a notification send and logs how it went. Senders
// run in their own goroutines, so the log is the only place the outcome
// surfaces.
func LogNotifyResult(fn func() error, channel string) {
	if err := fn(); err != nil {
		slog.Error("notification failed", "channel", channel, "error", err)
		return
	}
	slog.Info("notification sent", "channel", channel)
}
