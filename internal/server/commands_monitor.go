package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

const (
	// calibrateTimeout bounds one calibration run, which opens the capture
	// device and records a fixed ambient window.
	calibrateTimeout = 15 * time.Second

	// toneTestTimeout bounds one test tone playback.
	toneTestTimeout = 15 * time.Second
)

// Message validation errors are part of the remote API contract: clients
// match on the exact strings, so they stay capitalized and unchanged.
var (
	ErrNoMessage      = fmt.Errorf("No message provided")                                            //nolint:staticcheck,stylecheck
	ErrMessageTooLong = fmt.Errorf("Message too long (max %d characters)", types.MaxMessageLength) //nolint:staticcheck,stylecheck
)

// ValidateMessage checks a spoken-message text against the API limits.
func ValidateMessage(text string) error {
	if text == "" {
		return ErrNoMessage
	}
	if utf8.RuneCountInString(text) > types.MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// handleMonitorStart processes a monitor/start command. The request is an
// edge flag consumed by the control poller, so the ack only means the
// request was recorded, not that the loop is armed yet.
func (h *CommandHandler) handleMonitorStart(cmd WSCommand, send chan<- any) {
	h.state.RequestStart()
	SendSuccess(send, cmd.Type, nil)
}

// handleMonitorStop processes a monitor/stop command.
func (h *CommandHandler) handleMonitorStop(cmd WSCommand, send chan<- any) {
	h.state.RequestStop()
	SendSuccess(send, cmd.Type, nil)
}

// handleCalibrate processes a monitor/calibrate command. Calibration records
// for a couple of seconds, so the capture runs off the reader goroutine and
// the result arrives as an async command result.
func (h *CommandHandler) handleCalibrate(cmd WSCommand, send chan<- any) {
	var req CalibrateRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), calibrateTimeout)
		defer cancel()
		return h.engine.Calibrate(ctx, req.Device)
	})
}

// handleToneTest processes a tone/test command by playing the configured
// alert tone on the output device.
func (h *CommandHandler) handleToneTest(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), toneTestTimeout)
		defer cancel()
		return nil, h.engine.PlayTestTone(ctx)
	})
}

// handleSpeechSend processes a speech/send command. Validation is manual so
// the error strings match the REST endpoint exactly.
func (h *CommandHandler) handleSpeechSend(cmd WSCommand, send chan<- any) {
	var req MessageRequest
	if err := json.Unmarshal(cmd.Data, &req); err != nil {
		SendError(send, cmd.Type, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if err := ValidateMessage(req.Message); err != nil {
		SendError(send, cmd.Type, err)
		return
	}

	h.state.EnqueueSpeech(req.Message)
	SendSuccess(send, cmd.Type, nil)
}
