package server

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/speech"
	"github.com/oszuidwest/zwfm-noisewatch/internal/state"
)

func newTestHandler(t *testing.T) (*CommandHandler, *state.State) {
	t.Helper()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Load())

	st := state.New(-30, speech.NewQueue())
	notifier := notify.NewNoiseNotifier(cfg)
	snap := cfg.Snapshot()

	h := NewCommandHandler(Deps{
		Config:   cfg,
		Engine:   monitor.New(cfg, st, notifier, nil, nil),
		State:    st,
		Clips:    clips.NewStore(ClipStoreConfig(snap), nil, nil),
		Notifier: notifier,
		Expiry:   notify.NewSecretExpiryChecker(notify.BuildGraphConfig(snap)),
		Events:   nil,
	})
	return h, st
}

func receiveResult(t *testing.T, send chan any) map[string]any {
	t.Helper()
	select {
	case msg := <-send:
		result, ok := msg.(map[string]any)
		require.True(t, ok, "response is not a command result: %T", msg)
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("no response arrived")
		return nil
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{name: "empty", text: "", wantErr: "No message provided"},
		{name: "short", text: "check the studio", wantErr: ""},
		{name: "exactly_max", text: strings.Repeat("a", 500), wantErr: ""},
		{name: "one_over_max", text: strings.Repeat("a", 501), wantErr: "Message too long (max 500 characters)"},
		{name: "multibyte_counted_as_runes", text: strings.Repeat("é", 500), wantErr: ""},
		{name: "multibyte_over_max", text: strings.Repeat("é", 501), wantErr: "Message too long (max 500 characters)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
			}
		})
	}
}

func TestHandleMonitorStartRecordsRequest(t *testing.T) {
	h, st := newTestHandler(t)
	send := make(chan any, 4)
	statusTriggered := false

	h.Handle(WSCommand{Type: "monitor/start"}, send, func() { statusTriggered = true })

	result := receiveResult(t, send)
	assert.Equal(t, "monitor/start_result", result["type"])
	assert.Equal(t, true, result["success"])
	assert.True(t, statusTriggered)

	start, stop := st.ConsumeRequests()
	assert.True(t, start)
	assert.False(t, stop)
}

func TestHandleMonitorStopRecordsRequest(t *testing.T) {
	h, st := newTestHandler(t)
	send := make(chan any, 4)

	h.Handle(WSCommand{Type: "monitor/stop"}, send, func() {})

	result := receiveResult(t, send)
	assert.Equal(t, true, result["success"])

	start, stop := st.ConsumeRequests()
	assert.False(t, start)
	assert.True(t, stop)
}

func TestHandleSpeechSend(t *testing.T) {
	h, st := newTestHandler(t)
	send := make(chan any, 4)

	h.Handle(WSCommand{
		Type: "speech/send",
		Data: json.RawMessage(`{"message":"transmitter room door is open"}`),
	}, send, func() {})

	result := receiveResult(t, send)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, 1, st.SpeechPending())
}

func TestHandleSpeechSendRejectsBadMessages(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "empty_message",
			data:    `{"message":""}`,
			wantErr: "No message provided",
		},
		{
			name:    "missing_field",
			data:    `{}`,
			wantErr: "No message provided",
		},
		{
			name:    "too_long",
			data:    fmt.Sprintf(`{"message":%q}`, strings.Repeat("a", 501)),
			wantErr: "Message too long (max 500 characters)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, st := newTestHandler(t)
			send := make(chan any, 4)

			h.Handle(WSCommand{Type: "speech/send", Data: json.RawMessage(tt.data)}, send, func() {})

			result := receiveResult(t, send)
			assert.Equal(t, false, result["success"])
			assert.Equal(t, tt.wantErr, result["error"])
			assert.Zero(t, st.SpeechPending())
		})
	}
}
