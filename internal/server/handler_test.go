package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

func TestDecodeAndValidateAcceptsValidRequest(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{
		Type: "alert/update",
		Data: json.RawMessage(`{"shape":"square","volume_pct":80,"frequency_hz":440}`),
	}

	var req AlertUpdateRequest
	require.True(t, DecodeAndValidate(cmd, send, &req))
	assert.Empty(t, send)

	require.NotNil(t, req.Shape)
	assert.Equal(t, "square", *req.Shape)
	require.NotNil(t, req.VolumePct)
	assert.Equal(t, 80, *req.VolumePct)
	assert.Nil(t, req.ThresholdDB)
}

func TestDecodeAndValidateRejectsInvalidJSON(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{Type: "alert/update", Data: json.RawMessage(`{not json`)}

	var req AlertUpdateRequest
	require.False(t, DecodeAndValidate(cmd, send, &req))

	result := (<-send).(map[string]any)
	assert.Equal(t, "alert/update_result", result["type"])
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "invalid JSON")
}

func firstFieldError(t *testing.T, send chan any) types.FieldError {
	t.Helper()
	result := (<-send).(map[string]any)
	require.Equal(t, false, result["success"])
	verr, ok := result["error"].(*types.ValidationError)
	require.True(t, ok, "error is not a validation error: %T", result["error"])
	require.NotEmpty(t, verr.Errors)
	return verr.Errors[0]
}

func TestDecodeAndValidateFieldErrors(t *testing.T) {
	t.Run("unknown_tone_shape", func(t *testing.T) {
		send := make(chan any, 1)
		var req AlertUpdateRequest
		cmd := WSCommand{Type: "alert/update", Data: json.RawMessage(`{"shape":"triangle"}`)}

		require.False(t, DecodeAndValidate(cmd, send, &req))
		fieldErr := firstFieldError(t, send)
		assert.Equal(t, "shape", fieldErr.Field)
		assert.Equal(t, "must be one of: sine square saw", fieldErr.Message)
	})

	t.Run("volume_above_range", func(t *testing.T) {
		send := make(chan any, 1)
		var req AlertUpdateRequest
		cmd := WSCommand{Type: "alert/update", Data: json.RawMessage(`{"volume_pct":150}`)}

		require.False(t, DecodeAndValidate(cmd, send, &req))
		fieldErr := firstFieldError(t, send)
		assert.Equal(t, "volume_pct", fieldErr.Field)
		assert.Equal(t, "must be less than or equal to 100", fieldErr.Message)
	})

	t.Run("unsupported_sample_rate", func(t *testing.T) {
		send := make(chan any, 1)
		var req AudioUpdateRequest
		cmd := WSCommand{Type: "audio/update", Data: json.RawMessage(`{"sample_rate":11025}`)}

		require.False(t, DecodeAndValidate(cmd, send, &req))
		fieldErr := firstFieldError(t, send)
		assert.Equal(t, "sample_rate", fieldErr.Field)
	})

	t.Run("s3_test_requires_bucket", func(t *testing.T) {
		send := make(chan any, 1)
		var req S3TestRequest
		cmd := WSCommand{
			Type: "clips/test-s3",
			Data: json.RawMessage(`{"s3_access_key_id":"AKIA","s3_secret_access_key":"secret"}`),
		}

		require.False(t, DecodeAndValidate(cmd, send, &req))
		fieldErr := firstFieldError(t, send)
		assert.Equal(t, "s3_bucket", fieldErr.Field)
		assert.Equal(t, "is required", fieldErr.Message)
	})

	t.Run("events_limit_capped", func(t *testing.T) {
		send := make(chan any, 1)
		var req EventsRequest
		cmd := WSCommand{Type: "events/get", Data: json.RawMessage(`{"limit":501}`)}

		require.False(t, DecodeAndValidate(cmd, send, &req))
		fieldErr := firstFieldError(t, send)
		assert.Equal(t, "limit", fieldErr.Field)
		assert.Equal(t, "must be less than or equal to 500", fieldErr.Message)
	})
}

func TestSendSuccessShape(t *testing.T) {
	send := make(chan any, 1)
	SendSuccess(send, "tone/test", nil)

	result := (<-send).(map[string]any)
	assert.Equal(t, "tone/test_result", result["type"])
	assert.Equal(t, true, result["success"])
	_, hasData := result["data"]
	assert.False(t, hasData, "nil data should be omitted")

	SendSuccess(send, "monitor/calibrate", types.CalibrationResult{AmbientDB: -48, SuggestedDB: -38})
	result = (<-send).(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.NotNil(t, result["data"])
}

func TestHandleActionAsyncRecoversFromPanic(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{Type: "monitor/calibrate"}

	HandleActionAsync(cmd, send, func() (any, error) {
		panic("capture backend exploded")
	})

	select {
	case msg := <-send:
		result := msg.(map[string]any)
		assert.Equal(t, false, result["success"])
		assert.Equal(t, "internal error", result["error"])
	case <-time.After(2 * time.Second):
		t.Fatal("panic recovery never sent a response")
	}
}

func TestTrySendDropsWhenChannelFull(t *testing.T) {
	send := make(chan any, 1)
	send <- "occupied"

	done := make(chan struct{})
	go func() {
		SendError(send, "tone/test", assert.AnError)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendError blocked on a full channel")
	}
	assert.Equal(t, "occupied", <-send)
}
