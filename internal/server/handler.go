// Package server implements the WebSocket command surface of the noise
// monitor: decoding, validation, dispatch and response framing.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// validate is the shared validator for all request structs.
var validate = newValidator()

// newValidator builds a validator that reports fields under their JSON
// names, which is what the panel shows next to its inputs.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// DecodeAndValidate parses the command payload into v and validates it.
// On failure an error response has already been sent and false comes back.
// Use this for handlers that need to send custom response formats.
func DecodeAndValidate[T any](cmd WSCommand, send chan<- any, data *T) bool {
	if err := json.Unmarshal(cmd.Data, data); err != nil {
		SendError(send, cmd.Type, fmt.Errorf("invalid JSON: %w", err))
		return false
	}
	if err := validate.Struct(data); err != nil {
		SendValidationErrors(send, cmd.Type, err)
		return false
	}
	return true
}

// HandleCommand decodes, validates, and processes a command with automatic
// response handling. Use this for commands where the reply is just success
// or an error.
func HandleCommand[T any](h *CommandHandler, cmd WSCommand, send chan<- any, process func(*T) error) {
	var data T
	if !DecodeAndValidate(cmd, send, &data) {
		return
	}
	if err := process(&data); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, nil)
}

// HandleActionAsync runs an action off the reader goroutine so a slow
// device or network call cannot stall command dispatch. Panics become an
// error reply instead of killing the connection.
func HandleActionAsync(cmd WSCommand, send chan<- any, action func() (any, error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in async handler", "command", cmd.Type, "panic", r)
				SendError(send, cmd.Type, fmt.Errorf("internal error"))
			}
		}()

		result, err := action()
		if err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, result)
	}()
}

// --- Replies to the client ---

// resultEnvelope frames a reply to one command.
func resultEnvelope(cmdType string, success bool) map[string]any {
	return map[string]any{
		"type":    cmdType + "_result",
		"success": success,
	}
}

// SendSuccess sends a success response for a command. A nil data leaves
// the data key out entirely.
func SendSuccess(send chan<- any, cmdType string, data any) {
	result := resultEnvelope(cmdType, true)
	if data != nil {
		result["data"] = data
	}
	trySend(send, cmdType, result)
}

// SendError reports a failed command to the client.
func SendError(send chan<- any, cmdType string, err error) {
	result := resultEnvelope(cmdType, false)
	result["error"] = err.Error()
	trySend(send, cmdType, result)
}

// SendValidationErrors converts validator errors into the per-field shape
// the panel renders, and sends them.
func SendValidationErrors(send chan<- any, cmdType string, err error) {
	verr := types.NewValidationError()

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, e := range fieldErrs {
			verr.Add(e.Field(), formatValidationMessage(e), e.Value())
		}
	} else {
		verr.Add("", err.Error(), nil)
	}

	result := resultEnvelope(cmdType, false)
	result["error"] = verr
	trySend(send, cmdType, result)
}

// trySend queues msg for the writer, dropping it when the channel is full.
func trySend(send chan<- any, cmdType string, msg any) {
	select {
	case send <- msg:
	default:
		slog.Warn("failed to send response: channel full or closed", "type", cmdType)
	}
}

// formatValidationMessage renders one field error for the client.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
