// Package server provides the WebSocket command handling and session
// authentication for the scope web interface.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-scope/internal/config"
	"github.com/oszuidwest/zwfm-scope/internal/types"
)

// validate is the shared validator instance for request validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// DecodeAndValidate decodes JSON and validates the struct.
// Returns true if successful, false if an error response was already sent.
// A command without data decodes to the zero value.
func DecodeAndValidate[T any](cmd WSCommand, send chan<- any, data *T) bool {
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, data); err != nil {
			SendError(send, cmd.Type, fmt.Errorf("invalid JSON: %w", err))
			return false
		}
	}

	if err := validate.Struct(data); err != nil {
		SendValidationErrors(send, cmd.Type, err)
		return false
	}

	return true
}

// HandleCommand decodes, validates, and processes a command with automatic
// response handling. process returns the response data or an error.
func HandleCommand[T any](cmd WSCommand, send chan<- any, process func(*T) (any, error)) {
	var data T
	if !DecodeAndValidate(cmd, send, &data) {
		return
	}

	result, err := process(&data)
	if err != nil {
		SendError(send, cmd.Type, err)
		return
	}

	SendSuccess(send, cmd.Type, result)
}

// HandleActionAsync runs a command action asynchronously with panic recovery.
// done, when set, runs after the response was queued.
func HandleActionAsync(cmd WSCommand, send chan<- any, action func() (any, error), done func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in async handler", "command", cmd.Type, "panic", r)
				SendError(send, cmd.Type, errors.New("internal error"))
			}
			if done != nil {
				done()
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

// --- Response helpers ---

// SendSuccess sends a success response for a command.
func SendSuccess(send chan<- any, cmdType string, data any) {
	trySend(send, cmdType, types.WSCommandResult{
		Type:    cmdType + "_result",
		Success: true,
		Data:    data,
	})
}

// SendError sends an error response for a command. Configuration
// validation failures keep their per-field details.
func SendError(send chan<- any, cmdType string, err error) {
	result := types.WSCommandResult{
		Type:  cmdType + "_result",
		Error: err.Error(),
	}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		result.Fields = verr
	}
	trySend(send, cmdType, result)
}

// SendValidationErrors converts validator errors to our format and sends them.
func SendValidationErrors(send chan<- any, cmdType string, err error) {
	SendError(send, cmdType, toValidationError(err))
}

// ValidateRequest validates a decoded request. Failures are returned as
// *types.ValidationError keyed by JSON field name.
func ValidateRequest(v any) error {
	if err := validate.Struct(v); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) *types.ValidationError {
	verr := types.NewValidationError()

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			verr.Add(e.Field(), config.FormatValidationMessage(e), e.Value())
		}
	} else {
		// Fallback for non-validation errors
		verr.Add("", err.Error(), nil)
	}
	return verr
}

// trySend attempts to send a message, logging a warning if the channel is full.
func trySend(send chan<- any, cmdType string, msg any) {
	select {
	case send <- msg:
	default:
		slog.Warn("failed to send response: channel full or closed", "type", cmdType)
	}
}
