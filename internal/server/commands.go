package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-scope/internal/analyzer"
	"github.com/oszuidwest/zwfm-scope/internal/config"
	"github.com/oszuidwest/zwfm-scope/internal/eventlog"
	"github.com/oszuidwest/zwfm-scope/internal/notify"
)

// DefaultEventsLimit is the page size for events/get without a limit.
const DefaultEventsLimit = 50

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg          *config.Config
	analyzer     *analyzer.Analyzer
	notifier     *notify.Notifier
	eventLogPath string
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, a *analyzer.Analyzer, n *notify.Notifier, eventLogPath string) *CommandHandler {
	return &CommandHandler{
		cfg:          cfg,
		analyzer:     a,
		notifier:     n,
		eventLogPath: eventLogPath,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "capture/start", "notifications/email/test").
// triggerStatusUpdate is called once the command's effect is visible.
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
	case "capture":
		h.handleCapture(action, cmd, send, triggerStatusUpdate)
		return
	case "peak":
		h.handlePeak(action, send)
	case "audio":
		h.handleAudio(action, cmd, send, triggerStatusUpdate)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleCapture routes capture/* commands. Start and stop may block on
// the sample source, so they run asynchronously.
func (h *CommandHandler) handleCapture(action string, cmd WSCommand, send chan<- any, done func()) {
	var fn func() error
	switch action {
	case "start":
		fn = h.analyzer.Start
	case "stop":
		fn = h.analyzer.Stop
	case "restart":
		fn = h.analyzer.Restart
	default:
		slog.Warn("unknown capture action", "action", action)
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		if err := fn(); err != nil {
			return nil, err
		}
		return h.analyzer.Status(), nil
	}, done)
}

// handlePeak routes peak/* commands
func (h *CommandHandler) handlePeak(action string, send chan<- any) {
	switch action {
	case "reset":
		SendSuccess(send, "peak/reset", h.analyzer.ResetPeak())
	default:
		slog.Warn("unknown peak action", "action", action)
	}
}

// handleAudio routes audio/* commands
func (h *CommandHandler) handleAudio(action string, cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	switch action {
	case "update":
		h.handleAudioUpdate(cmd, send, triggerStatusUpdate)
	case "get":
		SendSuccess(send, cmd.Type, h.cfg.AudioSettings())
	default:
		slog.Warn("unknown audio action", "action", action)
	}
}

// handleAudioUpdate validates and persists new source settings and
// restarts a running capture loop so they take effect.
func (h *CommandHandler) handleAudioUpdate(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	HandleCommand(cmd, send, func(req *AudioUpdateRequest) (any, error) {
		if err := h.cfg.UpdateAudio(req.apply); err != nil {
			return nil, err
		}

		settings := h.cfg.AudioSettings()
		slog.Info("audio settings updated", "backend", settings.Backend,
			"input", settings.Input, "sample_rate", settings.SampleRate)

		if h.analyzer.IsRunning() {
			go func() {
				if err := h.analyzer.Restart(); err != nil {
					slog.Error("failed to restart capture after audio update", "error", err)
				}
				triggerStatusUpdate()
			}()
		}
		return settings, nil
	})
}

// apply copies the set fields of r onto a.
func (r *AudioUpdateRequest) apply(a *config.AudioConfig) {
	if r.Backend != nil {
		a.Backend = *r.Backend
	}
	if r.Input != nil {
		a.Input = *r.Input
	}
	if r.File != nil {
		a.File = *r.File
	}
	if r.Loop != nil {
		a.Loop = *r.Loop
	}
	if r.Realtime != nil {
		a.Realtime = *r.Realtime
	}
	if r.SampleRate != nil {
		a.SampleRate = *r.SampleRate
	}
	if r.BlockSize != nil {
		a.BlockSize = *r.BlockSize
	}
}

// handleNotifications routes notifications/*/test commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	if subaction != "test" {
		slog.Warn("unknown notifications action", "action", action, "subaction", subaction)
		return
	}

	var fn func() error
	switch action {
	case "webhook":
		fn = h.notifier.TestWebhook
	case "log":
		fn = h.notifier.TestLog
	case "email":
		fn = h.notifier.TestEmail
	default:
		slog.Warn("unknown notifications action", "action", action)
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, fn()
	}, nil)
}

// handleEvents routes events/* commands
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "get":
		HandleCommand(cmd, send, func(req *EventsRequest) (any, error) {
			limit := req.Limit
			if limit == 0 {
				limit = DefaultEventsLimit
			}
			events, hasMore, err := eventlog.ReadLast(h.eventLogPath, limit, req.Offset, eventlog.ParseFilter(req.Filter))
			if err != nil {
				return nil, err
			}
			return map[string]any{"events": events, "has_more": hasMore}, nil
		})
	default:
		slog.Warn("unknown events action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
