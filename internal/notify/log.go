package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/oszuidwest/zwfm-scope/internal/util"
)

// LogEntry is a single line in the notification log file.
type LogEntry struct {
	Timestamp string `json:"timestamp"`         // RFC3339 timestamp
	Event     string `json:"event"`             // capture_failed or test
	Backend   string `json:"backend,omitempty"` // Sample source backend
	Input     string `json:"input,omitempty"`   // Device or file
	Error     string `json:"error,omitempty"`   // Read failure
}

// LogCaptureFailure records a read failure that ended capture.
func LogCaptureFailure(logPath string, f *Failure) error {
	return appendLogEntry(logPath, &LogEntry{
		Timestamp: timestampUTC(),
		Event:     "capture_failed",
		Backend:   f.Backend,
		Input:     f.Input,
		Error:     f.Err.Error(),
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &LogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *LogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(append(jsonData, '\n')); err != nil {
		return util.WrapError("write log entry", err)
	}

	return nil
}
