// Package eventlog records capture lifecycle events for the scope in a
// JSON lines file: capture_started, capture_stopped, capture_error and
// peak_reset.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Capture event types.
const (
	CaptureStarted EventType = "capture_started"
	CaptureStopped EventType = "capture_stopped"
	CaptureError   EventType = "capture_error"
)

// Peak event types.
const (
	PeakReset EventType = "peak_reset"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// CaptureDetails contains capture-specific event details.
type CaptureDetails struct {
	Backend    string `json:"backend,omitempty"`
	Input      string `json:"input,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Frames     uint64 `json:"frames,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PeakDetails contains the peak reading cleared by a reset.
type PeakDetails struct {
	DisplayedDB float64 `json:"displayed_db"`
	MaxDB       float64 `json:"max_db"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath(port int) string {
	switch runtime.GOOS {
	case "windows":
		// %PROGRAMDATA% is typically C:\ProgramData
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "zwfm-scope", "logs", fmt.Sprintf("%d", port), "scope.jsonl")
	default: // linux, darwin
		//nolint:gocritic // Intentional absolute path for Unix systems
		return filepath.Join("/var/log/zwfm-scope", fmt.Sprintf("%d", port), "scope.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogCapture logs a capture lifecycle event.
func (l *Logger) LogCapture(eventType EventType, message string, details *CaptureDetails) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Message:   message,
		Details:   details,
	})
}

// LogPeakReset logs a manual peak reset with the values it cleared.
func (l *Logger) LogPeakReset(displayedDB, maxDB float64) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      PeakReset,
		Details: &PeakDetails{
			DisplayedDB: displayedDB,
			MaxDB:       maxDB,
		},
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterCapture TypeFilter = "capture"
	FilterPeak    TypeFilter = "peak"
)

// ParseFilter maps a filter name to a TypeFilter. "all" and the empty
// string select every event.
func ParseFilter(name string) TypeFilter {
	if name == "all" {
		return FilterAll
	}
	return TypeFilter(name)
}

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// Matches reports whether t passes the filter.
func (f TypeFilter) Matches(t EventType) bool {
	switch f {
	case FilterAll:
		return true
	case FilterCapture:
		return IsCaptureEvent(t)
	case FilterPeak:
		return IsPeakEvent(t)
	default:
		return false
	}
}

// ReadLast reads events from the log file with pagination support.
// Returns up to n events starting from offset, filtered by type, and
// whether more matching events exist beyond the returned page.
// Events are returned in reverse chronological order (newest first).
// The n parameter is capped at MaxReadLimit.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}
	offset = max(offset, 0)

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	skipped := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !filter.Matches(event.Type) {
			continue
		}

		if skipped < offset {
			skipped++
			continue
		}

		if len(events) == n {
			// One more match past the page.
			return events, true, nil
		}
		events = append(events, event)
	}

	return events, false, nil
}

// IsCaptureEvent returns true if the event type is a capture event.
func IsCaptureEvent(t EventType) bool {
	return t == CaptureStarted || t == CaptureStopped || t == CaptureError
}

// IsPeakEvent returns true if the event type is a peak event.
func IsPeakEvent(t EventType) bool {
	return t == PeakReset
}
