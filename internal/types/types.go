// Package types provides shared type definitions used across the scope.
package types

import (
	"time"
)

// AnalyzerState represents the current state of the capture loop.
type AnalyzerState string

const (
	// StateStopped indicates no capture loop is running.
	StateStopped AnalyzerState = "stopped"
	// StateRunning indicates the capture loop is reading samples.
	StateRunning AnalyzerState = "running"
)

const (
	// ShutdownTimeout is the duration to wait for the capture loop to exit.
	ShutdownTimeout = 3000 * time.Millisecond
	// DefaultPruneInterval is the peak invalidation cadence (one display frame).
	DefaultPruneInterval = 16 * time.Millisecond
	// DefaultBroadcastInterval is the minimum spacing of WebSocket pushes.
	DefaultBroadcastInterval = 50 * time.Millisecond
)

// Audio format defaults for PCM capture.
const (
	// DefaultSampleRate is the capture sample rate in Hz.
	DefaultSampleRate = 48000
	// DefaultBlockSize is the number of samples per read.
	DefaultBlockSize = 1024
)

// Capture backends.
const (
	BackendCapture = "capture" // Platform capture process
	BackendWAV     = "wav"     // WAV file
)

// AnalyzerStatus contains a summary of the capture loop's operational state.
type AnalyzerStatus struct {
	State      AnalyzerState `json:"state"`                 // Current state
	Backend    string        `json:"backend,omitempty"`     // Sample source backend
	Input      string        `json:"input,omitempty"`       // Device or file
	SampleRate int           `json:"sample_rate,omitempty"` // Source sample rate in Hz
	Uptime     string        `json:"uptime,omitzero"`       // Time since start
	LastError  string        `json:"last_error,omitzero"`   // Most recent error
	Frames     uint64        `json:"frames"`                // Frames processed since start
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
