package types

// WSStatusResponse is sent to clients with analyzer status.
type WSStatusResponse struct {
	Type    string         `json:"type"`    // "status"
	Status  AnalyzerStatus `json:"status"`  // Capture loop status
	Version VersionInfo    `json:"version"` // Version information
}

// WSCellResponse carries the latest value of one published cell.
type WSCellResponse struct {
	Type string `json:"type"` // Cell name: waveform, power, peak or spectrum
	Data any    `json:"data"`
}

// WSCommandResult is the standard response for command execution.
type WSCommandResult struct {
	Type    string           `json:"type"`             // "<command>_result"
	Success bool             `json:"success"`          // true if command succeeded
	Error   string           `json:"error,omitempty"`  // Failure message
	Fields  *ValidationError `json:"fields,omitempty"` // Per-field validation errors
	Data    any              `json:"data,omitempty"`   // Optional response data
}
