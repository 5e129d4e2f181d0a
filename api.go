package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-scope/internal/analyzer"
	"github.com/oszuidwest/zwfm-scope/internal/audio"
	"github.com/oszuidwest/zwfm-scope/internal/eventlog"
	"github.com/oszuidwest/zwfm-scope/internal/server"
	"github.com/oszuidwest/zwfm-scope/internal/types"
)

// API response helpers

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeValidationError reports per-field failures with 400.
func writeValidationError(w http.ResponseWriter, err error) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "fields": verr.Errors})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// parseJSON reads, parses and validates JSON from the request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	if err := server.ValidateRequest(&v); err != nil {
		writeValidationError(w, err)
		return v, false
	}
	return v, true
}

// --- Published state ---

// handleAPIState returns all four cells.
// GET /api/state
func (s *Server) handleAPIState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.Published().Snapshot())
}

// GET /api/waveform
func (s *Server) handleAPIWaveform(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.Published().Waveform.Load())
}

// GET /api/power
func (s *Server) handleAPIPower(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.Published().Power.Load())
}

// GET /api/peak
func (s *Server) handleAPIPeak(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.Published().Peak.Load())
}

// GET /api/spectrum
func (s *Server) handleAPISpectrum(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.Published().Spectrum.Load())
}

// --- Service information ---

// handleAPIStatus returns the analyzer status and version information.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleAPIDevices returns available audio devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": audio.ListDevices(),
	})
}

// handleAPIEvents returns a page of the event log, newest first.
// GET /api/events?limit=50&offset=0&filter=capture
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := server.EventsRequest{
		Limit:  server.DefaultEventsLimit,
		Filter: q.Get("filter"),
	}
	for name, dst := range map[string]*int{"limit": &req.Limit, "offset": &req.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, name+" must be an integer")
			return
		}
		*dst = n
	}
	if err := server.ValidateRequest(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	events, hasMore, err := eventlog.ReadLast(s.eventLogPath, req.Limit, req.Offset, eventlog.ParseFilter(req.Filter))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"has_more": hasMore,
	})
}

// --- Control ---

// handleAPICaptureStart starts the capture loop.
// POST /api/capture/start
func (s *Server) handleAPICaptureStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.analyzer.Start(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, analyzer.ErrDeviceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.analyzer.Status())
}

// handleAPICaptureStop stops the capture loop.
// POST /api/capture/stop
func (s *Server) handleAPICaptureStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.analyzer.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.analyzer.Status())
}

// handleAPIPeakReset clears the peak markers and session maximum.
// POST /api/peak/reset
func (s *Server) handleAPIPeakReset(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.ResetPeak())
}
