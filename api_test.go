package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-scope/internal/analyzer"
	"github.com/oszuidwest/zwfm-scope/internal/audio"
	"github.com/oszuidwest/zwfm-scope/internal/config"
	"github.com/oszuidwest/zwfm-scope/internal/eventlog"
	"github.com/oszuidwest/zwfm-scope/internal/notify"
	"github.com/oszuidwest/zwfm-scope/internal/state"
	"github.com/oszuidwest/zwfm-scope/internal/types"
)

// blockingSource returns one loud block and then waits to be closed.
type blockingSource struct {
	once   sync.Once
	sent   bool
	closed chan struct{}
}

func (s *blockingSource) Read(dst []int16) (int, error) {
	if !s.sent {
		s.sent = true
		for i := range dst {
			dst[i] = 16384
		}
		return len(dst), nil
	}
	<-s.closed
	return 0, io.EOF
}

func (s *blockingSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type testServer struct {
	*Server
	http *httptest.Server
}

func newTestServer(t *testing.T, opener audio.Opener) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New(filepath.Join(dir, "config.json"))
	require.NoError(t, cfg.Load())

	eventPath := filepath.Join(dir, "events.jsonl")
	events, err := eventlog.NewLogger(eventPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	a := analyzer.New(opener, state.NewPublished(), analyzer.Options{BlockSize: 256, Events: events})
	t.Cleanup(func() { _ = a.Stop() })

	srv := NewServer(cfg, a, notify.NewNotifier(cfg), NewVersionChecker(), eventPath)
	hs := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(hs.Close)
	return &testServer{Server: srv, http: hs}
}

func newBlockingOpener() audio.Opener {
	return audio.OpenerFunc(func() (audio.Source, error) {
		return &blockingSource{closed: make(chan struct{})}, nil
	})
}

func (ts *testServer) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.http.URL+path, http.NoBody)
	require.NoError(t, err)
	req.SetBasicAuth(config.DefaultWebUsername, config.DefaultWebPassword)
	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAPIRequiresAuth(t *testing.T) {
	ts := newTestServer(t, newBlockingOpener())

	resp, err := ts.http.Client().Get(ts.http.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestAPILoginSession(t *testing.T) {
	ts := newTestServer(t, newBlockingOpener())
	client := ts.http.Client()

	body := `{"username":"admin","password":"scope"}`
	resp, err := client.Post(ts.http.URL+"/api/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)

	req, err := http.NewRequest(http.MethodGet, ts.http.URL+"/api/power", http.NoBody)
	require.NoError(t, err)
	req.AddCookie(cookies[0])
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Post(ts.http.URL+"/api/login", "application/json", strings.NewReader(`{"username":"admin"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIStateBeforeStart(t *testing.T) {
	ts := newTestServer(t, newBlockingOpener())

	resp := ts.do(t, http.MethodGet, "/api/state")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[state.Snapshot](t, resp)

	assert.Empty(t, snap.Waveform)
	assert.InDelta(t, audio.MinDB, snap.Power.AverageDB, 1e-9)
	assert.InDelta(t, audio.MinDB, snap.Peak.DisplayedDB, 1e-9)
	assert.Len(t, snap.Spectrum.Magnitudes, audio.SpectrumBins)
}

func TestAPICaptureLifecycle(t *testing.T) {
	ts := newTestServer(t, newBlockingOpener())

	resp := ts.do(t, http.MethodPost, "/api/capture/start")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.StateRunning, decode[types.AnalyzerStatus](t, resp).State)

	require.Eventually(t, func() bool { return ts.analyzer.Status().Frames == 1 }, time.Second, time.Millisecond)

	power := decode[audio.Power](t, ts.do(t, http.MethodGet, "/api/power"))
	assert.InDelta(t, -6.0206, power.CurrentDB, 1e-3)

	peak := decode[audio.PeakState](t, ts.do(t, http.MethodGet, "/api/peak"))
	assert.InDelta(t, -6.0206, peak.DisplayedDB, 1e-3)

	spectrum := decode[audio.SpectrumFrame](t, ts.do(t, http.MethodGet, "/api/spectrum"))
	require.Len(t, spectrum.Magnitudes, audio.SpectrumBins)
	assert.InDelta(t, 64.0, spectrum.Magnitudes[0], 1e-9, "DC bin of a constant half-scale block")

	waveform := decode[audio.Frame](t, ts.do(t, http.MethodGet, "/api/waveform"))
	assert.Len(t, waveform, 256)

	reset := decode[audio.PeakState](t, ts.do(t, http.MethodPost, "/api/peak/reset"))
	assert.InDelta(t, audio.MinDB, reset.DisplayedDB, 1e-9)

	resp = ts.do(t, http.MethodPost, "/api/capture/stop")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.StateStopped, decode[types.AnalyzerStatus](t, resp).State)

	status := decode[types.WSStatusResponse](t, ts.do(t, http.MethodGet, "/api/status"))
	assert.Equal(t, "status", status.Type)
	assert.Equal(t, types.StateStopped, status.Status.State)
	assert.Equal(t, "dev", status.Version.Current)
}

func TestAPICaptureStartUnavailable(t *testing.T) {
	ts := newTestServer(t, audio.OpenerFunc(func() (audio.Source, error) {
		return nil, errors.New("busy")
	}))

	resp := ts.do(t, http.MethodPost, "/api/capture/start")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Contains(t, body["error"], "busy")
}

func TestAPIEvents(t *testing.T) {
	ts := newTestServer(t, newBlockingOpener())
	require.NoError(t, ts.analyzer.Start())
	require.NoError(t, ts.analyzer.Stop())
	ts.analyzer.ResetPeak()

	type page struct {
		Events  []eventlog.Event `json:"events"`
		HasMore bool             `json:"has_more"`
	}

	all := decode[page](t, ts.do(t, http.MethodGet, "/api/events"))
	require.Len(t, all.Events, 3)
	assert.Equal(t, eventlog.PeakReset, all.Events[0].Type)
	assert.False(t, all.HasMore)

	capture := decode[page](t, ts.do(t, http.MethodGet, "/api/events?filter=capture&limit=1&offset=1"))
	require.Len(t, capture.Events, 1)
	assert.Equal(t, eventlog.CaptureStarted, capture.Events[0].Type)
	assert.False(t, capture.HasMore)

	resp := ts.do(t, http.MethodGet, "/api/events?limit=9999")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/events?offset=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, newBlockingOpener())
	resp := ts.do(t, http.MethodGet, "/api/capture/start")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketPushesChangedCells(t *testing.T) {
	ts := newTestServer(t, newBlockingOpener())

	header := http.Header{}
	req, _ := http.NewRequest(http.MethodGet, "/", http.NoBody)
	req.SetBasicAuth(config.DefaultWebUsername, config.DefaultWebPassword)
	header.Set("Authorization", req.Header.Get("Authorization"))

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	read := func() map[string]any {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, "status", read()["type"])
	var initial []string
	for range 4 {
		initial = append(initial, read()["type"].(string))
	}
	assert.Equal(t, []string{"waveform", "power", "peak", "spectrum"}, initial)

	ts.analyzer.Published().Power.Store(audio.Power{CurrentDB: -12, AverageDB: -20})

	msg := read()
	for msg["type"] == "status" {
		msg = read()
	}
	assert.Equal(t, "power", msg["type"], "only the changed cell is pushed")
	data := msg["data"].(map[string]any)
	assert.InDelta(t, -12.0, data["current_db"], 1e-9)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "peak/reset"}))
	for {
		msg = read()
		if msg["type"] == "peak/reset_result" {
			break
		}
	}
	assert.Equal(t, true, msg["success"])
}
