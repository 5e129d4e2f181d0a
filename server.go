package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-scope/internal/analyzer"
	"github.com/oszuidwest/zwfm-scope/internal/config"
	"github.com/oszuidwest/zwfm-scope/internal/notify"
	"github.com/oszuidwest/zwfm-scope/internal/server"
	"github.com/oszuidwest/zwfm-scope/internal/types"
)

// statusInterval is the spacing of unsolicited WebSocket status messages.
const statusInterval = 3000 * time.Millisecond

// Server is an HTTP server that exposes the published state over REST
// and WebSocket.
type Server struct {
	config       *config.Config
	analyzer     *analyzer.Analyzer
	sessions     *server.SessionManager
	commands     *server.CommandHandler
	version      *VersionChecker
	eventLogPath string
}

// NewServer returns a new Server for the given analyzer.
func NewServer(cfg *config.Config, a *analyzer.Analyzer, n *notify.Notifier, version *VersionChecker, eventLogPath string) *Server {
	return &Server{
		config:       cfg,
		analyzer:     a,
		sessions:     server.NewSessionManager(),
		commands:     server.NewCommandHandler(cfg, a, n, eventLogPath),
		version:      version,
		eventLogPath: eventLogPath,
	}
}

// credentials returns the configured login.
func (s *Server) credentials() (string, string) {
	cfg := s.config.Snapshot()
	return cfg.WebUser, cfg.WebPassword
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Only the writer goroutine writes to the connection. send is never
	// closed; async command results may still arrive after done.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go s.runWebSocketWriter(conn, send, done)
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any, done <-chan struct{}) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done chan<- struct{}, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// cellVersions remembers which cell versions a client has been sent.
type cellVersions struct {
	waveform, power, peak, spectrum uint64
	primed                          bool
}

// runWebSocketEventLoop pushes changed cells at most once per broadcast
// interval, plus periodic status.
func (s *Server) runWebSocketEventLoop(send chan<- any, done <-chan struct{}, statusUpdate <-chan struct{}) {
	published := s.analyzer.Published()
	changed, unsubscribe := published.Subscribe()
	defer unsubscribe()

	broadcastTicker := time.NewTicker(s.config.Snapshot().BroadcastInterval)
	statusTicker := time.NewTicker(statusInterval)
	defer broadcastTicker.Stop()
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	var sent cellVersions
	if !trySend(s.buildWSStatus()) || !s.pushCells(&sent, trySend) {
		return
	}

	pending := false
	for {
		select {
		case <-done:
			return
		case <-changed:
			pending = true
		case <-broadcastTicker.C:
			if !pending {
				continue
			}
			pending = false
			if !s.pushCells(&sent, trySend) {
				return
			}
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				return
			}
		}
	}
}

// pushCells sends every cell whose version moved past what the client
// has seen. It returns false when the connection is gone.
func (s *Server) pushCells(sent *cellVersions, trySend func(any) bool) bool {
	p := s.analyzer.Published()

	push := func(name string, last *uint64, value any, version uint64) bool {
		if sent.primed && version == *last {
			return true
		}
		*last = version
		return trySend(types.WSCellResponse{Type: name, Data: value})
	}

	waveform, wv := p.Waveform.LoadVersion()
	power, pv := p.Power.LoadVersion()
	peak, kv := p.Peak.LoadVersion()
	spectrum, sv := p.Spectrum.LoadVersion()

	ok := push("waveform", &sent.waveform, waveform, wv) &&
		push("power", &sent.power, power, pv) &&
		push("peak", &sent.peak, peak, kv) &&
		push("spectrum", &sent.spectrum, spectrum, sv)
	sent.primed = true
	return ok
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	return types.WSStatusResponse{
		Type:    "status",
		Status:  s.analyzer.Status(),
		Version: s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.sessions.AuthMiddleware(s.credentials)

	// Public routes (no auth required)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	// Published state
	mux.HandleFunc("GET /api/state", auth(s.handleAPIState))
	mux.HandleFunc("GET /api/waveform", auth(s.handleAPIWaveform))
	mux.HandleFunc("GET /api/power", auth(s.handleAPIPower))
	mux.HandleFunc("GET /api/peak", auth(s.handleAPIPeak))
	mux.HandleFunc("GET /api/spectrum", auth(s.handleAPISpectrum))

	// Service information
	mux.HandleFunc("GET /api/status", auth(s.handleAPIStatus))
	mux.HandleFunc("GET /api/devices", auth(s.handleAPIDevices))
	mux.HandleFunc("GET /api/events", auth(s.handleAPIEvents))

	// Control
	mux.HandleFunc("POST /api/capture/start", auth(s.handleAPICaptureStart))
	mux.HandleFunc("POST /api/capture/stop", auth(s.handleAPICaptureStop))
	mux.HandleFunc("POST /api/peak/reset", auth(s.handleAPIPeakReset))

	mux.HandleFunc("/ws", auth(s.handleWebSocket))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// loginRequest is the body of POST /api/login.
type loginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=500"`
}

// handleLogin exchanges credentials for a session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[loginRequest](w, r)
	if !ok {
		return
	}
	if !s.sessions.Login(w, r, req.Username, req.Password, s.credentials) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLogout handles user logout requests.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
