package server

import (
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"maps"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

const (
	sessionCookieName = "scope_session"
	sessionDuration   = 24 * time.Hour
	authRealm         = `Basic realm="zwfm-scope", charset="UTF-8"`
)

// Credentials returns the configured username and password.
type Credentials func() (username, password string)

// SessionManager manages authenticated sessions. It is safe for concurrent use.
type SessionManager struct {
	sessions map[string]time.Time
	mu       sync.Mutex
	now      func() time.Time
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// generateToken returns a cryptographically secure random token.
func generateToken() string {
	b := make([]byte, 32)
	if _, err := cryptorand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// Create creates a new session and returns the token.
func (sm *SessionManager) Create() string {
	token := generateToken()
	if token == "" {
		return ""
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()

	// Periodically clean up expired sessions.
	if rand.IntN(10) == 0 {
		maps.DeleteFunc(sm.sessions, func(_ string, expiresAt time.Time) bool {
			return now.After(expiresAt)
		})
	}

	sm.sessions[token] = now.Add(sessionDuration)
	return token
}

// Validate reports whether a session token is valid.
func (sm *SessionManager) Validate(token string) bool {
	if token == "" {
		return false
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	expiresAt, exists := sm.sessions[token]
	if !exists {
		return false
	}
	if sm.now().After(expiresAt) {
		delete(sm.sessions, token)
		return false
	}
	return true
}

// Delete removes a session token.
func (sm *SessionManager) Delete(token string) {
	if token == "" {
		return
	}
	sm.mu.Lock()
	delete(sm.sessions, token)
	sm.mu.Unlock()
}

// Len returns the number of stored sessions, expired ones included.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// credentialsMatch compares in constant time.
func credentialsMatch(username, password, wantUser, wantPass string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(wantPass)) == 1
	return userMatch && passMatch
}

// AuthMiddleware returns middleware that accepts either a valid session
// cookie or HTTP basic auth credentials. Other requests get 401.
func (sm *SessionManager) AuthMiddleware(creds Credentials) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(sessionCookieName); err == nil && sm.Validate(cookie.Value) {
				next(w, r)
				return
			}

			if user, pass, ok := r.BasicAuth(); ok {
				wantUser, wantPass := creds()
				if credentialsMatch(user, pass, wantUser, wantPass) {
					next(w, r)
					return
				}
			}

			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
	}
}

// setSessionCookie sets or clears the session cookie.
func setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// Login reports whether login succeeded and sets a session cookie if so.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, username, password string, creds Credentials) bool {
	wantUser, wantPass := creds()
	if !credentialsMatch(username, password, wantUser, wantPass) {
		return false
	}

	token := sm.Create()
	if token == "" {
		return false
	}

	setSessionCookie(w, r, token, int(sessionDuration.Seconds()))
	return true
}

// Logout clears the session cookie and deletes the session.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		sm.Delete(cookie.Value)
	}
	setSessionCookie(w, r, "", -1)
}
