package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticCreds(user, pass string) Credentials {
	return func() (string, string) { return user, pass }
}

func TestSessionExpires(t *testing.T) {
	sm := NewSessionManager()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }

	token := sm.Create()
	require.NotEmpty(t, token)
	assert.True(t, sm.Validate(token))

	now = now.Add(sessionDuration + time.Second)
	assert.False(t, sm.Validate(token))
	assert.Equal(t, 0, sm.Len(), "expired session is removed on validation")
}

func TestSessionDelete(t *testing.T) {
	sm := NewSessionManager()
	token := sm.Create()
	sm.Delete(token)
	assert.False(t, sm.Validate(token))
	assert.False(t, sm.Validate(""))
}

func TestAuthMiddleware(t *testing.T) {
	sm := NewSessionManager()
	auth := sm.AuthMiddleware(staticCreds("admin", "secret"))
	handler := auth(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	token := sm.Create()

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"basic auth", func(r *http.Request) { r.SetBasicAuth("admin", "secret") }, http.StatusNoContent},
		{"wrong password", func(r *http.Request) { r.SetBasicAuth("admin", "nope") }, http.StatusUnauthorized},
		{"session cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
		}, http.StatusNoContent},
		{"unknown cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "bogus"})
		}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/state", http.NoBody)
			tt.prepare(r)
			w := httptest.NewRecorder()
			handler(w, r)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, authRealm, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestLoginAndLogout(t *testing.T) {
	sm := NewSessionManager()
	creds := staticCreds("admin", "secret")

	r := httptest.NewRequest(http.MethodPost, "/api/login", http.NoBody)
	w := httptest.NewRecorder()
	assert.False(t, sm.Login(w, r, "admin", "wrong", creds))
	assert.Empty(t, w.Result().Cookies())

	w = httptest.NewRecorder()
	require.True(t, sm.Login(w, r, "admin", "secret", creds))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, sm.Validate(cookies[0].Value))

	r = httptest.NewRequest(http.MethodPost, "/api/logout", http.NoBody)
	r.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	sm.Logout(w, r)
	assert.False(t, sm.Validate(cookies[0].Value))
	require.Len(t, w.Result().Cookies(), 1)
	assert.Negative(t, w.Result().Cookies()[0].MaxAge)
}
