package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"1.2.0", "1.1.9", true},
		{"v1.10.0", "1.9.0", true},
		{"1.2.0", "1.2.0", false},
		{"1.1.0", "v1.2.0", false},
		{"2.0.0", "2.0.0-rc1", true},
	}
	for _, tt := range tests {
		t.Run(tt.latest+"_vs_"+tt.current, func(t *testing.T) {
			assert.Equal(t, tt.want, isNewerVersion(tt.latest, tt.current))
		})
	}
}

func TestVersionCheckUsesETag(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/repos/"+githubRepo+"/releases/latest", r.URL.Path)
		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte(`{"tag_name":"v9.9.9","draft":false,"prerelease":false}`))
	}))
	defer api.Close()

	vc := NewVersionChecker()
	vc.apiBase = api.URL

	require.True(t, vc.check(context.Background()))
	assert.Equal(t, "9.9.9", vc.Info().Latest)

	require.True(t, vc.check(context.Background()))
	assert.Equal(t, "9.9.9", vc.Info().Latest)
	assert.Equal(t, int32(2), calls.Load())
}

func TestVersionCheckRetriesOnRateLimit(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer api.Close()

	vc := NewVersionChecker()
	vc.apiBase = api.URL
	assert.False(t, vc.check(context.Background()))
	assert.Empty(t, vc.Info().Latest)
}

func TestVersionCheckIgnoresPrerelease(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"v10.0.0-beta","prerelease":true}`))
	}))
	defer api.Close()

	vc := NewVersionChecker()
	vc.apiBase = api.URL
	assert.True(t, vc.check(context.Background()))
	assert.Empty(t, vc.Info().Latest)
}

func TestVersionRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewVersionChecker().Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
