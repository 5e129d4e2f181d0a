package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/oszuidwest/zwfm-scope/internal/types"
	"github.com/oszuidwest/zwfm-scope/internal/util"
)

const (
	githubRepo           = "oszuidwest/zwfm-scope"
	githubAPIBase        = "https://api.github.com"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30000 * time.Millisecond // Delay before first check to avoid blocking startup
	versionCheckTimeout  = 30000 * time.Millisecond // HTTP request timeout
	versionMaxRetries    = 3                        // Max retries per check cycle
	versionRetryDelay    = 1 * time.Minute          // First delay between retries
	versionRetryMaxDelay = 10 * time.Minute         // Cap on the retry delay
)

// VersionChecker checks for new releases and reports update availability. It is safe for concurrent use.
type VersionChecker struct {
	apiBase string
	client  *http.Client

	mu     sync.RWMutex
	latest string
	etag   string // For conditional requests (304 Not Modified)
}

// NewVersionChecker returns a VersionChecker querying the GitHub releases API.
func NewVersionChecker() *VersionChecker {
	return &VersionChecker{
		apiBase: githubAPIBase,
		client:  &http.Client{Timeout: versionCheckTimeout},
	}
}

// Run checks for updates after an initial delay and then daily until ctx is done.
func (vc *VersionChecker) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	if !sleepCtx(ctx, versionCheckDelay) {
		return
	}
	vc.checkWithRetry(ctx)

	ticker := time.NewTicker(versionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			vc.checkWithRetry(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// checkWithRetry performs the version check with backoff between failed attempts.
func (vc *VersionChecker) checkWithRetry(ctx context.Context) {
	backoff := util.NewBackoff(versionRetryDelay, versionRetryMaxDelay)
	for attempt := range versionMaxRetries {
		if vc.check(ctx) {
			return
		}
		if attempt < versionMaxRetries-1 && !sleepCtx(ctx, backoff.Next()) {
			return
		}
	}
}

// githubRelease represents a release with version and status information.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// check retrieves the latest release information and reports whether the
// check is done for this cycle. Rate limits and server errors return false.
func (vc *VersionChecker) check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeoutCause(ctx, versionCheckTimeout, errors.New("github API request timeout"))
	defer cancel()

	url := vc.apiBase + "/repos/" + githubRepo + "/releases/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-scope/"+Version)

	vc.mu.RLock()
	etag := vc.etag
	vc.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := vc.client.Do(req)
	if err != nil {
		slog.Debug("version check failed", "error", err)
		return false
	}
	defer util.SafeCloseFunc(resp.Body, "version check response body")()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified, http.StatusNotFound:
		// Unchanged, or no releases yet.
		return true
	case http.StatusForbidden, http.StatusTooManyRequests:
		return false
	default:
		// Retry server errors only.
		return resp.StatusCode < 500
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return false
	}
	if release.Draft || release.Prerelease {
		return true
	}
	if release.TagName == "" {
		return false
	}

	vc.mu.Lock()
	vc.latest = normalizeVersion(release.TagName)
	if newEtag := resp.Header.Get("ETag"); newEtag != "" {
		vc.etag = newEtag
	}
	vc.mu.Unlock()

	return true
}

// Info returns the current version info.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    vc.latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}

	if vc.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = isNewerVersion(vc.latest, current)
	}

	return info
}

// normalizeVersion returns a normalized version string.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewerVersion reports whether latest is newer than current.
func isNewerVersion(latest, current string) bool {
	return semver.Compare("v"+normalizeVersion(latest), "v"+normalizeVersion(current)) > 0
}
