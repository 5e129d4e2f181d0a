package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-scope/internal/types"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.json")
	c := New(path)
	require.NoError(t, c.Load())

	_, err := os.Stat(path)
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Equal(t, DefaultWebPort, snap.WebPort)
	assert.Equal(t, types.BackendCapture, snap.Backend)
	assert.Equal(t, types.DefaultSampleRate, snap.SampleRate)
	assert.Equal(t, 16*time.Millisecond, snap.PruneInterval)
	assert.Equal(t, 50*time.Millisecond, snap.BroadcastInterval)
	require.NoError(t, c.Validate())
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"audio":{"backend":"wav","file":"/tmp/tone.wav"}}`), 0o600))

	c := New(path)
	require.NoError(t, c.Load())

	snap := c.Snapshot()
	assert.Equal(t, types.BackendWAV, snap.Backend)
	assert.Equal(t, "/tmp/tone.wav", snap.AudioFile)
	assert.Equal(t, types.DefaultBlockSize, snap.BlockSize)
	assert.Equal(t, DefaultWebUsername, snap.WebUser)
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		field string
	}{
		{"sample rate", `{"audio":{"sample_rate":4000}}`, "audio.sample_rate"},
		{"block size", `{"audio":{"block_size":64}}`, "audio.block_size"},
		{"backend", `{"audio":{"backend":"alsa"}}`, "audio.backend"},
		{"wav without file", `{"audio":{"backend":"wav"}}`, "audio.file"},
		{"prune interval", `{"meter":{"prune_interval_ms":2}}`, "meter.prune_interval_ms"},
		{"broadcast interval", `{"meter":{"broadcast_interval_ms":6000}}`, "meter.broadcast_interval_ms"},
		{"port", `{"system":{"port":70000}}`, "system.port"},
		{"webhook", `{"notifications":{"webhook":{"url":"not a url"}}}`, "notifications.webhook.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.json), 0o600))

			err := New(path).Load()
			require.Error(t, err)

			var verr *types.ValidationError
			require.True(t, errors.As(err, &verr))
			require.NotEmpty(t, verr.Errors)
			assert.Equal(t, tt.field, verr.Errors[0].Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"audio":`), 0o600))

	err := New(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestUpdateAudioValidatesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	c := New(path)
	require.NoError(t, c.Load())

	err := c.UpdateAudio(func(a *AudioConfig) {
		a.SampleRate = 1
	})
	require.Error(t, err)
	assert.Equal(t, types.DefaultSampleRate, c.AudioSettings().SampleRate)

	require.NoError(t, c.UpdateAudio(func(a *AudioConfig) {
		a.Backend = types.BackendWAV
		a.File = "/srv/audio/test.wav"
		a.Loop = true
	}))

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	audio := reloaded.AudioSettings()
	assert.Equal(t, types.BackendWAV, audio.Backend)
	assert.Equal(t, "/srv/audio/test.wav", audio.File)
	assert.True(t, audio.Loop)
}

func TestSnapshotChannels(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "config.json"))
	snap := c.Snapshot()
	assert.False(t, snap.HasWebhook())
	assert.False(t, snap.HasGraph())
	assert.False(t, snap.HasLogPath())

	c.Notifications.Webhook.URL = "https://example.com/hook"
	c.Notifications.Email = EmailConfig{
		TenantID: "t", ClientID: "c", ClientSecret: "s",
		FromAddress: "scope@example.com", Recipients: "ops@example.com",
	}
	snap = c.Snapshot()
	assert.True(t, snap.HasWebhook())
	assert.True(t, snap.HasGraph())
	assert.Equal(t, "ops@example.com", c.GraphConfig().Recipients)
}
