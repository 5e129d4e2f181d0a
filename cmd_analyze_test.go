package main

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-scope/internal/audio"
	"github.com/oszuidwest/zwfm-scope/internal/types"
)

// writeSineWAV writes a mono 16-bit sine at half scale.
func writeSineWAV(t *testing.T, rate, freq, n int) string {
	t.Helper()
	samples := make([]int, n)
	for i := range samples {
		samples[i] = int(16384 * math.Sin(2*math.Pi*float64(freq)*float64(i)/float64(rate)))
	}

	path := filepath.Join(t.TempDir(), "sine.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestAnalyzeCommand(t *testing.T) {
	// 3000 Hz at 48 kHz is exactly bin 8 of the 128-point window.
	path := writeSineWAV(t, 48000, 3000, 48000)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"analyze", "--block-size", "1024", path})
	require.NoError(t, cmd.Execute())

	var result analyzeResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))

	assert.Equal(t, path, result.File)
	assert.Equal(t, types.StateStopped, result.Status.State)
	assert.Equal(t, types.BackendWAV, result.Status.Backend)
	assert.Equal(t, 48000, result.Status.SampleRate)
	assert.Empty(t, result.Status.LastError)
	assert.EqualValues(t, 47, result.Status.Frames, "46 full blocks and one partial block")
	assert.Empty(t, result.State.Waveform)

	// RMS of a half-scale sine is 0.5/sqrt(2), about -9.03 dBFS.
	assert.InDelta(t, -9.03, result.State.Power.CurrentDB, 0.05)
	assert.InDelta(t, -6.02, result.State.Peak.MaxDB, 0.05)

	mags := result.State.Spectrum.Magnitudes
	require.Len(t, mags, audio.SpectrumBins)
	peakBin := 0
	for k, m := range mags {
		if m > mags[peakBin] {
			peakBin = k
		}
	}
	assert.Equal(t, 8, peakBin)
	assert.InDelta(t, 375.0, result.State.Spectrum.BinHz, 1e-9)
}

func TestAnalyzeCommandRejectsSmallBlocks(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"analyze", "--block-size", "64", "whatever.wav"})
	assert.ErrorContains(t, cmd.Execute(), "block size must be at least 128")
}

func TestAnalyzeCommandMissingFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"analyze", filepath.Join(t.TempDir(), "missing.wav")})
	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorContains(t, err, "audio device unavailable")
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, setLogLevel("debug"))
	require.NoError(t, setLogLevel("WARN"))
	require.NoError(t, setLogLevel("info"))
	assert.Error(t, setLogLevel("loud"))
}
