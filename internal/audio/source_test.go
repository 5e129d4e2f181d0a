package audio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"testing/iotest"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-scope/internal/util"
)

func TestDecodeS16LE(t *testing.T) {
	dst := make([]int16, 4)
	n := DecodeS16LE(dst, []byte{0x00, 0x80, 0xff, 0x7f, 0x01, 0x00, 0xff})
	require.Equal(t, 3, n)
	assert.Equal(t, []int16{-32768, 32767, 1, 0}, dst)

	assert.Equal(t, 1, DecodeS16LE(dst[:1], []byte{0x02, 0x00, 0x03, 0x00}))
}

func TestCaptureSourceReassemblesSplitSamples(t *testing.T) {
	raw := []byte{0x10, 0x00, 0x20, 0x00, 0x30, 0x00}
	s := &CaptureSource{
		stdout: iotest.OneByteReader(bytes.NewReader(raw)),
		stderr: &util.TailBuffer{},
	}

	var got []int16
	dst := make([]int16, 2)
	for {
		n, err := s.Read(dst)
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, dst[:n]...)
	}
	assert.Equal(t, []int16{0x10, 0x20, 0x30}, got)
}

func TestCaptureSourceReportsStderr(t *testing.T) {
	stderr := &util.TailBuffer{}
	_, _ = stderr.Write([]byte("arecord: main:850: audio open error: Device or resource busy\n"))
	s := &CaptureSource{
		stdout: bytes.NewReader(nil),
		stderr: stderr,
	}

	_, err := s.Read(make([]int16, 8))
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "Device or resource busy")
}

func TestParseDeviceOutput(t *testing.T) {
	cfg := &DeviceListConfig{
		AudioStartMarker: "audio devices",
		AudioStopMarker:  "video devices",
		DevicePattern:    regexp.MustCompile(`"([^"]+)"`),
		ParseDevice: func(m []string) *Device {
			return &Device{ID: m[1], Name: m[1]}
		},
		FallbackDevices: []Device{{ID: "default", Name: "System default"}},
	}

	out := `[dshow] DirectShow audio devices
[dshow]  "Microphone (USB Audio)"
[dshow]     Alternative name "@device_cm_{33D9A762}"
[dshow]  "Line In"
[dshow] DirectShow video devices
[dshow]  "Webcam"`

	devices := parseDeviceOutput(out, cfg)
	assert.Equal(t, []Device{
		{ID: "Microphone (USB Audio)", Name: "Microphone (USB Audio)"},
		{ID: "Line In", Name: "Line In"},
	}, devices)

	assert.Equal(t, cfg.FallbackDevices, parseDeviceOutput("nothing here", cfg))
}

func writeWAV(t *testing.T, rate, channels int, samples []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func readAll(t *testing.T, src Source, block int) []int16 {
	t.Helper()
	var out []int16
	dst := make([]int16, block)
	for {
		n, err := src.Read(dst)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, dst[:n]...)
	}
}

func TestWAVSourceReadsSamples(t *testing.T) {
	path := writeWAV(t, 8000, 1, []int{0, 1000, -1000, 32767, -32768})

	src, err := (&WAVOpener{Path: path}).Open()
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck // test cleanup

	assert.Equal(t, 8000, src.(*WAVSource).SampleRate())
	assert.Equal(t, []int16{0, 1000, -1000, 32767, -32768}, readAll(t, src, 2))
}

func TestWAVSourceLoops(t *testing.T) {
	path := writeWAV(t, 8000, 1, []int{1, 2, 3})

	src, err := (&WAVOpener{Path: path, Loop: true}).Open()
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck // test cleanup

	var got []int16
	dst := make([]int16, 3)
	for range 3 {
		n, err := src.Read(dst)
		require.NoError(t, err)
		got = append(got, dst[:n]...)
	}
	assert.Equal(t, []int16{1, 2, 3, 1, 2, 3, 1, 2, 3}, got)
}

func TestWAVOpenerRejectsStereo(t *testing.T) {
	path := writeWAV(t, 8000, 2, []int{1, 2, 3, 4})

	_, err := (&WAVOpener{Path: path}).Open()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWAVOpenerMissingFile(t *testing.T) {
	_, err := (&WAVOpener{Path: filepath.Join(t.TempDir(), "absent.wav")}).Open()
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestWAVSourceReadAfterClose(t *testing.T) {
	path := writeWAV(t, 8000, 1, []int{1, 2, 3})
	src, err := (&WAVOpener{Path: path, Realtime: true}).Open()
	require.NoError(t, err)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	_, err = src.Read(make([]int16, 2))
	assert.ErrorIs(t, err, os.ErrClosed)
}
