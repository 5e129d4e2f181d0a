package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-scope/internal/types"
	"github.com/oszuidwest/zwfm-scope/internal/util"
)

// captureShutdownTimeout bounds how long Close waits for the capture process.
const captureShutdownTimeout = 3000 * time.Millisecond

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform uses FFmpeg for capture.
	UsesFFmpeg bool

	// BuildArgs returns the command arguments for mono S16LE capture.
	BuildArgs func(device string, sampleRate int) []string
}

// BuildCaptureCommand returns the command and arguments for audio capture.
// If device is empty, it attempts to use the default or auto-detect.
// The ffmpegPath parameter is used on platforms that use FFmpeg for capture.
func BuildCaptureCommand(device, ffmpegPath string, sampleRate int) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}

	// Auto-detect if still empty (Windows has no safe default).
	if device == "" {
		devices := ListDevices()
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	command := cfg.Command
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}

	return command, cfg.BuildArgs(device, sampleRate), nil
}

// CaptureOpener opens a capture process for a device.
type CaptureOpener struct {
	Device     string
	FFmpegPath string
	SampleRate int
}

// Describe returns the backend, device and sample rate of the capture.
func (o *CaptureOpener) Describe() Info {
	return Info{Backend: types.BackendCapture, Input: o.Device, SampleRate: o.SampleRate}
}

// Open starts the capture process and returns its sample stream.
func (o *CaptureOpener) Open() (Source, error) {
	name, args, err := BuildCaptureCommand(o.Device, o.FFmpegPath, o.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = captureShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	stderr := &util.TailBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start %s: %w", ErrDeviceUnavailable, name, err)
	}

	slog.Info("audio capture process started", "command", name, "device", o.Device, "pid", cmd.Process.Pid)

	return &CaptureSource{
		info:   o.Describe(),
		cmd:    cmd,
		cancel: cancel,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// CaptureSource reads S16LE samples from a capture process.
type CaptureSource struct {
	info   Info
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.Reader
	stderr *util.TailBuffer

	raw   []byte
	carry []byte

	closeOnce sync.Once
	closeErr  error
}

// Describe returns the capture description.
func (s *CaptureSource) Describe() Info {
	return s.info
}

// Read blocks until at least one sample is available.
func (s *CaptureSource) Read(dst []int16) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	need := len(dst) * 2
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	buf := s.raw[:need]

	// A sample may straddle two pipe reads.
	off := copy(buf, s.carry)
	n, err := io.ReadAtLeast(s.stdout, buf[off:], max(2-off, 1))
	if err != nil {
		if msg := util.ExtractLastError(s.stderr.String()); msg != "" {
			return 0, fmt.Errorf("%w: %s", err, msg)
		}
		return 0, err
	}
	n += off

	samples := n / 2
	s.carry = append(s.carry[:0], buf[samples*2:n]...)
	return DecodeS16LE(dst, buf[:samples*2]), nil
}

// Close stops the capture process. It is safe to call more than once.
func (s *CaptureSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
	})
	return s.closeErr
}
