// Package analyzer runs the capture loop: it owns a sample source, feeds
// every block through the metering, peak tracking and spectrum stages and
// publishes the results as latest-value cells.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-scope/internal/audio"
	"github.com/oszuidwest/zwfm-scope/internal/eventlog"
	"github.com/oszuidwest/zwfm-scope/internal/state"
	"github.com/oszuidwest/zwfm-scope/internal/types"
)

// ErrDeviceUnavailable is returned by Start when the sample source cannot
// be acquired.
var ErrDeviceUnavailable = audio.ErrDeviceUnavailable

// ErrStopTimeout is returned by Stop when the capture loop did not exit in time.
var ErrStopTimeout = errors.New("capture loop did not stop in time")

// FailureObserver is told about read failures that end the capture loop.
type FailureObserver interface {
	CaptureFailed(err error)
}

// ObserverFunc adapts a function to the FailureObserver interface.
type ObserverFunc func(err error)

// CaptureFailed calls f.
func (f ObserverFunc) CaptureFailed(err error) {
	f(err)
}

// Options configures an Analyzer. Zero values select defaults.
type Options struct {
	// BlockSize is the number of samples requested per read when the
	// opener does not report its own.
	BlockSize int
	// SampleRate labels the spectrum bins when the source does not
	// report its own rate.
	SampleRate int
	// Observer receives read failures.
	Observer FailureObserver
	// Events records lifecycle events when set.
	Events *eventlog.Logger
	// Now is the clock used for peak timestamps.
	Now func() time.Time
}

// Analyzer owns the capture loop. Start and Stop are idempotent and safe
// to call from any goroutine.
type Analyzer struct {
	opener    audio.Opener
	published *state.Published
	pipeline  *pipeline
	opts      Options

	// runMu serializes Start and Stop.
	runMu sync.Mutex

	mu        sync.RWMutex
	state     types.AnalyzerState
	source    *ownedSource
	cancel    context.CancelFunc
	done      chan struct{}
	info      audio.Info
	startTime time.Time
	lastError string

	frames atomic.Uint64
}

// New creates an Analyzer reading from opener and writing to published.
func New(opener audio.Opener, published *state.Published, opts Options) *Analyzer {
	if opts.BlockSize <= 0 {
		opts.BlockSize = types.DefaultBlockSize
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = types.DefaultSampleRate
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Analyzer{
		opener:    opener,
		published: published,
		pipeline:  newPipeline(published),
		opts:      opts,
		state:     types.StateStopped,
		info:      describe(opener, audio.Info{SampleRate: opts.SampleRate, BlockSize: opts.BlockSize}),
	}
}

// describe returns what v reports about itself, filling every field v
// leaves empty from fallback.
func describe(v any, fallback audio.Info) audio.Info {
	var info audio.Info
	if d, ok := v.(audio.Describer); ok {
		info = d.Describe()
	}
	if info.SampleRate <= 0 {
		info.SampleRate = fallback.SampleRate
	}
	if info.BlockSize <= 0 {
		info.BlockSize = fallback.BlockSize
	}
	if info.Backend == "" {
		info.Backend = fallback.Backend
	}
	if info.Input == "" {
		info.Input = fallback.Input
	}
	return info
}

// Published returns the cells written by the capture loop.
func (a *Analyzer) Published() *state.Published {
	return a.published
}

// State returns the current analyzer state.
func (a *Analyzer) State() types.AnalyzerState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// IsRunning reports whether the capture loop is running.
func (a *Analyzer) IsRunning() bool {
	return a.State() == types.StateRunning
}

// Status returns the current analyzer status.
func (a *Analyzer) Status() types.AnalyzerStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	uptime := ""
	if a.state == types.StateRunning {
		uptime = time.Since(a.startTime).Truncate(time.Second).String()
	}

	return types.AnalyzerStatus{
		State:      a.state,
		Backend:    a.info.Backend,
		Input:      a.info.Input,
		SampleRate: a.info.SampleRate,
		Uptime:     uptime,
		LastError:  a.lastError,
		Frames:     a.frames.Load(),
	}
}

// Start acquires the sample source and spawns the capture loop. It is a
// no-op when the loop is already running. When the source cannot be
// acquired Start returns an error wrapping ErrDeviceUnavailable and
// leaves all state untouched.
func (a *Analyzer) Start() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.IsRunning() {
		return nil
	}

	src, err := a.opener.Open()
	if err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		return err
	}

	info := describe(src, describe(a.opener, audio.Info{SampleRate: a.opts.SampleRate, BlockSize: a.opts.BlockSize}))
	a.pipeline.reset(info.SampleRate)

	ctx, cancel := context.WithCancel(context.Background())
	owned := &ownedSource{Source: src}
	done := make(chan struct{})

	a.mu.Lock()
	a.state = types.StateRunning
	a.info = info
	a.source = owned
	a.cancel = cancel
	a.done = done
	a.startTime = time.Now()
	a.lastError = ""
	a.frames.Store(0)
	a.mu.Unlock()

	go a.runCaptureLoop(ctx, owned, info.BlockSize, done)

	slog.Info("capture started", "backend", info.Backend, "input", info.Input,
		"sample_rate", info.SampleRate, "block_size", info.BlockSize)
	a.logEvent(eventlog.CaptureStarted, "capture started", "")

	return nil
}

// Stop ends the capture loop and releases the sample source. It is a
// no-op when nothing is running. A blocked read is abandoned: releasing
// the source unblocks it and its result is discarded.
func (a *Analyzer) Stop() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.mu.Lock()
	src, cancel, done := a.source, a.cancel, a.done
	wasRunning := a.state == types.StateRunning
	a.state = types.StateStopped
	a.source = nil
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}

	var errs []error
	cancel()
	if err := src.release(); err != nil {
		errs = append(errs, fmt.Errorf("release source: %w", err))
	}

	select {
	case <-done:
	case <-time.After(types.ShutdownTimeout):
		slog.Warn("capture loop did not stop in time")
		errs = append(errs, ErrStopTimeout)
	}

	if wasRunning {
		slog.Info("capture stopped", "frames", a.frames.Load())
		a.logEvent(eventlog.CaptureStopped, "capture stopped", "")
	}

	return errors.Join(errs...)
}

// Done returns a channel closed once the most recent run has ended and
// its final frame was published. It is closed already when no run was
// ever started.
func (a *Analyzer) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.done == nil {
		return closedChan
	}
	return a.done
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Restart stops and starts the capture loop.
func (a *Analyzer) Restart() error {
	if err := a.Stop(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return a.Start()
}

// ResetPeak empties all peak markers and the session maximum and
// publishes the cleared reading immediately.
func (a *Analyzer) ResetPeak() audio.PeakState {
	before := a.pipeline.tracker.State()
	ps := a.pipeline.tracker.Clear()

	if a.opts.Events != nil {
		if err := a.opts.Events.LogPeakReset(before.DisplayedDB, before.MaxDB); err != nil {
			slog.Warn("failed to log peak reset", "error", err)
		}
	}
	return ps
}

// PruneExpired clears peak markers older than the hold duration and
// republishes the peak reading when one was cleared.
func (a *Analyzer) PruneExpired(now time.Time) bool {
	_, changed := a.pipeline.tracker.Prune(now)
	return changed
}

// runCaptureLoop reads blocks until the context is cancelled or a read fails.
func (a *Analyzer) runCaptureLoop(ctx context.Context, src *ownedSource, blockSize int, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := src.release(); err != nil {
			slog.Warn("failed to release sample source", "error", err)
		}
	}()

	buf := make([]int16, blockSize)
	for {
		n, err := src.Read(buf)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.endRun(done, err)
			return
		}
		if n <= 0 {
			continue
		}

		a.pipeline.process(buf[:n], a.opts.Now())
		a.frames.Add(1)
	}
}

// endRun marks the run that owns done as stopped after its source ended.
// End of stream is a clean stop; any other error is a read failure and is
// reported to the observer. Published cells are left as they are.
func (a *Analyzer) endRun(done chan struct{}, err error) {
	a.mu.Lock()
	current := a.done == done && a.state == types.StateRunning
	if current {
		a.state = types.StateStopped
		a.source = nil
		if a.cancel != nil {
			a.cancel()
			a.cancel = nil
		}
		if !errors.Is(err, io.EOF) {
			a.lastError = err.Error()
		}
	}
	a.mu.Unlock()

	if !current {
		return
	}

	if errors.Is(err, io.EOF) {
		slog.Info("sample source ended", "frames", a.frames.Load())
		a.logEvent(eventlog.CaptureStopped, "sample source ended", "")
		return
	}

	slog.Error("capture read failed", "error", err)
	a.logEvent(eventlog.CaptureError, "capture read failed", err.Error())
	if a.opts.Observer != nil {
		a.opts.Observer.CaptureFailed(err)
	}
}

func (a *Analyzer) logEvent(t eventlog.EventType, msg, errMsg string) {
	if a.opts.Events == nil {
		return
	}
	a.mu.RLock()
	info := a.info
	a.mu.RUnlock()
	details := &eventlog.CaptureDetails{
		Backend:    info.Backend,
		Input:      info.Input,
		SampleRate: info.SampleRate,
		Frames:     a.frames.Load(),
		Error:      errMsg,
	}
	if err := a.opts.Events.LogCapture(t, msg, details); err != nil {
		slog.Warn("failed to log capture event", "type", t, "error", err)
	}
}

// ownedSource releases its Source exactly once.
type ownedSource struct {
	audio.Source
	once sync.Once
	err  error
}

func (s *ownedSource) release() error {
	s.once.Do(func() {
		s.err = s.Source.Close()
	})
	return s.err
}
