package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/oszuidwest/zwfm-scope/internal/types"
)

// WAVOpener opens a mono 16-bit WAV file as a sample source.
type WAVOpener struct {
	Path string
	// Realtime paces reads to the file's sample rate.
	Realtime bool
	// Loop rewinds to the start of the audio data at end of file.
	Loop bool
}

// Describe returns the backend and file. The sample rate is only known
// once the header has been read.
func (o *WAVOpener) Describe() Info {
	return Info{Backend: types.BackendWAV, Input: o.Path}
}

// Open validates the file header and returns a source that starts at the
// first sample.
func (o *WAVOpener) Open() (Source, error) {
	f, err := os.Open(o.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedFormat, o.Path)
	}
	if dec.NumChans != 1 || dec.BitDepth != 16 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s has %d channels at %d bits, want mono 16-bit",
			ErrUnsupportedFormat, o.Path, dec.NumChans, dec.BitDepth)
	}
	if dec.SampleRate == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s declares no sample rate", ErrUnsupportedFormat, o.Path)
	}

	return &WAVSource{
		path:       o.Path,
		file:       f,
		dec:        dec,
		sampleRate: int(dec.SampleRate),
		realtime:   o.Realtime,
		loop:       o.Loop,
		done:       make(chan struct{}),
	}, nil
}

// WAVSource reads samples from a WAV decoder.
type WAVSource struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	dec        *wav.Decoder
	buf        goaudio.IntBuffer
	sampleRate int
	realtime   bool
	loop       bool
	next       time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// SampleRate returns the sample rate declared in the file header.
func (s *WAVSource) SampleRate() int {
	return s.sampleRate
}

// Describe returns the file and the sample rate from its header.
func (s *WAVSource) Describe() Info {
	return Info{Backend: types.BackendWAV, Input: s.path, SampleRate: s.sampleRate}
}

// Read returns the next block of samples. At end of file it returns
// io.EOF unless the source loops.
func (s *WAVSource) Read(dst []int16) (int, error) {
	n, err := s.decode(dst)
	if err != nil || n == 0 {
		return n, err
	}
	if s.realtime {
		if err := s.pace(n); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (s *WAVSource) decode(dst []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return 0, os.ErrClosed
	default:
	}

	if len(s.buf.Data) < len(dst) {
		s.buf = goaudio.IntBuffer{
			Format:         s.dec.Format(),
			Data:           make([]int, len(dst)),
			SourceBitDepth: 16,
		}
	}
	s.buf.Data = s.buf.Data[:len(dst)]

	for attempt := 0; attempt < 2; attempt++ {
		n, err := s.dec.PCMBuffer(&s.buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if n > 0 {
			for i := range n {
				dst[i] = int16(s.buf.Data[i]) //nolint:gosec // 16-bit source
			}
			return n, nil
		}
		if !s.loop {
			return 0, io.EOF
		}
		if err := s.dec.Rewind(); err != nil {
			return 0, fmt.Errorf("rewind: %w", err)
		}
	}
	return 0, io.EOF
}

// pace sleeps until the wall clock catches up with the samples delivered.
func (s *WAVSource) pace(n int) error {
	now := time.Now()
	if s.next.IsZero() || s.next.Before(now) {
		s.next = now
	}
	s.next = s.next.Add(time.Duration(n) * time.Second / time.Duration(s.sampleRate))

	timer := time.NewTimer(time.Until(s.next))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-s.done:
		return os.ErrClosed
	}
}

// Close releases the file. It is safe to call more than once.
func (s *WAVSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		err = s.file.Close()
	})
	return err
}
