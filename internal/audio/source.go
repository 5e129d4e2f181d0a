package audio

import "errors"

// Sentinel errors for sample sources.
var (
	// ErrNoAudioDevice is returned when no audio input device is available.
	ErrNoAudioDevice = errors.New("no audio input device found")
	// ErrDeviceUnavailable is returned when a sample source cannot be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrUnsupportedFormat is returned for input that is not mono 16-bit PCM.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Source delivers blocks of signed 16-bit mono samples.
type Source interface {
	// Read blocks until at least one sample is available or an error
	// occurs, and returns the number of samples written to dst.
	Read(dst []int16) (int, error)
	// Close releases the source. A blocked Read returns once Close is called.
	Close() error
}

// Opener acquires a Source.
type Opener interface {
	Open() (Source, error)
}

// Info describes a sample source for status reporting.
type Info struct {
	Backend    string `json:"backend"`
	Input      string `json:"input,omitempty"`
	SampleRate int    `json:"sample_rate"`
	BlockSize  int    `json:"block_size,omitempty"` // Preferred samples per read, 0 = reader's choice
}

// Describer is implemented by openers and sources that can describe
// what they read from.
type Describer interface {
	Describe() Info
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func() (Source, error)

// Open calls f.
func (f OpenerFunc) Open() (Source, error) {
	return f()
}

// DecodeS16LE decodes little-endian 16-bit samples from src into dst and
// returns the number of samples decoded.
func DecodeS16LE(dst []int16, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := range n {
		dst[i] = int16(uint16(src[2*i]) | uint16(src[2*i+1])<<8)
	}
	return n
}
