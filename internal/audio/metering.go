// Package audio provides the signal analysis stages of the scope: level
// metering, peak tracking and spectrum estimation, plus the sample sources
// that feed them.
package audio

import (
	"math"
	"sync"
)

const (
	// MinDB is the floor of every decibel value (silence).
	MinDB = -100.0
	// MaxDB is the ceiling of every decibel value (digital full scale).
	MaxDB = 0.0
	// FullScale is the magnitude of the most negative 16-bit sample.
	FullScale = 32768.0
)

// Frame is one block of normalized samples in [-1, 1].
type Frame []float64

// Levels holds the instantaneous decibel levels of a single frame.
type Levels struct {
	PowerDB float64 `json:"power_db"`
	PeakDB  float64 `json:"peak_db"`
}

// Power is the published power reading: the latest frame level and the
// moving average over the last AverageWindow frames.
type Power struct {
	CurrentDB float64 `json:"current_db"`
	AverageDB float64 `json:"average_db"`
}

// Normalize converts signed 16-bit samples to a new Frame in [-1, 1].
func Normalize(samples []int16) Frame {
	frame := make(Frame, len(samples))
	for i, s := range samples {
		frame[i] = float64(s) / FullScale
	}
	return frame
}

// ToDB converts a linear amplitude relative to full scale into decibels
// clamped to [MinDB, MaxDB]. Non-positive amplitudes map to MinDB.
func ToDB(amplitude float64) float64 {
	if amplitude <= 0 {
		return MinDB
	}
	return ClampDB(20 * math.Log10(amplitude))
}

// ClampDB limits db to [MinDB, MaxDB].
func ClampDB(db float64) float64 {
	if math.IsNaN(db) {
		return MinDB
	}
	return min(max(db, MinDB), MaxDB)
}

// MeasureLevels computes the RMS power and the absolute peak of frame in dB.
func MeasureLevels(frame Frame) Levels {
	if len(frame) == 0 {
		return Levels{PowerDB: MinDB, PeakDB: MinDB}
	}

	var sumSquares, peak float64
	for _, x := range frame {
		sumSquares += x * x
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}

	rms := math.Sqrt(sumSquares / float64(len(frame)))
	return Levels{
		PowerDB: ToDB(rms),
		PeakDB:  ToDB(peak),
	}
}

// PowerMeter measures frames and keeps the moving average of their power.
// It is safe for concurrent use.
type PowerMeter struct {
	mu     sync.Mutex
	window *MovingAverage
	last   Power
}

// NewPowerMeter creates a power meter with an empty (MinDB) window.
func NewPowerMeter() *PowerMeter {
	return &PowerMeter{
		window: NewMovingAverage(),
		last:   Power{CurrentDB: MinDB, AverageDB: MinDB},
	}
}

// Process measures frame, inserts its power into the averaging window and
// returns the new power reading together with the raw frame levels.
func (m *PowerMeter) Process(frame Frame) (Power, Levels) {
	levels := MeasureLevels(frame)

	m.mu.Lock()
	defer m.mu.Unlock()
	avg := m.window.Add(levels.PowerDB)
	m.last = Power{CurrentDB: levels.PowerDB, AverageDB: avg}
	return m.last, levels
}

// Last returns the most recent power reading.
func (m *PowerMeter) Last() Power {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Reset refills the averaging window with MinDB.
func (m *PowerMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window.Reset()
	m.last = Power{CurrentDB: MinDB, AverageDB: MinDB}
}
