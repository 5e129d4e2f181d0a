package audio

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasureLevels(t *testing.T) {
	tests := []struct {
		name      string
		frame     Frame
		wantPower float64
		wantPeak  float64
	}{
		{"silence", make(Frame, 256), MinDB, MinDB},
		{"empty", Frame{}, MinDB, MinDB},
		{"positive full scale", Frame{1, 1, 1, 1}, 0, 0},
		{"alternating full scale", Frame{1, -1, 1, -1}, 0, 0},
		{"half scale", Frame{0.5, -0.5}, -6.0206, -6.0206},
		{"single spike", Frame{0, 0, 0, 1}, -6.0206, 0},
		{"below floor", Frame{1e-7, -1e-7}, MinDB, MinDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MeasureLevels(tt.frame)
			assert.InDelta(t, tt.wantPower, got.PowerDB, 1e-3)
			assert.InDelta(t, tt.wantPeak, got.PeakDB, 1e-3)
		})
	}
}

func TestMeasureLevelsStaysInRange(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		samples := make([]int16, 1+r.IntN(512))
		for i := range samples {
			samples[i] = int16(r.IntN(65536) - 32768) //nolint:gosec // test data
		}
		l := MeasureLevels(Normalize(samples))
		assert.GreaterOrEqual(t, l.PowerDB, MinDB)
		assert.LessOrEqual(t, l.PowerDB, MaxDB)
		assert.GreaterOrEqual(t, l.PeakDB, MinDB)
		assert.LessOrEqual(t, l.PeakDB, MaxDB)
		assert.GreaterOrEqual(t, l.PeakDB, l.PowerDB)
	}
}

func TestNormalizeFullScale(t *testing.T) {
	f := Normalize([]int16{-32768, 0, 16384, 32767})
	require.Len(t, f, 4)
	assert.Equal(t, -1.0, f[0])
	assert.Equal(t, 0.0, f[1])
	assert.Equal(t, 0.5, f[2])
	assert.Less(t, f[3], 1.0)

	l := MeasureLevels(Normalize([]int16{-32768, -32768}))
	assert.InDelta(t, 0, l.PowerDB, 1e-9)
	assert.InDelta(t, 0, l.PeakDB, 1e-9)
}

func TestClampDB(t *testing.T) {
	assert.Equal(t, MinDB, ClampDB(-150))
	assert.Equal(t, MaxDB, ClampDB(3))
	assert.Equal(t, -42.0, ClampDB(-42))
	assert.Equal(t, MinDB, ClampDB(math.NaN()))
	assert.Equal(t, MinDB, ToDB(0))
	assert.Equal(t, MinDB, ToDB(-1))
}

func TestMovingAverageFloorAndSpike(t *testing.T) {
	a := NewMovingAverage()
	assert.Equal(t, MinDB, a.Mean())

	for range AverageWindow - 1 {
		a.Add(MinDB)
	}
	got := a.Add(-20)
	assert.InDelta(t, -97.5, got, 1e-12)
	assert.InDelta(t, -97.5, a.Mean(), 1e-12)
}

func TestMovingAverageWrapsAroundWindow(t *testing.T) {
	a := NewMovingAverage()
	for range AverageWindow {
		a.Add(-10)
	}
	assert.InDelta(t, -10, a.Mean(), 1e-12)

	// Oldest slot is overwritten first.
	a.Add(-42)
	assert.InDelta(t, (31*-10.0-42)/32, a.Mean(), 1e-12)

	a.Reset()
	assert.Equal(t, MinDB, a.Mean())
}

func TestPowerMeterProcess(t *testing.T) {
	m := NewPowerMeter()
	assert.Equal(t, Power{CurrentDB: MinDB, AverageDB: MinDB}, m.Last())

	p, l := m.Process(Frame{0.5, -0.5, 0.5, -0.5})
	assert.InDelta(t, -6.0206, p.CurrentDB, 1e-3)
	assert.InDelta(t, (31*MinDB+p.CurrentDB)/32, p.AverageDB, 1e-9)
	assert.Equal(t, l.PowerDB, p.CurrentDB)
	assert.Equal(t, p, m.Last())

	m.Reset()
	assert.Equal(t, MinDB, m.Last().AverageDB)
	p, _ = m.Process(make(Frame, 8))
	assert.Equal(t, MinDB, p.AverageDB)
}
