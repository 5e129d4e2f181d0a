package audio

import (
	"errors"
	"math"
)

// SpectrumWindow is the number of samples per spectrum estimate.
const SpectrumWindow = 128

// SpectrumBins is the number of magnitude values per estimate.
const SpectrumBins = SpectrumWindow / 2

// ErrShortWindow is returned when fewer than SpectrumWindow samples are given.
var ErrShortWindow = errors.New("spectrum window too short")

// SpectrumFrame is the published spectrum reading.
type SpectrumFrame struct {
	Magnitudes []float64 `json:"magnitudes"`
	// BinHz is the width of one bin at the capture sample rate.
	BinHz float64 `json:"bin_hz"`
}

// twiddles holds cos/sin of 2*pi*m/SpectrumWindow for m in [0, SpectrumWindow).
// The DFT angle 2*pi*t*k/W only depends on (t*k) mod W.
var twiddles = func() (tw [SpectrumWindow][2]float64) {
	for m := range tw {
		angle := 2 * math.Pi * float64(m) / SpectrumWindow
		tw[m] = [2]float64{math.Cos(angle), math.Sin(angle)}
	}
	return tw
}()

// ComputeSpectrum returns the SpectrumBins DFT magnitudes of the first
// SpectrumWindow samples of x. The transform is evaluated directly;
// the fixed window keeps its quadratic cost bounded.
func ComputeSpectrum(x []float64) ([]float64, error) {
	if len(x) < SpectrumWindow {
		return nil, ErrShortWindow
	}
	x = x[:SpectrumWindow]

	out := make([]float64, SpectrumBins)
	for k := range out {
		var re, im float64
		for t, v := range x {
			tw := twiddles[(t*k)%SpectrumWindow]
			re += v * tw[0]
			im -= v * tw[1]
		}
		out[k] = math.Sqrt(re*re + im*im)
	}
	return out, nil
}

// BinWidth returns the frequency width of one spectrum bin in Hz.
func BinWidth(sampleRate int) float64 {
	return float64(sampleRate) / SpectrumWindow
}
