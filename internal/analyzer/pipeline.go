package analyzer

import (
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-scope/internal/audio"
	"github.com/oszuidwest/zwfm-scope/internal/state"
)

// pipeline fans a block out to the analysis stages and publishes results.
type pipeline struct {
	meter     *audio.PowerMeter
	tracker   *audio.PeakTracker
	published *state.Published
	binHz     float64
}

func newPipeline(published *state.Published) *pipeline {
	tracker := audio.NewPeakTracker()
	tracker.OnChange(published.Peak.Store)
	return &pipeline{
		meter:     audio.NewPowerMeter(),
		tracker:   tracker,
		published: published,
	}
}

// reset returns the meter window and peak tracker to their initial state
// and sets the rate used to label spectrum bins. Published cells keep
// their last values. It must not run concurrently with process.
func (p *pipeline) reset(sampleRate int) {
	p.meter.Reset()
	p.tracker.Reset()
	p.binHz = audio.BinWidth(sampleRate)
}

// process normalizes one block and runs it through every stage.
// The spectrum is skipped for blocks shorter than the DFT window.
func (p *pipeline) process(samples []int16, now time.Time) {
	frame := audio.Normalize(samples)
	p.published.Waveform.Store(frame)

	power, levels := p.meter.Process(frame)
	p.published.Power.Store(power)

	p.tracker.Update(power.CurrentDB, levels.PeakDB, now)

	if len(frame) < audio.SpectrumWindow {
		return
	}
	mags, err := audio.ComputeSpectrum(frame)
	if err != nil {
		slog.Debug("spectrum skipped", "error", err)
		return
	}
	p.published.Spectrum.Store(audio.SpectrumFrame{Magnitudes: mags, BinHz: p.binHz})
}
