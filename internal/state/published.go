package state

import (
	"sync"

	"github.com/oszuidwest/zwfm-scope/internal/audio"
)

// Published is the set of cells the capture loop writes. Each cell is
// updated independently; consumers must not assume they move in lock-step.
type Published struct {
	Waveform *Cell[audio.Frame]
	Power    *Cell[audio.Power]
	Peak     *Cell[audio.PeakState]
	Spectrum *Cell[audio.SpectrumFrame]
}

// Snapshot is a point-in-time copy of every cell.
type Snapshot struct {
	Waveform audio.Frame         `json:"waveform"`
	Power    audio.Power         `json:"power"`
	Peak     audio.PeakState     `json:"peak"`
	Spectrum audio.SpectrumFrame `json:"spectrum"`
}

// NewPublished creates cells holding silence: an empty waveform, MinDB
// levels, empty peak slots and an all-zero spectrum.
func NewPublished() *Published {
	return &Published{
		Waveform: NewCell(audio.Frame{}),
		Power:    NewCell(audio.Power{CurrentDB: audio.MinDB, AverageDB: audio.MinDB}),
		Peak: NewCell(audio.PeakState{
			CurrentDB:   audio.MinDB,
			MaxDB:       audio.MinDB,
			DisplayedDB: audio.MinDB,
		}),
		Spectrum: NewCell(audio.SpectrumFrame{Magnitudes: make([]float64, audio.SpectrumBins)}),
	}
}

// Snapshot reads every cell. Cells are read one after another, so the
// result may mix values from different frames.
func (p *Published) Snapshot() Snapshot {
	return Snapshot{
		Waveform: p.Waveform.Load(),
		Power:    p.Power.Load(),
		Peak:     p.Peak.Load(),
		Spectrum: p.Spectrum.Load(),
	}
}

// Subscribe returns a channel signalled after a store to any cell, and a
// function that ends the subscription.
func (p *Published) Subscribe() (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)
	done := make(chan struct{})

	chans := make([]<-chan struct{}, 0, 4)
	cancels := make([]func(), 0, 4)
	for _, sub := range []func() (<-chan struct{}, func()){
		p.Waveform.Subscribe, p.Power.Subscribe, p.Peak.Subscribe, p.Spectrum.Subscribe,
	} {
		ch, cancel := sub()
		chans = append(chans, ch)
		cancels = append(cancels, cancel)
	}

	for _, ch := range chans {
		go func() {
			for {
				select {
				case <-done:
					return
				case <-ch:
					select {
					case out <- struct{}{}:
					default:
					}
				}
			}
		}()
	}

	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			for _, cancel := range cancels {
				cancel()
			}
		})
	}
}
