package main

import (
	"github.com/oszuidwest/zwfm-scope/internal/audio"
	"github.com/oszuidwest/zwfm-scope/internal/config"
	"github.com/oszuidwest/zwfm-scope/internal/types"
	"github.com/oszuidwest/zwfm-scope/internal/util"
)

// configOpener opens the sample source selected by the current audio
// settings. Settings are read on every Open so a restart picks up changes.
type configOpener struct {
	cfg *config.Config
}

// backend returns the opener for the configured backend.
func (o *configOpener) backend() (audio.Opener, config.Snapshot) {
	snap := o.cfg.Snapshot()
	if snap.Backend == types.BackendWAV {
		return &audio.WAVOpener{
			Path:     snap.AudioFile,
			Realtime: snap.Realtime,
			Loop:     snap.Loop,
		}, snap
	}
	return &audio.CaptureOpener{
		Device:     snap.AudioInput,
		FFmpegPath: util.ResolveFFmpegPath(snap.FFmpegPath),
		SampleRate: snap.SampleRate,
	}, snap
}

// Open opens the configured sample source.
func (o *configOpener) Open() (audio.Source, error) {
	opener, _ := o.backend()
	return opener.Open()
}

// Describe reports the configured source with its block size.
func (o *configOpener) Describe() audio.Info {
	opener, snap := o.backend()
	var info audio.Info
	if d, ok := opener.(audio.Describer); ok {
		info = d.Describe()
	}
	if info.SampleRate == 0 {
		info.SampleRate = snap.SampleRate
	}
	info.BlockSize = snap.BlockSize
	return info
}
