package analyzer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-scope/internal/audio"
	"github.com/oszuidwest/zwfm-scope/internal/state"
)

func TestRunPrunerClearsExpiredPeaks(t *testing.T) {
	var nowNanos atomic.Int64
	base := time.Unix(5000, 0)
	nowNanos.Store(base.UnixNano())
	clock := func() time.Time { return time.Unix(0, nowNanos.Load()) }

	pub := state.NewPublished()
	a := New(&countingOpener{src: newFakeSource()}, pub, Options{Now: clock})
	a.pipeline.process(block(128, 20000), clock())
	require.Greater(t, pub.Peak.Load().DisplayedDB, audio.MinDB)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.RunPruner(ctx, time.Millisecond)
	}()

	nowNanos.Store(base.Add(audio.PeakHoldDuration + time.Second).UnixNano())
	require.Eventually(t, func() bool {
		return pub.Peak.Load().DisplayedDB == audio.MinDB
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not exit")
	}
	for _, s := range pub.Peak.Load().Slots {
		assert.True(t, s.Empty())
	}
}
