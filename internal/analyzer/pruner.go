package analyzer

import (
	"context"
	"time"

	"github.com/oszuidwest/zwfm-scope/internal/types"
)

// RunPruner calls PruneExpired on every tick of interval until ctx is
// done. It runs independently of the capture loop.
func (a *Analyzer) RunPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = types.DefaultPruneInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.PruneExpired(a.opts.Now())
		}
	}
}
