package transport

import (
	"context"
	"time"

	"github.com/rmtbon/contentcache/common/mclock"
)

// RunHeartbeat drives s.Heartbeat once per period until ctx is
// cancelled. period is expected to already fall within [params.MinHeartbeat,
// params.MaxHeartbeat]; that bound is validated once at startup by
// params.Config.Validate, not enforced here. clock lets tests substitute
// mclock.Simulated to drive purge/flush timing without real sleeps.
func RunHeartbeat(ctx context.Context, clock mclock.Clock, period time.Duration, s *Server) {
	timer := clock.NewTimer(period)
	defer timer.Stop()
	for {
		select {
		case <-timer.C():
			s.Heartbeat(ctx)
			timer.Reset(period)
		case <-ctx.Done():
			return
		}
	}
}
