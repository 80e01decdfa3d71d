package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rmtbon/contentcache/common/mclock"
)

func TestRunHeartbeatTicksUntilCancelled(t *testing.T) {
	s, _ := newTestServer(t, 0)
	clock := new(mclock.Simulated)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunHeartbeat(ctx, clock, time.Second, s)
		close(done)
	}()

	clock.Run(3 * time.Second)

	// Let the heartbeat's reactor.Go calls land, then stop the loop.
	require.Eventually(t, func() bool {
		_, err := s.Stats(context.Background())
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunHeartbeat did not exit after ctx cancellation")
	}
}
