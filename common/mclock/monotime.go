package mclock

import "time"

// start anchors the monotonic clock; AbsTime values are durations since
// process start, which is all that matters since every comparison the cache
// makes (last_used deltas, heartbeat scheduling) is relative.
var start = time.Now()

func monotime() time.Duration {
	return time.Since(start)
}
