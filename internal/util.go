package internal

import "math"

// ClampTimeout converts a millisecond timeout into the int accepted by the
// poller wait call, saturating at math.MaxInt32.
func ClampTimeout(ms int64) int {
	if ms < 0 {
		return -1
	}
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
