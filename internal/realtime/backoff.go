package realtime

import "time"

// backoffDelay computes the reconnect delay for the given attempt number
// (first retry is attempt 1). The delay starts at base, doubles per attempt,
// and is capped at max. Pure function, testable without timers.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
