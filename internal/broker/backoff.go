package broker

import "time"

// NextRetryDelay computes how long to wait before the next attempt, given
// the attempt number that just failed (1-indexed) and the job's backoff
// config. Exponential backoff doubles InitialMs per prior attempt; a
// non-exponential config retries immediately.
func NextRetryDelay(attempt int, b Backoff) time.Duration {
	if !b.Exponential {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	ms := b.InitialMs
	for i := 1; i < attempt; i++ {
		ms *= 2
	}
	return time.Duration(ms) * time.Millisecond
}
