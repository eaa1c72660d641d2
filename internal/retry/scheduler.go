// Package retry computes cooldown floors for failed acquisition attempts.
//
// The scheduler is a pure function: the next eligible attempt time depends
// only on its inputs, so a replayed invocation derives the same schedule.
// Coarse retry counts and fan-out live with the external workflow driver;
// this package owns only the floor below which the coordinator refuses
// to act.
package retry

import (
	"hash/fnv"
	"time"
)

// Backoff bounds. Throttling signals from a provider select a longer base
// than generic transient errors so shared providers get breathing room.
const (
	BaseDelay          = 1 * time.Minute
	ThrottledBaseDelay = 5 * time.Minute
	MaxDelay           = 6 * time.Hour

	// jitterFraction bounds jitter to a share of the computed delay to
	// avoid thundering-herd on shared providers.
	jitterFraction = 0.25
)

// NextEligibleAttempt returns the earliest time the next acquisition attempt
// may run, given the number of attempts already made. Delay doubles per
// attempt up to MaxDelay, plus bounded jitter derived deterministically from
// jitterKey (callers pass the product ID) so the function stays pure while
// still spreading retries across products.
//
// attemptCount is the count after the failure being scheduled: the first
// failure calls with attemptCount=1.
func NextEligibleAttempt(now time.Time, attemptCount int, throttled bool, jitterKey string) time.Time {
	return now.Add(Delay(attemptCount, throttled, jitterKey))
}

// Delay computes the cooldown duration alone. Exposed for tests and for
// drivers that want to log the schedule.
func Delay(attemptCount int, throttled bool, jitterKey string) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}

	base := BaseDelay
	if throttled {
		base = ThrottledBaseDelay
	}

	delay := base
	for i := 1; i < attemptCount; i++ {
		delay *= 2
		if delay >= MaxDelay {
			delay = MaxDelay
			break
		}
	}
	if delay > MaxDelay {
		delay = MaxDelay
	}

	return delay + jitter(delay, attemptCount, jitterKey)
}

// jitter returns a deterministic duration in [0, delay*jitterFraction),
// keyed on the jitter key and attempt count.
func jitter(delay time.Duration, attemptCount int, jitterKey string) time.Duration {
	bound := int64(float64(delay) * jitterFraction)
	if bound <= 0 {
		return 0
	}

	h := fnv.New64a()
	h.Write([]byte(jitterKey))
	h.Write([]byte{byte(attemptCount), byte(attemptCount >> 8)})
	return time.Duration(int64(h.Sum64() % uint64(bound)))
}
