package worker

import "time"

// RetryPolicy controls how failed reminder jobs are rescheduled. Delays grow
// geometrically from InitialDelay and are capped at MaxDelay.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy spreads maxRetries attempts over roughly ten minutes.
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return RetryPolicy{
		MaxRetries:    maxRetries,
		InitialDelay:  30 * time.Second,
		MaxDelay:      10 * time.Minute,
		BackoffFactor: 2,
	}
}

// NextDelay is the wait before retrying after the given failed attempt
// (1-based). Attempts below 1 are treated as the first.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	base := r.InitialDelay
	if base <= 0 {
		base = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= factor
		if r.MaxDelay > 0 && delay >= float64(r.MaxDelay) {
			return r.MaxDelay
		}
	}

	d := time.Duration(delay)
	switch {
	case r.MaxDelay > 0 && d > r.MaxDelay:
		return r.MaxDelay
	case d <= 0:
		return time.Second
	}
	return d
}

// Exhausted reports whether a job that has failed attempts times should stop.
// A zero MaxRetries retries forever.
func (r RetryPolicy) Exhausted(attempts int) bool {
	return r.MaxRetries > 0 && attempts >= r.MaxRetries
}
