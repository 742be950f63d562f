package retry

import (
	"math"
	"time"

	"sendqueue/internal/constants"
)

// Curve is the job retry schedule: the first attempt runs immediately and
// the sleep before attempt n > 1 is min(Max, First * Factor^(n-2)). It never
// decreases as n grows.
type Curve struct {
	First  time.Duration
	Factor float64
	Max    time.Duration
}

// DefaultCurve returns the schedule used by send jobs.
func DefaultCurve() Curve {
	return Curve{
		First:  constants.DefaultBackoffFirstMs * time.Millisecond,
		Factor: constants.DefaultBackoffFactor,
		Max:    constants.DefaultBackoffMaxMin * time.Minute,
	}
}

// SleepTime returns the backoff for attempt (1-based).
func (c Curve) SleepTime(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	factor := c.Factor
	if factor < 1 {
		factor = 1
	}
	sleep := float64(c.First) * math.Pow(factor, float64(attempt-2))
	if math.IsInf(sleep, 0) || sleep > float64(c.Max) {
		return c.Max
	}
	return time.Duration(sleep)
}

// MaxAttempts returns how many attempts fit in deadline: the smallest count
// whose cumulative backoff reaches the deadline.
func (c Curve) MaxAttempts(deadline time.Duration) int {
	if deadline <= 0 {
		return 1
	}
	if c.First <= 0 {
		// a zero curve never reaches the deadline on its own
		return math.MaxInt32
	}
	var total time.Duration
	attempts := 1
	for total < deadline {
		attempts++
		total += c.SleepTime(attempts)
	}
	return attempts
}

// ExponentialBackoffSleepTime is DefaultCurve().SleepTime.
func ExponentialBackoffSleepTime(attempt int) time.Duration {
	return DefaultCurve().SleepTime(attempt)
}

// ExponentialBackoffMaxAttempts is DefaultCurve().MaxAttempts.
func ExponentialBackoffMaxAttempts(deadline time.Duration) int {
	return DefaultCurve().MaxAttempts(deadline)
}
