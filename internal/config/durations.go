package config

import (
	"time"

	"sendqueue/internal/models"
	"sendqueue/internal/retry"
)

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func secDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

// QueuePollInterval is how often the store is rescanned.
func QueuePollInterval(c *models.Config) time.Duration {
	return msDuration(c.Queue.PollIntervalMs)
}

// MessageDeadline is how long a job may keep retrying.
func MessageDeadline(c *models.Config) time.Duration {
	return time.Duration(c.Queue.MessageDeadlineHours) * time.Hour
}

// OnlinePollInterval is how often the gate re-checks connectivity.
func OnlinePollInterval(c *models.Config) time.Duration {
	return msDuration(c.Queue.OnlinePollIntervalMs)
}

// BackoffCurve is the default curve capped at the configured maximum.
func BackoffCurve(c *models.Config) retry.Curve {
	curve := retry.DefaultCurve()
	curve.Max = time.Duration(c.Queue.MaxBackoffMinutes) * time.Minute
	return curve
}

// TransportTimeout bounds one relay round trip.
func TransportTimeout(c *models.Config) time.Duration {
	return secDuration(c.Transport.TimeoutSec)
}

// BreakerTimeout is how long the transport circuit stays open.
func BreakerTimeout(c *models.Config) time.Duration {
	return secDuration(c.Transport.CircuitBreakerTimeoutSec)
}

// MonitorInterval is how often the backlog monitor samples the store.
func MonitorInterval(c *models.Config) time.Duration {
	return secDuration(c.Monitor.IntervalSec)
}

// StaleJobThreshold is the age after which a stored job is reported as stale.
func StaleJobThreshold(c *models.Config) time.Duration {
	return time.Duration(c.Monitor.StaleJobThresholdMin) * time.Minute
}
