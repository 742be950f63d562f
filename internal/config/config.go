package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"sendqueue/internal/constants"
	"sendqueue/internal/models"
	"sendqueue/internal/retry"
	"sendqueue/internal/security"

	"github.com/sirupsen/logrus"
)

var (
	ErrMissingTransportURL = models.ConfigError{Message: "missing transport URL"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Transport.URL == "" {
		return ErrMissingTransportURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid log level %q", c.LogLevel)}
		}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sample rate must be between 0 and 1"}
	}

	if c.Transport.TimeoutSec <= 0 {
		c.Transport.TimeoutSec = constants.DefaultTransportTimeoutSec
	}
	if c.Transport.CircuitBreakerFailures <= 0 {
		c.Transport.CircuitBreakerFailures = constants.DefaultCircuitBreakerMaxFailures
	}
	if c.Transport.CircuitBreakerTimeoutSec <= 0 {
		c.Transport.CircuitBreakerTimeoutSec = constants.DefaultCircuitBreakerTimeoutSec
	}

	if c.Queue.PollIntervalMs <= 0 {
		c.Queue.PollIntervalMs = constants.DefaultQueuePollIntervalMs
	}
	if c.Queue.MessageDeadlineHours <= 0 {
		c.Queue.MessageDeadlineHours = constants.DefaultMessageSendDeadlineHr
	}
	if c.Queue.OnlinePollIntervalMs <= 0 {
		c.Queue.OnlinePollIntervalMs = constants.DefaultOnlinePollIntervalMs
	}
	if c.Queue.SyncChunkSize <= 0 {
		c.Queue.SyncChunkSize = constants.DefaultSyncChunkSize
	}
	if c.Queue.MaxBackoffMinutes <= 0 {
		c.Queue.MaxBackoffMinutes = constants.DefaultBackoffMaxMin
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseOpenAttempts
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Monitor.IntervalSec <= 0 {
		c.Monitor.IntervalSec = constants.DefaultMonitorIntervalSec
	}
	if c.Monitor.StaleJobThresholdMin <= 0 {
		c.Monitor.StaleJobThresholdMin = constants.DefaultStaleJobThresholdMin
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "sendqueue"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if path := os.Getenv("SENDQUEUE_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if secret := os.Getenv("SENDQUEUE_ENCRYPTION_SECRET"); secret != "" {
		c.Database.EncryptionSecret = secret
	}
	if enabled := os.Getenv("SENDQUEUE_ENCRYPT_PAYLOADS"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			c.Database.EncryptPayloads = v
		}
	}

	if url := os.Getenv("SENDQUEUE_TRANSPORT_URL"); url != "" {
		c.Transport.URL = url
	}
	if token := os.Getenv("SENDQUEUE_TRANSPORT_TOKEN"); token != "" {
		c.Transport.AuthToken = token
	}
	if token := os.Getenv("SENDQUEUE_ADMIN_TOKEN"); token != "" {
		c.Server.AdminToken = token
	}
	if dir := os.Getenv("SENDQUEUE_ATTACHMENTS_DIR"); dir != "" {
		c.Attachments.Dir = dir
	}
	if level := os.Getenv("SENDQUEUE_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Tracing.OTLPEndpoint = endpoint
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("SENDQUEUE_ENV") == "production"

	if c.Database.EncryptPayloads && len(c.Database.EncryptionSecret) < models.MinSecretLength {
		return models.ConfigError{Message: fmt.Sprintf("payload encryption needs SENDQUEUE_ENCRYPTION_SECRET of at least %d characters", models.MinSecretLength)}
	}

	if isProduction {
		if c.Server.AdminToken == "" {
			return models.ConfigError{Message: "admin token is required in production (set SENDQUEUE_ADMIN_TOKEN environment variable)"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Server.AdminToken == "" {
		fmt.Fprintf(os.Stderr, "WARNING: admin token not set. Set SENDQUEUE_ADMIN_TOKEN to protect the admin API.\n")
	}

	return nil
}

// DatabaseOpenBackoff converts the retry section into the backoff used while
// opening the database at startup.
func DatabaseOpenBackoff(c *models.Config) retry.BackoffConfig {
	return retry.BackoffConfig{
		InitialDelay: msDuration(c.Retry.InitialBackoffMs),
		MaxDelay:     msDuration(c.Retry.MaxBackoffMs),
		Multiplier:   2,
		MaxAttempts:  c.Retry.MaxAttempts,
		Jitter:       true,
	}
}
