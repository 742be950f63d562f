package models

// Config holds the application configuration
type Config struct {
	Database    DatabaseConfig    `json:"database"`
	Transport   TransportConfig   `json:"transport"`
	Queue       QueueConfig       `json:"queue"`
	Retry       RetryConfig       `json:"retry"`
	Tracing     TracingConfig     `json:"tracing"`
	Server      ServerConfig      `json:"server"`
	Monitor     MonitorConfig     `json:"monitor"`
	Attachments AttachmentsConfig `json:"attachments"`
	LogLevel    string            `json:"log_level"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path              string `json:"path"`
	EncryptPayloads   bool   `json:"encryptPayloads"`
	EncryptionSecret  string `json:"-"`
	MaxOpenConns      int    `json:"maxOpenConns"`
	BusyTimeoutMillis int    `json:"busyTimeoutMs"`
}

// TransportConfig holds the relay websocket settings
type TransportConfig struct {
	URL                      string `json:"url"`
	AuthToken                string `json:"-"`
	OwnServiceID             string `json:"ownServiceId"`
	TimeoutSec               int    `json:"timeoutSec"`
	CircuitBreakerFailures   int    `json:"circuitBreakerFailures"`
	CircuitBreakerTimeoutSec int    `json:"circuitBreakerTimeoutSec"`
}

// QueueConfig holds job queue tuning
type QueueConfig struct {
	PollIntervalMs       int `json:"pollIntervalMs"`
	MessageDeadlineHours int `json:"messageDeadlineHours"`
	OnlinePollIntervalMs int `json:"onlinePollIntervalMs"`
	SyncChunkSize        int `json:"syncChunkSize"`
	MaxBackoffMinutes    int `json:"maxBackoffMinutes"`
}

// RetryConfig holds retry related configurations for opening the database
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

// ServerConfig holds admin HTTP server settings
type ServerConfig struct {
	Port            int    `json:"port"`
	ReadTimeoutSec  int    `json:"readTimeoutSec"`
	WriteTimeoutSec int    `json:"writeTimeoutSec"`
	IdleTimeoutSec  int    `json:"idleTimeoutSec"`
	AdminToken      string `json:"-"`
	// TrustProxyHeaders makes request logs use X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool `json:"trustProxyHeaders"`
}

// MonitorConfig holds backlog monitor settings
type MonitorConfig struct {
	IntervalSec          int `json:"intervalSec"`
	StaleJobThresholdMin int `json:"staleJobThresholdMin"`
}

// AttachmentsConfig locates attachment files referenced by messages
type AttachmentsConfig struct {
	Dir            string `json:"dir"`
	MaxSizeMB      int    `json:"maxSizeMB"`
	MaxImageSizeMB int    `json:"maxImageSizeMB"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
