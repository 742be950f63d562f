package constants

// Job queue defaults
const (
	DefaultQueuePollIntervalMs   = 1000
	DefaultMessageSendDeadlineHr = 24
	DefaultOnlinePollIntervalMs  = 500
	DefaultSyncChunkSize         = 100
	DefaultLaneBufferSize        = 64
)

// Backoff curve used by the continuation gate. The first retry sleeps
// DefaultBackoffFirstMs and each further attempt multiplies by
// DefaultBackoffFactor until DefaultBackoffMaxMin.
const (
	DefaultBackoffFirstMs = 100
	DefaultBackoffFactor  = 1.9
	DefaultBackoffMaxMin  = 15
)

// Default retry values for opening the database
const (
	DefaultRetryBackoffMs         = 1000
	DefaultMaxBackoffMs           = 60000
	DefaultDatabaseRetryAttempts  = 3
	DefaultDatabaseOpenAttempts   = 5
	DefaultDatabaseRetryBackoffMs = 100
)

// Default transport values
const (
	DefaultTransportTimeoutSec         = 30
	DefaultCircuitBreakerMaxFailures   = 5
	DefaultCircuitBreakerTimeoutSec    = 30
	DefaultTransportHandshakeTimeoutMs = 5000
)

// Default server values
const (
	DefaultServerPort            = 8086
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Default monitor values
const (
	DefaultMonitorIntervalSec    = 60
	DefaultStaleJobThresholdMin  = 60
	DefaultConfigWatchIntervalMs = 5000
)

// Privacy settings
const (
	DefaultIdentifierMaskLength = 4
	DefaultMessageIDLength      = 8
)

// Encryption salts for payload encryption at rest
const (
	EncryptionSalt = "sendqueue-payload-salt-v1"
)

// Input limits for identifiers accepted from the admin API and CLI
const (
	MaxIdentifierLength  = 128
	MinPhoneNumberLength = 7
	MaxPhoneNumberLength = 15
	MaxSyncRecordsPerJob = 10000
)
