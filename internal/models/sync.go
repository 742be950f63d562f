package models

// SyncKind selects which acknowledgement a sync job carries to our own devices.
type SyncKind string

const (
	SyncKindRead         SyncKind = "read"
	SyncKindView         SyncKind = "view"
	SyncKindViewOnceOpen SyncKind = "viewOnceOpen"
)

// SyncRecord acknowledges one message. The message is identified by its
// author and sent timestamp; MessageID is kept only for logging.
type SyncRecord struct {
	MessageID  string `json:"messageId,omitempty"`
	SenderE164 string `json:"senderE164,omitempty"`
	SenderACI  string `json:"senderAci,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// JobTypeForSyncKind maps a sync kind to the job type that carries it.
func JobTypeForSyncKind(kind SyncKind) JobType {
	switch kind {
	case SyncKindView:
		return JobTypeViewSync
	case SyncKindViewOnceOpen:
		return JobTypeViewOnceOpenSync
	default:
		return JobTypeReadSync
	}
}
