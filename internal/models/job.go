package models

import (
	"encoding/json"
	"time"
)

// JobType identifies which handler runs a job. Stored with every record, so
// values must never change once released.
type JobType string

const (
	JobTypeNormalMessage    JobType = "NormalMessage"
	JobTypeReaction         JobType = "Reaction"
	JobTypeReadSync         JobType = "ReadSync"
	JobTypeViewSync         JobType = "ViewSync"
	JobTypeViewOnceOpenSync JobType = "ViewOnceOpenSync"
)

// JobRecord is one durable unit of send work.
type JobRecord struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts"`
	Deadline    time.Duration   `json:"deadline"`
}

// ExpiresAt returns the wall-clock time after which the job must not be retried.
func (j *JobRecord) ExpiresAt() time.Time {
	return j.EnqueuedAt.Add(j.Deadline)
}

// TimeRemaining returns how long the job may still be retried at now.
func (j *JobRecord) TimeRemaining(now time.Time) time.Duration {
	return j.ExpiresAt().Sub(now)
}

// Clone returns a deep copy so stores never share payload buffers with callers.
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	out := *j
	if j.Payload != nil {
		out.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	return &out
}

// NormalMessageJobData is the payload of a NormalMessage job. Recipients are
// baked into the message itself.
type NormalMessageJobData struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Revision       *int   `json:"revision,omitempty"`
}

// ReactionJobData is the payload of a Reaction job.
type ReactionJobData struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Revision       *int   `json:"revision,omitempty"`
}

// SyncJobData is the payload of the read, view and view-once-open sync jobs.
type SyncJobData struct {
	Syncs []SyncRecord `json:"syncs"`
}
