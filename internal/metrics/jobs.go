package metrics

import "time"

// Job queue metric names
const (
	JobsEnqueued          = "jobs_enqueued_total"
	JobsSucceeded         = "jobs_succeeded_total"
	JobsFailed            = "jobs_failed_total"
	JobsRetried           = "jobs_retried_total"
	JobsDropped           = "jobs_dropped_total"
	JobRunDuration        = "job_run_duration"
	JobsPending           = "jobs_pending"
	OldestJobAgeSeconds   = "jobs_oldest_age_seconds"
	SendTimestampFallback = "send_timestamp_fallback"
	SendRecipientFailures = "send_recipient_failures_total"
)

func jobLabels(jobType string) map[string]string {
	return map[string]string{"job_type": jobType}
}

// JobEnqueued counts a job persisted by the queue.
func (r *Registry) JobEnqueued(jobType string) {
	r.IncrementCounter(JobsEnqueued, jobLabels(jobType), "Jobs added to the queue")
}

// JobFinished records the outcome of one handler invocation.
func (r *Registry) JobFinished(jobType string, outcome string, took time.Duration) {
	r.RecordTimer(JobRunDuration, took, jobLabels(jobType), "Handler run time")
	switch outcome {
	case "succeeded":
		r.IncrementCounter(JobsSucceeded, jobLabels(jobType), "Jobs completed")
	case "failed":
		r.IncrementCounter(JobsFailed, jobLabels(jobType), "Jobs finalized as failed")
	case "retried":
		r.IncrementCounter(JobsRetried, jobLabels(jobType), "Job attempts scheduled for retry")
	case "dropped":
		r.IncrementCounter(JobsDropped, jobLabels(jobType), "Jobs removed with an unreadable payload")
	}
}
