package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sendqueue/internal/constants"
	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/metrics"
	"sendqueue/internal/models"
	"sendqueue/internal/retry"
	"sendqueue/internal/tracing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// RunInfo is passed to a job on every attempt.
type RunInfo struct {
	JobID          string
	Attempt        int
	MaxAttempts    int
	TimeRemaining  time.Duration
	IsFinalAttempt bool
	// ShouldContinue is the gate's verdict for this attempt. When false the
	// job must finalize instead of sending.
	ShouldContinue bool
	Log            *logrus.Entry
}

// Job is one parsed job payload bound to its handler.
type Job interface {
	// LaneKey selects the serial lane; "" runs unordered.
	LaneKey() string
	// Run performs one attempt. A nil return deletes the record. Errors are
	// retried only when apperrors.IsRetryable reports true.
	Run(ctx context.Context, info RunInfo) error
	// MarkFailed records a terminal failure on the owning entity.
	MarkFailed(ctx context.Context, err error)
}

// GateSkipper is implemented by jobs that can finish some payloads without
// sending anything. When NeedsGate reports false the attempt runs at once
// with ShouldContinue set.
type GateSkipper interface {
	NeedsGate() bool
}

func needsGate(job Job) bool {
	if s, ok := job.(GateSkipper); ok {
		return s.NeedsGate()
	}
	return true
}

// Handler parses the stored payload of one job type.
type Handler interface {
	Parse(payload json.RawMessage) (Job, error)
}

// AddOptions tunes a single job. Zero values pick the queue defaults.
type AddOptions struct {
	MaxAttempts int
	Deadline    time.Duration
}

type Option func(*Queue)

// WithPollInterval sets how often the store is scanned for records the queue
// has not scheduled yet, e.g. rows inserted by another process.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithDefaultDeadline sets the deadline used when AddOptions leaves it zero.
func WithDefaultDeadline(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.defaultDeadline = d
		}
	}
}

// WithNowFunc replaces the clock.
func WithNowFunc(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithMetrics records job metrics into registry instead of the global one.
func WithMetrics(registry *metrics.Registry) Option {
	return func(q *Queue) {
		if registry != nil {
			q.metrics = registry
		}
	}
}

// WithCurve sets the backoff curve used to derive default max attempts.
func WithCurve(curve retry.Curve) Option {
	return func(q *Queue) {
		q.curve = curve
	}
}

// Queue schedules stored jobs onto per-key lanes and drives their retries.
type Queue struct {
	store    Store
	gate     ContinuationGate
	lanes    *Lanes
	logger   *logrus.Logger
	errlog   *apperrors.Logger
	metrics  *metrics.Registry
	handlers map[models.JobType]Handler

	curve           retry.Curve
	defaultDeadline time.Duration
	pollInterval    time.Duration
	now             func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	started  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(store Store, gate ContinuationGate, logger *logrus.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:           store,
		gate:            gate,
		lanes:           NewLanes(),
		logger:          logger,
		errlog:          apperrors.FromLogrus(logger),
		metrics:         metrics.GetRegistry(),
		handlers:        make(map[models.JobType]Handler),
		curve:           retry.DefaultCurve(),
		defaultDeadline: constants.DefaultMessageSendDeadlineHr * time.Hour,
		pollInterval:    constants.DefaultQueuePollIntervalMs * time.Millisecond,
		now:             time.Now,
		inFlight:        make(map[string]struct{}),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Register installs the handler for jobType. Call before Start.
func (q *Queue) Register(jobType models.JobType, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

func (q *Queue) handler(jobType models.JobType) (Handler, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.handlers[jobType]
	return h, ok
}

// Add persists a job and schedules it if the queue is running. payload is
// marshalled to JSON unless it already is raw JSON.
func (q *Queue) Add(ctx context.Context, jobType models.JobType, payload interface{}, opts AddOptions) (*models.JobRecord, error) {
	handler, ok := q.handler(jobType)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeUnknownJobType, "no handler registered").
			WithContext("job_type", string(jobType))
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, apperrors.NewJobPayloadError(string(jobType), err)
	}
	if _, err := handler.Parse(raw); err != nil {
		return nil, apperrors.NewJobPayloadError(string(jobType), err)
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = q.defaultDeadline
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.curve.MaxAttempts(deadline)
	}

	record := &models.JobRecord{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     raw,
		EnqueuedAt:  q.now(),
		MaxAttempts: maxAttempts,
		Deadline:    deadline,
	}
	if err := q.store.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store %s job: %w", jobType, err)
	}
	q.metrics.JobEnqueued(string(jobType))

	q.logger.WithFields(logrus.Fields{
		"job_id":       record.ID,
		"job_type":     jobType,
		"max_attempts": maxAttempts,
	}).Debug("Job added")

	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if started {
		q.schedule(record)
	}
	return record.Clone(), nil
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return append(json.RawMessage(nil), p...), nil
	case []byte:
		return append(json.RawMessage(nil), p...), nil
	default:
		return json.Marshal(payload)
	}
}

// Start resumes every stored job and begins polling the store. It returns
// once the stored jobs are scheduled.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.runCtx != nil {
		q.mu.Unlock()
		return nil
	}
	q.runCtx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	records, err := q.store.ListPending(ctx)
	if err != nil {
		q.mu.Lock()
		q.cancel()
		q.runCtx, q.cancel = nil, nil
		q.mu.Unlock()
		return fmt.Errorf("failed to load stored jobs: %w", err)
	}
	q.logger.WithField("count", len(records)).Info("Resuming stored jobs")
	for _, record := range records {
		q.schedule(record)
	}

	// Jobs added while resuming are left to the poll loop so they queue
	// behind the stored ones.
	q.mu.Lock()
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.pollLoop()
	return nil
}

// Stop halts polling, cancels running attempts and waits for every lane to
// drain. Interrupted jobs stay in the store for the next Start.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.mu.Lock()
		cancel := q.cancel
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		q.wg.Wait()
		q.lanes.Wait()
	})
}

// WaitIdle blocks until no job is scheduled or running.
func (q *Queue) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if q.InFlight() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// InFlight returns the number of jobs scheduled or running.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

func (q *Queue) pollLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-q.runCtx.Done():
			return
		case <-ticker.C:
			records, err := q.store.ListPending(q.runCtx)
			if err != nil {
				if q.runCtx.Err() == nil {
					q.errlog.LogError(err, "Failed to poll job store")
				}
				continue
			}
			for _, record := range records {
				q.schedule(record)
			}
		}
	}
}

// schedule puts a record on its lane unless it is already scheduled.
func (q *Queue) schedule(record *models.JobRecord) {
	q.mu.Lock()
	if _, busy := q.inFlight[record.ID]; busy {
		q.mu.Unlock()
		return
	}
	q.inFlight[record.ID] = struct{}{}
	runCtx := q.runCtx
	q.mu.Unlock()

	log := q.logger.WithFields(logrus.Fields{
		"job_id":   record.ID,
		"job_type": record.Type,
	})

	handler, ok := q.handler(record.Type)
	if !ok {
		log.Warn("No handler registered for stored job, leaving it in the store")
		q.done(record.ID)
		return
	}

	job, err := handler.Parse(record.Payload)
	if err != nil {
		q.drop(runCtx, record, log, apperrors.NewJobPayloadError(string(record.Type), err))
		q.done(record.ID)
		return
	}

	q.lanes.Submit(job.LaneKey(), func() {
		defer q.done(record.ID)
		q.process(runCtx, record, job, log)
	})
}

func (q *Queue) done(id string) {
	q.mu.Lock()
	delete(q.inFlight, id)
	q.mu.Unlock()
}

func (q *Queue) drop(ctx context.Context, record *models.JobRecord, log *logrus.Entry, err error) {
	q.errlog.LogError(err, "Dropping job with unreadable payload", logrus.Fields{"job_id": record.ID})
	if delErr := q.store.Delete(ctx, record.ID); delErr != nil {
		log.WithError(delErr).Error("Failed to delete unreadable job")
	}
	q.metrics.JobFinished(string(record.Type), "dropped", 0)
}

// process runs attempts until the job succeeds, fails permanently, runs out
// of attempts or time, or the queue stops. It holds the lane throughout, so
// a retrying job keeps later jobs for the same key waiting.
func (q *Queue) process(ctx context.Context, record *models.JobRecord, job Job, log *logrus.Entry) {
	jobType := string(record.Type)

	for {
		if ctx.Err() != nil {
			return
		}

		attempt, err := q.store.IncrementAttempt(ctx, record.ID)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				log.Debug("Job no longer stored, skipping")
			} else if ctx.Err() == nil {
				q.errlog.LogError(err, "Failed to record job attempt", logrus.Fields{"job_id": record.ID})
			}
			return
		}

		timeRemaining := record.TimeRemaining(q.now())
		shouldContinue := true
		if needsGate(job) {
			shouldContinue = q.gate.ShouldContinue(ctx, GateParams{
				Attempt:       attempt,
				TimeRemaining: timeRemaining,
			})
		}
		if ctx.Err() != nil {
			return
		}

		attemptLog := log.WithField("attempt", attempt)
		info := RunInfo{
			JobID:          record.ID,
			Attempt:        attempt,
			MaxAttempts:    record.MaxAttempts,
			TimeRemaining:  timeRemaining,
			IsFinalAttempt: attempt >= record.MaxAttempts,
			ShouldContinue: shouldContinue,
			Log:            attemptLog,
		}

		spanCtx, span := tracing.StartJobSpan(ctx, jobType, record.ID, attempt)
		tracing.AddSpanAttributes(spanCtx,
			attribute.Bool("job.should_continue", shouldContinue),
			attribute.Bool("job.final_attempt", info.IsFinalAttempt),
			attribute.Int64("job.time_remaining_ms", timeRemaining.Milliseconds()),
		)
		started := q.now()
		runErr := job.Run(spanCtx, info)
		took := q.now().Sub(started)
		tracing.RecordError(spanCtx, runErr)
		span.End()

		if runErr == nil {
			q.finish(ctx, record, attemptLog)
			q.metrics.JobFinished(jobType, "succeeded", took)
			return
		}

		if ctx.Err() != nil {
			attemptLog.WithError(runErr).Info("Job interrupted by shutdown, will resume on next start")
			return
		}

		if apperrors.IsRetryable(runErr) && attempt < record.MaxAttempts && record.TimeRemaining(q.now()) > 0 {
			q.errlog.LogWarn(runErr, "Job attempt failed, will retry", logrus.Fields{
				"job_id":       record.ID,
				"attempt":      attempt,
				"max_attempts": record.MaxAttempts,
			})
			q.metrics.JobFinished(jobType, "retried", took)
			continue
		}

		q.errlog.LogError(runErr, "Job failed permanently", logrus.Fields{
			"job_id":  record.ID,
			"attempt": attempt,
		})
		job.MarkFailed(ctx, runErr)
		q.finish(ctx, record, attemptLog)
		q.metrics.JobFinished(jobType, "failed", took)
		return
	}
}

func (q *Queue) finish(ctx context.Context, record *models.JobRecord, log *logrus.Entry) {
	if err := q.store.Delete(ctx, record.ID); err != nil {
		log.WithError(err).Error("Failed to delete finished job")
		return
	}
	log.Debug("Job removed from store")
}
