package database

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"sendqueue/internal/jobs"
	"sendqueue/internal/metrics"
	"sendqueue/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, enqueuedAt time.Time) *models.JobRecord {
	return &models.JobRecord{
		ID:          id,
		Type:        models.JobTypeNormalMessage,
		Payload:     json.RawMessage(`{"messageId":"m-` + id + `","conversationId":"c1"}`),
		EnqueuedAt:  enqueuedAt,
		MaxAttempts: 7,
		Deadline:    24 * time.Hour,
	}
}

func TestJobStore_InsertGetDelete(t *testing.T) {
	store := openTestDB(t, testConfig(t)).Jobs()
	ctx := context.Background()
	now := time.Unix(1700000000, 123456789)

	require.NoError(t, store.Insert(ctx, record("a", now)))
	assert.ErrorIs(t, store.Insert(ctx, record("a", now)), jobs.ErrJobExists)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.JobTypeNormalMessage, got.Type)
	assert.JSONEq(t, `{"messageId":"m-a","conversationId":"c1"}`, string(got.Payload))
	assert.True(t, now.Equal(got.EnqueuedAt))
	assert.Equal(t, 7, got.MaxAttempts)
	assert.Equal(t, 24*time.Hour, got.Deadline)

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestJobStore_ListPendingOrdered(t *testing.T) {
	store := openTestDB(t, testConfig(t)).Jobs()
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	require.NoError(t, store.Insert(ctx, record("c", base.Add(time.Second))))
	require.NoError(t, store.Insert(ctx, record("b", base)))
	require.NoError(t, store.Insert(ctx, record("a", base)))

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, r := range pending {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestJobStore_IncrementAttempt(t *testing.T) {
	store := openTestDB(t, testConfig(t)).Jobs()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, record("a", time.Now())))

	for want := 1; want <= 3; want++ {
		got, err := store.IncrementAttempt(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := store.IncrementAttempt(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestJobStore_SurvivesReopen(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	db, err := New(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, db.Jobs().Insert(ctx, record("a", time.Now())))
	_, err = db.Jobs().IncrementAttempt(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened := openTestDB(t, cfg)
	got, err := reopened.Jobs().Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempt)
}

func TestJobStore_EncryptsPayloadAtRest(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncryptPayloads = true
	cfg.EncryptionSecret = testSecret
	db := openTestDB(t, cfg)
	ctx := context.Background()

	require.NoError(t, db.Jobs().Insert(ctx, record("a", time.Now())))

	var raw string
	require.NoError(t, db.db.QueryRow("SELECT payload FROM jobs WHERE id = ?", "a").Scan(&raw))
	assert.NotContains(t, raw, "messageId")
	assert.Contains(t, raw, encryptedPrefix)

	got, err := db.Jobs().Get(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"messageId":"m-a","conversationId":"c1"}`, string(got.Payload))
}

func TestJobStore_EncryptedRowsNeedSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncryptPayloads = true
	cfg.EncryptionSecret = testSecret
	ctx := context.Background()

	db, err := New(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, db.Jobs().Insert(ctx, record("a", time.Now())))
	require.NoError(t, db.Close())

	plain := openTestDB(t, models.DatabaseConfig{Path: cfg.Path})
	_, err = plain.Jobs().Get(ctx, "a")
	assert.Error(t, err)
}

type alwaysContinue struct{}

func (alwaysContinue) ShouldContinue(ctx context.Context, params jobs.GateParams) bool {
	return params.TimeRemaining > 0
}

type countingHandler struct {
	mu   sync.Mutex
	runs []string
}

func (h *countingHandler) Parse(payload json.RawMessage) (jobs.Job, error) {
	var data models.NormalMessageJobData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	return &countingJob{h: h, data: data}, nil
}

type countingJob struct {
	h    *countingHandler
	data models.NormalMessageJobData
}

func (j *countingJob) LaneKey() string { return j.data.ConversationID }

func (j *countingJob) Run(ctx context.Context, info jobs.RunInfo) error {
	j.h.mu.Lock()
	defer j.h.mu.Unlock()
	j.h.runs = append(j.h.runs, j.data.MessageID)
	return nil
}

func (j *countingJob) MarkFailed(ctx context.Context, err error) {}

func TestJobStore_QueueResumesAfterRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	db, err := New(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	base := time.Now()
	require.NoError(t, db.Jobs().Insert(ctx, record("1", base)))
	require.NoError(t, db.Jobs().Insert(ctx, record("2", base.Add(time.Millisecond))))
	require.NoError(t, db.Close())

	reopened := openTestDB(t, cfg)
	handler := &countingHandler{}
	queue := jobs.NewQueue(reopened.Jobs(), alwaysContinue{}, quietLogger(),
		jobs.WithMetrics(metrics.NewRegistry()),
		jobs.WithPollInterval(10*time.Millisecond),
	)
	queue.Register(models.JobTypeNormalMessage, handler)
	t.Cleanup(queue.Stop)
	require.NoError(t, queue.Start(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, queue.WaitIdle(waitCtx))

	handler.mu.Lock()
	assert.Equal(t, []string{"m-1", "m-2"}, handler.runs)
	handler.mu.Unlock()
	n, err := reopened.Jobs().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
