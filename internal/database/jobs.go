package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sendqueue/internal/jobs"
	"sendqueue/internal/models"
)

var _ jobs.Store = (*JobStore)(nil)

// JobStore keeps job records in the jobs table. Payloads are encrypted at
// rest when the database was opened with an encryption secret.
type JobStore struct {
	d *Database
}

func (d *Database) Jobs() *JobStore {
	return &JobStore{d: d}
}

func (s *JobStore) Insert(ctx context.Context, job *models.JobRecord) error {
	payload, err := s.d.encryptor.Encrypt(string(job.Payload))
	if err != nil {
		return fmt.Errorf("failed to encrypt job payload: %w", err)
	}

	err = s.d.withRetry(ctx, "insert job", func() error {
		_, err := s.d.db.ExecContext(ctx, InsertJobQuery,
			job.ID,
			string(job.Type),
			payload,
			job.EnqueuedAt.UnixNano(),
			job.Attempt,
			job.MaxAttempts,
			job.Deadline.Milliseconds(),
		)
		return err
	})
	if isUniqueViolation(err) {
		return jobs.ErrJobExists
	}
	return err
}

func (s *JobStore) ListPending(ctx context.Context) ([]*models.JobRecord, error) {
	rows, err := s.d.db.QueryContext(ctx, SelectPendingJobsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.JobRecord
	for rows.Next() {
		record, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return out, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*models.JobRecord, error) {
	record, err := s.scan(s.d.db.QueryRowContext(ctx, SelectJobByIDQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrJobNotFound
	}
	return record, err
}

func (s *JobStore) IncrementAttempt(ctx context.Context, id string) (int, error) {
	var attempt int
	err := s.d.withRetry(ctx, "increment job attempt", func() error {
		return s.d.db.QueryRowContext(ctx, IncrementJobAttemptQuery, id).Scan(&attempt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, jobs.ErrJobNotFound
	}
	if err != nil {
		return 0, err
	}
	return attempt, nil
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	return s.d.withRetry(ctx, "delete job", func() error {
		_, err := s.d.db.ExecContext(ctx, DeleteJobQuery, id)
		return err
	})
}

// Count returns how many jobs are stored.
func (s *JobStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.d.db.QueryRowContext(ctx, CountJobsQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *JobStore) scan(row rowScanner) (*models.JobRecord, error) {
	var (
		record     models.JobRecord
		jobType    string
		payload    string
		enqueuedAt int64
		deadlineMs int64
	)
	err := row.Scan(&record.ID, &jobType, &payload, &enqueuedAt, &record.Attempt, &record.MaxAttempts, &deadlineMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	plaintext, err := s.d.encryptor.Decrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload of job %s: %w", record.ID, err)
	}

	record.Type = models.JobType(jobType)
	record.Payload = []byte(plaintext)
	record.EnqueuedAt = time.Unix(0, enqueuedAt)
	record.Deadline = time.Duration(deadlineMs) * time.Millisecond
	return &record, nil
}
