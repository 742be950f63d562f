package jobs

import (
	"context"
	"errors"

	"sendqueue/internal/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// Store persists job records across restarts. It is the single source of
// truth for what still needs sending: a record stays until its handler
// succeeds or fails permanently.
type Store interface {
	// Insert persists a new record. Duplicate IDs return ErrJobExists.
	Insert(ctx context.Context, job *models.JobRecord) error
	// ListPending returns every stored record ordered by enqueue time, then ID.
	ListPending(ctx context.Context) ([]*models.JobRecord, error)
	// Get returns one record or ErrJobNotFound.
	Get(ctx context.Context, id string) (*models.JobRecord, error)
	// IncrementAttempt bumps and returns the persisted attempt counter.
	IncrementAttempt(ctx context.Context, id string) (int, error)
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error
}
