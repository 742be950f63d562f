package jobs

import (
	"context"
	"sort"
	"sync"

	"sendqueue/internal/models"
)

// MemoryStore is a Store kept in process memory. It does not survive a
// restart and is used in tests and for ephemeral queues.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*models.JobRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*models.JobRecord)}
}

func (s *MemoryStore) Insert(ctx context.Context, job *models.JobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[job.ID]; exists {
		return ErrJobExists
	}
	s.items[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) ListPending(ctx context.Context) ([]*models.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]*models.JobRecord, 0, len(s.items))
	for _, job := range s.items {
		out = append(out, job.Clone())
	}
	s.mu.Unlock()

	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.items[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) IncrementAttempt(ctx context.Context, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.items[id]
	if !ok {
		return 0, ErrJobNotFound
	}
	job.Attempt++
	return job.Attempt, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func sortRecords(records []*models.JobRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].EnqueuedAt.Equal(records[j].EnqueuedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].EnqueuedAt.Before(records[j].EnqueuedAt)
	})
}
