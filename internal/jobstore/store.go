// Package jobstore implements the in-memory, mutex-guarded job row store
// (§6 of SPEC_FULL.md). It is the supplied default; callers needing
// durability swap in another implementation of Store.
package jobstore

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platerecon/platerecon/pkg/models"
)

// ErrNotFound is returned when a job id has no matching row.
var ErrNotFound = errors.New("job not found")

// Store is the persistence contract the job runner and HTTP surface
// depend on.
type Store interface {
	// Create inserts a new job row. expectedPlateText, when non-empty, is
	// recorded as the row's regression-fixture hint (§4.4).
	Create(imageURL, expectedPlateText string) models.RecognitionJob
	Get(id string) (models.RecognitionJob, error)
	Update(id string, mutate func(job *models.RecognitionJob)) (models.RecognitionJob, error)
	List(page, pageSize int) ([]models.RecognitionJob, int)
}

// MemoryStore is a mutex-guarded map keyed by job id.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.RecognitionJob
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]models.RecognitionJob)}
}

// Create inserts a new job row in NOT_STARTED status. expectedPlateText, when
// non-empty, is recorded as the row's regression-fixture hint.
func (s *MemoryStore) Create(imageURL, expectedPlateText string) models.RecognitionJob {
	now := time.Now().UTC()
	job := models.RecognitionJob{
		ID:        uuid.NewString(),
		ImageURL:  imageURL,
		Status:    models.JobStatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if expectedPlateText != "" {
		job.ExpectedPlateText = &expectedPlateText
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return job
}

// Get fetches a job row by id.
func (s *MemoryStore) Get(id string) (models.RecognitionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.RecognitionJob{}, ErrNotFound
	}
	return job, nil
}

// Update applies mutate to the stored row under the write lock and
// refreshes UpdatedAt, returning the updated row.
func (s *MemoryStore) Update(id string, mutate func(job *models.RecognitionJob)) (models.RecognitionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.RecognitionJob{}, ErrNotFound
	}

	mutate(&job)
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

// List returns a page of jobs ordered by CreatedAt descending, along with
// the total job count.
func (s *MemoryStore) List(page, pageSize int) ([]models.RecognitionJob, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]models.RecognitionJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	start := (page - 1) * pageSize
	if start >= total {
		return []models.RecognitionJob{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total
}
