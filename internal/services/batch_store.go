package services

import (
	"sort"
	"sync"
	"time"

	"mktsummary/pkg/contracts/domain"
)

// BatchFilter narrows List results. Zero fields match everything.
type BatchFilter struct {
	Status domain.BatchStatus
	Since  time.Time
	Limit  int
}

// BatchStore is an in-memory store of batches. Returned batches are copies.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[string]*domain.Batch
}

// NewBatchStore creates an empty store
func NewBatchStore() *BatchStore {
	return &BatchStore{batches: make(map[string]*domain.Batch)}
}

// Create stores a new batch
func (s *BatchStore) Create(b *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[b.ID]; exists {
		return ErrBatchExists
	}
	s.batches[b.ID] = copyBatch(b)
	return nil
}

// Get retrieves a batch by ID
func (s *BatchStore) Get(id string) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.batches[id]
	if !exists {
		return nil, ErrBatchNotFound
	}
	return copyBatch(b), nil
}

// Update applies fn to the stored batch under the store lock and returns a
// copy of the result.
func (s *BatchStore) Update(id string, fn func(b *domain.Batch)) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.batches[id]
	if !exists {
		return nil, ErrBatchNotFound
	}
	fn(b)
	return copyBatch(b), nil
}

// Delete removes a batch
func (s *BatchStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[id]; !exists {
		return ErrBatchNotFound
	}
	delete(s.batches, id)
	return nil
}

// List returns batches matching filter, newest first.
func (s *BatchStore) List(filter BatchFilter) []*domain.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && b.CreatedAt.Before(filter.Since) {
			continue
		}
		result = append(result, copyBatch(b))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

// CleanupOld removes finished batches created before now-olderThan.
func (s *BatchStore) CleanupOld(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := 0
	for id, b := range s.batches {
		if b.Status.IsTerminal() && b.CreatedAt.Before(cutoff) {
			delete(s.batches, id)
			deleted++
		}
	}
	return deleted
}

// Stats counts batches per status.
func (s *BatchStore) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{"total": len(s.batches)}
	for _, b := range s.batches {
		stats[string(b.Status)]++
	}
	return stats
}

func copyBatch(b *domain.Batch) *domain.Batch {
	c := *b
	c.Outcomes = make([]domain.Outcome, len(b.Outcomes))
	copy(c.Outcomes, b.Outcomes)
	return &c
}
