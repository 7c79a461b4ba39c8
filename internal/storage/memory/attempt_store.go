package memory

import (
	"context"
	"sort"
	"sync"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/storage"
)

// AttemptStore is an in-memory implementation of storage.AttemptStore.
type AttemptStore struct {
	mu      sync.RWMutex
	records []*domain.AttemptRecord
	keys    map[attemptKey]struct{}
}

type attemptKey struct {
	attemptID string
	step      domain.AttemptStep
}

// NewAttemptStore creates a new in-memory attempt store.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		keys: make(map[attemptKey]struct{}),
	}
}

// Insert adds a journal entry. Returns ErrDuplicateKey if (attempt_id, step) exists.
func (s *AttemptStore) Insert(_ context.Context, r *domain.AttemptRecord) error {
	if r == nil || r.AttemptID == "" || r.Step == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := attemptKey{r.AttemptID, r.Step}
	if _, exists := s.keys[k]; exists {
		return storage.ErrDuplicateKey
	}

	recordCopy := *r
	s.keys[k] = struct{}{}
	s.records = append(s.records, &recordCopy)
	return nil
}

// GetByAttemptID retrieves all steps of an attempt, ordered by created_at ASC.
func (s *AttemptStore) GetByAttemptID(_ context.Context, attemptID string) ([]*domain.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AttemptRecord
	for _, r := range s.records {
		if r.AttemptID == attemptID {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

// GetByIdentity retrieves the most recent entries of an identity, newest first.
func (s *AttemptStore) GetByIdentity(_ context.Context, identity string, limit int) ([]*domain.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AttemptRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.Identity == identity {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.AttemptStore = (*AttemptStore)(nil)
