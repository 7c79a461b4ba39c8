package memory

import (
	"context"
	"sort"
	"sync"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/storage"
)

// HoldingSnapshotStore is an in-memory implementation of storage.HoldingSnapshotStore.
type HoldingSnapshotStore struct {
	mu        sync.RWMutex
	snapshots []*domain.HoldingSnapshot
	keys      map[snapshotKey]struct{}
}

type snapshotKey struct {
	identity string
	epoch    uint64
	owner    string
	assetID  string
}

func keyOf(s *domain.HoldingSnapshot) snapshotKey {
	return snapshotKey{s.Identity, s.Epoch, s.OwnerAccountAddress, s.AssetID}
}

// NewHoldingSnapshotStore creates a new in-memory holdings history store.
func NewHoldingSnapshotStore() *HoldingSnapshotStore {
	return &HoldingSnapshotStore{
		keys: make(map[snapshotKey]struct{}),
	}
}

// InsertBulk adds multiple snapshots atomically. Fails entire batch on any duplicate.
func (s *HoldingSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.HoldingSnapshot) error {
	for _, snap := range snapshots {
		if snap == nil || snap.Identity == "" || snap.AssetID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[snapshotKey]struct{}, len(snapshots))
	for _, snap := range snapshots {
		k := keyOf(snap)
		if _, exists := s.keys[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, snap := range snapshots {
		snapCopy := *snap
		s.keys[keyOf(snap)] = struct{}{}
		s.snapshots = append(s.snapshots, &snapCopy)
	}
	return nil
}

// GetByTimeRange retrieves snapshots of an identity within [start, end] (inclusive).
func (s *HoldingSnapshotStore) GetByTimeRange(_ context.Context, identity string, start, end int64) ([]*domain.HoldingSnapshot, error) {
	return s.filter(func(snap *domain.HoldingSnapshot) bool {
		return snap.Identity == identity && snap.ObservedAt >= start && snap.ObservedAt <= end
	}), nil
}

// GetByAsset retrieves the history of one asset of an identity.
func (s *HoldingSnapshotStore) GetByAsset(_ context.Context, identity, assetID string) ([]*domain.HoldingSnapshot, error) {
	return s.filter(func(snap *domain.HoldingSnapshot) bool {
		return snap.Identity == identity && snap.AssetID == assetID
	}), nil
}

func (s *HoldingSnapshotStore) filter(match func(*domain.HoldingSnapshot) bool) []*domain.HoldingSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.HoldingSnapshot
	for _, snap := range s.snapshots {
		if match(snap) {
			snapCopy := *snap
			result = append(result, &snapCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ObservedAt < result[j].ObservedAt
	})
	return result
}

var _ storage.HoldingSnapshotStore = (*HoldingSnapshotStore)(nil)
