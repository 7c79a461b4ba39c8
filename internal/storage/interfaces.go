package storage

import (
	"context"

	"solana-transfer-desk/internal/domain"
)

// AttemptStore provides access to the transfer attempt journal.
type AttemptStore interface {
	// Insert adds a journal entry. Returns ErrDuplicateKey if (attempt_id, step) exists.
	Insert(ctx context.Context, r *domain.AttemptRecord) error

	// GetByAttemptID retrieves all steps of an attempt, ordered by created_at ASC.
	GetByAttemptID(ctx context.Context, attemptID string) ([]*domain.AttemptRecord, error)

	// GetByIdentity retrieves the most recent entries of an identity, newest first.
	// A non-positive limit returns all entries.
	GetByIdentity(ctx context.Context, identity string, limit int) ([]*domain.AttemptRecord, error)
}

// TokenMetadataStore provides access to resolved token metadata.
type TokenMetadataStore interface {
	// Insert adds metadata for a mint. Returns ErrDuplicateKey if the mint exists.
	Insert(ctx context.Context, m *domain.TokenMetadata) error

	// GetByMint retrieves metadata by mint address. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.TokenMetadata, error)
}

// HoldingSnapshotStore provides access to holdings history.
type HoldingSnapshotStore interface {
	// InsertBulk adds multiple snapshots. Fails entire batch on any duplicate
	// (identity, epoch, owner_account_address, asset_id).
	InsertBulk(ctx context.Context, snapshots []*domain.HoldingSnapshot) error

	// GetByTimeRange retrieves snapshots of an identity observed within [start, end] (inclusive),
	// ordered by observed_at ASC.
	GetByTimeRange(ctx context.Context, identity string, start, end int64) ([]*domain.HoldingSnapshot, error)

	// GetByAsset retrieves the balance history of one asset of an identity, ordered by observed_at ASC.
	GetByAsset(ctx context.Context, identity, assetID string) ([]*domain.HoldingSnapshot, error)
}
