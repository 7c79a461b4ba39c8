package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/observability"
	"solana-transfer-desk/internal/storage"
)

// HoldingSnapshotStore implements storage.HoldingSnapshotStore using ClickHouse.
// Balances are stored as decimal strings to keep full precision.
type HoldingSnapshotStore struct {
	conn *Conn
}

// NewHoldingSnapshotStore creates a new HoldingSnapshotStore.
func NewHoldingSnapshotStore(conn *Conn) *HoldingSnapshotStore {
	return &HoldingSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HoldingSnapshotStore = (*HoldingSnapshotStore)(nil)

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate.
func (s *HoldingSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.HoldingSnapshot) (err error) {
	if len(snapshots) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_holding_snapshots", time.Since(start).Seconds(), err)
	}()

	// Check for intra-batch duplicates
	type key struct {
		identity string
		epoch    uint64
		owner    string
		assetID  string
	}
	seen := make(map[key]struct{})
	for _, snap := range snapshots {
		if snap == nil || snap.Identity == "" || snap.AssetID == "" {
			return storage.ErrInvalidInput
		}
		k := key{snap.Identity, snap.Epoch, snap.OwnerAccountAddress, snap.AssetID}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, snap := range snapshots {
		exists, err := s.exists(ctx, snap)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO holding_snapshots (
			identity, epoch, owner_account_address, asset_id, name, symbol,
			balance, decimal_places, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		err = batch.Append(
			snap.Identity, snap.Epoch, snap.OwnerAccountAddress, snap.AssetID, snap.Name, snap.Symbol,
			snap.Balance.String(), snap.DecimalPlaces, uint64(snap.ObservedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves snapshots of an identity within [start, end] (inclusive).
func (s *HoldingSnapshotStore) GetByTimeRange(ctx context.Context, identity string, start, end int64) ([]*domain.HoldingSnapshot, error) {
	query := `
		SELECT identity, epoch, owner_account_address, asset_id, name, symbol,
			balance, decimal_places, observed_at
		FROM holding_snapshots
		WHERE identity = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC, asset_id ASC
	`

	rows, err := s.conn.Query(ctx, query, identity, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanHoldingSnapshots(rows)
}

// GetByAsset retrieves the history of one asset of an identity.
func (s *HoldingSnapshotStore) GetByAsset(ctx context.Context, identity, assetID string) ([]*domain.HoldingSnapshot, error) {
	query := `
		SELECT identity, epoch, owner_account_address, asset_id, name, symbol,
			balance, decimal_places, observed_at
		FROM holding_snapshots
		WHERE identity = ? AND asset_id = ?
		ORDER BY observed_at ASC, epoch ASC
	`

	rows, err := s.conn.Query(ctx, query, identity, assetID)
	if err != nil {
		return nil, fmt.Errorf("query by asset: %w", err)
	}
	defer rows.Close()

	return scanHoldingSnapshots(rows)
}

// exists checks if a snapshot with the same key exists.
func (s *HoldingSnapshotStore) exists(ctx context.Context, snap *domain.HoldingSnapshot) (bool, error) {
	query := `
		SELECT count(*) FROM holding_snapshots
		WHERE identity = ? AND epoch = ? AND owner_account_address = ? AND asset_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, snap.Identity, snap.Epoch, snap.OwnerAccountAddress, snap.AssetID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanHoldingSnapshots scans multiple rows.
func scanHoldingSnapshots(rows chRows) ([]*domain.HoldingSnapshot, error) {
	var snapshots []*domain.HoldingSnapshot

	for rows.Next() {
		var snap domain.HoldingSnapshot
		var balance string
		var observedAt uint64

		err := rows.Scan(
			&snap.Identity, &snap.Epoch, &snap.OwnerAccountAddress, &snap.AssetID, &snap.Name, &snap.Symbol,
			&balance, &snap.DecimalPlaces, &observedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan holding snapshot row: %w", err)
		}

		snap.Balance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("parse balance %q: %w", balance, err)
		}
		snap.ObservedAt = int64(observedAt)
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holding snapshot rows: %w", err)
	}

	return snapshots, nil
}
