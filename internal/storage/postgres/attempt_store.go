package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/observability"
	"solana-transfer-desk/internal/storage"
)

// AttemptStore implements storage.AttemptStore using PostgreSQL.
type AttemptStore struct {
	pool *Pool
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(pool *Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AttemptStore = (*AttemptStore)(nil)

// Insert adds a journal entry. Returns ErrDuplicateKey if (attempt_id, step) exists.
func (s *AttemptStore) Insert(ctx context.Context, r *domain.AttemptRecord) (err error) {
	if r == nil || r.AttemptID == "" || r.Step == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "insert_attempt", time.Since(start).Seconds(), err)
	}()

	query := `
		INSERT INTO transfer_attempts (
			attempt_id, step, identity, asset_id, symbol, recipient, amount,
			outcome, reference, explorer_link, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12)
	`

	_, err = s.pool.Exec(ctx, query,
		r.AttemptID,
		string(r.Step),
		r.Identity,
		r.AssetID,
		r.Symbol,
		r.Recipient,
		r.Amount.String(),
		string(r.Outcome),
		r.Reference,
		r.ExplorerLink,
		r.Error,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transfer attempt: %w", err)
	}
	return nil
}

// GetByAttemptID retrieves all steps of an attempt, ordered by created_at ASC.
func (s *AttemptStore) GetByAttemptID(ctx context.Context, attemptID string) ([]*domain.AttemptRecord, error) {
	query := `
		SELECT attempt_id, step, identity, asset_id, symbol, recipient, amount::text,
			outcome, reference, explorer_link, error, created_at
		FROM transfer_attempts
		WHERE attempt_id = $1
		ORDER BY created_at ASC, step ASC
	`

	rows, err := s.pool.Query(ctx, query, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query transfer attempts by id: %w", err)
	}
	defer rows.Close()

	return scanAttemptRecords(rows)
}

// GetByIdentity retrieves the most recent entries of an identity, newest first.
func (s *AttemptStore) GetByIdentity(ctx context.Context, identity string, limit int) ([]*domain.AttemptRecord, error) {
	query := `
		SELECT attempt_id, step, identity, asset_id, symbol, recipient, amount::text,
			outcome, reference, explorer_link, error, created_at
		FROM transfer_attempts
		WHERE identity = $1
		ORDER BY created_at DESC, attempt_id ASC
	`
	args := []interface{}{identity}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transfer attempts by identity: %w", err)
	}
	defer rows.Close()

	return scanAttemptRecords(rows)
}

// scanAttemptRecords scans multiple rows into AttemptRecord slice.
func scanAttemptRecords(rows pgx.Rows) ([]*domain.AttemptRecord, error) {
	var result []*domain.AttemptRecord

	for rows.Next() {
		var (
			r             domain.AttemptRecord
			step, outcome string
			amount        string
		)

		err := rows.Scan(
			&r.AttemptID,
			&step,
			&r.Identity,
			&r.AssetID,
			&r.Symbol,
			&r.Recipient,
			&amount,
			&outcome,
			&r.Reference,
			&r.ExplorerLink,
			&r.Error,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transfer attempt: %w", err)
		}

		r.Step = domain.AttemptStep(step)
		r.Outcome = domain.AttemptOutcome(outcome)
		r.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}

		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer attempts: %w", err)
	}

	return result, nil
}
