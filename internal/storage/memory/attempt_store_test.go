package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/storage"
)

func newRecord(attemptID string, step domain.AttemptStep, identity string, createdAt int64) *domain.AttemptRecord {
	return &domain.AttemptRecord{
		AttemptID: attemptID,
		Step:      step,
		Identity:  identity,
		AssetID:   "mint123",
		Symbol:    "USDC",
		Recipient: "recipient123",
		Amount:    decimal.RequireFromString("1.5"),
		Outcome:   domain.OutcomeSuccess,
		Reference: "sig-" + attemptID + "-" + string(step),
		CreatedAt: createdAt,
	}
}

func TestAttemptStore_InsertAndGet(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newRecord("a1", domain.StepTransfer, "owner", 2000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, newRecord("a1", domain.StepCreateAccount, "owner", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByAttemptID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByAttemptID failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Step != domain.StepCreateAccount || got[1].Step != domain.StepTransfer {
		t.Errorf("records not ordered by created_at: %s, %s", got[0].Step, got[1].Step)
	}
	if !got[1].Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Amount mismatch: got %s", got[1].Amount)
	}
}

func TestAttemptStore_DuplicateKey(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	r := newRecord("a1", domain.StepTransfer, "owner", 1000)
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, r)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestAttemptStore_InvalidInput(t *testing.T) {
	store := NewAttemptStore()

	err := store.Insert(context.Background(), &domain.AttemptRecord{Step: domain.StepTransfer})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestAttemptStore_GetByIdentity(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	store.Insert(ctx, newRecord("a1", domain.StepTransfer, "owner", 1000))
	store.Insert(ctx, newRecord("a2", domain.StepTransfer, "owner", 3000))
	store.Insert(ctx, newRecord("a3", domain.StepTransfer, "other", 2000))
	store.Insert(ctx, newRecord("a4", domain.StepTransfer, "owner", 2000))

	got, err := store.GetByIdentity(ctx, "owner", 2)
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].AttemptID != "a2" || got[1].AttemptID != "a4" {
		t.Errorf("expected newest first [a2 a4], got [%s %s]", got[0].AttemptID, got[1].AttemptID)
	}

	all, _ := store.GetByIdentity(ctx, "owner", 0)
	if len(all) != 3 {
		t.Errorf("expected 3 records without limit, got %d", len(all))
	}
}

func TestAttemptStore_ReturnsCopies(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	r := newRecord("a1", domain.StepTransfer, "owner", 1000)
	store.Insert(ctx, r)
	r.Reference = "mutated"

	got, _ := store.GetByAttemptID(ctx, "a1")
	if got[0].Reference == "mutated" {
		t.Error("store must keep its own copy")
	}
}

func TestAttemptStore_Concurrent(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Insert(ctx, newRecord("same", domain.StepTransfer, "owner", 1000))
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful insert, got %d", ok)
	}
}
