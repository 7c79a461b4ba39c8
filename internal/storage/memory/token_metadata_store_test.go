package memory

import (
	"context"
	"errors"
	"testing"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/storage"
)

func TestTokenMetadataStore_InsertAndGetByMint(t *testing.T) {
	store := NewTokenMetadataStore()
	ctx := context.Background()

	meta := &domain.TokenMetadata{
		Mint:      "mint1",
		Name:      "TestToken",
		Symbol:    "TT",
		FetchedAt: 1704067200000,
	}

	if err := store.Insert(ctx, meta); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := store.GetByMint(ctx, "mint1")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if result.Name != "TestToken" || result.Symbol != "TT" {
		t.Errorf("metadata mismatch: got %s/%s", result.Name, result.Symbol)
	}
	if result.CreatedAt != meta.FetchedAt {
		t.Errorf("CreatedAt: got %d, want %d", result.CreatedAt, meta.FetchedAt)
	}

	// Mutating the result must not change the stored copy.
	result.Name = "changed"
	again, _ := store.GetByMint(ctx, "mint1")
	if again.Name != "TestToken" {
		t.Errorf("store returned shared pointer")
	}
}

func TestTokenMetadataStore_DuplicateMint(t *testing.T) {
	store := NewTokenMetadataStore()
	ctx := context.Background()

	meta := &domain.TokenMetadata{Mint: "mint1"}
	if err := store.Insert(ctx, meta); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, meta); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestTokenMetadataStore_InvalidAndMissing(t *testing.T) {
	store := NewTokenMetadataStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &domain.TokenMetadata{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := store.GetByMint(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
