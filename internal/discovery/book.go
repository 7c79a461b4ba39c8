package discovery

import (
	"sync"
	"time"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/observability"
)

// Book is the holdings list of the current identity.
// Every Reset starts a new epoch; results tagged with an older epoch are dropped,
// so discovery still running for a previous identity never leaks into the list.
type Book struct {
	mu       sync.RWMutex
	identity string
	epoch    uint64
	holdings []domain.Holding
	index    map[domain.HoldingKey]int
}

// NewBook creates an empty book.
// Epochs start from the clock so snapshot keys stay unique across restarts.
func NewBook() *Book {
	return &Book{
		epoch: uint64(time.Now().UnixNano()),
		index: make(map[domain.HoldingKey]int),
	}
}

// Reset clears the book for identity (empty for no identity) and returns the new epoch.
func (b *Book) Reset(identity string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.epoch++
	b.identity = identity
	b.holdings = nil
	b.index = make(map[domain.HoldingKey]int)
	return b.epoch
}

// Append adds h if epoch is current and its key is not present yet.
func (b *Book) Append(epoch uint64, h domain.Holding) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if epoch != b.epoch {
		observability.RecordStaleResult()
		return false
	}

	key := h.Key()
	if _, exists := b.index[key]; exists {
		return false
	}

	b.index[key] = len(b.holdings)
	b.holdings = append(b.holdings, h)
	return true
}

// Snapshot returns a copy of the current holdings in arrival order.
func (b *Book) Snapshot() []domain.Holding {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Holding, len(b.holdings))
	copy(out, b.holdings)
	return out
}

// Select returns the holding with the given key.
func (b *Book) Select(key domain.HoldingKey) (domain.Holding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i, ok := b.index[key]
	if !ok {
		return domain.Holding{}, false
	}
	return b.holdings[i], true
}

// Current returns the identity and epoch the book is collecting for.
func (b *Book) Current() (identity string, epoch uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.identity, b.epoch
}

// Len returns the number of holdings.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.holdings)
}
