// Package metadata resolves token names and symbols from on-chain Metaplex metadata accounts.
package metadata

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"solana-transfer-desk/internal/address"
	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/observability"
	"solana-transfer-desk/internal/solana"
	"solana-transfer-desk/internal/storage"
)

// DefaultCacheSize is the number of mints kept in the lookup cache.
const DefaultCacheSize = 4096

var (
	// ErrNotFound is returned when a mint has no metadata account.
	ErrNotFound = errors.New("metadata not found")
	// ErrMalformed is returned when the metadata account cannot be decoded.
	ErrMalformed = errors.New("malformed metadata")
)

// Metaplex metadata account layout:
// - key: u8 (4 for MetadataV1)
// - updateAuthority: Pubkey (32 bytes)
// - mint: Pubkey (32 bytes)
// - name: borsh string (u32 length + bytes, padded with NULs to 32)
// - symbol: borsh string (u32 length + bytes, padded with NULs to 10)
const (
	keyMetadataV1 = 4
	nameOffset    = 1 + 32 + 32
	maxNameLen    = 32
	maxSymbolLen  = 10
)

// Fetcher resolves on-chain metadata for a mint.
type Fetcher interface {
	Fetch(ctx context.Context, mint string) (*domain.TokenInfo, error)
}

// Source fetches Metaplex metadata over RPC and caches successful lookups.
// With a store attached, lookups survive restarts.
type Source struct {
	rpc    solana.RPCClient
	cache  *lru.Cache[string, domain.TokenInfo]
	store  storage.TokenMetadataStore
	logger *log.Logger
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithStore persists resolved metadata and consults it before RPC.
func WithStore(store storage.TokenMetadataStore) SourceOption {
	return func(s *Source) { s.store = store }
}

// WithLogger sets the logger for store failures.
func WithLogger(logger *log.Logger) SourceOption {
	return func(s *Source) { s.logger = logger }
}

// NewSource creates a metadata source. A non-positive cacheSize uses DefaultCacheSize.
func NewSource(rpc solana.RPCClient, cacheSize int, opts ...SourceOption) (*Source, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, domain.TokenInfo](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}
	s := &Source{rpc: rpc, cache: cache, logger: log.New(io.Discard, "", 0)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fetch returns the name and symbol recorded for mint.
func (s *Source) Fetch(ctx context.Context, mint string) (*domain.TokenInfo, error) {
	if info, ok := s.cache.Get(mint); ok {
		observability.RecordMetadataLookup("metaplex", "cache")
		return &info, nil
	}

	if s.store != nil {
		m, err := s.store.GetByMint(ctx, mint)
		switch {
		case err == nil:
			info := m.Info()
			s.cache.Add(mint, info)
			observability.RecordMetadataLookup("store", "hit")
			return &info, nil
		case !errors.Is(err, storage.ErrNotFound):
			s.logger.Printf("metadata store lookup %s: %v", mint, err)
		}
	}

	pda, err := address.FindMetadataAddress(mint)
	if err != nil {
		return nil, fmt.Errorf("derive metadata address: %w", err)
	}

	account, err := s.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		observability.RecordMetadataLookup("metaplex", "error")
		return nil, fmt.Errorf("get metadata account %s: %w", pda, err)
	}
	if account == nil {
		observability.RecordMetadataLookup("metaplex", "miss")
		return nil, ErrNotFound
	}

	raw, err := base64.StdEncoding.DecodeString(account.Data)
	if err != nil {
		observability.RecordMetadataLookup("metaplex", "error")
		return nil, fmt.Errorf("%w: decode account data: %v", ErrMalformed, err)
	}

	name, symbol, err := Parse(raw)
	if err != nil {
		observability.RecordMetadataLookup("metaplex", "error")
		return nil, err
	}

	info := domain.TokenInfo{Mint: mint, Name: name, Symbol: symbol}
	s.cache.Add(mint, info)
	observability.RecordMetadataLookup("metaplex", "hit")
	s.persist(ctx, info)
	return &info, nil
}

func (s *Source) persist(ctx context.Context, info domain.TokenInfo) {
	if s.store == nil {
		return
	}
	err := s.store.Insert(ctx, &domain.TokenMetadata{
		Mint:      info.Mint,
		Name:      info.Name,
		Symbol:    info.Symbol,
		FetchedAt: time.Now().UnixMilli(),
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		s.logger.Printf("persist metadata %s: %v", info.Mint, err)
	}
}

// Parse decodes name and symbol from raw Metaplex metadata account data.
func Parse(data []byte) (name, symbol string, err error) {
	if len(data) < nameOffset+4 {
		return "", "", fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	if data[0] != keyMetadataV1 {
		return "", "", fmt.Errorf("%w: account key %d", ErrMalformed, data[0])
	}

	offset := nameOffset
	name, offset, err = readString(data, offset, maxNameLen)
	if err != nil {
		return "", "", fmt.Errorf("name: %w", err)
	}
	symbol, _, err = readString(data, offset, maxSymbolLen)
	if err != nil {
		return "", "", fmt.Errorf("symbol: %w", err)
	}
	return name, symbol, nil
}

// readString reads a borsh string and trims the NUL padding.
func readString(data []byte, offset, maxLen int) (string, int, error) {
	if offset+4 > len(data) {
		return "", offset, ErrMalformed
	}
	n := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4

	// Padding is included in the length, so allow a little slack over the on-chain maximum.
	if n > maxLen*4 || offset+n > len(data) {
		return "", offset, fmt.Errorf("%w: string length %d", ErrMalformed, n)
	}
	s := strings.TrimRight(string(data[offset:offset+n]), "\x00")
	return strings.TrimSpace(s), offset + n, nil
}

var _ Fetcher = (*Source)(nil)
