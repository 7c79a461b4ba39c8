// Package registry serves token names and symbols from a static token-list snapshot.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/observability"
)

// DefaultSource is the published solana-labs token list.
const DefaultSource = "https://raw.githubusercontent.com/solana-labs/token-list/main/src/tokens/solana.tokenlist.json"

// tokenList is the solana-labs token-list document.
type tokenList struct {
	Name   string       `json:"name"`
	Tokens []tokenEntry `json:"tokens"`
}

type tokenEntry struct {
	ChainID  int    `json:"chainId"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

// Registry is a read-only mint to TokenInfo table loaded once.
// Until loading completes Resolve finds nothing.
type Registry struct {
	chainID int
	client  *http.Client

	once   sync.Once
	ready  chan struct{}
	mu     sync.RWMutex
	tokens map[string]domain.TokenInfo
	err    error
}

// New creates an empty registry for the given cluster.
func New(cluster domain.Cluster) *Registry {
	return &Registry{
		chainID: cluster.ChainID(),
		client:  &http.Client{Timeout: 30 * time.Second},
		ready:   make(chan struct{}),
	}
}

// LoadAsync starts loading src (file path or http(s) URL) in the background.
func (r *Registry) LoadAsync(ctx context.Context, src string) {
	go r.Load(ctx, src)
}

// Load reads the token list from src and publishes the entries of the registry's chain.
// Only the first call has an effect.
func (r *Registry) Load(ctx context.Context, src string) error {
	r.once.Do(func() {
		defer close(r.ready)

		tokens, err := r.load(ctx, src)

		r.mu.Lock()
		r.tokens = tokens
		r.err = err
		r.mu.Unlock()

		observability.SetRegistryTokens(len(tokens))
	})
	return r.Err()
}

func (r *Registry) load(ctx context.Context, src string) (map[string]domain.TokenInfo, error) {
	rc, err := r.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var list tokenList
	if err := json.NewDecoder(rc).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode token list: %w", err)
	}

	tokens := make(map[string]domain.TokenInfo, len(list.Tokens))
	for _, t := range list.Tokens {
		if t.ChainID != r.chainID || t.Address == "" {
			continue
		}
		tokens[t.Address] = domain.TokenInfo{
			Mint:     t.Address,
			Name:     t.Name,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		}
	}
	return tokens, nil
}

func (r *Registry) open(ctx context.Context, src string) (io.ReadCloser, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		f, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("open token list: %w", err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch token list: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch token list: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Resolve returns the registry entry for mint.
func (r *Registry) Resolve(mint string) (domain.TokenInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tokens[mint]
	return info, ok
}

// Ready is closed once loading finished, successfully or not.
func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}

// Err returns the load error, if any.
func (r *Registry) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Len returns the number of loaded entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
