// Package discovery lists the native and token holdings of a wallet identity.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/metadata"
	"solana-transfer-desk/internal/observability"
	"solana-transfer-desk/internal/solana"
)

// Registry resolves static token metadata.
type Registry interface {
	Resolve(mint string) (domain.TokenInfo, bool)
}

// Source streams the holdings of an identity.
type Source interface {
	Discover(ctx context.Context, identity string) <-chan domain.Holding
}

// Discoverer queries the chain for holdings and enriches token holdings with metadata.
type Discoverer struct {
	rpc      solana.RPCClient
	metadata metadata.Fetcher
	registry Registry
	logger   *log.Logger
}

// NewDiscoverer creates a discoverer. fetcher, registry and logger may be nil.
func NewDiscoverer(rpc solana.RPCClient, fetcher metadata.Fetcher, registry Registry, logger *log.Logger) *Discoverer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Discoverer{
		rpc:      rpc,
		metadata: fetcher,
		registry: registry,
		logger:   logger,
	}
}

// Discover streams every holding of identity in no particular order.
// The channel is closed once the balance lookup, the token account lookup and every
// enrichment finished. Lookup failures drop only the affected holdings.
func (d *Discoverer) Discover(ctx context.Context, identity string) <-chan domain.Holding {
	out := make(chan domain.Holding)
	observability.RecordDiscoveryRun()

	emit := func(h domain.Holding) {
		select {
		case out <- h:
		case <-ctx.Done():
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		d.discoverNative(ctx, identity, emit)
	}()

	go func() {
		defer wg.Done()
		d.discoverTokens(ctx, identity, &wg, emit)
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (d *Discoverer) discoverNative(ctx context.Context, identity string, emit func(domain.Holding)) {
	lamports, err := d.rpc.GetBalance(ctx, identity)
	if err != nil {
		observability.RecordDiscoveryError("balance")
		d.logger.Printf("get balance %s: %v", identity, err)
		return
	}
	observability.RecordHoldingDiscovered("native")
	emit(domain.NewNativeHolding(identity, lamports))
}

func (d *Discoverer) discoverTokens(ctx context.Context, identity string, wg *sync.WaitGroup, emit func(domain.Holding)) {
	accounts, err := d.rpc.GetProgramAccounts(ctx, solana.TokenProgramID, []solana.AccountFilter{
		{DataSize: solana.TokenAccountSize},
		{Memcmp: &solana.Memcmp{Offset: solana.TokenAccountOwnerOffset, Bytes: identity}},
	})
	if err != nil {
		observability.RecordDiscoveryError("token_accounts")
		d.logger.Printf("get token accounts %s: %v", identity, err)
		return
	}

	for _, acc := range accounts {
		h, err := tokenHolding(acc)
		if err != nil {
			observability.RecordDiscoveryError("token_parse")
			d.logger.Printf("skip token account %s: %v", acc.Pubkey, err)
			continue
		}

		wg.Add(1)
		go func(h domain.Holding) {
			defer wg.Done()
			h = d.enrich(ctx, h)
			observability.RecordHoldingDiscovered("token")
			emit(h)
		}(h)
	}
}

// enrich attaches on-chain metadata, then lets the static registry override it.
// Lookup failures leave the holding unnamed.
func (d *Discoverer) enrich(ctx context.Context, h domain.Holding) domain.Holding {
	if d.metadata != nil {
		info, err := d.metadata.Fetch(ctx, h.AssetID)
		switch {
		case err == nil:
			h.Name, h.Symbol = info.Name, info.Symbol
		case errors.Is(err, metadata.ErrNotFound):
		default:
			d.logger.Printf("metadata %s: %v", h.AssetID, err)
		}
	}

	if d.registry != nil {
		if info, ok := d.registry.Resolve(h.AssetID); ok {
			observability.RecordMetadataLookup("registry", "hit")
			if info.Name != "" {
				h.Name = info.Name
			}
			if info.Symbol != "" {
				h.Symbol = info.Symbol
			}
		} else {
			observability.RecordMetadataLookup("registry", "miss")
		}
	}

	return h
}

// tokenHolding converts a jsonParsed token account into a holding keyed by the token account.
func tokenHolding(acc solana.ProgramAccount) (domain.Holding, error) {
	info, err := acc.Account.TokenAccount()
	if err != nil {
		return domain.Holding{}, err
	}

	balance, err := parseTokenAmount(info.TokenAmount)
	if err != nil {
		return domain.Holding{}, err
	}

	return domain.Holding{
		OwnerAccountAddress: acc.Pubkey,
		AssetID:             info.Mint,
		Balance:             balance,
		DecimalPlaces:       info.TokenAmount.Decimals,
	}, nil
}

// parseTokenAmount prefers the exact ui string, then the raw base-unit amount, then the float.
func parseTokenAmount(amt solana.TokenAmount) (decimal.Decimal, error) {
	if amt.UIAmountString != "" {
		if v, err := decimal.NewFromString(amt.UIAmountString); err == nil {
			return v, nil
		}
	}
	if amt.Amount != "" {
		if raw, err := decimal.NewFromString(amt.Amount); err == nil {
			return raw.Shift(-int32(amt.Decimals)), nil
		}
	}
	if amt.UIAmount != nil {
		return decimal.NewFromFloat(*amt.UIAmount), nil
	}
	return decimal.Zero, fmt.Errorf("token amount has no usable value")
}

var _ Source = (*Discoverer)(nil)
