package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeAssetID is the sentinel asset id of the synthesized native SOL holding.
const NativeAssetID = "SOLANA_MINT_ADDRESS"

// NativeDecimals is the lamport scale of the native coin (1 SOL = 10^9 lamports).
const NativeDecimals uint8 = 9

// HoldingKey identifies a holding inside one holdings list.
type HoldingKey struct {
	OwnerAccountAddress string
	AssetID             string
}

// String renders the key as "owner:asset" for logs and HTTP routes.
func (k HoldingKey) String() string {
	return k.OwnerAccountAddress + ":" + k.AssetID
}

// Holding is one asset the connected identity possesses.
// For token holdings OwnerAccountAddress is the token account, not the identity.
type Holding struct {
	OwnerAccountAddress string
	AssetID             string
	Balance             decimal.Decimal // human scaled
	DecimalPlaces       uint8
	Name                string // optional
	Symbol              string // optional
}

// Key returns the holding's stable selection key.
func (h Holding) Key() HoldingKey {
	return HoldingKey{OwnerAccountAddress: h.OwnerAccountAddress, AssetID: h.AssetID}
}

// IsNative reports whether the holding is the synthesized native coin.
func (h Holding) IsNative() bool {
	return h.AssetID == NativeAssetID
}

// Label returns the display name, falling back to a shortened mint.
func (h Holding) Label() string {
	if h.Name != "" {
		return h.Name
	}
	mint := h.AssetID
	if len(mint) > 10 {
		mint = mint[:10]
	}
	return fmt.Sprintf("Token-%s", mint)
}

// NewNativeHolding synthesizes the native SOL holding for identity from a lamport balance.
func NewNativeHolding(identity string, lamports uint64) Holding {
	return Holding{
		OwnerAccountAddress: identity,
		AssetID:             NativeAssetID,
		Balance:             decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -int32(NativeDecimals)),
		DecimalPlaces:       NativeDecimals,
		Name:                "Solana",
		Symbol:              "SOL",
	}
}
