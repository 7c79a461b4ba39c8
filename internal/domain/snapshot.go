package domain

import "github.com/shopspring/decimal"

// HoldingSnapshot is a holding as observed by one discovery run.
type HoldingSnapshot struct {
	Identity            string
	Epoch               uint64
	OwnerAccountAddress string
	AssetID             string
	Name                string
	Symbol              string
	Balance             decimal.Decimal
	DecimalPlaces       uint8
	ObservedAt          int64 // unix ms
}

// NewHoldingSnapshot captures h for identity at the given discovery epoch.
func NewHoldingSnapshot(identity string, epoch uint64, h Holding, observedAt int64) *HoldingSnapshot {
	return &HoldingSnapshot{
		Identity:            identity,
		Epoch:               epoch,
		OwnerAccountAddress: h.OwnerAccountAddress,
		AssetID:             h.AssetID,
		Name:                h.Name,
		Symbol:              h.Symbol,
		Balance:             h.Balance,
		DecimalPlaces:       h.DecimalPlaces,
		ObservedAt:          observedAt,
	}
}
