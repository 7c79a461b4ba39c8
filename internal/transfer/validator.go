// Package transfer validates, builds and orchestrates asset transfers.
package transfer

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"solana-transfer-desk/internal/address"
	"solana-transfer-desk/internal/domain"
)

var (
	// ErrInvalidAmount is returned for non-numeric or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrAmountPrecision is returned when an amount has more fractional digits than the asset supports.
	ErrAmountPrecision = errors.New("amount exceeds asset precision")
	// ErrAmountOverflow is returned when base units do not fit in 64 bits.
	ErrAmountOverflow = errors.New("amount overflows base units")
)

// Validation carries the flags shown next to the transfer inputs.
type Validation struct {
	AddressValid bool `json:"address_valid"`
	AmountValid  bool `json:"amount_valid"`
}

// OK reports whether submission may proceed.
func (v Validation) OK() bool {
	return v.AddressValid && v.AmountValid
}

// ParseAmount parses a user entered amount. Non-numeric and negative input is invalid.
func ParseAmount(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	return d, nil
}

// ValidateAmount reports false iff requested exceeds available.
func ValidateAmount(requested, available decimal.Decimal) bool {
	return !requested.GreaterThan(available)
}

// Validate runs the client-side checks for req. The amount must fit the balance
// and convert to whole base units of the asset.
func Validate(req domain.TransferRequest) Validation {
	_, err := ToBaseUnits(req.Amount, req.Holding.DecimalPlaces)
	return Validation{
		AddressValid: address.Validate(req.Recipient),
		AmountValid:  err == nil && ValidateAmount(req.Amount, req.Holding.Balance),
	}
}

// ToBaseUnits converts a human scaled amount into base units (amount * 10^decimals).
// Amounts that leave a fractional remainder are rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if amount.IsNegative() {
		return 0, ErrInvalidAmount
	}
	scaled := amount.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s with %d decimals", ErrAmountPrecision, amount, decimals)
	}
	units := scaled.BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflow, amount)
	}
	return units.Uint64(), nil
}

// FromBaseUnits converts base units back into a human scaled amount.
func FromBaseUnits(units uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals))
}
