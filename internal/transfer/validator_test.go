package transfer

import (
	"fmt"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-transfer-desk/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		requested, available string
		want                 bool
	}{
		{"5", "3", false},
		{"3", "3", true},
		{"0", "3", true},
		{"2.999999999", "3", true},
		{"3.000000001", "3", false},
		{"0.1", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.requested+"/"+tt.available, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateAmount(dec(tt.requested), dec(tt.available)))
		})
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount(" 40.5 ")
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("40.5")))

	got, err = ParseAmount("0")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	for _, bad := range []string{"", "abc", "1,5", "-1", "1e", "NaN"} {
		_, err := ParseAmount(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", bad)
	}
}

func TestValidate(t *testing.T) {
	recipient := solanago.NewWallet().PublicKey().String()
	holding := domain.Holding{AssetID: domain.NativeAssetID, Balance: dec("2.5"), DecimalPlaces: 9}

	tests := []struct {
		name      string
		recipient string
		amount    string
		want      Validation
	}{
		{"valid", recipient, "1", Validation{AddressValid: true, AmountValid: true}},
		{"exceeds balance", recipient, "10", Validation{AddressValid: true, AmountValid: false}},
		{"bad address", "not-an-address", "1", Validation{AddressValid: false, AmountValid: true}},
		{"negative", recipient, "-1", Validation{AddressValid: true, AmountValid: false}},
		{"smallest unit", recipient, "0.000000001", Validation{AddressValid: true, AmountValid: true}},
		{"below smallest unit", recipient, "0.0000000001", Validation{AddressValid: true, AmountValid: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(domain.TransferRequest{Holding: holding, Recipient: tt.recipient, Amount: dec(tt.amount)})
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.want.AddressValid && tt.want.AmountValid, v.OK())
		})
	}
}

func TestToBaseUnits(t *testing.T) {
	units, err := ToBaseUnits(dec("1.0"), 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), units)

	units, err = ToBaseUnits(dec("40"), 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(40_000_000), units)

	_, err = ToBaseUnits(dec("0.0000001"), 6)
	assert.ErrorIs(t, err, ErrAmountPrecision)

	_, err = ToBaseUnits(dec("18446744073709551616"), 0)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = ToBaseUnits(dec("-1"), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBaseUnitsRoundTrip(t *testing.T) {
	samples := []uint64{0, 1, 7, 999, 123456789, 1_000_000_000_000, 18446744073709551615}
	for decimals := uint8(0); decimals <= 9; decimals++ {
		for _, units := range samples {
			t.Run(fmt.Sprintf("%d/%d", decimals, units), func(t *testing.T) {
				display := FromBaseUnits(units, decimals)
				back, err := ToBaseUnits(display, decimals)
				require.NoError(t, err)
				assert.Equal(t, units, back)
			})
		}
	}
}
