package utils

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestMulFloor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		amount int64
		frac   sdkmath.LegacyDec
		want   int64
	}{
		{name: "half", amount: 101, frac: sdkmath.LegacyNewDecWithPrec(5, 1), want: 50},
		{name: "full", amount: 777, frac: sdkmath.LegacyOneDec(), want: 777},
		{name: "zero fraction", amount: 777, frac: sdkmath.LegacyZeroDec(), want: 0},
		{name: "one third floors", amount: 1_000_000, frac: sdkmath.LegacyMustNewDecFromStr("0.333333333333333333"), want: 333_333},
		{name: "smallest fraction", amount: 999_999_999_999_999_999, frac: sdkmath.LegacyNewDecWithPrec(1, 18), want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MulFloor(sdkmath.NewInt(tt.amount), tt.frac)
			require.True(t, got.Equal(sdkmath.NewInt(tt.want)), "got %s", got)
		})
	}
}

func TestSaturatingSub(t *testing.T) {
	t.Parallel()
	require.True(t, SaturatingSub(sdkmath.NewInt(10), sdkmath.NewInt(3)).Equal(sdkmath.NewInt(7)))
	require.True(t, SaturatingSub(sdkmath.NewInt(3), sdkmath.NewInt(10)).IsZero())
	require.True(t, SaturatingSub(sdkmath.NewInt(3), sdkmath.NewInt(3)).IsZero())
}

func TestIntFromBig(t *testing.T) {
	t.Parallel()
	src := big.NewInt(42)
	got := IntFromBig(src)
	src.SetInt64(7)
	require.True(t, got.Equal(sdkmath.NewInt(42)))
	require.True(t, IntFromBig(nil).IsZero())
}

func TestFractions(t *testing.T) {
	t.Parallel()

	d, err := ParseFraction("0.05")
	require.NoError(t, err)
	require.True(t, d.Equal(sdkmath.LegacyNewDecWithPrec(5, 2)))

	_, err = ParseFraction("1.5")
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = ParseFraction("abc")
	require.ErrorIs(t, err, ErrConversionFailed)

	require.NoError(t, ValidateFraction("pct", sdkmath.LegacyOneDec()))
	require.ErrorIs(t, ValidateFraction("pct", sdkmath.LegacyNewDec(-1)), ErrOutOfRange)
	require.ErrorIs(t, ValidateFraction("pct", sdkmath.LegacyDec{}), ErrOutOfRange)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	v, err := ParseAmount("1000000000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000000", v.String())

	_, err = ParseAmount("-1")
	require.ErrorIs(t, err, ErrAmountNegative)
	_, err = ParseAmount("1.5")
	require.ErrorIs(t, err, ErrConversionFailed)
}

func TestSDKIntToFloat64(t *testing.T) {
	t.Parallel()

	f, err := SDKIntToFloat64(sdkmath.NewIntWithDecimal(15, 17), 18)
	require.NoError(t, err)
	require.InDelta(t, 1.5, f, 1e-12)

	_, err = SDKIntToFloat64(sdkmath.NewInt(1), 19)
	require.ErrorIs(t, err, ErrInvalidPrecision)
	_, err = SDKIntToFloat64(sdkmath.Int{}, 18)
	require.ErrorIs(t, err, ErrAmountNil)
	_, err = SDKIntToFloat64(sdkmath.NewInt(-1), 18)
	require.ErrorIs(t, err, ErrAmountNegative)
}
