/*
This file contains common helpers for 18-decimal fixed-point arithmetic on SDK math types.
Every helper documents its rounding direction; none of them round half-even.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrOutOfRange       = errors.New("fraction must be within [0, 1e18]")
)

// OneHundredPercent is 1e18, the fixed-point representation of 1.0 (and of 100%).
var OneHundredPercent = sdkmath.LegacyOneDec()

// Precision18 is the raw integer 1e18.
var Precision18 = sdkmath.NewIntWithDecimal(1, 18)

// IsFraction reports whether d lies in [0, 1e18].
func IsFraction(d sdkmath.LegacyDec) bool {
	return !d.IsNil() && !d.IsNegative() && d.LTE(OneHundredPercent)
}

// ValidateFraction returns ErrOutOfRange wrapped with the field name if d is not within [0, 1e18].
func ValidateFraction(field string, d sdkmath.LegacyDec) error {
	if !IsFraction(d) {
		return fmt.Errorf("%w: %s=%s", ErrOutOfRange, field, decString(d))
	}
	return nil
}

// MulFloor returns floor(amount * frac) where frac is an 18-decimal fraction.
func MulFloor(amount sdkmath.Int, frac sdkmath.LegacyDec) sdkmath.Int {
	if amount.IsZero() || frac.IsZero() {
		return sdkmath.ZeroInt()
	}
	return amount.Mul(sdkmath.NewIntFromBigInt(frac.BigInt())).Quo(Precision18)
}

// SaturatingSub returns a-b, or zero when b > a.
func SaturatingSub(a, b sdkmath.Int) sdkmath.Int {
	if b.GTE(a) {
		return sdkmath.ZeroInt()
	}
	return a.Sub(b)
}

// IntFromBig converts a non-nil big.Int to an SDK Int without aliasing it.
func IntFromBig(v *big.Int) sdkmath.Int {
	if v == nil {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(new(big.Int).Set(v))
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling.
// Only used for logs and metrics; never feed the result back into accounting.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}

	result := decAmount.Quo(factor)
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// ParseAmount parses a base-10 integer string into a non-negative SDK Int.
func ParseAmount(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q is not an integer", ErrConversionFailed, s)
	}
	if v.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	return v, nil
}

// ParseFraction parses a decimal string such as "0.05" into an 18-decimal fraction within [0, 1].
func ParseFraction(s string) (sdkmath.LegacyDec, error) {
	d, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if !IsFraction(d) {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s", ErrOutOfRange, s)
	}
	return d, nil
}

func decString(d sdkmath.LegacyDec) string {
	if d.IsNil() {
		return "<nil>"
	}
	return d.String()
}
