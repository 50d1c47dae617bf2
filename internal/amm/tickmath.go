package amm

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	MinTick = -887272
	MaxTick = 887272
)

var (
	ErrTickOutOfRange      = errors.New("tick out of range")
	ErrSqrtRatioOutOfRange = errors.New("sqrt ratio out of range")
)

var (
	// MinSqrtRatio is GetSqrtRatioAtTick(MinTick).
	MinSqrtRatio = big.NewInt(4295128739)
	// MaxSqrtRatio is GetSqrtRatioAtTick(MaxTick).
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
)

// sqrt(1.0001^-(2^i)) in Q128.128, for i = 0..19.
var sqrtRatioFactors = mustHexList(
	"fffcb933bd6fad37aa2d162d1a594001",
	"fff97272373d413259a46990580e213a",
	"fff2e50f5f656932ef12357cf3c7fdcc",
	"ffe5caca7e10e4e61c3624eaa0941cd0",
	"ffcb9843d60f6159c9db58835c926644",
	"ff973b41fa98c081472e6896dfb254c0",
	"ff2ea16466c96a3843ec78b326b52861",
	"fe5dee046a99a2a811c461f1969c3053",
	"fcbe86c7900a88aedcffc83b479aa3a4",
	"f987a7253ac413176f2b074cf7815e54",
	"f3392b0822b70005940c7a398e4b70f3",
	"e7159475a2c29b7443b29c7fa6e889d9",
	"d097f3bdfd2022b8845ad8f792aa5825",
	"a9f746462d870fdf8a65dc1f90e061e5",
	"70d869a156d2a1b890bb3df62baf32f7",
	"31be135f97d08fd981231505542fcfa6",
	"9aa508b5b7a84e1c677de54f3e99bc9",
	"5d6af8dedb81196699c329225ee604",
	"2216e584f5fa1ea926041bedfe98",
	"48a170391f7dc42444e8fa2",
)

var uint32Mask = new(big.Int).Sub(new(big.Int).Lsh(big1, 32), big1)

func mustHexList(values ...string) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		n, ok := new(big.Int).SetString(v, 16)
		if !ok {
			panic("invalid hex constant " + v)
		}
		out[i] = n
	}
	return out
}

// GetSqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96, rounded exactly as the on-chain TickMath library.
func GetSqrtRatioAtTick(tick int) (*big.Int, error) {
	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}
	if absTick > MaxTick {
		return nil, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}

	var ratio *big.Int
	if absTick&0x1 != 0 {
		ratio = new(big.Int).Set(sqrtRatioFactors[0])
	} else {
		ratio = new(big.Int).Set(Q128)
	}
	for i := 1; i < len(sqrtRatioFactors); i++ {
		if absTick&(1<<i) != 0 {
			ratio.Mul(ratio, sqrtRatioFactors[i])
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Quo(MaxUint256, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so that GetTickAtSqrtRatio inverts this exactly.
	rounded := new(big.Int).Rsh(ratio, 32)
	if new(big.Int).And(ratio, uint32Mask).Sign() != 0 {
		rounded.Add(rounded, big1)
	}
	return rounded, nil
}

// GetTickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= sqrtPriceX96.
func GetTickAtSqrtRatio(sqrtPriceX96 *big.Int) (int, error) {
	if sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, fmt.Errorf("%w: %s", ErrSqrtRatioOutOfRange, sqrtPriceX96)
	}
	lo, hi := MinTick, MaxTick
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		ratio, err := GetSqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// MinUsableTick is the lowest tick a position can use at the given spacing.
func MinUsableTick(tickSpacing int) int {
	return -(MaxTick / tickSpacing) * tickSpacing
}

// MaxUsableTick is the highest tick a position can use at the given spacing.
func MaxUsableTick(tickSpacing int) int {
	return (MaxTick / tickSpacing) * tickSpacing
}
