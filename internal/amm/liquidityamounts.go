package amm

import "math/big"

// GetLiquidityForAmount0 returns the liquidity received for amount0 across [sqrtRatioA, sqrtRatioB].
func GetLiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0 *big.Int) (*big.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) == 0 {
		return new(big.Int), nil
	}
	intermediate := mulDiv(sqrtRatioAX96, sqrtRatioBX96, Q96)
	liquidity := mulDiv(amount0, intermediate, new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96))
	return toUint128(liquidity)
}

// GetLiquidityForAmount1 returns the liquidity received for amount1 across [sqrtRatioA, sqrtRatioB].
func GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1 *big.Int) (*big.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) == 0 {
		return new(big.Int), nil
	}
	liquidity := mulDiv(amount1, Q96, new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96))
	return toUint128(liquidity)
}

// GetLiquidityForAmounts returns the maximum liquidity the two amounts can back at the current price.
func GetLiquidityForAmounts(sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 *big.Int) (*big.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	switch {
	case sqrtRatioX96.Cmp(sqrtRatioAX96) <= 0:
		return GetLiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0)
	case sqrtRatioX96.Cmp(sqrtRatioBX96) < 0:
		liquidity0, err := GetLiquidityForAmount0(sqrtRatioX96, sqrtRatioBX96, amount0)
		if err != nil {
			return nil, err
		}
		liquidity1, err := GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioX96, amount1)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Set(minBig(liquidity0, liquidity1)), nil
	default:
		return GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1)
	}
}

// amountsForLiquidity returns the token amounts a position owes for liquidity, with the range region
// decided by the pool tick the way a mint does.
func amountsForLiquidity(sqrtPriceX96 *big.Int, tick, tickLower, tickUpper int, liquidity *big.Int, roundUp bool) (*big.Int, *big.Int, error) {
	sqrtLower, err := GetSqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtUpper, err := GetSqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, err
	}

	amount0, amount1 := new(big.Int), new(big.Int)
	switch {
	case tick < tickLower:
		amount0 = getAmount0Delta(sqrtLower, sqrtUpper, liquidity, roundUp)
	case tick < tickUpper:
		amount0 = getAmount0Delta(sqrtPriceX96, sqrtUpper, liquidity, roundUp)
		amount1 = getAmount1Delta(sqrtLower, sqrtPriceX96, liquidity, roundUp)
	default:
		amount1 = getAmount1Delta(sqrtLower, sqrtUpper, liquidity, roundUp)
	}
	return amount0, amount1, nil
}

func toUint128(v *big.Int) (*big.Int, error) {
	if v.Sign() < 0 || v.Cmp(MaxUint128) > 0 {
		return nil, ErrLiquidityOverflows
	}
	return v, nil
}
