package amm

import (
	"errors"
	"math/big"
)

var (
	ErrZeroLiquidity      = errors.New("liquidity is zero")
	ErrPriceUnderflow     = errors.New("next sqrt price underflows")
	ErrInvalidSqrtPrice   = errors.New("sqrt price must be positive")
	ErrLiquidityOverflows = errors.New("liquidity exceeds uint128")
)

// getNextSqrtPriceFromAmount0RoundingUp moves the price by an amount of token0, rounding the result up.
func getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPX96), nil
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount, sqrtPX96)

	if add {
		if fitsUint256(product) {
			denominator := new(big.Int).Add(numerator1, product)
			if fitsUint256(denominator) {
				return mulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
			}
		}
		// amount*price overflowed 256 bits on chain; the fallback loses precision the same way.
		denominator := new(big.Int).Quo(numerator1, sqrtPX96)
		denominator.Add(denominator, amount)
		return divRoundingUp(numerator1, denominator), nil
	}

	if !fitsUint256(product) || numerator1.Cmp(product) <= 0 {
		return nil, ErrPriceUnderflow
	}
	denominator := new(big.Int).Sub(numerator1, product)
	next := mulDivRoundingUp(numerator1, sqrtPX96, denominator)
	if !fitsUint160(next) {
		return nil, ErrOverflow
	}
	return next, nil
}

// getNextSqrtPriceFromAmount1RoundingDown moves the price by an amount of token1, rounding the result down.
func getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if add {
		quotient := mulDiv(amount, Q96, liquidity)
		next := new(big.Int).Add(sqrtPX96, quotient)
		if !fitsUint160(next) {
			return nil, ErrOverflow
		}
		return next, nil
	}
	quotient := mulDivRoundingUp(amount, Q96, liquidity)
	if sqrtPX96.Cmp(quotient) <= 0 {
		return nil, ErrPriceUnderflow
	}
	return new(big.Int).Sub(sqrtPX96, quotient), nil
}

func getNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPX96.Sign() <= 0 {
		return nil, ErrInvalidSqrtPrice
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}
	if zeroForOne {
		return getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

func getNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPX96.Sign() <= 0 {
		return nil, ErrInvalidSqrtPrice
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}
	if zeroForOne {
		return getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

// getAmount0Delta returns the token0 amount between two prices for the given liquidity.
func getAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Sign() <= 0 {
		panic(ErrInvalidSqrtPrice)
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return divRoundingUp(mulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96), sqrtRatioAX96)
	}
	return new(big.Int).Quo(mulDiv(numerator1, numerator2, sqrtRatioBX96), sqrtRatioAX96)
}

// getAmount1Delta returns the token1 amount between two prices for the given liquidity.
func getAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96)
	}
	return mulDiv(liquidity, diff, Q96)
}
