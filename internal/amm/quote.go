package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/dlprewards/internal/utils"
)

var ErrTokenNotInPool = errors.New("token is not one of the pool's assets")

var precision18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// SwapQuote is a slippage-bounded exact-input quote. AmountIn is what the pool would consume,
// which may be less than requested when the price bound is reached first.
type SwapQuote struct {
	ZeroForOne         bool
	AmountRequested    *big.Int
	AmountIn           *big.Int
	AmountOut          *big.Int
	SpareIn            *big.Int
	SqrtPriceX96Before *big.Int
	SqrtPriceX96After  *big.Int
	SqrtPriceLimitX96  *big.Int
	TickAfter          int
}

// SlippageLimit returns sqrtPrice * sqrt(1 -/+ slippage), lowering the price for zeroForOne swaps
// and raising it otherwise, clamped into the pool's open price interval.
func SlippageLimit(sqrtPriceX96 *big.Int, zeroForOne bool, maxSlippage sdkmath.LegacyDec) *big.Int {
	slippage := maxSlippage.BigInt()
	factor := new(big.Int)
	if zeroForOne {
		factor.Sub(precision18, slippage)
	} else {
		factor.Add(precision18, slippage)
	}
	if factor.Sign() < 0 {
		factor.SetInt64(0)
	}
	factor.Mul(factor, precision18)
	factor.Sqrt(factor)

	limit := mulDiv(sqrtPriceX96, factor, precision18)
	if zeroForOne {
		floor := new(big.Int).Add(MinSqrtRatio, big1)
		if limit.Cmp(floor) < 0 {
			return floor
		}
		return limit
	}
	ceiling := new(big.Int).Sub(MaxSqrtRatio, big1)
	if limit.Cmp(ceiling) > 0 {
		return ceiling
	}
	return limit
}

// ZeroForOne reports the swap direction for selling tokenIn into pool.
func ZeroForOne(pool PoolReader, tokenIn common.Address) (bool, error) {
	switch tokenIn {
	case pool.Token0():
		return true, nil
	case pool.Token1():
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrTokenNotInPool, tokenIn.Hex())
	}
}

// QuoteSlippageExactInputSingle quotes selling amountIn of tokenIn with the price allowed to move
// by at most maxSlippage. Zero slippage or a zero amount quotes zero consumption.
func QuoteSlippageExactInputSingle(ctx context.Context, pool PoolReader, tokenIn common.Address, amountIn *big.Int, maxSlippage sdkmath.LegacyDec) (SwapQuote, error) {
	if err := utils.ValidateFraction("max slippage", maxSlippage); err != nil {
		return SwapQuote{}, err
	}
	if amountIn == nil || amountIn.Sign() < 0 {
		return SwapQuote{}, fmt.Errorf("%w: amount in", utils.ErrAmountNegative)
	}
	zeroForOne, err := ZeroForOne(pool, tokenIn)
	if err != nil {
		return SwapQuote{}, err
	}
	state, err := quoteState(ctx, pool)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("failed to read pool state: %w", err)
	}

	quote := SwapQuote{
		ZeroForOne:         zeroForOne,
		AmountRequested:    new(big.Int).Set(amountIn),
		AmountIn:           new(big.Int),
		AmountOut:          new(big.Int),
		SpareIn:            new(big.Int).Set(amountIn),
		SqrtPriceX96Before: state.SqrtPriceX96,
		SqrtPriceX96After:  state.SqrtPriceX96,
		TickAfter:          state.Tick,
	}
	if amountIn.Sign() == 0 || maxSlippage.IsZero() {
		return quote, nil
	}

	limit := SlippageLimit(state.SqrtPriceX96, zeroForOne, maxSlippage)
	quote.SqrtPriceLimitX96 = limit
	if (zeroForOne && limit.Cmp(state.SqrtPriceX96) >= 0) || (!zeroForOne && limit.Cmp(state.SqrtPriceX96) <= 0) {
		// slippage too small to move the price by a single unit
		return quote, nil
	}

	result, err := simulateSwap(ctx, pool, state, zeroForOne, amountIn, limit)
	if err != nil {
		return SwapQuote{}, err
	}
	quote.AmountIn = result.AmountIn(zeroForOne)
	quote.AmountOut = result.AmountOut(zeroForOne)
	quote.SpareIn = new(big.Int).Sub(amountIn, quote.AmountIn)
	quote.SqrtPriceX96After = result.SqrtPriceX96After
	quote.TickAfter = result.TickAfter
	return quote, nil
}
