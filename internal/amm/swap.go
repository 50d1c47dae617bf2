package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/elys-network/dlprewards/internal/types"
)

var (
	ErrZeroAmountSpecified = errors.New("amount specified is zero")
	ErrInvalidPriceLimit   = errors.New("sqrt price limit is on the wrong side of the current price")
	ErrSwapNotConverged    = errors.New("swap did not converge")
)

// maxSwapSteps bounds the tick walk. Each step consumes a word or crosses a tick.
const maxSwapSteps = 1 << 16

// SwapResult is the outcome of a swap replay. Amount0 and Amount1 are pool deltas.
type SwapResult struct {
	Amount0           *big.Int
	Amount1           *big.Int
	SqrtPriceX96After *big.Int
	TickAfter         int
	LiquidityAfter    *big.Int
	TicksCrossed      int
}

// AmountIn is the input the pool received.
func (r SwapResult) AmountIn(zeroForOne bool) *big.Int {
	if zeroForOne {
		return new(big.Int).Set(r.Amount0)
	}
	return new(big.Int).Set(r.Amount1)
}

// AmountOut is the output the pool paid, as a positive number.
func (r SwapResult) AmountOut(zeroForOne bool) *big.Int {
	if zeroForOne {
		return new(big.Int).Neg(r.Amount1)
	}
	return new(big.Int).Neg(r.Amount0)
}

// SimulateSwap replays a swap against pool starting from its live state, or from override when
// one is given. A nil limit leaves the swap unbounded.
func SimulateSwap(ctx context.Context, pool PoolReader, zeroForOne bool, amountSpecified, sqrtPriceLimitX96 *big.Int, override *types.PoolQuoteState) (SwapResult, error) {
	var start types.PoolQuoteState
	if override != nil {
		start = *override
	} else {
		live, err := quoteState(ctx, pool)
		if err != nil {
			return SwapResult{}, fmt.Errorf("failed to read pool state: %w", err)
		}
		start = live
	}
	return simulateSwap(ctx, pool, start, zeroForOne, amountSpecified, sqrtPriceLimitX96)
}

// UnboundedPriceLimit returns the limit the pool treats as no limit in the given direction.
func UnboundedPriceLimit(zeroForOne bool) *big.Int {
	if zeroForOne {
		return new(big.Int).Add(MinSqrtRatio, big1)
	}
	return new(big.Int).Sub(MaxSqrtRatio, big1)
}

func simulateSwap(ctx context.Context, pool PoolReader, start types.PoolQuoteState, zeroForOne bool, amountSpecified, sqrtPriceLimitX96 *big.Int) (SwapResult, error) {
	if amountSpecified == nil || amountSpecified.Sign() == 0 {
		return SwapResult{}, ErrZeroAmountSpecified
	}
	if start.SqrtPriceX96 == nil || start.SqrtPriceX96.Sign() <= 0 {
		return SwapResult{}, ErrInvalidSqrtPrice
	}
	if sqrtPriceLimitX96 == nil {
		sqrtPriceLimitX96 = UnboundedPriceLimit(zeroForOne)
	}
	if zeroForOne {
		if sqrtPriceLimitX96.Cmp(start.SqrtPriceX96) >= 0 || sqrtPriceLimitX96.Cmp(MinSqrtRatio) <= 0 {
			return SwapResult{}, fmt.Errorf("%w: limit %s, price %s", ErrInvalidPriceLimit, sqrtPriceLimitX96, start.SqrtPriceX96)
		}
	} else {
		if sqrtPriceLimitX96.Cmp(start.SqrtPriceX96) <= 0 || sqrtPriceLimitX96.Cmp(MaxSqrtRatio) >= 0 {
			return SwapResult{}, fmt.Errorf("%w: limit %s, price %s", ErrInvalidPriceLimit, sqrtPriceLimitX96, start.SqrtPriceX96)
		}
	}

	exactInput := amountSpecified.Sign() > 0
	fee := pool.Fee()
	tickSpacing := pool.TickSpacing()

	amountRemaining := new(big.Int).Set(amountSpecified)
	amountCalculated := new(big.Int)
	sqrtPriceX96 := new(big.Int).Set(start.SqrtPriceX96)
	tick := start.Tick
	liquidity := cloneBig(start.Liquidity)
	crossed := 0

	for steps := 0; amountRemaining.Sign() != 0 && sqrtPriceX96.Cmp(sqrtPriceLimitX96) != 0; steps++ {
		if steps >= maxSwapSteps {
			return SwapResult{}, ErrSwapNotConverged
		}
		if err := ctx.Err(); err != nil {
			return SwapResult{}, err
		}
		stepStartX96 := sqrtPriceX96

		tickNext, initialized, err := nextInitializedTickWithinOneWord(ctx, pool, tick, tickSpacing, zeroForOne)
		if err != nil {
			return SwapResult{}, fmt.Errorf("failed to read tick bitmap: %w", err)
		}
		if tickNext < MinTick {
			tickNext = MinTick
		} else if tickNext > MaxTick {
			tickNext = MaxTick
		}
		sqrtPriceNextX96, err := GetSqrtRatioAtTick(tickNext)
		if err != nil {
			return SwapResult{}, err
		}

		target := sqrtPriceNextX96
		if zeroForOne && sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) < 0 {
			target = sqrtPriceLimitX96
		} else if !zeroForOne && sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) > 0 {
			target = sqrtPriceLimitX96
		}

		step, err := computeSwapStep(sqrtPriceX96, target, liquidity, amountRemaining, fee)
		if err != nil {
			return SwapResult{}, err
		}
		sqrtPriceX96 = step.sqrtRatioNextX96

		if exactInput {
			amountRemaining.Sub(amountRemaining, step.amountIn)
			amountRemaining.Sub(amountRemaining, step.feeAmount)
			amountCalculated.Sub(amountCalculated, step.amountOut)
		} else {
			amountRemaining.Add(amountRemaining, step.amountOut)
			amountCalculated.Add(amountCalculated, step.amountIn)
			amountCalculated.Add(amountCalculated, step.feeAmount)
		}

		if sqrtPriceX96.Cmp(sqrtPriceNextX96) == 0 {
			if initialized {
				liquidityNet, err := pool.LiquidityNet(ctx, tickNext)
				if err != nil {
					return SwapResult{}, fmt.Errorf("failed to read tick %d: %w", tickNext, err)
				}
				if zeroForOne {
					liquidityNet = new(big.Int).Neg(liquidityNet)
				}
				liquidity = new(big.Int).Add(liquidity, liquidityNet)
				if liquidity.Sign() < 0 || liquidity.Cmp(MaxUint128) > 0 {
					return SwapResult{}, fmt.Errorf("%w: liquidity after crossing tick %d", ErrOverflow, tickNext)
				}
				crossed++
			}
			if zeroForOne {
				tick = tickNext - 1
			} else {
				tick = tickNext
			}
		} else if sqrtPriceX96.Cmp(stepStartX96) != 0 {
			tick, err = GetTickAtSqrtRatio(sqrtPriceX96)
			if err != nil {
				return SwapResult{}, err
			}
		}
	}

	specifiedUsed := new(big.Int).Sub(amountSpecified, amountRemaining)
	result := SwapResult{
		SqrtPriceX96After: sqrtPriceX96,
		TickAfter:         tick,
		LiquidityAfter:    liquidity,
		TicksCrossed:      crossed,
	}
	if zeroForOne == exactInput {
		result.Amount0 = specifiedUsed
		result.Amount1 = amountCalculated
	} else {
		result.Amount0 = amountCalculated
		result.Amount1 = specifiedUsed
	}
	return result, nil
}
