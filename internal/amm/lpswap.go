package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/dlprewards/internal/types"
	"github.com/elys-network/dlprewards/internal/utils"
)

var ErrLiquidityFit = errors.New("could not fit liquidity into available amounts")

const (
	// floatPrec is the mantissa precision of the closed-form estimate.
	floatPrec = 256
	// maxFitSteps bounds how far the rounded-up deposit may exceed the floored liquidity.
	maxFitSteps = 64
)

// LpSwapQuote describes how to turn a single-asset amount into liquidity for a position.
// AmountSwapIn is the input the pool consumes, so executing the swap with it and the same limit
// reproduces the quote exactly.
type LpSwapQuote struct {
	ZeroForOne        bool
	AmountSwapIn      *big.Int
	AmountSwapOut     *big.Int
	LiquidityDelta    *big.Int
	SpareIn           *big.Int
	SpareOut          *big.Int
	Amount0Deposit    *big.Int
	Amount1Deposit    *big.Int
	SqrtPriceLimitX96 *big.Int
	SqrtPriceX96After *big.Int
	TickAfter         int
}

type lpCandidate struct {
	requested *big.Int
	used      *big.Int
	out       *big.Int
	sqrtAfter *big.Int
	tickAfter int
	liquidity *big.Int
	amount0   *big.Int
	amount1   *big.Int
	available [2]*big.Int
	needMore  bool
}

// QuoteLpSwap finds the amount of tokenIn to swap so that what is left plus the swap output
// deposits into the position's range with the most liquidity. The swap is bounded by maxSlippage.
func QuoteLpSwap(ctx context.Context, pool PoolReader, position types.LiquidityPosition, tokenIn common.Address, amountIn *big.Int, maxSlippage sdkmath.LegacyDec) (LpSwapQuote, error) {
	if err := utils.ValidateFraction("max slippage", maxSlippage); err != nil {
		return LpSwapQuote{}, err
	}
	if amountIn == nil || amountIn.Sign() < 0 {
		return LpSwapQuote{}, fmt.Errorf("%w: amount in", utils.ErrAmountNegative)
	}
	if position.Token0 != pool.Token0() || position.Token1 != pool.Token1() {
		return LpSwapQuote{}, fmt.Errorf("%w: position %d", ErrPositionPoolMismatch, position.ID)
	}
	if err := checkTicks(position.TickLower, position.TickUpper, pool.TickSpacing()); err != nil {
		return LpSwapQuote{}, err
	}
	zeroForOne, err := ZeroForOne(pool, tokenIn)
	if err != nil {
		return LpSwapQuote{}, err
	}

	reader := newCachedReader(pool)
	start, err := quoteState(ctx, reader)
	if err != nil {
		return LpSwapQuote{}, fmt.Errorf("failed to read pool state: %w", err)
	}
	sqrtLower, err := GetSqrtRatioAtTick(position.TickLower)
	if err != nil {
		return LpSwapQuote{}, err
	}
	sqrtUpper, err := GetSqrtRatioAtTick(position.TickUpper)
	if err != nil {
		return LpSwapQuote{}, err
	}

	var limit *big.Int
	if !maxSlippage.IsZero() {
		limit = SlippageLimit(start.SqrtPriceX96, zeroForOne, maxSlippage)
		if (zeroForOne && limit.Cmp(start.SqrtPriceX96) >= 0) || (!zeroForOne && limit.Cmp(start.SqrtPriceX96) <= 0) {
			limit = nil
		}
	}

	eval := func(requested *big.Int) (lpCandidate, error) {
		c := lpCandidate{
			requested: requested,
			used:      new(big.Int),
			out:       new(big.Int),
			sqrtAfter: start.SqrtPriceX96,
			tickAfter: start.Tick,
		}
		if requested.Sign() > 0 && limit != nil {
			result, err := simulateSwap(ctx, reader, start, zeroForOne, requested, limit)
			if err != nil {
				return lpCandidate{}, err
			}
			c.used = result.AmountIn(zeroForOne)
			c.out = result.AmountOut(zeroForOne)
			c.sqrtAfter = result.SqrtPriceX96After
			c.tickAfter = result.TickAfter
		}
		remaining := new(big.Int).Sub(amountIn, c.used)
		if zeroForOne {
			c.available = [2]*big.Int{remaining, c.out}
		} else {
			c.available = [2]*big.Int{c.out, remaining}
		}
		if err := fitLiquidity(&c, sqrtLower, sqrtUpper, position.TickLower, position.TickUpper); err != nil {
			return lpCandidate{}, err
		}
		needMore, err := needsMoreSwap(c, sqrtLower, sqrtUpper, zeroForOne)
		if err != nil {
			return lpCandidate{}, err
		}
		c.needMore = needMore
		return c, nil
	}

	best, err := eval(new(big.Int))
	if err != nil {
		return LpSwapQuote{}, err
	}
	if best.needMore && limit != nil && amountIn.Sign() > 0 {
		lo, hi := new(big.Int), new(big.Int).Set(amountIn)
		candidates := make([]lpCandidate, 0, 3)

		top, err := eval(hi)
		if err != nil {
			return LpSwapQuote{}, err
		}
		if top.needMore {
			candidates = append(candidates, top)
		} else {
			loC, hiC := best, top
			if position.TickLower == MinUsableTick(pool.TickSpacing()) && position.TickUpper == MaxUsableTick(pool.TickSpacing()) {
				if estimate := fullRangeSwapEstimate(start.SqrtPriceX96, start.Liquidity, amountIn, pool.Fee(), zeroForOne); estimate != nil &&
					estimate.Cmp(lo) > 0 && estimate.Cmp(hi) < 0 {
					c, err := eval(estimate)
					if err != nil {
						return LpSwapQuote{}, err
					}
					if c.needMore {
						lo, loC = estimate, c
					} else {
						hi, hiC = estimate, c
					}
				}
			}

			for new(big.Int).Sub(hi, lo).Cmp(big1) > 0 {
				mid := new(big.Int).Add(lo, hi)
				mid.Rsh(mid, 1)
				c, err := eval(mid)
				if err != nil {
					return LpSwapQuote{}, err
				}
				if c.needMore {
					lo, loC = mid, c
				} else {
					hi, hiC = mid, c
				}
			}
			candidates = append(candidates, loC, hiC)
		}

		for _, c := range candidates {
			if c.liquidity.Cmp(best.liquidity) > 0 {
				best = c
			}
		}
		if best.used.Cmp(best.requested) != 0 && best.used.Sign() > 0 {
			// re-quote with the consumed amount so execution with it matches exactly
			if best, err = eval(best.used); err != nil {
				return LpSwapQuote{}, err
			}
		}
	}

	quote := LpSwapQuote{
		ZeroForOne:        zeroForOne,
		AmountSwapIn:      best.used,
		AmountSwapOut:     best.out,
		LiquidityDelta:    best.liquidity,
		Amount0Deposit:    best.amount0,
		Amount1Deposit:    best.amount1,
		SqrtPriceLimitX96: limit,
		SqrtPriceX96After: best.sqrtAfter,
		TickAfter:         best.tickAfter,
	}
	if zeroForOne {
		quote.SpareIn = new(big.Int).Sub(best.available[0], best.amount0)
		quote.SpareOut = new(big.Int).Sub(best.available[1], best.amount1)
	} else {
		quote.SpareIn = new(big.Int).Sub(best.available[1], best.amount1)
		quote.SpareOut = new(big.Int).Sub(best.available[0], best.amount0)
	}
	return quote, nil
}

// fitLiquidity computes the floored liquidity for the candidate's amounts and lowers it until the
// rounded-up amounts a mint would charge fit in what is available.
func fitLiquidity(c *lpCandidate, sqrtLower, sqrtUpper *big.Int, tickLower, tickUpper int) error {
	liquidity, err := GetLiquidityForAmounts(c.sqrtAfter, sqrtLower, sqrtUpper, c.available[0], c.available[1])
	if err != nil {
		return err
	}
	for i := 0; ; i++ {
		amount0, amount1, err := amountsForLiquidity(c.sqrtAfter, c.tickAfter, tickLower, tickUpper, liquidity, true)
		if err != nil {
			return err
		}
		if amount0.Cmp(c.available[0]) <= 0 && amount1.Cmp(c.available[1]) <= 0 {
			c.liquidity, c.amount0, c.amount1 = liquidity, amount0, amount1
			return nil
		}
		if i >= maxFitSteps || liquidity.Sign() == 0 {
			return fmt.Errorf("%w: liquidity %s", ErrLiquidityFit, liquidity)
		}
		liquidity = new(big.Int).Sub(liquidity, big1)
	}
}

// needsMoreSwap reports whether the input side could back more liquidity than the output side,
// meaning a larger swap would balance the deposit better.
func needsMoreSwap(c lpCandidate, sqrtLower, sqrtUpper *big.Int, zeroForOne bool) (bool, error) {
	var liquidity0, liquidity1 *big.Int
	var err error
	switch {
	case c.sqrtAfter.Cmp(sqrtLower) <= 0:
		if liquidity0, err = GetLiquidityForAmount0(sqrtLower, sqrtUpper, c.available[0]); err != nil {
			return false, err
		}
	case c.sqrtAfter.Cmp(sqrtUpper) < 0:
		if liquidity0, err = GetLiquidityForAmount0(c.sqrtAfter, sqrtUpper, c.available[0]); err != nil {
			return false, err
		}
		if liquidity1, err = GetLiquidityForAmount1(sqrtLower, c.sqrtAfter, c.available[1]); err != nil {
			return false, err
		}
	default:
		if liquidity1, err = GetLiquidityForAmount1(sqrtLower, sqrtUpper, c.available[1]); err != nil {
			return false, err
		}
	}

	liquidityIn, liquidityOut := liquidity1, liquidity0
	if zeroForOne {
		liquidityIn, liquidityOut = liquidity0, liquidity1
	}
	switch {
	case liquidityOut == nil:
		return false, nil
	case liquidityIn == nil:
		return true, nil
	default:
		return liquidityIn.Cmp(liquidityOut) > 0, nil
	}
}

// fullRangeSwapEstimate solves g^2/(L*p)*s^2 + (1+g)*s - A = 0 for selling token1, or the same with
// p in the numerator for selling token0, where p is the sqrt price and g the fee complement. The
// root balances price*token0 == token1 after an in-range swap. Returns nil without liquidity.
func fullRangeSwapEstimate(sqrtPriceX96, liquidity, amountIn *big.Int, feePips uint32, zeroForOne bool) *big.Int {
	if liquidity == nil || liquidity.Sign() == 0 || amountIn.Sign() == 0 {
		return nil
	}
	newFloat := func() *big.Float { return new(big.Float).SetPrec(floatPrec) }

	g := newFloat().Quo(
		newFloat().SetInt64(int64(FeeDenominator-int(feePips))),
		newFloat().SetInt64(FeeDenominator),
	)
	sqrtPrice := newFloat().Quo(newFloat().SetInt(sqrtPriceX96), newFloat().SetInt(Q96))
	l := newFloat().SetInt(liquidity)
	amount := newFloat().SetInt(amountIn)

	a := newFloat().Mul(g, g)
	if zeroForOne {
		a.Mul(a, sqrtPrice)
		a.Quo(a, l)
	} else {
		a.Quo(a, newFloat().Mul(l, sqrtPrice))
	}
	b := newFloat().Add(newFloat().SetInt64(1), g)

	// s = (sqrt(b^2 + 4aA) - b) / 2a
	disc := newFloat().Mul(b, b)
	disc.Add(disc, newFloat().Mul(newFloat().Mul(newFloat().SetInt64(4), a), amount))
	root := newFloat().Sqrt(disc)
	root.Sub(root, b)
	root.Quo(root, newFloat().Mul(newFloat().SetInt64(2), a))

	if root.Sign() <= 0 || root.IsInf() {
		return nil
	}
	estimate, _ := root.Int(nil)
	if estimate.Cmp(amountIn) > 0 {
		estimate.Set(amountIn)
	}
	return estimate
}

// cachedReader memoizes bitmap words and tick data for the duration of one quote.
type cachedReader struct {
	PoolReader
	words map[int16]*big.Int
	nets  map[int]*big.Int
}

func newCachedReader(pool PoolReader) *cachedReader {
	return &cachedReader{
		PoolReader: pool,
		words:      make(map[int16]*big.Int),
		nets:       make(map[int]*big.Int),
	}
}

func (r *cachedReader) TickBitmap(ctx context.Context, wordPos int16) (*big.Int, error) {
	if word, ok := r.words[wordPos]; ok {
		return word, nil
	}
	word, err := r.PoolReader.TickBitmap(ctx, wordPos)
	if err != nil {
		return nil, err
	}
	r.words[wordPos] = word
	return word, nil
}

func (r *cachedReader) LiquidityNet(ctx context.Context, tick int) (*big.Int, error) {
	if net, ok := r.nets[tick]; ok {
		return net, nil
	}
	net, err := r.PoolReader.LiquidityNet(ctx, tick)
	if err != nil {
		return nil, err
	}
	r.nets[tick] = net
	return net, nil
}
