package amm

import (
	"context"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/dlprewards/internal/utils"
)

func TestSlippageLimit(t *testing.T) {
	t.Parallel()

	ratioSquared := func(limit, price *big.Int) float64 {
		r := new(big.Float).Quo(new(big.Float).SetInt(limit), new(big.Float).SetInt(price))
		r.Mul(r, r)
		f, _ := r.Float64()
		return f
	}

	t.Run("selling token0 lowers the price", func(t *testing.T) {
		t.Parallel()
		limit := SlippageLimit(Q96, true, sdkmath.LegacyNewDecWithPrec(1, 2))
		require.Equal(t, -1, limit.Cmp(Q96))
		require.InDelta(t, 0.99, ratioSquared(limit, Q96), 1e-12)
	})

	t.Run("selling token1 raises the price", func(t *testing.T) {
		t.Parallel()
		limit := SlippageLimit(Q96, false, sdkmath.LegacyNewDecWithPrec(5, 2))
		require.Equal(t, 1, limit.Cmp(Q96))
		require.InDelta(t, 1.05, ratioSquared(limit, Q96), 1e-12)
	})

	t.Run("clamped into the open interval", func(t *testing.T) {
		t.Parallel()
		requireBigEqual(t, new(big.Int).Add(MinSqrtRatio, big1), SlippageLimit(Q96, true, sdkmath.LegacyOneDec()))

		nearMax := new(big.Int).Sub(MaxSqrtRatio, big.NewInt(10))
		requireBigEqual(t, new(big.Int).Sub(MaxSqrtRatio, big1), SlippageLimit(nearMax, false, sdkmath.LegacyOneDec()))
	})
}

func TestQuoteSlippageExactInputSingle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, 3000, 60)
	env.fullRange(t, e18(1_000_000))

	t.Run("zero slippage consumes nothing", func(t *testing.T) {
		t.Parallel()
		quote, err := QuoteSlippageExactInputSingle(ctx, env.pool, testToken0, e18(10), sdkmath.LegacyZeroDec())
		require.NoError(t, err)
		require.Zero(t, quote.AmountIn.Sign())
		require.Zero(t, quote.AmountOut.Sign())
		requireBigEqual(t, e18(10), quote.SpareIn)
	})

	t.Run("small trade is fully consumed", func(t *testing.T) {
		t.Parallel()
		quote, err := QuoteSlippageExactInputSingle(ctx, env.pool, testToken1, e18(10), sdkmath.LegacyNewDecWithPrec(1, 2))
		require.NoError(t, err)
		require.False(t, quote.ZeroForOne)
		requireBigEqual(t, e18(10), quote.AmountIn)
		require.Zero(t, quote.SpareIn.Sign())
		require.Positive(t, quote.AmountOut.Sign())
	})

	t.Run("large trade stops at the bound", func(t *testing.T) {
		t.Parallel()
		quote, err := QuoteSlippageExactInputSingle(ctx, env.pool, testToken0, e18(500_000), sdkmath.LegacyNewDecWithPrec(2, 2))
		require.NoError(t, err)
		require.True(t, quote.ZeroForOne)
		requireBigEqual(t, quote.SqrtPriceLimitX96, quote.SqrtPriceX96After)
		require.Positive(t, quote.SpareIn.Sign())
		requireBigEqual(t, e18(500_000), new(big.Int).Add(quote.AmountIn, quote.SpareIn))
	})

	t.Run("unknown token", func(t *testing.T) {
		t.Parallel()
		_, err := QuoteSlippageExactInputSingle(ctx, env.pool, common.HexToAddress("0x01"), e18(1), sdkmath.LegacyNewDecWithPrec(1, 2))
		require.ErrorIs(t, err, ErrTokenNotInPool)
	})

	t.Run("slippage above one hundred percent", func(t *testing.T) {
		t.Parallel()
		_, err := QuoteSlippageExactInputSingle(ctx, env.pool, testToken0, e18(1), sdkmath.LegacyNewDec(2))
		require.ErrorIs(t, err, utils.ErrOutOfRange)
	})
}
