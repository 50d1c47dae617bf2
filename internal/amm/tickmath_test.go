package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSqrtRatioAtTick(t *testing.T) {
	t.Parallel()

	t.Run("bounds", func(t *testing.T) {
		t.Parallel()
		minRatio, err := GetSqrtRatioAtTick(MinTick)
		require.NoError(t, err)
		requireBigEqual(t, MinSqrtRatio, minRatio)

		maxRatio, err := GetSqrtRatioAtTick(MaxTick)
		require.NoError(t, err)
		requireBigEqual(t, MaxSqrtRatio, maxRatio)
	})

	t.Run("tick zero is one", func(t *testing.T) {
		t.Parallel()
		ratio, err := GetSqrtRatioAtTick(0)
		require.NoError(t, err)
		requireBigEqual(t, Q96, ratio)
	})

	t.Run("out of range", func(t *testing.T) {
		t.Parallel()
		_, err := GetSqrtRatioAtTick(MaxTick + 1)
		require.ErrorIs(t, err, ErrTickOutOfRange)
		_, err = GetSqrtRatioAtTick(MinTick - 1)
		require.ErrorIs(t, err, ErrTickOutOfRange)
	})

	t.Run("strictly increasing", func(t *testing.T) {
		t.Parallel()
		prev, err := GetSqrtRatioAtTick(-50)
		require.NoError(t, err)
		for tick := -49; tick <= 50; tick++ {
			ratio, err := GetSqrtRatioAtTick(tick)
			require.NoError(t, err)
			require.Equal(t, 1, ratio.Cmp(prev), "tick %d", tick)
			prev = ratio
		}
	})

	t.Run("close to 1.0001 per tick", func(t *testing.T) {
		t.Parallel()
		ratio, err := GetSqrtRatioAtTick(20000)
		require.NoError(t, err)
		price := new(big.Float).Quo(new(big.Float).SetInt(ratio), new(big.Float).SetInt(Q96))
		price.Mul(price, price)
		got, _ := price.Float64()
		// 1.0001^20000
		require.InDelta(t, 7.388317, got, 1e-5)
	})
}

func TestGetTickAtSqrtRatio(t *testing.T) {
	t.Parallel()

	t.Run("inverts tick to ratio", func(t *testing.T) {
		t.Parallel()
		for _, tick := range []int{MinTick, MinTick + 1, -500000, -60, -1, 0, 1, 60, 12345, 500000, MaxTick - 1} {
			ratio, err := GetSqrtRatioAtTick(tick)
			require.NoError(t, err)
			got, err := GetTickAtSqrtRatio(ratio)
			require.NoError(t, err)
			require.Equal(t, tick, got)

			// one unit above the tick's ratio still maps to the same tick
			got, err = GetTickAtSqrtRatio(new(big.Int).Add(ratio, big1))
			require.NoError(t, err)
			require.Equal(t, tick, got)
		}
	})

	t.Run("just below max", func(t *testing.T) {
		t.Parallel()
		got, err := GetTickAtSqrtRatio(new(big.Int).Sub(MaxSqrtRatio, big1))
		require.NoError(t, err)
		require.Equal(t, MaxTick-1, got)
	})

	t.Run("rejects out of range", func(t *testing.T) {
		t.Parallel()
		_, err := GetTickAtSqrtRatio(new(big.Int).Sub(MinSqrtRatio, big1))
		require.ErrorIs(t, err, ErrSqrtRatioOutOfRange)
		_, err = GetTickAtSqrtRatio(MaxSqrtRatio)
		require.ErrorIs(t, err, ErrSqrtRatioOutOfRange)
	})
}

func TestUsableTicks(t *testing.T) {
	t.Parallel()
	require.Equal(t, -887220, MinUsableTick(60))
	require.Equal(t, 887220, MaxUsableTick(60))
	require.Equal(t, -887270, MinUsableTick(10))
}

func TestFullMath(t *testing.T) {
	t.Parallel()

	requireBigEqual(t, big.NewInt(3), mulDiv(big.NewInt(7), big.NewInt(2), big.NewInt(4)))
	requireBigEqual(t, big.NewInt(4), mulDivRoundingUp(big.NewInt(7), big.NewInt(2), big.NewInt(4)))
	requireBigEqual(t, big.NewInt(4), mulDivRoundingUp(big.NewInt(8), big.NewInt(2), big.NewInt(4)))

	// the product exceeds 256 bits but the quotient fits
	requireBigEqual(t, MaxUint256, mulDiv(MaxUint256, MaxUint256, MaxUint256))

	// 0.5 * Q128 * Q128 / (1.5 * Q128) without phantom overflow
	half := new(big.Int).Quo(new(big.Int).Mul(Q128, big.NewInt(50)), big.NewInt(100))
	oneAndHalf := new(big.Int).Quo(new(big.Int).Mul(Q128, big.NewInt(150)), big.NewInt(100))
	third := new(big.Int).Quo(Q128, big.NewInt(3))
	requireBigEqual(t, third, mulDiv(Q128, half, oneAndHalf))
	requireBigEqual(t, new(big.Int).Add(third, big1), mulDivRoundingUp(Q128, half, oneAndHalf))

	require.Panics(t, func() { mulDiv(big1, big1, big0) })
}
