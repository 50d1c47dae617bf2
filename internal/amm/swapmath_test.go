package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// Reference values below are the v3-core SwapMath and SqrtPriceMath vectors.
var (
	sqrtPrice1To1     = new(big.Int).Set(Q96)
	sqrtPrice101To100 = mustBig("79623317895830914510639640423")
	sqrtPrice121To100 = mustBig("87150978765690771352898345369")
	sqrtPrice10To1    = mustBig("250541448375047931186413801569")
	sqrtPrice100To1   = mustBig("792281625142643375935439503360")
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid integer " + s)
	}
	return v
}

func TestComputeSwapStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		current   *big.Int
		target    *big.Int
		liquidity *big.Int
		remaining *big.Int
		fee       uint32
		wantNext  string
		wantIn    string
		wantOut   string
		wantFee   string
	}{
		{
			name:      "exact input capped at target one for zero",
			current:   sqrtPrice1To1,
			target:    sqrtPrice101To100,
			liquidity: e18(2),
			remaining: e18(1),
			fee:       600,
			wantNext:  "79623317895830914510639640423",
			wantIn:    "9975124224178055",
			wantOut:   "9925619580021728",
			wantFee:   "5988667735148",
		},
		{
			name:      "exact output capped at target one for zero",
			current:   sqrtPrice1To1,
			target:    sqrtPrice101To100,
			liquidity: e18(2),
			remaining: new(big.Int).Neg(e18(1)),
			fee:       600,
			wantNext:  "79623317895830914510639640423",
			wantIn:    "9975124224178055",
			wantOut:   "9925619580021728",
			wantFee:   "5988667735148",
		},
		{
			name:      "exact input fully spent one for zero",
			current:   sqrtPrice1To1,
			target:    sqrtPrice10To1,
			liquidity: e18(2),
			remaining: e18(1),
			fee:       600,
			wantNext:  "118818475322642227089037862318",
			wantIn:    "999400000000000000",
			wantOut:   "666399946655997866",
			wantFee:   "600000000000000",
		},
		{
			name:      "exact output fully received one for zero",
			current:   sqrtPrice1To1,
			target:    sqrtPrice100To1,
			liquidity: e18(2),
			remaining: new(big.Int).Neg(e18(1)),
			fee:       600,
			wantNext:  "158456325028528675187087900672",
			wantIn:    "2000000000000000000",
			wantOut:   "1000000000000000000",
			wantFee:   "1200720432259356",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			step, err := computeSwapStep(tt.current, tt.target, tt.liquidity, tt.remaining, tt.fee)
			require.NoError(t, err)
			requireBigEqual(t, mustBig(tt.wantNext), step.sqrtRatioNextX96, "next price")
			requireBigEqual(t, mustBig(tt.wantIn), step.amountIn, "amount in")
			requireBigEqual(t, mustBig(tt.wantOut), step.amountOut, "amount out")
			requireBigEqual(t, mustBig(tt.wantFee), step.feeAmount, "fee")
		})
	}

	t.Run("input plus fee never exceeds the amount", func(t *testing.T) {
		t.Parallel()
		step, err := computeSwapStep(sqrtPrice1To1, sqrtPrice10To1, e18(2), e18(1), 600)
		require.NoError(t, err)
		spent := new(big.Int).Add(step.amountIn, step.feeAmount)
		requireBigEqual(t, e18(1), spent)
		require.Equal(t, -1, step.sqrtRatioNextX96.Cmp(sqrtPrice10To1))
	})
}

func TestAmountDeltas(t *testing.T) {
	t.Parallel()

	requireBigEqual(t, mustBig("90909090909090910"), getAmount0Delta(sqrtPrice1To1, sqrtPrice121To100, e18(1), true))
	requireBigEqual(t, mustBig("90909090909090909"), getAmount0Delta(sqrtPrice1To1, sqrtPrice121To100, e18(1), false))
	requireBigEqual(t, mustBig("100000000000000000"), getAmount1Delta(sqrtPrice1To1, sqrtPrice121To100, e18(1), true))
	requireBigEqual(t, mustBig("99999999999999999"), getAmount1Delta(sqrtPrice1To1, sqrtPrice121To100, e18(1), false))

	// argument order does not matter
	requireBigEqual(t, getAmount0Delta(sqrtPrice121To100, sqrtPrice1To1, e18(1), true), getAmount0Delta(sqrtPrice1To1, sqrtPrice121To100, e18(1), true))
	requireBigEqual(t, big.NewInt(0), getAmount1Delta(sqrtPrice1To1, sqrtPrice1To1, e18(1), true))
}

func TestNextSqrtPrice(t *testing.T) {
	t.Parallel()

	tenth := new(big.Int).Quo(e18(1), big.NewInt(10))

	tests := []struct {
		name       string
		fromInput  bool
		zeroForOne bool
		want       string
	}{
		{name: "input 0.1 token1", fromInput: true, zeroForOne: false, want: "87150978765690771352898345369"},
		{name: "input 0.1 token0", fromInput: true, zeroForOne: true, want: "72025602285694852357767227579"},
		{name: "output 0.1 token0", fromInput: false, zeroForOne: false, want: "88031291682515930659493278152"},
		{name: "output 0.1 token1", fromInput: false, zeroForOne: true, want: "71305346262837903834189555302"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var (
				got *big.Int
				err error
			)
			if tt.fromInput {
				got, err = getNextSqrtPriceFromInput(sqrtPrice1To1, e18(1), tenth, tt.zeroForOne)
			} else {
				got, err = getNextSqrtPriceFromOutput(sqrtPrice1To1, e18(1), tenth, tt.zeroForOne)
			}
			require.NoError(t, err)
			requireBigEqual(t, mustBig(tt.want), got)
		})
	}

	t.Run("zero amount keeps the price", func(t *testing.T) {
		t.Parallel()
		got, err := getNextSqrtPriceFromInput(sqrtPrice1To1, e18(1), big.NewInt(0), true)
		require.NoError(t, err)
		requireBigEqual(t, sqrtPrice1To1, got)
	})

	t.Run("output larger than reserves fails", func(t *testing.T) {
		t.Parallel()
		_, err := getNextSqrtPriceFromOutput(sqrtPrice1To1, big.NewInt(1), e18(1), false)
		require.ErrorIs(t, err, ErrPriceUnderflow)
		_, err = getNextSqrtPriceFromInput(sqrtPrice1To1, big.NewInt(0), e18(1), true)
		require.ErrorIs(t, err, ErrZeroLiquidity)
	})
}
