package amm

import (
	"context"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/treasury"
)

var (
	testToken0 = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	testToken1 = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	testPool   = common.HexToAddress("0x00000000000000000000000000000000000b0001")
	testLP     = common.HexToAddress("0x00000000000000000000000000000000000c0001")
	testTrader = common.HexToAddress("0x00000000000000000000000000000000000c0002")
)

type testEnv struct {
	journal   *journal.Journal
	ledger    *treasury.Ledger
	pool      *MemPool
	positions *MemPositionManager
}

func bigInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "invalid integer %q", s)
	return v
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), precision18)
}

// newTestEnv creates a pool at price 1 with fee and spacing, funded LP and trader accounts.
func newTestEnv(t *testing.T, fee uint32, tickSpacing int) *testEnv {
	t.Helper()
	j := journal.New()
	ledger := treasury.NewLedger(j)
	pool, err := NewMemPool(MemPoolConfig{
		Address:      testPool,
		Token0:       testToken0,
		Token1:       testToken1,
		Fee:          fee,
		TickSpacing:  tickSpacing,
		SqrtPriceX96: new(big.Int).Set(Q96),
	}, ledger, j)
	require.NoError(t, err)

	positions := NewMemPositionManager(j)
	positions.AddPool(pool)

	funding := sdkmath.NewIntFromBigInt(e18(100_000_000))
	for _, holder := range []common.Address{testLP, testTrader} {
		require.NoError(t, ledger.Mint(holder, testToken0, funding))
		require.NoError(t, ledger.Mint(holder, testToken1, funding))
	}
	return &testEnv{journal: j, ledger: ledger, pool: pool, positions: positions}
}

// mint opens a position from the LP account with equal desired amounts.
func (e *testEnv) mint(t *testing.T, tickLower, tickUpper int, amount *big.Int) uint64 {
	t.Helper()
	id, result, err := e.positions.Mint(context.Background(), testLP, testLP, MintParams{
		Pool:           testPool,
		TickLower:      tickLower,
		TickUpper:      tickUpper,
		Amount0Desired: amount,
		Amount1Desired: amount,
	})
	require.NoError(t, err)
	require.Positive(t, result.Liquidity.Sign())
	return id
}

func (e *testEnv) fullRange(t *testing.T, amount *big.Int) uint64 {
	t.Helper()
	spacing := e.pool.TickSpacing()
	return e.mint(t, MinUsableTick(spacing), MaxUsableTick(spacing), amount)
}

func requireBigEqual(t *testing.T, want, got *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.NotNil(t, got)
	require.Zero(t, want.Cmp(got), append([]interface{}{"want %s, got %s", want, got}, msgAndArgs...)...)
}
