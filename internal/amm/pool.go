// Package amm simulates concentrated-liquidity swaps, quotes slippage-bounded trades and
// splits reward tranches into a swapped leg and a liquidity leg.
package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/dlprewards/internal/types"
)

var (
	ErrInvalidTicks          = errors.New("invalid tick range")
	ErrPositionPoolMismatch  = errors.New("position does not belong to pool")
	ErrPositionNotFound      = errors.New("position not found")
	ErrInsufficientLiquidity = errors.New("minted amounts below minimum")
)

// Slot0 is the pool's current price and tick.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int
}

// PoolReader is the read side of a concentrated-liquidity pool that a swap replay needs.
type PoolReader interface {
	WordReader
	Token0() common.Address
	Token1() common.Address
	Fee() uint32
	TickSpacing() int
	Slot0(ctx context.Context) (Slot0, error)
	Liquidity(ctx context.Context) (*big.Int, error)
	LiquidityNet(ctx context.Context, tick int) (*big.Int, error)
}

// Pool is a pool that can execute swaps. amount0 and amount1 are pool deltas: positive values
// were paid into the pool by payer, negative values were sent to recipient.
type Pool interface {
	PoolReader
	Address() common.Address
	Swap(ctx context.Context, payer, recipient common.Address, zeroForOne bool, amountSpecified, sqrtPriceLimitX96 *big.Int) (amount0, amount1 *big.Int, err error)
}

// IncreaseLiquidityParams mirrors the position manager's increaseLiquidity call.
type IncreaseLiquidityParams struct {
	PositionID     uint64
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
}

type IncreaseLiquidityResult struct {
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

// PositionManager holds liquidity positions on behalf of their owners.
type PositionManager interface {
	Position(ctx context.Context, id uint64) (types.LiquidityPosition, error)
	PoolOf(ctx context.Context, id uint64) (Pool, error)
	IncreaseLiquidity(ctx context.Context, payer common.Address, params IncreaseLiquidityParams) (IncreaseLiquidityResult, error)
}

func quoteState(ctx context.Context, pool PoolReader) (types.PoolQuoteState, error) {
	slot0, err := pool.Slot0(ctx)
	if err != nil {
		return types.PoolQuoteState{}, err
	}
	liquidity, err := pool.Liquidity(ctx)
	if err != nil {
		return types.PoolQuoteState{}, err
	}
	return types.PoolQuoteState{
		SqrtPriceX96: slot0.SqrtPriceX96,
		Tick:         slot0.Tick,
		Liquidity:    liquidity,
	}, nil
}

// checkTicks validates a position range the way a pool mint does.
func checkTicks(tickLower, tickUpper, tickSpacing int) error {
	switch {
	case tickLower >= tickUpper:
		return fmt.Errorf("%w: lower %d >= upper %d", ErrInvalidTicks, tickLower, tickUpper)
	case tickLower < MinTick:
		return fmt.Errorf("%w: lower %d below %d", ErrInvalidTicks, tickLower, MinTick)
	case tickUpper > MaxTick:
		return fmt.Errorf("%w: upper %d above %d", ErrInvalidTicks, tickUpper, MaxTick)
	case tickSpacing <= 0 || tickLower%tickSpacing != 0 || tickUpper%tickSpacing != 0:
		return fmt.Errorf("%w: ticks %d/%d not aligned to spacing %d", ErrInvalidTicks, tickLower, tickUpper, tickSpacing)
	}
	return nil
}
