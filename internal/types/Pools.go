/*

Types describing concentrated-liquidity pool state and positions.

*/

package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolQuoteState is the price/tick/liquidity a swap simulation starts from.
type PoolQuoteState struct {
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96"`
	Tick         int      `json:"tick"`
	Liquidity    *big.Int `json:"liquidity"`
}

// LiquidityPosition is a position held by a position manager under an external id.
type LiquidityPosition struct {
	ID        uint64         `json:"id"`
	Token0    common.Address `json:"token0"`
	Token1    common.Address `json:"token1"`
	Fee       uint32         `json:"fee"` // pips, 3000 == 0.3%
	TickLower int            `json:"tick_lower"`
	TickUpper int            `json:"tick_upper"`
	Liquidity *big.Int       `json:"liquidity"`
}
