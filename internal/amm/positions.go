package amm

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/logger"
	"github.com/elys-network/dlprewards/internal/types"
)

// MintParams opens a new position in a registered pool.
type MintParams struct {
	Pool           common.Address
	TickLower      int
	TickUpper      int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
}

type memPosition struct {
	types.LiquidityPosition
	owner common.Address
	pool  *MemPool
}

// MemPositionManager tracks positions over MemPools. Position ids start at 1.
type MemPositionManager struct {
	mu        sync.RWMutex
	pools     map[common.Address]*MemPool
	positions map[uint64]memPosition
	nextID    uint64
	journal   *journal.Journal
	logger    zerolog.Logger
}

func NewMemPositionManager(j *journal.Journal) *MemPositionManager {
	return &MemPositionManager{
		pools:     make(map[common.Address]*MemPool),
		positions: make(map[uint64]memPosition),
		nextID:    1,
		journal:   j,
		logger:    logger.GetForComponent("position_manager"),
	}
}

// AddPool makes pool available for new positions.
func (m *MemPositionManager) AddPool(pool *MemPool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[pool.Address()] = pool
}

// Pool returns a registered pool by address.
func (m *MemPositionManager) Pool(address common.Address) (*MemPool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, ok := m.pools[address]
	return pool, ok
}

// Mint opens a position for owner funded by payer and returns its id.
func (m *MemPositionManager) Mint(ctx context.Context, payer, owner common.Address, params MintParams) (uint64, IncreaseLiquidityResult, error) {
	pool, ok := m.Pool(params.Pool)
	if !ok {
		return 0, IncreaseLiquidityResult{}, fmt.Errorf("%w: pool %s", ErrPositionPoolMismatch, params.Pool.Hex())
	}
	if err := checkTicks(params.TickLower, params.TickUpper, pool.TickSpacing()); err != nil {
		return 0, IncreaseLiquidityResult{}, err
	}

	var (
		id     uint64
		result IncreaseLiquidityResult
	)
	err := m.journal.Atomic(func() error {
		var err error
		result, err = m.addLiquidity(ctx, payer, pool, params.TickLower, params.TickUpper,
			params.Amount0Desired, params.Amount1Desired, params.Amount0Min, params.Amount1Min)
		if err != nil {
			return err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		id = m.nextID
		m.nextID++
		m.positions[id] = memPosition{
			LiquidityPosition: types.LiquidityPosition{
				ID:        id,
				Token0:    pool.Token0(),
				Token1:    pool.Token1(),
				Fee:       pool.Fee(),
				TickLower: params.TickLower,
				TickUpper: params.TickUpper,
				Liquidity: new(big.Int).Set(result.Liquidity),
			},
			owner: owner,
			pool:  pool,
		}
		m.journal.Record(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.positions, id)
			m.nextID = id
		})
		return nil
	})
	if err != nil {
		return 0, IncreaseLiquidityResult{}, err
	}
	m.logger.Info().
		Uint64("position_id", id).
		Str("pool", params.Pool.Hex()).
		Str("liquidity", result.Liquidity.String()).
		Msg("Position opened")
	return id, result, nil
}

// Position returns a copy of the position.
func (m *MemPositionManager) Position(_ context.Context, id uint64) (types.LiquidityPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[id]
	if !ok {
		return types.LiquidityPosition{}, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	out := pos.LiquidityPosition
	out.Liquidity = new(big.Int).Set(pos.Liquidity)
	return out, nil
}

// Positions lists every position ordered by id.
func (m *MemPositionManager) Positions() []types.LiquidityPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.LiquidityPosition, 0, len(m.positions))
	for _, pos := range m.positions {
		p := pos.LiquidityPosition
		p.Liquidity = new(big.Int).Set(pos.Liquidity)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemPositionManager) PoolOf(_ context.Context, id uint64) (Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	return pos.pool, nil
}

// IncreaseLiquidity adds as much liquidity as the desired amounts support at the current price.
func (m *MemPositionManager) IncreaseLiquidity(ctx context.Context, payer common.Address, params IncreaseLiquidityParams) (IncreaseLiquidityResult, error) {
	m.mu.RLock()
	pos, ok := m.positions[params.PositionID]
	m.mu.RUnlock()
	if !ok {
		return IncreaseLiquidityResult{}, fmt.Errorf("%w: %d", ErrPositionNotFound, params.PositionID)
	}

	var result IncreaseLiquidityResult
	err := m.journal.Atomic(func() error {
		var err error
		result, err = m.addLiquidity(ctx, payer, pos.pool, pos.TickLower, pos.TickUpper,
			params.Amount0Desired, params.Amount1Desired, params.Amount0Min, params.Amount1Min)
		if err != nil {
			return err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		current := m.positions[params.PositionID]
		prev := current.Liquidity
		current.Liquidity = new(big.Int).Add(prev, result.Liquidity)
		m.positions[params.PositionID] = current
		m.journal.Record(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			restored := m.positions[params.PositionID]
			restored.Liquidity = prev
			m.positions[params.PositionID] = restored
		})
		return nil
	})
	if err != nil {
		return IncreaseLiquidityResult{}, err
	}
	m.logger.Debug().
		Uint64("position_id", params.PositionID).
		Str("liquidity_delta", result.Liquidity.String()).
		Str("amount0", result.Amount0.String()).
		Str("amount1", result.Amount1.String()).
		Msg("Liquidity increased")
	return result, nil
}

func (m *MemPositionManager) addLiquidity(ctx context.Context, payer common.Address, pool *MemPool, tickLower, tickUpper int, amount0Desired, amount1Desired, amount0Min, amount1Min *big.Int) (IncreaseLiquidityResult, error) {
	slot0, err := pool.Slot0(ctx)
	if err != nil {
		return IncreaseLiquidityResult{}, err
	}
	sqrtLower, err := GetSqrtRatioAtTick(tickLower)
	if err != nil {
		return IncreaseLiquidityResult{}, err
	}
	sqrtUpper, err := GetSqrtRatioAtTick(tickUpper)
	if err != nil {
		return IncreaseLiquidityResult{}, err
	}
	liquidity, err := GetLiquidityForAmounts(slot0.SqrtPriceX96, sqrtLower, sqrtUpper, cloneBig(amount0Desired), cloneBig(amount1Desired))
	if err != nil {
		return IncreaseLiquidityResult{}, err
	}
	amount0, amount1, err := pool.Mint(ctx, payer, tickLower, tickUpper, liquidity)
	if err != nil {
		return IncreaseLiquidityResult{}, err
	}
	if amount0.Cmp(cloneBig(amount0Min)) < 0 || amount1.Cmp(cloneBig(amount1Min)) < 0 {
		return IncreaseLiquidityResult{}, fmt.Errorf("%w: got %s/%s", ErrInsufficientLiquidity, amount0, amount1)
	}
	return IncreaseLiquidityResult{Liquidity: liquidity, Amount0: amount0, Amount1: amount1}, nil
}
