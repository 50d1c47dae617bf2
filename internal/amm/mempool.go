package amm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/logger"
	"github.com/elys-network/dlprewards/internal/treasury"
	"github.com/elys-network/dlprewards/internal/types"
	"github.com/elys-network/dlprewards/internal/utils"
)

var ErrInvalidPoolConfig = errors.New("invalid pool config")

type MemPoolConfig struct {
	Address      common.Address
	Token0       common.Address
	Token1       common.Address
	Fee          uint32
	TickSpacing  int
	SqrtPriceX96 *big.Int
}

func validateMemPoolConfig(cfg MemPoolConfig) error {
	var errs []error
	if cfg.Address == (common.Address{}) {
		errs = append(errs, errors.New("pool address is required"))
	}
	if bytes.Compare(cfg.Token0.Bytes(), cfg.Token1.Bytes()) >= 0 {
		errs = append(errs, errors.New("token0 must sort before token1"))
	}
	if cfg.Fee >= FeeDenominator {
		errs = append(errs, fmt.Errorf("fee %d must be below %d", cfg.Fee, FeeDenominator))
	}
	if cfg.TickSpacing <= 0 {
		errs = append(errs, errors.New("tick spacing must be positive"))
	}
	if cfg.SqrtPriceX96 == nil || cfg.SqrtPriceX96.Cmp(MinSqrtRatio) < 0 || cfg.SqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		errs = append(errs, errors.New("initial sqrt price out of range"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPoolConfig, errors.Join(errs...))
	}
	return nil
}

type tickInfo struct {
	liquidityGross *big.Int
	liquidityNet   *big.Int
}

// MemPool is a concentrated-liquidity pool whose balances live on the ledger. Swaps and mints
// are journaled so an enclosing atomic call can revert them.
type MemPool struct {
	mu  sync.RWMutex
	cfg MemPoolConfig

	sqrtPriceX96 *big.Int
	tick         int
	liquidity    *big.Int
	ticks        map[int]tickInfo
	bitmap       map[int16]*big.Int

	maxLiquidityPerTick *big.Int

	ledger  *treasury.Ledger
	journal *journal.Journal
	logger  zerolog.Logger
}

func NewMemPool(cfg MemPoolConfig, ledger *treasury.Ledger, j *journal.Journal) (*MemPool, error) {
	if err := validateMemPoolConfig(cfg); err != nil {
		return nil, err
	}
	tick, err := GetTickAtSqrtRatio(cfg.SqrtPriceX96)
	if err != nil {
		return nil, err
	}
	return &MemPool{
		cfg:                 cfg,
		sqrtPriceX96:        new(big.Int).Set(cfg.SqrtPriceX96),
		tick:                tick,
		liquidity:           new(big.Int),
		ticks:               make(map[int]tickInfo),
		bitmap:              make(map[int16]*big.Int),
		maxLiquidityPerTick: maxLiquidityPerTick(cfg.TickSpacing),
		ledger:              ledger,
		journal:             j,
		logger:              logger.GetForComponent("mem_pool").With().Str("pool", cfg.Address.Hex()).Logger(),
	}, nil
}

func maxLiquidityPerTick(tickSpacing int) *big.Int {
	numTicks := (MaxUsableTick(tickSpacing)-MinUsableTick(tickSpacing))/tickSpacing + 1
	return new(big.Int).Quo(MaxUint128, big.NewInt(int64(numTicks)))
}

func (p *MemPool) Address() common.Address { return p.cfg.Address }
func (p *MemPool) Token0() common.Address  { return p.cfg.Token0 }
func (p *MemPool) Token1() common.Address  { return p.cfg.Token1 }
func (p *MemPool) Fee() uint32             { return p.cfg.Fee }
func (p *MemPool) TickSpacing() int        { return p.cfg.TickSpacing }

func (p *MemPool) Slot0(context.Context) (Slot0, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Slot0{SqrtPriceX96: new(big.Int).Set(p.sqrtPriceX96), Tick: p.tick}, nil
}

func (p *MemPool) Liquidity(context.Context) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.liquidity), nil
}

func (p *MemPool) TickBitmap(_ context.Context, wordPos int16) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.wordLocked(wordPos), nil
}

func (p *MemPool) LiquidityNet(_ context.Context, tick int) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.liquidityNetLocked(tick), nil
}

func (p *MemPool) wordLocked(wordPos int16) *big.Int {
	return cloneBig(p.bitmap[wordPos])
}

func (p *MemPool) liquidityNetLocked(tick int) *big.Int {
	info, ok := p.ticks[tick]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(info.liquidityNet)
}

// lockedView reads the pool while the caller holds its lock.
type lockedView struct{ *MemPool }

func (v lockedView) TickBitmap(_ context.Context, wordPos int16) (*big.Int, error) {
	return v.wordLocked(wordPos), nil
}

func (v lockedView) LiquidityNet(_ context.Context, tick int) (*big.Int, error) {
	return v.liquidityNetLocked(tick), nil
}

// Swap executes a swap: payer pays the input into the pool and recipient receives the output.
func (p *MemPool) Swap(ctx context.Context, payer, recipient common.Address, zeroForOne bool, amountSpecified, sqrtPriceLimitX96 *big.Int) (*big.Int, *big.Int, error) {
	var result SwapResult
	err := p.journal.Atomic(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()

		start := types.PoolQuoteState{SqrtPriceX96: p.sqrtPriceX96, Tick: p.tick, Liquidity: p.liquidity}
		var err error
		result, err = simulateSwap(ctx, lockedView{p}, start, zeroForOne, amountSpecified, sqrtPriceLimitX96)
		if err != nil {
			return err
		}

		tokenIn, tokenOut := p.cfg.Token0, p.cfg.Token1
		if !zeroForOne {
			tokenIn, tokenOut = tokenOut, tokenIn
		}
		if err := p.ledger.Transfer(payer, p.cfg.Address, tokenIn, utils.IntFromBig(result.AmountIn(zeroForOne))); err != nil {
			return fmt.Errorf("failed to pay swap input: %w", err)
		}
		if err := p.ledger.Transfer(p.cfg.Address, recipient, tokenOut, utils.IntFromBig(result.AmountOut(zeroForOne))); err != nil {
			return fmt.Errorf("failed to pay swap output: %w", err)
		}

		prevPrice, prevTick, prevLiquidity := p.sqrtPriceX96, p.tick, p.liquidity
		p.sqrtPriceX96 = result.SqrtPriceX96After
		p.tick = result.TickAfter
		p.liquidity = result.LiquidityAfter
		p.journal.Record(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.sqrtPriceX96, p.tick, p.liquidity = prevPrice, prevTick, prevLiquidity
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	p.logger.Debug().
		Bool("zero_for_one", zeroForOne).
		Str("amount0", result.Amount0.String()).
		Str("amount1", result.Amount1.String()).
		Int("tick_after", result.TickAfter).
		Int("ticks_crossed", result.TicksCrossed).
		Msg("Swap executed")
	return result.Amount0, result.Amount1, nil
}

// Mint adds liquidity to [tickLower, tickUpper], charging payer the rounded-up amounts.
func (p *MemPool) Mint(ctx context.Context, payer common.Address, tickLower, tickUpper int, liquidity *big.Int) (*big.Int, *big.Int, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil, nil, ErrZeroLiquidity
	}
	if err := checkTicks(tickLower, tickUpper, p.cfg.TickSpacing); err != nil {
		return nil, nil, err
	}

	var amount0, amount1 *big.Int
	err := p.journal.Atomic(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()

		var err error
		amount0, amount1, err = amountsForLiquidity(p.sqrtPriceX96, p.tick, tickLower, tickUpper, liquidity, true)
		if err != nil {
			return err
		}
		for _, t := range []int{tickLower, tickUpper} {
			gross := new(big.Int).Add(p.tickInfoLocked(t).liquidityGross, liquidity)
			if gross.Cmp(p.maxLiquidityPerTick) > 0 {
				return fmt.Errorf("%w: tick %d liquidity above per-tick maximum", ErrOverflow, t)
			}
		}
		if err := p.ledger.Transfer(payer, p.cfg.Address, p.cfg.Token0, utils.IntFromBig(amount0)); err != nil {
			return fmt.Errorf("failed to pay token0: %w", err)
		}
		if err := p.ledger.Transfer(payer, p.cfg.Address, p.cfg.Token1, utils.IntFromBig(amount1)); err != nil {
			return fmt.Errorf("failed to pay token1: %w", err)
		}
		return p.applyMintLocked(tickLower, tickUpper, liquidity)
	})
	if err != nil {
		return nil, nil, err
	}

	p.logger.Debug().
		Int("tick_lower", tickLower).
		Int("tick_upper", tickUpper).
		Str("liquidity", liquidity.String()).
		Str("amount0", amount0.String()).
		Str("amount1", amount1.String()).
		Msg("Liquidity minted")
	return amount0, amount1, nil
}

func (p *MemPool) tickInfoLocked(tick int) tickInfo {
	info, ok := p.ticks[tick]
	if !ok {
		return tickInfo{liquidityGross: new(big.Int), liquidityNet: new(big.Int)}
	}
	return info
}

// applyMintLocked updates ticks, bitmap and active liquidity. It cannot fail after validation.
func (p *MemPool) applyMintLocked(tickLower, tickUpper int, liquidity *big.Int) error {
	prevTicks := make(map[int]*tickInfo, 2)
	prevWords := make(map[int16]*big.Int, 2)
	prevLiquidity := p.liquidity

	for _, t := range []int{tickLower, tickUpper} {
		if info, ok := p.ticks[t]; ok {
			saved := info
			prevTicks[t] = &saved
		} else {
			prevTicks[t] = nil
		}
		wordPos, _ := bitmapPosition(t / p.cfg.TickSpacing)
		if _, saved := prevWords[wordPos]; !saved {
			prevWords[wordPos] = p.bitmap[wordPos]
		}
	}

	for _, t := range []int{tickLower, tickUpper} {
		info := p.tickInfoLocked(t)
		flipped := info.liquidityGross.Sign() == 0
		next := tickInfo{
			liquidityGross: new(big.Int).Add(info.liquidityGross, liquidity),
		}
		if t == tickLower {
			next.liquidityNet = new(big.Int).Add(info.liquidityNet, liquidity)
		} else {
			next.liquidityNet = new(big.Int).Sub(info.liquidityNet, liquidity)
		}
		p.ticks[t] = next
		if flipped {
			if err := flipTick(p.bitmap, t, p.cfg.TickSpacing); err != nil {
				return err
			}
		}
	}
	if p.tick >= tickLower && p.tick < tickUpper {
		p.liquidity = new(big.Int).Add(p.liquidity, liquidity)
	}

	p.journal.Record(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for t, info := range prevTicks {
			if info == nil {
				delete(p.ticks, t)
			} else {
				p.ticks[t] = *info
			}
		}
		for wordPos, word := range prevWords {
			if word == nil {
				delete(p.bitmap, wordPos)
			} else {
				p.bitmap[wordPos] = word
			}
		}
		p.liquidity = prevLiquidity
	})
	return nil
}
