package main

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/dlprewards/internal/amm"
	"github.com/elys-network/dlprewards/internal/config"
	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/registry"
	"github.com/elys-network/dlprewards/internal/treasury"
)

// applySeed opens the seeded pools and DLP positions, registers the DLPs and funds the rewards
// treasury. The seed account is minted exactly what the pools and positions ask for.
func applySeed(ctx context.Context, seed *config.Seed, ledger *treasury.Ledger, positions *amm.MemPositionManager, reg *registry.MemRegistry, j *journal.Journal) (map[common.Address]amm.PoolReader, error) {
	funder := common.HexToAddress(seed.SeedAccount)
	pools := make(map[common.Address]amm.PoolReader, len(seed.Pools))

	for _, p := range seed.Pools {
		sqrtPrice, _ := new(big.Int).SetString(p.SqrtPriceX96, 10)
		pool, err := amm.NewMemPool(amm.MemPoolConfig{
			Address:      common.HexToAddress(p.Address),
			Token0:       common.HexToAddress(p.Token0),
			Token1:       common.HexToAddress(p.Token1),
			Fee:          p.Fee,
			TickSpacing:  p.TickSpacing,
			SqrtPriceX96: sqrtPrice,
		}, ledger, j)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", p.Address, err)
		}
		positions.AddPool(pool)
		pools[pool.Address()] = pool

		amount0, amount1 := config.SeedAmount(p.Amount0), config.SeedAmount(p.Amount1)
		if amount0.IsZero() && amount1.IsZero() {
			continue
		}
		if err := fund(ledger, funder, pool, amount0, amount1); err != nil {
			return nil, err
		}
		spacing := pool.TickSpacing()
		if _, _, err := positions.Mint(ctx, funder, funder, amm.MintParams{
			Pool:           pool.Address(),
			TickLower:      amm.MinUsableTick(spacing),
			TickUpper:      amm.MaxUsableTick(spacing),
			Amount0Desired: amount0.BigInt(),
			Amount1Desired: amount1.BigInt(),
		}); err != nil {
			return nil, fmt.Errorf("pool %s liquidity: %w", p.Address, err)
		}
	}

	for _, d := range seed.Dlps {
		pool, ok := positions.Pool(common.HexToAddress(d.Pool))
		if !ok {
			return nil, fmt.Errorf("dlp %d: pool %s not seeded", d.ID, d.Pool)
		}
		tickLower, tickUpper := d.TickLower, d.TickUpper
		if d.FullRange() {
			tickLower, tickUpper = amm.MinUsableTick(pool.TickSpacing()), amm.MaxUsableTick(pool.TickSpacing())
		}
		amount0, amount1 := config.SeedAmount(d.Amount0), config.SeedAmount(d.Amount1)
		if err := fund(ledger, funder, pool, amount0, amount1); err != nil {
			return nil, err
		}
		positionID, _, err := positions.Mint(ctx, funder, common.HexToAddress(d.Treasury), amm.MintParams{
			Pool:           pool.Address(),
			TickLower:      tickLower,
			TickUpper:      tickUpper,
			Amount0Desired: amount0.BigInt(),
			Amount1Desired: amount1.BigInt(),
		})
		if err != nil {
			return nil, fmt.Errorf("dlp %d position: %w", d.ID, err)
		}
		if err := reg.Register(d.Info(positionID)); err != nil {
			return nil, fmt.Errorf("dlp %d: %w", d.ID, err)
		}
		log.Info().
			Uint64("dlp_id", d.ID).
			Str("name", d.Name).
			Uint64("position_id", positionID).
			Msg("Seeded dlp")
	}

	if funding := config.SeedAmount(seed.TreasuryFunding); funding.IsPositive() {
		if err := ledger.Mint(config.RewardsTreasury, config.WVANA, funding); err != nil {
			return nil, fmt.Errorf("treasury funding: %w", err)
		}
	}
	return pools, nil
}

func fund(ledger *treasury.Ledger, funder common.Address, pool *amm.MemPool, amount0, amount1 sdkmath.Int) error {
	if err := ledger.Mint(funder, pool.Token0(), amount0); err != nil {
		return fmt.Errorf("funding %s: %w", pool.Token0().Hex(), err)
	}
	if err := ledger.Mint(funder, pool.Token1(), amount1); err != nil {
		return fmt.Errorf("funding %s: %w", pool.Token1().Hex(), err)
	}
	return nil
}
