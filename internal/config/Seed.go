package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/elys-network/dlprewards/internal/types"
	"github.com/elys-network/dlprewards/internal/utils"
)

var ErrInvalidSeed = errors.New("invalid seed file")

// PoolSeed describes one concentrated-liquidity pool.
type PoolSeed struct {
	Address      string `yaml:"address"`
	Token0       string `yaml:"token0"`
	Token1       string `yaml:"token1"`
	Fee          uint32 `yaml:"fee"`
	TickSpacing  int    `yaml:"tick_spacing"`
	SqrtPriceX96 string `yaml:"sqrt_price_x96"`
	// Liquidity opened full range by the seed account so the pool is tradable.
	Amount0 string `yaml:"amount0"`
	Amount1 string `yaml:"amount1"`
}

// DlpSeed describes a DLP and the position its liquidity tranches are deposited into.
type DlpSeed struct {
	ID       uint64 `yaml:"id"`
	Name     string `yaml:"name"`
	Status   string `yaml:"status"`
	Token    string `yaml:"token"`
	Treasury string `yaml:"treasury"`
	Pool     string `yaml:"pool"`
	// Position range; both zero means full range.
	TickLower int    `yaml:"tick_lower"`
	TickUpper int    `yaml:"tick_upper"`
	Amount0   string `yaml:"amount0"`
	Amount1   string `yaml:"amount1"`
}

// Seed is the startup state of the in-memory substrate.
type Seed struct {
	SeedAccount     string     `yaml:"seed_account"`
	TreasuryFunding string     `yaml:"treasury_funding"`
	Pools           []PoolSeed `yaml:"pools"`
	Dlps            []DlpSeed  `yaml:"dlps"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) Validate() error {
	var errs []error
	if !common.IsHexAddress(s.SeedAccount) {
		errs = append(errs, fmt.Errorf("seed_account %q is not an address", s.SeedAccount))
	}
	if _, err := parseSeedAmount(s.TreasuryFunding); err != nil {
		errs = append(errs, fmt.Errorf("treasury_funding: %w", err))
	}

	pools := make(map[common.Address]struct{}, len(s.Pools))
	for i, p := range s.Pools {
		for field, v := range map[string]string{"address": p.Address, "token0": p.Token0, "token1": p.Token1} {
			if !common.IsHexAddress(v) {
				errs = append(errs, fmt.Errorf("pools[%d].%s %q is not an address", i, field, v))
			}
		}
		if _, ok := new(big.Int).SetString(p.SqrtPriceX96, 10); !ok {
			errs = append(errs, fmt.Errorf("pools[%d].sqrt_price_x96 %q is not an integer", i, p.SqrtPriceX96))
		}
		for field, v := range map[string]string{"amount0": p.Amount0, "amount1": p.Amount1} {
			if _, err := parseSeedAmount(v); err != nil {
				errs = append(errs, fmt.Errorf("pools[%d].%s: %w", i, field, err))
			}
		}
		pools[common.HexToAddress(p.Address)] = struct{}{}
	}

	ids := make(map[uint64]struct{}, len(s.Dlps))
	for i, d := range s.Dlps {
		if d.ID == 0 {
			errs = append(errs, fmt.Errorf("dlps[%d].id must be non-zero", i))
		}
		if _, dup := ids[d.ID]; dup {
			errs = append(errs, fmt.Errorf("dlps[%d].id %d is duplicated", i, d.ID))
		}
		ids[d.ID] = struct{}{}
		for field, v := range map[string]string{"token": d.Token, "treasury": d.Treasury, "pool": d.Pool} {
			if !common.IsHexAddress(v) {
				errs = append(errs, fmt.Errorf("dlps[%d].%s %q is not an address", i, field, v))
			}
		}
		if _, ok := pools[common.HexToAddress(d.Pool)]; !ok {
			errs = append(errs, fmt.Errorf("dlps[%d].pool %s is not a seeded pool", i, d.Pool))
		}
		switch types.DlpStatus(d.Status) {
		case "", types.DlpStatusRegistered, types.DlpStatusEligible, types.DlpStatusDeregistered:
		default:
			errs = append(errs, fmt.Errorf("dlps[%d].status %q is unknown", i, d.Status))
		}
		for field, v := range map[string]string{"amount0": d.Amount0, "amount1": d.Amount1} {
			if _, err := parseSeedAmount(v); err != nil {
				errs = append(errs, fmt.Errorf("dlps[%d].%s: %w", i, field, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSeed, errors.Join(errs...))
	}
	return nil
}

// Info converts the seed into a registry record bound to positionID.
func (d DlpSeed) Info(positionID uint64) types.DlpInfo {
	status := types.DlpStatus(d.Status)
	if status == "" {
		status = types.DlpStatusEligible
	}
	return types.DlpInfo{
		ID:              types.DlpID(d.ID),
		Name:            d.Name,
		Status:          status,
		TokenAddress:    common.HexToAddress(d.Token),
		LpPositionID:    positionID,
		TreasuryAddress: common.HexToAddress(d.Treasury),
	}
}

// FullRange reports whether the position spans every usable tick.
func (d DlpSeed) FullRange() bool {
	return d.TickLower == 0 && d.TickUpper == 0
}

// SeedAmount parses an amount field; empty means zero.
func SeedAmount(s string) sdkmath.Int {
	v, err := parseSeedAmount(s)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return v
}

func parseSeedAmount(s string) (sdkmath.Int, error) {
	if s == "" {
		return sdkmath.ZeroInt(), nil
	}
	v, err := utils.ParseAmount(s)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}
