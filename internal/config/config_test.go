package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/dlprewards/internal/types"
)

const validSeed = `
seed_account: "0x00000000000000000000000000000000000c0001"
treasury_funding: "1000000000000000000000000"
pools:
  - address: "0x00000000000000000000000000000000000b0001"
    token0: "0x0000000000000000000000000000000000000a01"
    token1: "0x0000000000000000000000000000000000000a02"
    fee: 3000
    tick_spacing: 60
    sqrt_price_x96: "79228162514264337593543950336"
    amount0: "1000000000000000000000000"
    amount1: "1000000000000000000000000"
dlps:
  - id: 1
    name: "alpha"
    token: "0x0000000000000000000000000000000000000a02"
    treasury: "0x0000000000000000000000000000000000001001"
    pool: "0x00000000000000000000000000000000000b0001"
    amount0: "1000000000000000000"
    amount1: "1000000000000000000"
  - id: 2
    name: "beta"
    status: REGISTERED
    token: "0x0000000000000000000000000000000000000a02"
    treasury: "0x0000000000000000000000000000000000001002"
    pool: "0x00000000000000000000000000000000000b0001"
    tick_lower: -600
    tick_upper: 600
`

func TestParseSeed(t *testing.T) {
	t.Parallel()

	seed, err := ParseSeed([]byte(validSeed))
	require.NoError(t, err)
	require.Len(t, seed.Pools, 1)
	require.Len(t, seed.Dlps, 2)
	require.Equal(t, uint32(3000), seed.Pools[0].Fee)

	alpha := seed.Dlps[0]
	require.True(t, alpha.FullRange())
	info := alpha.Info(7)
	require.Equal(t, types.DlpID(1), info.ID)
	require.Equal(t, types.DlpStatusEligible, info.Status)
	require.Equal(t, uint64(7), info.LpPositionID)
	require.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000001001"), info.TreasuryAddress)

	beta := seed.Dlps[1]
	require.False(t, beta.FullRange())
	require.Equal(t, types.DlpStatusRegistered, beta.Info(8).Status)
	require.True(t, SeedAmount(beta.Amount0).IsZero())
}

func TestParseSeedRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		seed string
	}{
		{name: "not yaml", seed: "pools: [unterminated"},
		{name: "bad seed account", seed: `seed_account: "nope"`},
		{name: "unknown pool", seed: `
seed_account: "0x00000000000000000000000000000000000c0001"
dlps:
  - id: 1
    token: "0x0000000000000000000000000000000000000a02"
    treasury: "0x0000000000000000000000000000000000001001"
    pool: "0x00000000000000000000000000000000000b0009"
`},
		{name: "duplicate dlp", seed: `
seed_account: "0x00000000000000000000000000000000000c0001"
pools:
  - address: "0x00000000000000000000000000000000000b0001"
    token0: "0x0000000000000000000000000000000000000a01"
    token1: "0x0000000000000000000000000000000000000a02"
    sqrt_price_x96: "79228162514264337593543950336"
dlps:
  - {id: 1, token: "0x0000000000000000000000000000000000000a02", treasury: "0x0000000000000000000000000000000000001001", pool: "0x00000000000000000000000000000000000b0001"}
  - {id: 1, token: "0x0000000000000000000000000000000000000a02", treasury: "0x0000000000000000000000000000000000001001", pool: "0x00000000000000000000000000000000000b0001"}
`},
		{name: "negative amount", seed: `
seed_account: "0x00000000000000000000000000000000000c0001"
treasury_funding: "-1"
`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSeed([]byte(tt.seed))
			require.ErrorIs(t, err, ErrInvalidSeed)
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_ADDRS", "0x0000000000000000000000000000000000000a01, 0x0000000000000000000000000000000000000a02")
	addrs, err := getEnvAsAddressList("TEST_ADDRS")
	require.NoError(t, err)
	require.Len(t, addrs, 2)

	t.Setenv("TEST_ADDRS", "0x01,zz")
	_, err = getEnvAsAddressList("TEST_ADDRS")
	require.Error(t, err)

	t.Setenv("TEST_AMOUNT", "1000000000000000000000000")
	amount, err := getEnvAsInt("TEST_AMOUNT")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000000", amount.String())

	t.Setenv("TEST_AMOUNT", "-5")
	_, err = getEnvAsInt("TEST_AMOUNT")
	require.Error(t, err)

	d, err := getEnvAsDurationOrDefault("TEST_UNSET_DURATION", time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Minute, d)

	t.Setenv("TEST_DURATION", "-1s")
	_, err = getEnvAsDurationOrDefault("TEST_DURATION", time.Minute)
	require.Error(t, err)

	_, err = getEnvAsUint64("TEST_UNSET_UINT")
	require.Error(t, err)
}
