package distributor

import (
	"context"
	"errors"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/dlprewards/internal/access"
	"github.com/elys-network/dlprewards/internal/amm"
	"github.com/elys-network/dlprewards/internal/chain"
	"github.com/elys-network/dlprewards/internal/epoch"
	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/registry"
	"github.com/elys-network/dlprewards/internal/treasury"
	"github.com/elys-network/dlprewards/internal/types"
)

var (
	maintainer      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	deployer        = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	stranger        = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	distributorAddr = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	rewardsAddr     = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	engineAddr      = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	poolSink        = common.HexToAddress("0x00000000000000000000000000000000000000e2")

	wvana    = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	dlpToken = common.HexToAddress("0x0000000000000000000000000000000000000a02")

	dlp1Treasury = common.HexToAddress("0x0000000000000000000000000000000000001001")
	dlp2Treasury = common.HexToAddress("0x0000000000000000000000000000000000001002")
)

var errSwapReverted = errors.New("swap reverted")

// fakeEngine uses a deterministic share of every tranche and returns the rest as spare VANA.
type fakeEngine struct {
	ledger *treasury.Ledger
	use    func(amount sdkmath.Int) sdkmath.Int // nil uses everything
	failOn map[uint64]bool                      // position ids whose swap reverts after moving funds
	calls  []amm.SplitRewardSwapParams
}

func (f *fakeEngine) Address() common.Address { return engineAddr }

func (f *fakeEngine) SplitRewardSwap(_ context.Context, params amm.SplitRewardSwapParams) (amm.SplitRewardSwapResult, error) {
	f.calls = append(f.calls, params)
	used := params.AmountIn
	if f.use != nil {
		used = f.use(params.AmountIn)
	}
	spare := params.AmountIn.Sub(used)
	if err := f.ledger.Transfer(engineAddr, poolSink, wvana, used); err != nil {
		return amm.SplitRewardSwapResult{}, err
	}
	if f.failOn[params.LpTokenID] {
		return amm.SplitRewardSwapResult{}, errSwapReverted
	}
	if err := f.ledger.Transfer(engineAddr, params.SpareRecipient, wvana, spare); err != nil {
		return amm.SplitRewardSwapResult{}, err
	}
	return amm.SplitRewardSwapResult{
		TokenRewardAmount: sdkmath.ZeroInt(),
		SpareToken:        sdkmath.ZeroInt(),
		SpareVana:         spare,
		UsedVanaAmount:    used,
		LiquidityDelta:    big.NewInt(0),
		Token:             dlpToken,
	}, nil
}

type memSink struct {
	receipts []types.TrancheReceipt
}

func (s *memSink) SaveTrancheReceipts(_ context.Context, receipts []types.TrancheReceipt) error {
	s.receipts = append(s.receipts, receipts...)
	return nil
}

type testEnv struct {
	dist     *Distributor
	epochs   *epoch.Manager
	registry *registry.MemRegistry
	treasury *treasury.Treasury
	ledger   *treasury.Ledger
	engine   *fakeEngine
	blocks   *chain.ManualBlockSource
	journal  *journal.Journal
	roles    *access.Roles
	sink     *memSink
}

// newTestEnv builds a distributor over epoch 1 (blocks 100-129) with DLPs 1 and 2 eligible and
// a rewards treasury holding treasuryFunds of VANA.
func newTestEnv(t *testing.T, epochReward sdkmath.Int, treasuryFunds sdkmath.Int) *testEnv {
	t.Helper()
	ctx := context.Background()

	roles := access.NewRoles()
	roles.Grant(access.RoleMaintainer, maintainer)
	roles.Grant(access.RoleRewardDeployer, deployer)
	roles.Grant(access.RoleCustodian, distributorAddr)

	blocks := chain.NewManualBlockSource(100)
	j := journal.New()
	ledger := treasury.NewLedger(j)
	rewards := treasury.New(rewardsAddr, ledger, roles)
	require.NoError(t, ledger.Mint(rewardsAddr, wvana, treasuryFunds))

	epochs, err := epoch.NewManager(epoch.Config{
		StartBlock:   100,
		DaySize:      10,
		EpochSize:    3,
		RewardAmount: epochReward,
		Auth:         roles,
		Blocks:       blocks,
		Journal:      j,
	})
	require.NoError(t, err)
	_, err = epochs.CreateEpochs(ctx)
	require.NoError(t, err)

	reg := registry.NewMemRegistry()
	require.NoError(t, reg.Register(types.DlpInfo{ID: 1, Name: "one", Status: types.DlpStatusEligible, TokenAddress: dlpToken, LpPositionID: 11, TreasuryAddress: dlp1Treasury}))
	require.NoError(t, reg.Register(types.DlpInfo{ID: 2, Name: "two", Status: types.DlpStatusEligible, TokenAddress: dlpToken, LpPositionID: 12, TreasuryAddress: dlp2Treasury}))

	engine := &fakeEngine{ledger: ledger, failOn: map[uint64]bool{}}
	sink := &memSink{}
	dist, err := New(Config{
		Address:                   distributorAddr,
		WVANA:                     wvana,
		RewardPercentage:          sdkmath.LegacyNewDecWithPrec(5, 1),
		MaximumSlippagePercentage: sdkmath.LegacyNewDecWithPrec(5, 2),
		Epochs:                    epochs,
		Registry:                  reg,
		Treasury:                  rewards,
		Engine:                    engine,
		Auth:                      roles,
		Blocks:                    blocks,
		Journal:                   j,
		Sink:                      sink,
	})
	require.NoError(t, err)

	return &testEnv{
		dist:     dist,
		epochs:   epochs,
		registry: reg,
		treasury: rewards,
		ledger:   ledger,
		engine:   engine,
		blocks:   blocks,
		journal:  j,
		roles:    roles,
		sink:     sink,
	}
}

// advanceToEpoch moves the block source to the start of epochID and creates the missing epochs.
func (e *testEnv) advanceToEpoch(t *testing.T, epochID uint64) {
	t.Helper()
	e.blocks.Set(e.epochs.EpochStartBlock(epochID))
	_, err := e.epochs.CreateEpochs(context.Background())
	require.NoError(t, err)
}

func (e *testEnv) finalize(t *testing.T, epochID uint64, rewards ...types.DlpReward) {
	t.Helper()
	require.NoError(t, e.epochs.FinalizeEpochRewards(context.Background(), epochID, rewards))
}

func reward(id types.DlpID, amount, penalty int64) types.DlpReward {
	return types.DlpReward{DlpID: id, RewardAmount: sdkmath.NewInt(amount), PenaltyAmount: sdkmath.NewInt(penalty)}
}

func requireIntEqual(t *testing.T, want int64, got sdkmath.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.True(t, got.Equal(sdkmath.NewInt(want)), append([]interface{}{"want %d, got %s", want, got}, msgAndArgs...)...)
}
