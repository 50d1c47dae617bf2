package distributor

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/dlprewards/internal/access"
	"github.com/elys-network/dlprewards/internal/registry"
	"github.com/elys-network/dlprewards/internal/types"
)

func TestInitializeEpochRewards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires finalized epoch", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(1_000))
		err := env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 3, 5)
		require.ErrorIs(t, err, ErrEpochNotFinalized)
		require.Equal(t, types.StageUninitialized, env.dist.Stage(1, 1))
	})

	t.Run("once per epoch", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(1_000))
		env.finalize(t, 1, reward(1, 500, 0))

		require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 3, 5))
		cfg, ok := env.dist.EpochRewardConfig(1)
		require.True(t, ok)
		require.Equal(t, types.RewardDistributionConfig{
			EpochID:                    1,
			DistributionIntervalBlocks: 10,
			NumberOfTranches:           3,
			RemediationWindowBlocks:    5,
		}, cfg)
		require.Equal(t, types.StageScheduled, env.dist.Stage(1, 1))
		require.Equal(t, []uint64{1}, env.dist.InitializedEpochs())

		require.ErrorIs(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 3, 5), ErrAlreadyInitialized)
	})

	t.Run("rejections", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(1_000))
		env.finalize(t, 1, reward(1, 500, 0))

		require.ErrorIs(t, env.dist.InitializeEpochRewards(ctx, stranger, 1, 10, 3, 5), access.ErrUnauthorized)
		require.ErrorIs(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 0, 5), ErrInvalidTrancheCount)
		require.Error(t, env.dist.InitializeEpochRewards(ctx, maintainer, 7, 10, 3, 5))

		_, ok := env.dist.EpochRewardConfig(1)
		require.False(t, ok)
	})
}

func TestDistributeRewards_FullUseSchedule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(10_000))

	require.NoError(t, env.epochs.AddEpochDlpBonusAmount(ctx, maintainer, 1, 1, sdkmath.NewInt(7)))
	env.finalize(t, 1, reward(1, 401, 20))
	require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 3, 5))
	total := env.epochs.EpochDlp(1, 1).TotalAllocation()
	requireIntEqual(t, 388, total)

	wantAmounts := []int64{129, 129, 130}
	for i, block := range []uint64{100, 110, 120} {
		env.blocks.Set(block)
		receipts, err := env.dist.DistributeRewards(ctx, deployer, 1, []types.DlpID{1})
		require.NoError(t, err)
		require.Len(t, receipts, 1)

		r := receipts[0]
		require.NotEmpty(t, r.ID)
		require.Equal(t, uint64(i+1), r.TrancheIndex)
		requireIntEqual(t, wantAmounts[i], r.TrancheAmount)
		require.True(t, r.UsedVanaAmount.Equal(r.TrancheAmount))
		require.True(t, r.RolledOverBonus.IsZero())
		require.Equal(t, block+10, r.NextEligibleBlock)

		if i == 0 {
			env.blocks.Set(105)
			_, err := env.dist.DistributeRewards(ctx, deployer, 1, []types.DlpID{1})
			require.ErrorIs(t, err, ErrNotYetEligible)
			require.Equal(t, types.StageDistributing, env.dist.Stage(1, 1))
		}
	}

	record := env.epochs.EpochDlp(1, 1)
	require.Equal(t, uint64(3), record.TranchesDistributed)
	require.True(t, record.TotalDistributedAmount.Equal(total))
	require.True(t, env.epochs.EpochDlp(2, 1).BonusAmount.IsZero())

	cursor := env.dist.DlpDistribution(1, 1)
	require.Equal(t, types.StageCompleted, cursor.Stage)
	require.True(t, cursor.TotalDistributed.Equal(total))

	requireIntEqual(t, 10_000-388, env.treasury.Balance(wvana))
	requireIntEqual(t, 388, env.ledger.BalanceOf(poolSink, wvana))
	require.True(t, env.ledger.BalanceOf(engineAddr, wvana).IsZero())
	require.Len(t, env.sink.receipts, 3)

	env.blocks.Set(200)
	_, err := env.dist.DistributeRewards(ctx, deployer, 1, []types.DlpID{1})
	require.ErrorIs(t, err, ErrDistributionCompleted)
}

func TestDistributeRewards_RolloverIsCapped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(10_000))
	env.engine.use = func(amount sdkmath.Int) sdkmath.Int { return amount.QuoRaw(2) }

	env.advanceToEpoch(t, 2)
	require.NoError(t, env.epochs.AddEpochDlpBonusAmount(ctx, maintainer, 2, 1, sdkmath.NewInt(10)))
	env.finalize(t, 1, reward(1, 100, 0))
	env.finalize(t, 2, reward(1, 30, 0))
	require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 1, 0))

	receipts, err := env.dist.DistributeRewards(ctx, deployer, 1, []types.DlpID{1})
	require.NoError(t, err)
	require.Len(t, receipts, 1)

	r := receipts[0]
	requireIntEqual(t, 100, r.TrancheAmount)
	requireIntEqual(t, 50, r.UsedVanaAmount)
	requireIntEqual(t, 50, r.SpareVana)
	requireIntEqual(t, 20, r.RolledOverBonus)
	requireIntEqual(t, 30, r.DroppedBonus)

	next := env.epochs.EpochDlp(2, 1)
	requireIntEqual(t, 30, next.BonusAmount)
	require.True(t, next.BonusAmount.LTE(next.RewardAmount))

	requireIntEqual(t, 10_000-50, env.treasury.Balance(wvana))
	require.Equal(t, rewardsAddr, env.engine.calls[0].SpareRecipient)
	require.Equal(t, dlp1Treasury, env.engine.calls[0].RewardRecipient)
	require.Equal(t, uint64(11), env.engine.calls[0].LpTokenID)
}

func TestDistributeRewards_RollbackOnSwapFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(10_000))
	env.finalize(t, 1, reward(1, 400, 0), reward(2, 600, 0))
	require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 2, 0))
	env.engine.failOn[12] = true

	_, err := env.dist.DistributeRewards(ctx, deployer, 1, []types.DlpID{1, 2})
	require.ErrorIs(t, err, errSwapReverted)

	for _, id := range []types.DlpID{1, 2} {
		record := env.epochs.EpochDlp(1, id)
		require.Zero(t, record.TranchesDistributed)
		require.True(t, record.TotalDistributedAmount.IsZero())
		require.Equal(t, types.StageScheduled, env.dist.Stage(1, id))
	}
	requireIntEqual(t, 10_000, env.treasury.Balance(wvana))
	require.True(t, env.ledger.BalanceOf(poolSink, wvana).IsZero())
	require.True(t, env.ledger.BalanceOf(engineAddr, wvana).IsZero())
	require.Empty(t, env.sink.receipts)
	require.Zero(t, env.journal.Depth())

	// the healthy DLP still progresses on its own
	receipts, err := env.dist.DistributeRewards(ctx, deployer, 1, []types.DlpID{1})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	requireIntEqual(t, 200, receipts[0].TrancheAmount)
}

func TestDistributeRewards_Rejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(t *testing.T, env *testEnv)
		dlpIDs  func() []types.DlpID
		wantErr error
	}{
		{
			name:    "not initialized",
			setup:   func(t *testing.T, env *testEnv) {},
			dlpIDs:  func() []types.DlpID { return []types.DlpID{1} },
			wantErr: ErrNotInitialized,
		},
		{
			name: "duplicate dlp",
			setup: func(t *testing.T, env *testEnv) {
				env.finalize(t, 1, reward(1, 400, 0))
				require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 2, 0))
			},
			dlpIDs:  func() []types.DlpID { return []types.DlpID{1, 1} },
			wantErr: ErrDuplicateDlp,
		},
		{
			name: "deregistered dlp",
			setup: func(t *testing.T, env *testEnv) {
				env.finalize(t, 1, reward(1, 400, 0))
				require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 2, 0))
				require.NoError(t, env.registry.SetStatus(1, types.DlpStatusDeregistered))
			},
			dlpIDs:  func() []types.DlpID { return []types.DlpID{1} },
			wantErr: ErrDlpNotEligible,
		},
		{
			name: "unknown dlp",
			setup: func(t *testing.T, env *testEnv) {
				env.finalize(t, 1, reward(1, 400, 0))
				require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 2, 0))
			},
			dlpIDs:  func() []types.DlpID { return []types.DlpID{9} },
			wantErr: registry.ErrDlpNotFound,
		},
		{
			name: "token mismatch",
			setup: func(t *testing.T, env *testEnv) {
				env.finalize(t, 1, reward(1, 400, 0))
				require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 2, 0))
				info, err := env.registry.Dlp(ctx, 1)
				require.NoError(t, err)
				info.TokenAddress = stranger
				require.NoError(t, env.registry.Register(info))
			},
			dlpIDs:  func() []types.DlpID { return []types.DlpID{1} },
			wantErr: ErrTokenMismatch,
		},
		{
			name: "distributor is not custodian",
			setup: func(t *testing.T, env *testEnv) {
				env.finalize(t, 1, reward(1, 400, 0))
				require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 2, 0))
				env.roles.Revoke(access.RoleCustodian, distributorAddr)
			},
			dlpIDs:  func() []types.DlpID { return []types.DlpID{1} },
			wantErr: access.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(10_000))
			tt.setup(t, env)

			_, err := env.dist.DistributeRewards(ctx, deployer, 1, tt.dlpIDs())
			require.ErrorIs(t, err, tt.wantErr)
			require.Zero(t, env.epochs.EpochDlp(1, 1).TranchesDistributed)
			requireIntEqual(t, 10_000, env.treasury.Balance(wvana))
		})
	}

	t.Run("unauthorized", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(10_000))
		_, err := env.dist.DistributeRewards(ctx, stranger, 1, []types.DlpID{1})
		require.ErrorIs(t, err, access.ErrUnauthorized)
	})
}

func TestDistributeRewards_ZeroAllocation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(10_000))
	env.finalize(t, 1, reward(1, 10, 50))
	require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 1, 0))

	receipts, err := env.dist.DistributeRewards(ctx, deployer, 1, []types.DlpID{1})
	require.NoError(t, err)
	require.True(t, receipts[0].TrancheAmount.IsZero())
	require.Empty(t, env.engine.calls)
	require.Equal(t, types.StageCompleted, env.dist.Stage(1, 1))
}

func TestSetRewardParameters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(10_000))

	require.ErrorIs(t, env.dist.SetRewardParameters(ctx, stranger, sdkmath.LegacyOneDec(), sdkmath.LegacyZeroDec()), access.ErrUnauthorized)
	require.ErrorIs(t, env.dist.SetRewardParameters(ctx, maintainer, sdkmath.LegacyNewDec(2), sdkmath.LegacyZeroDec()), ErrInvalidRewardParameter)

	pct, slippage := sdkmath.LegacyNewDecWithPrec(3, 1), sdkmath.LegacyNewDecWithPrec(1, 2)
	require.NoError(t, env.dist.SetRewardParameters(ctx, maintainer, pct, slippage))

	env.finalize(t, 1, reward(1, 100, 0))
	require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 1, 0))
	_, err := env.dist.DistributeRewards(ctx, deployer, 1, []types.DlpID{1})
	require.NoError(t, err)
	require.True(t, env.engine.calls[0].RewardPercentage.Equal(pct))
	require.True(t, env.engine.calls[0].MaximumSlippagePercentage.Equal(slippage))
}

func TestDistributeRewards_BonusLoweredMidSchedule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, sdkmath.NewInt(1_000), sdkmath.NewInt(10_000))

	require.NoError(t, env.epochs.AddEpochDlpBonusAmount(ctx, maintainer, 1, 1, sdkmath.NewInt(400)))
	env.finalize(t, 1, reward(1, 400, 0))
	require.NoError(t, env.dist.InitializeEpochRewards(ctx, maintainer, 1, 10, 4, 5))

	for _, block := range []uint64{100, 110} {
		env.blocks.Set(block)
		receipts, err := env.dist.DistributeRewards(ctx, deployer, 1, []types.DlpID{1})
		require.NoError(t, err)
		requireIntEqual(t, 200, receipts[0].TrancheAmount)
	}

	require.NoError(t, env.epochs.OverrideEpochDlpBonusAmount(ctx, maintainer, 1, 1, sdkmath.ZeroInt()))
	requireIntEqual(t, 400, env.epochs.EpochDlp(1, 1).TotalAllocation())

	for _, block := range []uint64{120, 130} {
		env.blocks.Set(block)
		receipts, err := env.dist.DistributeRewards(ctx, deployer, 1, []types.DlpID{1})
		require.NoError(t, err)
		require.True(t, receipts[0].TrancheAmount.IsZero(), "block %d paid %s", block, receipts[0].TrancheAmount)

		record := env.epochs.EpochDlp(1, 1)
		require.True(t, record.TotalDistributedAmount.LTE(record.TotalAllocation()),
			"distributed %s above allocation %s", record.TotalDistributedAmount, record.TotalAllocation())
	}

	requireIntEqual(t, 400, env.epochs.EpochDlp(1, 1).TotalDistributedAmount)
	require.Equal(t, types.StageCompleted, env.dist.Stage(1, 1))
	requireIntEqual(t, 10_000-400, env.treasury.Balance(wvana))
}

func TestTrancheAmount(t *testing.T) {
	t.Parallel()

	record := func(rewardAmt, bonus, penalty, tranches, distributed int64) types.EpochDlp {
		r := types.NewEpochDlp(1, 1)
		r.RewardAmount = sdkmath.NewInt(rewardAmt)
		r.BonusAmount = sdkmath.NewInt(bonus)
		r.PenaltyAmount = sdkmath.NewInt(penalty)
		r.TranchesDistributed = uint64(tranches)
		r.TotalDistributedAmount = sdkmath.NewInt(distributed)
		return r
	}

	tests := []struct {
		name   string
		record types.EpochDlp
		n      uint64
		want   int64
	}{
		{name: "first of three", record: record(10, 0, 0, 0, 0), n: 3, want: 3},
		{name: "second of three", record: record(10, 0, 0, 1, 3), n: 3, want: 3},
		{name: "final pays remainder", record: record(10, 0, 0, 2, 6), n: 3, want: 4},
		{name: "single tranche", record: record(7, 2, 1, 0, 0), n: 1, want: 8},
		{name: "penalty above gross", record: record(5, 0, 9, 0, 0), n: 2, want: 0},
		{name: "bonus raised before final", record: record(10, 5, 0, 2, 6), n: 3, want: 9},
		{name: "overpaid final", record: record(10, 0, 0, 1, 12), n: 2, want: 0},
		{name: "bonus lowered to what was paid", record: record(400, 0, 0, 2, 400), n: 4, want: 0},
		{name: "capped at remaining", record: record(10, 0, 0, 1, 8), n: 3, want: 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			requireIntEqual(t, tt.want, trancheAmount(tt.record, tt.n))
		})
	}
}

func TestNextEligibleBlock(t *testing.T) {
	t.Parallel()

	cfg := func(window uint64) types.RewardDistributionConfig {
		return types.RewardDistributionConfig{EpochID: 1, DistributionIntervalBlocks: 10, NumberOfTranches: 4, RemediationWindowBlocks: window}
	}

	tests := []struct {
		name      string
		scheduled uint64
		block     uint64
		window    uint64
		want      uint64
	}{
		{name: "first tranche", scheduled: 0, block: 100, window: 5, want: 110},
		{name: "on time", scheduled: 110, block: 110, window: 5, want: 120},
		{name: "late within window", scheduled: 110, block: 113, window: 5, want: 123},
		{name: "late beyond window", scheduled: 110, block: 130, window: 5, want: 125},
		{name: "no window keeps schedule", scheduled: 110, block: 130, window: 0, want: 120},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, nextEligibleBlock(tt.scheduled, tt.block, cfg(tt.window)))
		})
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	_, err := New(Config{RewardPercentage: sdkmath.LegacyNewDec(2), MaximumSlippagePercentage: sdkmath.LegacyZeroDec()})
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.ErrorIs(t, err, ErrInvalidRewardParameter)
}
