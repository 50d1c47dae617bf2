package epoch

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/dlprewards/internal/access"
	"github.com/elys-network/dlprewards/internal/chain"
	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/types"
)

var (
	maintainer = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func newTestManager(t *testing.T) (*Manager, *chain.ManualBlockSource, *journal.Journal) {
	t.Helper()
	roles := access.NewRoles()
	roles.Grant(access.RoleMaintainer, maintainer)
	blocks := chain.NewManualBlockSource(0)
	j := journal.New()
	m, err := NewManager(Config{
		StartBlock:   100,
		DaySize:      10,
		EpochSize:    3,
		RewardAmount: sdkmath.NewInt(1_000),
		Auth:         roles,
		Blocks:       blocks,
		Journal:      j,
	})
	require.NoError(t, err)
	return m, blocks, j
}

func TestCreateEpochs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("nothing before start", func(t *testing.T) {
		t.Parallel()
		m, _, _ := newTestManager(t)
		created, err := m.CreateEpochsUntilBlockNumber(ctx, 99)
		require.NoError(t, err)
		require.Zero(t, created)
		require.Zero(t, m.EpochsCount())
	})

	t.Run("contiguous windows", func(t *testing.T) {
		t.Parallel()
		m, blocks, _ := newTestManager(t)
		blocks.Set(160)
		created, err := m.CreateEpochs(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, created)

		epochs := m.Epochs()
		require.Len(t, epochs, 3)
		for i, e := range epochs {
			require.Equal(t, uint64(i+1), e.ID)
			require.Equal(t, uint64(100+30*i), e.StartBlock)
			require.Equal(t, uint64(129+30*i), e.EndBlock)
			require.True(t, e.RewardAmount.Equal(sdkmath.NewInt(1_000)))
			require.False(t, e.IsFinalized)
		}

		created, err = m.CreateEpochs(ctx)
		require.NoError(t, err)
		require.Zero(t, created)
	})

	t.Run("ceiling fails atomically", func(t *testing.T) {
		t.Parallel()
		m, _, _ := newTestManager(t)
		_, err := m.CreateEpochsUntilBlockNumber(ctx, 100)
		require.NoError(t, err)
		require.NoError(t, m.SetLastEpoch(ctx, maintainer, 2))

		_, err = m.CreateEpochsUntilBlockNumber(ctx, 200)
		require.ErrorIs(t, err, ErrLastEpochExceeded)
		var exceeded *LastEpochExceededError
		require.True(t, errors.As(err, &exceeded))
		require.Equal(t, uint64(2), exceeded.Cap)
		require.Equal(t, uint64(1), m.EpochsCount())

		created, err := m.CreateEpochsUntilBlockNumber(ctx, m.EpochStartBlock(2))
		require.NoError(t, err)
		require.Equal(t, 1, created)
	})
}

func TestSetLastEpoch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	require.ErrorIs(t, m.SetLastEpoch(ctx, stranger, 5), access.ErrUnauthorized)
	require.ErrorIs(t, m.SetLastEpoch(ctx, maintainer, 0), ErrInvalidEpoch)
	require.NoError(t, m.SetLastEpoch(ctx, maintainer, 5))
	require.Equal(t, uint64(5), m.LastEpoch())
	require.ErrorIs(t, m.SetLastEpoch(ctx, maintainer, 6), ErrLastEpochAlreadySet)
}

func TestBonusAddAndOverride(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	_, err := m.CreateEpochsUntilBlockNumber(ctx, 130)
	require.NoError(t, err)
	require.Equal(t, uint64(2), m.EpochsCount())

	dlp := types.DlpID(7)

	require.ErrorIs(t, m.AddEpochDlpBonusAmount(ctx, maintainer, 1, dlp, sdkmath.NewInt(5)), ErrInvalidEpoch)
	require.ErrorIs(t, m.AddEpochDlpBonusAmount(ctx, maintainer, 3, dlp, sdkmath.NewInt(5)), ErrInvalidEpoch)
	require.ErrorIs(t, m.AddEpochDlpBonusAmount(ctx, stranger, 2, dlp, sdkmath.NewInt(5)), access.ErrUnauthorized)
	require.ErrorIs(t, m.AddEpochDlpBonusAmount(ctx, maintainer, 2, dlp, sdkmath.NewInt(-1)), ErrInvalidAmount)

	require.NoError(t, m.AddEpochDlpBonusAmount(ctx, maintainer, 2, dlp, sdkmath.NewInt(3)))
	require.NoError(t, m.AddEpochDlpBonusAmount(ctx, maintainer, 2, dlp, sdkmath.NewInt(4)))
	require.True(t, m.EpochDlp(2, dlp).BonusAmount.Equal(sdkmath.NewInt(7)))
	require.Equal(t, []types.DlpID{dlp}, m.EpochBonusDlpIDs(2))
	require.Equal(t, []types.DlpID{dlp}, m.EpochDlpIDs(2))

	require.NoError(t, m.OverrideEpochDlpBonusAmount(ctx, maintainer, 2, dlp, sdkmath.NewInt(2)))
	require.True(t, m.EpochDlp(2, dlp).BonusAmount.Equal(sdkmath.NewInt(2)))

	require.NoError(t, m.OverrideEpochDlpBonusAmount(ctx, maintainer, 2, dlp, sdkmath.ZeroInt()))
	require.True(t, m.EpochDlp(2, dlp).BonusAmount.IsZero())
	require.Empty(t, m.EpochBonusDlpIDs(2))
	require.Empty(t, m.EpochDlpIDs(2))

	// overrides may target past epochs
	require.NoError(t, m.OverrideEpochDlpBonusAmount(ctx, maintainer, 1, dlp, sdkmath.NewInt(9)))
	require.ErrorIs(t, m.OverrideEpochDlpBonusAmount(ctx, maintainer, 3, dlp, sdkmath.NewInt(9)), ErrEpochNotFound)
	require.ErrorIs(t, m.OverrideEpochDlpBonusAmount(ctx, stranger, 1, dlp, sdkmath.NewInt(9)), access.ErrUnauthorized)
}

func TestFinalizeEpochRewards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	_, err := m.CreateEpochsUntilBlockNumber(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, m.AddEpochDlpBonusAmount(ctx, maintainer, 1, 9, sdkmath.NewInt(50)))

	rewards := []types.DlpReward{
		{DlpID: 1, RewardAmount: sdkmath.NewInt(400), PenaltyAmount: sdkmath.NewInt(10)},
		{DlpID: 2, RewardAmount: sdkmath.NewInt(600), PenaltyAmount: sdkmath.ZeroInt()},
	}
	require.NoError(t, m.FinalizeEpochRewards(ctx, 1, rewards))

	e, err := m.Epoch(1)
	require.NoError(t, err)
	require.True(t, e.IsFinalized)
	require.True(t, m.EpochDlp(1, 1).RewardAmount.Equal(sdkmath.NewInt(400)))
	require.True(t, m.EpochDlp(1, 1).PenaltyAmount.Equal(sdkmath.NewInt(10)))
	require.Equal(t, []types.DlpID{1, 2, 9}, m.EpochDlpIDs(1))

	require.ErrorIs(t, m.FinalizeEpochRewards(ctx, 1, rewards), ErrEpochAlreadyFinalized)
	require.ErrorIs(t, m.FinalizeEpochRewards(ctx, 2, rewards), ErrEpochNotFound)
}

func TestFinalizeEpochRewardsRejectsDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	_, err := m.CreateEpochsUntilBlockNumber(ctx, 100)
	require.NoError(t, err)

	err = m.FinalizeEpochRewards(ctx, 1, []types.DlpReward{
		{DlpID: 1, RewardAmount: sdkmath.NewInt(1), PenaltyAmount: sdkmath.ZeroInt()},
		{DlpID: 1, RewardAmount: sdkmath.NewInt(2), PenaltyAmount: sdkmath.ZeroInt()},
	})
	require.ErrorIs(t, err, ErrDuplicateDlp)

	e, err := m.Epoch(1)
	require.NoError(t, err)
	require.False(t, e.IsFinalized)
	require.True(t, m.EpochDlp(1, 1).RewardAmount.IsZero())
	require.Empty(t, m.EpochDlpIDs(1))
}

func TestRolloverBonusIsCapped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	_, err := m.CreateEpochsUntilBlockNumber(ctx, 130)
	require.NoError(t, err)
	require.NoError(t, m.FinalizeEpochRewards(ctx, 2, []types.DlpReward{
		{DlpID: 1, RewardAmount: sdkmath.NewInt(10), PenaltyAmount: sdkmath.ZeroInt()},
	}))

	credited, err := m.RolloverBonus(ctx, 2, 1, sdkmath.NewInt(4))
	require.NoError(t, err)
	require.True(t, credited.Equal(sdkmath.NewInt(4)))

	credited, err = m.RolloverBonus(ctx, 2, 1, sdkmath.NewInt(100))
	require.NoError(t, err)
	require.True(t, credited.Equal(sdkmath.NewInt(6)))
	require.True(t, m.EpochDlp(2, 1).BonusAmount.Equal(sdkmath.NewInt(10)))

	credited, err = m.RolloverBonus(ctx, 2, 1, sdkmath.NewInt(1))
	require.NoError(t, err)
	require.True(t, credited.IsZero())
	require.True(t, m.EpochDlp(2, 1).BonusAmount.Equal(sdkmath.NewInt(10)))

	// without a reward in the target epoch nothing can be credited
	credited, err = m.RolloverBonus(ctx, 3, 1, sdkmath.NewInt(5))
	require.NoError(t, err)
	require.True(t, credited.IsZero())
	require.Empty(t, m.EpochBonusDlpIDs(3))
}

func TestWritesRevertWithEnclosingCall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, j := newTestManager(t)
	_, err := m.CreateEpochsUntilBlockNumber(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, m.FinalizeEpochRewards(ctx, 1, []types.DlpReward{
		{DlpID: 1, RewardAmount: sdkmath.NewInt(100), PenaltyAmount: sdkmath.ZeroInt()},
	}))

	errAbort := errors.New("abort")
	err = j.Atomic(func() error {
		if _, err := m.RecordTranche(ctx, 1, 1, sdkmath.NewInt(50)); err != nil {
			return err
		}
		if _, err := m.CreateEpochsUntilBlockNumber(ctx, 130); err != nil {
			return err
		}
		if _, err := m.RolloverBonus(ctx, 1, 1, sdkmath.NewInt(20)); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	record := m.EpochDlp(1, 1)
	require.Zero(t, record.TranchesDistributed)
	require.True(t, record.TotalDistributedAmount.IsZero())
	require.True(t, record.BonusAmount.IsZero())
	require.Equal(t, uint64(1), m.EpochsCount())
	require.Empty(t, m.EpochBonusDlpIDs(1))
}

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()
	_, err := NewManager(Config{RewardAmount: sdkmath.NewInt(1)})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
