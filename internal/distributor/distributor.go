// Package distributor pays finalized epoch allocations out in block-paced tranches through the
// AMM engine and rolls the unused part of each tranche into the next epoch's bonus.
package distributor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/dlprewards/internal/access"
	"github.com/elys-network/dlprewards/internal/amm"
	"github.com/elys-network/dlprewards/internal/chain"
	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/logger"
	"github.com/elys-network/dlprewards/internal/metrics"
	"github.com/elys-network/dlprewards/internal/registry"
	"github.com/elys-network/dlprewards/internal/types"
	"github.com/elys-network/dlprewards/internal/utils"
)

var (
	ErrInvalidConfig          = errors.New("invalid distributor config")
	ErrEpochNotFinalized      = errors.New("epoch is not finalized")
	ErrAlreadyInitialized     = errors.New("epoch rewards already initialized")
	ErrNotInitialized         = errors.New("epoch rewards not initialized")
	ErrInvalidTrancheCount    = errors.New("number of tranches must be positive")
	ErrNotYetEligible         = errors.New("dlp is not yet eligible for its next tranche")
	ErrDistributionCompleted  = errors.New("all tranches already distributed")
	ErrDlpNotEligible         = errors.New("dlp is not eligible for rewards")
	ErrDuplicateDlp           = errors.New("duplicate dlp in distribution")
	ErrTokenMismatch          = errors.New("position token does not match the registered dlp token")
	ErrInvalidRewardParameter = errors.New("invalid reward parameter")
)

// EpochLedger is the part of the epoch manager the distributor reads and writes.
type EpochLedger interface {
	Epoch(id uint64) (types.Epoch, error)
	EpochDlp(epochID uint64, dlpID types.DlpID) types.EpochDlp
	RecordTranche(ctx context.Context, epochID uint64, dlpID types.DlpID, amount sdkmath.Int) (types.EpochDlp, error)
	RolloverBonus(ctx context.Context, epochID uint64, dlpID types.DlpID, unused sdkmath.Int) (sdkmath.Int, error)
}

// Treasury holds undistributed VANA. Transfers out require the custodian role.
type Treasury interface {
	Address() common.Address
	Transfer(ctx context.Context, caller, to, asset common.Address, amount sdkmath.Int) error
}

// SwapEngine converts a funded tranche into token rewards and liquidity.
type SwapEngine interface {
	Address() common.Address
	SplitRewardSwap(ctx context.Context, params amm.SplitRewardSwapParams) (amm.SplitRewardSwapResult, error)
}

// ReceiptSink receives the receipts of a committed distribution call.
type ReceiptSink interface {
	SaveTrancheReceipts(ctx context.Context, receipts []types.TrancheReceipt) error
}

type Config struct {
	// Address is the distributor's own identity; it must be a custodian of Treasury.
	Address                   common.Address
	WVANA                     common.Address
	RewardPercentage          sdkmath.LegacyDec
	MaximumSlippagePercentage sdkmath.LegacyDec

	Epochs   EpochLedger
	Registry registry.Registry
	Treasury Treasury
	Engine   SwapEngine
	Auth     access.Authorizer
	Blocks   chain.BlockSource
	Journal  *journal.Journal
	Sink     ReceiptSink // optional
}

func validateConfig(cfg Config) error {
	var errs []error
	if cfg.Address == (common.Address{}) {
		errs = append(errs, errors.New("distributor address is required"))
	}
	if cfg.WVANA == (common.Address{}) {
		errs = append(errs, errors.New("wrapped VANA address is required"))
	}
	if err := validateRewardParameters(cfg.RewardPercentage, cfg.MaximumSlippagePercentage); err != nil {
		errs = append(errs, err)
	}
	if cfg.Epochs == nil {
		errs = append(errs, errors.New("epoch ledger is required"))
	}
	if cfg.Registry == nil {
		errs = append(errs, errors.New("registry is required"))
	}
	if cfg.Treasury == nil {
		errs = append(errs, errors.New("treasury is required"))
	}
	if cfg.Engine == nil {
		errs = append(errs, errors.New("swap engine is required"))
	}
	if cfg.Auth == nil {
		errs = append(errs, errors.New("authorizer is required"))
	}
	if cfg.Blocks == nil {
		errs = append(errs, errors.New("block source is required"))
	}
	if cfg.Journal == nil {
		errs = append(errs, errors.New("journal is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func validateRewardParameters(rewardPercentage, maxSlippage sdkmath.LegacyDec) error {
	var errs []error
	if err := utils.ValidateFraction("reward percentage", rewardPercentage); err != nil {
		errs = append(errs, err)
	}
	if err := utils.ValidateFraction("maximum slippage", maxSlippage); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRewardParameter, errors.Join(errs...))
	}
	return nil
}

type scheduleKey struct {
	epochID uint64
	dlpID   types.DlpID
}

// Distributor runs the tranche schedule of every initialized epoch.
type Distributor struct {
	mu               sync.RWMutex
	cfg              Config
	rewardPercentage sdkmath.LegacyDec
	maxSlippage      sdkmath.LegacyDec
	configs          map[uint64]types.RewardDistributionConfig
	cursors          map[scheduleKey]types.DlpDistribution
	logger           zerolog.Logger
}

func New(cfg Config) (*Distributor, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Distributor{
		cfg:              cfg,
		rewardPercentage: cfg.RewardPercentage,
		maxSlippage:      cfg.MaximumSlippagePercentage,
		configs:          make(map[uint64]types.RewardDistributionConfig),
		cursors:          make(map[scheduleKey]types.DlpDistribution),
		logger:           logger.GetForComponent("tranche_distributor"),
	}, nil
}

// InitializeEpochRewards sets the tranche schedule of a finalized epoch. It can run once per epoch.
func (d *Distributor) InitializeEpochRewards(_ context.Context, caller common.Address, epochID, intervalBlocks, numberOfTranches, remediationWindowBlocks uint64) error {
	if err := d.cfg.Auth.Authorize(caller, access.RoleMaintainer); err != nil {
		return err
	}
	if numberOfTranches == 0 {
		return ErrInvalidTrancheCount
	}
	e, err := d.cfg.Epochs.Epoch(epochID)
	if err != nil {
		return err
	}
	if !e.IsFinalized {
		return fmt.Errorf("%w: %d", ErrEpochNotFinalized, epochID)
	}

	err = d.cfg.Journal.Atomic(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.configs[epochID]; ok {
			return fmt.Errorf("%w: %d", ErrAlreadyInitialized, epochID)
		}
		d.configs[epochID] = types.RewardDistributionConfig{
			EpochID:                    epochID,
			DistributionIntervalBlocks: intervalBlocks,
			NumberOfTranches:           numberOfTranches,
			RemediationWindowBlocks:    remediationWindowBlocks,
		}
		d.cfg.Journal.Record(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.configs, epochID)
		})
		return nil
	})
	if err != nil {
		return err
	}

	d.logger.Info().
		Uint64("epoch_id", epochID).
		Uint64("interval_blocks", intervalBlocks).
		Uint64("tranches", numberOfTranches).
		Uint64("remediation_window_blocks", remediationWindowBlocks).
		Msg("Epoch rewards initialized")
	return nil
}

// SetRewardParameters changes the reward share and slippage bound used by later tranches.
func (d *Distributor) SetRewardParameters(_ context.Context, caller common.Address, rewardPercentage, maxSlippage sdkmath.LegacyDec) error {
	if err := d.cfg.Auth.Authorize(caller, access.RoleMaintainer); err != nil {
		return err
	}
	if err := validateRewardParameters(rewardPercentage, maxSlippage); err != nil {
		return err
	}
	return d.cfg.Journal.Atomic(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		prevReward, prevSlippage := d.rewardPercentage, d.maxSlippage
		d.rewardPercentage, d.maxSlippage = rewardPercentage, maxSlippage
		d.cfg.Journal.Record(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.rewardPercentage, d.maxSlippage = prevReward, prevSlippage
		})
		d.logger.Info().
			Str("reward_percentage", rewardPercentage.String()).
			Str("max_slippage", maxSlippage.String()).
			Msg("Reward parameters updated")
		return nil
	})
}

// DistributeRewards pays the next tranche of every listed DLP. Either every tranche of the call
// lands or none does.
func (d *Distributor) DistributeRewards(ctx context.Context, caller common.Address, epochID uint64, dlpIDs []types.DlpID) ([]types.TrancheReceipt, error) {
	if err := d.cfg.Auth.Authorize(caller, access.RoleRewardDeployer); err != nil {
		return nil, err
	}

	var receipts []types.TrancheReceipt
	err := d.cfg.Journal.Atomic(func() error {
		var err error
		receipts, err = d.distributeRewards(ctx, epochID, dlpIDs)
		return err
	})
	if err != nil {
		metrics.DistributionCallsTotal.WithLabelValues("failed").Inc()
		d.logger.Warn().
			Err(err).
			Uint64("epoch_id", epochID).
			Interface("dlp_ids", dlpIDs).
			Msg("Distribution reverted")
		return nil, err
	}
	metrics.DistributionCallsTotal.WithLabelValues("success").Inc()

	for _, r := range receipts {
		metrics.TranchesDistributedTotal.WithLabelValues(strconv.FormatUint(uint64(r.DlpID), 10)).Inc()
		observeVana("tranche", r.TrancheAmount)
		observeVana("used", r.UsedVanaAmount)
		observeVana("spare", r.SpareVana)
		observeVana("rolled_over", r.RolledOverBonus)
		observeVana("dropped", r.DroppedBonus)
		d.logger.Info().
			Str("receipt_id", r.ID).
			Uint64("epoch_id", r.EpochID).
			Uint64("dlp_id", uint64(r.DlpID)).
			Uint64("tranche", r.TrancheIndex).
			Str("amount", r.TrancheAmount.String()).
			Str("used_vana", r.UsedVanaAmount.String()).
			Str("rolled_over", r.RolledOverBonus.String()).
			Str("dropped", r.DroppedBonus.String()).
			Uint64("next_eligible_block", r.NextEligibleBlock).
			Msg("Tranche distributed")
	}

	if d.cfg.Sink != nil && len(receipts) > 0 {
		if err := d.cfg.Sink.SaveTrancheReceipts(ctx, receipts); err != nil {
			d.logger.Error().Err(err).Uint64("epoch_id", epochID).Msg("Failed to save tranche receipts")
		}
	}
	return receipts, nil
}

func (d *Distributor) distributeRewards(ctx context.Context, epochID uint64, dlpIDs []types.DlpID) ([]types.TrancheReceipt, error) {
	d.mu.RLock()
	cfg, ok := d.configs[epochID]
	rewardPercentage, maxSlippage := d.rewardPercentage, d.maxSlippage
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotInitialized, epochID)
	}

	blockNumber, err := d.cfg.Blocks.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read block number: %w", err)
	}

	seen := make(map[types.DlpID]struct{}, len(dlpIDs))
	receipts := make([]types.TrancheReceipt, 0, len(dlpIDs))
	for _, dlpID := range dlpIDs {
		if _, dup := seen[dlpID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateDlp, dlpID)
		}
		seen[dlpID] = struct{}{}

		receipt, err := d.distributeTranche(ctx, cfg, dlpID, blockNumber, rewardPercentage, maxSlippage)
		if err != nil {
			return nil, fmt.Errorf("dlp %d: %w", dlpID, err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func (d *Distributor) distributeTranche(ctx context.Context, cfg types.RewardDistributionConfig, dlpID types.DlpID, blockNumber uint64, rewardPercentage, maxSlippage sdkmath.LegacyDec) (types.TrancheReceipt, error) {
	epochID := cfg.EpochID
	info, err := d.cfg.Registry.Dlp(ctx, dlpID)
	if err != nil {
		return types.TrancheReceipt{}, err
	}
	if !info.IsEligible() {
		return types.TrancheReceipt{}, fmt.Errorf("%w: status %s", ErrDlpNotEligible, info.Status)
	}

	cursor := d.cursor(epochID, dlpID)
	if cursor.TranchesDistributed >= cfg.NumberOfTranches {
		return types.TrancheReceipt{}, ErrDistributionCompleted
	}
	if cursor.NextEligibleBlock != 0 && blockNumber < cursor.NextEligibleBlock {
		return types.TrancheReceipt{}, fmt.Errorf("%w: next tranche at block %d, current block %d", ErrNotYetEligible, cursor.NextEligibleBlock, blockNumber)
	}

	record := d.cfg.Epochs.EpochDlp(epochID, dlpID)
	amount := trancheAmount(record, cfg.NumberOfTranches)

	receipt := types.TrancheReceipt{
		ID:                uuid.New().String(),
		EpochID:           epochID,
		DlpID:             dlpID,
		TrancheIndex:      cursor.TranchesDistributed + 1,
		BlockNumber:       blockNumber,
		TrancheAmount:     amount,
		TokenRewardAmount: sdkmath.ZeroInt(),
		SpareToken:        sdkmath.ZeroInt(),
		SpareVana:         sdkmath.ZeroInt(),
		UsedVanaAmount:    sdkmath.ZeroInt(),
		LiquidityDelta:    sdkmath.ZeroInt(),
		RolledOverBonus:   sdkmath.ZeroInt(),
		DroppedBonus:      sdkmath.ZeroInt(),
		Timestamp:         time.Now().UTC(),
	}

	if amount.IsPositive() {
		engine := d.cfg.Engine.Address()
		if err := d.cfg.Treasury.Transfer(ctx, d.cfg.Address, engine, d.cfg.WVANA, amount); err != nil {
			return types.TrancheReceipt{}, fmt.Errorf("failed to fund engine: %w", err)
		}

		start := time.Now()
		result, err := d.cfg.Engine.SplitRewardSwap(ctx, amm.SplitRewardSwapParams{
			LpTokenID:                 info.LpPositionID,
			AmountIn:                  amount,
			RewardPercentage:          rewardPercentage,
			MaximumSlippagePercentage: maxSlippage,
			RewardRecipient:           info.TreasuryAddress,
			SpareRecipient:            d.cfg.Treasury.Address(),
		})
		metrics.SwapDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return types.TrancheReceipt{}, fmt.Errorf("split reward swap: %w", err)
		}
		if info.TokenAddress != (common.Address{}) && result.Token != info.TokenAddress {
			return types.TrancheReceipt{}, fmt.Errorf("%w: position pays %s, dlp token %s", ErrTokenMismatch, result.Token.Hex(), info.TokenAddress.Hex())
		}

		receipt.TokenRewardAmount = result.TokenRewardAmount
		receipt.SpareToken = result.SpareToken
		receipt.SpareVana = result.SpareVana
		receipt.UsedVanaAmount = result.UsedVanaAmount
		receipt.LiquidityDelta = utils.IntFromBig(result.LiquidityDelta)
	}

	if _, err := d.cfg.Epochs.RecordTranche(ctx, epochID, dlpID, amount); err != nil {
		return types.TrancheReceipt{}, err
	}

	if unused := utils.SaturatingSub(amount, receipt.UsedVanaAmount); unused.IsPositive() {
		credited, err := d.cfg.Epochs.RolloverBonus(ctx, epochID+1, dlpID, unused)
		if err != nil {
			return types.TrancheReceipt{}, fmt.Errorf("failed to roll over unused amount: %w", err)
		}
		receipt.RolledOverBonus = credited
		receipt.DroppedBonus = unused.Sub(credited)
	}

	next := nextEligibleBlock(cursor.NextEligibleBlock, blockNumber, cfg)
	receipt.NextEligibleBlock = next
	d.advanceCursor(cfg, cursor, amount, next)
	return receipt, nil
}

// trancheAmount is floor(total/N) for every tranche but the last, which pays whatever remains.
// No tranche pays more than what remains, so a bonus lowered mid-schedule cannot overdraw.
func trancheAmount(record types.EpochDlp, numberOfTranches uint64) sdkmath.Int {
	total := record.TotalAllocation()
	remaining := utils.SaturatingSub(total, record.TotalDistributedAmount)
	if record.TranchesDistributed+1 >= numberOfTranches {
		return remaining
	}
	return sdkmath.MinInt(total.Quo(sdkmath.NewIntFromUint64(numberOfTranches)), remaining)
}

// nextEligibleBlock returns scheduled + min(blockNumber-scheduled, window) + interval. Lateness
// inside the remediation window pushes the next slot back by the same amount; lateness beyond it
// pushes it back by the window only. The first tranche schedules from blockNumber.
func nextEligibleBlock(scheduled, blockNumber uint64, cfg types.RewardDistributionConfig) uint64 {
	if scheduled == 0 {
		return blockNumber + cfg.DistributionIntervalBlocks
	}
	lateness := blockNumber - scheduled
	if lateness > cfg.RemediationWindowBlocks {
		lateness = cfg.RemediationWindowBlocks
	}
	return scheduled + lateness + cfg.DistributionIntervalBlocks
}

func (d *Distributor) cursor(epochID uint64, dlpID types.DlpID) types.DlpDistribution {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.cursors[scheduleKey{epochID, dlpID}]; ok {
		return c
	}
	return types.DlpDistribution{
		EpochID:          epochID,
		DlpID:            dlpID,
		TotalDistributed: sdkmath.ZeroInt(),
		Stage:            types.StageScheduled,
	}
}

func (d *Distributor) advanceCursor(cfg types.RewardDistributionConfig, prev types.DlpDistribution, amount sdkmath.Int, next uint64) {
	key := scheduleKey{prev.EpochID, prev.DlpID}
	updated := prev
	updated.TranchesDistributed++
	updated.TotalDistributed = prev.TotalDistributed.Add(amount)
	updated.NextEligibleBlock = next
	updated.Stage = stageOf(cfg, updated.TranchesDistributed)

	d.mu.Lock()
	old, existed := d.cursors[key]
	d.cursors[key] = updated
	d.mu.Unlock()
	d.cfg.Journal.Record(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if existed {
			d.cursors[key] = old
		} else {
			delete(d.cursors, key)
		}
	})
}

func stageOf(cfg types.RewardDistributionConfig, tranches uint64) types.DistributionStage {
	switch {
	case !cfg.IsInitialized():
		return types.StageUninitialized
	case tranches == 0:
		return types.StageScheduled
	case tranches < cfg.NumberOfTranches:
		return types.StageDistributing
	default:
		return types.StageCompleted
	}
}

// EpochRewardConfig returns the epoch's schedule and whether it was initialized.
func (d *Distributor) EpochRewardConfig(epochID uint64) (types.RewardDistributionConfig, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg, ok := d.configs[epochID]
	return cfg, ok
}

// DlpDistribution returns the DLP's schedule cursor within the epoch.
func (d *Distributor) DlpDistribution(epochID uint64, dlpID types.DlpID) types.DlpDistribution {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg := d.configs[epochID]
	if c, ok := d.cursors[scheduleKey{epochID, dlpID}]; ok {
		return c
	}
	return types.DlpDistribution{
		EpochID:          epochID,
		DlpID:            dlpID,
		TotalDistributed: sdkmath.ZeroInt(),
		Stage:            stageOf(cfg, 0),
	}
}

func (d *Distributor) Stage(epochID uint64, dlpID types.DlpID) types.DistributionStage {
	return d.DlpDistribution(epochID, dlpID).Stage
}

// InitializedEpochs returns the ids of every epoch with a schedule, ascending.
func (d *Distributor) InitializedEpochs() []uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]uint64, 0, len(d.configs))
	for id := range d.configs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RewardParameters returns the reward share and slippage bound applied to new tranches.
func (d *Distributor) RewardParameters() (rewardPercentage, maxSlippage sdkmath.LegacyDec) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rewardPercentage, d.maxSlippage
}

// observeVana adds an 18-decimal VANA amount to the counter in whole tokens.
func observeVana(kind string, amount sdkmath.Int) {
	if amount.IsNil() || !amount.IsPositive() {
		return
	}
	v, err := utils.SDKIntToFloat64(amount, 18)
	if err != nil {
		return
	}
	metrics.TrancheVana.WithLabelValues(kind).Add(v)
}
