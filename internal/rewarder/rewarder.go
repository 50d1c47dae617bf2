// Package rewarder drives the reward lifecycle on a timer: it creates epochs as blocks pass,
// schedules the tranches of finalized epochs and pays every tranche that has come due.
package rewarder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/dlprewards/internal/chain"
	"github.com/elys-network/dlprewards/internal/distributor"
	"github.com/elys-network/dlprewards/internal/epoch"
	"github.com/elys-network/dlprewards/internal/logger"
	"github.com/elys-network/dlprewards/internal/metrics"
	"github.com/elys-network/dlprewards/internal/types"
)

var ErrInvalidConfig = errors.New("invalid rewarder config")

// Epochs is the part of the epoch manager the rewarder drives.
type Epochs interface {
	CreateEpochsUntilBlockNumber(ctx context.Context, blockNumber uint64) (int, error)
	EpochStartBlock(id uint64) uint64
	Epochs() []types.Epoch
	EpochDlpIDs(epochID uint64) []types.DlpID
}

// Distributor is the part of the tranche distributor the rewarder drives.
type Distributor interface {
	EpochRewardConfig(epochID uint64) (types.RewardDistributionConfig, bool)
	InitializeEpochRewards(ctx context.Context, caller common.Address, epochID, intervalBlocks, numberOfTranches, remediationWindowBlocks uint64) error
	DistributeRewards(ctx context.Context, caller common.Address, epochID uint64, dlpIDs []types.DlpID) ([]types.TrancheReceipt, error)
	DlpDistribution(epochID uint64, dlpID types.DlpID) types.DlpDistribution
}

// CycleStore persists cycle numbers and reports. Optional.
type CycleStore interface {
	IncrementCycleNumber(ctx context.Context) (int, error)
	SaveCycle(ctx context.Context, report types.CycleReport) error
}

// Schedule is applied to finalized epochs that nobody initialized by hand.
type Schedule struct {
	IntervalBlocks          uint64
	NumberOfTranches        uint64
	RemediationWindowBlocks uint64
}

type Config struct {
	// Caller needs the maintainer role to initialize epochs and the reward deployer role to distribute.
	Caller      common.Address
	Epochs      Epochs
	Distributor Distributor
	Blocks      chain.BlockSource
	// AutoInitialize is nil when epochs are only initialized by hand.
	AutoInitialize *Schedule
	Store          CycleStore
}

func validateConfig(cfg Config) error {
	var errs []error
	if cfg.Caller == (common.Address{}) {
		errs = append(errs, errors.New("caller is required"))
	}
	if cfg.Epochs == nil {
		errs = append(errs, errors.New("epochs are required"))
	}
	if cfg.Distributor == nil {
		errs = append(errs, errors.New("distributor is required"))
	}
	if cfg.Blocks == nil {
		errs = append(errs, errors.New("block source is required"))
	}
	if cfg.AutoInitialize != nil && cfg.AutoInitialize.NumberOfTranches == 0 {
		errs = append(errs, errors.New("auto-initialize schedule needs at least one tranche"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Rewarder runs reward cycles.
type Rewarder struct {
	cfg        Config
	logger     zerolog.Logger
	cycleCount int
}

func New(cfg Config) (*Rewarder, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Rewarder{
		cfg:    cfg,
		logger: logger.GetForComponent("rewarder"),
	}, nil
}

// RunLoop runs a cycle immediately and then every interval until ctx is cancelled.
func (r *Rewarder) RunLoop(ctx context.Context, interval time.Duration) {
	r.logger.Info().
		Dur("interval", interval).
		Msg("Starting rewarder loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Rewarder loop stopped due to context cancellation")
			return
		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

// RunCycle executes one cycle and returns its report. Failures of single tranches are counted
// and logged; only an unreadable block number or a failed epoch creation aborts the cycle.
func (r *Rewarder) RunCycle(ctx context.Context) types.CycleReport {
	r.cycleCount++
	report := types.CycleReport{
		ID:        uuid.New().String(),
		Number:    r.cycleNumber(ctx),
		StartedAt: time.Now().UTC(),
	}
	cycleLogger := r.logger.With().Str("cycle_id", report.ID).Int("cycle", report.Number).Logger()
	cycleLogger.Info().Msg("--- Starting rewarder cycle ---")

	if err := r.runCycle(ctx, cycleLogger, &report); err != nil {
		report.Error = err.Error()
		cycleLogger.Error().Err(err).Msg("Cycle aborted")
	}
	report.FinishedAt = time.Now().UTC()

	status := "success"
	switch {
	case report.Error != "":
		status = "failed"
	case report.Failures > 0:
		status = "partial"
	}
	metrics.CycleTotal.WithLabelValues(status).Inc()
	metrics.CycleDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	if r.cfg.Store != nil {
		if err := r.cfg.Store.SaveCycle(ctx, report); err != nil {
			cycleLogger.Error().Err(err).Msg("Failed to save cycle report")
		}
	}

	cycleLogger.Info().
		Uint64("block_number", report.BlockNumber).
		Int("epochs_created", report.EpochsCreated).
		Int("tranches", report.Tranches).
		Int("failures", report.Failures).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("--- Rewarder cycle completed ---")
	return report
}

func (r *Rewarder) cycleNumber(ctx context.Context) int {
	if r.cfg.Store == nil {
		return r.cycleCount
	}
	n, err := r.cfg.Store.IncrementCycleNumber(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to increment persistent cycle counter, using local count")
		return r.cycleCount
	}
	return n
}

func (r *Rewarder) runCycle(ctx context.Context, cycleLogger zerolog.Logger, report *types.CycleReport) error {
	blockNumber, err := r.cfg.Blocks.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to read block number: %w", err)
	}
	report.BlockNumber = blockNumber

	// Step 1: epochs
	created, err := r.createEpochs(ctx, blockNumber)
	if err != nil {
		return err
	}
	report.EpochsCreated = created

	// Step 2: schedules and tranches
	for _, e := range r.cfg.Epochs.Epochs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !e.IsFinalized {
			continue
		}
		cfg, ok := r.cfg.Distributor.EpochRewardConfig(e.ID)
		if !ok {
			if r.cfg.AutoInitialize == nil {
				continue
			}
			s := r.cfg.AutoInitialize
			if err := r.cfg.Distributor.InitializeEpochRewards(ctx, r.cfg.Caller, e.ID, s.IntervalBlocks, s.NumberOfTranches, s.RemediationWindowBlocks); err != nil {
				report.Failures++
				cycleLogger.Warn().Err(err).Uint64("epoch_id", e.ID).Msg("Failed to initialize epoch rewards")
				continue
			}
			cfg, _ = r.cfg.Distributor.EpochRewardConfig(e.ID)
		}
		r.distributeEpoch(ctx, cycleLogger, cfg, blockNumber, report)
	}
	return nil
}

// createEpochs catches up on epochs. Past the ceiling it creates epochs up to the ceiling only.
func (r *Rewarder) createEpochs(ctx context.Context, blockNumber uint64) (int, error) {
	created, err := r.cfg.Epochs.CreateEpochsUntilBlockNumber(ctx, blockNumber)
	var exceeded *epoch.LastEpochExceededError
	if errors.As(err, &exceeded) {
		return r.cfg.Epochs.CreateEpochsUntilBlockNumber(ctx, r.cfg.Epochs.EpochStartBlock(exceeded.Cap))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create epochs: %w", err)
	}
	return created, nil
}

// distributeEpoch pays each due DLP in its own call so one failing DLP does not hold back the rest.
func (r *Rewarder) distributeEpoch(ctx context.Context, cycleLogger zerolog.Logger, cfg types.RewardDistributionConfig, blockNumber uint64, report *types.CycleReport) {
	for _, dlpID := range r.cfg.Epochs.EpochDlpIDs(cfg.EpochID) {
		cursor := r.cfg.Distributor.DlpDistribution(cfg.EpochID, dlpID)
		if cursor.TranchesDistributed >= cfg.NumberOfTranches || blockNumber < cursor.NextEligibleBlock {
			continue
		}

		receipts, err := r.cfg.Distributor.DistributeRewards(ctx, r.cfg.Caller, cfg.EpochID, []types.DlpID{dlpID})
		switch {
		case err == nil:
			report.Tranches += len(receipts)
		case errors.Is(err, distributor.ErrNotYetEligible), errors.Is(err, distributor.ErrDistributionCompleted):
		case errors.Is(err, distributor.ErrDlpNotEligible):
			cycleLogger.Debug().Uint64("epoch_id", cfg.EpochID).Uint64("dlp_id", uint64(dlpID)).Msg("Skipping dlp that is not eligible")
		default:
			report.Failures++
			cycleLogger.Warn().Err(err).Uint64("epoch_id", cfg.EpochID).Uint64("dlp_id", uint64(dlpID)).Msg("Tranche distribution failed")
		}
	}
}
