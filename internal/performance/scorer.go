// Package performance scores DLPs per epoch and converts final scores into reward shares.
package performance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/dlprewards/internal/access"
	"github.com/elys-network/dlprewards/internal/chain"
	"github.com/elys-network/dlprewards/internal/epoch"
	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/logger"
	"github.com/elys-network/dlprewards/internal/metrics"
	"github.com/elys-network/dlprewards/internal/types"
	"github.com/elys-network/dlprewards/internal/utils"
)

var (
	ErrInvalidConfig        = errors.New("invalid scorer config")
	ErrPaused               = errors.New("scoring is paused")
	ErrNotPaused            = errors.New("scoring is not paused")
	ErrInvalidMetricWeights = errors.New("metric weights must sum to exactly 1e18")
	ErrInvalidPerformance   = errors.New("invalid performance entry")
	ErrDuplicateDlp         = errors.New("duplicate dlp in submission")
	ErrEpochNotEnded        = errors.New("epoch has not ended")
	ErrScoresExceedTotal    = errors.New("total scores exceed 100%")
	ErrPerformanceNotFound  = errors.New("performance not found")
)

// EpochLedger is the part of the epoch manager the scorer reads and finalizes.
type EpochLedger interface {
	Epoch(id uint64) (types.Epoch, error)
	FinalizeEpochRewards(ctx context.Context, epochID uint64, rewards []types.DlpReward) error
}

// WeightsStore persists metric weight changes.
type WeightsStore interface {
	SaveMetricWeights(ctx context.Context, weights types.MetricWeights) error
}

type Config struct {
	Weights types.MetricWeights // initial weights
	Epochs  EpochLedger
	Auth    access.Authorizer
	Blocks  chain.BlockSource
	Journal *journal.Journal
	Store   WeightsStore // optional
}

func validateConfig(cfg Config) error {
	var errs []error
	if err := validateWeights(cfg.Weights); err != nil {
		errs = append(errs, err)
	}
	if cfg.Epochs == nil {
		errs = append(errs, errors.New("epoch ledger is required"))
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

func validateWeights(w types.MetricWeights) error {
	for _, d := range []sdkmath.LegacyDec{w.TradingVolume, w.UniqueContributors, w.DataAccessFees} {
		if d.IsNil() || d.IsNegative() {
			return fmt.Errorf("%w: weights must not be negative", ErrInvalidMetricWeights)
		}
	}
	if !w.Sum().Equal(utils.OneHundredPercent) {
		return fmt.Errorf("%w: got %s", ErrInvalidMetricWeights, w.Sum())
	}
	return nil
}

// Scorer stores per-epoch performance submissions and finalizes them into rewards.
type Scorer struct {
	mu      sync.RWMutex
	cfg     Config
	weights types.MetricWeights
	paused  bool
	entries map[uint64]map[types.DlpID]types.PerformanceInput
	frozen  map[uint64]types.MetricWeights // weights an epoch was finalized with
	logger  zerolog.Logger
}

func NewScorer(cfg Config) (*Scorer, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scorer{
		cfg:     cfg,
		weights: cfg.Weights,
		entries: make(map[uint64]map[types.DlpID]types.PerformanceInput),
		frozen:  make(map[uint64]types.MetricWeights),
		logger:  logger.GetForComponent("performance_scorer"),
	}, nil
}

func validateEntry(entry types.PerformanceInput) error {
	var errs []error
	if entry.DlpID == 0 {
		errs = append(errs, errors.New("dlp id must be non-zero"))
	}
	for name, v := range map[string]sdkmath.Int{
		"trading volume":      entry.TradingVolume,
		"unique contributors": entry.UniqueContributors,
		"data access fees":    entry.DataAccessFees,
	} {
		if v.IsNil() || v.IsNegative() {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	for name, d := range map[string]sdkmath.LegacyDec{
		"trading volume score":              entry.TradingVolumeScore,
		"unique contributors score":         entry.UniqueContributorsScore,
		"data access fees score":            entry.DataAccessFeesScore,
		"trading volume score penalty":      entry.TradingVolumeScorePenalty,
		"unique contributors score penalty": entry.UniqueContributorsScorePenalty,
		"data access fees score penalty":    entry.DataAccessFeesScorePenalty,
	} {
		if d.IsNil() {
			errs = append(errs, fmt.Errorf("%s is required", name))
			continue
		}
		if err := utils.ValidateFraction(name, d); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: dlp %d: %w", ErrInvalidPerformance, entry.DlpID, errors.Join(errs...))
	}
	return nil
}

// SaveEpochPerformances stores the submitted entries, each replacing any earlier entry of the
// same DLP in the epoch.
func (s *Scorer) SaveEpochPerformances(ctx context.Context, caller common.Address, epochID uint64, entries []types.PerformanceInput) error {
	if err := s.cfg.Auth.Authorize(caller, access.RoleScoringManager); err != nil {
		return err
	}
	err := s.saveEpochPerformances(ctx, epochID, entries)
	if err != nil {
		metrics.PerformanceSubmissionsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.PerformanceSubmissionsTotal.WithLabelValues("accepted").Inc()
	s.logger.Info().
		Uint64("epoch_id", epochID).
		Int("entries", len(entries)).
		Msg("Epoch performances saved")
	return nil
}

func (s *Scorer) saveEpochPerformances(_ context.Context, epochID uint64, entries []types.PerformanceInput) error {
	e, err := s.cfg.Epochs.Epoch(epochID)
	if err != nil {
		return err
	}
	if e.IsFinalized {
		return fmt.Errorf("%w: %d", epoch.ErrEpochAlreadyFinalized, epochID)
	}

	seen := make(map[types.DlpID]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.DlpID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateDlp, entry.DlpID)
		}
		seen[entry.DlpID] = struct{}{}
		if err := validateEntry(entry); err != nil {
			return err
		}
	}

	return s.cfg.Journal.Atomic(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.paused {
			return ErrPaused
		}
		byDlp, ok := s.entries[epochID]
		if !ok {
			byDlp = make(map[types.DlpID]types.PerformanceInput)
			s.entries[epochID] = byDlp
		}
		for _, entry := range entries {
			prev, existed := byDlp[entry.DlpID]
			byDlp[entry.DlpID] = entry
			dlpID := entry.DlpID
			s.cfg.Journal.Record(func() {
				s.mu.Lock()
				defer s.mu.Unlock()
				if existed {
					s.entries[epochID][dlpID] = prev
				} else {
					delete(s.entries[epochID], dlpID)
				}
			})
		}
		return nil
	})
}

// UpdateMetricWeights replaces the weights used for every epoch not yet finalized.
func (s *Scorer) UpdateMetricWeights(ctx context.Context, caller common.Address, weights types.MetricWeights) error {
	if err := s.cfg.Auth.Authorize(caller, access.RoleMaintainer); err != nil {
		return err
	}
	if err := validateWeights(weights); err != nil {
		return err
	}
	err := s.cfg.Journal.Atomic(func() error {
		s.mu.Lock()
		prev := s.weights
		s.weights = weights
		s.mu.Unlock()
		s.cfg.Journal.Record(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.weights = prev
		})

		if s.cfg.Store != nil {
			if err := s.cfg.Store.SaveMetricWeights(ctx, weights); err != nil {
				return fmt.Errorf("failed to persist metric weights: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("trading_volume", weights.TradingVolume.String()).
		Str("unique_contributors", weights.UniqueContributors.String()).
		Str("data_access_fees", weights.DataAccessFees.String()).
		Msg("Metric weights updated")
	return nil
}

// ConfirmEpochFinalScores converts the epoch's scores into reward and penalty amounts, writes them
// into the epoch ledger and locks the epoch. It succeeds once per epoch, after the epoch ended.
func (s *Scorer) ConfirmEpochFinalScores(ctx context.Context, caller common.Address, epochID uint64) error {
	if err := s.cfg.Auth.Authorize(caller, access.RoleMaintainer); err != nil {
		return err
	}
	e, err := s.cfg.Epochs.Epoch(epochID)
	if err != nil {
		return err
	}
	if e.IsFinalized {
		return fmt.Errorf("%w: %d", epoch.ErrEpochAlreadyFinalized, epochID)
	}
	blockNumber, err := s.cfg.Blocks.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to read block number: %w", err)
	}
	if !e.HasEnded(blockNumber) {
		return fmt.Errorf("%w: epoch %d ends at block %d, current block %d", ErrEpochNotEnded, epochID, e.EndBlock, blockNumber)
	}

	var rewards []types.DlpReward
	err = s.cfg.Journal.Atomic(func() error {
		s.mu.Lock()
		weights := s.weights
		performances := s.performancesLocked(epochID, weights)
		s.mu.Unlock()

		total := sdkmath.LegacyZeroDec()
		rewards = make([]types.DlpReward, 0, len(performances))
		for _, p := range performances {
			total = total.Add(p.TotalScore)
			rewards = append(rewards, types.DlpReward{
				DlpID:         p.DlpID,
				RewardAmount:  utils.MulFloor(e.RewardAmount, p.TotalScore),
				PenaltyAmount: utils.MulFloor(e.RewardAmount, p.PenaltyScore),
			})
		}
		if total.GT(utils.OneHundredPercent) {
			return fmt.Errorf("%w: %s", ErrScoresExceedTotal, total)
		}
		if err := s.cfg.Epochs.FinalizeEpochRewards(ctx, epochID, rewards); err != nil {
			return err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.frozen[epochID] = weights
		s.cfg.Journal.Record(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.frozen, epochID)
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Uint64("epoch_id", epochID).
		Int("dlps", len(rewards)).
		Str("epoch_reward", e.RewardAmount.String()).
		Msg("Epoch final scores confirmed")
	return nil
}

// Pause stops new performance submissions.
func (s *Scorer) Pause(_ context.Context, caller common.Address) error {
	return s.setPaused(caller, true)
}

func (s *Scorer) Unpause(_ context.Context, caller common.Address) error {
	return s.setPaused(caller, false)
}

func (s *Scorer) setPaused(caller common.Address, paused bool) error {
	if err := s.cfg.Auth.Authorize(caller, access.RoleMaintainer); err != nil {
		return err
	}
	return s.cfg.Journal.Atomic(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.paused == paused {
			if paused {
				return ErrPaused
			}
			return ErrNotPaused
		}
		s.paused = paused
		s.cfg.Journal.Record(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.paused = !paused
		})
		s.logger.Info().Bool("paused", paused).Msg("Scoring pause state changed")
		return nil
	})
}

func (s *Scorer) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// MetricWeights returns the weights applied to epochs not yet finalized.
func (s *Scorer) MetricWeights() types.MetricWeights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// EpochDlpPerformance returns the DLP's stored entry with its derived scores.
func (s *Scorer) EpochDlpPerformance(epochID uint64, dlpID types.DlpID) (types.DlpPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[epochID][dlpID]
	if !ok {
		return types.DlpPerformance{}, fmt.Errorf("%w: epoch %d dlp %d", ErrPerformanceNotFound, epochID, dlpID)
	}
	return derive(epochID, entry, s.weightsForLocked(epochID)), nil
}

// EpochPerformanceDlpIDs returns the DLPs with a stored entry in the epoch.
func (s *Scorer) EpochPerformanceDlpIDs(epochID uint64) []types.DlpID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]types.DlpID, 0, len(s.entries[epochID]))
	for id := range s.entries[epochID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Scorer) weightsForLocked(epochID uint64) types.MetricWeights {
	if w, ok := s.frozen[epochID]; ok {
		return w
	}
	return s.weights
}

func (s *Scorer) performancesLocked(epochID uint64, weights types.MetricWeights) []types.DlpPerformance {
	out := make([]types.DlpPerformance, 0, len(s.entries[epochID]))
	for _, entry := range s.entries[epochID] {
		out = append(out, derive(epochID, entry, weights))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DlpID < out[j].DlpID })
	return out
}

// derive computes totalScore = sum(w_i * score_i) and penaltyScore = sum(w_i * score_i * penalty_i),
// truncating every product.
func derive(epochID uint64, entry types.PerformanceInput, w types.MetricWeights) types.DlpPerformance {
	type term struct{ weight, score, penalty sdkmath.LegacyDec }
	terms := []term{
		{w.TradingVolume, entry.TradingVolumeScore, entry.TradingVolumeScorePenalty},
		{w.UniqueContributors, entry.UniqueContributorsScore, entry.UniqueContributorsScorePenalty},
		{w.DataAccessFees, entry.DataAccessFeesScore, entry.DataAccessFeesScorePenalty},
	}
	total, penalty := sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec()
	for _, t := range terms {
		weighted := t.weight.MulTruncate(t.score)
		total = total.Add(weighted)
		penalty = penalty.Add(weighted.MulTruncate(t.penalty))
	}
	return types.DlpPerformance{
		EpochID:          epochID,
		PerformanceInput: entry,
		TotalScore:       total,
		PenaltyScore:     penalty,
	}
}
