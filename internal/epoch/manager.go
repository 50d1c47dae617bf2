// Package epoch owns the epoch lifecycle and the per-(epoch, DLP) reward ledger.
package epoch

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
	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/logger"
	"github.com/elys-network/dlprewards/internal/metrics"
	"github.com/elys-network/dlprewards/internal/types"
)

var (
	ErrInvalidConfig         = errors.New("invalid epoch config")
	ErrInvalidEpoch          = errors.New("invalid epoch")
	ErrEpochNotFound         = errors.New("epoch not found")
	ErrEpochAlreadyFinalized = errors.New("epoch already finalized")
	ErrLastEpochAlreadySet   = errors.New("last epoch already set")
	ErrLastEpochExceeded     = errors.New("last epoch exceeded")
	ErrInvalidAmount         = errors.New("amount must not be negative")
	ErrDuplicateDlp          = errors.New("duplicate dlp")
)

// LastEpochExceededError is returned when creating epochs would pass the configured ceiling.
type LastEpochExceededError struct {
	Cap uint64
}

func (e *LastEpochExceededError) Error() string {
	return fmt.Sprintf("last epoch exceeded: ceiling is epoch %d", e.Cap)
}

func (e *LastEpochExceededError) Is(target error) bool {
	return target == ErrLastEpochExceeded
}

type Config struct {
	StartBlock   uint64      // first block of epoch 1
	DaySize      uint64      // blocks per day
	EpochSize    uint64      // days per epoch
	RewardAmount sdkmath.Int // fixed emission of every epoch

	Auth    access.Authorizer
	Blocks  chain.BlockSource
	Journal *journal.Journal
}

func validateConfig(cfg Config) error {
	var errs []error
	if cfg.DaySize == 0 {
		errs = append(errs, errors.New("day size must be positive"))
	}
	if cfg.EpochSize == 0 {
		errs = append(errs, errors.New("epoch size must be positive"))
	}
	if cfg.RewardAmount.IsNil() || cfg.RewardAmount.IsNegative() {
		errs = append(errs, errors.New("epoch reward amount must not be negative"))
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

type epochDlpKey struct {
	epochID uint64
	dlpID   types.DlpID
}

type dlpSet map[types.DlpID]struct{}

// Manager holds epochs and their per-DLP records. All writes are journaled.
type Manager struct {
	mu        sync.RWMutex
	cfg       Config
	epochs    []types.Epoch // epochs[i] has id i+1
	lastEpoch uint64
	records   map[epochDlpKey]types.EpochDlp
	scored    map[uint64]dlpSet
	bonus     map[uint64]dlpSet
	logger    zerolog.Logger
}

func NewManager(cfg Config) (*Manager, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		records: make(map[epochDlpKey]types.EpochDlp),
		scored:  make(map[uint64]dlpSet),
		bonus:   make(map[uint64]dlpSet),
		logger:  logger.GetForComponent("epoch_manager"),
	}, nil
}

// EpochLength is the number of blocks in every epoch.
func (m *Manager) EpochLength() uint64 {
	return m.cfg.DaySize * m.cfg.EpochSize
}

// EpochStartBlock returns the first block of epoch id.
func (m *Manager) EpochStartBlock(id uint64) uint64 {
	return m.cfg.StartBlock + (id-1)*m.EpochLength()
}

// CreateEpochs creates every epoch that has started by the current block.
func (m *Manager) CreateEpochs(ctx context.Context) (int, error) {
	blockNumber, err := m.cfg.Blocks.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read block number: %w", err)
	}
	return m.CreateEpochsUntilBlockNumber(ctx, blockNumber)
}

// CreateEpochsUntilBlockNumber creates every epoch whose window starts at or before blockNumber.
// If that would pass the ceiling nothing is created.
func (m *Manager) CreateEpochsUntilBlockNumber(_ context.Context, blockNumber uint64) (int, error) {
	created := 0
	err := m.cfg.Journal.Atomic(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		for {
			id := uint64(len(m.epochs)) + 1
			start := m.EpochStartBlock(id)
			if start > blockNumber {
				return nil
			}
			if m.lastEpoch != 0 && id > m.lastEpoch {
				return &LastEpochExceededError{Cap: m.lastEpoch}
			}
			m.epochs = append(m.epochs, types.Epoch{
				ID:           id,
				StartBlock:   start,
				EndBlock:     start + m.EpochLength() - 1,
				RewardAmount: m.cfg.RewardAmount,
			})
			m.cfg.Journal.Record(func() {
				m.mu.Lock()
				defer m.mu.Unlock()
				m.epochs = m.epochs[:id-1]
			})
			created++
		}
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		metrics.EpochsCreatedTotal.Add(float64(created))
		m.logger.Info().
			Int("created", created).
			Uint64("epochs_count", m.EpochsCount()).
			Uint64("block_number", blockNumber).
			Msg("Epochs created")
	}
	return created, nil
}

// SetLastEpoch sets the epoch ceiling. It can be set once and never to zero or below an epoch
// that already exists.
func (m *Manager) SetLastEpoch(_ context.Context, caller common.Address, n uint64) error {
	if err := m.cfg.Auth.Authorize(caller, access.RoleMaintainer); err != nil {
		return err
	}
	return m.cfg.Journal.Atomic(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.lastEpoch != 0 {
			return fmt.Errorf("%w: %d", ErrLastEpochAlreadySet, m.lastEpoch)
		}
		if n == 0 || n < uint64(len(m.epochs)) {
			return fmt.Errorf("%w: ceiling %d with %d epochs created", ErrInvalidEpoch, n, len(m.epochs))
		}
		m.lastEpoch = n
		m.cfg.Journal.Record(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.lastEpoch = 0
		})
		m.logger.Info().Uint64("last_epoch", n).Msg("Epoch ceiling set")
		return nil
	})
}

// AddEpochDlpBonusAmount adds amount to the DLP's bonus in the current epoch.
func (m *Manager) AddEpochDlpBonusAmount(_ context.Context, caller common.Address, epochID uint64, dlpID types.DlpID, amount sdkmath.Int) error {
	if err := m.cfg.Auth.Authorize(caller, access.RoleMaintainer); err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	err := m.cfg.Journal.Atomic(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if epochID == 0 || epochID != uint64(len(m.epochs)) {
			return fmt.Errorf("%w: bonus may only target the current epoch %d, got %d", ErrInvalidEpoch, len(m.epochs), epochID)
		}
		record := m.recordLocked(epochID, dlpID)
		m.setBonusLocked(record, record.BonusAmount.Add(amount))
		return nil
	})
	if err != nil {
		return err
	}
	metrics.BonusAdjustmentsTotal.WithLabelValues("add").Inc()
	m.logger.Info().
		Uint64("epoch_id", epochID).
		Uint64("dlp_id", uint64(dlpID)).
		Str("amount", amount.String()).
		Msg("Bonus added")
	return nil
}

// OverrideEpochDlpBonusAmount sets the DLP's bonus in an existing epoch.
func (m *Manager) OverrideEpochDlpBonusAmount(_ context.Context, caller common.Address, epochID uint64, dlpID types.DlpID, amount sdkmath.Int) error {
	if err := m.cfg.Auth.Authorize(caller, access.RoleMaintainer); err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	err := m.cfg.Journal.Atomic(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if epochID == 0 || epochID > uint64(len(m.epochs)) {
			return fmt.Errorf("%w: %d", ErrEpochNotFound, epochID)
		}
		m.setBonusLocked(m.recordLocked(epochID, dlpID), amount)
		return nil
	})
	if err != nil {
		return err
	}
	metrics.BonusAdjustmentsTotal.WithLabelValues("override").Inc()
	m.logger.Info().
		Uint64("epoch_id", epochID).
		Uint64("dlp_id", uint64(dlpID)).
		Str("amount", amount.String()).
		Msg("Bonus overridden")
	return nil
}

// FinalizeEpochRewards locks the epoch and writes the score-derived reward and penalty of each DLP.
func (m *Manager) FinalizeEpochRewards(_ context.Context, epochID uint64, rewards []types.DlpReward) error {
	err := m.cfg.Journal.Atomic(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if epochID == 0 || epochID > uint64(len(m.epochs)) {
			return fmt.Errorf("%w: %d", ErrEpochNotFound, epochID)
		}
		epoch := m.epochs[epochID-1]
		if epoch.IsFinalized {
			return fmt.Errorf("%w: %d", ErrEpochAlreadyFinalized, epochID)
		}

		seen := make(dlpSet, len(rewards))
		for _, reward := range rewards {
			if _, dup := seen[reward.DlpID]; dup {
				return fmt.Errorf("%w: %d", ErrDuplicateDlp, reward.DlpID)
			}
			seen[reward.DlpID] = struct{}{}

			record := m.recordLocked(epochID, reward.DlpID)
			record.RewardAmount = reward.RewardAmount
			record.PenaltyAmount = reward.PenaltyAmount
			m.putRecordLocked(record)
			m.addToSetLocked(m.scored, epochID, reward.DlpID)
		}

		m.epochs[epochID-1].IsFinalized = true
		m.cfg.Journal.Record(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.epochs[epochID-1].IsFinalized = false
		})
		return nil
	})
	if err != nil {
		return err
	}
	metrics.EpochsFinalizedTotal.Inc()
	m.logger.Info().
		Uint64("epoch_id", epochID).
		Int("dlps", len(rewards)).
		Msg("Epoch rewards finalized")
	return nil
}

// RecordTranche advances the DLP's tranche count and distributed total.
func (m *Manager) RecordTranche(_ context.Context, epochID uint64, dlpID types.DlpID, amount sdkmath.Int) (types.EpochDlp, error) {
	var record types.EpochDlp
	err := m.cfg.Journal.Atomic(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if epochID == 0 || epochID > uint64(len(m.epochs)) {
			return fmt.Errorf("%w: %d", ErrEpochNotFound, epochID)
		}
		record = m.recordLocked(epochID, dlpID)
		record.TranchesDistributed++
		record.TotalDistributedAmount = record.TotalDistributedAmount.Add(amount)
		m.putRecordLocked(record)
		return nil
	})
	return record, err
}

// RolloverBonus credits up to unused to the DLP's bonus in epochID, never letting the bonus exceed
// the DLP's reward in that epoch. It returns the credited amount; the rest is not carried anywhere.
func (m *Manager) RolloverBonus(_ context.Context, epochID uint64, dlpID types.DlpID, unused sdkmath.Int) (sdkmath.Int, error) {
	if unused.IsNil() || unused.IsNegative() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}
	credited := sdkmath.ZeroInt()
	err := m.cfg.Journal.Atomic(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		record := m.recordLocked(epochID, dlpID)
		headroom := sdkmath.ZeroInt()
		if record.RewardAmount.GT(record.BonusAmount) {
			headroom = record.RewardAmount.Sub(record.BonusAmount)
		}
		credited = sdkmath.MinInt(unused, headroom)
		if credited.IsZero() {
			return nil
		}
		m.setBonusLocked(record, record.BonusAmount.Add(credited))
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if credited.IsPositive() {
		metrics.BonusAdjustmentsTotal.WithLabelValues("rollover").Inc()
	}
	return credited, nil
}

func (m *Manager) recordLocked(epochID uint64, dlpID types.DlpID) types.EpochDlp {
	if record, ok := m.records[epochDlpKey{epochID, dlpID}]; ok {
		return record
	}
	return types.NewEpochDlp(epochID, dlpID)
}

func (m *Manager) putRecordLocked(record types.EpochDlp) {
	key := epochDlpKey{record.EpochID, record.DlpID}
	prev, existed := m.records[key]
	m.records[key] = record
	m.cfg.Journal.Record(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existed {
			m.records[key] = prev
		} else {
			delete(m.records, key)
		}
	})
}

func (m *Manager) setBonusLocked(record types.EpochDlp, bonus sdkmath.Int) {
	record.BonusAmount = bonus
	m.putRecordLocked(record)
	if bonus.IsZero() {
		m.removeFromSetLocked(m.bonus, record.EpochID, record.DlpID)
	} else {
		m.addToSetLocked(m.bonus, record.EpochID, record.DlpID)
	}
}

func (m *Manager) addToSetLocked(sets map[uint64]dlpSet, epochID uint64, dlpID types.DlpID) {
	set, ok := sets[epochID]
	if !ok {
		set = make(dlpSet)
		sets[epochID] = set
	}
	if _, member := set[dlpID]; member {
		return
	}
	set[dlpID] = struct{}{}
	m.cfg.Journal.Record(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(sets[epochID], dlpID)
	})
}

func (m *Manager) removeFromSetLocked(sets map[uint64]dlpSet, epochID uint64, dlpID types.DlpID) {
	if _, member := sets[epochID][dlpID]; !member {
		return
	}
	delete(sets[epochID], dlpID)
	m.cfg.Journal.Record(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.addToSetUnjournaled(sets, epochID, dlpID)
	})
}

func (m *Manager) addToSetUnjournaled(sets map[uint64]dlpSet, epochID uint64, dlpID types.DlpID) {
	set, ok := sets[epochID]
	if !ok {
		set = make(dlpSet)
		sets[epochID] = set
	}
	set[dlpID] = struct{}{}
}

// Epoch returns the epoch with the given id.
func (m *Manager) Epoch(id uint64) (types.Epoch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == 0 || id > uint64(len(m.epochs)) {
		return types.Epoch{}, fmt.Errorf("%w: %d", ErrEpochNotFound, id)
	}
	return m.epochs[id-1], nil
}

// Epochs returns every created epoch in id order.
func (m *Manager) Epochs() []types.Epoch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Epoch, len(m.epochs))
	copy(out, m.epochs)
	return out
}

func (m *Manager) EpochsCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.epochs))
}

// LastEpoch returns the ceiling, zero when unset.
func (m *Manager) LastEpoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastEpoch
}

// EpochDlp returns the DLP's record in the epoch; DLPs without one read as all zero.
func (m *Manager) EpochDlp(epochID uint64, dlpID types.DlpID) types.EpochDlp {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recordLocked(epochID, dlpID)
}

// EpochDlpIDs returns the DLPs payable in the epoch: those scored at finalization plus those
// holding a bonus.
func (m *Manager) EpochDlpIDs(epochID uint64) []types.DlpID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	union := make(dlpSet, len(m.scored[epochID])+len(m.bonus[epochID]))
	for id := range m.scored[epochID] {
		union[id] = struct{}{}
	}
	for id := range m.bonus[epochID] {
		union[id] = struct{}{}
	}
	return sortedIDs(union)
}

// EpochBonusDlpIDs returns the DLPs holding a nonzero bonus in the epoch.
func (m *Manager) EpochBonusDlpIDs(epochID uint64) []types.DlpID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedIDs(m.bonus[epochID])
}

func sortedIDs(set dlpSet) []types.DlpID {
	ids := make([]types.DlpID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
