/*

Types for epochs and the per-(epoch, DLP) reward ledger.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

type DlpID uint64

// Epoch is a fixed block range with one fixed reward pool.
type Epoch struct {
	ID           uint64      `json:"id"`
	StartBlock   uint64      `json:"start_block"`
	EndBlock     uint64      `json:"end_block"`    // inclusive
	RewardAmount sdkmath.Int `json:"reward_amount"` // fixed emission for the epoch
	IsFinalized  bool        `json:"is_finalized"`
}

// HasEnded reports whether the epoch's window is fully behind blockNumber.
func (e Epoch) HasEnded(blockNumber uint64) bool {
	return blockNumber > e.EndBlock
}

// EpochDlp is the reward record of one DLP within one epoch.
type EpochDlp struct {
	EpochID                uint64      `json:"epoch_id"`
	DlpID                  DlpID       `json:"dlp_id"`
	RewardAmount           sdkmath.Int `json:"reward_amount"`  // score-derived share
	BonusAmount            sdkmath.Int `json:"bonus_amount"`   // additive, overridable
	PenaltyAmount          sdkmath.Int `json:"penalty_amount"` // withheld from distribution
	TranchesDistributed    uint64      `json:"tranches_distributed"`
	TotalDistributedAmount sdkmath.Int `json:"total_distributed_amount"`
}

// NewEpochDlp returns an empty record with every amount set to zero.
func NewEpochDlp(epochID uint64, dlpID DlpID) EpochDlp {
	return EpochDlp{
		EpochID:                epochID,
		DlpID:                  dlpID,
		RewardAmount:           sdkmath.ZeroInt(),
		BonusAmount:            sdkmath.ZeroInt(),
		PenaltyAmount:          sdkmath.ZeroInt(),
		TotalDistributedAmount: sdkmath.ZeroInt(),
	}
}

// TotalAllocation is reward + bonus - penalty, floored at zero.
func (d EpochDlp) TotalAllocation() sdkmath.Int {
	gross := d.RewardAmount.Add(d.BonusAmount)
	if d.PenaltyAmount.GTE(gross) {
		return sdkmath.ZeroInt()
	}
	return gross.Sub(d.PenaltyAmount)
}

// DlpReward is the score-derived outcome written into the epoch ledger at finalization.
type DlpReward struct {
	DlpID         DlpID       `json:"dlp_id"`
	RewardAmount  sdkmath.Int `json:"reward_amount"`
	PenaltyAmount sdkmath.Int `json:"penalty_amount"`
}
