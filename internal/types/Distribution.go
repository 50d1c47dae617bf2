/*

Types for the paced tranche distribution of finalized epoch rewards.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RewardDistributionConfig is the tranche schedule of one epoch.
type RewardDistributionConfig struct {
	EpochID                    uint64 `json:"epoch_id"`
	DistributionIntervalBlocks uint64 `json:"distribution_interval_blocks"`
	NumberOfTranches           uint64 `json:"number_of_tranches"`
	RemediationWindowBlocks    uint64 `json:"remediation_window_blocks"`
}

// IsInitialized reports whether the schedule has been set up; a zero tranche count is never valid.
func (c RewardDistributionConfig) IsInitialized() bool {
	return c.NumberOfTranches > 0
}

// DistributionStage is the position of a DLP in its epoch's tranche schedule.
type DistributionStage string

const (
	StageUninitialized DistributionStage = "UNINITIALIZED"
	StageScheduled     DistributionStage = "SCHEDULED"
	StageDistributing  DistributionStage = "DISTRIBUTING"
	StageCompleted     DistributionStage = "COMPLETED"
)

// DlpDistribution is the schedule cursor of one DLP within an epoch.
type DlpDistribution struct {
	EpochID             uint64            `json:"epoch_id"`
	DlpID               DlpID             `json:"dlp_id"`
	NextEligibleBlock   uint64            `json:"next_eligible_block"` // 0 means "any block"
	TranchesDistributed uint64            `json:"tranches_distributed"`
	TotalDistributed    sdkmath.Int       `json:"total_distributed_amount"`
	Stage               DistributionStage `json:"stage"`
}

// TrancheReceipt records the outcome of one tranche.
type TrancheReceipt struct {
	ID                string      `json:"id"`
	EpochID           uint64      `json:"epoch_id"`
	DlpID             DlpID       `json:"dlp_id"`
	TrancheIndex      uint64      `json:"tranche_index"` // 1-based
	BlockNumber       uint64      `json:"block_number"`
	TrancheAmount     sdkmath.Int `json:"tranche_amount"`
	TokenRewardAmount sdkmath.Int `json:"token_reward_amount"`
	SpareToken        sdkmath.Int `json:"spare_token"`
	SpareVana         sdkmath.Int `json:"spare_vana"`
	UsedVanaAmount    sdkmath.Int `json:"used_vana_amount"`
	LiquidityDelta    sdkmath.Int `json:"liquidity_delta"`
	RolledOverBonus   sdkmath.Int `json:"rolled_over_bonus"` // credited to the next epoch
	DroppedBonus      sdkmath.Int `json:"dropped_bonus"`     // unused amount above the rollover cap
	NextEligibleBlock uint64      `json:"next_eligible_block"`
	Timestamp         time.Time   `json:"timestamp"`
}
