/*

Types for DLP performance scoring. Scores, penalties and weights are 18-decimal fractions
where 1.0 (1e18) means 100%.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// MetricWeights weighs the three metric categories. The weights must sum to exactly 1.0.
type MetricWeights struct {
	TradingVolume      sdkmath.LegacyDec `json:"trading_volume"`
	UniqueContributors sdkmath.LegacyDec `json:"unique_contributors"`
	DataAccessFees     sdkmath.LegacyDec `json:"data_access_fees"`
}

func (w MetricWeights) Sum() sdkmath.LegacyDec {
	return w.TradingVolume.Add(w.UniqueContributors).Add(w.DataAccessFees)
}

// PerformanceInput is one DLP's submission for an epoch: raw metrics plus the
// pre-normalized per-category score and penalty computed off-chain.
type PerformanceInput struct {
	DlpID DlpID `json:"dlp_id"`

	// Raw metrics
	TradingVolume      sdkmath.Int `json:"trading_volume"`
	UniqueContributors sdkmath.Int `json:"unique_contributors"`
	DataAccessFees     sdkmath.Int `json:"data_access_fees"`

	// Category scores: the DLP's share of the category across all DLPs.
	TradingVolumeScore      sdkmath.LegacyDec `json:"trading_volume_score"`
	UniqueContributorsScore sdkmath.LegacyDec `json:"unique_contributors_score"`
	DataAccessFeesScore     sdkmath.LegacyDec `json:"data_access_fees_score"`

	// Category penalties: the fraction of the category's contribution that is withheld.
	TradingVolumeScorePenalty      sdkmath.LegacyDec `json:"trading_volume_score_penalty"`
	UniqueContributorsScorePenalty sdkmath.LegacyDec `json:"unique_contributors_score_penalty"`
	DataAccessFeesScorePenalty     sdkmath.LegacyDec `json:"data_access_fees_score_penalty"`
}

// DlpPerformance is the stored record. TotalScore and PenaltyScore are derived with the
// weights in force: current ones until finalization, frozen ones afterwards.
type DlpPerformance struct {
	EpochID uint64 `json:"epoch_id"`
	PerformanceInput
	TotalScore   sdkmath.LegacyDec `json:"total_score"`
	PenaltyScore sdkmath.LegacyDec `json:"penalty_score"`
}
