/*

This file contains the default parameters for the DLP rewards service.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/dlprewards/internal/types"
)

// DefaultMetricWeights are used when no active weights are found in the database.
var DefaultMetricWeights = types.MetricWeights{
	TradingVolume:      sdkmath.LegacyNewDecWithPrec(5, 1), // 50%
	UniqueContributors: sdkmath.LegacyNewDecWithPrec(3, 1), // 30%
	DataAccessFees:     sdkmath.LegacyNewDecWithPrec(2, 1), // 20%
}

var (
	// DefaultRewardPercentage is the share of a tranche swapped into the DLP token as its reward.
	// The rest is deposited as liquidity.
	DefaultRewardPercentage = sdkmath.LegacyNewDecWithPrec(5, 1) // 50%

	// DefaultMaximumSlippagePercentage bounds the price move of every tranche swap.
	DefaultMaximumSlippagePercentage = sdkmath.LegacyNewDecWithPrec(2, 2) // 2%
)

const (
	// DefaultNumberOfTranches splits an epoch allocation into daily payments for a 21 day epoch.
	DefaultNumberOfTranches uint64 = 21

	// DefaultRemediationWindowBlocks absorbs up to about an hour of tranche lateness at 6s blocks.
	DefaultRemediationWindowBlocks uint64 = 600

	DefaultCycleInterval = time.Minute

	DefaultAPIListenAddr = ":8080"

	// DefaultAPIMaxClockSkew is how old or early a signed write request may be.
	DefaultAPIMaxClockSkew = 5 * time.Minute
)
