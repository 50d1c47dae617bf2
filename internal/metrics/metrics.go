package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dlprewards_build_info",
			Help: "Build information of the DLP rewards service",
		},
		[]string{"version", "commit"},
	)

	EpochsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlprewards_epochs_created_total",
			Help: "Total number of epochs created",
		},
	)

	EpochsFinalizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlprewards_epochs_finalized_total",
			Help: "Total number of epochs whose scores were finalized",
		},
	)

	BonusAdjustmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlprewards_bonus_adjustments_total",
			Help: "Total number of bonus changes by kind",
		},
		[]string{"kind"}, // add, override, rollover
	)

	PerformanceSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlprewards_performance_submissions_total",
			Help: "Total number of performance submissions",
		},
		[]string{"status"},
	)

	TranchesDistributedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlprewards_tranches_distributed_total",
			Help: "Total number of tranches distributed",
		},
		[]string{"dlp_id"},
	)

	TrancheVana = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlprewards_tranche_vana_total",
			Help: "VANA moved through tranches, in whole tokens",
		},
		[]string{"kind"}, // tranche, used, spare, rolled_over, dropped
	)

	DistributionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlprewards_distribution_calls_total",
			Help: "Total number of distribution calls",
		},
		[]string{"status"},
	)

	SwapDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dlprewards_split_reward_swap_duration_seconds",
			Help:    "Duration of split reward swaps",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
	)

	CycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlprewards_cycle_total",
			Help: "Total number of rewarder cycles",
		},
		[]string{"status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dlprewards_cycle_duration_seconds",
			Help:    "Duration of rewarder cycles",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
	)

	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlprewards_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"status"},
	)
)
