package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/dlprewards/internal/types"
)

// DistributionSummary represents high-level distribution statistics
type DistributionSummary struct {
	Epochs           int        `json:"epochs"`
	Tranches         int        `json:"tranches"`
	TotalDistributed string     `json:"total_distributed"`
	TotalUsed        string     `json:"total_used"`
	TotalRolledOver  string     `json:"total_rolled_over"`
	TotalDropped     string     `json:"total_dropped"`
	TotalCycles      int        `json:"total_cycles"`
	LastDistributed  *time.Time `json:"last_distributed,omitempty"`
}

// EpochDistribution aggregates the receipts of one epoch.
type EpochDistribution struct {
	EpochID          uint64  `json:"epoch_id"`
	DlpIDs           []int64 `json:"dlp_ids"`
	Tranches         int     `json:"tranches"`
	TotalDistributed string  `json:"total_distributed"`
	TotalUsed        string  `json:"total_used"`
	TotalRolledOver  string  `json:"total_rolled_over"`
	TotalDropped     string  `json:"total_dropped"`
}

// GetDistributionSummary aggregates every stored receipt.
func GetDistributionSummary(ctx context.Context) (summary *DistributionSummary, err error) {
	if DB == nil {
		return nil, ErrNoDatabase
	}
	defer func() { err = observe(err) }()

	summary = &DistributionSummary{}
	var last sql.NullTime
	err = DB.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT epoch_id),
			COUNT(*),
			COALESCE(SUM(tranche_amount), 0)::TEXT,
			COALESCE(SUM(used_vana_amount), 0)::TEXT,
			COALESCE(SUM(rolled_over_bonus), 0)::TEXT,
			COALESCE(SUM(dropped_bonus), 0)::TEXT,
			MAX(distributed_at)
		FROM tranche_receipts`,
	).Scan(
		&summary.Epochs, &summary.Tranches,
		&summary.TotalDistributed, &summary.TotalUsed, &summary.TotalRolledOver, &summary.TotalDropped,
		&last,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate receipts: %w", err)
	}
	if last.Valid {
		summary.LastDistributed = &last.Time
	}

	if err := DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM rewarder_cycles`).Scan(&summary.TotalCycles); err != nil {
		log.Error().Err(err).Msg("Failed to get total cycle count")
	}

	log.Debug().Int("tranches", summary.Tranches).Str("distributed", summary.TotalDistributed).Msg("Retrieved distribution summary")
	return summary, nil
}

// GetEpochDistributions aggregates receipts per epoch, newest epoch first.
func GetEpochDistributions(ctx context.Context, limit int) (out []EpochDistribution, err error) {
	if DB == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	defer func() { err = observe(err) }()

	rows, err := DB.QueryContext(ctx, `
		SELECT
			epoch_id,
			ARRAY_AGG(DISTINCT dlp_id ORDER BY dlp_id),
			COUNT(*),
			SUM(tranche_amount)::TEXT,
			SUM(used_vana_amount)::TEXT,
			SUM(rolled_over_bonus)::TEXT,
			SUM(dropped_bonus)::TEXT
		FROM tranche_receipts
		GROUP BY epoch_id
		ORDER BY epoch_id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query epoch distributions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e EpochDistribution
		if err := rows.Scan(
			&e.EpochID, pq.Array(&e.DlpIDs), &e.Tranches,
			&e.TotalDistributed, &e.TotalUsed, &e.TotalRolledOver, &e.TotalDropped,
		); err != nil {
			return nil, fmt.Errorf("failed to scan epoch distribution: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// GetLatestCycle returns the most recent rewarder cycle, or nil when none ran yet.
func GetLatestCycle(ctx context.Context) (*types.CycleReport, error) {
	cycles, err := GetRecentCycles(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, nil
	}
	return &cycles[0], nil
}

