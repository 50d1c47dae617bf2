/*

This file manages the persistent global cycle counter and the log of rewarder cycles.
The counter is stored in the database to ensure continuity across restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/dlprewards/internal/types"
)

// GetCurrentCycleNumber retrieves the current cycle number from the database
func GetCurrentCycleNumber(ctx context.Context) (current int, err error) {
	if DB == nil {
		return 0, ErrNoDatabase
	}
	defer func() { err = observe(err) }()

	err = DB.QueryRowContext(ctx, `SELECT current_cycle FROM cycle_counter WHERE id = 1;`).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn().Msg("No cycle counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}
	return current, nil
}

// IncrementCycleNumber increments the cycle counter and returns the new value
func IncrementCycleNumber(ctx context.Context) (next int, err error) {
	if DB == nil {
		return 0, ErrNoDatabase
	}
	defer func() { err = observe(err) }()

	err = DB.QueryRowContext(ctx, `
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_cycle;`,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}

	log.Debug().Int("cycle", next).Msg("Incremented cycle counter")
	return next, nil
}

// ResetCycleNumber resets the cycle counter to a specific value (for testing/maintenance)
func ResetCycleNumber(ctx context.Context, cycleNumber int) (err error) {
	if DB == nil {
		return ErrNoDatabase
	}
	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}
	defer func() { err = observe(err) }()

	result, err := DB.ExecContext(ctx, `
		UPDATE cycle_counter
		SET current_cycle = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`, cycleNumber)
	if err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", cycleNumber, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting cycle number")
	}

	log.Warn().Int("cycleNumber", cycleNumber).Msg("Reset cycle counter")
	return nil
}

// SaveCycle stores the report of a finished rewarder cycle.
func SaveCycle(ctx context.Context, report types.CycleReport) (err error) {
	if DB == nil {
		return ErrNoDatabase
	}
	defer func() { err = observe(err) }()

	var errMsg sql.NullString
	if report.Error != "" {
		errMsg = sql.NullString{String: report.Error, Valid: true}
	}
	_, err = DB.ExecContext(ctx, `
		INSERT INTO rewarder_cycles (
			cycle_id, cycle_number, block_number, epochs_created, tranches, failures,
			started_at, finished_at, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`,
		report.ID, report.Number, report.BlockNumber, report.EpochsCreated, report.Tranches, report.Failures,
		report.StartedAt, report.FinishedAt, errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to save cycle %s: %w", report.ID, err)
	}
	return nil
}

// GetRecentCycles returns the latest rewarder cycles, newest first.
func GetRecentCycles(ctx context.Context, limit int) (cycles []types.CycleReport, err error) {
	if DB == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	defer func() { err = observe(err) }()

	rows, err := DB.QueryContext(ctx, `
		SELECT cycle_id::TEXT, cycle_number, block_number, epochs_created, tranches, failures,
		       started_at, finished_at, error_message
		FROM rewarder_cycles
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c                 types.CycleReport
			started, finished time.Time
			errMsg            sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.Number, &c.BlockNumber, &c.EpochsCreated, &c.Tranches, &c.Failures,
			&started, &finished, &errMsg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		c.StartedAt, c.FinishedAt, c.Error = started, finished, errMsg.String
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return cycles, nil
}

// CycleStore adapts the cycle functions to the rewarder's store interface.
type CycleStore struct{}

func (CycleStore) IncrementCycleNumber(ctx context.Context) (int, error) {
	return IncrementCycleNumber(ctx)
}

func (CycleStore) SaveCycle(ctx context.Context, report types.CycleReport) error {
	return SaveCycle(ctx, report)
}
