package state

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/dlprewards/internal/types"
)

const receiptColumns = `
	receipt_id::TEXT, epoch_id, dlp_id, tranche_index, block_number,
	tranche_amount::TEXT, token_reward_amount::TEXT, spare_token::TEXT, spare_vana::TEXT,
	used_vana_amount::TEXT, liquidity_delta::TEXT, rolled_over_bonus::TEXT, dropped_bonus::TEXT,
	next_eligible_block, distributed_at`

// SaveTrancheReceipts stores the receipts of one distribution call in a single transaction.
// Receipts already stored are skipped.
func SaveTrancheReceipts(ctx context.Context, receipts []types.TrancheReceipt) (err error) {
	if DB == nil {
		return ErrNoDatabase
	}
	if len(receipts) == 0 {
		return nil
	}
	defer func() { err = observe(err) }()

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tranche_receipts (
			receipt_id, epoch_id, dlp_id, tranche_index, block_number,
			tranche_amount, token_reward_amount, spare_token, spare_vana,
			used_vana_amount, liquidity_delta, rolled_over_bonus, dropped_bonus,
			next_eligible_block, distributed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT DO NOTHING;`)
	if err != nil {
		return fmt.Errorf("failed to prepare receipt insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range receipts {
		_, err = stmt.ExecContext(ctx,
			r.ID, r.EpochID, uint64(r.DlpID), r.TrancheIndex, r.BlockNumber,
			r.TrancheAmount.String(), r.TokenRewardAmount.String(), r.SpareToken.String(), r.SpareVana.String(),
			r.UsedVanaAmount.String(), r.LiquidityDelta.String(), r.RolledOverBonus.String(), r.DroppedBonus.String(),
			r.NextEligibleBlock, r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert receipt %s: %w", r.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.Info().Int("count", len(receipts)).Msg("Tranche receipts saved to database")
	return nil
}

// GetRecentReceipts returns the latest receipts, newest first.
func GetRecentReceipts(ctx context.Context, limit int) ([]types.TrancheReceipt, error) {
	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}
	return queryReceipts(ctx,
		`SELECT`+receiptColumns+` FROM tranche_receipts ORDER BY distributed_at DESC LIMIT $1`,
		limit)
}

// GetEpochReceipts returns every receipt of the epoch in schedule order.
func GetEpochReceipts(ctx context.Context, epochID uint64) ([]types.TrancheReceipt, error) {
	return queryReceipts(ctx,
		`SELECT`+receiptColumns+` FROM tranche_receipts WHERE epoch_id = $1 ORDER BY dlp_id, tranche_index`,
		epochID)
}

func queryReceipts(ctx context.Context, query string, args ...interface{}) (receipts []types.TrancheReceipt, err error) {
	if DB == nil {
		return nil, ErrNoDatabase
	}
	defer func() { err = observe(err) }()

	rows, err := DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r       types.TrancheReceipt
			dlpID   uint64
			amounts [8]string
		)
		err := rows.Scan(
			&r.ID, &r.EpochID, &dlpID, &r.TrancheIndex, &r.BlockNumber,
			&amounts[0], &amounts[1], &amounts[2], &amounts[3],
			&amounts[4], &amounts[5], &amounts[6], &amounts[7],
			&r.NextEligibleBlock, &r.Timestamp,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue // Skip this row and continue with others
		}
		r.DlpID = types.DlpID(dlpID)
		if err := decodeAmounts(amounts, &r); err != nil {
			log.Error().Err(err).Str("receipt_id", r.ID).Msg("Failed to decode receipt amounts")
			continue
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return receipts, nil
}

func decodeAmounts(raw [8]string, r *types.TrancheReceipt) error {
	dsts := [8]*sdkmath.Int{
		&r.TrancheAmount, &r.TokenRewardAmount, &r.SpareToken, &r.SpareVana,
		&r.UsedVanaAmount, &r.LiquidityDelta, &r.RolledOverBonus, &r.DroppedBonus,
	}
	var errs []error
	for i, s := range raw {
		v, ok := sdkmath.NewIntFromString(s)
		if !ok {
			errs = append(errs, fmt.Errorf("invalid amount %q", s))
			continue
		}
		*dsts[i] = v
	}
	return errors.Join(errs...)
}

// ReceiptSink hands committed distribution receipts to SaveTrancheReceipts.
type ReceiptSink struct{}

func (ReceiptSink) SaveTrancheReceipts(ctx context.Context, receipts []types.TrancheReceipt) error {
	return SaveTrancheReceipts(ctx, receipts)
}
