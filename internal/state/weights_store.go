package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/dlprewards/internal/types"
)

// ErrNoActiveWeights means no metric weights were ever activated for the config.
var ErrNoActiveWeights = errors.New("no active metric weights")

// SaveMetricWeights stores weights as the next version of configName, optionally deactivating the
// previous active version in the same transaction. It returns the new version number.
func SaveMetricWeights(ctx context.Context, configName string, w types.MetricWeights, makeActive bool) (version int, err error) {
	if DB == nil {
		return 0, ErrNoDatabase
	}
	defer func() { err = observe(err) }()

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	// Serializes concurrent writers of the same config.
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, configName); err != nil {
		return 0, fmt.Errorf("failed to lock %s: %w", configName, err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM metric_weights WHERE config_name = $1;`,
		configName,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate version for %s: %w", configName, err)
	}

	if makeActive {
		_, err = tx.ExecContext(ctx,
			`UPDATE metric_weights SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`,
			configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing weights for %s: %w", configName, err)
		}
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO metric_weights (
			version, config_name, is_active, activated_at, created_at,
			trading_volume, unique_contributors, data_access_fees
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`,
		version, configName, makeActive, now, now,
		w.TradingVolume.String(), w.UniqueContributors.String(), w.DataAccessFees.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert metric weights: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Bool("active", makeActive).
		Msg("Saved metric weights")
	return version, nil
}

// LoadActiveMetricWeights loads the currently active weights of configName.
func LoadActiveMetricWeights(ctx context.Context, configName string) (w types.MetricWeights, version int, err error) {
	if DB == nil {
		return types.MetricWeights{}, 0, ErrNoDatabase
	}
	defer func() { err = observe(err) }()

	var tv, uc, daf string
	err = DB.QueryRowContext(ctx, `
		SELECT version, trading_volume::TEXT, unique_contributors::TEXT, data_access_fees::TEXT
		FROM metric_weights
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`,
		configName,
	).Scan(&version, &tv, &uc, &daf)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.MetricWeights{}, 0, fmt.Errorf("%w for config '%s'", ErrNoActiveWeights, configName)
		}
		return types.MetricWeights{}, 0, fmt.Errorf("failed to scan active metric weights for config '%s': %w", configName, err)
	}

	w, err = decodeWeights(tv, uc, daf)
	if err != nil {
		return types.MetricWeights{}, 0, err
	}
	log.Info().Str("config", configName).Int("version", version).Msg("Loaded active metric weights")
	return w, version, nil
}

func decodeWeights(tv, uc, daf string) (types.MetricWeights, error) {
	var (
		w    types.MetricWeights
		errs []error
	)
	for _, f := range []struct {
		dst *sdkmath.LegacyDec
		raw string
	}{
		{&w.TradingVolume, tv},
		{&w.UniqueContributors, uc},
		{&w.DataAccessFees, daf},
	} {
		d, err := sdkmath.LegacyNewDecFromStr(f.raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("weight %q: %w", f.raw, err))
			continue
		}
		*f.dst = d
	}
	return w, errors.Join(errs...)
}

// WeightsStore persists scorer weight updates as new active versions of one config.
type WeightsStore struct {
	ConfigName string
}

func (s WeightsStore) SaveMetricWeights(ctx context.Context, w types.MetricWeights) error {
	_, err := SaveMetricWeights(ctx, s.ConfigName, w, true)
	return err
}
