package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/dlprewards/internal/access"
	"github.com/elys-network/dlprewards/internal/amm"
	"github.com/elys-network/dlprewards/internal/chain"
	"github.com/elys-network/dlprewards/internal/config"
	"github.com/elys-network/dlprewards/internal/distributor"
	"github.com/elys-network/dlprewards/internal/epoch"
	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/logger"
	"github.com/elys-network/dlprewards/internal/metrics"
	"github.com/elys-network/dlprewards/internal/performance"
	"github.com/elys-network/dlprewards/internal/registry"
	"github.com/elys-network/dlprewards/internal/rewarder"
	"github.com/elys-network/dlprewards/internal/state"
	"github.com/elys-network/dlprewards/internal/treasury"
	"github.com/elys-network/dlprewards/internal/web"
)

// Set with -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
)

// main is the entry point for the DLP rewards service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	metrics.BuildInfo.WithLabelValues(version, commit).Set(1)
	log.Info().Str("version", version).Str("commit", commit).Msg("DLP rewards service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Block source ---
	var blocks chain.BlockSource
	var evmSource *chain.EVMBlockSource
	switch config.BlockSource {
	case config.BlockSourceEVM:
		source, err := chain.DialEVM(ctx, config.EVMRPC)
		if err != nil {
			log.Fatal().Err(err).Msg("EVM connection error")
		}
		defer source.Close()
		evmSource = source
		blocks = source
	case config.BlockSourceComet:
		source, err := chain.DialComet(config.CometRPC)
		if err != nil {
			log.Fatal().Err(err).Msg("CometBFT connection error")
		}
		blocks = source
	default:
		source := chain.NewManualBlockSource(config.EpochStartBlock)
		go advanceBlocks(ctx, source, config.ManualBlockTime)
		blocks = source
	}
	log.Info().Str("source", config.BlockSource).Msg("Block source ready")

	// --- 3. Persistence (optional) ---
	weights := config.DefaultMetricWeights
	if config.DatabaseEnabled() {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}

		active, activeVersion, err := state.LoadActiveMetricWeights(ctx, config.WeightsConfigName)
		switch {
		case err == nil:
			weights = active
			log.Info().Int("version", activeVersion).Msg("Metric weights loaded")
		case errors.Is(err, state.ErrNoActiveWeights):
			log.Warn().Msg("No active metric weights, saving defaults")
			if _, err := state.SaveMetricWeights(ctx, config.WeightsConfigName, weights, true); err != nil {
				log.Fatal().Err(err).Msg("Failed to save default metric weights")
			}
		default:
			log.Fatal().Err(err).Msg("Failed to load metric weights")
		}
	} else {
		log.Warn().Msg("DB_HOST not set, running without persistence")
	}

	// --- 4. Roles ---
	roles := access.NewRoles()
	grantAll(roles, access.RoleMaintainer, append(config.Maintainers, config.ServiceAddress))
	grantAll(roles, access.RoleScoringManager, config.ScoringManagers)
	grantAll(roles, access.RoleRewardDeployer, append(config.RewardDeployers, config.ServiceAddress))
	roles.Grant(access.RoleCustodian, config.DistributorAddress)

	// --- 5. Substrate and seed ---
	j := journal.New()
	ledger := treasury.NewLedger(j)
	rewardsTreasury := treasury.New(config.RewardsTreasury, ledger, roles)
	positions := amm.NewMemPositionManager(j)
	reg := registry.NewMemRegistry()

	seed, err := config.LoadSeed(config.SeedFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load seed file")
	}
	pools, err := applySeed(ctx, seed, ledger, positions, reg, j)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to apply seed")
	}
	if evmSource != nil {
		for address := range pools {
			live, err := amm.NewEVMPoolReader(ctx, evmSource.Client(), address)
			if err != nil {
				log.Warn().Err(err).Str("pool", address.Hex()).Msg("Live pool unavailable, quoting from the seeded pool")
				continue
			}
			pools[address] = live
		}
	}
	log.Info().Int("pools", len(pools)).Int("dlps", len(reg.All())).Msg("Seed applied")

	// --- 6. Reward core ---
	engine, err := amm.NewEngine(amm.EngineConfig{
		Address:   config.EngineAddress,
		WVANA:     config.WVANA,
		Positions: positions,
		Bank:      ledger,
		Journal:   j,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create swap engine")
	}

	epochs, err := epoch.NewManager(epoch.Config{
		StartBlock:   config.EpochStartBlock,
		DaySize:      config.EpochDaySize,
		EpochSize:    config.EpochSize,
		RewardAmount: config.EpochRewardAmount,
		Auth:         roles,
		Blocks:       blocks,
		Journal:      j,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create epoch manager")
	}
	if config.LastEpoch != 0 {
		if err := epochs.SetLastEpoch(ctx, config.ServiceAddress, config.LastEpoch); err != nil {
			log.Fatal().Err(err).Msg("Failed to set last epoch")
		}
	}

	scorerCfg := performance.Config{
		Weights: weights,
		Epochs:  epochs,
		Auth:    roles,
		Blocks:  blocks,
		Journal: j,
	}
	distCfg := distributor.Config{
		Address:                   config.DistributorAddress,
		WVANA:                     config.WVANA,
		RewardPercentage:          config.DefaultRewardPercentage,
		MaximumSlippagePercentage: config.DefaultMaximumSlippagePercentage,
		Epochs:                    epochs,
		Registry:                  reg,
		Treasury:                  rewardsTreasury,
		Engine:                    engine,
		Auth:                      roles,
		Blocks:                    blocks,
		Journal:                   j,
	}
	rewarderCfg := rewarder.Config{
		Caller: config.ServiceAddress,
		Epochs: epochs,
		Blocks: blocks,
		AutoInitialize: &rewarder.Schedule{
			IntervalBlocks:          config.EpochDaySize,
			NumberOfTranches:        config.DefaultNumberOfTranches,
			RemediationWindowBlocks: config.DefaultRemediationWindowBlocks,
		},
	}
	if config.DatabaseEnabled() {
		scorerCfg.Store = state.WeightsStore{ConfigName: config.WeightsConfigName}
		distCfg.Sink = state.ReceiptSink{}
		rewarderCfg.Store = state.CycleStore{}
	}

	scorer, err := performance.NewScorer(scorerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create performance scorer")
	}
	dist, err := distributor.New(distCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create tranche distributor")
	}
	rewarderCfg.Distributor = dist
	rw, err := rewarder.New(rewarderCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rewarder")
	}

	// --- 7. Web server ---
	webServer := web.NewWebServer(web.Options{
		ListenAddr:        config.APIListenAddr,
		Epochs:            epochs,
		Performance:       scorer,
		Distribution:      dist,
		Registry:          reg,
		Blocks:            blocks,
		Pools:             pools,
		EpochAdmin:        epochs,
		PerformanceAdmin:  scorer,
		DistributionAdmin: dist,
		MaxClockSkew:      config.APIMaxClockSkew,
	})
	go func() {
		if err := webServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 8. Rewarder loop ---
	rw.RunLoop(ctx, config.CycleInterval)
	log.Info().Msg("DLP rewards service stopped")
}

func grantAll(roles *access.Roles, role access.Role, callers []common.Address) {
	for _, caller := range callers {
		roles.Grant(role, caller)
	}
}

// advanceBlocks moves the manual block source forward one block per tick.
func advanceBlocks(ctx context.Context, source *chain.ManualBlockSource, blockTime time.Duration) {
	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			source.Advance(1)
		}
	}
}
