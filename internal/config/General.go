package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// EpochStartBlock is the first block of epoch 1.
	EpochStartBlock uint64
	// EpochDaySize is the number of blocks in a day.
	EpochDaySize uint64
	// EpochSize is the number of days in an epoch.
	EpochSize uint64
	// EpochRewardAmount is the fixed VANA emission of every epoch, in wei.
	EpochRewardAmount sdkmath.Int
	// LastEpoch caps epoch creation when non-zero.
	LastEpoch uint64

	// WVANA is the wrapped VANA token paid out by tranches.
	WVANA common.Address
	// RewardsTreasury holds undistributed epoch rewards.
	RewardsTreasury common.Address
	// DistributorAddress is the distributor's custodian identity.
	DistributorAddress common.Address
	// EngineAddress is the account tranches are swapped from.
	EngineAddress common.Address
	// ServiceAddress is the caller the rewarder acts as.
	ServiceAddress common.Address

	// Maintainers, ScoringManagers and RewardDeployers are granted the matching roles at startup.
	Maintainers     []common.Address
	ScoringManagers []common.Address
	RewardDeployers []common.Address

	// CycleInterval is the pause between rewarder cycles.
	CycleInterval time.Duration
	// APIListenAddr is the address the query API listens on.
	APIListenAddr string
	// APIMaxClockSkew bounds the timestamp of signed write requests.
	APIMaxClockSkew time.Duration
	// SeedFile is the YAML file describing pools, positions and DLPs.
	SeedFile string
	// WeightsConfigName is the metric_weights config the scorer reads and writes.
	WeightsConfigName string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	if EpochStartBlock, err = getEnvAsUint64("EPOCH_START_BLOCK"); err != nil {
		return err
	}
	if EpochDaySize, err = getEnvAsUint64("EPOCH_DAY_SIZE"); err != nil {
		return err
	}
	if EpochSize, err = getEnvAsUint64("EPOCH_SIZE"); err != nil {
		return err
	}
	if EpochRewardAmount, err = getEnvAsInt("EPOCH_REWARD_AMOUNT"); err != nil {
		return err
	}
	if LastEpoch, err = getEnvAsUint64OrDefault("EPOCH_LAST", 0); err != nil {
		return err
	}

	if WVANA, err = getEnvAsAddress("WVANA_ADDRESS"); err != nil {
		return err
	}
	if RewardsTreasury, err = getEnvAsAddress("REWARDS_TREASURY_ADDRESS"); err != nil {
		return err
	}
	if DistributorAddress, err = getEnvAsAddress("DISTRIBUTOR_ADDRESS"); err != nil {
		return err
	}
	if EngineAddress, err = getEnvAsAddress("ENGINE_ADDRESS"); err != nil {
		return err
	}
	if ServiceAddress, err = getEnvAsAddress("SERVICE_ADDRESS"); err != nil {
		return err
	}

	if Maintainers, err = getEnvAsAddressList("MAINTAINER_ADDRESSES"); err != nil {
		return err
	}
	if ScoringManagers, err = getEnvAsAddressList("SCORING_MANAGER_ADDRESSES"); err != nil {
		return err
	}
	if RewardDeployers, err = getEnvAsAddressList("REWARD_DEPLOYER_ADDRESSES"); err != nil {
		return err
	}

	if CycleInterval, err = getEnvAsDurationOrDefault("REWARDER_CYCLE_INTERVAL", DefaultCycleInterval); err != nil {
		return err
	}
	APIListenAddr = getEnvOrDefault("API_LISTEN_ADDR", DefaultAPIListenAddr)
	if APIMaxClockSkew, err = getEnvAsDurationOrDefault("API_MAX_CLOCK_SKEW", DefaultAPIMaxClockSkew); err != nil {
		return err
	}
	SeedFile = getEnvOrDefault("SEED_FILE", "seed.yaml")
	WeightsConfigName = getEnvOrDefault("WEIGHTS_CONFIG_NAME", "default")

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Uint64("EpochStartBlock", EpochStartBlock).
		Uint64("EpochLength", EpochDaySize*EpochSize).
		Str("EpochRewardAmount", EpochRewardAmount.String()).
		Str("WVANA", WVANA.Hex()).
		Str("BlockSource", BlockSource).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsUint64OrDefault(key string, def uint64) (uint64, error) {
	if _, exists := os.LookupEnv(key); !exists {
		return def, nil
	}
	return getEnvAsUint64(key)
}

// getEnvAsInt retrieves a non-negative base-10 integer of any size.
func getEnvAsInt(key string) (sdkmath.Int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.Int{}, err
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok || value.IsNegative() {
		return sdkmath.Int{}, errors.New("environment variable " + key + " must be a non-negative integer, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	return parseAddress(key, valueStr)
}

// getEnvAsAddressList parses a comma-separated address list. Unset means empty.
func getEnvAsAddressList(key string) ([]common.Address, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return nil, nil
	}
	var out []common.Address
	for _, part := range strings.Split(valueStr, ",") {
		addr, err := parseAddress(key, strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func getEnvAsDurationOrDefault(key string, def time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}

func parseAddress(key, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("environment variable %s must be a hex address, got: %q", key, value)
	}
	return common.HexToAddress(value), nil
}
