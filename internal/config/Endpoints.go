package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	BlockSourceEVM    = "evm"
	BlockSourceComet  = "comet"
	BlockSourceManual = "manual"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// BlockSource selects where block heights come from: evm, comet or manual.
	BlockSource string
	// EVMRPC is the JSON-RPC endpoint of the EVM chain. Also used for live pool quotes.
	EVMRPC string
	// CometRPC is the CometBFT RPC endpoint.
	CometRPC string
	// ManualBlockTime is how often the manual block source advances.
	ManualBlockTime time.Duration

	// Database settings; the service runs without persistence when DBHost is empty.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	BlockSource = getEnvOrDefault("BLOCK_SOURCE", BlockSourceManual)
	EVMRPC = getEnvOrDefault("EVM_RPC", "")
	CometRPC = getEnvOrDefault("COMET_RPC", "")
	blockTime, err := getEnvAsDurationOrDefault("MANUAL_BLOCK_TIME", 6*time.Second)
	if err != nil {
		return err
	}
	ManualBlockTime = blockTime

	switch BlockSource {
	case BlockSourceEVM:
		if EVMRPC == "" {
			return fmt.Errorf("EVM_RPC is required when BLOCK_SOURCE=%s", BlockSource)
		}
	case BlockSourceComet:
		if CometRPC == "" {
			return fmt.Errorf("COMET_RPC is required when BLOCK_SOURCE=%s", BlockSource)
		}
	case BlockSourceManual:
	default:
		return fmt.Errorf("unknown BLOCK_SOURCE %q", BlockSource)
	}

	DBHost = getEnvOrDefault("DB_HOST", "")
	DBUser = getEnvOrDefault("DB_USER", "")
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBName = getEnvOrDefault("DB_NAME", "")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return fmt.Errorf("environment variable DB_PORT must be an integer: %w", err)
	}
	DBPort = port

	log.Debug().
		Str("BlockSource", BlockSource).
		Str("EVMRPC", EVMRPC).
		Str("CometRPC", CometRPC).
		Bool("Database", DatabaseEnabled()).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// DatabaseEnabled reports whether persistence is configured.
func DatabaseEnabled() bool {
	return DBHost != ""
}
