// Package config holds ingestion configuration for the indexer core.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration needed to run the indexing pipeline.
type Config struct {
	// DataDir is the root directory for the persistent store (§4.E).
	DataDir string

	// NetworkName names the network, e.g. "mainnet" or "devnet"; the
	// indexer uses it as the store's database name. The network in a block
	// file's name (see block.ParsePath) is not compared against it.
	NetworkName string

	// StoreBackend selects the cometbft-db backend: "goleveldb", "badgerdb",
	// "boltdb", or "memdb".
	StoreBackend string

	// HardforkBlockchainLength is the blockchain_length at which the V1 wire
	// format is retired in favor of V2 ("berkeley"). Blocks at or above this
	// length decode with the V2 schema.
	HardforkBlockchainLength uint32

	// TransitionFrontierDistance is K, the number of blocks below the best
	// tip at which a branch is pruned from the canonical-branch engine.
	TransitionFrontierDistance uint32

	// MainnetGenesisStateHash and HardforkGenesisStateHash identify genesis
	// blocks by state hash rather than by blockchain_length, since genesis
	// files carry no "-LENGTH-" path component.
	MainnetGenesisStateHash  string
	HardforkGenesisStateHash string

	// CoinbaseAmount is the base coinbase reward in nanomina, before any
	// supercharge multiplier is applied.
	CoinbaseAmount uint64

	// SuperchargedCoinbaseFactor multiplies CoinbaseAmount when a block's
	// winning account holds no locked tokens.
	SuperchargedCoinbaseFactor uint64

	// AccountCreationFee, in nanomina, is deducted from the coinbase reward
	// when the block's coinbase receiver has no prior account, and is the
	// amount of a zkapp update's implicit account-creation fee.
	AccountCreationFee uint64

	// ActorChannelCapacity is checked by Validate but not read by the
	// pipeline: actor-DAG edges use actordag's fixed queue depth (16).
	ActorChannelCapacity int

	// LogLevel is read from the environment but not applied; no package
	// filters its log output by level.
	LogLevel string
}

// NewFromEnv builds a Config from environment variables, falling back to
// mainnet-shaped defaults for anything unset.
func NewFromEnv() *Config {
	return &Config{
		DataDir:                    getEnv("MINA_CORE_DATA_DIR", "./data"),
		NetworkName:                getEnv("MINA_CORE_NETWORK", "mainnet"),
		StoreBackend:               getEnv("MINA_CORE_STORE_BACKEND", "goleveldb"),
		HardforkBlockchainLength:   uint32(getEnvInt("MINA_CORE_HARDFORK_LENGTH", 359605)),
		TransitionFrontierDistance: uint32(getEnvInt("MINA_CORE_TRANSITION_FRONTIER_K", 290)),
		MainnetGenesisStateHash:    getEnv("MINA_CORE_MAINNET_GENESIS_HASH", "3NK4BpDSekaqsG6tx8Nse2zJchRft2JpnbvMiog55WCr5xJZV6VE"),
		HardforkGenesisStateHash:   getEnv("MINA_CORE_HARDFORK_GENESIS_HASH", "3NKeMoncuHab5ScarV5ViyF16cJPT4taWNSaTLS64Dp67wuXigPZ"),
		CoinbaseAmount:             uint64(getEnvInt("MINA_CORE_COINBASE_AMOUNT", 720000000000)),
		SuperchargedCoinbaseFactor: uint64(getEnvInt("MINA_CORE_SUPERCHARGE_FACTOR", 2)),
		AccountCreationFee:         uint64(getEnvInt("MINA_CORE_ACCOUNT_CREATION_FEE", 1000000000)),
		ActorChannelCapacity:       getEnvInt("MINA_CORE_ACTOR_CHANNEL_CAPACITY", 256),
		LogLevel:                   getEnv("MINA_CORE_LOG_LEVEL", "info"),
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "DataDir is required")
	}
	if c.NetworkName == "" {
		errs = append(errs, "NetworkName is required")
	}
	switch c.StoreBackend {
	case "goleveldb", "badgerdb", "boltdb", "memdb":
	default:
		errs = append(errs, fmt.Sprintf("StoreBackend %q is not a supported cometbft-db backend", c.StoreBackend))
	}
	if c.MainnetGenesisStateHash == "" || c.HardforkGenesisStateHash == "" {
		errs = append(errs, "genesis state hashes are required")
	}
	if c.TransitionFrontierDistance == 0 {
		errs = append(errs, "TransitionFrontierDistance must be greater than zero")
	}
	if c.ActorChannelCapacity <= 0 {
		errs = append(errs, "ActorChannelCapacity must be greater than zero")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
