package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

// KeeperConfig holds configuration for the keeper command.
type KeeperConfig struct {
	Scenario          string
	RPCURL            string
	Aggregator        string
	Interval          time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	Checkpoint        string
	CheckpointEnabled bool
	MaxUpkeeps        uint64
	MetricsAddr       string
	Out               string
	LogLevel          string
}

// LoadKeeper merges config file, environment variables, and flags into KeeperConfig.
func LoadKeeper(cfgFile string, flags *pflag.FlagSet) (KeeperConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"interval":           15 * time.Second,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"checkpoint":         "./data/keeper_checkpoint.json",
		"checkpoint-enabled": true,
		"metrics-addr":       ":9102",
	})
	if err != nil {
		return KeeperConfig{}, err
	}

	cfg := KeeperConfig{
		Scenario:          v.GetString("scenario"),
		RPCURL:            v.GetString("rpc"),
		Aggregator:        v.GetString("aggregator"),
		Interval:          v.GetDuration("interval"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxUpkeeps:        v.GetUint64("max-upkeeps"),
		MetricsAddr:       v.GetString("metrics-addr"),
		Out:               v.GetString("out"),
		LogLevel:          v.GetString("log-level"),
	}

	if cfg.Scenario == "" {
		return KeeperConfig{}, fmt.Errorf("scenario is required")
	}
	if cfg.Aggregator != "" {
		if cfg.RPCURL == "" {
			return KeeperConfig{}, fmt.Errorf("rpc is required with aggregator")
		}
		if !common.IsHexAddress(cfg.Aggregator) {
			return KeeperConfig{}, fmt.Errorf("invalid aggregator address: %s", cfg.Aggregator)
		}
	}
	if cfg.Interval <= 0 {
		return KeeperConfig{}, fmt.Errorf("interval must be > 0")
	}
	return cfg, nil
}
