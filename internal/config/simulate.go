package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Scenario  string
	Out       string
	Snapshots string
	PGDSN     string
	Migrate   bool
	LogLevel  string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"out":     "./data/events.jsonl",
		"migrate": true,
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Scenario:  v.GetString("scenario"),
		Out:       v.GetString("out"),
		Snapshots: v.GetString("snapshots"),
		PGDSN:     v.GetString("pg-dsn"),
		Migrate:   v.GetBool("migrate"),
		LogLevel:  v.GetString("log-level"),
	}
	if cfg.Scenario == "" {
		return SimulateConfig{}, fmt.Errorf("scenario is required")
	}
	return cfg, nil
}
