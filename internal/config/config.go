// Package config loads the miner process's YAML configuration: where
// plots and metadata live, default scanning behavior, and logging. It
// carries no chain, contract, or subgraph configuration — those are
// external collaborators the mining core never parses (spec §6.3).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spacetime-chain/post-miner/internal/infra/logging"
)

// Config is the miner process's top-level configuration document.
type Config struct {
	Plots     PlotsConfig     `yaml:"plots"`
	Scan      ScanConfig      `yaml:"scan"`
	Logging   logging.Config  `yaml:"logging"`
	EventLog  EventLogConfig  `yaml:"event_log"`
}

// PlotsConfig locates the plot files and the manager's metadata registry.
type PlotsConfig struct {
	Directory    string `yaml:"directory"`
	MetadataPath string `yaml:"metadata_path"`
}

// ScanConfig holds the default scanning strategy and termination policy
// used when a mine request does not override them.
type ScanConfig struct {
	// Strategy selects the default scanning strategy: "full", "sampling",
	// or "cache_friendly".
	Strategy string `yaml:"strategy"`

	SamplingCount          int64 `yaml:"sampling_count"`
	CacheFriendlyBlockSize int64 `yaml:"cache_friendly_block_size"`
	CacheFriendlyLeavesPerBlock int64 `yaml:"cache_friendly_leaves_per_block"`

	// CacheLevels is a cache level count read from the config file. The
	// "plot create" command does not read the config; it takes its cache
	// level from --cache-level and writes a cache file whenever --cache is
	// set.
	CacheLevels int32 `yaml:"cache_levels"`

	QualityThresholdBits int   `yaml:"quality_threshold_bits"`
	MaxLeaves            int64 `yaml:"max_leaves"`
}

// EventLogConfig locates the badger-backed manager event journal.
type EventLogConfig struct {
	Directory string `yaml:"directory"`
}

// Load reads and parses the YAML document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}
