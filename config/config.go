package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config drives the simulator binary: where state lives and which chain
// parameters the scenario runs under.
type Config struct {
	DataDir     string `toml:"DataDir"`
	Environment string `toml:"Environment"`
	StartHeight uint64 `toml:"StartHeight"`
	BlockTime   uint64 `toml:"BlockTime"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		DataDir:     "./alkadex-data",
		Environment: "local",
		StartHeight: 840_000,
		BlockTime:   600,
	}
}

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create default %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaults.DataDir
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = defaults.Environment
	}
	if cfg.StartHeight == 0 {
		cfg.StartHeight = defaults.StartHeight
	}
	if cfg.BlockTime == 0 {
		cfg.BlockTime = defaults.BlockTime
	}
}

// Validate rejects configurations the simulator cannot run under.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.BlockTime == 0 {
		return fmt.Errorf("config: BlockTime must be positive")
	}
	return nil
}
