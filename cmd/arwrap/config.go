package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const envConfigPath = "ARWRAP_CONFIG"

// Config represents the arwrap configuration file (~/.config/arwrap/config.yaml).
// Numeric fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	// Model
	Vocab     *int64 `yaml:"vocab"`
	Hidden    *int64 `yaml:"hidden"`
	ModelSeed *int64 `yaml:"model_seed"`
	MaxSeqLen *int64 `yaml:"max_seq_len"`
	PadValue  *int64 `yaml:"pad_value"`

	// Sampling defaults
	Temperature     *float64 `yaml:"temperature"`
	FilterThreshold *float64 `yaml:"filter_threshold"`
	Steps           *int64   `yaml:"steps"`
	Seed            *int64   `yaml:"seed"`
	Terminator      *int64   `yaml:"terminator"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "arwrap", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't
// exist.
func LoadConfig() (Config, error) {
	return loadConfigFile(configPath())
}

func loadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyModelConfig applies config file defaults to the model flags when the
// corresponding CLI flag was not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.Vocab != nil && !c.IsSet("vocab") {
		vocab = *cfg.Vocab
	}
	if cfg.Hidden != nil && !c.IsSet("hidden") {
		hidden = *cfg.Hidden
	}
	if cfg.ModelSeed != nil && !c.IsSet("model-seed") {
		modelSeed = *cfg.ModelSeed
	}
	if cfg.MaxSeqLen != nil && !c.IsSet("max-seq-len") && !c.IsSet("max-ctx") {
		maxSeqLen = *cfg.MaxSeqLen
	}
	if cfg.PadValue != nil && !c.IsSet("pad") {
		padValue = *cfg.PadValue
	}
}

// applySamplingConfig applies config file defaults to the sampling flags.
func applySamplingConfig(c *cli.Command, cfg Config, s *samplingFlags) {
	if cfg.Temperature != nil && !c.IsSet("temperature") && !c.IsSet("temp") && !c.IsSet("t") {
		s.temperature = *cfg.Temperature
	}
	if cfg.FilterThreshold != nil && !c.IsSet("filter-threshold") {
		s.filterThreshold = *cfg.FilterThreshold
	}
	if cfg.Steps != nil && !c.IsSet("steps") && !c.IsSet("n") {
		s.steps = *cfg.Steps
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		s.seed = *cfg.Seed
	}
	s.hasTerminator = c.IsSet("terminator")
	if cfg.Terminator != nil && !s.hasTerminator {
		s.terminator = *cfg.Terminator
		s.hasTerminator = true
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
