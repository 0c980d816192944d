// Package config holds all interpreter configuration. Values resolve in
// three layers: defaults, then an optional YAML file, then environment
// overrides. CLI flags are applied last by the command layer.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all interpreter configuration.
type Config struct {
	// Evaluation settings
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Search settings
	Search SearchConfig `yaml:"search"`

	// Oracle client
	Oracle OracleConfig `yaml:"oracle"`

	// Journal persistence
	Journal JournalConfig `yaml:"journal"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EvaluationConfig bounds a single run.
type EvaluationConfig struct {
	// Budget is the maximum number of reduction steps per run.
	Budget int `yaml:"budget" env:"EPISTEME_BUDGET"`
}

// SearchConfig configures choice-point resolution.
type SearchConfig struct {
	// Axioms names the epistemic axiom set (K or KD45).
	Axioms string `yaml:"axioms" env:"EPISTEME_AXIOMS"`

	// RulesPath points at a Mangle heuristic ruleset (.mg). Empty uses
	// the built-in defaults.
	RulesPath string `yaml:"rules_path" env:"EPISTEME_RULES"`
}

// OracleConfig configures the external guidance service. An empty
// endpoint means no oracle: local-heuristic and exhaustive search only.
type OracleConfig struct {
	Endpoint string        `yaml:"endpoint" env:"EPISTEME_ORACLE"`
	Timeout  time.Duration `yaml:"timeout" env:"EPISTEME_ORACLE_TIMEOUT"`
}

// JournalConfig configures persistence. An empty path keeps the journal
// in memory only.
type JournalConfig struct {
	Path string `yaml:"path" env:"EPISTEME_JOURNAL"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose" env:"EPISTEME_VERBOSE"`
}

// Default returns production defaults.
func Default() Config {
	return Config{
		Evaluation: EvaluationConfig{Budget: 100000},
		Search:     SearchConfig{Axioms: "K"},
		Oracle:     OracleConfig{Timeout: 30 * time.Second},
	}
}

// Load resolves configuration: defaults, then the YAML file at path (if
// non-empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("apply environment overrides: %w", err)
	}

	if cfg.Evaluation.Budget <= 0 {
		return cfg, fmt.Errorf("budget must be positive, got %d", cfg.Evaluation.Budget)
	}
	return cfg, nil
}
