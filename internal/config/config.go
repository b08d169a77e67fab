// Package config provides FactoryConfig loading. Config is read from
// factory.yaml in the project root. A missing file returns sane defaults
// without error. CLI flags (bound via cobra) override config file values at
// the highest precedence by mutating the returned struct after loading.
//
// Deployment identity comes from the environment: REPO_TOKEN is the only
// source for the API token and is never read from the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the project root.
const FileName = "factory.yaml"

// Default values for FactoryConfig fields.
const (
	DefaultBacklogPath   = "product/BACKLOG.yml"
	DefaultStateDir      = ".factory"
	DefaultRepoOwner     = "AmosPulse"
	DefaultRepoName      = "proof-stamp"
	DefaultBudgetCeiling = 50.0
	DefaultWorkers       = 2
	MaxWorkers           = 4
	DefaultMaxAttempts   = 3
)

// Default durations, expressed the way factory.yaml expects them.
const (
	DefaultRateInterval       = 500 * time.Millisecond
	DefaultStuckTaskThreshold = 30 * time.Minute
	DefaultStuckEpicThreshold = 60 * time.Minute
)

// FactoryConfig holds all configuration for the factory orchestrator.
type FactoryConfig struct {
	BacklogPath        string        `yaml:"backlog_path"`
	StateDir           string        `yaml:"state_dir"`
	RepoOwner          string        `yaml:"repo_owner"`
	RepoName           string        `yaml:"repo_name"`
	ProjectID          string        `yaml:"project_id"`
	APIBaseURL         string        `yaml:"api_base_url"`
	BudgetCeiling      float64       `yaml:"budget_ceiling"`
	Workers            int           `yaml:"workers"`
	MaxAttempts        int           `yaml:"max_attempts"`
	RateInterval       time.Duration `yaml:"-"`
	StuckTaskThreshold time.Duration `yaml:"-"`
	StuckEpicThreshold time.Duration `yaml:"-"`

	// Token is env-supplied (REPO_TOKEN) and never read from the file.
	Token string `yaml:"-"`
}

// defaults returns a FactoryConfig populated with sane defaults.
func defaults() FactoryConfig {
	return FactoryConfig{
		BacklogPath:        DefaultBacklogPath,
		StateDir:           DefaultStateDir,
		RepoOwner:          DefaultRepoOwner,
		RepoName:           DefaultRepoName,
		BudgetCeiling:      DefaultBudgetCeiling,
		Workers:            DefaultWorkers,
		MaxAttempts:        DefaultMaxAttempts,
		RateInterval:       DefaultRateInterval,
		StuckTaskThreshold: DefaultStuckTaskThreshold,
		StuckEpicThreshold: DefaultStuckEpicThreshold,
	}
}

// partialConfig is used during YAML parsing to distinguish between a field
// being absent (nil pointer) and a field being explicitly set to its zero
// value. Durations are authored as strings ("500ms", "30m").
type partialConfig struct {
	BacklogPath        *string  `yaml:"backlog_path"`
	StateDir           *string  `yaml:"state_dir"`
	RepoOwner          *string  `yaml:"repo_owner"`
	RepoName           *string  `yaml:"repo_name"`
	ProjectID          *string  `yaml:"project_id"`
	APIBaseURL         *string  `yaml:"api_base_url"`
	BudgetCeiling      *float64 `yaml:"budget_ceiling"`
	Workers            *int     `yaml:"workers"`
	MaxAttempts        *int     `yaml:"max_attempts"`
	RateInterval       *string  `yaml:"rate_interval"`
	StuckTaskThreshold *string  `yaml:"stuck_task_threshold"`
	StuckEpicThreshold *string  `yaml:"stuck_epic_threshold"`
}

// LoadConfig reads factory.yaml at path and returns a FactoryConfig.
// If the file does not exist, defaults are returned without error.
// Fields absent from the file are filled with their default values.
// Fields present in the file override the corresponding default.
// Workers is clamped to [1, MaxWorkers] regardless of source.
//
// CLI flag override pattern: cobra binds flags to the returned
// *FactoryConfig after this call, giving flags the highest precedence
// automatically.
func LoadConfig(path string) (*FactoryConfig, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, err
	}

	var partial partialConfig
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return nil, err
	}

	if partial.BacklogPath != nil {
		cfg.BacklogPath = *partial.BacklogPath
	}
	if partial.StateDir != nil {
		cfg.StateDir = *partial.StateDir
	}
	if partial.RepoOwner != nil {
		cfg.RepoOwner = *partial.RepoOwner
	}
	if partial.RepoName != nil {
		cfg.RepoName = *partial.RepoName
	}
	if partial.ProjectID != nil {
		cfg.ProjectID = *partial.ProjectID
	}
	if partial.APIBaseURL != nil {
		cfg.APIBaseURL = *partial.APIBaseURL
	}
	if partial.BudgetCeiling != nil {
		cfg.BudgetCeiling = *partial.BudgetCeiling
	}
	if partial.Workers != nil {
		cfg.Workers = *partial.Workers
	}
	if partial.MaxAttempts != nil {
		cfg.MaxAttempts = *partial.MaxAttempts
	}
	if partial.RateInterval != nil {
		d, err := time.ParseDuration(*partial.RateInterval)
		if err != nil {
			return nil, fmt.Errorf("factory.yaml: invalid rate_interval %q: %w", *partial.RateInterval, err)
		}
		cfg.RateInterval = d
	}
	if partial.StuckTaskThreshold != nil {
		d, err := time.ParseDuration(*partial.StuckTaskThreshold)
		if err != nil {
			return nil, fmt.Errorf("factory.yaml: invalid stuck_task_threshold %q: %w", *partial.StuckTaskThreshold, err)
		}
		cfg.StuckTaskThreshold = d
	}
	if partial.StuckEpicThreshold != nil {
		d, err := time.ParseDuration(*partial.StuckEpicThreshold)
		if err != nil {
			return nil, fmt.Errorf("factory.yaml: invalid stuck_epic_threshold %q: %w", *partial.StuckEpicThreshold, err)
		}
		cfg.StuckEpicThreshold = d
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > MaxWorkers {
		cfg.Workers = MaxWorkers
	}

	return &cfg, nil
}

// ApplyEnv overlays deployment identity from the environment:
// REPO_OWNER, REPO_NAME and PROJECT_ID override the file when set;
// REPO_TOKEN is read unconditionally.
func ApplyEnv(cfg *FactoryConfig) {
	if v := os.Getenv("REPO_OWNER"); v != "" {
		cfg.RepoOwner = v
	}
	if v := os.Getenv("REPO_NAME"); v != "" {
		cfg.RepoName = v
	}
	if v := os.Getenv("PROJECT_ID"); v != "" {
		cfg.ProjectID = v
	}
	cfg.Token = os.Getenv("REPO_TOKEN")
}
