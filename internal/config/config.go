// Package config loads the agent-recognized configuration keys: a YAML
// file merged over built-in defaults, with environment variables able to
// override individual keys (YAML + mergo + .env).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AgentConfig holds every key an agent or the gateway may consult, per the
// configuration table.
type AgentConfig struct {
	PollIntervalSeconds  int     `yaml:"poll_interval_seconds"`
	BatchLimit           int     `yaml:"batch_limit"`
	MaxDatasetSizeGB     float64 `yaml:"max_dataset_size_gb"`
	BatchSize            int     `yaml:"batch_size"`
	DefaultEpochs        int     `yaml:"default_epochs"`
	DefaultLearningRate  float64 `yaml:"default_learning_rate"`
	DownloadRetries      int     `yaml:"download_retries"`
	UploadRetries        int     `yaml:"upload_retries"`
	AdvanceStatusRetries int     `yaml:"advance_status_retries"`
	LogLevel             string  `yaml:"log_level"`
}

// PollInterval returns PollIntervalSeconds as a time.Duration.
func (c AgentConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Defaults returns the built-in configuration defaults — the floor every
// deployment starts from.
func Defaults() AgentConfig {
	return AgentConfig{
		PollIntervalSeconds:  10,
		BatchLimit:           1,
		MaxDatasetSizeGB:     50,
		BatchSize:            32,
		DefaultEpochs:        10,
		DefaultLearningRate:  0.001,
		DownloadRetries:      5,
		UploadRetries:        5,
		AdvanceStatusRetries: 3,
		LogLevel:             "info",
	}
}

// Load first loads a .env file into the process environment if present,
// then reads an optional YAML config file, merges it over the built-in
// defaults (non-zero file values win), and finally applies environment
// variable overrides (which therefore also see values from .env) — a
// layered load/merge pipeline scoped to this package's flat key table.
func Load(path string) (AgentConfig, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else {
			var fileCfg AgentConfig
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
				return cfg, fmt.Errorf("failed to merge config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *AgentConfig) {
	if v, ok := envInt("POLL_INTERVAL_SECONDS"); ok {
		cfg.PollIntervalSeconds = v
	}
	if v, ok := envInt("BATCH_LIMIT"); ok {
		cfg.BatchLimit = v
	}
	if v, ok := envFloat("MAX_DATASET_SIZE_GB"); ok {
		cfg.MaxDatasetSizeGB = v
	}
	if v, ok := envInt("BATCH_SIZE"); ok {
		cfg.BatchSize = v
	}
	if v, ok := envInt("DEFAULT_EPOCHS"); ok {
		cfg.DefaultEpochs = v
	}
	if v, ok := envFloat("DEFAULT_LEARNING_RATE"); ok {
		cfg.DefaultLearningRate = v
	}
	if v, ok := envInt("DOWNLOAD_RETRIES"); ok {
		cfg.DownloadRetries = v
	}
	if v, ok := envInt("UPLOAD_RETRIES"); ok {
		cfg.UploadRetries = v
	}
	if v, ok := envInt("ADVANCE_STATUS_RETRIES"); ok {
		cfg.AdvanceStatusRetries = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
