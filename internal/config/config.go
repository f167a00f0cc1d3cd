// Package config handles Governor configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/ethervox/config.yaml, /config/config.yaml,
// /etc/ethervox/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ethervox", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // container convention
	paths = append(paths, "/etc/ethervox/config.yaml")
	return paths
}

// searchPathsFunc is the search-path provider used by FindConfig.
// Overridable in tests to avoid matching real config files on the host.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches searchPathsFunc and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range searchPathsFunc() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPathsFunc())
}

// Config holds all Governor configuration.
type Config struct {
	Governor   GovernorConfig   `yaml:"governor"`
	Model      ModelConfig      `yaml:"model"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	PlatformID string           `yaml:"platform"` // "mobile" selects terser system-prompt preambles
}

// CheckpointConfig controls memory-store snapshotting.
type CheckpointConfig struct {
	// PeriodicTurns creates a checkpoint every N completed turns.
	// 0 disables periodic checkpoints (shutdown checkpoints still run).
	PeriodicTurns int `yaml:"periodic_turns"`
}

// GovernorConfig mirrors the tunables named in the Governor Config data
// model: confidence_threshold, max_iterations, max_tool_calls_per_iteration,
// timeout_seconds, max_tokens_per_response.
type GovernorConfig struct {
	ConfidenceThreshold      float64 `yaml:"confidence_threshold"`
	MaxIterations            int     `yaml:"max_iterations"`
	MaxToolCallsPerIteration int     `yaml:"max_tool_calls_per_iteration"`
	TimeoutSeconds           int     `yaml:"timeout_seconds"`
	MaxTokensPerResponse     int     `yaml:"max_tokens_per_response"`
}

// Timeout returns the configured execute timeout as a time.Duration.
func (g GovernorConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// ModelConfig defines the LLM artifact to load and its context settings.
// Backend names the llm.Loader driver to look up via llm.Open; a binary
// links one or more backend driver packages for their init-func
// registration side effect.
type ModelConfig struct {
	Path             string `yaml:"path"`
	Backend          string `yaml:"backend"`
	ContextWindow    int    `yaml:"context_window"`
	BatchSize        int    `yaml:"batch_size"`
	Threads          int    `yaml:"threads"`
	GPUOffloadLayers int    `yaml:"gpu_offload_layers"`
	FlashAttention   bool   `yaml:"flash_attention"`
	KVCacheQuantBits int    `yaml:"kv_cache_quant_bits"`
	MemoryMapped     bool   `yaml:"memory_mapped"`
}

// MetricsConfig controls the optional Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}); the recommended
	// approach is still to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with the defaults named in
// the Governor Config data model.
func (c *Config) applyDefaults() {
	if c.Governor.ConfidenceThreshold == 0 {
		c.Governor.ConfidenceThreshold = 0.85
	}
	if c.Governor.MaxIterations == 0 {
		c.Governor.MaxIterations = 5
	}
	if c.Governor.MaxToolCallsPerIteration == 0 {
		c.Governor.MaxToolCallsPerIteration = 10
	}
	if c.Governor.TimeoutSeconds == 0 {
		c.Governor.TimeoutSeconds = 30
	}
	if c.Governor.MaxTokensPerResponse == 0 {
		c.Governor.MaxTokensPerResponse = 2048
	}
	if c.Model.ContextWindow == 0 {
		c.Model.ContextWindow = 8192
	}
	if c.Model.Backend == "" {
		c.Model.Backend = "llama-cpp"
	}
	if c.Model.BatchSize == 0 {
		c.Model.BatchSize = 1024
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			c.DataDir = "./.ethervox"
		} else {
			c.DataDir = filepath.Join(home, ".ethervox")
		}
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
func (c *Config) Validate() error {
	if c.Governor.MaxIterations < 1 {
		return fmt.Errorf("governor.max_iterations must be >= 1, got %d", c.Governor.MaxIterations)
	}
	if c.Governor.ConfidenceThreshold < 0 || c.Governor.ConfidenceThreshold > 1 {
		return fmt.Errorf("governor.confidence_threshold must be in [0,1], got %f", c.Governor.ConfidenceThreshold)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration with every field populated
// from applyDefaults, suitable for local development.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// MemoryDir returns the directory append logs and archives are stored in.
func (c *Config) MemoryDir() string {
	return filepath.Join(c.DataDir, "memory")
}

// ModelsDir returns the directory model artifacts are loaded from.
func (c *Config) ModelsDir() string {
	return filepath.Join(c.DataDir, "models")
}

// TranscriptsDir returns the directory session transcripts are written to.
func (c *Config) TranscriptsDir() string {
	return filepath.Join(c.DataDir, "transcripts")
}

// ArchiveDir returns the directory closed-session logs are archived into.
func (c *Config) ArchiveDir() string {
	return filepath.Join(c.MemoryDir(), "archive")
}

// UsageDB returns the path of the execution-accounting database.
func (c *Config) UsageDB() string {
	return filepath.Join(c.DataDir, "usage.db")
}

// CheckpointDB returns the path of the checkpoint database.
func (c *Config) CheckpointDB() string {
	return filepath.Join(c.DataDir, "checkpoints.db")
}
