// Package config handles loading, watching, and resolving configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Config is the full keywordlens configuration.
type Config struct {
	Thresholds   ThresholdsConfig   `mapstructure:"thresholds" yaml:"thresholds"`
	Scoring      ScoringConfig      `mapstructure:"scoring" yaml:"scoring"`
	Vision       VisionConfig       `mapstructure:"vision" yaml:"vision"`
	Search       SearchConfig       `mapstructure:"search" yaml:"search"`
	Verification VerificationConfig `mapstructure:"verification" yaml:"verification"`
	Grid         GridConfig         `mapstructure:"grid" yaml:"grid"`
	Review       ReviewConfig       `mapstructure:"review" yaml:"review"`
}

// ThresholdsConfig holds the similarity score cut points.
// Scores above High go to manual review, scores between Low and High
// go to automated verification, scores below Low are dropped.
type ThresholdsConfig struct {
	High float64 `mapstructure:"high" yaml:"high"`
	Low  float64 `mapstructure:"low" yaml:"low"`
}

// ScoringConfig configures the embedding service.
type ScoringConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	Model      string `mapstructure:"model" yaml:"model"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
}

// VisionConfig configures the vision judge service.
type VisionConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// SearchConfig configures the image search provider.
type SearchConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	Domain     string `mapstructure:"domain" yaml:"domain"`
	MaxResults int    `mapstructure:"max_results" yaml:"max_results"`
}

// VerificationConfig configures the verification worker pool.
// Workers is deliberately smaller than the grid download pool to bound
// load on the vision judge and avoid contending with the review browser.
type VerificationConfig struct {
	Workers     int `mapstructure:"workers" yaml:"workers"`
	MaxImages   int `mapstructure:"max_images" yaml:"max_images"`
	GridColumns int `mapstructure:"grid_columns" yaml:"grid_columns"`
	CellSize    int `mapstructure:"cell_size" yaml:"cell_size"`
}

// GridConfig configures composite grid assembly.
type GridConfig struct {
	DownloadWorkers int `mapstructure:"download_workers" yaml:"download_workers"`
	TimeoutSeconds  int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Retries         int `mapstructure:"retries" yaml:"retries"`
}

// ReviewConfig configures the manual review browser session.
type ReviewConfig struct {
	BrowserURL string `mapstructure:"browser_url" yaml:"browser_url"`
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("thresholds", defaults.Thresholds)
	viper.SetDefault("scoring", defaults.Scoring)
	viper.SetDefault("vision", defaults.Vision)
	viper.SetDefault("search", defaults.Search)
	viper.SetDefault("verification", defaults.Verification)
	viper.SetDefault("grid", defaults.Grid)
	viper.SetDefault("review", defaults.Review)

	// Environment variables with KEYWORDLENS_ prefix
	viper.SetEnvPrefix("KEYWORDLENS")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.keywordlens")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# keywordlens configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export ZHIPU_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
