// Package config loads artpersona settings from a YAML file overlaid with
// AP_ environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sydlexius/artpersona/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Logging    logging.Config   `yaml:"logging"`
	Inference  InferenceConfig  `yaml:"inference"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Skew       SkewConfig       `yaml:"skew"`
	Bulk       BulkConfig       `yaml:"bulk"`
	Backup     BackupConfig     `yaml:"backup"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// InferenceConfig configures the external collaborator. It is consulted
// only when Enabled is set and an API key is present.
type InferenceConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// Active reports whether the collaborator should be wired in.
func (c InferenceConfig) Active() bool {
	return c.Enabled && c.APIKey != ""
}

// ClassifierConfig tunes the arbiter.
type ClassifierConfig struct {
	RichBioRunes             int `yaml:"rich_bio_runes"`
	MinAlternativeConfidence int `yaml:"min_alternative_confidence"`
}

// SkewConfig tunes population skew correction.
type SkewConfig struct {
	ThresholdRatio float64 `yaml:"threshold_ratio"`
	SampleSize     int     `yaml:"sample_size"`
	MaxPasses      int     `yaml:"max_passes"`
	LowConfidence  int     `yaml:"low_confidence"`
}

// BulkConfig tunes batch classification.
type BulkConfig struct {
	Parallel int `yaml:"parallel"`
}

// BackupConfig controls the snapshots taken before commands that rewrite
// profiles in bulk. An empty Dir disables them.
type BackupConfig struct {
	Dir        string `yaml:"dir"`
	Retention  int    `yaml:"retention"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "artpersona.db",
		},
		Logging: logging.DefaultConfig(),
		Inference: InferenceConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			Timeout:           20 * time.Second,
			RequestsPerSecond: 1,
		},
		Classifier: ClassifierConfig{
			RichBioRunes:             500,
			MinAlternativeConfidence: 40,
		},
		Skew: SkewConfig{
			ThresholdRatio: 2.0,
			SampleSize:     50,
			MaxPasses:      5,
			LowConfidence:  70,
		},
		Bulk: BulkConfig{
			Parallel: 4,
		},
		Backup: BackupConfig{
			Dir:       "backups",
			Retention: 7,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv("AP_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("AP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AP_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("AP_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("AP_INFERENCE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AP_INFERENCE_ENABLED: %w", err)
		}
		c.Inference.Enabled = b
	}
	if v := os.Getenv("AP_INFERENCE_BASE_URL"); v != "" {
		c.Inference.BaseURL = v
	}
	if v := os.Getenv("AP_INFERENCE_API_KEY"); v != "" {
		c.Inference.APIKey = v
	}
	if v := os.Getenv("AP_INFERENCE_MODEL"); v != "" {
		c.Inference.Model = v
	}
	if v := os.Getenv("AP_INFERENCE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AP_INFERENCE_TIMEOUT: %w", err)
		}
		c.Inference.Timeout = d
	}
	if v := os.Getenv("AP_SKEW_THRESHOLD_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AP_SKEW_THRESHOLD_RATIO: %w", err)
		}
		c.Skew.ThresholdRatio = f
	}
	if v := os.Getenv("AP_SKEW_SAMPLE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AP_SKEW_SAMPLE_SIZE: %w", err)
		}
		c.Skew.SampleSize = n
	}
	if v := os.Getenv("AP_BULK_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AP_BULK_PARALLEL: %w", err)
		}
		c.Bulk.Parallel = n
	}
	if v, ok := os.LookupEnv("AP_BACKUP_DIR"); ok {
		c.Backup.Dir = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Inference.Enabled {
		c.Inference.BaseURL = strings.TrimRight(c.Inference.BaseURL, "/")
		if c.Inference.BaseURL == "" {
			return fmt.Errorf("inference base_url is required when inference is enabled")
		}
		if c.Inference.Timeout <= 0 {
			return fmt.Errorf("invalid inference timeout: %s", c.Inference.Timeout)
		}
	}
	if c.Classifier.RichBioRunes < 0 {
		return fmt.Errorf("invalid rich_bio_runes: %d", c.Classifier.RichBioRunes)
	}
	if c.Classifier.MinAlternativeConfidence < 0 || c.Classifier.MinAlternativeConfidence > 100 {
		return fmt.Errorf("invalid min_alternative_confidence: %d", c.Classifier.MinAlternativeConfidence)
	}
	if c.Skew.ThresholdRatio <= 1 {
		return fmt.Errorf("skew threshold_ratio must exceed 1, got %v", c.Skew.ThresholdRatio)
	}
	if c.Skew.SampleSize < 1 {
		return fmt.Errorf("invalid skew sample_size: %d", c.Skew.SampleSize)
	}
	if c.Skew.MaxPasses < 1 {
		return fmt.Errorf("invalid skew max_passes: %d", c.Skew.MaxPasses)
	}
	if c.Skew.LowConfidence < 1 || c.Skew.LowConfidence > 100 {
		return fmt.Errorf("invalid skew low_confidence: %d", c.Skew.LowConfidence)
	}
	if c.Bulk.Parallel < 1 {
		return fmt.Errorf("invalid bulk parallel: %d", c.Bulk.Parallel)
	}
	if c.Backup.Dir != "" && c.Backup.Retention < 1 {
		return fmt.Errorf("invalid backup retention: %d", c.Backup.Retention)
	}
	if c.Backup.MaxAgeDays < 0 {
		return fmt.Errorf("invalid backup max_age_days: %d", c.Backup.MaxAgeDays)
	}
	return nil
}
