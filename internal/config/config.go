package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the quill configuration.
type Config struct {
	Provider   string         `yaml:"provider"`
	Model      string         `yaml:"model"`
	Convention string         `yaml:"convention"`
	Format     string         `yaml:"format"`
	Pipeline   PipelineConfig `yaml:"pipeline"`
	Filter     FilterConfig   `yaml:"filter"`
	Cache      CacheConfig    `yaml:"cache"`
	Privacy    PrivacyConfig  `yaml:"privacy"`
}

// PipelineConfig controls the large-diff map-reduce pipeline.
type PipelineConfig struct {
	// Enabled gates the whole map-reduce path. When false, oversized diffs
	// are truncated instead of split.
	Enabled bool `yaml:"enabled"`
	// MapModel is the model used for per-chunk summarization. Empty lets
	// the selector pick a per-provider default.
	MapModel string `yaml:"mapModel"`
	// Concurrency bounds parallel map-stage calls.
	Concurrency int `yaml:"concurrency"`
	// MaxRetries is the number of additional attempts per chunk.
	MaxRetries int `yaml:"maxRetries"`
	// RetryDelayMs is the delay before the first retry; it doubles on each
	// subsequent one.
	RetryDelayMs int `yaml:"retryDelayMs"`
	// TokenLimit overrides the model's context limit when positive.
	TokenLimit int `yaml:"tokenLimit"`
	// SafetyMarginPercent is the usable share of the raw context limit.
	SafetyMarginPercent int `yaml:"safetyMarginPercent"`
}

// FilterConfig controls the noise-filtering pre-pass.
type FilterConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir,omitempty"`
	TTLSeconds int    `yaml:"ttlSeconds"`
}

// PrivacyConfig controls privacy/redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool `yaml:"redactSecrets"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:   "openai",
		Model:      "gpt-4o",
		Convention: "conventional",
		Format:     "text",
		Pipeline: PipelineConfig{
			Enabled:             true,
			Concurrency:         3,
			MaxRetries:          2,
			RetryDelayMs:        1000,
			SafetyMarginPercent: 80,
		},
		Filter: FilterConfig{Enabled: true},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 86400,
		},
		Privacy: PrivacyConfig{RedactSecrets: true},
	}
}

// fileConfig mirrors Config with optional fields so a config file can set a
// boolean to false without being confused with "unset".
type fileConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Convention string `yaml:"convention"`
	Format     string `yaml:"format"`
	Pipeline   struct {
		Enabled             *bool  `yaml:"enabled"`
		MapModel            string `yaml:"mapModel"`
		Concurrency         *int   `yaml:"concurrency"`
		MaxRetries          *int   `yaml:"maxRetries"`
		RetryDelayMs        *int   `yaml:"retryDelayMs"`
		TokenLimit          *int   `yaml:"tokenLimit"`
		SafetyMarginPercent *int   `yaml:"safetyMarginPercent"`
	} `yaml:"pipeline"`
	Filter struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"filter"`
	Cache struct {
		Enabled    *bool  `yaml:"enabled"`
		Dir        string `yaml:"dir"`
		TTLSeconds *int   `yaml:"ttlSeconds"`
	} `yaml:"cache"`
	Privacy struct {
		RedactSecrets *bool `yaml:"redactSecrets"`
	} `yaml:"privacy"`
}

// ConfigDir returns the platform-appropriate config directory for quill.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "quill"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "quill"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "quill"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "quill"), nil
	default:
		return filepath.Join(home, ".config", "quill"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadFile loads config from the config file, merged over defaults.
// Returns defaults and nil error if the file doesn't exist.
func LoadFile() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	mergeFile(&cfg, fc)
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <-
// overrides. The overrides map comes from CLI flags; only non-zero values
// should be set.
func Load(overrides map[string]string) (Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	mergeEnv(&cfg)
	mergeOverrides(&cfg, overrides)
	return cfg, nil
}

func mergeFile(dst *Config, src fileConfig) {
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Convention != "" {
		dst.Convention = src.Convention
	}
	if src.Format != "" {
		dst.Format = src.Format
	}
	if src.Pipeline.Enabled != nil {
		dst.Pipeline.Enabled = *src.Pipeline.Enabled
	}
	if src.Pipeline.MapModel != "" {
		dst.Pipeline.MapModel = src.Pipeline.MapModel
	}
	if src.Pipeline.Concurrency != nil && *src.Pipeline.Concurrency > 0 {
		dst.Pipeline.Concurrency = *src.Pipeline.Concurrency
	}
	if src.Pipeline.MaxRetries != nil && *src.Pipeline.MaxRetries >= 0 {
		dst.Pipeline.MaxRetries = *src.Pipeline.MaxRetries
	}
	if src.Pipeline.RetryDelayMs != nil && *src.Pipeline.RetryDelayMs > 0 {
		dst.Pipeline.RetryDelayMs = *src.Pipeline.RetryDelayMs
	}
	if src.Pipeline.TokenLimit != nil && *src.Pipeline.TokenLimit > 0 {
		dst.Pipeline.TokenLimit = *src.Pipeline.TokenLimit
	}
	if src.Pipeline.SafetyMarginPercent != nil && *src.Pipeline.SafetyMarginPercent > 0 {
		dst.Pipeline.SafetyMarginPercent = *src.Pipeline.SafetyMarginPercent
	}
	if src.Filter.Enabled != nil {
		dst.Filter.Enabled = *src.Filter.Enabled
	}
	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = *src.Cache.Enabled
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}
	if src.Cache.TTLSeconds != nil && *src.Cache.TTLSeconds > 0 {
		dst.Cache.TTLSeconds = *src.Cache.TTLSeconds
	}
	if src.Privacy.RedactSecrets != nil {
		dst.Privacy.RedactSecrets = *src.Privacy.RedactSecrets
	}
}

func mergeEnv(cfg *Config) {
	if v := os.Getenv("QUILL_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("QUILL_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("QUILL_MAP_MODEL"); v != "" {
		cfg.Pipeline.MapModel = v
	}
	if v := os.Getenv("QUILL_CONVENTION"); v != "" {
		cfg.Convention = v
	}
	if v := os.Getenv("QUILL_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("QUILL_MAPREDUCE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Pipeline.Enabled = b
		}
	}
	if v := os.Getenv("QUILL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.Concurrency = n
		}
	}
	if v := os.Getenv("QUILL_TOKEN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.TokenLimit = n
		}
	}
	if v := os.Getenv("QUILL_SAFETY_MARGIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			cfg.Pipeline.SafetyMarginPercent = n
		}
	}
}

func mergeOverrides(cfg *Config, overrides map[string]string) {
	if overrides == nil {
		return
	}
	if v, ok := overrides["provider"]; ok && v != "" {
		cfg.Provider = v
	}
	if v, ok := overrides["model"]; ok && v != "" {
		cfg.Model = v
	}
	if v, ok := overrides["mapModel"]; ok && v != "" {
		cfg.Pipeline.MapModel = v
	}
	if v, ok := overrides["convention"]; ok && v != "" {
		cfg.Convention = v
	}
	if v, ok := overrides["format"]; ok && v != "" {
		cfg.Format = v
	}
	if v, ok := overrides["mapReduce"]; ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Pipeline.Enabled = b
		}
	}
	if v, ok := overrides["concurrency"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.Concurrency = n
		}
	}
	if v, ok := overrides["tokenLimit"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.TokenLimit = n
		}
	}
	if v, ok := overrides["safetyMargin"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			cfg.Pipeline.SafetyMarginPercent = n
		}
	}
}

// SetField sets a single config field by key name. Returns error if key is
// unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "mapModel":
		cfg.Pipeline.MapModel = value
	case "convention":
		cfg.Convention = value
	case "format":
		cfg.Format = value
	case "mapReduce":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("mapReduce must be a boolean: %w", err)
		}
		cfg.Pipeline.Enabled = b
	case "concurrency":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("concurrency must be an integer: %w", err)
		}
		cfg.Pipeline.Concurrency = n
	case "maxRetries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("maxRetries must be an integer: %w", err)
		}
		cfg.Pipeline.MaxRetries = n
	case "retryDelayMs":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("retryDelayMs must be an integer: %w", err)
		}
		cfg.Pipeline.RetryDelayMs = n
	case "tokenLimit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("tokenLimit must be an integer: %w", err)
		}
		cfg.Pipeline.TokenLimit = n
	case "safetyMargin":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("safetyMargin must be an integer: %w", err)
		}
		cfg.Pipeline.SafetyMarginPercent = n
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
