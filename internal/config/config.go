package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Tracker    TrackerConfig    `mapstructure:"tracker" yaml:"tracker"`
	Harness    HarnessConfig    `mapstructure:"harness" yaml:"harness"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ClassifierConfig tunes the two-tier response classifier.
type ClassifierConfig struct {
	// LLMThreshold is the tier-1 confidence below which the LLM fallback is
	// consulted.
	LLMThreshold float64 `mapstructure:"llm_threshold" yaml:"llm_threshold"`
	// HistoryWindow is how many recent turns the fallback prompt embeds.
	HistoryWindow int           `mapstructure:"history_window" yaml:"history_window"`
	CacheSize     int           `mapstructure:"cache_size" yaml:"cache_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// TrackerConfig tunes the context and progress trackers.
type TrackerConfig struct {
	MaxRepetitionCount int  `mapstructure:"max_repetition_count" yaml:"max_repetition_count"`
	StuckThreshold     int  `mapstructure:"stuck_threshold" yaml:"stuck_threshold"`
	DetectAnomalies    bool `mapstructure:"detect_anomalies" yaml:"detect_anomalies"`
	DetectIssues       bool `mapstructure:"detect_issues" yaml:"detect_issues"`
}

// HarnessConfig bounds test conversation execution.
type HarnessConfig struct {
	MaxTurns    int           `mapstructure:"max_turns" yaml:"max_turns"`
	TurnTimeout time.Duration `mapstructure:"turn_timeout" yaml:"turn_timeout"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderGeminiSDK LLMProvider = "gemini_sdk"
)

// LLMModelConfig defines the configuration for a single model.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// LLMConfig configures the tiered model routing.
type LLMConfig struct {
	FastModel     string                    `mapstructure:"fast_model" yaml:"fast_model"`
	PowerfulModel string                    `mapstructure:"powerful_model" yaml:"powerful_model"`
	Models        map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	// RequestsPerSecond rate-limits outbound LLM calls across all
	// concurrent conversations. Zero disables the limiter.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// StoreConfig configures optional result persistence.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "dialtest-cli")
	v.SetDefault("logger.log_file", "dialtest.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Classifier --
	v.SetDefault("classifier.llm_threshold", 0.75)
	v.SetDefault("classifier.history_window", 4)
	v.SetDefault("classifier.cache_size", 256)
	v.SetDefault("classifier.cache_ttl", 5*time.Minute)

	// -- Trackers --
	v.SetDefault("tracker.max_repetition_count", 2)
	v.SetDefault("tracker.stuck_threshold", 5)
	v.SetDefault("tracker.detect_anomalies", true)
	v.SetDefault("tracker.detect_issues", true)

	// -- Harness --
	v.SetDefault("harness.max_turns", 25)
	v.SetDefault("harness.turn_timeout", "60s")
	v.SetDefault("harness.concurrency", 4)

	// -- LLM --
	v.SetDefault("llm.fast_model", "flash")
	v.SetDefault("llm.powerful_model", "pro")
	v.SetDefault("llm.requests_per_second", 4.0)
	v.SetDefault("llm.models.flash.provider", "gemini")
	v.SetDefault("llm.models.flash.model", "gemini-2.5-flash")
	v.SetDefault("llm.models.flash.api_timeout", "8s")
	v.SetDefault("llm.models.flash.temperature", 0.1)
	v.SetDefault("llm.models.flash.max_tokens", 1024)
	v.SetDefault("llm.models.pro.provider", "gemini")
	v.SetDefault("llm.models.pro.model", "gemini-2.5-pro")
	v.SetDefault("llm.models.pro.api_timeout", "30s")
	v.SetDefault("llm.models.pro.temperature", 0.2)
	v.SetDefault("llm.models.pro.max_tokens", 4096)

	// -- Store --
	v.SetDefault("store.enabled", false)
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("store.url", "DIALTEST_DB_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// API keys come from the environment, never the config file.
	for name, m := range cfg.LLM.Models {
		if m.APIKey == "" {
			m.APIKey = os.Getenv("GEMINI_API_KEY")
			cfg.LLM.Models[name] = m
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Classifier.LLMThreshold < 0.0 || c.Classifier.LLMThreshold > 1.0 {
		return fmt.Errorf("classifier.llm_threshold must be between 0.0 and 1.0")
	}
	if c.Classifier.CacheSize <= 0 {
		return fmt.Errorf("classifier.cache_size must be a positive integer")
	}
	if c.Tracker.MaxRepetitionCount < 1 {
		return fmt.Errorf("tracker.max_repetition_count must be at least 1")
	}
	if c.Tracker.StuckThreshold < 1 {
		return fmt.Errorf("tracker.stuck_threshold must be at least 1")
	}
	if c.Harness.MaxTurns <= 0 {
		return fmt.Errorf("harness.max_turns must be a positive integer")
	}
	if c.Harness.Concurrency <= 0 {
		return fmt.Errorf("harness.concurrency must be a positive integer")
	}
	if c.Store.Enabled && c.Store.URL == "" {
		return fmt.Errorf("store.url is required when store.enabled is true")
	}
	return nil
}
