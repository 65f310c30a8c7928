package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Census  CensusConfig  `yaml:"census" mapstructure:"census"`
	Vintage VintageConfig `yaml:"vintage" mapstructure:"vintage"`
	Realloc ReallocConfig `yaml:"realloc" mapstructure:"realloc"`
	Dedupe  DedupeConfig  `yaml:"dedupe" mapstructure:"dedupe"`
	Schema  SchemaConfig  `yaml:"schema" mapstructure:"schema"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Jobs    JobsConfig    `yaml:"jobs" mapstructure:"jobs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CensusConfig configures the statistics source client.
type CensusConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffSecs int     `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// VintageConfig names the source and target boundary vintages.
type VintageConfig struct {
	Source int `yaml:"source" mapstructure:"source"`
	Target int `yaml:"target" mapstructure:"target"`
}

// ReallocConfig configures weighting and the explicit bypass.
type ReallocConfig struct {
	PassThroughFrom int   `yaml:"pass_through_from" mapstructure:"pass_through_from"`
	BypassYears     []int `yaml:"bypass_years" mapstructure:"bypass_years"`
}

// DedupeConfig configures duplicate recombination.
type DedupeConfig struct {
	MaxGroupSize int `yaml:"max_group_size" mapstructure:"max_group_size"`
}

// SchemaConfig points to the column classification file. An empty path
// selects the built-in classification.
type SchemaConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CacheConfig configures the local SQLite weight cache.
type CacheConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StoreConfig configures the Postgres statistics sink.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// FetchConfig configures correspondence file downloads.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// JobsConfig configures batch orchestration.
type JobsConfig struct {
	Concurrency    int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	MemorySlots    int    `yaml:"memory_slots" mapstructure:"memory_slots"`
	InvalidateURL  string `yaml:"invalidate_url" mapstructure:"invalidate_url"`
	InvalidatePath string `yaml:"invalidate_path" mapstructure:"invalidate_path"`
}

// Load reads configuration from config.yaml, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CROSSWALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("census.key", "")
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.max_attempts", 10)
	v.SetDefault("census.backoff_secs", 120)
	v.SetDefault("census.rate_per_sec", 5.0)
	v.SetDefault("census.timeout_secs", 120)
	v.SetDefault("vintage.source", 2000)
	v.SetDefault("vintage.target", 2010)
	v.SetDefault("realloc.pass_through_from", 2010)
	v.SetDefault("realloc.bypass_years", []int{2005, 2006, 2007, 2008, 2009})
	v.SetDefault("dedupe.max_group_size", 0)
	v.SetDefault("schema.path", "")
	v.SetDefault("cache.path", "crosswalk-cache.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.table", "demographics")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.rate_per_sec", 2.0)
	v.SetDefault("fetch.user_agent", "crosswalk-cli")
	v.SetDefault("jobs.concurrency", 4)
	v.SetDefault("jobs.max_attempts", 3)
	v.SetDefault("jobs.memory_slots", 4)
	v.SetDefault("jobs.invalidate_url", "")
	v.SetDefault("jobs.invalidate_path", "/*")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// RequireCensusKey returns a configuration error when no API key is set.
func (c *Config) RequireCensusKey() error {
	if strings.TrimSpace(c.Census.Key) == "" {
		return eris.New("config: census.key is required (set CROSSWALK_CENSUS_KEY)")
	}
	return nil
}

// RequireDatabaseURL returns a configuration error when no Postgres URL is set.
func (c *Config) RequireDatabaseURL() error {
	if strings.TrimSpace(c.Store.DatabaseURL) == "" {
		return eris.New("config: store.database_url is required (set CROSSWALK_STORE_DATABASE_URL)")
	}
	return nil
}

// InitLogger initializes the global zap logger. Both configurations write to
// stderr so that stdout carries only tabular output.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.OutputPaths = []string{"stderr"}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
