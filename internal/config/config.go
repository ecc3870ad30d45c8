// Package config loads carbonsched configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full engine configuration.
type Config struct {
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Scorer     ScorerConfig     `yaml:"scorer" mapstructure:"scorer"`
	Footprint  FootprintConfig  `yaml:"footprint" mapstructure:"footprint"`
	Topology   TopologyConfig   `yaml:"topology" mapstructure:"topology"`
	Aggregator AggregatorConfig `yaml:"aggregator" mapstructure:"aggregator"`
	History    HistoryConfig    `yaml:"history" mapstructure:"history"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ProvidersConfig selects and configures the carbon data providers.
type ProvidersConfig struct {
	// Order lists providers by priority, e.g. ["electricitymaps", "mock"].
	// An empty order falls back to the mock provider alone.
	Order           []string              `yaml:"order" mapstructure:"order"`
	ElectricityMaps ElectricityMapsConfig `yaml:"electricitymaps" mapstructure:"electricitymaps"`
	GridMeter       GridMeterConfig       `yaml:"gridmeter" mapstructure:"gridmeter"`
}

// ElectricityMapsConfig holds credentials for the metered Electricity Maps API.
type ElectricityMapsConfig struct {
	APIKey        string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

// GridMeterConfig holds settings for a custom/enterprise grid-data API.
type GridMeterConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Token   string `yaml:"token" mapstructure:"token"`
}

// CacheConfig controls freshness horizons and refresh behavior.
type CacheConfig struct {
	CurrentTTLMinutes   int     `yaml:"current_ttl_minutes" mapstructure:"current_ttl_minutes"`
	ForecastTTLHours    int     `yaml:"forecast_ttl_hours" mapstructure:"forecast_ttl_hours"`
	RefreshTimeoutSecs  int     `yaml:"refresh_timeout_secs" mapstructure:"refresh_timeout_secs"`
	ProviderTimeoutSecs int     `yaml:"provider_timeout_secs" mapstructure:"provider_timeout_secs"`
	FallbackIntensity   float64 `yaml:"fallback_intensity" mapstructure:"fallback_intensity"`
}

// CurrentTTL returns the current-sample freshness horizon.
func (c CacheConfig) CurrentTTL() time.Duration {
	return time.Duration(c.CurrentTTLMinutes) * time.Minute
}

// ForecastTTL returns the forecast freshness horizon.
func (c CacheConfig) ForecastTTL() time.Duration {
	return time.Duration(c.ForecastTTLHours) * time.Hour
}

// RefreshTimeout bounds a synchronous cache-miss refresh.
func (c CacheConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSecs) * time.Second
}

// ProviderTimeout bounds a single upstream provider call.
func (c CacheConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSecs) * time.Second
}

// ScorerConfig fixes the score range and the fallback points.
type ScorerConfig struct {
	MinScore         float64 `yaml:"min_score" mapstructure:"min_score"`
	MaxScore         float64 `yaml:"max_score" mapstructure:"max_score"`
	NeutralScore     float64 `yaml:"neutral_score" mapstructure:"neutral_score"`
	UnavailableScore float64 `yaml:"unavailable_score" mapstructure:"unavailable_score"`
}

// FootprintConfig controls per-node footprint estimation.
type FootprintConfig struct {
	// NodeBaselineKW is the assumed steady-state draw of one database node.
	NodeBaselineKW float64 `yaml:"node_baseline_kw" mapstructure:"node_baseline_kw"`
}

// TopologyConfig maps cluster topology labels to canonical regions.
type TopologyConfig struct {
	// MappingFile optionally points to a YAML file with additional entries.
	MappingFile string `yaml:"mapping_file" mapstructure:"mapping_file"`
	// Regions maps "vendor/zone-or-region" keys to canonical regions inline.
	Regions map[string]string `yaml:"regions" mapstructure:"regions"`
}

// AggregatorConfig controls periodic snapshot rebuilds.
type AggregatorConfig struct {
	IntervalSecs int      `yaml:"interval_secs" mapstructure:"interval_secs"`
	Regions      []string `yaml:"regions" mapstructure:"regions"`
	NodesFile    string   `yaml:"nodes_file" mapstructure:"nodes_file"`
}

// Interval returns the snapshot rebuild cadence.
func (a AggregatorConfig) Interval() time.Duration {
	return time.Duration(a.IntervalSecs) * time.Second
}

// HistoryConfig configures the footprint history sink.
type HistoryConfig struct {
	// Driver is "sqlite", "postgres", or "none" (recording disabled).
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/carbonsched")

	// Environment
	v.SetEnvPrefix("CARBONSCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("providers.order", []string{"mock"})
	v.SetDefault("providers.electricitymaps.base_url", "https://api.electricitymap.org/v3")
	v.SetDefault("providers.electricitymaps.rate_per_second", 1.0)
	v.SetDefault("providers.electricitymaps.burst", 5)
	v.SetDefault("cache.current_ttl_minutes", 5)
	v.SetDefault("cache.forecast_ttl_hours", 24)
	v.SetDefault("cache.refresh_timeout_secs", 10)
	v.SetDefault("cache.provider_timeout_secs", 5)
	v.SetDefault("cache.fallback_intensity", 450.0)
	v.SetDefault("scorer.min_score", 0.0)
	v.SetDefault("scorer.max_score", 100.0)
	v.SetDefault("scorer.neutral_score", 50.0)
	v.SetDefault("scorer.unavailable_score", 40.0)
	v.SetDefault("footprint.node_baseline_kw", 0.35)
	v.SetDefault("aggregator.interval_secs", 60)
	v.SetDefault("history.driver", "none")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

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
