package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Quotes   Quotes   `mapstructure:"quotes"`
	Trading  Trading  `mapstructure:"trading"`
	Risk     Risk     `mapstructure:"risk"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Cache    Cache    `mapstructure:"cache"`
}

// Quotes holds the configuration for the market-data and signal service.
type Quotes struct {
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"apiKey"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Cache holds the configuration for the optional Redis price cache.
// An empty RedisURL disables caching.
type Cache struct {
	RedisURL        string `mapstructure:"redis_url"`
	PriceTTLSeconds int    `mapstructure:"price_ttl_seconds"`
}

// Trading holds the configuration for capital allocation and the decision loop.
type Trading struct {
	Symbols         []string `mapstructure:"symbols"`
	InitialCapital  float64  `mapstructure:"initial_capital"`
	RiskPerTrade    float64  `mapstructure:"risk_per_trade"`
	MaxPositionSize float64  `mapstructure:"max_position_size"`
	DryRun          bool     `mapstructure:"dry_run"`
	TickInterval    int      `mapstructure:"tick_interval"`
}

// Risk holds the thresholds used by the risk gate.
type Risk struct {
	MaxDrawdown          float64 `mapstructure:"max_drawdown"`
	StopLoss             float64 `mapstructure:"stop_loss"`
	TakeProfit           float64 `mapstructure:"take_profit"`
	MaxPortfolioDrawdown float64 `mapstructure:"max_portfolio_drawdown"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("quotes.base_url", "http://localhost:9000/api/v1")
	v.SetDefault("quotes.rate_limit", 10)      // requests per second
	v.SetDefault("quotes.rate_limit_burst", 5) // burst size
	v.SetDefault("quotes.timeout_seconds", 10)

	v.SetDefault("trading.symbols", []string{"AAPL"})
	v.SetDefault("trading.initial_capital", 10000.0)
	v.SetDefault("trading.risk_per_trade", 0.02)
	v.SetDefault("trading.max_position_size", 100.0)
	v.SetDefault("trading.dry_run", true)
	v.SetDefault("trading.tick_interval", 60)

	v.SetDefault("risk.max_drawdown", 0.2)
	v.SetDefault("risk.stop_loss", 0.05)
	v.SetDefault("risk.take_profit", 0.1)
	v.SetDefault("risk.max_portfolio_drawdown", 0.15)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 7)
	v.SetDefault("logger.max_age_days", 30)

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.dsn", "data/portfolio.db")
	v.SetDefault("cache.price_ttl_seconds", 30)
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
