package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Grid     Grid     `mapstructure:"grid"`
	Trading  Trading  `mapstructure:"trading"`
	Guard    Guard    `mapstructure:"guard"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Binance holds the configuration for the Binance API.
type Binance struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Grid holds the raw user inputs of the grid strategy. Prices are strings so
// they survive YAML decoding without binary-float rounding; GridConfig parses
// and validates them.
type Grid struct {
	BaseAsset       string `mapstructure:"base_asset"`
	QuoteAsset      string `mapstructure:"quote_asset"`
	LowerLimit      string `mapstructure:"lower_limit"`
	UpperLimit      string `mapstructure:"upper_limit"`
	GridCount       int    `mapstructure:"grid_count"`
	Investment      string `mapstructure:"investment"`
	StartPrice      string `mapstructure:"start_price"`
	StopProfitPrice string `mapstructure:"stop_profit_price"`
	PriceResolution int32  `mapstructure:"price_resolution"`
	QtyResolution   int32  `mapstructure:"qty_resolution"`
	MinNotional     string `mapstructure:"min_notional"`
}

// Trading holds the engine-level knobs shared by all strategies.
type Trading struct {
	Strategy     string `mapstructure:"strategy"` // "grid" or "maker"
	TickInterval int    `mapstructure:"tick_interval"`
	DryRun       bool   `mapstructure:"dry_run"`

	// Maker strategy only.
	Quantity    string `mapstructure:"quantity"`
	PolicyMode  string `mapstructure:"policy_mode"` // "FW" or "MA"
	MAWindow    int    `mapstructure:"ma_window"`
	MAAlg       string `mapstructure:"ma_alg"` // "sma" or "ema"
	Delta       string `mapstructure:"delta"`
	SignalPrice string `mapstructure:"signal_price"` // optional legacy encoded signal
}

// Guard holds the order-submission credit bucket parameters.
type Guard struct {
	Credits     int `mapstructure:"credits"`
	WindowHours int `mapstructure:"window_hours"`
}

// Server holds the configuration for the status web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("binance.rate_limit", 20)      // requests per second
	viper.SetDefault("binance.rate_limit_burst", 5) // burst size
	viper.SetDefault("grid.min_notional", "10.0")   // exchange MIN_NOTIONAL floor
	viper.SetDefault("grid.price_resolution", 2)
	viper.SetDefault("grid.qty_resolution", 4)
	viper.SetDefault("trading.strategy", "grid")
	viper.SetDefault("trading.tick_interval", 2)
	viper.SetDefault("trading.ma_alg", "sma")
	viper.SetDefault("guard.credits", 1000)
	viper.SetDefault("guard.window_hours", 12)
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("database.dsn", "./data/gridbot.db")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
