package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from (in increasing precedence) built-in
// defaults, an optional config file, and TRIBUTARY_* environment variables.
// A .env file in the working directory is loaded into the environment first
// when present.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tributary")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/tributary/")
	}

	viper.SetEnvPrefix("TRIBUTARY") // env vars like TRIBUTARY_STORE__PATH
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))

	viper.SetDefault("api.url", "https://api.openweathermap.org/data/2.5/weather")
	viper.SetDefault("api.city", "San Francisco")
	viper.SetDefault("api.units", "metric")
	viper.SetDefault("api.timeout", 10*time.Second)
	viper.SetDefault("scrape.url", "http://books.toscrape.com/")
	viper.SetDefault("scrape.timeout", 15*time.Second)
	viper.SetDefault("file.path", "data/sales_data.csv")
	viper.SetDefault("file.delimiter", ",")
	viper.SetDefault("store.path", "data/tributary.db")
	viper.SetDefault("store.table", "unified_records")
	viper.SetDefault("load.mode", "append")
	viper.SetDefault("load.dedup_policy", "first")
	viper.SetDefault("transform.low_threshold", 10.0)
	viper.SetDefault("transform.high_threshold", 100.0)
	viper.SetDefault("dashboard.listen_addr", ":8875")

	viper.BindEnv("api.url")
	viper.BindEnv("api.key")
	viper.BindEnv("api.city")
	viper.BindEnv("api.units")
	viper.BindEnv("api.timeout")

	viper.BindEnv("scrape.url")
	viper.BindEnv("scrape.timeout")

	viper.BindEnv("file.path")
	viper.BindEnv("file.delimiter")

	viper.BindEnv("store.path")
	viper.BindEnv("store.table")

	viper.BindEnv("load.mode")
	viper.BindEnv("load.dedup_policy")

	viper.BindEnv("transform.low_threshold")
	viper.BindEnv("transform.high_threshold")

	viper.BindEnv("dashboard.listen_addr")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if viper.ConfigFileUsed() != "" {
		log.Printf("Loaded config from %s", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Load.Mode {
	case "append", "replace":
	default:
		return fmt.Errorf("load.mode must be append or replace, got %q", cfg.Load.Mode)
	}
	switch cfg.Load.DedupPolicy {
	case "first", "last":
	default:
		return fmt.Errorf("load.dedup_policy must be first or last, got %q", cfg.Load.DedupPolicy)
	}
	if cfg.Transform.HighThreshold < cfg.Transform.LowThreshold {
		return fmt.Errorf("transform.high_threshold (%v) below low_threshold (%v)",
			cfg.Transform.HighThreshold, cfg.Transform.LowThreshold)
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path must be set (check config/env/flags)")
	}
	return nil
}
