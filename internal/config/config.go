package config

import "time"

type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Key     string        `mapstructure:"key"`
	City    string        `mapstructure:"city"`
	Units   string        `mapstructure:"units"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ScrapeConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type FileConfig struct {
	Path      string `mapstructure:"path"`
	Delimiter string `mapstructure:"delimiter"`
}

type StoreConfig struct {
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
}

// LoadConfig controls the load step. Mode is "append" (insert only where the
// uniqueness key is absent) or "replace" (swap the table contents for the
// incoming batch in one transaction). DedupPolicy is "first" or "last" and
// applies both to in-batch collapse and to append-mode collisions.
type LoadConfig struct {
	Mode        string `mapstructure:"mode"`
	DedupPolicy string `mapstructure:"dedup_policy"`
}

type TransformConfig struct {
	LowThreshold  float64 `mapstructure:"low_threshold"`
	HighThreshold float64 `mapstructure:"high_threshold"`
}

type DashboardConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	File      FileConfig      `mapstructure:"file"`
	Store     StoreConfig     `mapstructure:"store"`
	Load      LoadConfig      `mapstructure:"load"`
	Transform TransformConfig `mapstructure:"transform"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}
