// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// APIKey, when set, is required on /v1 routes via X-API-Key.
	APIKey string `mapstructure:"api_key"`
}

// CrawlerConfig governs fetch politeness and the crawl cycle.
type CrawlerConfig struct {
	UserAgent           string           `mapstructure:"user_agent"`
	RespectRobots       bool             `mapstructure:"respect_robots"`
	Sources             []crawler.Source `mapstructure:"sources"`
	RateCapacity        int              `mapstructure:"rate_capacity"`
	RateRefillSeconds   float64          `mapstructure:"rate_refill_seconds"`
	FetchTimeoutSeconds int              `mapstructure:"fetch_timeout_seconds"`
	RobotsTTLSeconds    int              `mapstructure:"robots_ttl_seconds"`
	Concurrency         int              `mapstructure:"concurrency"`
	MaxPages            int              `mapstructure:"max_pages"`
	FetchRetries        int              `mapstructure:"fetch_retries"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	PostgresDSN  string `mapstructure:"postgres_dsn"`
	QuotesTable  string `mapstructure:"quotes_table"`
	AuthorsTable string `mapstructure:"authors_table"`
	MaxConns     int32  `mapstructure:"max_conns"`
}

// ScheduleConfig drives the periodic trigger used by the server.
type ScheduleConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("crawler.user_agent", "quotes-crawler/1.0 (+https://github.com/JakeFAU/quotes-crawler)")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.sources", []map[string]any{
		{"name": "toscrape", "base_url": "https://quotes.toscrape.com", "strategy": string(crawler.VariantPaginatedList)},
		{"name": "goodreads", "base_url": "https://www.goodreads.com/quotes", "strategy": string(crawler.VariantSinglePageList)},
	})
	v.SetDefault("crawler.rate_capacity", 1)
	v.SetDefault("crawler.rate_refill_seconds", 2)
	v.SetDefault("crawler.fetch_timeout_seconds", 15)
	v.SetDefault("crawler.robots_ttl_seconds", 0)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.fetch_retries", 0)
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite_path", "data/quotes.db")
	v.SetDefault("storage.quotes_table", "quotes")
	v.SetDefault("storage.authors_table", "authors")
	v.SetDefault("schedule.interval", "24h")
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent is required")
	}
	if c.Crawler.RateCapacity <= 0 {
		return fmt.Errorf("crawler.rate_capacity must be > 0")
	}
	if c.Crawler.RateRefillSeconds < 0 {
		return fmt.Errorf("crawler.rate_refill_seconds must be >= 0")
	}
	if c.Crawler.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.fetch_timeout_seconds must be > 0")
	}
	if c.Crawler.RobotsTTLSeconds < 0 {
		return fmt.Errorf("crawler.robots_ttl_seconds must be >= 0")
	}
	if c.Crawler.FetchRetries < 0 {
		return fmt.Errorf("crawler.fetch_retries must be >= 0")
	}
	if err := c.Engine().Validate(); err != nil {
		return fmt.Errorf("invalid crawler config: %w", err)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q must be one of memory, sqlite, postgres", c.Storage.Backend)
	}
	if c.Schedule.Interval < 0 {
		return fmt.Errorf("schedule.interval must be >= 0")
	}
	return nil
}

// Engine converts the crawler section into the engine's configuration.
func (c Config) Engine() crawler.Config {
	return crawler.Config{
		Sources:     c.Crawler.Sources,
		Concurrency: c.Crawler.Concurrency,
		MaxPages:    c.Crawler.MaxPages,
	}
}

// FetchTimeout bounds each page request and each robots.txt request.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.FetchTimeoutSeconds) * time.Second
}

// RateRefill is the interval between token refills of one origin's bucket.
func (c Config) RateRefill() time.Duration {
	return time.Duration(c.Crawler.RateRefillSeconds * float64(time.Second))
}

// RobotsTTL is how long a fetched robots.txt stays valid. Zero means forever.
func (c Config) RobotsTTL() time.Duration {
	return time.Duration(c.Crawler.RobotsTTLSeconds) * time.Second
}
