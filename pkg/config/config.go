// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Database, Redis, Kafka, Crawler, Search, Sites, etc.).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Search   SearchConfig   `yaml:"search"`
	Sites    []SiteConfig   `yaml:"sites"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Supported values of DatabaseConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DatabaseConfig selects the index storage backend and holds its connection
// parameters. Postgres fields are ignored for the sqlite and memory drivers.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings for analytics events.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexEvents  string `yaml:"indexEvents"`
	SearchEvents string `yaml:"searchEvents"`
}

// CrawlerConfig bounds a single crawl run and configures the HTTP fetcher.
type CrawlerConfig struct {
	MaxTasks         int           `yaml:"maxTasks"`
	MaxPages         int           `yaml:"maxPages"`
	MaxChildren      int           `yaml:"maxChildren"`
	Parallelism      int           `yaml:"parallelism"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
	UserAgent        string        `yaml:"userAgent"`
	Referrer         string        `yaml:"referrer"`
	MaxContentLength int           `yaml:"maxContentLength"`
	MaxBodyBytes     int64         `yaml:"maxBodyBytes"`
}

// SearchConfig controls query evaluation, pagination and snippet size.
type SearchConfig struct {
	DefaultLimit       int     `yaml:"defaultLimit"`
	MaxLimit           int     `yaml:"maxLimit"`
	MaxLemmaRatio      float64 `yaml:"maxLemmaRatio"`
	SnippetRadius      int     `yaml:"snippetRadius"`
	RateLimitPerMinute int     `yaml:"rateLimitPerMinute"`
}

// SiteConfig is one entry of the crawlable universe.
type SiteConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "search_engine.db",
			Host:            "localhost",
			Port:            5432,
			Database:        "search_engine",
			User:            "search_engine",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "search-engine",
			Topics: KafkaTopics{
				IndexEvents:  "search-engine.index-events",
				SearchEvents: "search-engine.search-events",
			},
		},
		Crawler: CrawlerConfig{
			MaxTasks:         50,
			MaxPages:         500,
			MaxChildren:      10,
			Parallelism:      8,
			FetchTimeout:     3 * time.Second,
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			Referrer:         "http://www.google.com",
			MaxContentLength: 500000,
			MaxBodyBytes:     8 << 20,
		},
		Search: SearchConfig{
			DefaultLimit:       20,
			MaxLimit:           100,
			MaxLemmaRatio:      0.5,
			SnippetRadius:      200,
			RateLimitPerMinute: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate checks the site list and storage driver and normalizes every site
// root to scheme://host.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if len(c.Sites) == 0 {
		return fmt.Errorf("no sites configured")
	}
	seen := make(map[string]struct{}, len(c.Sites))
	for i, site := range c.Sites {
		root, err := normalizeRoot(site.URL)
		if err != nil {
			return fmt.Errorf("site %d: %w", i, err)
		}
		if _, dup := seen[root]; dup {
			return fmt.Errorf("site %s configured twice", root)
		}
		seen[root] = struct{}{}
		c.Sites[i].URL = root
		if strings.TrimSpace(site.Name) == "" {
			c.Sites[i].Name = root
		}
	}
	if c.Crawler.MaxTasks <= 0 || c.Crawler.MaxPages <= 0 || c.Crawler.MaxChildren <= 0 {
		return fmt.Errorf("crawler limits must be positive")
	}
	if c.Search.MaxLemmaRatio <= 0 || c.Search.MaxLemmaRatio > 1 {
		return fmt.Errorf("search.maxLemmaRatio must be in (0, 1]")
	}
	return nil
}

// SiteByURL returns the configured site whose root equals root.
func (c *Config) SiteByURL(root string) (SiteConfig, bool) {
	for _, s := range c.Sites {
		if s.URL == root {
			return s, true
		}
	}
	return SiteConfig{}, false
}

func normalizeRoot(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("url %q must be an absolute http(s) url", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// applyEnvOverrides reads SE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SE_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SE_DATABASE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SE_DATABASE_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("SE_DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SE_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SE_DATABASE_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("SE_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SE_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SE_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
