package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "HARVESTER_CONFIG"
	logLevelEnv        = "LOG_LEVEL"
	redisAddressEnv    = "REDIS_ADDRESS"
	redisPasswordEnv   = "REDIS_PASSWORD"
	databaseDSNEnv     = "DATABASE_DSN"
	durableEnabledEnv  = "DURABLE_SINK_ENABLED"
	metricsAddressEnv  = "METRICS_ADDRESS"
	classifierURLEnv   = "CLASSIFIER_ENDPOINT"
	classifierKeyEnv   = "CLASSIFIER_API_KEY"
	defaultTTL         = 30 * 24 * time.Hour
	defaultTable       = "articles"
	defaultShutdown    = 30 * time.Second
	defaultHTTPTimeout = 20 * time.Second
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Redis       RedisConfig       `yaml:"redis"`
	Database    DatabaseConfig    `yaml:"database"`
	DurableSink DurableSinkConfig `yaml:"durableSink"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Sites       []SiteConfig      `yaml:"sites"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RedisConfig describes the dedup/cache store. An empty address selects the
// in-memory store.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	Table    string `yaml:"table"`
}

// DurableSinkConfig toggles writes to the durable store.
type DurableSinkConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig sets the listen address of the metrics endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// ClassifierConfig selects between the remote classifier (endpoint set) and
// the local keyword rules.
type ClassifierConfig struct {
	Endpoint   string         `yaml:"endpoint"`
	APIKey     string         `yaml:"apiKey"`
	Timeout    time.Duration  `yaml:"timeout"`
	Categories []CategoryRule `yaml:"categories"`
}

// CategoryRule maps keywords to one category.
type CategoryRule struct {
	ID       int      `yaml:"id"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// SchedulerConfig holds process-wide scheduling knobs.
type SchedulerConfig struct {
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	HTTPTimeout     time.Duration `yaml:"httpTimeout"`
}

// SiteConfig describes a single site with its scanner strategy and schedule.
type SiteConfig struct {
	Name         string            `yaml:"name"`
	Scanner      string            `yaml:"scanner"`
	InitialDelay time.Duration     `yaml:"initialDelay"`
	Period       time.Duration     `yaml:"period"`
	Categories   []CategoryConfig  `yaml:"categories"`
	Options      map[string]string `yaml:"options"`
}

// CategoryConfig holds the concrete endpoints to crawl (e.g., Arxiv category URLs).
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LoadEnvFiles loads .env.local then .env into the process environment.
// Variables already set win; missing files are ignored.
func LoadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

func readFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return fileCfg, nil
}

// Validate checks the site list is schedulable.
func (c Config) Validate() error {
	seen := map[string]struct{}{}
	for _, site := range c.Sites {
		if site.Name == "" {
			return fmt.Errorf("site with scanner %q has no name", site.Scanner)
		}
		if _, ok := seen[site.Name]; ok {
			return fmt.Errorf("site %s is declared twice", site.Name)
		}
		seen[site.Name] = struct{}{}
		if site.Scanner == "" {
			return fmt.Errorf("site %s: scanner is required", site.Name)
		}
		if site.Period <= 0 {
			return fmt.Errorf("site %s: period must be > 0", site.Name)
		}
		if site.InitialDelay < 0 {
			return fmt.Errorf("site %s: initialDelay must be >= 0", site.Name)
		}
	}
	if c.DurableSink.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when durableSink.enabled")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(redisAddressEnv); v != "" {
		c.Redis.Address = v
	}

	if v := os.Getenv(redisPasswordEnv); v != "" {
		c.Redis.Password = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(durableEnabledEnv); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.DurableSink.Enabled = enabled
		} else {
			log.Printf("config: invalid %s=%q, ignoring", durableEnabledEnv, v)
		}
	}

	if v := os.Getenv(metricsAddressEnv); v != "" {
		c.Metrics.Address = v
	}

	if v := os.Getenv(classifierURLEnv); v != "" {
		c.Classifier.Endpoint = v
	}

	if v := os.Getenv(classifierKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Redis.Address != "" {
		base.Redis.Address = override.Redis.Address
	}
	if override.Redis.Password != "" {
		base.Redis.Password = override.Redis.Password
	}
	if override.Redis.DB != 0 {
		base.Redis.DB = override.Redis.DB
	}
	if override.Redis.TTL > 0 {
		base.Redis.TTL = override.Redis.TTL
	}

	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}
	if override.Database.MaxConns > 0 {
		base.Database.MaxConns = override.Database.MaxConns
	}
	if override.Database.Table != "" {
		base.Database.Table = override.Database.Table
	}
	if override.DurableSink.Enabled {
		base.DurableSink.Enabled = true
	}

	if override.Metrics.Address != "" {
		base.Metrics.Address = override.Metrics.Address
	}

	if override.Classifier.Endpoint != "" {
		base.Classifier.Endpoint = override.Classifier.Endpoint
	}
	if override.Classifier.APIKey != "" {
		base.Classifier.APIKey = override.Classifier.APIKey
	}
	if override.Classifier.Timeout > 0 {
		base.Classifier.Timeout = override.Classifier.Timeout
	}
	if len(override.Classifier.Categories) > 0 {
		base.Classifier.Categories = override.Classifier.Categories
	}

	if override.Scheduler.ShutdownTimeout > 0 {
		base.Scheduler.ShutdownTimeout = override.Scheduler.ShutdownTimeout
	}
	if override.Scheduler.HTTPTimeout > 0 {
		base.Scheduler.HTTPTimeout = override.Scheduler.HTTPTimeout
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Redis:    RedisConfig{TTL: defaultTTL},
		Database: DatabaseConfig{DSN: "", MaxConns: 4, Table: defaultTable},
		Classifier: ClassifierConfig{
			Timeout: 10 * time.Second,
			Categories: []CategoryRule{
				{ID: 1, Name: "Artificial Intelligence", Keywords: []string{"artificial intelligence", "llm", "neural", "machine learning"}},
				{ID: 2, Name: "Go", Keywords: []string{"golang", "go"}},
				{ID: 3, Name: "Databases", Keywords: []string{"postgres", "redis", "database", "sql"}},
			},
		},
		Scheduler: SchedulerConfig{ShutdownTimeout: defaultShutdown, HTTPTimeout: defaultHTTPTimeout},
		Sites: []SiteConfig{
			{
				Name:         "arxiv-default",
				Scanner:      "arxiv",
				InitialDelay: 10 * time.Second,
				Period:       6 * time.Hour,
				Categories: []CategoryConfig{
					{Name: "cs.AI", URL: "https://export.arxiv.org/list/cs.AI/pastweek"},
				},
			},
		},
	}
}
