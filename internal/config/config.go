// Package config loads vrscore settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vradarserver/vrscore-sub000/internal/lookup"
	"github.com/vradarserver/vrscore-sub000/internal/lookup/webapi"
	"github.com/vradarserver/vrscore-sub000/internal/storage"
)

// Config is the complete runtime configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	API     APIConfig     `yaml:"api"`
	Feed    FeedConfig    `yaml:"feed"`
	State   StateConfig   `yaml:"state"`
	Lookup  LookupConfig  `yaml:"lookup"`
	Storage StorageConfig `yaml:"storage"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error.
	Format string `yaml:"format"` // auto, text or json.
}

// APIConfig configures the REST server.
type APIConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	AuthEnabled bool          `yaml:"auth_enabled"`
	APIKeys     []string      `yaml:"api_keys"`
	Timeout     time.Duration `yaml:"timeout"`
}

// FeedConfig configures the NATS report subscription.
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// StateConfig controls how long idle aircraft are kept.
type StateConfig struct {
	ExpireAfter   time.Duration `yaml:"expire_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LookupConfig configures the enrichment provider and service.
type LookupConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	BatchSize         int           `yaml:"batch_size"`
	MinInterval       int           `yaml:"min_interval_seconds"`
	MaxFailedInterval int           `yaml:"max_failed_interval_seconds"`
	Timeout           time.Duration `yaml:"timeout"`
	QueueWindow       time.Duration `yaml:"queue_window"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	MissStaleAfter    time.Duration `yaml:"miss_stale_after"`
}

// StorageConfig mirrors storage.Config with YAML names.
type StorageConfig struct {
	Memory struct {
		Enabled  bool          `yaml:"enabled"`
		Size     int           `yaml:"size"`
		TTL      time.Duration `yaml:"ttl"`
		Priority int           `yaml:"priority"`
	} `yaml:"memory"`
	Badger struct {
		Enabled  bool          `yaml:"enabled"`
		Path     string        `yaml:"path"`
		InMemory bool          `yaml:"in_memory"`
		TTL      time.Duration `yaml:"ttl"`
		Priority int           `yaml:"priority"`
	} `yaml:"badger"`
	SQLite struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"sqlite"`
	Postgres struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Database string `yaml:"database"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Priority int    `yaml:"priority"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Database string `yaml:"database"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"clickhouse"`
}

// Default returns a configuration suitable for local development.
func Default() Config {
	svc := lookup.DefaultConfig()
	st := storage.DefaultConfig()

	c := Config{
		Log: LogConfig{Level: "info", Format: "auto"},
		API: APIConfig{Enabled: true, Addr: ":8080", Timeout: 30 * time.Second},
		Feed: FeedConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "adsb.reports",
		},
		State: StateConfig{ExpireAfter: 5 * time.Minute, SweepInterval: 30 * time.Second},
		Lookup: LookupConfig{
			BatchSize:         100,
			MinInterval:       5,
			MaxFailedInterval: 300,
			Timeout:           30 * time.Second,
			QueueWindow:       svc.QueueWindow,
			StaleAfter:        svc.StaleAfter,
			MissStaleAfter:    svc.MissStaleAfter,
		},
	}

	s := &c.Storage
	s.Memory.Enabled, s.Memory.Size, s.Memory.TTL, s.Memory.Priority =
		st.Memory.Enabled, st.Memory.Size, st.Memory.TTL, st.Memory.Priority
	s.Badger.Enabled, s.Badger.Path, s.Badger.TTL, s.Badger.Priority =
		st.Badger.Enabled, st.Badger.Path, st.Badger.TTL, st.Badger.Priority
	s.SQLite.Enabled, s.SQLite.Path = st.SQLite.Enabled, st.SQLite.Path
	s.Postgres.Host, s.Postgres.Port, s.Postgres.Database = st.Postgres.Host, st.Postgres.Port, st.Postgres.Database
	s.Postgres.User, s.Postgres.Password, s.Postgres.Priority = st.Postgres.User, st.Postgres.Password, st.Postgres.Priority
	s.ClickHouse.Host, s.ClickHouse.Port, s.ClickHouse.Database, s.ClickHouse.User =
		st.ClickHouse.Host, st.ClickHouse.Port, st.ClickHouse.Database, st.ClickHouse.User
	return c
}

// Load returns the defaults overlaid with the file at path (if it exists)
// and then with environment variables.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		if err := loadFile(path, &c); err != nil {
			return c, fmt.Errorf("load config file: %w", err)
		}
	}

	applyEnv(&c)

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func loadFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func applyEnv(c *Config) {
	c.Log.Level = envOrDefault("VRS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("VRS_LOG_FORMAT", c.Log.Format)

	c.API.Addr = envOrDefault("VRS_API_ADDR", c.API.Addr)
	c.API.AuthEnabled = envOrDefaultBool("VRS_API_AUTH", c.API.AuthEnabled)
	if v := os.Getenv("VRS_API_KEYS"); v != "" {
		c.API.APIKeys = splitList(v)
	}

	c.Feed.Enabled = envOrDefaultBool("VRS_FEED_ENABLED", c.Feed.Enabled)
	c.Feed.URL = envOrDefault("NATS_URL", c.Feed.URL)
	c.Feed.Subject = envOrDefault("VRS_FEED_SUBJECT", c.Feed.Subject)

	c.Lookup.Enabled = envOrDefaultBool("VRS_LOOKUP_ENABLED", c.Lookup.Enabled)
	c.Lookup.BaseURL = envOrDefault("VRS_LOOKUP_URL", c.Lookup.BaseURL)
	c.Lookup.APIKey = envOrDefault("VRS_LOOKUP_API_KEY", c.Lookup.APIKey)
	c.Lookup.StaleAfter = envOrDefaultDuration("VRS_LOOKUP_STALE_AFTER", c.Lookup.StaleAfter)
	c.Lookup.MissStaleAfter = envOrDefaultDuration("VRS_LOOKUP_MISS_STALE_AFTER", c.Lookup.MissStaleAfter)

	c.Storage.SQLite.Path = envOrDefault("VRS_SQLITE_PATH", c.Storage.SQLite.Path)

	pg := &c.Storage.Postgres
	pg.Enabled = envOrDefaultBool("VRS_POSTGRES_ENABLED", pg.Enabled)
	pg.Host = envOrDefault("POSTGRES_HOST", pg.Host)
	pg.Port = envOrDefaultInt("POSTGRES_PORT", pg.Port)
	pg.User = envOrDefault("POSTGRES_USER", pg.User)
	pg.Password = envOrDefault("POSTGRES_PASSWORD", pg.Password)
	pg.Database = envOrDefault("POSTGRES_DATABASE", pg.Database)

	ch := &c.Storage.ClickHouse
	ch.Enabled = envOrDefaultBool("VRS_CLICKHOUSE_ENABLED", ch.Enabled)
	ch.Host = envOrDefault("CLICKHOUSE_HOST", ch.Host)
	ch.Port = envOrDefaultInt("CLICKHOUSE_PORT", ch.Port)
	ch.User = envOrDefault("CLICKHOUSE_USER", ch.User)
	ch.Password = envOrDefault("CLICKHOUSE_PASSWORD", ch.Password)
	ch.Database = envOrDefault("CLICKHOUSE_DATABASE", ch.Database)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("log.format must be auto, text or json, got %q", c.Log.Format)
	}
	if c.Lookup.Enabled && c.Lookup.BaseURL == "" {
		return errors.New("lookup.base_url is required when lookups are enabled")
	}
	if c.Lookup.QueueWindow <= 0 {
		return errors.New("lookup.queue_window must be > 0")
	}
	if c.Lookup.StaleAfter <= 0 || c.Lookup.MissStaleAfter <= 0 {
		return errors.New("lookup.stale_after and lookup.miss_stale_after must be > 0")
	}
	if c.Feed.Enabled && c.Feed.Subject == "" {
		return errors.New("feed.subject is required when the feed is enabled")
	}
	if c.State.ExpireAfter > 0 && c.State.SweepInterval <= 0 {
		return errors.New("state.sweep_interval must be > 0 when state.expire_after is set")
	}
	if c.API.AuthEnabled && len(c.API.APIKeys) == 0 {
		return errors.New("api.api_keys is required when auth is enabled")
	}
	return nil
}

// StorageConfig converts the storage section for storage.Open.
func (c Config) StorageConfig() storage.Config {
	s := c.Storage
	var out storage.Config
	out.Memory = storage.MemoryConfig{
		Enabled: s.Memory.Enabled, Size: s.Memory.Size, TTL: s.Memory.TTL, Priority: s.Memory.Priority,
	}
	out.Badger = storage.BadgerTierConfig{
		Enabled: s.Badger.Enabled, Path: s.Badger.Path, InMemory: s.Badger.InMemory,
		TTL: s.Badger.TTL, Priority: s.Badger.Priority,
	}
	out.SQLite = storage.SQLiteConfig{Enabled: s.SQLite.Enabled, Path: s.SQLite.Path}
	out.Postgres = storage.PostgresTierConfig{
		Enabled: s.Postgres.Enabled,
		PostgresConfig: storage.PostgresConfig{
			Host: s.Postgres.Host, Port: s.Postgres.Port, Database: s.Postgres.Database,
			User: s.Postgres.User, Password: s.Postgres.Password,
		},
		Priority: s.Postgres.Priority,
	}
	out.ClickHouse = storage.ClickHouseTierConfig{
		Enabled: s.ClickHouse.Enabled,
		ClickHouseConfig: storage.ClickHouseConfig{
			Host: s.ClickHouse.Host, Port: s.ClickHouse.Port, Database: s.ClickHouse.Database,
			User: s.ClickHouse.User, Password: s.ClickHouse.Password,
		},
	}
	return out
}

// ProviderConfig converts the lookup section for webapi.New.
func (c Config) ProviderConfig() webapi.Config {
	return webapi.Config{
		BaseURL:           c.Lookup.BaseURL,
		APIKey:            c.Lookup.APIKey,
		BatchSize:         c.Lookup.BatchSize,
		MinInterval:       c.Lookup.MinInterval,
		MaxFailedInterval: c.Lookup.MaxFailedInterval,
		Timeout:           c.Lookup.Timeout,
	}
}

// ServiceConfig converts the lookup section for lookup.NewService.
func (c Config) ServiceConfig() lookup.Config {
	return lookup.Config{
		QueueWindow:    c.Lookup.QueueWindow,
		StaleAfter:     c.Lookup.StaleAfter,
		MissStaleAfter: c.Lookup.MissStaleAfter,
	}
}
