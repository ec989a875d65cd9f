package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage backends understood by the commands
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

// TomlServer holds the HTTP server settings
type TomlServer struct {
	Hostname     string `toml:"hostname"`
	Port         int    `toml:"port"`
	AllowOrigins string `toml:"allow_origins"`
	MaxNumItems  int    `toml:"max_num_items"`
}

// TomlPostgres holds the connection settings of the postgres backend
type TomlPostgres struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	SSLMode  string `toml:"sslmode"`
}

// TomlStore selects and configures the storage backend
type TomlStore struct {
	Backend       string       `toml:"backend"`
	SQLitePath    string       `toml:"sqlite_path"`
	BoltPath      string       `toml:"bolt_path"`
	BoltTimeoutMs int          `toml:"bolt_timeout_ms"`
	Postgres      TomlPostgres `toml:"postgres"`
}

// TomlRetry bounds retries of feed updates that lost a version race
type TomlRetry struct {
	MaxAttempts       int `toml:"max_attempts"`
	InitialIntervalMs int `toml:"initial_interval_ms"`
	MaxIntervalMs     int `toml:"max_interval_ms"`
}

type TomlLog struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Server TomlServer `toml:"server"`
	Store  TomlStore  `toml:"store"`
	Retry  TomlRetry  `toml:"retry"`
	Log    TomlLog    `toml:"log"`
}

func Default() *TomlConfig {
	return &TomlConfig{
		Server: TomlServer{
			Hostname:     "localhost",
			Port:         3000,
			AllowOrigins: "*",
			MaxNumItems:  100,
		},
		Store: TomlStore{
			Backend:       BackendSQLite,
			SQLitePath:    "feedq.db",
			BoltPath:      "feedq.bolt",
			BoltTimeoutMs: 1000,
			Postgres: TomlPostgres{
				Host:    "localhost",
				Port:    5432,
				User:    "feedq",
				Name:    "feedq",
				SSLMode: "disable",
			},
		},
		Retry: TomlRetry{
			MaxAttempts:       5,
			InitialIntervalMs: 10,
			MaxIntervalMs:     500,
		},
		Log: TomlLog{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the TOML file at path on top of the defaults. An empty
// path returns the defaults. Unknown keys are rejected.
func LoadConfig(path string) (*TomlConfig, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *TomlConfig) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendBolt:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.MaxNumItems < 0 {
		return fmt.Errorf("max_num_items must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	if c.Retry.InitialIntervalMs < 0 || c.Retry.MaxIntervalMs < c.Retry.InitialIntervalMs {
		return fmt.Errorf("retry intervals must satisfy 0 <= initial_interval_ms <= max_interval_ms")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	return nil
}

func (s TomlStore) BoltTimeout() time.Duration {
	return time.Duration(s.BoltTimeoutMs) * time.Millisecond
}

func (r TomlRetry) InitialInterval() time.Duration {
	return time.Duration(r.InitialIntervalMs) * time.Millisecond
}

func (r TomlRetry) MaxInterval() time.Duration {
	return time.Duration(r.MaxIntervalMs) * time.Millisecond
}
