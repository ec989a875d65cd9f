package cmd

import (
	"fmt"
	"os"

	"feedq/config"
	"feedq/db"
	"feedq/feeds"
	"feedq/store"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a TOML config file",
			EnvVars: []string{"FEEDQ_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"FEEDQ_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text or json)",
			EnvVars: []string{"FEEDQ_LOG_FORMAT"},
		},
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "Storage backend (sqlite, postgres, bolt or memory)",
			EnvVars: []string{"FEEDQ_BACKEND"},
		},
		&cli.StringFlag{
			Name:    "database",
			Aliases: []string{"d"},
			Usage:   "SQLite database file location",
			EnvVars: []string{"FEEDQ_DATABASE"},
		},
		&cli.StringFlag{
			Name:    "bolt-path",
			Usage:   "bbolt database file location",
			EnvVars: []string{"FEEDQ_BOLT_PATH"},
		},
		&cli.StringFlag{
			Name:    "db-host",
			Usage:   "PostgreSQL host",
			EnvVars: []string{"FEEDQ_DB_HOST"},
		},
		&cli.IntFlag{
			Name:    "db-port",
			Usage:   "PostgreSQL port",
			EnvVars: []string{"FEEDQ_DB_PORT"},
		},
		&cli.StringFlag{
			Name:    "db-user",
			Usage:   "PostgreSQL user",
			EnvVars: []string{"FEEDQ_DB_USER"},
		},
		&cli.StringFlag{
			Name:    "db-password",
			Usage:   "PostgreSQL password",
			EnvVars: []string{"FEEDQ_DB_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "db-name",
			Usage:   "PostgreSQL database name",
			EnvVars: []string{"FEEDQ_DB_NAME"},
		},
		&cli.StringFlag{
			Name:    "db-sslmode",
			Usage:   "PostgreSQL sslmode",
			EnvVars: []string{"FEEDQ_DB_SSLMODE"},
		},
	}
}

// loadConfig reads the config file and applies every flag that was set on
// top of it. Logging is configured from the result.
func loadConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	setString := func(flag string, dst *string) {
		if ctx.IsSet(flag) {
			*dst = ctx.String(flag)
		}
	}
	setInt := func(flag string, dst *int) {
		if ctx.IsSet(flag) {
			*dst = ctx.Int(flag)
		}
	}

	setString("log-level", &cfg.Log.Level)
	setString("log-format", &cfg.Log.Format)
	setString("backend", &cfg.Store.Backend)
	setString("database", &cfg.Store.SQLitePath)
	setString("bolt-path", &cfg.Store.BoltPath)
	setString("db-host", &cfg.Store.Postgres.Host)
	setInt("db-port", &cfg.Store.Postgres.Port)
	setString("db-user", &cfg.Store.Postgres.User)
	setString("db-password", &cfg.Store.Postgres.Password)
	setString("db-name", &cfg.Store.Postgres.Name)
	setString("db-sslmode", &cfg.Store.Postgres.SSLMode)
	setString("hostname", &cfg.Server.Hostname)
	setInt("port", &cfg.Server.Port)
	setString("allow-origins", &cfg.Server.AllowOrigins)
	setInt("max-num-items", &cfg.Server.MaxNumItems)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setupLogging(cfg config.TomlLog) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stderr)
	return nil
}

// sqlTarget returns the migration dialect and URL of the SQL backends
func sqlTarget(cfg *config.TomlConfig) (db.Dialect, string, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		return db.SQLite, db.SQLiteURL(cfg.Store.SQLitePath), nil
	case config.BackendPostgres:
		pg := cfg.Store.Postgres
		return db.Postgres, db.PostgresURL(pg.Host, pg.Port, pg.User, pg.Password, pg.Name, pg.SSLMode), nil
	default:
		return "", "", fmt.Errorf("backend %s has no migrations", cfg.Store.Backend)
	}
}

// openBackend opens the configured backend. SQL backends are migrated first
// when migrate is set.
func openBackend(cfg *config.TomlConfig, migrate bool) (store.Backend, error) {
	log.WithFields(log.Fields{
		"backend": cfg.Store.Backend,
	}).Info("Opening storage backend")

	switch cfg.Store.Backend {
	case config.BackendMemory:
		return store.NewMemory(), nil

	case config.BackendBolt:
		backend, err := db.OpenBolt(cfg.Store.BoltPath, cfg.Store.BoltTimeout())
		if err != nil {
			return nil, err
		}
		return backend, nil

	case config.BackendSQLite, config.BackendPostgres:
		dialect, url, err := sqlTarget(cfg)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := db.Migrate(dialect, url); err != nil {
				return nil, err
			}
		}

		var backend *db.DB
		if dialect == db.SQLite {
			backend, err = db.OpenSQLite(cfg.Store.SQLitePath)
		} else {
			backend, err = db.OpenPostgres(url)
		}
		if err != nil {
			return nil, err
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func retryConfig(cfg *config.TomlConfig) feeds.RetryConfig {
	return feeds.RetryConfig{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval(),
		MaxInterval:     cfg.Retry.MaxInterval(),
	}
}
