package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"feedq/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedq.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Retry.InitialInterval())
	assert.Equal(t, time.Second, cfg.Store.BoltTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080

[store]
backend = "postgres"

[store.postgres]
host = "db.internal"
password = "secret"

[retry]
max_attempts = 3
max_interval_ms = 200

[log]
format = "json"
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Hostname)
	assert.Equal(t, config.BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "db.internal", cfg.Store.Postgres.Host)
	assert.Equal(t, "secret", cfg.Store.Postgres.Password)
	assert.Equal(t, 5432, cfg.Store.Postgres.Port)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.MaxInterval())
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "[server]\nprot = 80\n", "unknown config keys: server.prot"},
		{"unknown backend", "[store]\nbackend = \"mongo\"\n", `unknown store backend "mongo"`},
		{"port out of range", "[server]\nport = 70000\n", "server port 70000 out of range"},
		{"no attempts", "[retry]\nmax_attempts = 0\n", "max_attempts"},
		{"bad format", "[log]\nformat = \"xml\"\n", `unknown log format "xml"`},
		{"invalid toml", "[server\n", "error parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
