package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-archiver
  env: staging
api:
  rest_url: https://api.example.com/info
  ws_url: wss://api.example.com/ws
database:
  postgres:
    host: localhost
    port: 5432
    name: test_db
    user: testuser
    password: testpass
  timescale:
    host: localhost
    port: 5432
    name: test_ts
    user: testuser
    password: testpass
coins: [BTC, ETH]
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-archiver" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-archiver")
	}
	if cfg.API.RestURL != "https://api.example.com/info" {
		t.Errorf("API.RestURL = %q, want %q", cfg.API.RestURL, "https://api.example.com/info")
	}
	if cfg.Database.Timescale.Name != "test_ts" {
		t.Errorf("Database.Timescale.Name = %q, want %q", cfg.Database.Timescale.Name, "test_ts")
	}
	if len(cfg.Coins) != 2 || cfg.Coins[0] != "BTC" {
		t.Errorf("Coins = %v, want [BTC ETH]", cfg.Coins)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-archiver
database:
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: ${TEST_DB_PASSWORD}
  timescale:
    host: localhost
    name: test_ts
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
}

func TestLoadUnsetEnvVarIsEmpty(t *testing.T) {
	yaml := `
instance:
  id: test-archiver
api:
  key: ${DEPTHSTREAM_UNSET_API_KEY}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.Key != "" {
		t.Errorf("API.Key = %q, want empty for unset env var", cfg.API.Key)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-archiver
database:
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: testpass
  timescale:
    host: localhost
    name: test_ts
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.Session.PingInterval != DefaultPingInterval {
		t.Errorf("Session.PingInterval = %v, want default %v", cfg.Session.PingInterval, DefaultPingInterval)
	}
	if cfg.History.PageLimit != DefaultPageLimit {
		t.Errorf("History.PageLimit = %d, want default %d", cfg.History.PageLimit, DefaultPageLimit)
	}
	if cfg.Archive.BatchSize != DefaultBatchSize {
		t.Errorf("Archive.BatchSize = %d, want default %d", cfg.Archive.BatchSize, DefaultBatchSize)
	}
	if cfg.Database.Timescale.Port != DefaultDBPort {
		t.Errorf("Database.Timescale.Port = %d, want default %d", cfg.Database.Timescale.Port, DefaultDBPort)
	}
	if cfg.Database.Timescale.MaxConns != DefaultMaxConns {
		t.Errorf("Database.Timescale.MaxConns = %d, want default %d", cfg.Database.Timescale.MaxConns, DefaultMaxConns)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestValidate(t *testing.T) {
	validDB := DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2}

	valid := Config{
		Instance: InstanceConfig{ID: "test"},
		API: APIConfig{
			RestURL: "https://api.example.com",
			WSURL:   "wss://api.example.com/ws",
		},
		Session:  SessionConfig{MaxReconnectAttempts: 10},
		History:  HistoryConfig{PageLimit: 1000},
		Archive:  ArchiveConfig{BatchSize: 500, FlushInterval: time.Second, QueueSize: 1000},
		Database: DatabaseConfig{Postgres: validDB, Timescale: validDB},
		Metrics:  MetricsConfig{Port: 9090},
		Coins:    []string{"BTC"},
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing rest url",
			mutate:  func(c *Config) { c.API.RestURL = "" },
			wantErr: "api.rest_url is required",
		},
		{
			name:    "missing timescale host",
			mutate:  func(c *Config) { c.Database.Timescale.Host = "" },
			wantErr: "database.timescale.host is required",
		},
		{
			name:    "missing postgres password",
			mutate:  func(c *Config) { c.Database.Postgres.Password = "" },
			wantErr: "database.postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database.Postgres.MaxConns = 5
				c.Database.Postgres.MinConns = 10
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "zero page limit",
			mutate:  func(c *Config) { c.History.PageLimit = 0 },
			wantErr: "history.page_limit must be >= 1",
		},
		{
			name:    "no coins",
			mutate:  func(c *Config) { c.Coins = nil },
			wantErr: "at least one coin is required",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
