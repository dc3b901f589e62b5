package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validBase() string {
	return `
database:
  dsn: postgres://user@localhost:5432/agentrail?sslmode=disable
redis:
  url: redis://localhost:6379/0
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-test
`
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, validBase()+`
server:
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRequiresDatabaseDSN(t *testing.T) {
	path := writeConfig(t, `
redis:
  url: redis://localhost:6379/0
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "database.dsn") {
		t.Fatalf("expected database.dsn error, got %v", err)
	}
}

func TestLoadRequiresRedisURL(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://user@localhost:5432/agentrail?sslmode=disable
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "redis.url") {
		t.Fatalf("expected redis.url error, got %v", err)
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://user@localhost:5432/agentrail?sslmode=disable
redis:
  url: redis://localhost:6379/0
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidatesFallbackChain(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://user@localhost:5432/agentrail?sslmode=disable
redis:
  url: redis://localhost:6379/0
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
  fallback_chain:
    - openai
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "fallback_chain") {
		t.Fatalf("expected fallback_chain error, got %v", err)
	}
}

func TestLoadValidatesKeyVaultMasterKeyLength(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://user@localhost:5432/agentrail?sslmode=disable
redis:
  url: redis://localhost:6379/0
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-test
  keyvault_master_key: "deadbeef"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "keyvault_master_key") {
		t.Fatalf("expected keyvault_master_key error, got %v", err)
	}
}

func TestLoadRequiresAtLeastOneProvider(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://user@localhost:5432/agentrail?sslmode=disable
redis:
  url: redis://localhost:6379/0
llm: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "llm.providers") {
		t.Fatalf("expected llm.providers error, got %v", err)
	}
}

func TestLoadValidatesLoggingFormat(t *testing.T) {
	path := writeConfig(t, validBase()+`
logging:
  format: xml
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("expected logging.format error, got %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validBase())

	if _, err := Load(path); err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, validBase())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("expected default host, got %q", cfg.Server.Host)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("expected default http port, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.MetricsPort != 9090 {
		t.Fatalf("expected default metrics port, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Database.MaxOpenConns != 20 {
		t.Fatalf("expected default max_open_conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Auth.TokenExpiry.Hours() != 24 {
		t.Fatalf("expected default token expiry of 24h, got %v", cfg.Auth.TokenExpiry)
	}
	if cfg.Scheduler.TickInterval.Minutes() != 15 {
		t.Fatalf("expected default tick interval of 15m, got %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Telemetry.SamplingRate != 1.0 {
		t.Fatalf("expected default sampling rate of 1.0, got %v", cfg.Telemetry.SamplingRate)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("expected default logging level/format, got %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadHonorsExplicitValuesOverDefaults(t *testing.T) {
	path := writeConfig(t, validBase()+`
server:
  host: 127.0.0.1
  http_port: 9000
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.HTTPPort != 9000 {
		t.Fatalf("expected explicit server values to survive defaulting, got %+v", cfg.Server)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Fatalf("expected explicit logging values to survive defaulting, got %+v", cfg.Logging)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("AGENTRAIL_DB_DSN", "postgres://override@localhost:5432/agentrail?sslmode=disable")

	path := writeConfig(t, `
database:
  dsn: ${AGENTRAIL_DB_DSN}
redis:
  url: redis://localhost:6379/0
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.DSN != "postgres://override@localhost:5432/agentrail?sslmode=disable" {
		t.Fatalf("expected env-expanded dsn, got %q", cfg.Database.DSN)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()

	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte(strings.TrimSpace(`
database:
  dsn: postgres://user@localhost:5432/agentrail?sslmode=disable
redis:
  url: redis://localhost:6379/0
`)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mainPath := filepath.Join(dir, "main.yaml")
	if err := os.WriteFile(mainPath, []byte(strings.TrimSpace(`
$include: base.yaml
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.DSN == "" {
		t.Fatalf("expected included database.dsn to be present")
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()

	aPath := filepath.Join(dir, "a.yaml")
	bPath := filepath.Join(dir, "b.yaml")

	if err := os.WriteFile(aPath, []byte("$include: b.yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(bPath, []byte("$include: a.yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(aPath); err == nil {
		t.Fatalf("expected include cycle error")
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrail.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
