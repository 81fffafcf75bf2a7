package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stratforge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func missingYAML(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "absent.yaml")
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadFromPrecedence(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
  rate_limit: 2.5
logging:
  level: debug
cache:
  l1_max_size_mb: 128
  l2_bucket: TEST_CACHE
pipeline:
  max_concurrent_runs: 2
`)
	t.Setenv("STRATFORGE_LOG_LEVEL", "warn")
	t.Setenv("STRATFORGE_CACHE_SCHEMA_TTL", "30s")
	t.Setenv("STRATFORGE_PIPELINE_WORKERS", "3")
	t.Setenv("STRATFORGE_IDEMPOTENCY_TTL", "1h")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	checks := []struct {
		field     string
		got, want any
	}{
		{"server.port (yaml)", cfg.Server.Port, "9090"},
		{"server.rate_limit (yaml)", cfg.Server.RateLimit, 2.5},
		{"server.rate_burst (default)", cfg.Server.RateBurst, 20},
		{"server.idempotency_ttl (env)", cfg.Server.IdempotencyTTL, time.Hour},
		{"logging.level (env over yaml)", cfg.Logging.Level, "warn"},
		{"cache.l1_max_size_mb (yaml)", cfg.Cache.L1MaxSizeMB, int64(128)},
		{"cache.l2_bucket (yaml)", cfg.Cache.L2Bucket, "TEST_CACHE"},
		{"cache.l2_ttl (default)", cfg.Cache.L2TTL, 10 * time.Minute},
		{"cache.schema_ttl (env)", cfg.Cache.SchemaTTL, 30 * time.Second},
		{"pipeline.max_concurrent_runs (yaml)", cfg.Pipeline.MaxConcurrentRuns, 2},
		{"pipeline.background_workers (env)", cfg.Pipeline.BackgroundWorkers, 3},
		{"nats.url (default)", cfg.NATS.URL, "nats://localhost:4222"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(missingYAML(t))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("defaults not applied: %+v", cfg.Server)
	}
}

func TestLoadFromErrors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		env   map[string]string
		wants []string
	}{
		{
			name:  "malformed yaml",
			yaml:  "server: [unclosed",
			wants: []string{"config yaml"},
		},
		{
			name:  "unparsable env values are all reported",
			env:   map[string]string{"STRATFORGE_PG_MAX_CONNS": "many", "STRATFORGE_BREAKER_TIMEOUT": "soon", "STRATFORGE_LOG_ASYNC": "maybe"},
			wants: []string{"STRATFORGE_PG_MAX_CONNS", "STRATFORGE_BREAKER_TIMEOUT", "STRATFORGE_LOG_ASYNC"},
		},
		{
			name:  "every invalid field is reported",
			yaml:  "server:\n  port: \"\"\npipeline:\n  max_concurrent_runs: 0\n  background_workers: 0\n",
			wants: []string{"server.port", "pipeline.max_concurrent_runs", "pipeline.background_workers"},
		},
		{
			name:  "rate limit needs a burst",
			env:   map[string]string{"STRATFORGE_RATE_LIMIT": "5", "STRATFORGE_RATE_BURST": "0"},
			wants: []string{"server.rate_burst"},
		},
		{
			name:  "pool bounds",
			yaml:  "postgres:\n  max_conns: 2\n  min_conns: 4\n",
			wants: []string{"postgres.min_conns"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := missingYAML(t)
			if tt.yaml != "" {
				path = writeYAML(t, tt.yaml)
			}
			_, err := LoadFrom(path)
			if err == nil {
				t.Fatal("expected error")
			}
			for _, w := range tt.wants {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %s", err, w)
				}
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		port    string
		config  string
		unset   bool
		wantErr bool
	}{
		{name: "long", args: []string{"--port", "9999", "--config", "alt.yaml"}, port: "9999", config: "alt.yaml"},
		{name: "short", args: []string{"-p", "7777", "-c", "x.yaml"}, port: "7777", config: "x.yaml"},
		{name: "none", args: nil, unset: true},
		{name: "unknown", args: []string{"--bogus"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.unset {
				if f.Port != nil || f.ConfigPath != nil || f.DSN != nil {
					t.Errorf("flags set without args: %+v", f)
				}
				return
			}
			if f.Port == nil || *f.Port != tt.port || f.ConfigPath == nil || *f.ConfigPath != tt.config {
				t.Errorf("flags = %+v", f)
			}
		})
	}
}

func TestLoadWithCLIOverridesEnv(t *testing.T) {
	path := writeYAML(t, "server:\n  port: \"9090\"\n")
	t.Setenv("STRATFORGE_PORT", "7070")
	t.Setenv("NATS_URL", "nats://env:4222")

	port, dsn := "6060", "postgres://cli@db/stratforge"
	cfg, used, err := LoadWithCLI(CLIFlags{ConfigPath: &path, Port: &port, DSN: &dsn})
	if err != nil {
		t.Fatalf("LoadWithCLI: %v", err)
	}
	if used != path {
		t.Errorf("path = %q, want %q", used, path)
	}
	if cfg.Server.Port != "6060" || cfg.Postgres.DSN != dsn {
		t.Errorf("cli not applied: port=%s dsn=%s", cfg.Server.Port, cfg.Postgres.DSN)
	}
	if cfg.NATS.URL != "nats://env:4222" {
		t.Errorf("unset cli flag clobbered env: %s", cfg.NATS.URL)
	}
}

func TestLoadWithCLIValidatesAfterFlags(t *testing.T) {
	empty := ""
	_, _, err := LoadWithCLI(CLIFlags{ConfigPath: ptr(missingYAML(t)), Port: &empty})
	if err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Fatalf("err = %v, want server.port validation", err)
	}
}

func ptr(s string) *string { return &s }
