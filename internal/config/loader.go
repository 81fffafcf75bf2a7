package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "stratforge.yaml"

// Load reads DefaultConfigFile with environment overrides.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom builds a Config from defaults, the optional YAML file at
// yamlPath, and environment variables, in increasing precedence.
func LoadFrom(yamlPath string) (*Config, error) {
	return load(yamlPath, CLIFlags{})
}

func load(path string, flags CLIFlags) (*Config, error) {
	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	applyCLI(&cfg, flags)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

// loadYAML unmarshals path over cfg. A missing file is not an error.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// envVar binds one environment variable to a config field.
type envVar struct {
	key string
	set func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func parsed[T any](dst *T, parse func(string) (T, error)) func(string) error {
	return func(v string) error {
		x, err := parse(v)
		if err != nil {
			return err
		}
		*dst = x
		return nil
	}
}

func parseInt32(v string) (int32, error) {
	n, err := strconv.ParseInt(v, 10, 32)
	return int32(n), err
}

func parseInt64(v string) (int64, error)   { return strconv.ParseInt(v, 10, 64) }
func parseFloat(v string) (float64, error) { return strconv.ParseFloat(v, 64) }

func envBindings(cfg *Config) []envVar {
	return []envVar{
		{"STRATFORGE_PORT", str(&cfg.Server.Port)},
		{"STRATFORGE_CORS_ORIGIN", str(&cfg.Server.CORSOrigin)},
		{"STRATFORGE_RATE_LIMIT", parsed(&cfg.Server.RateLimit, parseFloat)},
		{"STRATFORGE_RATE_BURST", parsed(&cfg.Server.RateBurst, strconv.Atoi)},
		{"STRATFORGE_IDEMPOTENCY_BUCKET", str(&cfg.Server.IdempotencyBucket)},
		{"STRATFORGE_IDEMPOTENCY_TTL", parsed(&cfg.Server.IdempotencyTTL, time.ParseDuration)},

		{"DATABASE_URL", str(&cfg.Postgres.DSN)},
		{"STRATFORGE_PG_MAX_CONNS", parsed(&cfg.Postgres.MaxConns, parseInt32)},
		{"STRATFORGE_PG_MIN_CONNS", parsed(&cfg.Postgres.MinConns, parseInt32)},
		{"STRATFORGE_PG_MAX_CONN_LIFETIME", parsed(&cfg.Postgres.MaxConnLifetime, time.ParseDuration)},
		{"STRATFORGE_PG_MAX_CONN_IDLE_TIME", parsed(&cfg.Postgres.MaxConnIdleTime, time.ParseDuration)},
		{"STRATFORGE_PG_HEALTH_CHECK", parsed(&cfg.Postgres.HealthCheck, time.ParseDuration)},

		{"NATS_URL", str(&cfg.NATS.URL)},

		{"LITELLM_URL", str(&cfg.LiteLLM.URL)},
		{"LITELLM_MASTER_KEY", str(&cfg.LiteLLM.MasterKey)},
		{"STRATFORGE_LLM_MODEL", str(&cfg.LiteLLM.Model)},
		{"STRATFORGE_LLM_MAX_TOKENS", parsed(&cfg.LiteLLM.MaxTokens, strconv.Atoi)},
		{"STRATFORGE_LLM_TIMEOUT", parsed(&cfg.LiteLLM.Timeout, time.ParseDuration)},

		{"STRATFORGE_LOG_LEVEL", str(&cfg.Logging.Level)},
		{"STRATFORGE_LOG_SERVICE", str(&cfg.Logging.Service)},
		{"STRATFORGE_LOG_ASYNC", parsed(&cfg.Logging.Async, strconv.ParseBool)},

		{"STRATFORGE_BREAKER_MAX_FAILURES", parsed(&cfg.Breaker.MaxFailures, strconv.Atoi)},
		{"STRATFORGE_BREAKER_TIMEOUT", parsed(&cfg.Breaker.Timeout, time.ParseDuration)},

		{"STRATFORGE_CACHE_L1_SIZE_MB", parsed(&cfg.Cache.L1MaxSizeMB, parseInt64)},
		{"STRATFORGE_CACHE_L2_BUCKET", str(&cfg.Cache.L2Bucket)},
		{"STRATFORGE_CACHE_L2_TTL", parsed(&cfg.Cache.L2TTL, time.ParseDuration)},
		{"STRATFORGE_CACHE_SCHEMA_TTL", parsed(&cfg.Cache.SchemaTTL, time.ParseDuration)},

		{"STRATFORGE_PIPELINE_MAX_RUNS", parsed(&cfg.Pipeline.MaxConcurrentRuns, strconv.Atoi)},
		{"STRATFORGE_PIPELINE_WORKERS", parsed(&cfg.Pipeline.BackgroundWorkers, strconv.Atoi)},

		{"STRATFORGE_OTEL_ENABLED", parsed(&cfg.OTel.Enabled, strconv.ParseBool)},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", str(&cfg.OTel.Endpoint)},
		{"OTEL_SERVICE_NAME", str(&cfg.OTel.ServiceName)},
		{"STRATFORGE_OTEL_INSECURE", parsed(&cfg.OTel.Insecure, strconv.ParseBool)},
	}
}

// loadEnv overlays non-empty environment variables onto cfg. Every
// unparsable value is reported.
func loadEnv(cfg *Config) error {
	var errs []error
	for _, e := range envBindings(cfg) {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		if err := e.set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", e.key, v, err))
		}
	}
	return errors.Join(errs...)
}

// validate reports every invalid setting at once.
func validate(cfg *Config) error {
	checks := []struct {
		bad bool
		msg string
	}{
		{cfg.Server.Port == "", "server.port is required"},
		{cfg.Server.RateLimit < 0, "server.rate_limit must be >= 0"},
		{cfg.Server.RateLimit > 0 && cfg.Server.RateBurst < 1, "server.rate_burst must be >= 1 when rate limiting is enabled"},
		{cfg.Server.IdempotencyBucket == "", "server.idempotency_bucket is required"},
		{cfg.Postgres.DSN == "", "postgres.dsn is required"},
		{cfg.Postgres.MaxConns < 1, "postgres.max_conns must be >= 1"},
		{cfg.Postgres.MinConns > cfg.Postgres.MaxConns, "postgres.min_conns must not exceed max_conns"},
		{cfg.NATS.URL == "", "nats.url is required"},
		{cfg.LiteLLM.MaxTokens < 1, "litellm.max_tokens must be >= 1"},
		{cfg.Breaker.MaxFailures < 1, "breaker.max_failures must be >= 1"},
		{cfg.Cache.L1MaxSizeMB < 1, "cache.l1_max_size_mb must be >= 1"},
		{cfg.Pipeline.MaxConcurrentRuns < 1, "pipeline.max_concurrent_runs must be >= 1"},
		{cfg.Pipeline.BackgroundWorkers < 1, "pipeline.background_workers must be >= 1"},
	}
	var errs []error
	for _, c := range checks {
		if c.bad {
			errs = append(errs, errors.New(c.msg))
		}
	}
	return errors.Join(errs...)
}

// CLIFlags holds command-line overrides. Nil fields were not set and leave
// the loaded value untouched.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
}

// ParseFlags parses serve-command flags. Only flags present in args are set.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var configPath, port, logLevel, dsn, natsURL string
	fs.StringVar(&configPath, "config", "", "path to YAML config")
	fs.StringVar(&configPath, "c", "", "path to YAML config (shorthand)")
	fs.StringVar(&port, "port", "", "HTTP port")
	fs.StringVar(&port, "p", "", "HTTP port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL DSN")
	fs.StringVar(&natsURL, "nats-url", "", "NATS URL")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = &configPath
		case "port", "p":
			flags.Port = &port
		case "log-level":
			flags.LogLevel = &logLevel
		case "dsn":
			flags.DSN = &dsn
		case "nats-url":
			flags.NatsURL = &natsURL
		}
	})
	return flags, nil
}

// LoadWithCLI is LoadFrom with command-line flags on top. It returns the
// YAML path that was read.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}
	cfg, err := load(path, flags)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}
