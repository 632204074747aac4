// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

// Package config loads terra's runtime configuration.
//
// Values are layered, later sources winning:
//  1. flag defaults
//  2. the YAML config file (--config, or the XDG default when present)
//  3. flags set explicitly on the command line
//
// DATABASE_URL and REDIS_URL fill database_url and redis_url when neither
// the file nor the flags set them. A .env file in the working directory is
// loaded into the environment first.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/internal/xdg"
)

// Defaults.
const (
	DefaultHTTPAddr             = ":5000"
	DefaultMetricsAddr          = "127.0.0.1:9100"
	DefaultLogFormat            = "json"
	DefaultLogLevel             = "info"
	DefaultClientOrigin         = "http://localhost:5173"
	DefaultCookieName           = "terra_session"
	DefaultSessionPurgeInterval = 10 * time.Minute
	DefaultLookupBaseURL        = "https://restcountries.com/v3.1"
	DefaultLookupTimeout        = 5 * time.Second
	DefaultLookupConcurrency    = 8
	DefaultLookupRetries        = 2
	DefaultLookupCacheTTL       = 24 * time.Hour
)

// Config is the fully resolved configuration.
type Config struct {
	HTTPAddr    string `koanf:"http_addr" jsonschema:"description=API listen address"`
	MetricsAddr string `koanf:"metrics_addr" jsonschema:"description=metrics and health address; empty disables it"`
	LogFormat   string `koanf:"log_format" jsonschema:"enum=json,enum=text"`
	LogLevel    string `koanf:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`

	ClientOrigin string `koanf:"client_origin" jsonschema:"description=origin allowed to make credentialed requests"`
	CookieName   string `koanf:"cookie_name" jsonschema:"minLength=1"`
	CookieSecure bool   `koanf:"cookie_secure"`

	SessionTTL           time.Duration `koanf:"session_ttl"`
	SessionPurgeInterval time.Duration `koanf:"session_purge_interval"`

	LookupBaseURL     string        `koanf:"lookup_base_url" jsonschema:"format=uri"`
	LookupTimeout     time.Duration `koanf:"lookup_timeout"`
	LookupConcurrency int           `koanf:"lookup_concurrency" jsonschema:"minimum=1"`
	LookupRetries     int           `koanf:"lookup_retries" jsonschema:"minimum=0"`
	LookupCacheTTL    time.Duration `koanf:"lookup_cache_ttl"`

	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	HashTime      uint32 `koanf:"hash_time" jsonschema:"minimum=1"`
	HashMemoryKiB uint32 `koanf:"hash_memory_kib" jsonschema:"minimum=8"`
	HashThreads   uint8  `koanf:"hash_threads" jsonschema:"minimum=1"`
}

// RegisterFlags adds every configuration key to fs as a flag carrying its
// default. Flag names use hyphens; keys use underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", DefaultHTTPAddr, "API listen address")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("log-level", DefaultLogLevel, "minimum log level (debug, info, warn, error)")

	fs.String("client-origin", DefaultClientOrigin, "origin allowed by CORS")
	fs.String("cookie-name", DefaultCookieName, "session cookie name")
	fs.Bool("cookie-secure", false, "mark the session cookie Secure")

	fs.Duration("session-ttl", auth.DefaultSessionTTL, "fixed session lifetime")
	fs.Duration("session-purge-interval", DefaultSessionPurgeInterval, "interval between expired session sweeps")

	fs.String("lookup-base-url", DefaultLookupBaseURL, "country API base URL")
	fs.Duration("lookup-timeout", DefaultLookupTimeout, "timeout for a single country lookup")
	fs.Int("lookup-concurrency", DefaultLookupConcurrency, "maximum concurrent country lookups per request")
	fs.Int("lookup-retries", DefaultLookupRetries, "retries for transient country API failures")
	fs.Duration("lookup-cache-ttl", DefaultLookupCacheTTL, "country cache TTL when redis is configured")

	fs.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	fs.String("redis-url", "", "Redis URL for the country cache (default: $REDIS_URL)")

	fs.Uint32("hash-time", auth.DefaultArgon2Params.Time, "argon2id iterations")
	fs.Uint32("hash-memory-kib", auth.DefaultArgon2Params.MemoryKiB, "argon2id memory in KiB")
	fs.Uint8("hash-threads", auth.DefaultArgon2Params.Threads, "argon2id parallelism")
}

// LoadDotEnv loads .env into the process environment. A missing file is
// not an error; existing variables are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return oops.Code("CONFIG_DOTENV_FAILED").With("path", p).Wrap(err)
		}
	}
	return nil
}

// Load resolves the configuration from path and flags. An empty path uses
// the XDG config file if one exists. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if err := loadFile(k, path, explicit); err != nil {
		return nil, err
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("operation", "load flags").Wrap(err)
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "unmarshal").Wrap(err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = os.Getenv("REDIS_URL")
	}
	return &cfg, nil
}

// loadFile validates the YAML file at path against the schema and merges
// it into k. A missing file is skipped unless it was asked for by name.
func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_INVALID").
			With("operation", "read config file").
			With("path", path).
			Wrap(err)
	}
	if err := ValidateFile(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_INVALID").
			With("operation", "load config file").
			With("path", path).
			Wrap(err)
	}
	return nil
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		HTTPAddr:             DefaultHTTPAddr,
		MetricsAddr:          DefaultMetricsAddr,
		LogFormat:            DefaultLogFormat,
		LogLevel:             DefaultLogLevel,
		ClientOrigin:         DefaultClientOrigin,
		CookieName:           DefaultCookieName,
		SessionTTL:           auth.DefaultSessionTTL,
		SessionPurgeInterval: DefaultSessionPurgeInterval,
		LookupBaseURL:        DefaultLookupBaseURL,
		LookupTimeout:        DefaultLookupTimeout,
		LookupConcurrency:    DefaultLookupConcurrency,
		LookupRetries:        DefaultLookupRetries,
		LookupCacheTTL:       DefaultLookupCacheTTL,
		HashTime:             auth.DefaultArgon2Params.Time,
		HashMemoryKiB:        auth.DefaultArgon2Params.MemoryKiB,
		HashThreads:          auth.DefaultArgon2Params.Threads,
	}
}

// Validate checks the configuration needed to run the server.
func (c *Config) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return invalid("http_addr is required")
	case c.LogFormat != "json" && c.LogFormat != "text":
		return invalid("log_format must be 'json' or 'text', got %q", c.LogFormat)
	case c.CookieName == "":
		return invalid("cookie_name is required")
	case c.SessionTTL <= 0:
		return invalid("session_ttl must be positive")
	case c.SessionPurgeInterval <= 0:
		return invalid("session_purge_interval must be positive")
	case c.LookupTimeout <= 0:
		return invalid("lookup_timeout must be positive")
	case c.LookupConcurrency <= 0:
		return invalid("lookup_concurrency must be positive")
	case c.LookupRetries < 0:
		return invalid("lookup_retries cannot be negative")
	case c.DatabaseURL == "":
		return invalid("database_url is required (set --database-url or DATABASE_URL)")
	}
	if err := c.HashParams().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return nil
}

// HashParams returns the argon2id work factor.
func (c *Config) HashParams() auth.Argon2Params {
	return auth.Argon2Params{
		Time:      c.HashTime,
		MemoryKiB: c.HashMemoryKiB,
		Threads:   c.HashThreads,
	}
}

func invalid(format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").Errorf(format, args...)
}
