// Package config loads proxy settings from .env, an optional YAML file and
// the process environment, in that order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/bitrix"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/ratelimit"
)

// FileEnv names the variable holding the YAML config path.
const FileEnv = "BITRIX_PROXY_CONFIG"

// Config holds every runtime setting.
type Config struct {
	WebhookURL   string  `yaml:"webhook_url"`
	TimeoutMs    int     `yaml:"timeout_ms"`
	RetryCount   int     `yaml:"retry_count"`
	RetryDelayMs int     `yaml:"retry_delay_ms"`
	RPS          float64 `yaml:"rps"`

	HTTPPort string `yaml:"http_port"`
	GRPCPort string `yaml:"grpc_port"`
	LogLevel string `yaml:"log_level"`

	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	RedisURL      string `yaml:"redis_url"`
	RedisKey      string `yaml:"redis_key"`

	TokenHash       string `yaml:"token_hash"`
	AuthCacheTTLSec int    `yaml:"auth_cache_ttl_s"`
	OTelStdout      bool   `yaml:"otel_stdout"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() *Config {
	return &Config{
		TimeoutMs:       int(bitrix.DefaultTimeout / time.Millisecond),
		RetryCount:      bitrix.DefaultRetryCount,
		RetryDelayMs:    int(bitrix.DefaultRetryDelay / time.Millisecond),
		RPS:             ratelimit.DefaultRPS,
		HTTPPort:        "3000",
		GRPCPort:        "9090",
		LogLevel:        "info",
		RedisKey:        "bitrix24:pacer",
		AuthCacheTTLSec: 300,
	}
}

// Load builds a Config. A missing .env file is not an error; a missing
// YAML file named by BITRIX_PROXY_CONFIG is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Load: .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("Load: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	var errs []error
	num := func(dst *int, key string) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}

	str(&c.WebhookURL, "BITRIX_WEBHOOK_URL", "B24_WEBHOOK_URL")
	num(&c.TimeoutMs, "BITRIX_TIMEOUT_MS")
	num(&c.RetryCount, "BITRIX_RETRY_COUNT")
	num(&c.RetryDelayMs, "BITRIX_RETRY_DELAY_MS")
	if v, ok := lookup("BITRIX_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("BITRIX_RPS: %q is not a number", v))
		} else {
			c.RPS = f
		}
	}
	str(&c.HTTPPort, "MCP_PORT", "PORT")
	str(&c.GRPCPort, "GRPC_PORT")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.ClickHouseDSN, "CLICKHOUSE_DSN")
	str(&c.PostgresDSN, "POSTGRES_DSN")
	str(&c.RedisURL, "REDIS_URL")
	str(&c.RedisKey, "BITRIX_RPS_REDIS_KEY")
	str(&c.TokenHash, "PROXY_TOKEN_HASH")
	num(&c.AuthCacheTTLSec, "PROXY_AUTH_CACHE_TTL_S")
	if v, ok := lookup("OTEL_STDOUT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("OTEL_STDOUT: %q is not a boolean", v))
		} else {
			c.OTelStdout = b
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	return nil
}

// Validate reports settings that make tool calls impossible. The returned
// error is a configuration *errmodel.Error.
func (c *Config) Validate() error {
	if c.WebhookURL == "" {
		return errmodel.Configuration(bitrix.MissingWebhookMessage)
	}
	u, err := url.Parse(c.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errmodel.Configuration("BITRIX_WEBHOOK_URL must be an absolute http(s) URL")
	}
	switch {
	case c.TimeoutMs <= 0:
		return errmodel.Configuration("BITRIX_TIMEOUT_MS must be positive")
	case c.RetryCount < 0:
		return errmodel.Configuration("BITRIX_RETRY_COUNT must not be negative")
	case c.RetryDelayMs < 0:
		return errmodel.Configuration("BITRIX_RETRY_DELAY_MS must not be negative")
	case c.RPS < 0:
		return errmodel.Configuration("BITRIX_RPS must not be negative")
	}
	return nil
}

// Bitrix returns the transport settings.
func (c *Config) Bitrix() bitrix.Config {
	return bitrix.Config{
		BaseURL:    c.WebhookURL,
		Timeout:    time.Duration(c.TimeoutMs) * time.Millisecond,
		RetryCount: c.RetryCount,
		RetryDelay: time.Duration(c.RetryDelayMs) * time.Millisecond,
	}
}

// AuthCacheTTL is how long a verified bearer token is remembered.
func (c *Config) AuthCacheTTL() time.Duration {
	return time.Duration(c.AuthCacheTTLSec) * time.Second
}
