// Package config is raibid-ci's closed, layered configuration type: a
// fixed, enumerated option set (spec §6) assembled with explicit
// precedence flag > env > file > default (spec §9's redesign flag,
// replacing ad-hoc overlay merging).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/raibid-labs/raibid-ci/internal/logging"
)

// EnvPrefix is the fixed prefix every environment-variable override carries.
const EnvPrefix = "RAIBID_"

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	MetricsPort int   `yaml:"metrics_port"`
}

type RedisConfig struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	ConsumerGroup string `yaml:"consumer_group"`
}

type AgentsConfig struct {
	Max           int    `yaml:"max"`
	IdleTimeout   int    `yaml:"idle_timeout_seconds"`
	BuildDeadline int    `yaml:"build_deadline_seconds"`
	BuildImage    string `yaml:"build_image"`
}

type WebhookConfig struct {
	GitHubSecret string `yaml:"github_secret"`
	GiteaSecret  string `yaml:"gitea_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete, closed set of options spec §6 names, plus the
// agents build image. Nothing outside these fields is recognized by the
// loader.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Agents  AgentsConfig  `yaml:"agents"`
	Webhook WebhookConfig `yaml:"webhook"`
	Log     LogConfig     `yaml:"log"`
}

// Default returns the hardcoded baseline every layer overlays onto.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			MetricsPort: 9090,
		},
		Redis: RedisConfig{
			URL:           "redis://localhost:6379/0",
			Stream:        "raibid:jobs",
			ConsumerGroup: "raibid-agents",
		},
		Agents: AgentsConfig{
			Max:           0,
			IdleTimeout:   30,
			BuildDeadline: 30 * 60,
			BuildImage:    "golang:1.24-alpine",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Options carries the process-level overrides a cmd/ main gathers from
// flags before calling Load.
type Options struct {
	FilePath    string
	ServerPort  *int
	LogLevel    *string
}

// Load assembles a Config following default -> file -> env -> flag
// precedence (flags win).
func Load(opts Options) (*Config, error) {
	// Development convenience: a local .env file feeds the env layer,
	// same search order the teacher's helpers.LoadEnv used.
	loadDotEnv()

	cfg := Default()

	if opts.FilePath != "" {
		if err := overlayFile(cfg, opts.FilePath); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", opts.FilePath, err)
		}
	}

	if err := overlayEnv(cfg); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if opts.ServerPort != nil {
		cfg.Server.Port = *opts.ServerPort
	}
	if opts.LogLevel != nil {
		cfg.Log.Level = *opts.LogLevel
	}

	return cfg, nil
}

func loadDotEnv() {
	candidates := []string{
		".env",
		"/app/.env",
		filepath.Join("..", ".env"),
		filepath.Join("..", "..", ".env"),
	}
	for _, path := range candidates {
		if err := godotenv.Load(path); err == nil {
			logging.Debug("loaded .env from " + path)
			return
		}
	}
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("parsing yaml: %w", err)
	}
	mergeNonZero(cfg, &fromFile)
	return nil
}

// mergeNonZero overlays every non-zero field of src onto dst. It is
// written out field by field (rather than via reflection) because the
// option set is small and fixed, and explicit code is easier to audit
// against spec §6's closed list than a generic merge.
func mergeNonZero(dst, src *Config) {
	if src.Server.Host != "" {
		dst.Server.Host = src.Server.Host
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.MetricsPort != 0 {
		dst.Server.MetricsPort = src.Server.MetricsPort
	}
	if src.Redis.URL != "" {
		dst.Redis.URL = src.Redis.URL
	}
	if src.Redis.Stream != "" {
		dst.Redis.Stream = src.Redis.Stream
	}
	if src.Redis.ConsumerGroup != "" {
		dst.Redis.ConsumerGroup = src.Redis.ConsumerGroup
	}
	if src.Agents.Max != 0 {
		dst.Agents.Max = src.Agents.Max
	}
	if src.Agents.IdleTimeout != 0 {
		dst.Agents.IdleTimeout = src.Agents.IdleTimeout
	}
	if src.Agents.BuildDeadline != 0 {
		dst.Agents.BuildDeadline = src.Agents.BuildDeadline
	}
	if src.Agents.BuildImage != "" {
		dst.Agents.BuildImage = src.Agents.BuildImage
	}
	if src.Webhook.GitHubSecret != "" {
		dst.Webhook.GitHubSecret = src.Webhook.GitHubSecret
	}
	if src.Webhook.GiteaSecret != "" {
		dst.Webhook.GiteaSecret = src.Webhook.GiteaSecret
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
}

func overlayEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := lookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookupEnv(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s must be an integer: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("SERVER_HOST", &cfg.Server.Host)
	if err := num("SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := num("SERVER_METRICS_PORT", &cfg.Server.MetricsPort); err != nil {
		return err
	}
	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_STREAM", &cfg.Redis.Stream)
	str("REDIS_CONSUMER_GROUP", &cfg.Redis.ConsumerGroup)
	if err := num("AGENTS_MAX", &cfg.Agents.Max); err != nil {
		return err
	}
	if err := num("AGENTS_IDLE_TIMEOUT", &cfg.Agents.IdleTimeout); err != nil {
		return err
	}
	if err := num("AGENTS_BUILD_DEADLINE", &cfg.Agents.BuildDeadline); err != nil {
		return err
	}
	str("AGENTS_BUILD_IMAGE", &cfg.Agents.BuildImage)
	str("WEBHOOK_GITHUB_SECRET", &cfg.Webhook.GitHubSecret)
	str("WEBHOOK_GITEA_SECRET", &cfg.Webhook.GiteaSecret)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	return nil
}

func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(EnvPrefix + key)
}
