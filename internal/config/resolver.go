// Package config resolves leasebot settings from defaults, a YAML file, a
// .env file, the environment and CLI flags, remembering where each value
// came from.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceDefault ValueSource = "default"
	SourceConfig  ValueSource = "config"
	SourceDotenv  ValueSource = "dotenv"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// Duration parses the value, returning fallback when unset.
func (v ResolvedValue) Duration(fallback time.Duration) (time.Duration, error) {
	if v.Value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v.Value)
	if err != nil {
		return 0, fmt.Errorf("%s (from %s): %w", v.Value, v.origin(), err)
	}
	return d, nil
}

// Int parses the value, returning fallback when unset.
func (v ResolvedValue) Int(fallback int) (int, error) {
	if v.Value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v.Value)
	if err != nil {
		return 0, fmt.Errorf("%s (from %s): %w", v.Value, v.origin(), err)
	}
	return n, nil
}

// Float parses the value, returning fallback when unset.
func (v ResolvedValue) Float(fallback float64) (float64, error) {
	if v.Value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s (from %s): %w", v.Value, v.origin(), err)
	}
	return f, nil
}

func (v ResolvedValue) origin() string {
	if v.From != "" {
		return string(v.Source) + " " + v.From
	}
	return string(v.Source)
}

type ResolveOptions struct {
	ConfigPath string
	EnvFile    string // "" means ./.env when present

	CLIDBPath     string
	CLIBackendURL string
	CLIStore      string
	CLILogLevel   string
}

// Session store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`
	EnvFile    string `json:"env_file,omitempty"`

	DBPath        ResolvedValue `json:"db_path"`
	BackendURL    ResolvedValue `json:"backend_url"`
	BackendToken  ResolvedValue `json:"backend_token"`
	SearchTimeout ResolvedValue `json:"search_timeout"`

	SessionStore ResolvedValue `json:"session_store"`
	SessionTTL   ResolvedValue `json:"session_ttl"`
	RedisURL     ResolvedValue `json:"redis_url"`

	AMQPURL      ResolvedValue `json:"amqp_url"`
	AMQPExchange ResolvedValue `json:"amqp_exchange"`

	OutboxBuffer   ResolvedValue `json:"outbox_buffer"`
	OutboxRate     ResolvedValue `json:"outbox_rate"`
	OutboxAttempts ResolvedValue `json:"outbox_attempts"`

	LogLevel ResolvedValue `json:"log_level"`
}

type fileConfig struct {
	DBPath  string `yaml:"db_path"`
	Backend struct {
		URL           string `yaml:"url"`
		Token         string `yaml:"token"`
		SearchTimeout string `yaml:"search_timeout"`
	} `yaml:"backend"`
	Session struct {
		Store string `yaml:"store"`
		TTL   string `yaml:"ttl"`
	} `yaml:"session"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Outbox struct {
		Buffer      string `yaml:"buffer"`
		Rate        string `yaml:"rate"`
		MaxAttempts string `yaml:"max_attempts"`
	} `yaml:"outbox"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".leasebot", "config.yaml")
}

// binding maps one setting to its file value and environment variable.
type binding struct {
	dst  *ResolvedValue
	file string
	env  string
}

func (r *ResolvedConfig) bindings(cfg *fileConfig) []binding {
	if cfg == nil {
		cfg = &fileConfig{}
	}
	return []binding{
		{&r.DBPath, cfg.DBPath, "LEASEBOT_DB"},
		{&r.BackendURL, cfg.Backend.URL, "LEASEBOT_BACKEND_URL"},
		{&r.BackendToken, cfg.Backend.Token, "LEASEBOT_BACKEND_TOKEN"},
		{&r.SearchTimeout, cfg.Backend.SearchTimeout, "LEASEBOT_SEARCH_TIMEOUT"},
		{&r.SessionStore, cfg.Session.Store, "LEASEBOT_SESSION_STORE"},
		{&r.SessionTTL, cfg.Session.TTL, "LEASEBOT_SESSION_TTL"},
		{&r.RedisURL, cfg.Redis.URL, "LEASEBOT_REDIS_URL"},
		{&r.AMQPURL, cfg.AMQP.URL, "LEASEBOT_AMQP_URL"},
		{&r.AMQPExchange, cfg.AMQP.Exchange, "LEASEBOT_AMQP_EXCHANGE"},
		{&r.OutboxBuffer, cfg.Outbox.Buffer, "LEASEBOT_OUTBOX_BUFFER"},
		{&r.OutboxRate, cfg.Outbox.Rate, "LEASEBOT_OUTBOX_RATE"},
		{&r.OutboxAttempts, cfg.Outbox.MaxAttempts, "LEASEBOT_OUTBOX_ATTEMPTS"},
		{&r.LogLevel, cfg.Log.Level, "LEASEBOT_LOG_LEVEL"},
	}
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	apply(&out.DBPath, "~/.leasebot/leasebot.db", SourceDefault, "built-in default")
	apply(&out.SearchTimeout, "3s", SourceDefault, "built-in default")
	apply(&out.SessionStore, StoreMemory, SourceDefault, "built-in default")
	apply(&out.AMQPExchange, "leasebot.events", SourceDefault, "built-in default")
	apply(&out.LogLevel, "info", SourceDefault, "built-in default")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	binds := out.bindings(cfg)
	for _, b := range binds {
		apply(b.dst, b.file, SourceConfig, path)
	}

	envFile, dotenv, err := loadDotenv(opts.EnvFile)
	if err != nil {
		return out, err
	}
	out.EnvFile = envFile
	for _, b := range binds {
		apply(b.dst, dotenv[b.env], SourceDotenv, b.env)
	}

	for _, b := range binds {
		applyEnv(b.dst, b.env)
	}
	applyEnv(&out.DBPath, "LEASEBOT_DB_PATH")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.BackendURL, opts.CLIBackendURL, SourceCLI, "--backend")
	apply(&out.SessionStore, opts.CLIStore, SourceCLI, "--store")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	out.SessionStore.Value = strings.ToLower(out.SessionStore.Value)

	return out, nil
}

// Validate checks that typed values parse and the store kind is usable.
func (r ResolvedConfig) Validate() error {
	if _, err := r.SearchTimeout.Duration(0); err != nil {
		return fmt.Errorf("search_timeout: %w", err)
	}
	if _, err := r.SessionTTL.Duration(0); err != nil {
		return fmt.Errorf("session ttl: %w", err)
	}
	if _, err := r.OutboxBuffer.Int(0); err != nil {
		return fmt.Errorf("outbox buffer: %w", err)
	}
	if _, err := r.OutboxRate.Float(0); err != nil {
		return fmt.Errorf("outbox rate: %w", err)
	}
	if _, err := r.OutboxAttempts.Int(0); err != nil {
		return fmt.Errorf("outbox max_attempts: %w", err)
	}
	switch r.SessionStore.Value {
	case StoreMemory:
	case StoreRedis:
		if r.RedisURL.Value == "" {
			return fmt.Errorf("session store redis needs a redis url")
		}
	default:
		return fmt.Errorf("unknown session store %q", r.SessionStore.Value)
	}
	return nil
}

// Redacted hides secrets for display.
func (r ResolvedConfig) Redacted() ResolvedConfig {
	if r.BackendToken.Value != "" {
		r.BackendToken.Value = "********"
	}
	r.RedisURL.Value = redactURL(r.RedisURL.Value)
	r.AMQPURL.Value = redactURL(r.AMQPURL.Value)
	return r
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// loadDotenv reads path without touching the process environment. An
// explicit path must exist; the implicit ./.env is optional.
func loadDotenv(path string) (string, map[string]string, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return "", map[string]string{}, nil
		}
		return "", nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return path, vals, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
