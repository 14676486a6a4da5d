// Package appconf resolves process configuration from defaults, an optional
// YAML file, GTFSAUDIT_ environment variables and command-line flags, in
// increasing order of precedence.
package appconf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/logging"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix prefixes environment overrides. A double underscore nests keys:
// GTFSAUDIT_LOG__LEVEL sets log.level.
const EnvPrefix = "GTFSAUDIT_"

// DefaultConfigFile is read from the working directory when no explicit
// path is given.
const DefaultConfigFile = "gtfsaudit.yaml"

// Output formats.
const (
	OutputTable    = "table"
	OutputJSON     = "json"
	OutputMarkdown = "markdown"
)

type Config struct {
	Env     string        `koanf:"env"`
	Output  string        `koanf:"output"`
	Log     LogConfig     `koanf:"log"`
	Audit   AuditConfig   `koanf:"audit"`
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Monitor MonitorConfig `koanf:"monitor"`

	environment Environment
	file        string
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuditConfig struct {
	Workers  int      `koanf:"workers"`
	Disabled []string `koanf:"disabled"`
	// Params apply to every rule.
	Params map[string]any `koanf:"params"`
	// Rules holds per-rule options keyed by rule name or ID.
	Rules map[string]map[string]any `koanf:"rules"`
}

type ServerConfig struct {
	Port      int      `koanf:"port"`
	APIKeys   []string `koanf:"api_keys"`
	RateLimit int      `koanf:"rate_limit"`
}

type StoreConfig struct {
	Path string `koanf:"path"`
	// RetentionDays prunes older runs after each monitored audit; zero
	// keeps everything.
	RetentionDays int `koanf:"retention_days"`
}

type MonitorConfig struct {
	FeedURL  string `koanf:"feed_url"`
	Schedule string `koanf:"schedule"`
}

// Defaults returns the lowest-precedence layer.
func Defaults() map[string]any {
	return map[string]any{
		"env":               "development",
		"output":            OutputTable,
		"log.level":         "info",
		"log.format":        "text",
		"audit.workers":     0,
		"audit.disabled":    []string{},
		"server.port":       4000,
		"server.rate_limit": 100,
		"store.path":        "gtfsaudit.db",
		"monitor.schedule":  "@daily",
	}
}

// flagKeys maps command-line flag names onto configuration keys. Flags not
// listed here are command arguments, not configuration.
var flagKeys = map[string]string{
	"env":        "env",
	"output":     "output",
	"log-level":  "log.level",
	"log-format": "log.format",
	"workers":    "audit.workers",
	"disable":    "audit.disabled",
	"port":       "server.port",
	"api-keys":   "server.api_keys",
	"rate-limit": "server.rate_limit",
	"db":         "store.path",
	"feed-url":   "monitor.feed_url",
	"schedule":   "monitor.schedule",
}

// Load resolves the configuration. path may be empty, in which case
// gtfsaudit.yaml is used when it exists. flags may be nil; only flags the
// user explicitly set take part.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	cfgFile := path
	if cfgFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			cfgFile = DefaultConfigFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.file = cfgFile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns GTFSAUDIT_AUDIT__WORKERS into audit.workers.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks field ranges and caches the parsed environment.
func (c *Config) Validate() error {
	environment, err := ParseEnvironment(c.Env)
	if err != nil {
		return err
	}
	c.environment = environment

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log.format must be json or text, got %q", ErrInvalidConfig, c.Log.Format)
	}
	switch c.Output {
	case OutputTable, OutputJSON, OutputMarkdown:
	default:
		return fmt.Errorf("%w: output must be table, json or markdown, got %q", ErrInvalidConfig, c.Output)
	}
	if c.Audit.Workers < 0 {
		return fmt.Errorf("%w: audit.workers must not be negative", ErrInvalidConfig)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be between 1 and 65535, got %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: server.rate_limit must not be negative", ErrInvalidConfig)
	}
	if c.Store.RetentionDays < 0 {
		return fmt.Errorf("%w: store.retention_days must not be negative", ErrInvalidConfig)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", ErrInvalidConfig)
	}
	if c.Monitor.FeedURL != "" {
		if _, err := cron.ParseStandard(c.Monitor.Schedule); err != nil {
			return fmt.Errorf("%w: monitor.schedule: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Environment returns the parsed env key.
func (c *Config) Environment() Environment { return c.environment }

// File returns the config file that was read, or "".
func (c *Config) File() string { return c.file }

// RuleParams converts the audit.rules section into per-rule parameters.
func (c *Config) RuleParams() map[string]audit.Params {
	if len(c.Audit.Rules) == 0 {
		return nil
	}
	params := make(map[string]audit.Params, len(c.Audit.Rules))
	for rule, opts := range c.Audit.Rules {
		params[rule] = audit.Params(opts)
	}
	return params
}

// AuditOptions builds aggregator options from the audit section.
func (c *Config) AuditOptions() audit.Options {
	return audit.Options{
		Workers:    c.Audit.Workers,
		Disabled:   c.Audit.Disabled,
		Params:     audit.Params(c.Audit.Params),
		RuleParams: c.RuleParams(),
	}
}
