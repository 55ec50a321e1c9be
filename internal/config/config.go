// Package config loads service configuration from defaults, an optional TOML
// file and JOBCASCADE_ environment variables, in that order of precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/me/jobcascade/pkg/model"
)

// EnvPrefix is the prefix of environment overrides. A single underscore
// separates sections and a double underscore is a literal underscore:
// JOBCASCADE_DEFAULTS_QUIET__PERIOD sets defaults.quiet_period.
const EnvPrefix = "JOBCASCADE_"

// Config is the complete service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Log           LogConfig           `koanf:"log"`
	Storage       StorageConfig       `koanf:"storage"`
	Defaults      DefaultsConfig      `koanf:"defaults"`
	Authorization AuthorizationConfig `koanf:"authorization"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Queue         QueueConfig         `koanf:"queue"`
	Agents        AgentsConfig        `koanf:"agents"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig selects the log level (debug, info, warn, error) and format (text, json).
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StorageConfig locates the SQLite database. An empty DBPath means
// ~/.jobcascade/jobcascade.db; ":memory:" keeps everything in memory.
type StorageConfig struct {
	DBPath string `koanf:"db_path"`
}

// DefaultsConfig holds the global fallbacks for cascaded project fields.
type DefaultsConfig struct {
	QuietPeriod           int `koanf:"quiet_period"`
	SCMCheckoutRetryCount int `koanf:"scm_checkout_retry_count"`
}

// AuthorizationConfig selects the active authorization strategy.
type AuthorizationConfig struct {
	Strategy string `koanf:"strategy"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// QueueConfig controls the dispatcher that starts queued builds.
type QueueConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
}

// AgentsConfig names the build agents available to projects. An empty list
// is valid.
type AgentsConfig struct {
	Names []string `koanf:"names"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Defaults: DefaultsConfig{
			QuietPeriod:           5,
			SCMCheckoutRetryCount: 0,
		},
		Authorization: AuthorizationConfig{
			Strategy: string(model.StrategyUnsecured),
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Queue: QueueConfig{
			PollInterval: 2 * time.Second,
		},
	}
}

// Load builds the configuration. path may be empty to skip the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envKey maps JOBCASCADE_STORAGE_DB__PATH to storage.db_path.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ReplaceAll(s, "%UNDERSCORE%", "_")
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Defaults.QuietPeriod < 0 {
		return fmt.Errorf("defaults.quiet_period must not be negative, got %d", c.Defaults.QuietPeriod)
	}
	if c.Defaults.SCMCheckoutRetryCount < 0 {
		return fmt.Errorf("defaults.scm_checkout_retry_count must not be negative, got %d", c.Defaults.SCMCheckoutRetryCount)
	}
	if !model.AuthorizationStrategy(c.Authorization.Strategy).Valid() {
		return fmt.Errorf("authorization.strategy must be one of %s, %s, %s; got %q",
			model.StrategyProjectMatrix, model.StrategyGlobalMatrix, model.StrategyUnsecured, c.Authorization.Strategy)
	}
	if c.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval must be positive, got %s", c.Queue.PollInterval)
	}
	return nil
}

// ResolveDBPath returns the database path, creating ~/.jobcascade when the
// configured path is empty.
func (c *Config) ResolveDBPath() (string, error) {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".jobcascade")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "jobcascade.db"), nil
}

// GlobalDefaults serves the configured fallbacks to the cascade resolver.
type GlobalDefaults struct {
	quietPeriod           int
	scmCheckoutRetryCount int
}

// NewGlobalDefaults creates a GlobalDefaults from d.
func NewGlobalDefaults(d DefaultsConfig) *GlobalDefaults {
	return &GlobalDefaults{
		quietPeriod:           d.QuietPeriod,
		scmCheckoutRetryCount: d.SCMCheckoutRetryCount,
	}
}

func (g *GlobalDefaults) QuietPeriod() int           { return g.quietPeriod }
func (g *GlobalDefaults) SCMCheckoutRetryCount() int { return g.scmCheckoutRetryCount }

// AuthorizationProvider reports the configured authorization strategy.
type AuthorizationProvider struct {
	strategy model.AuthorizationStrategy
}

// NewAuthorizationProvider creates an AuthorizationProvider from a.
func NewAuthorizationProvider(a AuthorizationConfig) *AuthorizationProvider {
	return &AuthorizationProvider{strategy: model.AuthorizationStrategy(a.Strategy)}
}

// AgentList serves the configured agent names to the initializer.
type AgentList struct {
	names []string
}

// NewAgentList creates an AgentList from a.
func NewAgentList(a AgentsConfig) *AgentList {
	return &AgentList{names: append([]string(nil), a.Names...)}
}

func (l *AgentList) Nodes(context.Context) []string {
	return append([]string(nil), l.names...)
}

func (p *AuthorizationProvider) ActiveStrategy(context.Context) model.AuthorizationStrategy {
	return p.strategy
}
