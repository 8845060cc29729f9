// Package config loads the pipeline configuration from YAML with
// environment variable expansion and .env file support. Precedence is
// defaults, then the YAML file, then environment references inside it
// (${VAR} and ${VAR:-default}).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/finmesh/gateway"
	"github.com/hupe1980/finmesh/logging"
	"github.com/hupe1980/finmesh/telemetry"
	"golang.org/x/time/rate"
)

// Config is the full file layout.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Model     ModelConfig     `yaml:"model"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig bounds one pipeline run.
type EngineConfig struct {
	Deadline        time.Duration `yaml:"deadline"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	ResearchTimeout time.Duration `yaml:"research_timeout"`
	MaxRefinements  int           `yaml:"max_refinements"`
}

// GatewayConfig mirrors the gateway limits.
type GatewayConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	MaxConcurrent    int64         `yaml:"max_concurrent"`
	RatePerSecond    float64       `yaml:"rate_per_second"`
	RateBurst        int           `yaml:"rate_burst"`
	DefaultTimeout   time.Duration `yaml:"default_timeout"`
}

// ModelConfig selects the language model backing the recommendation loop.
// An empty provider selects the deterministic heuristic agents.
type ModelConfig struct {
	// Provider is "openai", "anthropic" or "" for none.
	Provider string `yaml:"provider"`
	// Name overrides the provider's default model identifier.
	Name string `yaml:"name"`
	// Temperature and MaxTokens pass through to the provider. Zero values
	// keep provider defaults.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
	// AddSource includes source positions in records.
	AddSource bool `yaml:"add_source"`
}

// TelemetryConfig mirrors telemetry.Config with YAML tags.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Deadline:        2 * time.Minute,
			SessionTTL:      30 * time.Minute,
			ResearchTimeout: 30 * time.Second,
			MaxRefinements:  3,
		},
		Gateway: GatewayConfig{
			MaxAttempts:      3,
			InitialBackoff:   100 * time.Millisecond,
			MaxBackoff:       2 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
			MaxConcurrent:    8,
			RateBurst:        1,
			DefaultTimeout:   10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{
			ServiceName:  "finmesh",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Load reads path, expands environment references and unmarshals over the
// defaults. A missing file is not an error; the defaults are returned.
// .env.local and .env are loaded into the process environment first.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := Default()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := expandEnvVars(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate rejects values the runtime would silently misinterpret.
func (c *Config) Validate() error {
	if c.Engine.MaxRefinements < 0 {
		return fmt.Errorf("engine.max_refinements must not be negative")
	}
	if c.Gateway.RatePerSecond < 0 {
		return fmt.Errorf("gateway.rate_per_second must not be negative")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be in [0, 1]")
	}
	switch c.Model.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("model.provider %q is not supported", c.Model.Provider)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}

// ToGateway converts to the gateway's native configuration.
func (g GatewayConfig) ToGateway(logger logging.Logger) gateway.Config {
	return gateway.Config{
		MaxAttempts:      g.MaxAttempts,
		InitialBackoff:   g.InitialBackoff,
		MaxBackoff:       g.MaxBackoff,
		BreakerThreshold: g.BreakerThreshold,
		BreakerCooldown:  g.BreakerCooldown,
		MaxConcurrent:    g.MaxConcurrent,
		RateLimit:        rate.Limit(g.RatePerSecond),
		RateBurst:        g.RateBurst,
		DefaultTimeout:   g.DefaultTimeout,
		Logger:           logger,
	}
}

// ToTelemetry converts to the telemetry package's configuration.
func (t TelemetryConfig) ToTelemetry() telemetry.Config {
	return telemetry.Config{
		Enabled:      t.Enabled,
		ServiceName:  t.ServiceName,
		OTLPEndpoint: t.OTLPEndpoint,
		SampleRate:   t.SampleRate,
	}
}

// NewLogger builds a logger per the logging section.
func (l LoggingConfig) NewLogger() logging.Logger {
	level := logging.LogLevelInfo
	switch l.Level {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	format := l.Format
	if format == "" {
		format = "text"
	}
	return logging.NewSlogLogger(level, format, l.AddSource)
}
