// Package config loads the daemon configuration: defaults first, then an
// optional YAML file, then SWARM_-prefixed environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/localswarm/localswarm/provider"
	"github.com/localswarm/localswarm/retry"
	"github.com/localswarm/localswarm/store"
	"github.com/localswarm/localswarm/trust"
	"github.com/localswarm/localswarm/types"
)

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "SWARM_"

// Config is the full daemon configuration.
type Config struct {
	Log          LogConfig             `yaml:"log"`
	API          APIConfig             `yaml:"api"`
	Metrics      MetricsConfig         `yaml:"metrics"`
	Retry        retry.Policy          `yaml:"retry"`
	Trust        trust.Config          `yaml:"trust"`
	Orchestrator OrchestratorConfig    `yaml:"orchestrator"`
	Ollama       provider.OllamaConfig `yaml:"ollama"`
	NIM          provider.NIMConfig    `yaml:"nim"`
	Redis        RedisConfig           `yaml:"redis"`
	Agents       []AgentConfig         `yaml:"agents"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Development bool   `yaml:"development"` // console encoding, stacktraces
}

// APIConfig configures the HTTP handoff and registration surface.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// OrchestratorConfig configures the handoff engine.
type OrchestratorConfig struct {
	LatencyTarget time.Duration `yaml:"latency_target"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	EventBuffer   int           `yaml:"event_buffer"`
}

// RedisConfig configures the optional Redis handoff-record store.
type RedisConfig struct {
	Enabled           bool `yaml:"enabled"`
	store.RedisConfig `yaml:",inline"`
}

// AgentConfig declares an agent registered at startup.
type AgentConfig struct {
	ID           string             `yaml:"id"`
	ProviderType types.ProviderType `yaml:"provider_type"`
	ModelName    string             `yaml:"model_name"`
	Capabilities []string           `yaml:"capabilities"`
	Capacity     int                `yaml:"capacity"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info"},
		API:     APIConfig{Enabled: true, Addr: ":8080"},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9102"},
		Retry:   retry.DefaultPolicy(),
		Trust:   trust.DefaultConfig(),
		Orchestrator: OrchestratorConfig{
			LatencyTarget: 2000 * time.Millisecond,
			ProbeInterval: 5 * time.Second,
			EventBuffer:   100,
		},
		Ollama: provider.OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
			Timeout: 60 * time.Second,
		},
		NIM: provider.NIMConfig{
			BaseURL:   "http://localhost:8000",
			Model:     "meta/llama-3.1-8b-instruct",
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
		},
		Redis: RedisConfig{
			RedisConfig: store.RedisConfig{Addr: "localhost:6379"},
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// non-empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from SWARM_-prefixed environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.API.Addr, "API_ADDR")
	setBool(&cfg.API.Enabled, "API_ENABLED")
	setString(&cfg.Metrics.Addr, "METRICS_ADDR")
	setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED")

	setInt(&cfg.Retry.MaxRetries, "RETRY_MAX_RETRIES")
	setDuration(&cfg.Retry.BaseDelay, "RETRY_BASE_DELAY")
	setDuration(&cfg.Retry.MaxDelay, "RETRY_MAX_DELAY")

	setFloat(&cfg.Trust.LearningRate, "TRUST_LEARNING_RATE")
	setFloat(&cfg.Trust.TrustThreshold, "TRUST_THRESHOLD")
	setFloat(&cfg.Trust.DistrustThreshold, "TRUST_DISTRUST_THRESHOLD")

	setDuration(&cfg.Orchestrator.LatencyTarget, "LATENCY_TARGET")
	setDuration(&cfg.Orchestrator.ProbeInterval, "PROBE_INTERVAL")

	setString(&cfg.Ollama.BaseURL, "OLLAMA_BASE_URL")
	setString(&cfg.Ollama.Model, "OLLAMA_MODEL")
	setString(&cfg.NIM.BaseURL, "NIM_BASE_URL")
	setString(&cfg.NIM.Model, "NIM_MODEL")

	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be >= 1, got %d", c.Retry.MaxRetries)
	}
	if c.Orchestrator.LatencyTarget <= 0 {
		return fmt.Errorf("orchestrator.latency_target must be positive")
	}
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent with empty id")
		}
		if !a.ProviderType.Valid() {
			return fmt.Errorf("agent %q: unknown provider type %q", a.ID, a.ProviderType)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
