package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localswarm/localswarm/types"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 2000*time.Millisecond, cfg.Orchestrator.LatencyTarget)
	assert.Equal(t, 0.1, cfg.Trust.LearningRate)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "http://localhost:8000", cfg.NIM.BaseURL)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
retry:
  max_retries: 5
  base_delay: 100ms
trust:
  learning_rate: 0.2
  trust_threshold: 0.8
orchestrator:
  latency_target: 1500ms
ollama:
  model: mistral
agents:
  - id: local-1
    provider_type: ollama
    model_name: mistral
    capabilities: [chat, coding]
    capacity: 4
  - id: local-2
    provider_type: nim
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 0.2, cfg.Trust.LearningRate)
	assert.Equal(t, 0.8, cfg.Trust.TrustThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.Orchestrator.LatencyTarget)
	assert.Equal(t, "mistral", cfg.Ollama.Model)

	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, "local-1", cfg.Agents[0].ID)
	assert.Equal(t, types.ProviderOllama, cfg.Agents[0].ProviderType)
	assert.Equal(t, []string{"chat", "coding"}, cfg.Agents[0].Capabilities)
	assert.Equal(t, types.ProviderNIM, cfg.Agents[1].ProviderType)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("SWARM_LOG_LEVEL", "warn")
	t.Setenv("SWARM_RETRY_MAX_RETRIES", "7")
	t.Setenv("SWARM_LATENCY_TARGET", "3s")
	t.Setenv("SWARM_OLLAMA_BASE_URL", "http://ollama.internal:11434")
	t.Setenv("SWARM_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Orchestrator.LatencyTarget)
	assert.Equal(t, "http://ollama.internal:11434", cfg.Ollama.BaseURL)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"zero retries", func(c *Config) { c.Retry.MaxRetries = 0 }},
		{"zero latency target", func(c *Config) { c.Orchestrator.LatencyTarget = 0 }},
		{"agent without id", func(c *Config) { c.Agents = []AgentConfig{{ProviderType: types.ProviderOllama}} }},
		{"agent with unknown provider", func(c *Config) {
			c.Agents = []AgentConfig{{ID: "a", ProviderType: "cloud"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
