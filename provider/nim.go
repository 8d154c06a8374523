package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/localswarm/localswarm/types"
)

// NIMConfig configures the NVIDIA NIM completion gateway.
type NIMConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// NIMGateway talks to a local NIM microservice via its completions endpoint.
type NIMGateway struct {
	cfg    NIMConfig
	client *http.Client
	logger *zap.Logger
}

// NewNIMGateway creates a NIM gateway.
func NewNIMGateway(cfg NIMConfig, logger *zap.Logger) *NIMGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Model == "" {
		cfg.Model = "meta/llama-3.1-8b-instruct"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NIMGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "nim_gateway")),
	}
}

func (g *NIMGateway) Name() string             { return "nim" }
func (g *NIMGateway) Type() types.ProviderType { return types.ProviderNIM }

// Available probes the NIM readiness endpoint. Failures report false, never
// an error.
func (g *NIMGateway) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/v1/health/ready", nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Debug("availability probe failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

type nimCompletionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type nimCompletionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Invoke sends the task through the completions endpoint and returns the
// generated text.
func (g *NIMGateway) Invoke(ctx context.Context, task *types.Task, hctx *types.HandoffContext) (string, error) {
	body, err := json.Marshal(nimCompletionRequest{
		Model:     g.cfg.Model,
		Prompt:    taskPrompt(task),
		MaxTokens: g.cfg.MaxTokens,
	})
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "marshal completion request").
			WithProvider(g.Name()).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "build completion request").
			WithProvider(g.Name()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrTransientProvider, "nim request failed").
			WithProvider(g.Name()).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", mapHTTPError(g.Name(), resp)
	}

	var completion nimCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "decode completion response").
			WithProvider(g.Name()).WithRetryable(true).WithCause(err)
	}
	if len(completion.Choices) == 0 {
		return "", types.NewError(types.ErrUpstreamError, "empty completion choices").
			WithProvider(g.Name()).WithRetryable(true)
	}
	return completion.Choices[0].Text, nil
}
