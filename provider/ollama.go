package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/localswarm/localswarm/types"
)

// OllamaConfig configures the Ollama chat gateway.
type OllamaConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// OllamaGateway talks to a local Ollama instance via its chat endpoint.
type OllamaGateway struct {
	cfg    OllamaConfig
	client *http.Client
	logger *zap.Logger
}

// NewOllamaGateway creates an Ollama gateway.
func NewOllamaGateway(cfg OllamaConfig, logger *zap.Logger) *OllamaGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "ollama_gateway")),
	}
}

func (g *OllamaGateway) Name() string             { return "ollama" }
func (g *OllamaGateway) Type() types.ProviderType { return types.ProviderOllama }

// Available probes the Ollama root endpoint. Failures report false, never an
// error.
func (g *OllamaGateway) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/", nil)
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

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message types.Message `json:"message"`
	Done    bool          `json:"done"`
}

// Invoke sends the task through the chat endpoint and returns the assistant
// reply.
func (g *OllamaGateway) Invoke(ctx context.Context, task *types.Task, hctx *types.HandoffContext) (string, error) {
	messages := make([]types.Message, 0, 4)
	if hctx != nil {
		messages = append(messages, hctx.Messages...)
	}
	messages = append(messages, types.Message{Role: "user", Content: taskPrompt(task)})

	body, err := json.Marshal(ollamaChatRequest{
		Model:    g.cfg.Model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "marshal chat request").
			WithProvider(g.Name()).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "build chat request").
			WithProvider(g.Name()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrTransientProvider, "ollama request failed").
			WithProvider(g.Name()).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", mapHTTPError(g.Name(), resp)
	}

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "decode chat response").
			WithProvider(g.Name()).WithRetryable(true).WithCause(err)
	}
	return chat.Message.Content, nil
}

// taskPrompt renders a task as a single prompt string.
func taskPrompt(task *types.Task) string {
	if task == nil {
		return ""
	}
	if task.Input != nil {
		return fmt.Sprintf("%s\n\nInput: %v", task.Description, task.Input)
	}
	return task.Description
}

// mapHTTPError converts an HTTP error response into a structured error.
// Server-side failures and throttling are retryable; client errors are not.
func mapHTTPError(provider string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewError(types.ErrTransientProvider, msg).
			WithProvider(provider).WithRetryable(true)
	case resp.StatusCode >= 500:
		return types.NewError(types.ErrUpstreamError, msg).
			WithProvider(provider).WithRetryable(true)
	default:
		return types.NewError(types.ErrInvalidRequest, msg).
			WithProvider(provider)
	}
}
