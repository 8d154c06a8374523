package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/localswarm/localswarm/types"
)

func TestOllamaInvokeReturnsAssistantReply(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: types.Message{Role: "assistant", Content: "hello from llama"},
			Done:    true,
		})
	}))
	defer server.Close()

	gw := NewOllamaGateway(OllamaConfig{BaseURL: server.URL, Model: "llama3.2"}, zap.NewNop())
	out, err := gw.Invoke(context.Background(), &types.Task{ID: "t-1", Description: "say hello"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "hello from llama", out)
	assert.Equal(t, "llama3.2", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "say hello", got.Messages[0].Content)
}

func TestOllamaInvokePrependsConversationHistory(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ollamaChatResponse{Message: types.Message{Content: "ok"}})
	}))
	defer server.Close()

	gw := NewOllamaGateway(OllamaConfig{BaseURL: server.URL}, zap.NewNop())
	hctx := &types.HandoffContext{
		ConversationID: "conv-1",
		Messages: []types.Message{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
		},
	}
	_, err := gw.Invoke(context.Background(), &types.Task{Description: "follow up"}, hctx)

	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "earlier question", got.Messages[0].Content)
	assert.Equal(t, "follow up", got.Messages[2].Content)
}

func TestOllamaInvokeServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusInternalServerError)
	}))
	defer server.Close()

	gw := NewOllamaGateway(OllamaConfig{BaseURL: server.URL}, zap.NewNop())
	_, err := gw.Invoke(context.Background(), &types.Task{Description: "x"}, nil)

	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestOllamaInvokeClientErrorIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown model", http.StatusBadRequest)
	}))
	defer server.Close()

	gw := NewOllamaGateway(OllamaConfig{BaseURL: server.URL}, zap.NewNop())
	_, err := gw.Invoke(context.Background(), &types.Task{Description: "x"}, nil)

	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestOllamaInvokeConnectionRefusedIsRetryable(t *testing.T) {
	gw := NewOllamaGateway(OllamaConfig{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	}, zap.NewNop())

	_, err := gw.Invoke(context.Background(), &types.Task{Description: "x"}, nil)

	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, types.ErrTransientProvider, types.GetErrorCode(err))
}

func TestOllamaAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gw := NewOllamaGateway(OllamaConfig{BaseURL: server.URL}, zap.NewNop())
	assert.True(t, gw.Available(context.Background()))

	server.Close()
	assert.False(t, gw.Available(context.Background()))
}

func TestTaskPromptIncludesInput(t *testing.T) {
	assert.Equal(t, "", taskPrompt(nil))
	assert.Equal(t, "summarize", taskPrompt(&types.Task{Description: "summarize"}))

	withInput := taskPrompt(&types.Task{Description: "summarize", Input: map[string]any{"doc": "notes"}})
	assert.Contains(t, withInput, "summarize")
	assert.Contains(t, withInput, "Input:")
}
