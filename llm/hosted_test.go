package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-assistant/settings"
)

func TestOllamaProviderGenerate(t *testing.T) {
	var gotModel string
	var gotContext json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model
		gotContext = req.Context

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response": "hi there", "context": [1, 2, 3]}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(settings.Settings{
		OllamaModel:   "llama3.1",
		OllamaBaseURL: server.URL,
	})

	answer, err := p.AskQuestion(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", answer)
	assert.Equal(t, "llama3.1", gotModel)
	assert.Nil(t, gotContext)

	// The chaining token from the response is exposed and sent back on
	// the next call.
	assert.JSONEq(t, "[1,2,3]", string(p.LastContinuation()))

	_, err = p.AskQuestion(context.Background(), "again", &WorkspaceContext{Continuation: p.LastContinuation()})
	require.NoError(t, err)
	assert.JSONEq(t, "[1,2,3]", string(gotContext))
}

func TestOllamaProviderUnconfigured(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	p := NewOllamaProvider(settings.Settings{OllamaBaseURL: server.URL})
	assert.False(t, p.IsConfigured())

	answer, err := p.AskQuestion(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, p.ConfigurationHelp(), answer)
	assert.Equal(t, int32(0), calls.Load(), "unconfigured provider must make zero calls")
}

func TestClaudeProviderParsesContentBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NotEmpty(t, r.Header.Get("anthropic-version"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content": [{"type": "text", "text": "block answer"}]}`))
	}))
	defer server.Close()

	p := NewClaudeProvider(settings.Settings{ClaudeAPIKey: "test-key", ClaudeModel: "claude-3-5-sonnet-20241022", MaxTokens: 100})
	p.baseURL = server.URL

	answer, err := p.AskQuestion(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "block answer", answer)
}

func TestClaudeProviderNon2xxCarriesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer server.Close()

	p := NewClaudeProvider(settings.Settings{ClaudeAPIKey: "test-key"})
	p.baseURL = server.URL

	_, err := p.AskQuestion(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGeminiProviderParsesCandidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, ":generateContent")
		require.Equal(t, "test-key", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "candidate answer"}]}}]}`))
	}))
	defer server.Close()

	p := NewGeminiProvider(settings.Settings{GeminiAPIKey: "test-key", GeminiModel: "gemini-1.5-flash"})
	p.baseURL = server.URL

	answer, err := p.AskQuestion(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "candidate answer", answer)
}

func TestHostedProvidersUnconfiguredReturnHelp(t *testing.T) {
	providers := []Provider{
		NewOpenAIProvider(settings.Settings{}),
		NewClaudeProvider(settings.Settings{}),
		NewGeminiProvider(settings.Settings{}),
	}
	for _, p := range providers {
		assert.False(t, p.IsConfigured())
		answer, err := p.AskQuestion(context.Background(), "hello", nil)
		require.NoError(t, err)
		assert.Equal(t, p.ConfigurationHelp(), answer)
	}
}
