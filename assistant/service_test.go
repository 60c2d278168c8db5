package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-assistant/llm"
	"vault-assistant/settings"
)

// memVault is an in-memory vault for tests.
type memVault struct {
	mu    sync.Mutex
	files map[string]string
}

func newMemVault() *memVault {
	return &memVault{files: make(map[string]string)}
}

func (m *memVault) Read(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[path], nil
}

func (m *memVault) Write(path, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = text
	return nil
}

func (m *memVault) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *memVault) TopFolders(max int) ([]string, error) {
	return []string{"notes", "projects"}, nil
}

func (m *memVault) Name() string { return "test-vault" }
func (m *memVault) Root() string { return "/tmp/test-vault" }

type ollamaCall struct {
	Model   string
	Context json.RawMessage
}

// newOllamaServer fakes the generate endpoint and records every call.
func newOllamaServer(t *testing.T, response string) (*httptest.Server, *[]ollamaCall) {
	t.Helper()
	var calls []ollamaCall
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model   string          `json:"model"`
			Context json.RawMessage `json:"context"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		calls = append(calls, ollamaCall{Model: req.Model, Context: req.Context})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response": "` + response + `", "context": [7, 8]}`))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestService(t *testing.T, baseURL string) (*Service, *settings.Manager) {
	t.Helper()
	sm := settings.NewManager(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, sm.Load())
	require.NoError(t, sm.UpdateSetting("aiProvider", settings.ProviderOllama))
	require.NoError(t, sm.UpdateSetting("ollamaModel", "llama3.1"))
	require.NoError(t, sm.UpdateSetting("ollamaBaseUrl", baseURL))

	svc := NewService(sm, llm.NewRegistry(), newMemVault(), nil, zerolog.Nop())
	svc.Initialize()
	return svc, sm
}

func TestAskQuestionEndToEnd(t *testing.T) {
	server, calls := newOllamaServer(t, "hi there")
	svc, _ := newTestService(t, server.URL)

	answer, err := svc.AskQuestion(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", answer)
	require.Len(t, *calls, 1)
	assert.Equal(t, "llama3.1", (*calls)[0].Model)
}

func TestContinuationTokenCarriedAcrossTurns(t *testing.T) {
	server, calls := newOllamaServer(t, "ok")
	svc, _ := newTestService(t, server.URL)

	_, err := svc.AskQuestion(context.Background(), "first", nil)
	require.NoError(t, err)
	assert.JSONEq(t, "[7,8]", string(svc.LastContinuation()))

	_, err = svc.AskQuestion(context.Background(), "second", nil)
	require.NoError(t, err)
	require.Len(t, *calls, 2)
	assert.Nil(t, (*calls)[0].Context)
	assert.JSONEq(t, "[7,8]", string((*calls)[1].Context))
}

func TestProviderSwitchClearsContinuation(t *testing.T) {
	server, _ := newOllamaServer(t, "ok")
	svc, sm := newTestService(t, server.URL)

	_, err := svc.AskQuestion(context.Background(), "first", nil)
	require.NoError(t, err)
	require.NotNil(t, svc.LastContinuation())

	require.NoError(t, sm.UpdateSetting("aiProvider", settings.ProviderCLI))

	// The next dispatch must rebuild and drop the stale token before any
	// call is made.
	answer, err := svc.AskQuestion(context.Background(), "second", nil)
	require.NoError(t, err)
	assert.Equal(t, settings.ProviderCLI, svc.CurrentProviderType())
	assert.Nil(t, svc.LastContinuation())
	// An unconfigured CLI provider answers with help text, not an error.
	assert.Contains(t, answer, "not configured")
}

func TestProviderRelevantSettingForcesRebuild(t *testing.T) {
	server, calls := newOllamaServer(t, "ok")
	svc, sm := newTestService(t, server.URL)

	_, err := svc.AskQuestion(context.Background(), "first", nil)
	require.NoError(t, err)

	// Same provider identifier, different model: still a rebuild.
	require.NoError(t, sm.UpdateSetting("ollamaModel", "mistral"))

	_, err = svc.AskQuestion(context.Background(), "second", nil)
	require.NoError(t, err)
	require.Len(t, *calls, 2)
	assert.Equal(t, "mistral", (*calls)[1].Model)
}

func TestProcessingSet(t *testing.T) {
	server, _ := newOllamaServer(t, "ok")
	svc, _ := newTestService(t, server.URL)

	path := "notes/today.md"
	assert.False(t, svc.IsProcessing(path))
	assert.True(t, svc.StartProcessing(path))
	assert.False(t, svc.StartProcessing(path), "double reservation must fail")
	assert.True(t, svc.IsProcessing(path))

	svc.StopProcessing(path)
	assert.False(t, svc.IsProcessing(path))
	// Releasing an unreserved path is harmless.
	svc.StopProcessing(path)
}

func TestTestConnection(t *testing.T) {
	server, _ := newOllamaServer(t, "hello from the model")
	svc, _ := newTestService(t, server.URL)

	result := svc.TestConnection(context.Background())
	assert.True(t, result.OK)
	assert.Equal(t, "hello from the model", result.Preview)
}

func TestTestConnectionReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	svc, _ := newTestService(t, server.URL)
	result := svc.TestConnection(context.Background())
	assert.False(t, result.OK)
	assert.Contains(t, result.Err, "500")
}

func TestRedactionScrubsPromptAndRestoresAnswer(t *testing.T) {
	var prompt string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		prompt = req.Prompt
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response": "I will email [EMAIL-1] for you."}`))
	}))
	defer server.Close()

	svc, sm := newTestService(t, server.URL)
	require.NoError(t, sm.UpdateSetting("redactSensitiveData", true))

	answer, err := svc.AskQuestion(context.Background(), "email jane@example.com about the invoice", nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, prompt, "jane@example.com", "the raw address must never leave the machine")
	assert.Contains(t, prompt, "[EMAIL-1]")
	assert.Equal(t, "I will email jane@example.com for you.", answer)
}

func TestCleanupDropsProviderAndProcessing(t *testing.T) {
	server, _ := newOllamaServer(t, "ok")
	svc, _ := newTestService(t, server.URL)

	svc.StartProcessing("a.md")
	svc.Cleanup()
	assert.False(t, svc.IsProcessing("a.md"))
	assert.Empty(t, svc.CurrentProviderType())

	// The service recovers on the next question.
	answer, err := svc.AskQuestion(context.Background(), "again", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
}
