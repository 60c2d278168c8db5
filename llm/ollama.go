package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"vault-assistant/settings"
)

// OllamaProvider answers questions through a local Ollama server. It is the
// one variant that supports server-side conversation chaining: the generate
// API returns an opaque context token that can be passed back on the next
// call.
type OllamaProvider struct {
	cfg    settings.Settings
	client *http.Client

	// lastContext holds the chaining token from the most recent call.
	lastContext json.RawMessage
}

type ollamaGenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Context json.RawMessage `json:"context,omitempty"`
	Options struct {
		NumPredict int `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string          `json:"response"`
	Context  json.RawMessage `json:"context"`
}

// NewOllamaProvider creates an Ollama provider bound to a settings snapshot.
func NewOllamaProvider(cfg settings.Settings) *OllamaProvider {
	if cfg.OllamaBaseURL == "" {
		cfg.OllamaBaseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: hostedTimeout},
	}
}

// IsConfigured reports whether a model name is set. Ollama needs no
// credentials; the local server just has to be running.
func (p *OllamaProvider) IsConfigured() bool {
	return p.cfg.OllamaModel != ""
}

// ConfigurationHelp returns setup instructions for the Ollama backend.
func (p *OllamaProvider) ConfigurationHelp() string {
	return strings.TrimSpace(`
## Ollama not configured

1. Install Ollama from https://ollama.com and start it.
2. Pull a model, for example: ` + "`ollama pull llama3.1`" + `
3. Open the assistant settings and set **Ollama model** to the pulled model name.
`)
}

// AskQuestion performs one non-streaming generate call. The local-model
// prompt omits the vault path.
func (p *OllamaProvider) AskQuestion(ctx context.Context, question string, wctx *WorkspaceContext) (string, error) {
	if !p.IsConfigured() {
		return p.ConfigurationHelp(), nil
	}

	prompt := buildPrompt(question, wctx, promptOptions{
		includeVaultPath:   false,
		includeNoteContent: true,
	})

	req := ollamaGenerateRequest{
		Model:  p.cfg.OllamaModel,
		Prompt: prompt,
		Stream: false,
	}
	req.Options.NumPredict = p.cfg.MaxTokens
	if wctx != nil && len(wctx.Continuation) > 0 {
		req.Context = wctx.Continuation
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", newProviderError(settings.ProviderOllama, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.OllamaBaseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", newProviderError(settings.ProviderOllama, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", newProviderError(settings.ProviderOllama, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", newProviderError(settings.ProviderOllama,
			fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(body)), nil)
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", newProviderError(settings.ProviderOllama, "failed to decode response", err)
	}

	p.lastContext = genResp.Context
	return strings.TrimSpace(genResp.Response), nil
}

// LastContinuation returns the chaining token from the most recent call,
// or nil if none has been made yet.
func (p *OllamaProvider) LastContinuation() json.RawMessage {
	return p.lastContext
}
