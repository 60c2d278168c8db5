package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vault-assistant/settings"
)

const claudeBaseURL = "https://api.anthropic.com/v1"

// hostedTimeout bounds every hosted HTTP call client-side so a hung server
// cannot block a question forever.
const hostedTimeout = 120 * time.Second

// ClaudeProvider answers questions through the Anthropic messages API.
type ClaudeProvider struct {
	cfg     settings.Settings
	baseURL string
	client  *http.Client
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewClaudeProvider creates a Claude provider bound to a settings snapshot.
func NewClaudeProvider(cfg settings.Settings) *ClaudeProvider {
	return &ClaudeProvider{
		cfg:     cfg,
		baseURL: claudeBaseURL,
		client:  &http.Client{Timeout: hostedTimeout},
	}
}

// IsConfigured reports whether an API key is set.
func (p *ClaudeProvider) IsConfigured() bool {
	return p.cfg.ClaudeAPIKey != ""
}

// ConfigurationHelp returns setup instructions for the Claude backend.
func (p *ClaudeProvider) ConfigurationHelp() string {
	return strings.TrimSpace(`
## Claude not configured

1. Create an API key at https://console.anthropic.com/settings/keys
2. Open the assistant settings and paste it into **Claude API key**.
3. Optionally pick a model (default: claude-3-5-sonnet-20241022).
`)
}

// AskQuestion performs one POST to the messages endpoint and extracts the
// first content block's text.
func (p *ClaudeProvider) AskQuestion(ctx context.Context, question string, wctx *WorkspaceContext) (string, error) {
	if !p.IsConfigured() {
		return p.ConfigurationHelp(), nil
	}

	prompt := buildPrompt(question, wctx, promptOptions{
		includeVaultPath:   true,
		includeNoteContent: true,
	})

	reqBody, err := json.Marshal(claudeRequest{
		Model:     p.cfg.ClaudeModel,
		MaxTokens: p.cfg.MaxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", newProviderError(settings.ProviderClaude, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", newProviderError(settings.ProviderClaude, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.ClaudeAPIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", newProviderError(settings.ProviderClaude, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", newProviderError(settings.ProviderClaude,
			fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(body)), nil)
	}

	var claudeResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return "", newProviderError(settings.ProviderClaude, "failed to decode response", err)
	}
	if len(claudeResp.Content) == 0 {
		return "", newProviderError(settings.ProviderClaude, "no content in response", errors.New("empty response"))
	}

	return strings.TrimSpace(claudeResp.Content[0].Text), nil
}
