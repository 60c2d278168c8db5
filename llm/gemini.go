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

	"vault-assistant/settings"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider answers questions through the Google Gemini API.
type GeminiProvider struct {
	cfg     settings.Settings
	baseURL string
	client  *http.Client
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// NewGeminiProvider creates a Gemini provider bound to a settings snapshot.
func NewGeminiProvider(cfg settings.Settings) *GeminiProvider {
	return &GeminiProvider{
		cfg:     cfg,
		baseURL: geminiBaseURL,
		client:  &http.Client{Timeout: hostedTimeout},
	}
}

// IsConfigured reports whether an API key is set.
func (p *GeminiProvider) IsConfigured() bool {
	return p.cfg.GeminiAPIKey != ""
}

// ConfigurationHelp returns setup instructions for the Gemini backend.
func (p *GeminiProvider) ConfigurationHelp() string {
	return strings.TrimSpace(`
## Gemini not configured

1. Create an API key at https://aistudio.google.com/app/apikey
2. Open the assistant settings and paste it into **Gemini API key**.
3. Optionally pick a model (default: gemini-1.5-flash).
`)
}

// AskQuestion performs one generateContent call and extracts the first
// candidate's first part.
func (p *GeminiProvider) AskQuestion(ctx context.Context, question string, wctx *WorkspaceContext) (string, error) {
	if !p.IsConfigured() {
		return p.ConfigurationHelp(), nil
	}

	prompt := buildPrompt(question, wctx, promptOptions{
		includeVaultPath:   true,
		includeNoteContent: true,
	})

	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}
	req.GenerationConfig.MaxOutputTokens = p.cfg.MaxTokens

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", newProviderError(settings.ProviderGemini, "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.cfg.GeminiModel, p.cfg.GeminiAPIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", newProviderError(settings.ProviderGemini, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", newProviderError(settings.ProviderGemini, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", newProviderError(settings.ProviderGemini,
			fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(body)), nil)
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", newProviderError(settings.ProviderGemini, "failed to decode response", err)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", newProviderError(settings.ProviderGemini, "no candidates in response", errors.New("empty response"))
	}

	return strings.TrimSpace(geminiResp.Candidates[0].Content.Parts[0].Text), nil
}
