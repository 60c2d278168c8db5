package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"vault-assistant/settings"
)

// OpenAIProvider answers questions through the OpenAI chat completion API.
type OpenAIProvider struct {
	cfg    settings.Settings
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider bound to a settings snapshot.
func NewOpenAIProvider(cfg settings.Settings) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// IsConfigured reports whether an API key is set.
func (p *OpenAIProvider) IsConfigured() bool {
	return p.cfg.OpenAIAPIKey != ""
}

// ConfigurationHelp returns setup instructions for the OpenAI backend.
func (p *OpenAIProvider) ConfigurationHelp() string {
	return strings.TrimSpace(`
## OpenAI not configured

1. Create an API key at https://platform.openai.com/api-keys
2. Open the assistant settings and paste it into **OpenAI API key**.
3. Optionally pick a model (default: gpt-4o-mini).
`)
}

// AskQuestion performs one non-streaming chat completion round trip.
func (p *OpenAIProvider) AskQuestion(ctx context.Context, question string, wctx *WorkspaceContext) (string, error) {
	if !p.IsConfigured() {
		return p.ConfigurationHelp(), nil
	}

	prompt := buildPrompt(question, wctx, promptOptions{
		includeVaultPath:   true,
		includeNoteContent: true,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.cfg.OpenAIModel,
		MaxTokens: p.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", newProviderError(settings.ProviderOpenAI, "chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", newProviderError(settings.ProviderOpenAI, "no choices in response", errors.New("empty response"))
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
