package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vault-assistant/settings"
)

func TestRegistryBuildsEachVariant(t *testing.T) {
	r := NewRegistry()
	s := settings.Default()

	assert.IsType(t, &CLIProvider{}, r.New(settings.ProviderCLI, s))
	assert.IsType(t, &OpenAIProvider{}, r.New(settings.ProviderOpenAI, s))
	assert.IsType(t, &ClaudeProvider{}, r.New(settings.ProviderClaude, s))
	assert.IsType(t, &GeminiProvider{}, r.New(settings.ProviderGemini, s))
	assert.IsType(t, &OllamaProvider{}, r.New(settings.ProviderOllama, s))
}

func TestRegistryUnknownIDFallsBackToCLI(t *testing.T) {
	r := NewRegistry()
	p := r.New("no-such-provider", settings.Default())
	assert.IsType(t, &CLIProvider{}, p)
	assert.False(t, r.Known("no-such-provider"))
}

func TestRegistryDisplayNames(t *testing.T) {
	names := NewRegistry().DisplayNames()
	assert.Equal(t, "Local CLI", names[settings.ProviderCLI])
	assert.Equal(t, "OpenAI", names[settings.ProviderOpenAI])
	assert.Equal(t, "Claude", names[settings.ProviderClaude])
	assert.Equal(t, "Gemini", names[settings.ProviderGemini])
	assert.Equal(t, "Ollama", names[settings.ProviderOllama])
}

func TestOnlyOllamaSupportsContinuation(t *testing.T) {
	r := NewRegistry()
	s := settings.Default()

	for _, id := range []string{settings.ProviderCLI, settings.ProviderOpenAI, settings.ProviderClaude, settings.ProviderGemini} {
		_, ok := r.New(id, s).(Continuer)
		assert.False(t, ok, "provider %s should not chain conversations", id)
	}
	_, ok := r.New(settings.ProviderOllama, s).(Continuer)
	assert.True(t, ok)
}
