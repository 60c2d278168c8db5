package llm

import (
	"vault-assistant/settings"
)

// Factory builds one provider variant from a settings snapshot.
type Factory func(settings.Settings) Provider

// Meta is static per-provider information for UI callers.
type Meta struct {
	DisplayName  string
	DefaultModel string
	SetupURL     string
}

// Registry maps provider identifiers to constructors and metadata. It is
// built once at startup and passed to whoever needs it; there is no global
// instance.
type Registry struct {
	factories map[string]Factory
	meta      map[string]Meta
}

// NewRegistry returns the registry with all built-in variants.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]Factory{
			settings.ProviderCLI:    func(s settings.Settings) Provider { return NewCLIProvider(s) },
			settings.ProviderOpenAI: func(s settings.Settings) Provider { return NewOpenAIProvider(s) },
			settings.ProviderClaude: func(s settings.Settings) Provider { return NewClaudeProvider(s) },
			settings.ProviderGemini: func(s settings.Settings) Provider { return NewGeminiProvider(s) },
			settings.ProviderOllama: func(s settings.Settings) Provider { return NewOllamaProvider(s) },
		},
		meta: map[string]Meta{
			settings.ProviderCLI:    {DisplayName: "Local CLI", SetupURL: "https://docs.anthropic.com/en/docs/claude-code"},
			settings.ProviderOpenAI: {DisplayName: "OpenAI", DefaultModel: "gpt-4o-mini", SetupURL: "https://platform.openai.com/api-keys"},
			settings.ProviderClaude: {DisplayName: "Claude", DefaultModel: "claude-3-5-sonnet-20241022", SetupURL: "https://console.anthropic.com/settings/keys"},
			settings.ProviderGemini: {DisplayName: "Gemini", DefaultModel: "gemini-1.5-flash", SetupURL: "https://aistudio.google.com/app/apikey"},
			settings.ProviderOllama: {DisplayName: "Ollama", DefaultModel: "llama3.1", SetupURL: "https://ollama.com"},
		},
	}
}

// Register adds or replaces a variant. Mainly useful for tests.
func (r *Registry) Register(id string, factory Factory, meta Meta) {
	r.factories[id] = factory
	r.meta[id] = meta
}

// New builds the provider for the given identifier. Unknown identifiers
// fall back to the CLI variant.
func (r *Registry) New(id string, s settings.Settings) Provider {
	if factory, ok := r.factories[id]; ok {
		return factory(s)
	}
	return NewCLIProvider(s)
}

// Known reports whether the identifier maps to a registered variant.
func (r *Registry) Known(id string) bool {
	_, ok := r.factories[id]
	return ok
}

// Meta returns the metadata for a provider identifier.
func (r *Registry) Meta(id string) Meta {
	return r.meta[id]
}

// DisplayNames returns the id to display-name table used by the UI layer.
func (r *Registry) DisplayNames() map[string]string {
	names := make(map[string]string, len(r.meta))
	for id, m := range r.meta {
		names[id] = m.DisplayName
	}
	return names
}
