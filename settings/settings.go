// Package settings holds the user-facing plugin settings record and its
// persistence. The record is replaced wholesale on every save; there is no
// partial update on disk.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Provider identifiers. Exactly one is active at a time.
const (
	ProviderCLI    = "cli"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Defaults applied on load and whenever a field is reset by validation.
const (
	DefaultProvider       = ProviderCLI
	DefaultMaxTokens      = 1000
	DefaultTriggerKeyword = "ai"
	DefaultTriggerSuffix  = "??"
	DefaultTheme          = "default"
	DefaultPanelSide      = "right"
)

// Settings is the single configuration record for the assistant. Provider
// fields may be blank; that provider is then unconfigured.
type Settings struct {
	AIProvider string `json:"aiProvider"`

	// CLI provider
	CLIPath string `json:"cliPath"`

	// OpenAI provider
	OpenAIAPIKey  string `json:"openaiApiKey"`
	OpenAIModel   string `json:"openaiModel"`
	OpenAIBaseURL string `json:"openaiBaseUrl"`

	// Claude provider
	ClaudeAPIKey string `json:"claudeApiKey"`
	ClaudeModel  string `json:"claudeModel"`

	// Gemini provider
	GeminiAPIKey string `json:"geminiApiKey"`
	GeminiModel  string `json:"geminiModel"`

	// Ollama provider
	OllamaModel   string `json:"ollamaModel"`
	OllamaBaseURL string `json:"ollamaBaseUrl"`

	// Generic fields
	MaxTokens      int    `json:"maxTokens"`
	TriggerKeyword string `json:"triggerKeyword"`
	TriggerSuffix  string `json:"triggerSuffix"`
	Notifications  bool   `json:"notifications"`
	// RedactSensitiveData scrubs emails, keys and addresses from outgoing
	// prompts and restores them in the answer.
	RedactSensitiveData bool   `json:"redactSensitiveData"`
	Theme               string `json:"theme"`
	PanelSide           string `json:"panelSide"`
}

// Default returns a settings record with every field at its default.
func Default() Settings {
	return Settings{
		AIProvider:     DefaultProvider,
		OpenAIModel:    "gpt-4o-mini",
		OpenAIBaseURL:  "https://api.openai.com/v1",
		ClaudeModel:    "claude-3-5-sonnet-20241022",
		GeminiModel:    "gemini-1.5-flash",
		OllamaModel:    "llama3.1",
		OllamaBaseURL:  "http://localhost:11434",
		MaxTokens:      DefaultMaxTokens,
		TriggerKeyword: DefaultTriggerKeyword,
		TriggerSuffix:  DefaultTriggerSuffix,
		Notifications:  true,
		Theme:          DefaultTheme,
		PanelSide:      DefaultPanelSide,
	}
}

var knownProviders = map[string]bool{
	ProviderCLI:    true,
	ProviderOpenAI: true,
	ProviderClaude: true,
	ProviderGemini: true,
	ProviderOllama: true,
}

// ProviderKeys are the setting keys whose change invalidates the currently
// instantiated provider.
var ProviderKeys = []string{
	"aiProvider",
	"cliPath",
	"openaiApiKey", "openaiModel", "openaiBaseUrl",
	"claudeApiKey", "claudeModel",
	"geminiApiKey", "geminiModel",
	"ollamaModel", "ollamaBaseUrl",
	"maxTokens",
}

// validate resets unknown or out-of-range fields to their defaults.
func validate(s *Settings) {
	if !knownProviders[s.AIProvider] {
		s.AIProvider = DefaultProvider
	}
	if s.MaxTokens < 1 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.TriggerKeyword == "" {
		s.TriggerKeyword = DefaultTriggerKeyword
	}
	if s.TriggerSuffix == "" {
		s.TriggerSuffix = DefaultTriggerSuffix
	}
	if s.PanelSide != "left" && s.PanelSide != "right" {
		s.PanelSide = DefaultPanelSide
	}
	if s.Theme == "" {
		s.Theme = DefaultTheme
	}
}

// Listener receives the key of a setting that changed.
type Listener func(key string)

// Manager loads, saves and mutates the settings record, and notifies
// listeners after a change has been persisted. Listeners must not mutate
// settings re-entrantly; they are expected to mark a flag and act later.
type Manager struct {
	path string

	mu        sync.Mutex
	current   Settings
	listeners map[string][]Listener
}

// NewManager creates a manager persisting to the given file path.
func NewManager(path string) *Manager {
	return &Manager{
		path:      path,
		current:   Default(),
		listeners: make(map[string][]Listener),
	}
}

// Load reads the settings file. A missing file leaves the defaults in
// place; invalid fields are silently reset.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		m.current = Default()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	validate(&s)
	m.current = s
	return nil
}

// Get returns a copy of the current settings. Providers bind this snapshot
// at construction and never see later changes.
func (m *Manager) Get() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnChange registers a listener for each of the given keys.
func (m *Manager) OnChange(keys []string, fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.listeners[k] = append(m.listeners[k], fn)
	}
}

// UpdateSetting mutates one field by key, persists the whole record, then
// notifies listeners registered for that key.
func (m *Manager) UpdateSetting(key string, value interface{}) error {
	m.mu.Lock()

	s := m.current
	if err := applyKey(&s, key, value); err != nil {
		m.mu.Unlock()
		return err
	}
	validate(&s)
	if err := m.persist(s); err != nil {
		m.mu.Unlock()
		return err
	}
	m.current = s
	fns := append([]Listener(nil), m.listeners[key]...)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
	return nil
}

// Save persists the current record as-is. Used at startup to materialize
// the defaults on first run.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persist(m.current)
}

func (m *Manager) persist(s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

func applyKey(s *Settings, key string, value interface{}) error {
	switch key {
	case "aiProvider":
		return setString(&s.AIProvider, key, value)
	case "cliPath":
		return setString(&s.CLIPath, key, value)
	case "openaiApiKey":
		return setString(&s.OpenAIAPIKey, key, value)
	case "openaiModel":
		return setString(&s.OpenAIModel, key, value)
	case "openaiBaseUrl":
		return setString(&s.OpenAIBaseURL, key, value)
	case "claudeApiKey":
		return setString(&s.ClaudeAPIKey, key, value)
	case "claudeModel":
		return setString(&s.ClaudeModel, key, value)
	case "geminiApiKey":
		return setString(&s.GeminiAPIKey, key, value)
	case "geminiModel":
		return setString(&s.GeminiModel, key, value)
	case "ollamaModel":
		return setString(&s.OllamaModel, key, value)
	case "ollamaBaseUrl":
		return setString(&s.OllamaBaseURL, key, value)
	case "maxTokens":
		n, ok := value.(int)
		if !ok {
			return fmt.Errorf("setting %q requires an int value", key)
		}
		s.MaxTokens = n
		return nil
	case "triggerKeyword":
		return setString(&s.TriggerKeyword, key, value)
	case "triggerSuffix":
		return setString(&s.TriggerSuffix, key, value)
	case "redactSensitiveData":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("setting %q requires a bool value", key)
		}
		s.RedactSensitiveData = b
		return nil
	case "notifications":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("setting %q requires a bool value", key)
		}
		s.Notifications = b
		return nil
	case "theme":
		return setString(&s.Theme, key, value)
	case "panelSide":
		return setString(&s.PanelSide, key, value)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
}

func setString(dst *string, key string, value interface{}) error {
	v, ok := value.(string)
	if !ok {
		return fmt.Errorf("setting %q requires a string value", key)
	}
	*dst = v
	return nil
}
