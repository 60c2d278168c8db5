// Package assistant owns the currently active provider, gathers workspace
// context and dispatches questions to it.
package assistant

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"vault-assistant/db"
	"vault-assistant/llm"
	"vault-assistant/redact"
	"vault-assistant/settings"
	"vault-assistant/vault"
)

// maxContextFolders caps the top-level folder listing in workspace context.
const maxContextFolders = 50

// Service holds exactly one current provider at a time, rebuilt whenever
// the selected provider or a provider-relevant setting changes.
type Service struct {
	settings *settings.Manager
	registry *llm.Registry
	vault    vault.Vault
	stats    *db.StatsStore // optional, best-effort
	scrubber *redact.Scrubber
	log      zerolog.Logger

	mu               sync.Mutex
	provider         llm.Provider
	providerType     string
	lastContinuation json.RawMessage
	activeNote       string

	// dirty is set by settings listeners; the actual refresh happens on
	// the next question so a settings callback never rebuilds providers
	// re-entrantly.
	dirty atomic.Bool

	procMu     sync.Mutex
	processing map[string]struct{}
}

// NewService creates a service. The stats store may be nil.
func NewService(sm *settings.Manager, registry *llm.Registry, v vault.Vault, stats *db.StatsStore, log zerolog.Logger) *Service {
	return &Service{
		settings:   sm,
		registry:   registry,
		vault:      v,
		stats:      stats,
		scrubber:   redact.NewScrubber(),
		log:        log,
		processing: make(map[string]struct{}),
	}
}

// Initialize builds the initial provider and subscribes to the settings
// keys that invalidate it. Listeners only mark the provider dirty.
func (s *Service) Initialize() {
	s.mu.Lock()
	s.refreshProviderLocked()
	s.mu.Unlock()

	s.settings.OnChange(settings.ProviderKeys, func(key string) {
		s.dirty.Store(true)
		s.log.Debug().Str("key", key).Msg("provider marked dirty by settings change")
	})
}

// RefreshProvider rebuilds the provider from current settings.
func (s *Service) RefreshProvider() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshProviderLocked()
}

// ForceRefreshProvider drops the current provider and continuation token,
// then rebuilds from current settings.
func (s *Service) ForceRefreshProvider() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = nil
	s.lastContinuation = nil
	s.refreshProviderLocked()
}

func (s *Service) refreshProviderLocked() {
	st := s.settings.Get()
	if !s.registry.Known(st.AIProvider) {
		s.log.Warn().Str("provider", st.AIProvider).Msg("unknown provider identifier, falling back to cli")
	}
	s.provider = s.registry.New(st.AIProvider, st)
	s.providerType = st.AIProvider
	s.dirty.Store(false)
}

// SetActiveNote records the note the next question's context is built for.
func (s *Service) SetActiveNote(path string) {
	s.mu.Lock()
	s.activeNote = path
	s.mu.Unlock()
}

// CurrentProviderType returns the identifier the live provider was built
// from.
func (s *Service) CurrentProviderType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerType
}

// ProviderConfigured reports whether the active provider has everything it
// needs to make a call.
func (s *Service) ProviderConfigured() bool {
	p, _ := s.ensureProvider()
	return p.IsConfigured()
}

// ConfigurationHelp returns the active provider's setup instructions.
func (s *Service) ConfigurationHelp() string {
	p, _ := s.ensureProvider()
	return p.ConfigurationHelp()
}

// ensureProvider refreshes the provider if none exists, a provider-relevant
// setting changed, or the selected identifier drifted from the live
// instance. It returns the provider to use and the settings it was built
// from.
func (s *Service) ensureProvider() (llm.Provider, settings.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.settings.Get()
	switch {
	case s.provider == nil:
		s.refreshProviderLocked()
	case s.providerType != st.AIProvider:
		// Cross-provider chaining is unsafe; the token belongs to the
		// old backend.
		s.lastContinuation = nil
		s.refreshProviderLocked()
	case s.dirty.Load():
		s.lastContinuation = nil
		s.refreshProviderLocked()
	}
	return s.provider, st
}

// AskQuestion gathers a fresh workspace context and delegates to the
// current provider. Provider errors propagate verbatim; a "not configured"
// provider returns its help text as a normal answer.
func (s *Service) AskQuestion(ctx context.Context, question string, chatHistory []llm.Message) (string, error) {
	provider, st := s.ensureProvider()

	wctx := s.gatherContext(chatHistory)

	if st.RedactSensitiveData {
		question = s.scrubber.Scrub(question)
		wctx.NoteContent = s.scrubber.Scrub(wctx.NoteContent)
	}

	start := time.Now()
	answer, err := provider.AskQuestion(ctx, question, wctx)
	s.recordStat(st, question, answer, time.Since(start), err)
	if err != nil {
		return "", err
	}
	if st.RedactSensitiveData {
		answer = s.scrubber.Restore(answer)
	}

	// Only providers with server-side chaining carry a token forward.
	if c, ok := provider.(llm.Continuer); ok {
		s.mu.Lock()
		s.lastContinuation = c.LastContinuation()
		s.mu.Unlock()
	}

	return answer, nil
}

// gatherContext assembles the per-request workspace context.
func (s *Service) gatherContext(chatHistory []llm.Message) *llm.WorkspaceContext {
	s.mu.Lock()
	activeNote := s.activeNote
	continuation := s.lastContinuation
	s.mu.Unlock()

	wctx := &llm.WorkspaceContext{
		VaultPath:    s.vault.Root(),
		VaultName:    s.vault.Name(),
		Timestamp:    time.Now(),
		History:      chatHistory,
		Continuation: continuation,
	}

	folders, err := s.vault.TopFolders(maxContextFolders)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to list vault folders for context")
	} else {
		wctx.Folders = folders
	}

	if activeNote != "" {
		wctx.NotePath = activeNote
		wctx.NoteName = filepath.Base(activeNote)
		wctx.FolderPath = filepath.Dir(activeNote)
		if content, err := s.vault.Read(activeNote); err == nil {
			wctx.NoteContent = content
			wctx.NoteLength = len(content)
		}
	}

	return wctx
}

func (s *Service) recordStat(st settings.Settings, question, answer string, dur time.Duration, err error) {
	if s.stats == nil {
		return
	}
	stat := db.RequestStat{
		Provider:      st.AIProvider,
		Model:         modelFor(st),
		QuestionChars: len(question),
		ResponseChars: len(answer),
		Duration:      dur,
		Failed:        err != nil,
	}
	if recErr := s.stats.Record(stat); recErr != nil {
		s.log.Warn().Err(recErr).Msg("failed to record usage stats")
	}
}

func modelFor(st settings.Settings) string {
	switch st.AIProvider {
	case settings.ProviderOpenAI:
		return st.OpenAIModel
	case settings.ProviderClaude:
		return st.ClaudeModel
	case settings.ProviderGemini:
		return st.GeminiModel
	case settings.ProviderOllama:
		return st.OllamaModel
	default:
		return ""
	}
}

// LastContinuation returns the stored chaining token, nil if none.
func (s *Service) LastContinuation() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastContinuation
}

// StartProcessing marks a note path as having work in flight. Returns
// false if the path was already reserved.
func (s *Service) StartProcessing(path string) bool {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	if _, ok := s.processing[path]; ok {
		return false
	}
	s.processing[path] = struct{}{}
	return true
}

// StopProcessing releases a note path unconditionally.
func (s *Service) StopProcessing(path string) {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	delete(s.processing, path)
}

// IsProcessing reports whether a note path is reserved.
func (s *Service) IsProcessing(path string) bool {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	_, ok := s.processing[path]
	return ok
}

// TestResult is the outcome of a connection test.
type TestResult struct {
	OK      bool
	Preview string
	Err     string
}

// TestConnection sends one canned question through the full AskQuestion
// path. Errors are reported in the result, never propagated.
func (s *Service) TestConnection(ctx context.Context) TestResult {
	answer, err := s.AskQuestion(ctx, "Reply with a short greeting to confirm the connection works.", nil)
	if err != nil {
		return TestResult{OK: false, Err: err.Error()}
	}
	preview := strings.TrimSpace(answer)
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	return TestResult{OK: true, Preview: preview}
}

// Cleanup clears the processing set and drops the current provider. The
// service needs Initialize or RefreshProvider before further use.
func (s *Service) Cleanup() {
	s.procMu.Lock()
	s.processing = make(map[string]struct{})
	s.procMu.Unlock()

	s.mu.Lock()
	s.provider = nil
	s.providerType = ""
	s.lastContinuation = nil
	s.mu.Unlock()
}
