// Package llm contains the provider abstraction for answering questions
// against a pluggable AI backend: a local CLI tool or one of several hosted
// HTTP chat-completion APIs.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is a single prior chat turn attached to a request.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh id and timestamp.
func NewMessage(role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// WorkspaceContext is assembled fresh for every question and discarded
// afterward. It is never persisted.
type WorkspaceContext struct {
	NotePath   string
	NoteName   string
	FolderPath string
	VaultPath  string
	VaultName  string
	// Folders is a truncated listing of top-level vault folders.
	Folders     []string
	NoteContent string
	NoteLength  int
	Timestamp   time.Time

	// History carries optional prior chat turns.
	History []Message

	// Continuation is an opaque token for providers that support
	// server-side conversation chaining. Nil for everyone else.
	Continuation json.RawMessage
}

// Provider answers one question per call against a settings snapshot bound
// at construction time.
type Provider interface {
	// AskQuestion builds the backend-specific prompt and performs one
	// round trip. When the provider is not configured it returns the
	// configuration help text instead of calling out; that is a normal
	// return, not an error.
	AskQuestion(ctx context.Context, question string, wctx *WorkspaceContext) (string, error)

	// IsConfigured reports whether the settings fields this variant
	// requires are non-empty. Pure check, no side effects.
	IsConfigured() bool

	// ConfigurationHelp returns a static markdown block with setup steps.
	ConfigurationHelp() string
}

// Continuer is an optional capability: providers that chain conversations
// server-side expose the token returned by their last call.
type Continuer interface {
	LastContinuation() json.RawMessage
}

// ProviderError wraps a transport or process failure from one provider.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func newProviderError(provider, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Message: message, Err: err}
}
