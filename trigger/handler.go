// Package trigger watches note text for inline question triggers and runs
// the answer workflow against the assistant service.
package trigger

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"vault-assistant/assistant"
	"vault-assistant/llm"
	"vault-assistant/settings"
	"vault-assistant/vault"
)

const (
	thinkingMarker = "> *Thinking...*"
	answerHeader   = "---\n**AI Assistant**\n\n"
	answerFooter   = "\n\n---\n"

	// WorkflowFile is the sibling instruction document the workflow
	// trigger looks for next to the active note.
	WorkflowFile = "ai-workflow.md"

	workflowMarker = "*Started workflow...*"
)

// answeredMark follows a trigger occurrence that has already been handled.
const answeredMark = "\n\n> "

// Notifier surfaces a user-visible notification.
type Notifier func(msg string)

// Handler drives the inline answer state machine for note files.
type Handler struct {
	vault    vault.Vault
	service  *assistant.Service
	settings *settings.Manager
	registry *llm.Registry
	notify   Notifier
	log      zerolog.Logger

	// processing is this handler's own per-path re-entrancy guard,
	// independent of the service's set. The "Thinking..." write triggers
	// another modify event that must be rejected here.
	mu         sync.Mutex
	processing map[string]struct{}
}

// NewHandler creates a handler. notify may be nil.
func NewHandler(v vault.Vault, svc *assistant.Service, sm *settings.Manager, registry *llm.Registry, notify Notifier, log zerolog.Logger) *Handler {
	if notify == nil {
		notify = func(string) {}
	}
	return &Handler{
		vault:      v,
		service:    svc,
		settings:   sm,
		registry:   registry,
		notify:     notify,
		log:        log,
		processing: make(map[string]struct{}),
	}
}

// occurrence is one trigger match inside a document.
type occurrence struct {
	start, end int
	question   string
}

// triggerPattern compiles the user-configured trigger into a regexp. Both
// keyword and suffix are literal user strings and must be escaped. The
// keyword only counts at the start of a line or after whitespace so that
// words merely containing it do not trigger.
func triggerPattern(keyword, suffix string) (*regexp.Regexp, error) {
	expr := fmt.Sprintf(`(?m)(^|[ \t])(%s[ \t]+(.+?)%s)`, regexp.QuoteMeta(keyword), regexp.QuoteMeta(suffix))
	return regexp.Compile(expr)
}

// firstUnanswered scans the whole document and returns the first trigger
// occurrence not already followed by the answered marker, or nil.
func firstUnanswered(doc string, re *regexp.Regexp) *occurrence {
	for _, m := range re.FindAllStringSubmatchIndex(doc, -1) {
		// Group 2 is the trigger text itself, group 3 the question.
		start, end := m[4], m[5]
		if strings.HasPrefix(doc[end:], answeredMark) {
			continue
		}
		return &occurrence{
			start:    start,
			end:      end,
			question: strings.TrimSpace(doc[m[6]:m[7]]),
		}
	}
	return nil
}

// HandleModify processes one document-modify event. At most one trigger
// occurrence is answered per event; overlapping events for the same path
// are ignored while a question is in flight.
func (h *Handler) HandleModify(ctx context.Context, path string) error {
	if !strings.EqualFold(filepath.Ext(path), vault.NoteExtension) {
		return nil
	}
	if h.isProcessing(path) {
		return nil
	}

	doc, err := h.vault.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read note: %w", err)
	}

	st := h.settings.Get()
	re, err := triggerPattern(st.TriggerKeyword, st.TriggerSuffix)
	if err != nil {
		return fmt.Errorf("invalid trigger pattern: %w", err)
	}

	occ := firstUnanswered(doc, re)
	if occ == nil {
		return nil
	}

	if !h.service.ProviderConfigured() {
		warning := "\n\n> ⚠️ The AI provider is not configured. Open the assistant settings and finish the setup before asking questions.\n"
		if !strings.Contains(doc, strings.TrimSpace(warning)) {
			if err := h.vault.Write(path, doc+warning); err != nil {
				return fmt.Errorf("failed to append configuration warning: %w", err)
			}
		}
		return nil
	}

	if !h.acquire(path) {
		return nil
	}
	defer h.release(path)

	return h.answer(ctx, path, doc, occ)
}

// answer runs the question -> thinking -> answered/errored transitions for
// one occurrence. The caller holds the path reservation.
func (h *Handler) answer(ctx context.Context, path, doc string, occ *occurrence) error {
	// Thinking state: rewrite the trigger in place and persist.
	thinking := doc[:occ.start] + occ.question + "\n\n" + thinkingMarker + doc[occ.end:]
	if err := h.vault.Write(path, thinking); err != nil {
		return fmt.Errorf("failed to write thinking marker: %w", err)
	}

	h.service.SetActiveNote(path)
	answer, askErr := h.service.AskQuestion(ctx, occ.question, nil)

	// The thinking write already landed; the document must be re-read,
	// not patched from the pre-call copy.
	current, err := h.vault.Read(path)
	if err != nil {
		return fmt.Errorf("failed to re-read note: %w", err)
	}

	var replacement string
	if askErr != nil {
		replacement = fmt.Sprintf("> *Error: %s*", askErr.Error())
		h.notify("AI question failed: " + askErr.Error())
		h.log.Error().Err(askErr).Str("note", path).Msg("inline question failed")
	} else {
		replacement = answerHeader + strings.TrimSpace(answer) + answerFooter
	}

	updated := strings.ReplaceAll(current, thinkingMarker, replacement)
	if err := h.vault.Write(path, updated); err != nil {
		return fmt.Errorf("failed to write answer: %w", err)
	}

	if askErr != nil {
		return askErr
	}
	return nil
}

// RunWorkflow runs the hotkey-invoked workflow for the active note. It
// looks for a sibling instruction document and sends its content together
// with the note through a freshly built provider.
func (h *Handler) RunWorkflow(ctx context.Context, activePath string) error {
	doc, err := h.vault.Read(activePath)
	if err != nil {
		return fmt.Errorf("failed to read note: %w", err)
	}

	workflowPath := filepath.Join(filepath.Dir(activePath), WorkflowFile)
	if !h.vault.Exists(workflowPath) {
		help := fmt.Sprintf("\n\n> To run a workflow, create a `%s` file in this folder with instructions, "+
			"or ask an inline question with `%s <question>%s`.\n",
			WorkflowFile, h.settings.Get().TriggerKeyword, h.settings.Get().TriggerSuffix)
		if err := h.vault.Write(activePath, doc+help); err != nil {
			return fmt.Errorf("failed to append workflow help: %w", err)
		}
		return nil
	}

	instructions, err := h.vault.Read(workflowPath)
	if err != nil {
		return fmt.Errorf("failed to read workflow file: %w", err)
	}

	if !h.acquire(activePath) {
		return nil
	}
	defer h.release(activePath)

	// Status marker written before the call, removed afterward.
	if err := h.vault.Write(activePath, doc+"\n\n"+workflowMarker+"\n"); err != nil {
		return fmt.Errorf("failed to write workflow marker: %w", err)
	}

	prompt := fmt.Sprintf("%s\n\nWorkflow instructions:\n%s\n\nNote content:\n%s",
		workflowPreamble, instructions, doc)

	// The workflow bypasses the service's context assembly and goes
	// through a fresh provider bound to current settings.
	st := h.settings.Get()
	provider := h.registry.New(st.AIProvider, st)
	answer, askErr := provider.AskQuestion(ctx, prompt, nil)

	current, err := h.vault.Read(activePath)
	if err != nil {
		return fmt.Errorf("failed to re-read note: %w", err)
	}
	current = strings.ReplaceAll(current, workflowMarker+"\n", "")
	current = strings.TrimRight(current, "\n") + "\n"

	if askErr != nil {
		h.notify("Workflow failed: " + askErr.Error())
		if err := h.vault.Write(activePath, current); err != nil {
			return fmt.Errorf("failed to restore note: %w", err)
		}
		return askErr
	}

	updated := current + "\n" + answerHeader + strings.TrimSpace(answer) + answerFooter
	if err := h.vault.Write(activePath, updated); err != nil {
		return fmt.Errorf("failed to write workflow answer: %w", err)
	}
	return nil
}

// workflowPreamble repeats the safety rule for workflow prompts, which do
// not go through the regular prompt builder.
const workflowPreamble = "You are an AI assistant embedded in the user's note vault. " +
	"Follow the workflow instructions below against the note content. " +
	"Safety rule: never create, modify, delete or move files in the vault " +
	"unless the user explicitly confirms the operation first."

// IsProcessing reports whether the handler has work in flight for a path.
func (h *Handler) IsProcessing(path string) bool {
	return h.isProcessing(path)
}

func (h *Handler) isProcessing(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.processing[path]
	return ok
}

func (h *Handler) acquire(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.processing[path]; ok {
		return false
	}
	h.processing[path] = struct{}{}
	return true
}

func (h *Handler) release(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.processing, path)
}
