package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testContext() *WorkspaceContext {
	return &WorkspaceContext{
		NotePath:    "projects/plan.md",
		NoteName:    "plan.md",
		FolderPath:  "projects",
		VaultPath:   "/home/user/vault",
		VaultName:   "vault",
		Folders:     []string{"archive", "projects"},
		NoteContent: "# Plan\n\nDo the thing.",
		NoteLength:  20,
		Timestamp:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	wctx := testContext()
	opts := promptOptions{includeVaultPath: true, includeNoteContent: true}

	a := buildPrompt("what next?", wctx, opts)
	b := buildPrompt("what next?", wctx, opts)
	assert.Equal(t, a, b)
}

func TestBuildPromptContainsSafetyRule(t *testing.T) {
	opts := promptOptions{includeVaultPath: true, includeNoteContent: true}
	prompt := buildPrompt("hello", testContext(), opts)
	assert.Contains(t, prompt, safetyRule)

	// The safety rule survives even with no context at all.
	bare := buildPrompt("hello", nil, opts)
	assert.Contains(t, bare, safetyRule)
	assert.Contains(t, bare, "Question: hello")
}

func TestBuildPromptOmitsVaultPathForLocalModels(t *testing.T) {
	wctx := testContext()
	prompt := buildPrompt("hello", wctx, promptOptions{includeNoteContent: true})
	assert.NotContains(t, prompt, "/home/user/vault")
	assert.Contains(t, prompt, "Vault: vault")
}

func TestBuildPromptIncludesHistoryAndContent(t *testing.T) {
	wctx := testContext()
	wctx.History = []Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	prompt := buildPrompt("follow up", wctx, promptOptions{includeVaultPath: true, includeNoteContent: true})

	assert.Contains(t, prompt, "user: earlier question")
	assert.Contains(t, prompt, "assistant: earlier answer")
	assert.Contains(t, prompt, "Do the thing.")

	// History must come before the question block.
	assert.Less(t, strings.Index(prompt, "earlier question"), strings.Index(prompt, "Question: follow up"))
}
