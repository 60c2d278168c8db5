package llm

import (
	"fmt"
	"strings"
)

// safetyRule is included in every prompt, for every variant. The assistant
// must never perform destructive file operations without explicit user
// confirmation.
const safetyRule = "Safety rule: never create, modify, delete or move files in the vault " +
	"unless the user explicitly confirms the operation first."

// promptOptions controls which workspace facts a variant includes.
type promptOptions struct {
	// includeVaultPath is false for local-model variants whose prompts
	// omit the absolute vault location.
	includeVaultPath bool
	// includeNoteContent appends the active note's full text.
	includeNoteContent bool
}

// buildPrompt assembles the instruction block sent to a backend. It is a
// pure function of its inputs: same question and context, same prompt.
func buildPrompt(question string, wctx *WorkspaceContext, opts promptOptions) string {
	var b strings.Builder

	b.WriteString("You are an AI assistant embedded in the user's note vault. ")
	b.WriteString("Answer concisely in markdown.\n\n")

	if wctx != nil {
		b.WriteString("Workspace:\n")
		if wctx.VaultName != "" {
			if opts.includeVaultPath && wctx.VaultPath != "" {
				fmt.Fprintf(&b, "- Vault: %s (%s)\n", wctx.VaultName, wctx.VaultPath)
			} else {
				fmt.Fprintf(&b, "- Vault: %s\n", wctx.VaultName)
			}
		}
		if wctx.NotePath != "" {
			fmt.Fprintf(&b, "- Active note: %s\n", wctx.NotePath)
		}
		if wctx.FolderPath != "" {
			fmt.Fprintf(&b, "- Folder: %s\n", wctx.FolderPath)
		}
		if len(wctx.Folders) > 0 {
			fmt.Fprintf(&b, "- Top-level folders: %s\n", strings.Join(wctx.Folders, ", "))
		}
		if wctx.NoteLength > 0 {
			fmt.Fprintf(&b, "- Active note length: %d characters\n", wctx.NoteLength)
		}
		b.WriteString("\n")
	}

	b.WriteString(safetyRule)
	b.WriteString("\n\n")

	if wctx != nil && len(wctx.History) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, msg := range wctx.History {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\n", question)

	if opts.includeNoteContent && wctx != nil && wctx.NoteContent != "" {
		b.WriteString("\nActive note content:\n")
		b.WriteString(wctx.NoteContent)
		b.WriteString("\n")
	}

	return b.String()
}
