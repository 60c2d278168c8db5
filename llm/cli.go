package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"vault-assistant/settings"
)

const (
	cliTimeout = 60 * time.Second
	// cliMaxOutput caps captured stdout. Agent CLIs can dump large tool
	// transcripts; 10MB is generous without being unbounded.
	cliMaxOutput = 10 * 1024 * 1024
)

var (
	ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)
	// Leading markers some agent CLIs print before the actual answer.
	cliMarkers = []string{"⏺ ", "● ", "> "}
)

// CLIProvider runs a local agent CLI as a subprocess. The prompt goes
// through a temporary file piped into stdin to avoid shell-escaping and
// argument-length limits.
type CLIProvider struct {
	cfg settings.Settings
}

// NewCLIProvider creates a CLI provider bound to a settings snapshot.
func NewCLIProvider(cfg settings.Settings) *CLIProvider {
	return &CLIProvider{cfg: cfg}
}

// IsConfigured reports whether an executable path is set.
func (p *CLIProvider) IsConfigured() bool {
	return p.cfg.CLIPath != ""
}

// ConfigurationHelp returns setup instructions for the CLI backend.
func (p *CLIProvider) ConfigurationHelp() string {
	return strings.TrimSpace(`
## CLI backend not configured

To answer questions with a local agent CLI:

1. Install an agent CLI (for example the Claude Code CLI or a compatible tool).
2. Open the assistant settings and set **CLI executable path** to the full path of the binary.
3. Make sure the CLI is logged in by running it once in a terminal.

Alternatively switch **AI provider** to one of the hosted backends and set its API key.
`)
}

// AskQuestion writes the prompt to a temp file, pipes it into the CLI in
// non-interactive trust-all-tools mode and returns cleaned stdout.
func (p *CLIProvider) AskQuestion(ctx context.Context, question string, wctx *WorkspaceContext) (string, error) {
	if !p.IsConfigured() {
		return p.ConfigurationHelp(), nil
	}

	prompt := buildPrompt(question, wctx, promptOptions{
		includeVaultPath:   true,
		includeNoteContent: true,
	})

	tmp, err := os.CreateTemp("", "vault-assistant-prompt-*.txt")
	if err != nil {
		return "", newProviderError(settings.ProviderCLI, "failed to create prompt file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(prompt); err != nil {
		tmp.Close()
		return "", newProviderError(settings.ProviderCLI, "failed to write prompt file", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return "", newProviderError(settings.ProviderCLI, "failed to rewind prompt file", err)
	}
	defer tmp.Close()

	cctx, cancel := context.WithTimeout(ctx, cliTimeout)
	defer cancel()

	// Fixed non-interactive invocation: print mode, all tools trusted.
	cmd := exec.CommandContext(cctx, p.cfg.CLIPath, "-p", "--dangerously-skip-permissions")
	cmd.Stdin = tmp

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &cappedWriter{w: &stdout, limit: cliMaxOutput}
	cmd.Stderr = &cappedWriter{w: &stderr, limit: 64 * 1024}

	err = cmd.Run()
	switch {
	case cctx.Err() == context.DeadlineExceeded:
		return "", newProviderError(settings.ProviderCLI,
			fmt.Sprintf("CLI timed out after %s", cliTimeout), cctx.Err())
	case isNotFound(err):
		return "", newProviderError(settings.ProviderCLI,
			fmt.Sprintf("CLI executable not found at %q", p.cfg.CLIPath), err)
	case err != nil:
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "CLI exited with an error"
		}
		return "", newProviderError(settings.ProviderCLI, msg, err)
	}

	return cleanCLIOutput(stdout.String()), nil
}

// isNotFound reports an ENOENT-class failure: the configured executable
// does not exist.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	return errors.Is(err, os.ErrNotExist)
}

// cleanCLIOutput strips ANSI escape sequences and leading CLI markers from
// stdout before it is shown to the user.
func cleanCLIOutput(out string) string {
	out = ansiEscapes.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	for _, marker := range cliMarkers {
		out = strings.TrimPrefix(out, marker)
	}
	return strings.TrimSpace(out)
}

// cappedWriter stops accepting data after limit bytes. The subprocess keeps
// running; excess output is discarded.
type cappedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (c *cappedWriter) Write(p []byte) (int, error) {
	remaining := c.limit - c.w.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		c.w.Write(p[:remaining])
		return len(p), nil
	}
	return c.w.Write(p)
}
