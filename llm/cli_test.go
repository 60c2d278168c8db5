package llm

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-assistant/settings"
)

func TestCLIProviderUnconfiguredReturnsHelp(t *testing.T) {
	p := NewCLIProvider(settings.Settings{})
	assert.False(t, p.IsConfigured())

	answer, err := p.AskQuestion(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, p.ConfigurationHelp(), answer)
}

func TestCLIProviderMissingExecutable(t *testing.T) {
	cfg := settings.Settings{CLIPath: "/nonexistent/path/to/agent-cli"}
	p := NewCLIProvider(cfg)
	require.True(t, p.IsConfigured())

	start := time.Now()
	_, err := p.AskQuestion(context.Background(), "hello", nil)
	require.Error(t, err)

	// ENOENT-class failure: immediate, names the configured path.
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, err.Error(), "/nonexistent/path/to/agent-cli")
	assert.Contains(t, err.Error(), "not found")

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, settings.ProviderCLI, perr.Provider)
}

func TestCLIProviderRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	// A stand-in CLI that echoes the piped prompt back, which is enough
	// to verify the stdin plumbing and output cleanup.
	script := filepath.Join(t.TempDir(), "fake-cli")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat -\n"), 0755))

	p := NewCLIProvider(settings.Settings{CLIPath: script})
	answer, err := p.AskQuestion(context.Background(), "what is up?", testContext())
	require.NoError(t, err)
	assert.Contains(t, answer, "Question: what is up?")
	assert.Contains(t, answer, safetyRule)
}

func TestCleanCLIOutput(t *testing.T) {
	raw := "\x1b[32m⏺ Here is the answer\x1b[0m\n"
	assert.Equal(t, "Here is the answer", cleanCLIOutput(raw))

	assert.Equal(t, "plain", cleanCLIOutput("plain"))
	assert.Equal(t, "quoted", cleanCLIOutput("> quoted"))
}

func TestCappedWriterStopsAtLimit(t *testing.T) {
	w := &cappedWriter{w: &bytes.Buffer{}, limit: 4}
	n, err := w.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd", w.w.String())

	// Further writes are swallowed without error.
	_, err = w.Write([]byte("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", w.w.String())
}
