package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExportFormat selects the on-disk format of an exported conversation.
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
)

// FormatForPath derives the export format from a destination file name.
// Markdown for .md, JSON otherwise.
func FormatForPath(path string) ExportFormat {
	if strings.EqualFold(filepath.Ext(path), ".md") {
		return FormatMarkdown
	}
	return FormatJSON
}

// Export writes one conversation to outPath in the given format.
func (s *Store) Export(id, outPath string, format ExportFormat) error {
	conv, err := s.Load(id)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var data []byte
	switch format {
	case FormatMarkdown:
		data = []byte(renderMarkdown(conv))
	case FormatJSON:
		data, err = json.MarshalIndent(conv, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal conversation: %w", err)
		}
	default:
		return fmt.Errorf("unknown export format %q", format)
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

// ExportAll writes the whole collection to outPath as a JSON array.
func (s *Store) ExportAll(outPath string) error {
	s.mu.Lock()
	conversations, err := s.loadAll()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(conversations, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversations: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func renderMarkdown(conv *Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Name)
	fmt.Fprintf(&b, "- Created: %s\n", conv.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Updated: %s\n", conv.UpdatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Messages: %d\n\n", len(conv.Messages))

	for _, msg := range conv.Messages {
		role := "Assistant"
		if msg.Role == "user" {
			role = "User"
		}
		fmt.Fprintf(&b, "## %s (%s)\n\n%s\n\n", role, msg.Timestamp.Format("15:04:05"), msg.Content)
	}
	return b.String()
}
