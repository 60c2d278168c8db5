// Package vault abstracts the note vault: whole-file reads and writes plus
// a change-notification stream for note files.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// NoteExtension is the file extension recognized as a note.
const NoteExtension = ".md"

// Vault is the document store the assistant works against. Writes are
// whole-file overwrites; there are no partial patches.
type Vault interface {
	Read(path string) (string, error)
	Write(path, text string) error
	Exists(path string) bool
	// TopFolders lists top-level folder names, capped at max.
	TopFolders(max int) ([]string, error)
	Name() string
	Root() string
}

// OSVault implements Vault over a directory on the real filesystem.
type OSVault struct {
	root string
}

// NewOSVault opens the vault rooted at dir.
func NewOSVault(dir string) (*OSVault, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault path %q is not a directory", abs)
	}
	return &OSVault{root: abs}, nil
}

// Read returns the full text of a note.
func (v *OSVault) Read(path string) (string, error) {
	data, err := os.ReadFile(v.resolve(path))
	if err != nil {
		return "", fmt.Errorf("failed to read note: %w", err)
	}
	return string(data), nil
}

// Write overwrites a note with the given text.
func (v *OSVault) Write(path, text string) error {
	full := v.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create note directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write note: %w", err)
	}
	return nil
}

// Exists reports whether a note or folder exists.
func (v *OSVault) Exists(path string) bool {
	_, err := os.Stat(v.resolve(path))
	return err == nil
}

// TopFolders lists top-level folder names sorted alphabetically, capped at
// max. Hidden folders are skipped.
func (v *OSVault) TopFolders(max int) ([]string, error) {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list vault folders: %w", err)
	}

	var folders []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		folders = append(folders, entry.Name())
	}
	sort.Strings(folders)
	if max > 0 && len(folders) > max {
		folders = folders[:max]
	}
	return folders, nil
}

// Name returns the vault's display name (its directory name).
func (v *OSVault) Name() string {
	return filepath.Base(v.root)
}

// Root returns the vault's absolute path.
func (v *OSVault) Root() string {
	return v.root
}

func (v *OSVault) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(v.root, path)
}
