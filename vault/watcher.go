package vault

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Event is a modify notification for one note file.
type Event struct {
	Path string
}

// Watcher emits an Event whenever a note file in the vault is written or
// created. Events are not debounced or coalesced; consumers guard against
// their own writes re-triggering them.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	events  chan Event
	log     zerolog.Logger
}

// NewWatcher creates a recursive watcher over the vault root.
func NewWatcher(root string, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:    root,
		watcher: fsw,
		events:  make(chan Event, 64),
		log:     log,
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events returns the note-modify event stream.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run processes filesystem events until the context is cancelled. It closes
// the event channel on exit.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// New directories need to be added to the watch list.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.log.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
					}
					continue
				}
			}

			if !strings.EqualFold(filepath.Ext(event.Name), NoteExtension) {
				continue
			}

			select {
			case w.events <- Event{Path: event.Name}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// addRecursive adds dir and every subdirectory to the watch list, skipping
// hidden directories.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if !info.IsDir() {
			return nil
		}
		if name := filepath.Base(path); strings.HasPrefix(name, ".") && path != dir {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.log.Warn().Err(err).Str("dir", path).Msg("failed to watch directory")
		}
		return nil
	})
}
