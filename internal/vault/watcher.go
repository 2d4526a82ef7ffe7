package vault

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType classifies a note lifecycle event.
type EventType int

const (
	NoteCreated EventType = iota + 1
	NoteRenamed
	NoteDeleted
)

func (t EventType) String() string {
	switch t {
	case NoteCreated:
		return "created"
	case NoteRenamed:
		return "renamed"
	case NoteDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is one note lifecycle change. OldPath is set only for renames.
type Event struct {
	Type    EventType
	Path    string
	OldPath string
}

// renameWindow is how long a RENAME waits for its matching CREATE before
// being reported as a deletion.
const renameWindow = 500 * time.Millisecond

// Watcher turns raw fsnotify events on a vault directory into note lifecycle
// events. The OS reports a move as RENAME(old) then CREATE(new); the watcher
// pairs the two within a short window, preferring a matching base name, and
// downgrades unpaired renames to deletions.
type Watcher struct {
	dir     *Dir
	fsw     *fsnotify.Watcher
	events  chan Event
	log     *slog.Logger
	pending []pendingRename
}

type pendingRename struct {
	path string
	at   time.Time
}

// NewWatcher creates a watcher over the vault directory and all of its
// subdirectories.
func NewWatcher(dir *Dir, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		dir:    dir,
		fsw:    fsw,
		events: make(chan Event, 64),
		log:    log,
	}
	if err := w.watchRecursive(dir.Root()); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events is the stream of note lifecycle events. Closed when Run returns.
func (w *Watcher) Events() <-chan Event { return w.events }

// Run pumps fsnotify events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)
	defer w.fsw.Close()

	ticker := time.NewTicker(renameWindow / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flushPending(time.Now().Add(renameWindow))
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		case now := <-ticker.C:
			w.flushPending(now)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.dir.Root(), ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.watchRecursive(ev.Name); err != nil {
				w.log.Warn("watching new directory", "path", rel, "error", err)
			}
			return
		}
		if !isMarkdown(rel) {
			return
		}
		if old, ok := w.matchRename(rel); ok {
			w.events <- Event{Type: NoteRenamed, Path: rel, OldPath: old}
			return
		}
		w.events <- Event{Type: NoteCreated, Path: rel}

	case ev.Op.Has(fsnotify.Rename):
		if !isMarkdown(rel) {
			return
		}
		w.pending = append(w.pending, pendingRename{path: rel, at: time.Now()})

	case ev.Op.Has(fsnotify.Remove):
		if !isMarkdown(rel) {
			return
		}
		w.events <- Event{Type: NoteDeleted, Path: rel}
	}
}

// matchRename claims a pending rename for the newly created path. A pending
// entry with the same base name wins; otherwise the oldest entry is taken.
func (w *Watcher) matchRename(newPath string) (string, bool) {
	if len(w.pending) == 0 {
		return "", false
	}
	idx := 0
	for i, p := range w.pending {
		if path.Base(p.path) == path.Base(newPath) {
			idx = i
			break
		}
	}
	old := w.pending[idx].path
	w.pending = append(w.pending[:idx], w.pending[idx+1:]...)
	return old, true
}

// flushPending reports renames that never found their CREATE as deletions.
func (w *Watcher) flushPending(now time.Time) {
	var keep []pendingRename
	for _, p := range w.pending {
		if now.Sub(p.at) >= renameWindow {
			w.events <- Event{Type: NoteDeleted, Path: p.path}
		} else {
			keep = append(keep, p)
		}
	}
	w.pending = keep
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") && p != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

func isMarkdown(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), ".md")
}
