// Package storage persists the revault document. The in-memory document is
// authoritative; writes are debounced through a backend that keeps rotated
// backups and preserves corrupt files instead of crashing on them.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/conorfennell/revault/internal/domain"
)

// Backend loads and saves the whole document.
type Backend interface {
	// Load returns the persisted document, nil when nothing has been saved
	// yet, or an error wrapping domain.ErrCorruptedDocument when the stored
	// bytes fail to parse (after preserving them for inspection).
	Load() (*domain.Document, error)
	// Save durably replaces the persisted document.
	Save(doc *domain.Document) error
}

// FileBackend stores the document as a JSON file with atomic writes and a
// bounded set of prior-version backups (.bak.1 is the newest).
type FileBackend struct {
	path       string
	maxBackups int
}

// NewFileBackend creates a backend writing to path, retaining up to
// maxBackups prior snapshots (0 disables backups).
func NewFileBackend(path string, maxBackups int) *FileBackend {
	return &FileBackend{path: path, maxBackups: maxBackups}
}

// Load implements Backend.
func (b *FileBackend) Load() (*domain.Document, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		sidecar := fmt.Sprintf("%s.corrupt-%d", b.path, time.Now().Unix())
		if copyErr := os.WriteFile(sidecar, data, 0o644); copyErr != nil {
			return nil, fmt.Errorf("%w: %v (and preserving failed: %v)", domain.ErrCorruptedDocument, err, copyErr)
		}
		return nil, fmt.Errorf("%w: %v (preserved as %s)", domain.ErrCorruptedDocument, err, sidecar)
	}
	return &doc, nil
}

// Save implements Backend. The previous file becomes backup .bak.1 before the
// new content is moved into place.
func (b *FileBackend) Save(doc *domain.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}

	b.rotateBackups()

	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replacing %s: %w", b.path, err)
	}
	return nil
}

// rotateBackups shifts existing backups down one slot and moves the current
// file into slot 1. Best effort; a failed rotation never blocks the save.
func (b *FileBackend) rotateBackups() {
	if b.maxBackups <= 0 {
		return
	}
	if _, err := os.Stat(b.path); err != nil {
		return
	}
	for i := b.maxBackups - 1; i >= 1; i-- {
		os.Rename(b.backupPath(i), b.backupPath(i+1))
	}
	os.Rename(b.path, b.backupPath(1))
}

func (b *FileBackend) backupPath(n int) string {
	return fmt.Sprintf("%s.bak.%d", b.path, n)
}
