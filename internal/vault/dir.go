package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a Collection backed by a directory of markdown files.
type Dir struct {
	root string
}

// NewDir returns a Collection over the given root directory.
func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening vault %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening vault %s: not a directory", root)
	}
	return &Dir{root: root}, nil
}

// Root returns the vault root directory on disk.
func (d *Dir) Root() string { return d.root }

// Notes walks the vault and parses every markdown file. Unreadable or
// unparseable notes abort the walk; the caller decides how fatal that is.
func (d *Dir) Notes() ([]Note, error) {
	var notes []Note
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") && p != d.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(entry.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		note, ok, err := d.Note(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if ok {
			notes = append(notes, note)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning vault %s: %w", d.root, err)
	}
	return notes, nil
}

// Note loads and parses a single note by vault-relative path.
func (d *Dir) Note(notePath string) (Note, bool, error) {
	full := filepath.Join(d.root, filepath.FromSlash(notePath))
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return Note{}, false, nil
	}
	if err != nil {
		return Note{}, false, fmt.Errorf("reading note %s: %w", notePath, err)
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return Note{}, false, fmt.Errorf("reading note %s: %w", notePath, err)
	}
	note, err := ParseNote(notePath, content, info.ModTime())
	if err != nil {
		return Note{}, false, err
	}
	return note, true, nil
}

// Exists reports whether a note file exists at the vault-relative path.
func (d *Dir) Exists(notePath string) bool {
	_, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(notePath)))
	return err == nil
}
