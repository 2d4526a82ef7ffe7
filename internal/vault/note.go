// Package vault provides the live note collection the scheduler observes:
// scanning a directory of markdown notes, parsing their metadata, watching
// for lifecycle events, and optionally sourcing the directory from git.
package vault

import (
	"path"
	"strings"
	"time"
)

// Note is one markdown note's identity and metadata as seen in the vault.
// Paths are vault-relative, slash-separated, including the .md extension.
type Note struct {
	Path        string
	Folder      string // "" for vault root
	Name        string // base name without extension
	Tags        []string
	Frontmatter map[string]any
	ContentHash string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// HasTag reports whether the note carries the exact tag (case-insensitive).
func (n Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Collection is the queryable note set consumed by the scheduling core.
type Collection interface {
	// Notes enumerates every note in the vault.
	Notes() ([]Note, error)
	// Note fetches a single note by path; ok is false when it does not exist.
	Note(path string) (Note, bool, error)
	// Exists reports whether a note exists at the path.
	Exists(path string) bool
}

func splitPath(p string) (folder, name string) {
	folder = path.Dir(p)
	if folder == "." {
		folder = ""
	}
	name = strings.TrimSuffix(path.Base(p), ".md")
	return folder, name
}
