// Package selection decides queue membership. It is a set of pure functions
// over a note's metadata, a queue's criteria and the vault-wide exclusion
// rules; it is called on every create event and every bulk sync and must
// stay side-effect free.
package selection

import (
	"fmt"
	"strings"

	"github.com/conorfennell/revault/internal/domain"
	"github.com/conorfennell/revault/internal/vault"
)

// Matches reports whether the note satisfies the inclusion criteria.
func Matches(n vault.Note, c domain.Criteria) bool {
	switch c.Kind {
	case domain.CriteriaFolder:
		for _, folder := range c.Folders {
			if folderContains(folder, n.Path) {
				return true
			}
		}
	case domain.CriteriaTag:
		for _, want := range c.Tags {
			for _, have := range n.Tags {
				if tagMatches(have, want) {
					return true
				}
			}
		}
	}
	return false
}

// Excluded reports whether any exclusion rule fires for the note. Rules are
// independent and combined with OR; a single hit excludes the note no matter
// how many inclusion criteria it satisfies.
func Excluded(n vault.Note, s domain.Settings) bool {
	for _, name := range s.ExcludedNoteNames {
		if n.Name == name {
			return true
		}
	}
	for _, tag := range s.ExcludedTags {
		for _, have := range n.Tags {
			if tagMatches(have, tag) {
				return true
			}
		}
	}
	for _, p := range s.ExcludedProperties {
		if propertyMatches(n, p) {
			return true
		}
	}
	return false
}

// IsMember is the final membership decision: included and not excluded.
func IsMember(n vault.Note, c domain.Criteria, s domain.Settings) bool {
	return Matches(n, c) && !Excluded(n, s)
}

// folderContains reports whether notePath lives under folder (or any
// descendant). The empty folder is the vault root and matches everything.
func folderContains(folder, notePath string) bool {
	if folder == "" {
		return true
	}
	folder = strings.TrimSuffix(folder, "/")
	return notePath == folder || strings.HasPrefix(notePath, folder+"/")
}

// tagMatches reports whether have equals want or is a descendant of it in
// the tag hierarchy. Comparison is case-insensitive.
func tagMatches(have, want string) bool {
	have = strings.ToLower(strings.TrimPrefix(have, "#"))
	want = strings.ToLower(strings.TrimPrefix(want, "#"))
	return have == want || strings.HasPrefix(have, want+"/")
}

func propertyMatches(n vault.Note, p domain.PropertyFilter) bool {
	raw, ok := n.Frontmatter[p.Name]
	if !ok {
		return false
	}
	switch p.Op {
	case domain.OpExists:
		return true
	case domain.OpEquals:
		return fmt.Sprint(raw) == p.Value
	case domain.OpContains:
		return strings.Contains(fmt.Sprint(raw), p.Value)
	default:
		return false
	}
}
