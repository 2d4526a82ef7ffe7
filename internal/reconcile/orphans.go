package reconcile

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/revault/internal/domain"
)

// Match is one relink suggestion for an orphan.
type Match struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// ListOrphans returns copies of orphan records, optionally filtered by status
// ("" means all).
func (r *Reconciler) ListOrphans(status domain.OrphanStatus) []*domain.OrphanRecord {
	var out []*domain.OrphanRecord
	r.store.View(func(doc *domain.Document) {
		for _, o := range doc.Orphans {
			if status != "" && o.Status != status {
				continue
			}
			cp := *o
			cp.Card = o.Card.Clone()
			out = append(out, &cp)
		}
	})
	return out
}

// FindPotentialMatches scores unclaimed notes (no existing card) as relink
// candidates for the orphan and returns the top k by descending score.
// Identical content dominates; filename similarity, shared folder, close
// creation times and modification after the orphan was detected each add a
// smaller amount. Suggestions only, never auto-applied.
func (r *Reconciler) FindPotentialMatches(orphanID string, k int) ([]Match, error) {
	var orphan *domain.OrphanRecord
	claimed := map[string]bool{}
	r.store.View(func(doc *domain.Document) {
		if o := doc.Orphan(orphanID); o != nil {
			cp := *o
			cp.Card = o.Card.Clone()
			orphan = &cp
		}
		for path := range doc.Cards {
			claimed[path] = true
		}
	})
	if orphan == nil {
		return nil, fmt.Errorf("orphan %s: %w", orphanID, domain.ErrNotFound)
	}

	notes, err := r.coll.Notes()
	if err != nil {
		return nil, fmt.Errorf("matching orphan %s: %w", orphanID, err)
	}

	orphanFolder, orphanName := splitName(orphan.OriginalPath)

	var matches []Match
	for _, note := range notes {
		if claimed[note.Path] {
			continue
		}
		score := 0.0
		if orphan.Card.ContentHash != "" && note.ContentHash == orphan.Card.ContentHash {
			score += 1.0
		}
		score += 0.4 * similarity(orphanName, note.Name)
		if note.Folder == orphanFolder {
			score += 0.2
		}
		score += 0.2 * proximity(orphan.Card.CreatedAt, note.CreatedAt, 7*24*time.Hour)
		if note.ModifiedAt.After(orphan.DetectedAt) {
			score += 0.2
		}
		if score > 0 {
			matches = append(matches, Match{Path: note.Path, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Path < matches[j].Path
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// RelinkOrphan recreates the orphan's card at newPath from its snapshot,
// re-points every review log recorded under the original path, and resolves
// the orphan. Fails when the target note does not exist or already has a card.
func (r *Reconciler) RelinkOrphan(orphanID, newPath string) error {
	if !r.coll.Exists(newPath) {
		return fmt.Errorf("relink orphan %s: note %s: %w", orphanID, newPath, domain.ErrNotFound)
	}
	now := r.now()
	var originalPath string
	err := r.store.Update(func(doc *domain.Document) error {
		orphan := doc.Orphan(orphanID)
		if orphan == nil {
			return fmt.Errorf("orphan %s: %w", orphanID, domain.ErrNotFound)
		}
		if orphan.Status != domain.OrphanPending {
			return fmt.Errorf("orphan %s already %s: %w", orphanID, orphan.Status, domain.ErrInvalidState)
		}
		if doc.Cards[newPath] != nil {
			return fmt.Errorf("relink target %s already has a card: %w", newPath, domain.ErrConflict)
		}

		card := orphan.Card.Clone()
		card.ItemPath = newPath
		card.LastModified = now
		doc.Cards[newPath] = card

		for _, log := range doc.Reviews {
			if log.CardPath == orphan.OriginalPath {
				log.CardPath = newPath
			}
		}

		orphan.Status = domain.OrphanResolved
		orphan.Resolution = &domain.OrphanResolution{
			Action:     domain.ResolutionRelink,
			NewPath:    newPath,
			ResolvedAt: now,
		}
		originalPath = orphan.OriginalPath
		return nil
	})
	if err != nil {
		return err
	}

	r.repointArchive(originalPath, newPath)
	r.log.Info("orphan relinked", "orphan", orphanID, "path", newPath)
	return nil
}

// RemoveOrphan discards the orphan's scheduling data. Review logs stay for
// history and statistics.
func (r *Reconciler) RemoveOrphan(orphanID string) error {
	err := r.store.Update(func(doc *domain.Document) error {
		orphan := doc.Orphan(orphanID)
		if orphan == nil {
			return fmt.Errorf("orphan %s: %w", orphanID, domain.ErrNotFound)
		}
		if orphan.Status != domain.OrphanPending {
			return fmt.Errorf("orphan %s already %s: %w", orphanID, orphan.Status, domain.ErrInvalidState)
		}
		orphan.Status = domain.OrphanRemoved
		orphan.Resolution = &domain.OrphanResolution{
			Action:     domain.ResolutionRemove,
			ResolvedAt: r.now(),
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Info("orphan removed", "orphan", orphanID)
	return nil
}

func splitName(p string) (folder, name string) {
	folder = path.Dir(p)
	if folder == "." {
		folder = ""
	}
	name = strings.TrimSuffix(path.Base(p), ".md")
	return folder, name
}

// proximity maps a time distance onto [0,1]: 1 when identical, falling
// linearly to 0 at the window.
func proximity(a, b time.Time, window time.Duration) float64 {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	if d >= window {
		return 0
	}
	return 1 - float64(d)/float64(window)
}
