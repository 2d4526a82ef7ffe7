// Package reconcile keeps the card set consistent with the live vault: an
// event-driven path alongside explicit queue syncs. Note creations add
// schedules, renames follow the card, deletions convert cards into orphan
// records awaiting relink or removal.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/revault/internal/archive"
	"github.com/conorfennell/revault/internal/cards"
	"github.com/conorfennell/revault/internal/domain"
	"github.com/conorfennell/revault/internal/selection"
	"github.com/conorfennell/revault/internal/storage"
	"github.com/conorfennell/revault/internal/vault"
)

// Reconciler reacts to note lifecycle events.
type Reconciler struct {
	store *storage.Store
	cards *cards.Manager
	coll  vault.Collection
	arch  *archive.DB // nil disables archive re-pointing
	log   *slog.Logger
	now   func() time.Time
}

// New creates a reconciler. arch may be nil.
func New(store *storage.Store, cardMgr *cards.Manager, coll vault.Collection, arch *archive.DB, log *slog.Logger) *Reconciler {
	return &Reconciler{
		store: store,
		cards: cardMgr,
		coll:  coll,
		arch:  arch,
		log:   log,
		now:   time.Now,
	}
}

// repointArchive moves archived review history to the relinked path.
// Best effort, same as every other archive write.
func (r *Reconciler) repointArchive(oldPath, newPath string) {
	if r.arch == nil || oldPath == "" {
		return
	}
	if err := r.arch.RepointPath(oldPath, newPath); err != nil {
		r.log.Warn("repointing archived reviews", "from", oldPath, "to", newPath, "error", err)
	}
}

// SetClock overrides the reconciler's clock. Intended for tests.
func (r *Reconciler) SetClock(now func() time.Time) { r.now = now }

// Run consumes watcher events until the context is cancelled or the channel
// closes. Handler errors are logged, never fatal.
func (r *Reconciler) Run(ctx context.Context, events <-chan vault.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			var err error
			switch ev.Type {
			case vault.NoteCreated:
				err = r.HandleCreate(ev.Path)
			case vault.NoteRenamed:
				err = r.HandleRename(ev.OldPath, ev.Path)
			case vault.NoteDeleted:
				err = r.HandleDelete(ev.Path)
			}
			if err != nil {
				r.log.Warn("reconciling vault event", "type", ev.Type.String(), "path", ev.Path, "error", err)
			}
		}
	}
}

// HandleCreate checks the new note against every queue's criteria and adds a
// schedule where it matches and none exists yet. Mirrors the sync add-path
// scoped to one note, so no full vault scan happens per event. A schedule
// already present (bulk sync got there first) is a no-op, not an error.
func (r *Reconciler) HandleCreate(path string) error {
	note, ok, err := r.coll.Note(path)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var matched []string
	r.store.View(func(doc *domain.Document) {
		card := doc.Cards[path]
		for _, q := range doc.Queues {
			if card != nil && card.Schedules[q.ID] != nil {
				continue
			}
			if selection.IsMember(note, q.Criteria, doc.Settings) {
				matched = append(matched, q.ID)
			}
		}
	})

	for _, queueID := range matched {
		if _, err := r.cards.CreateCard(path, queueID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return err
		}
		r.log.Info("note added to queue", "path", path, "queue", queueID)
	}
	if len(matched) > 0 {
		r.cards.SetContentHash(path, note.ContentHash)
	}
	return nil
}

// HandleRename follows the card to its new path, schedules untouched, even
// when the new location no longer matches any queue. Membership is
// re-evaluated at the next sync; dropping data mid-move would lose state on
// transient locations.
func (r *Reconciler) HandleRename(oldPath, newPath string) error {
	if err := r.cards.RenameCard(oldPath, newPath); err != nil {
		return fmt.Errorf("renaming card %s -> %s: %w", oldPath, newPath, err)
	}
	r.log.Info("card followed rename", "from", oldPath, "to", newPath)
	return nil
}

// HandleDelete converts the card at the deleted path into a pending orphan.
// Snapshot and deletion happen in one document update, so the persisted view
// never shows both or neither.
func (r *Reconciler) HandleDelete(path string) error {
	orphan, err := r.cards.Orphan(path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	r.log.Info("card orphaned", "path", path, "orphan", orphan.ID)
	return nil
}
