// Package cards owns the per-note, per-queue schedule records: creating and
// deleting cards, applying ratings through the scheduling engine, and rolling
// reviews back. Every mutation writes through the store; review events are
// additionally mirrored to the archive, best effort.
package cards

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/revault/internal/archive"
	"github.com/conorfennell/revault/internal/domain"
	"github.com/conorfennell/revault/internal/fsrs"
	"github.com/conorfennell/revault/internal/storage"
)

// Manager is the card manager.
type Manager struct {
	store   *storage.Store
	engine  *fsrs.Engine
	archive *archive.DB // nil disables mirroring
	log     *slog.Logger
	now     func() time.Time
}

// New creates a card manager. arch may be nil.
func New(store *storage.Store, engine *fsrs.Engine, arch *archive.DB, log *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		engine:  engine,
		archive: arch,
		log:     log,
		now:     time.Now,
	}
}

// SetClock overrides the manager's clock. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// CreateCard inserts a New schedule for the (item, queue) pair, creating the
// card if the note has no card yet. Returns ErrConflict when a schedule for
// the pair already exists.
func (m *Manager) CreateCard(itemPath, queueID string) (*domain.Card, error) {
	now := m.now()
	var created *domain.Card
	err := m.store.Update(func(doc *domain.Document) error {
		card := doc.Cards[itemPath]
		if card != nil && card.Schedules[queueID] != nil {
			return fmt.Errorf("create card %s in queue %s: %w", itemPath, queueID, domain.ErrConflict)
		}
		if card == nil {
			card = &domain.Card{
				ItemPath:  itemPath,
				ItemID:    uuid.NewString(),
				Schedules: make(map[string]*domain.Schedule),
				CreatedAt: now,
			}
			doc.Cards[itemPath] = card
		}
		card.Schedules[queueID] = fsrs.NewSchedule(now)
		card.LastModified = now
		created = card.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetContentHash records the note's current content hash on its card,
// used later for orphan matching. No-op when the card does not exist.
func (m *Manager) SetContentHash(itemPath, hash string) {
	m.store.Update(func(doc *domain.Document) error {
		if card := doc.Cards[itemPath]; card != nil {
			card.ContentHash = hash
		}
		return nil
	})
}

// GetCard returns a copy of the card at the path.
func (m *Manager) GetCard(itemPath string) (*domain.Card, error) {
	var card *domain.Card
	m.store.View(func(doc *domain.Document) {
		if c := doc.Cards[itemPath]; c != nil {
			card = c.Clone()
		}
	})
	if card == nil {
		return nil, fmt.Errorf("card %s: %w", itemPath, domain.ErrNotFound)
	}
	return card, nil
}

// DeleteCard removes the whole card with all of its schedules.
func (m *Manager) DeleteCard(itemPath string) error {
	return m.store.Update(func(doc *domain.Document) error {
		if doc.Cards[itemPath] == nil {
			return fmt.Errorf("delete card %s: %w", itemPath, domain.ErrNotFound)
		}
		delete(doc.Cards, itemPath)
		return nil
	})
}

// RenameCard moves the card to a new path, preserving its identity and all
// schedules. A missing card is a silent no-op; an occupied destination is a
// conflict.
func (m *Manager) RenameCard(oldPath, newPath string) error {
	return m.store.Update(func(doc *domain.Document) error {
		card := doc.Cards[oldPath]
		if card == nil {
			return nil
		}
		if doc.Cards[newPath] != nil {
			return fmt.Errorf("rename card %s -> %s: %w", oldPath, newPath, domain.ErrConflict)
		}
		delete(doc.Cards, oldPath)
		card.ItemPath = newPath
		card.LastModified = m.now()
		doc.Cards[newPath] = card
		return nil
	})
}

// RemoveSchedule drops the queue's schedule from the card. Removing the last
// schedule deletes the card (a card cannot exist with zero schedules).
// Returns whether the whole card went away.
func (m *Manager) RemoveSchedule(itemPath, queueID string) (cardDeleted bool, err error) {
	err = m.store.Update(func(doc *domain.Document) error {
		card := doc.Cards[itemPath]
		if card == nil || card.Schedules[queueID] == nil {
			return fmt.Errorf("schedule for %s in queue %s: %w", itemPath, queueID, domain.ErrNotFound)
		}
		delete(card.Schedules, queueID)
		card.LastModified = m.now()
		if len(card.Schedules) == 0 {
			delete(doc.Cards, itemPath)
			cardDeleted = true
		}
		return nil
	})
	return cardDeleted, err
}

// UpdateCardSchedule applies a rating to the (item, queue) schedule through
// the scheduling engine, persists the result, and appends a review log.
func (m *Manager) UpdateCardSchedule(itemPath, queueID string, rating domain.Rating, sessionID string) (*domain.ReviewLog, error) {
	now := m.now()
	var logged *domain.ReviewLog
	err := m.store.Update(func(doc *domain.Document) error {
		card := doc.Cards[itemPath]
		if card == nil || card.Schedules[queueID] == nil {
			return fmt.Errorf("schedule for %s in queue %s: %w", itemPath, queueID, domain.ErrNotFound)
		}
		next, entry, err := m.engine.ApplyRating(card.Schedules[queueID], rating, now)
		if err != nil {
			return err
		}
		entry.ID = uuid.NewString()
		entry.CardPath = itemPath
		entry.QueueID = queueID
		entry.SessionID = sessionID

		card.Schedules[queueID] = next
		card.LastModified = now
		doc.Reviews = append(doc.Reviews, entry)
		logged = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.mirror(func() error { return m.archive.Append(logged) })
	return cloneLog(logged), nil
}

// Rollback restores the schedule to its state before the given review and
// flags the log undone. Only the most recent non-undone log for the
// (item, queue) pair may be rolled back; anything else is rejected.
func (m *Manager) Rollback(itemPath, queueID string, log *domain.ReviewLog) error {
	err := m.store.Update(func(doc *domain.Document) error {
		card := doc.Cards[itemPath]
		if card == nil || card.Schedules[queueID] == nil {
			return fmt.Errorf("schedule for %s in queue %s: %w", itemPath, queueID, domain.ErrNotFound)
		}

		var latest *domain.ReviewLog
		for i := len(doc.Reviews) - 1; i >= 0; i-- {
			entry := doc.Reviews[i]
			if entry.Undone || entry.QueueID != queueID || entry.CardPath != itemPath {
				continue
			}
			latest = entry
			break
		}
		if latest == nil || latest.ID != log.ID {
			return fmt.Errorf("rollback of %s in queue %s: not the most recent review: %w", itemPath, queueID, domain.ErrInvalidState)
		}

		prior, err := m.engine.Rollback(card.Schedules[queueID], latest)
		if err != nil {
			return err
		}
		card.Schedules[queueID] = prior
		card.LastModified = m.now()
		latest.Undone = true
		return nil
	})
	if err != nil {
		return err
	}
	m.mirror(func() error { return m.archive.MarkUndone(log.ID) })
	return nil
}

// GetCardsForQueue returns copies of every card holding a schedule in the
// queue, sorted by path.
func (m *Manager) GetCardsForQueue(queueID string) []*domain.Card {
	var out []*domain.Card
	m.store.View(func(doc *domain.Document) {
		for _, card := range doc.Cards {
			if card.Schedules[queueID] != nil {
				out = append(out, card.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ItemPath < out[j].ItemPath })
	return out
}

// GetDueCards returns copies of the queue's cards whose schedule is due at
// asOf (inclusive: due-now and overdue both qualify), sorted by path.
// Schedules the card holds for other queues are irrelevant here.
func (m *Manager) GetDueCards(queueID string, asOf time.Time) []*domain.Card {
	var out []*domain.Card
	m.store.View(func(doc *domain.Document) {
		for _, card := range doc.Cards {
			if s := card.Schedules[queueID]; s != nil && s.IsDue(asOf) {
				out = append(out, card.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ItemPath < out[j].ItemPath })
	return out
}

// GetSchedulingPreview returns the hypothetical schedule for each of the four
// ratings without mutating any state.
func (m *Manager) GetSchedulingPreview(itemPath, queueID string) (map[domain.Rating]*domain.Schedule, error) {
	var schedule *domain.Schedule
	m.store.View(func(doc *domain.Document) {
		if card := doc.Cards[itemPath]; card != nil && card.Schedules[queueID] != nil {
			schedule = card.Schedules[queueID].Clone()
		}
	})
	if schedule == nil {
		return nil, fmt.Errorf("schedule for %s in queue %s: %w", itemPath, queueID, domain.ErrNotFound)
	}
	return m.engine.PreviewAllRatings(schedule, m.now()), nil
}

// Orphan snapshots the card into a pending orphan record and deletes the
// card, in one document update so no intermediate state is ever persisted.
func (m *Manager) Orphan(itemPath string) (*domain.OrphanRecord, error) {
	now := m.now()
	var record *domain.OrphanRecord
	err := m.store.Update(func(doc *domain.Document) error {
		card := doc.Cards[itemPath]
		if card == nil {
			return fmt.Errorf("orphan card %s: %w", itemPath, domain.ErrNotFound)
		}
		record = &domain.OrphanRecord{
			ID:           uuid.NewString(),
			OriginalPath: itemPath,
			Card:         card.Clone(),
			DetectedAt:   now,
			Status:       domain.OrphanPending,
		}
		doc.Orphans = append(doc.Orphans, record)
		delete(doc.Cards, itemPath)
		snap := *record
		snap.Card = record.Card.Clone()
		record = &snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Retrievability exposes the engine's recall probability for ordering.
func (m *Manager) Retrievability(s *domain.Schedule, now time.Time) float64 {
	return m.engine.Retrievability(s, now)
}

// mirror runs an archive write, logging instead of failing: the archive is a
// statistics mirror, the document already holds the truth.
func (m *Manager) mirror(fn func() error) {
	if m.archive == nil {
		return
	}
	if err := fn(); err != nil {
		m.log.Warn("archive write failed", "error", err)
	}
}

func cloneLog(l *domain.ReviewLog) *domain.ReviewLog {
	out := *l
	if l.Step != nil {
		v := *l.Step
		out.Step = &v
	}
	if l.LastReview != nil {
		v := *l.LastReview
		out.LastReview = &v
	}
	return &out
}
