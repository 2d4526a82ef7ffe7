// Package queues owns queue definitions and keeps queue membership
// reconciled against the live vault using the selection evaluator and the
// card manager.
package queues

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/revault/internal/archive"
	"github.com/conorfennell/revault/internal/cards"
	"github.com/conorfennell/revault/internal/domain"
	"github.com/conorfennell/revault/internal/selection"
	"github.com/conorfennell/revault/internal/storage"
	"github.com/conorfennell/revault/internal/vault"
)

// Manager is the queue manager.
type Manager struct {
	store *storage.Store
	cards *cards.Manager
	coll  vault.Collection
	arch  *archive.DB // nil disables load-balanced daily caps
	log   *slog.Logger
	now   func() time.Time
}

// New creates a queue manager. arch may be nil.
func New(store *storage.Store, cardMgr *cards.Manager, coll vault.Collection, arch *archive.DB, log *slog.Logger) *Manager {
	return &Manager{
		store: store,
		cards: cardMgr,
		coll:  coll,
		arch:  arch,
		log:   log,
		now:   time.Now,
	}
}

// SetClock overrides the manager's clock. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// CreateQueue registers a new queue. Display names are unique; a duplicate
// name is rejected rather than auto-suffixed.
func (m *Manager) CreateQueue(name string, criteria domain.Criteria) (*domain.Queue, error) {
	if err := criteria.Validate(); err != nil {
		return nil, fmt.Errorf("create queue %q: %w", name, err)
	}
	queue := &domain.Queue{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: m.now(),
		Criteria:  criteria,
	}
	err := m.store.Update(func(doc *domain.Document) error {
		if doc.QueueByName(name) != nil {
			return fmt.Errorf("queue name %q: %w", name, domain.ErrConflict)
		}
		doc.Queues = append(doc.Queues, queue)
		return nil
	})
	if err != nil {
		return nil, err
	}
	q := *queue
	return &q, nil
}

// GetQueue returns a copy of the queue.
func (m *Manager) GetQueue(id string) (*domain.Queue, error) {
	var out *domain.Queue
	m.store.View(func(doc *domain.Document) {
		if q := doc.Queue(id); q != nil {
			cp := *q
			out = &cp
		}
	})
	if out == nil {
		return nil, fmt.Errorf("queue %s: %w", id, domain.ErrNotFound)
	}
	return out, nil
}

// ListQueues returns copies of all queues.
func (m *Manager) ListQueues() []*domain.Queue {
	var out []*domain.Queue
	m.store.View(func(doc *domain.Document) {
		for _, q := range doc.Queues {
			cp := *q
			out = append(out, &cp)
		}
	})
	return out
}

// Settings returns a copy of the current vault-wide settings.
func (m *Manager) Settings() domain.Settings {
	var s domain.Settings
	m.store.View(func(doc *domain.Document) { s = doc.Settings })
	return s
}

// UpdateQueueCriteria edits the queue's criteria in place and immediately
// resynchronizes its membership.
func (m *Manager) UpdateQueueCriteria(id string, criteria domain.Criteria) (SyncResult, error) {
	if err := criteria.Validate(); err != nil {
		return SyncResult{}, fmt.Errorf("update queue %s: %w", id, err)
	}
	err := m.store.Update(func(doc *domain.Document) error {
		q := doc.Queue(id)
		if q == nil {
			return fmt.Errorf("queue %s: %w", id, domain.ErrNotFound)
		}
		q.Criteria = criteria
		return nil
	})
	if err != nil {
		return SyncResult{}, err
	}
	return m.SyncQueue(id)
}

// DeleteQueue removes the queue definition. With removeScheduleData every
// schedule referencing the queue goes too (cascading card deletion); without
// it the schedules linger until the next sync purges them as unreachable.
func (m *Manager) DeleteQueue(id string, removeScheduleData bool) error {
	var affected []string
	err := m.store.Update(func(doc *domain.Document) error {
		q := doc.Queue(id)
		if q == nil {
			return fmt.Errorf("queue %s: %w", id, domain.ErrNotFound)
		}
		kept := doc.Queues[:0]
		for _, existing := range doc.Queues {
			if existing.ID != id {
				kept = append(kept, existing)
			}
		}
		doc.Queues = kept
		if removeScheduleData {
			for path, card := range doc.Cards {
				if card.Schedules[id] != nil {
					affected = append(affected, path)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, path := range affected {
		if _, err := m.cards.RemoveSchedule(path, id); err != nil {
			m.log.Warn("removing schedule for deleted queue", "path", path, "queue", id, "error", err)
		}
	}
	return nil
}

// GetQueueStats computes live counts from the current schedules and
// refreshes the advisory cache on the queue. Due is inclusive of now;
// overdue means due before the start of today.
func (m *Manager) GetQueueStats(id string) (domain.QueueStats, error) {
	now := m.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var stats domain.QueueStats
	found := false
	err := m.store.Update(func(doc *domain.Document) error {
		q := doc.Queue(id)
		if q == nil {
			return fmt.Errorf("queue %s: %w", id, domain.ErrNotFound)
		}
		found = true
		for _, card := range doc.Cards {
			s := card.Schedules[id]
			if s == nil {
				continue
			}
			stats.Total++
			if s.State == domain.StateNew {
				stats.New++
			}
			if s.IsDue(now) {
				stats.Due++
			}
			if s.Due.Before(startOfDay) {
				stats.Overdue++
			}
		}
		stats.UpdatedAt = now
		cached := stats
		q.Stats = &cached
		return nil
	})
	if err != nil && !found {
		return domain.QueueStats{}, err
	}
	return stats, err
}

// SyncResult reports the outcome of one queue synchronization.
type SyncResult struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged int      `json:"unchanged"`
	Purged    int      `json:"purged"` // schedules dropped because their queue no longer exists
}

// SyncQueue reconciles the queue's membership against the full vault:
// matching notes without a schedule gain one (state New), schedules whose
// note no longer matches are removed, and schedules whose note disappeared
// entirely turn the card into an orphan. Idempotent: a second sync with no
// vault change reports nothing added or removed.
func (m *Manager) SyncQueue(id string) (SyncResult, error) {
	var (
		queue    *domain.Queue
		settings domain.Settings
		known    map[string]bool
		tracked  map[string]*domain.Schedule
	)
	m.store.View(func(doc *domain.Document) {
		if q := doc.Queue(id); q != nil {
			cp := *q
			queue = &cp
		}
		settings = doc.Settings
		known = make(map[string]bool, len(doc.Queues))
		for _, q := range doc.Queues {
			known[q.ID] = true
		}
		tracked = make(map[string]*domain.Schedule)
		for path, card := range doc.Cards {
			if s := card.Schedules[id]; s != nil {
				tracked[path] = s.Clone()
			}
		}
	})
	if queue == nil {
		return SyncResult{}, fmt.Errorf("queue %s: %w", id, domain.ErrNotFound)
	}

	notes, err := m.coll.Notes()
	if err != nil {
		return SyncResult{}, fmt.Errorf("sync queue %s: %w", id, err)
	}
	byPath := make(map[string]vault.Note, len(notes))
	for _, n := range notes {
		byPath[n.Path] = n
	}

	var result SyncResult
	for _, note := range notes {
		if !selection.IsMember(note, queue.Criteria, settings) {
			continue
		}
		if _, has := tracked[note.Path]; has {
			result.Unchanged++
			continue
		}
		if _, err := m.cards.CreateCard(note.Path, id); err != nil {
			// A concurrent watcher create is not a sync failure.
			m.log.Warn("adding note to queue", "path", note.Path, "queue", id, "error", err)
			continue
		}
		m.cards.SetContentHash(note.Path, note.ContentHash)
		result.Added = append(result.Added, note.Path)
	}

	for path := range tracked {
		note, exists := byPath[path]
		if !exists {
			if _, err := m.cards.Orphan(path); err != nil {
				m.log.Warn("orphaning card", "path", path, "error", err)
				continue
			}
			m.log.Info("card orphaned during sync", "path", path, "queue", id)
			result.Removed = append(result.Removed, path)
			continue
		}
		if !selection.IsMember(note, queue.Criteria, settings) {
			if _, err := m.cards.RemoveSchedule(path, id); err != nil {
				m.log.Warn("removing schedule", "path", path, "queue", id, "error", err)
				continue
			}
			result.Removed = append(result.Removed, path)
		}
	}

	result.Purged = m.purgeUnreachable(known)

	if _, err := m.GetQueueStats(id); err != nil {
		m.log.Warn("refreshing queue stats", "queue", id, "error", err)
	}

	m.log.Info("queue synchronized",
		"queue", id,
		"added", len(result.Added),
		"removed", len(result.Removed),
		"unchanged", result.Unchanged,
		"purged", result.Purged,
	)
	return result, nil
}

// purgeUnreachable drops schedules that reference a queue that no longer
// exists. Such schedules are invisible to every due-query, so they are
// reclaimed lazily here instead of leaking forever.
func (m *Manager) purgeUnreachable(known map[string]bool) int {
	purged := 0
	m.store.Update(func(doc *domain.Document) error {
		for path, card := range doc.Cards {
			for queueID := range card.Schedules {
				if known[queueID] {
					continue
				}
				delete(card.Schedules, queueID)
				purged++
			}
			if len(card.Schedules) == 0 {
				delete(doc.Cards, path)
			}
		}
		return nil
	})
	return purged
}

// GetDueNotes returns the queue's due cards ordered by the given strategy.
func (m *Manager) GetDueNotes(id string, strategy domain.OrderStrategy) ([]*domain.Card, error) {
	if _, err := m.GetQueue(id); err != nil {
		return nil, err
	}
	now := m.now()
	due := m.cards.GetDueCards(id, now)
	return m.order(due, id, strategy, now), nil
}
