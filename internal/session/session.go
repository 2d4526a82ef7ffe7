// Package session implements the review session state machine: an ordered,
// resumable, undoable walk over a queue's due notes. At most one session is
// active at a time; completion or an explicit end returns to idle.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/revault/internal/cards"
	"github.com/conorfennell/revault/internal/domain"
	"github.com/conorfennell/revault/internal/queues"
	"github.com/conorfennell/revault/internal/vault"
)

// Manager owns the optional active session. Hosts query it rather than
// reaching into shared state.
type Manager struct {
	mu     sync.Mutex
	queues *queues.Manager
	cards  *cards.Manager
	coll   vault.Collection
	log    *slog.Logger
	now    func() time.Time

	active     *session
	activePath string // note path the host's view currently shows
}

type session struct {
	id           string
	queueID      string
	reviewQueue  []string // fixed snapshot, ordered once at start
	currentIndex int
	undo         []undoEntry
	maxUndo      int
	counts       map[domain.Rating]int
	startedAt    time.Time
}

type undoEntry struct {
	path  string
	index int
	prior *domain.Schedule
	log   *domain.ReviewLog
}

// View is a read-only snapshot of the active session.
type View struct {
	ID           string                `json:"id"`
	QueueID      string                `json:"queue_id"`
	ReviewQueue  []string              `json:"review_queue"`
	CurrentIndex int                   `json:"current_index"`
	UndoDepth    int                   `json:"undo_depth"`
	Counts       map[domain.Rating]int `json:"counts"`
	StartedAt    time.Time             `json:"started_at"`
}

// New creates a session manager.
func New(queueMgr *queues.Manager, cardMgr *cards.Manager, coll vault.Collection, log *slog.Logger) *Manager {
	return &Manager{
		queues: queueMgr,
		cards:  cardMgr,
		coll:   coll,
		log:    log,
		now:    time.Now,
	}
}

// SetClock overrides the manager's clock. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Start begins a session over the queue's due notes. The review order is
// fixed here, once: due-date changes during the session do not reorder it.
func (m *Manager) Start(queueID string) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, fmt.Errorf("start session: one already active: %w", domain.ErrInvalidState)
	}

	settings := m.queues.Settings()
	due, err := m.queues.GetDueNotes(queueID, settings.QueueOrderStrategy)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, fmt.Errorf("start session: queue %s has nothing due: %w", queueID, domain.ErrInvalidState)
	}

	paths := make([]string, len(due))
	for i, card := range due {
		paths[i] = card.ItemPath
	}

	m.active = &session{
		id:          uuid.NewString(),
		queueID:     queueID,
		reviewQueue: paths,
		maxUndo:     settings.UndoStackSize,
		counts:      make(map[domain.Rating]int),
		startedAt:   m.now(),
	}
	m.log.Info("session started", "session", m.active.id, "queue", queueID, "notes", len(paths))
	return m.viewLocked(), nil
}

// Rate applies a rating to the note under the cursor and advances. A note
// that vanished mid-session is skipped rather than aborting the session; the
// caller sees ErrExternalInconsistency and the cursor has already moved on.
func (m *Manager) Rate(rating domain.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.active
	if s == nil {
		return fmt.Errorf("rate: no active session: %w", domain.ErrInvalidState)
	}
	if !rating.IsValid() {
		return fmt.Errorf("rate: %w: %d", domain.ErrInvalidState, int(rating))
	}

	path := s.reviewQueue[s.currentIndex]
	if !m.coll.Exists(path) {
		m.log.Warn("note disappeared mid-session, skipping", "path", path, "session", s.id)
		m.advanceLocked()
		return fmt.Errorf("rate %s: note is gone: %w", path, domain.ErrExternalInconsistency)
	}

	card, err := m.cards.GetCard(path)
	if err != nil || card.Schedules[s.queueID] == nil {
		m.log.Warn("card disappeared mid-session, skipping", "path", path, "session", s.id)
		m.advanceLocked()
		return fmt.Errorf("rate %s: card is gone: %w", path, domain.ErrExternalInconsistency)
	}
	prior := card.Schedules[s.queueID].Clone()

	entry, err := m.cards.UpdateCardSchedule(path, s.queueID, rating, s.id)
	if err != nil {
		return fmt.Errorf("rate %s: %w", path, err)
	}

	s.undo = append(s.undo, undoEntry{path: path, index: s.currentIndex, prior: prior, log: entry})
	if s.maxUndo > 0 && len(s.undo) > s.maxUndo {
		s.undo = s.undo[1:]
	}
	s.counts[rating]++
	m.advanceLocked()
	return nil
}

// Skip advances past the current note without rating it. Skipped notes are
// not re-queued within the session.
func (m *Manager) Skip() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return fmt.Errorf("skip: no active session: %w", domain.ErrInvalidState)
	}
	m.advanceLocked()
	return nil
}

// GoBack moves the cursor one step back. Purely a cursor move: no rating or
// undo entry changes, and re-rating after going back writes a new review log.
func (m *Manager) GoBack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.active
	if s == nil {
		return fmt.Errorf("go back: no active session: %w", domain.ErrInvalidState)
	}
	if s.currentIndex == 0 {
		return fmt.Errorf("go back: already at the first note: %w", domain.ErrInvalidState)
	}
	s.currentIndex--
	return nil
}

// UndoLastRating rolls back the most recent rating: the scheduling state is
// restored, the review log flagged undone, the cursor returns to the
// rolled-back note and its rating counter decrements. The stack's LIFO order
// is what makes the rollback safe to apply. Consecutive undos work back to
// the session start (bounded by the stack size).
func (m *Manager) UndoLastRating() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.active
	if s == nil {
		return fmt.Errorf("undo: no active session: %w", domain.ErrInvalidState)
	}
	if len(s.undo) == 0 {
		return fmt.Errorf("undo: nothing to undo: %w", domain.ErrInvalidState)
	}

	entry := s.undo[len(s.undo)-1]
	if err := m.cards.Rollback(entry.path, s.queueID, entry.log); err != nil {
		return fmt.Errorf("undo %s: %w", entry.path, err)
	}
	s.undo = s.undo[:len(s.undo)-1]
	if card, err := m.cards.GetCard(entry.path); err == nil {
		if restored := card.Schedules[s.queueID]; restored != nil && !restored.Due.Equal(entry.prior.Due) {
			m.log.Warn("rollback drift", "path", entry.path, "want_due", entry.prior.Due, "got_due", restored.Due)
		}
	}
	s.currentIndex = entry.index
	if s.counts[entry.log.Rating] > 0 {
		s.counts[entry.log.Rating]--
	}
	return nil
}

// End unconditionally returns to idle, discarding the undo stack and the
// review queue snapshot. Idempotent.
func (m *Manager) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.log.Info("session ended", "session", m.active.id, "reviewed", m.reviewedLocked())
	}
	m.active = nil
}

// Current returns a snapshot of the active session, or ok=false when idle.
func (m *Manager) Current() (*View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, false
	}
	return m.viewLocked(), true
}

// CurrentNote returns the note path under the cursor.
func (m *Manager) CurrentNote() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.reviewQueue[m.active.currentIndex], true
}

// SetActiveNote records which note the host's view currently shows. This is
// an external signal, not session state.
func (m *Manager) SetActiveNote(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activePath = path
}

// IsCurrentNoteExpected reports whether the host is showing the note the
// session expects. Rating should be disallowed by the caller while false.
func (m *Manager) IsCurrentNoteExpected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return false
	}
	return m.activePath == m.active.reviewQueue[m.active.currentIndex]
}

// BringBack returns the note path the host should re-focus to resume rating.
func (m *Manager) BringBack() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", fmt.Errorf("bring back: no active session: %w", domain.ErrInvalidState)
	}
	return m.active.reviewQueue[m.active.currentIndex], nil
}

// advanceLocked moves the cursor forward and completes the session when it
// walks off the end.
func (m *Manager) advanceLocked() {
	s := m.active
	s.currentIndex++
	if s.currentIndex >= len(s.reviewQueue) {
		m.log.Info("session complete", "session", s.id, "reviewed", m.reviewedLocked())
		m.active = nil
	}
}

func (m *Manager) reviewedLocked() int {
	total := 0
	for _, n := range m.active.counts {
		total += n
	}
	return total
}

func (m *Manager) viewLocked() *View {
	s := m.active
	v := &View{
		ID:           s.id,
		QueueID:      s.queueID,
		ReviewQueue:  append([]string(nil), s.reviewQueue...),
		CurrentIndex: s.currentIndex,
		UndoDepth:    len(s.undo),
		Counts:       make(map[domain.Rating]int, len(s.counts)),
		StartedAt:    s.startedAt,
	}
	for r, n := range s.counts {
		v.Counts[r] = n
	}
	return v
}
