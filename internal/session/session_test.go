package session

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/conorfennell/revault/internal/cards"
	"github.com/conorfennell/revault/internal/domain"
	"github.com/conorfennell/revault/internal/fsrs"
	"github.com/conorfennell/revault/internal/queues"
	"github.com/conorfennell/revault/internal/storage"
	"github.com/conorfennell/revault/internal/vault"
)

type memCollection struct {
	notes map[string]vault.Note
}

func (c *memCollection) Notes() ([]vault.Note, error) {
	out := make([]vault.Note, 0, len(c.notes))
	for _, n := range c.notes {
		out = append(out, n)
	}
	return out, nil
}

func (c *memCollection) Note(p string) (vault.Note, bool, error) {
	n, ok := c.notes[p]
	return n, ok, nil
}

func (c *memCollection) Exists(p string) bool {
	_, ok := c.notes[p]
	return ok
}

type fixture struct {
	sessions *Manager
	cards    *cards.Manager
	queues   *queues.Manager
	store    *storage.Store
	coll     *memCollection
	queueID  string
	now      time.Time
}

// newFixture builds a session manager over a queue already synchronized with
// the given notes, all due immediately.
func newFixture(t *testing.T, notes ...string) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.Open(storage.NewFileBackend(filepath.Join(t.TempDir(), "revault.json"), 0), 0, log)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	engine, err := fsrs.New(0.9)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	coll := &memCollection{notes: map[string]vault.Note{}}
	for _, p := range notes {
		coll.notes[p] = vault.Note{Path: p}
	}

	cardMgr := cards.New(store, engine, nil, log)
	cardMgr.SetClock(func() time.Time { return now })
	queueMgr := queues.New(store, cardMgr, coll, nil, log)
	queueMgr.SetClock(func() time.Time { return now })
	sessionMgr := New(queueMgr, cardMgr, coll, log)
	sessionMgr.SetClock(func() time.Time { return now })

	q, err := queueMgr.CreateQueue("Test", domain.Criteria{Kind: domain.CriteriaFolder, Folders: []string{""}})
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	if _, err := queueMgr.SyncQueue(q.ID); err != nil {
		t.Fatalf("SyncQueue: %v", err)
	}
	return &fixture{sessions: sessionMgr, cards: cardMgr, queues: queueMgr, store: store, coll: coll, queueID: q.ID, now: now}
}

func TestStart(t *testing.T) {
	f := newFixture(t, "a.md", "b.md", "c.md")

	view, err := f.sessions.Start(f.queueID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(view.ReviewQueue) != 3 {
		t.Errorf("expected 3 notes in the review queue, got %d", len(view.ReviewQueue))
	}
	if view.CurrentIndex != 0 {
		t.Errorf("expected the cursor at 0, got %d", view.CurrentIndex)
	}

	t.Run("second session rejected", func(t *testing.T) {
		if _, err := f.sessions.Start(f.queueID); !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestStartWithNothingDue(t *testing.T) {
	f := newFixture(t, "a.md")
	if _, err := f.cards.UpdateCardSchedule("a.md", f.queueID, domain.Easy, ""); err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := f.sessions.Start(f.queueID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState with nothing due, got %v", err)
	}
}

func TestRateAdvancesAndCompletes(t *testing.T) {
	f := newFixture(t, "a.md", "b.md")
	f.sessions.Start(f.queueID)

	if err := f.sessions.Rate(domain.Good); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	view, ok := f.sessions.Current()
	if !ok {
		t.Fatal("expected the session to still be active")
	}
	if view.CurrentIndex != 1 {
		t.Errorf("expected the cursor at 1, got %d", view.CurrentIndex)
	}
	if view.Counts[domain.Good] != 1 {
		t.Errorf("expected one Good rating counted, got %d", view.Counts[domain.Good])
	}

	if err := f.sessions.Rate(domain.Again); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if _, ok := f.sessions.Current(); ok {
		t.Error("expected the session to complete after the last note")
	}

	if err := f.sessions.Rate(domain.Good); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected rating after completion to fail, got %v", err)
	}
}

func TestSkipDoesNotRequeue(t *testing.T) {
	f := newFixture(t, "a.md", "b.md")
	f.sessions.Start(f.queueID)

	if err := f.sessions.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	view, _ := f.sessions.Current()
	if view.CurrentIndex != 1 {
		t.Errorf("expected the cursor past the skipped note, got %d", view.CurrentIndex)
	}
	if len(view.ReviewQueue) != 2 {
		t.Errorf("expected the skipped note not re-queued, got %v", view.ReviewQueue)
	}

	// Skipping leaves no review log behind.
	f.store.View(func(doc *domain.Document) {
		if len(doc.Reviews) != 0 {
			t.Errorf("expected no review logs from a skip, got %d", len(doc.Reviews))
		}
	})

	if err := f.sessions.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if _, ok := f.sessions.Current(); ok {
		t.Error("expected skipping the last note to complete the session")
	}
}

func TestGoBack(t *testing.T) {
	f := newFixture(t, "a.md", "b.md", "c.md")
	f.sessions.Start(f.queueID)

	if err := f.sessions.GoBack(); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected going back at the first note to fail, got %v", err)
	}

	f.sessions.Rate(domain.Good)
	if err := f.sessions.GoBack(); err != nil {
		t.Fatalf("GoBack: %v", err)
	}
	view, _ := f.sessions.Current()
	if view.CurrentIndex != 0 {
		t.Errorf("expected the cursor back at 0, got %d", view.CurrentIndex)
	}

	// Re-rating after going back writes a second log, it does not replace one.
	if err := f.sessions.Rate(domain.Hard); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	f.store.View(func(doc *domain.Document) {
		if len(doc.Reviews) != 2 {
			t.Errorf("expected 2 review logs, got %d", len(doc.Reviews))
		}
	})
}

func TestUndoLastRating(t *testing.T) {
	f := newFixture(t, "a.md", "b.md")
	f.sessions.Start(f.queueID)

	view, _ := f.sessions.Current()
	first := view.ReviewQueue[0]
	before, _ := f.cards.GetCard(first)

	f.sessions.Rate(domain.Good)
	if err := f.sessions.UndoLastRating(); err != nil {
		t.Fatalf("UndoLastRating: %v", err)
	}

	view, _ = f.sessions.Current()
	if view.CurrentIndex != 0 {
		t.Errorf("expected the cursor back on the undone note, got %d", view.CurrentIndex)
	}
	if view.Counts[domain.Good] != 0 {
		t.Errorf("expected the rating count decremented, got %d", view.Counts[domain.Good])
	}

	after, _ := f.cards.GetCard(first)
	if !reflect.DeepEqual(after.Schedules[f.queueID], before.Schedules[f.queueID]) {
		t.Errorf("expected the schedule restored:\nwant %+v\ngot  %+v",
			before.Schedules[f.queueID], after.Schedules[f.queueID])
	}
	f.store.View(func(doc *domain.Document) {
		if len(doc.Reviews) != 1 || !doc.Reviews[0].Undone {
			t.Error("expected the review log kept and flagged undone")
		}
	})

	if err := f.sessions.UndoLastRating(); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected an empty undo stack to reject, got %v", err)
	}
}

// Rating K notes and undoing K times must walk the whole session back to its
// starting state.
func TestUndoWalksBackInLIFOOrder(t *testing.T) {
	paths := []string{"a.md", "b.md", "c.md"}
	f := newFixture(t, paths...)

	snapshots := map[string]*domain.Card{}
	for _, p := range paths {
		card, _ := f.cards.GetCard(p)
		snapshots[p] = card
	}

	f.sessions.Start(f.queueID)
	f.sessions.Rate(domain.Good)
	f.sessions.Rate(domain.Again)

	for i := 0; i < 2; i++ {
		if err := f.sessions.UndoLastRating(); err != nil {
			t.Fatalf("undo %d: %v", i, err)
		}
	}

	view, _ := f.sessions.Current()
	if view.CurrentIndex != 0 {
		t.Errorf("expected the cursor back at the start, got %d", view.CurrentIndex)
	}
	for _, p := range view.ReviewQueue[:2] {
		card, _ := f.cards.GetCard(p)
		if !reflect.DeepEqual(card.Schedules[f.queueID], snapshots[p].Schedules[f.queueID]) {
			t.Errorf("expected %s fully restored", p)
		}
	}
	f.store.View(func(doc *domain.Document) {
		for _, log := range doc.Reviews {
			if !log.Undone {
				t.Errorf("expected every log undone, %s is not", log.ID)
			}
		}
	})
}

func TestRateSkipsVanishedNote(t *testing.T) {
	f := newFixture(t, "a.md", "b.md")
	f.sessions.Start(f.queueID)

	view, _ := f.sessions.Current()
	delete(f.coll.notes, view.ReviewQueue[0])

	if err := f.sessions.Rate(domain.Good); !errors.Is(err, domain.ErrExternalInconsistency) {
		t.Fatalf("expected ErrExternalInconsistency, got %v", err)
	}
	view, ok := f.sessions.Current()
	if !ok {
		t.Fatal("expected the session to survive")
	}
	if view.CurrentIndex != 1 {
		t.Errorf("expected the cursor to have moved past the vanished note, got %d", view.CurrentIndex)
	}
	if view.Counts[domain.Good] != 0 {
		t.Error("expected no rating recorded for the vanished note")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	f := newFixture(t, "a.md")
	f.sessions.Start(f.queueID)

	f.sessions.End()
	if _, ok := f.sessions.Current(); ok {
		t.Error("expected no active session after End")
	}
	f.sessions.End() // second end must not panic

	// A fresh session can start again.
	if _, err := f.sessions.Start(f.queueID); err != nil {
		t.Errorf("expected a new session to start after ending, got %v", err)
	}
}

func TestActiveNoteTracking(t *testing.T) {
	f := newFixture(t, "a.md", "b.md")
	f.sessions.Start(f.queueID)

	current, ok := f.sessions.CurrentNote()
	if !ok {
		t.Fatal("expected a current note")
	}

	f.sessions.SetActiveNote("elsewhere.md")
	if f.sessions.IsCurrentNoteExpected() {
		t.Error("expected a mismatch while showing another note")
	}

	back, err := f.sessions.BringBack()
	if err != nil {
		t.Fatalf("BringBack: %v", err)
	}
	if back != current {
		t.Errorf("expected BringBack to return %s, got %s", current, back)
	}

	f.sessions.SetActiveNote(back)
	if !f.sessions.IsCurrentNoteExpected() {
		t.Error("expected a match after refocusing")
	}
}

func TestUndoStackIsBounded(t *testing.T) {
	f := newFixture(t, "a.md", "b.md", "c.md")
	f.store.Update(func(doc *domain.Document) error {
		doc.Settings.UndoStackSize = 1
		return nil
	})

	f.sessions.Start(f.queueID)
	f.sessions.Rate(domain.Good)
	f.sessions.Rate(domain.Good)

	if err := f.sessions.UndoLastRating(); err != nil {
		t.Fatalf("first undo: %v", err)
	}
	if err := f.sessions.UndoLastRating(); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected the oldest entry dropped from a size-1 stack, got %v", err)
	}
}
