package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/conorfennell/revault/internal/domain"
	"github.com/conorfennell/revault/internal/vault"
)

func (f *fixture) orphanNote(t *testing.T, notePath, hash string, queueID string) *domain.OrphanRecord {
	t.Helper()
	f.coll.add(vault.Note{Path: notePath, ContentHash: hash})
	if err := f.rec.HandleCreate(notePath); err != nil {
		t.Fatalf("HandleCreate: %v", err)
	}
	if _, err := f.cards.UpdateCardSchedule(notePath, queueID, domain.Good, "s1"); err != nil {
		t.Fatalf("review: %v", err)
	}
	delete(f.coll.notes, notePath)
	if err := f.rec.HandleDelete(notePath); err != nil {
		t.Fatalf("HandleDelete: %v", err)
	}
	orphans := f.rec.ListOrphans(domain.OrphanPending)
	if len(orphans) == 0 {
		t.Fatal("expected a pending orphan")
	}
	return orphans[len(orphans)-1]
}

func TestFindPotentialMatches(t *testing.T) {
	f := newFixture(t)
	q := f.newQueue(t, "Spanish", "spanish")
	orphan := f.orphanNote(t, "spanish/verbos irregulares.md", "hash-a", q.ID)

	f.coll.add(vault.Note{Path: "spanish/verbos irregulares v2.md", ContentHash: "hash-a",
		ModifiedAt: f.now.Add(time.Minute)})
	f.coll.add(vault.Note{Path: "spanish/verbos.md", ContentHash: "hash-b"})
	f.coll.add(vault.Note{Path: "cooking/paella.md", ContentHash: "hash-c"})

	matches, err := f.rec.FindPotentialMatches(orphan.ID, 5)
	if err != nil {
		t.Fatalf("FindPotentialMatches: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}
	if matches[0].Path != "spanish/verbos irregulares v2.md" {
		t.Errorf("expected the identical-content note ranked first, got %s", matches[0].Path)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Error("expected matches sorted by descending score")
		}
	}

	t.Run("claimed notes are not candidates", func(t *testing.T) {
		f.coll.add(vault.Note{Path: "spanish/claimed.md", ContentHash: "hash-a"})
		if err := f.rec.HandleCreate("spanish/claimed.md"); err != nil {
			t.Fatalf("HandleCreate: %v", err)
		}
		matches, err := f.rec.FindPotentialMatches(orphan.ID, 10)
		if err != nil {
			t.Fatalf("FindPotentialMatches: %v", err)
		}
		for _, m := range matches {
			if m.Path == "spanish/claimed.md" {
				t.Error("expected notes with existing cards to be skipped")
			}
		}
	})

	t.Run("top-k limit", func(t *testing.T) {
		matches, err := f.rec.FindPotentialMatches(orphan.ID, 1)
		if err != nil {
			t.Fatalf("FindPotentialMatches: %v", err)
		}
		if len(matches) != 1 {
			t.Errorf("expected the list capped at 1, got %d", len(matches))
		}
	})

	t.Run("unknown orphan", func(t *testing.T) {
		if _, err := f.rec.FindPotentialMatches("ghost", 5); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRelinkOrphan(t *testing.T) {
	f := newFixture(t)
	q := f.newQueue(t, "Spanish", "spanish")
	orphan := f.orphanNote(t, "spanish/verbs.md", "hash-a", q.ID)
	f.coll.add(vault.Note{Path: "spanish/verbs-restored.md", ContentHash: "hash-a"})

	if err := f.rec.RelinkOrphan(orphan.ID, "spanish/verbs-restored.md"); err != nil {
		t.Fatalf("RelinkOrphan: %v", err)
	}

	card, err := f.cards.GetCard("spanish/verbs-restored.md")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if card.Schedules[q.ID] == nil || card.Schedules[q.ID].Reps != 1 {
		t.Error("expected the scheduling history restored at the new path")
	}

	f.store.View(func(doc *domain.Document) {
		for _, log := range doc.Reviews {
			if log.CardPath == "spanish/verbs.md" {
				t.Error("expected review logs re-pointed to the new path")
			}
		}
		o := doc.Orphan(orphan.ID)
		if o.Status != domain.OrphanResolved {
			t.Errorf("expected the orphan resolved, got %v", o.Status)
		}
		if o.Resolution == nil || o.Resolution.NewPath != "spanish/verbs-restored.md" {
			t.Errorf("expected the resolution to record the new path, got %+v", o.Resolution)
		}
	})

	t.Run("already resolved", func(t *testing.T) {
		if err := f.rec.RelinkOrphan(orphan.ID, "spanish/verbs-restored.md"); !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestRelinkOrphanRejections(t *testing.T) {
	f := newFixture(t)
	q := f.newQueue(t, "Spanish", "spanish")
	orphan := f.orphanNote(t, "spanish/verbs.md", "hash-a", q.ID)

	t.Run("missing target note", func(t *testing.T) {
		if err := f.rec.RelinkOrphan(orphan.ID, "nowhere.md"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("target already has a card", func(t *testing.T) {
		f.coll.add(vault.Note{Path: "spanish/taken.md"})
		if err := f.rec.HandleCreate("spanish/taken.md"); err != nil {
			t.Fatalf("HandleCreate: %v", err)
		}
		if err := f.rec.RelinkOrphan(orphan.ID, "spanish/taken.md"); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})
}

func TestRemoveOrphan(t *testing.T) {
	f := newFixture(t)
	q := f.newQueue(t, "Spanish", "spanish")
	orphan := f.orphanNote(t, "spanish/verbs.md", "hash-a", q.ID)

	if err := f.rec.RemoveOrphan(orphan.ID); err != nil {
		t.Fatalf("RemoveOrphan: %v", err)
	}

	f.store.View(func(doc *domain.Document) {
		o := doc.Orphan(orphan.ID)
		if o.Status != domain.OrphanRemoved {
			t.Errorf("expected status removed, got %v", o.Status)
		}
		if len(doc.Reviews) == 0 {
			t.Error("expected review logs kept after removal")
		}
	})

	t.Run("already removed", func(t *testing.T) {
		if err := f.rec.RemoveOrphan(orphan.ID); !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"verbs", "verbs", 1, 1},
		{"Verbs", "verbs", 1, 1},
		{"verbs", "verbz", 0.7, 0.9},
		{"verbs", "cooking", 0, 0.35},
	}
	for _, tt := range tests {
		got := similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("similarity(%q, %q) = %.3f, want within [%.2f, %.2f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
