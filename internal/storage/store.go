package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/revault/internal/domain"
)

const (
	saveAttempts = 3
	saveBackoff  = 100 * time.Millisecond
)

// Store owns the authoritative in-memory document and debounces persistence.
// Mutations apply synchronously under a single coarse lock; the flush to the
// backend happens after the debounce window, or immediately via Flush.
type Store struct {
	mu       sync.Mutex
	doc      *domain.Document
	backend  Backend
	debounce time.Duration
	timer    *time.Timer
	dirty    bool
	closed   bool
	log      *slog.Logger
}

// Open loads the document from the backend, recovering to defaults when the
// stored document is corrupt (the backend has already preserved the bad file)
// and migrating older versions forward.
func Open(backend Backend, debounce time.Duration, log *slog.Logger) (*Store, error) {
	doc, err := backend.Load()
	if err != nil {
		if !errors.Is(err, domain.ErrCorruptedDocument) {
			return nil, err
		}
		log.Warn("stored document is corrupt, starting from defaults", "error", err)
		doc = nil
	}
	doc = migrate(doc)

	return &Store{
		doc:      doc,
		backend:  backend,
		debounce: debounce,
		log:      log,
	}, nil
}

// View runs fn with read access to the document. fn must not retain or
// mutate anything reachable from the document.
func (s *Store) View(fn func(doc *domain.Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Update runs fn with write access to the document. A nil return marks the
// document dirty and schedules a debounced flush; a non-nil return is passed
// through and nothing is persisted (fn must not mutate on failure).
func (s *Store) Update(fn func(doc *domain.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.doc); err != nil {
		return err
	}
	s.dirty = true
	s.scheduleFlush()
	return nil
}

// Flush writes the document now, bypassing the debounce window. Safe to call
// when nothing is dirty. Used for shutdown and durability-asserting tests.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Close flushes and stops the debounce timer.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.flushLocked()
}

func (s *Store) scheduleFlush() {
	if s.closed || s.debounce <= 0 {
		if err := s.flushLocked(); err != nil {
			s.log.Error("flush failed", "error", err)
		}
		return
	}
	if s.timer != nil {
		s.timer.Reset(s.debounce)
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(); err != nil {
			s.log.Error("debounced flush failed", "error", err)
		}
	})
}

// flushLocked saves with bounded retries. On exhaustion the in-memory
// document stays authoritative and dirty, so nothing is lost while the
// process lives; the error is surfaced to the caller.
func (s *Store) flushLocked() error {
	if !s.dirty {
		return nil
	}
	var err error
	for attempt := 0; attempt < saveAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(saveBackoff << (attempt - 1))
		}
		if err = s.backend.Save(s.doc); err == nil {
			s.dirty = false
			return nil
		}
		s.log.Warn("saving document failed", "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("saving document after %d attempts: %w", saveAttempts, err)
}
