package storage

import "github.com/conorfennell/revault/internal/domain"

// migrate brings a loaded document up to the current version. Unknown or
// missing fields default rather than fail; a nil document means a fresh start.
func migrate(doc *domain.Document) *domain.Document {
	if doc == nil {
		return domain.NewDocument()
	}
	if doc.Cards == nil {
		doc.Cards = make(map[string]*domain.Card)
	}

	defaults := domain.DefaultSettings()
	s := &doc.Settings
	if s.SelectionMode == "" {
		s.SelectionMode = defaults.SelectionMode
	}
	if s.SelectionMode == domain.SelectFolders && len(s.TrackedFolders) == 0 {
		s.TrackedFolders = defaults.TrackedFolders
	}
	if s.QueueOrderStrategy == "" {
		s.QueueOrderStrategy = defaults.QueueOrderStrategy
	}
	if s.NewCardsPerDay == 0 {
		s.NewCardsPerDay = defaults.NewCardsPerDay
	}
	if s.MaxReviewsPerDay == 0 {
		s.MaxReviewsPerDay = defaults.MaxReviewsPerDay
	}
	if s.UndoStackSize == 0 {
		s.UndoStackSize = defaults.UndoStackSize
	}
	if s.DesiredRetention == 0 {
		s.DesiredRetention = defaults.DesiredRetention
	}

	// Version 1 documents stored no per-card content hashes and no orphan
	// records; both default to empty, so only the version marker moves.
	doc.Version = domain.DocumentVersion
	return doc
}
