package domain

import (
	"fmt"
	"time"
)

// CriteriaKind discriminates the criteria union.
type CriteriaKind string

const (
	CriteriaFolder CriteriaKind = "folder"
	CriteriaTag    CriteriaKind = "tag"
)

// Criteria is the declarative membership rule for a queue.
// Exactly one of Folders/Tags is meaningful, selected by Kind.
type Criteria struct {
	Kind    CriteriaKind `json:"kind"`
	Folders []string     `json:"folders,omitempty"` // vault-relative folder paths; "" matches the whole vault
	Tags    []string     `json:"tags,omitempty"`    // hierarchical, case-insensitive
}

// Validate checks that the criteria union is well formed.
func (c Criteria) Validate() error {
	switch c.Kind {
	case CriteriaFolder:
		if len(c.Folders) == 0 {
			return fmt.Errorf("folder criteria needs at least one folder")
		}
	case CriteriaTag:
		if len(c.Tags) == 0 {
			return fmt.Errorf("tag criteria needs at least one tag")
		}
	default:
		return fmt.Errorf("unknown criteria kind %q", c.Kind)
	}
	return nil
}

// QueueStats is a cached, advisory snapshot of queue counts.
// It is refreshed opportunistically and never trusted for decisions;
// authoritative counts are always recomputed from live schedules.
type QueueStats struct {
	Total     int       `json:"total"`
	New       int       `json:"new"`
	Due       int       `json:"due"`
	Overdue   int       `json:"overdue"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Queue is a named, criteria-defined grouping of notes reviewed together.
type Queue struct {
	ID        string      `json:"id"` // never changes
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
	Criteria  Criteria    `json:"criteria"`
	Stats     *QueueStats `json:"stats,omitempty"`
}
