package domain

import "time"

// OrphanStatus is the lifecycle stage of an orphan record.
type OrphanStatus string

const (
	OrphanPending  OrphanStatus = "pending"
	OrphanResolved OrphanStatus = "resolved" // relinked to a new note
	OrphanRemoved  OrphanStatus = "removed"  // scheduling data discarded
)

// ResolutionAction records how a pending orphan was acted upon.
type ResolutionAction string

const (
	ResolutionRelink ResolutionAction = "relink"
	ResolutionRemove ResolutionAction = "remove"
)

// OrphanResolution records the terminal action taken on an orphan.
type OrphanResolution struct {
	Action     ResolutionAction `json:"action"`
	NewPath    string           `json:"new_path,omitempty"`
	ResolvedAt time.Time        `json:"resolved_at"`
}

// OrphanRecord preserves a card whose backing note disappeared, pending
// relink to a new note or explicit removal. Review logs for the original
// path are kept either way.
type OrphanRecord struct {
	ID           string            `json:"id"`
	OriginalPath string            `json:"original_path"`
	Card         *Card             `json:"card"` // snapshot at detection time
	DetectedAt   time.Time         `json:"detected_at"`
	Status       OrphanStatus      `json:"status"`
	Resolution   *OrphanResolution `json:"resolution,omitempty"`
}
