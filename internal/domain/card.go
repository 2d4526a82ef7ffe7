package domain

import "time"

// Schedule is the FSRS scheduling state for one card in one queue.
// It is mutated only by the scheduling engine (via a rating) or by rollback.
type Schedule struct {
	Due           time.Time  `json:"due"`
	Stability     float64    `json:"stability"`
	Difficulty    float64    `json:"difficulty"`
	ElapsedDays   int        `json:"elapsed_days"`
	ScheduledDays int        `json:"scheduled_days"`
	Reps          int        `json:"reps"`
	Lapses        int        `json:"lapses"`
	State         State      `json:"state"`
	Step          *int       `json:"step,omitempty"`        // learning-step cursor, nil outside Learning/Relearning
	LastReview    *time.Time `json:"last_review,omitempty"` // nil before first review
}

// Clone returns a deep copy of the schedule.
func (s *Schedule) Clone() *Schedule {
	out := *s
	if s.Step != nil {
		v := *s.Step
		out.Step = &v
	}
	if s.LastReview != nil {
		v := *s.LastReview
		out.LastReview = &v
	}
	return &out
}

// IsDue reports whether the schedule is due at the given instant (inclusive).
func (s *Schedule) IsDue(asOf time.Time) bool {
	return !s.Due.After(asOf)
}

// Card is one note's scheduling record across every queue it belongs to.
// A card exists if and only if it holds at least one schedule; removing the
// last schedule removes the card.
type Card struct {
	ItemPath     string               `json:"item_path"` // current vault location, changes on rename
	ItemID       string               `json:"item_id"`   // stable identity, survives renames
	ContentHash  string               `json:"content_hash,omitempty"`
	Schedules    map[string]*Schedule `json:"schedules"` // queue id -> schedule
	CreatedAt    time.Time            `json:"created_at"`
	LastModified time.Time            `json:"last_modified"`
}

// Clone returns a deep copy of the card.
func (c *Card) Clone() *Card {
	out := *c
	out.Schedules = make(map[string]*Schedule, len(c.Schedules))
	for id, s := range c.Schedules {
		out.Schedules[id] = s.Clone()
	}
	return &out
}

// Schedule returns the schedule for the given queue, or nil.
func (c *Card) Schedule(queueID string) *Schedule {
	return c.Schedules[queueID]
}
