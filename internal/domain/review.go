package domain

import "time"

// ReviewLog is the immutable record of one rating event. Logs are never
// deleted; an undone review is flagged and excluded from statistics but kept
// for audit. The pre-review schedule snapshot makes rollback exact without
// consulting the scheduling engine.
type ReviewLog struct {
	ID        string `json:"id"`
	CardPath  string `json:"card_path"` // item path at the time of review
	QueueID   string `json:"queue_id"`
	Rating    Rating `json:"rating"`
	SessionID string `json:"session_id,omitempty"`

	// Pre-review schedule snapshot.
	State         State      `json:"state"`
	Due           time.Time  `json:"due"`
	Stability     float64    `json:"stability"`
	Difficulty    float64    `json:"difficulty"`
	ElapsedDays   int        `json:"elapsed_days"`
	ScheduledDays int        `json:"scheduled_days"`
	Step          *int       `json:"step,omitempty"`
	LastReview    *time.Time `json:"last_review,omitempty"`

	Review time.Time `json:"review"`
	Undone bool      `json:"undone"`
}

// PriorSchedule reconstructs the schedule snapshot captured in the log,
// without the reps/lapses counters (those are derived during rollback).
func (l *ReviewLog) PriorSchedule() *Schedule {
	s := &Schedule{
		Due:           l.Due,
		Stability:     l.Stability,
		Difficulty:    l.Difficulty,
		ElapsedDays:   l.ElapsedDays,
		ScheduledDays: l.ScheduledDays,
		State:         l.State,
	}
	if l.Step != nil {
		v := *l.Step
		s.Step = &v
	}
	if l.LastReview != nil {
		v := *l.LastReview
		s.LastReview = &v
	}
	return s
}
