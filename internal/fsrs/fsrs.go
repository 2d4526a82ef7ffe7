// Package fsrs adapts the external FSRS scheduler to the revault schedule
// model. The memory-model math lives entirely in github.com/sky-flux/flux;
// this package only maps schedules in and out, keeps the reps/lapses
// counters, and implements exact rollback from review-log snapshots.
package fsrs

import (
	"fmt"
	"time"

	"github.com/sky-flux/flux"

	"github.com/conorfennell/revault/internal/domain"
)

// Engine applies ratings, previews outcomes and rolls back reviews.
// Fuzzing is disabled so previews and repeated applications are deterministic.
type Engine struct {
	sched *flux.Scheduler
}

// New creates an engine with the given desired retention (0 means the
// algorithm default of 0.9).
func New(desiredRetention float64) (*Engine, error) {
	sched, err := flux.NewScheduler(flux.SchedulerConfig{
		DesiredRetention: desiredRetention,
		DisableFuzzing:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring scheduler: %w", err)
	}
	return &Engine{sched: sched}, nil
}

// NewSchedule returns the schedule of a card that has never been reviewed:
// state New, zero counters, due immediately.
func NewSchedule(now time.Time) *domain.Schedule {
	return &domain.Schedule{
		Due:   now,
		State: domain.StateNew,
	}
}

// ApplyRating runs one review through the scheduler and returns the updated
// schedule plus a review log carrying the full pre-review snapshot. The input
// schedule is not mutated. Card/queue/session attribution on the log is left
// to the caller.
func (e *Engine) ApplyRating(s *domain.Schedule, rating domain.Rating, now time.Time) (*domain.Schedule, *domain.ReviewLog, error) {
	if !rating.IsValid() {
		return nil, nil, fmt.Errorf("apply rating: %w: %d", domain.ErrInvalidState, int(rating))
	}

	card := toFlux(s)
	reviewed, _ := e.sched.ReviewCard(card, toFluxRating(rating), now)
	next := fromFlux(reviewed, s, rating, now)

	log := &domain.ReviewLog{
		Rating:        rating,
		State:         s.State,
		Due:           s.Due,
		Stability:     s.Stability,
		Difficulty:    s.Difficulty,
		ElapsedDays:   s.ElapsedDays,
		ScheduledDays: s.ScheduledDays,
		Review:        now,
	}
	if s.Step != nil {
		v := *s.Step
		log.Step = &v
	}
	if s.LastReview != nil {
		v := *s.LastReview
		log.LastReview = &v
	}
	return next, log, nil
}

// Rollback restores the schedule that preceded the review recorded in log.
// Reps and lapses are derived: reps always decrements, lapses decrements when
// the logged review was a lapse (Again out of Review state).
func (e *Engine) Rollback(s *domain.Schedule, log *domain.ReviewLog) (*domain.Schedule, error) {
	if s.Reps == 0 {
		return nil, fmt.Errorf("rollback: %w: schedule has no reviews", domain.ErrInvalidState)
	}
	prior := log.PriorSchedule()
	prior.Reps = s.Reps - 1
	prior.Lapses = s.Lapses
	if log.Rating == domain.Again && log.State == domain.StateReview && prior.Lapses > 0 {
		prior.Lapses--
	}
	return prior, nil
}

// PreviewAllRatings returns the hypothetical schedule for each rating without
// mutating anything.
func (e *Engine) PreviewAllRatings(s *domain.Schedule, now time.Time) map[domain.Rating]*domain.Schedule {
	out := make(map[domain.Rating]*domain.Schedule, 4)
	for _, r := range domain.Ratings() {
		next, _, err := e.ApplyRating(s, r, now)
		if err != nil {
			continue
		}
		out[r] = next
	}
	return out
}

// Retrievability returns the probability of recall at the given instant,
// 0 for never-reviewed schedules.
func (e *Engine) Retrievability(s *domain.Schedule, now time.Time) float64 {
	return e.sched.Retrievability(toFlux(s), now)
}

func toFluxRating(r domain.Rating) flux.Rating {
	return flux.Rating(r)
}

// toFlux maps a schedule onto the algorithm's card model. A New schedule maps
// to Learning at step 0 with no memory state, which is how the algorithm
// represents a first review.
func toFlux(s *domain.Schedule) flux.Card {
	c := flux.Card{Due: s.Due}
	switch s.State {
	case domain.StateNew:
		step := 0
		c.State = flux.Learning
		c.Step = &step
	case domain.StateLearning:
		c.State = flux.Learning
		c.Step = cloneStep(s.Step)
	case domain.StateRelearning:
		c.State = flux.Relearning
		c.Step = cloneStep(s.Step)
	default:
		c.State = flux.Review
	}
	if s.Reps > 0 {
		stability := s.Stability
		difficulty := s.Difficulty
		c.Stability = &stability
		c.Difficulty = &difficulty
	}
	if s.LastReview != nil {
		v := *s.LastReview
		c.LastReview = &v
	}
	return c
}

func fromFlux(c flux.Card, prior *domain.Schedule, rating domain.Rating, now time.Time) *domain.Schedule {
	next := &domain.Schedule{
		Due:         c.Due,
		Reps:        prior.Reps + 1,
		Lapses:      prior.Lapses,
		Step:        cloneStep(c.Step),
		ElapsedDays: wholeDays(prior.LastReview, now),
	}
	if rating == domain.Again && prior.State == domain.StateReview {
		next.Lapses++
	}
	switch c.State {
	case flux.Learning:
		next.State = domain.StateLearning
	case flux.Relearning:
		next.State = domain.StateRelearning
	default:
		next.State = domain.StateReview
	}
	if c.Stability != nil {
		next.Stability = *c.Stability
	}
	if c.Difficulty != nil {
		next.Difficulty = *c.Difficulty
	}
	if c.LastReview != nil {
		v := *c.LastReview
		next.LastReview = &v
	}
	if days := int(c.Due.Sub(now).Hours() / 24); days > 0 {
		next.ScheduledDays = days
	}
	return next
}

func cloneStep(step *int) *int {
	if step == nil {
		return nil
	}
	v := *step
	return &v
}

func wholeDays(from *time.Time, to time.Time) int {
	if from == nil {
		return 0
	}
	days := int(to.Sub(*from).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
