package queues

import (
	"math/rand"
	"sort"
	"time"

	"github.com/conorfennell/revault/internal/domain"
)

// order applies the strategy to a due list. The input arrives sorted by item
// path and every sort below is stable, so equal keys keep a deterministic
// path order across calls with identical inputs.
func (m *Manager) order(list []*domain.Card, queueID string, strategy domain.OrderStrategy, now time.Time) []*domain.Card {
	schedule := func(c *domain.Card) *domain.Schedule { return c.Schedules[queueID] }

	switch strategy {
	case domain.OrderChronological:
		sort.SliceStable(list, func(i, j int) bool {
			return schedule(list[i]).Due.Before(schedule(list[j]).Due)
		})

	case domain.OrderRandom:
		rng := rand.New(rand.NewSource(now.UnixNano()))
		rng.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })

	case domain.OrderDifficultyAsc:
		sort.SliceStable(list, func(i, j int) bool {
			return schedule(list[i]).Difficulty < schedule(list[j]).Difficulty
		})

	case domain.OrderDifficultyDesc:
		sort.SliceStable(list, func(i, j int) bool {
			return schedule(list[i]).Difficulty > schedule(list[j]).Difficulty
		})

	case domain.OrderStatePriority:
		rank := map[domain.State]int{
			domain.StateLearning:   0,
			domain.StateRelearning: 1,
			domain.StateReview:     2,
			domain.StateNew:        3,
		}
		sort.SliceStable(list, func(i, j int) bool {
			ri, rj := rank[schedule(list[i]).State], rank[schedule(list[j]).State]
			if ri != rj {
				return ri < rj
			}
			return schedule(list[i]).Due.Before(schedule(list[j]).Due)
		})

	case domain.OrderRetrievabilityAsc:
		sort.SliceStable(list, func(i, j int) bool {
			return m.cards.Retrievability(schedule(list[i]), now) < m.cards.Retrievability(schedule(list[j]), now)
		})

	case domain.OrderLoadBalanced:
		list = m.loadBalanced(list, queueID, now)

	default: // overdue-first
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		overdue := func(c *domain.Card) bool { return schedule(c).Due.Before(startOfDay) }
		sort.SliceStable(list, func(i, j int) bool {
			oi, oj := overdue(list[i]), overdue(list[j])
			if oi != oj {
				return oi
			}
			return schedule(list[i]).Due.Before(schedule(list[j]).Due)
		})
	}
	return list
}

// loadBalanced orders chronologically and then trims the list to what the
// daily caps allow: at most NewCardsPerDay first reviews and MaxReviewsPerDay
// total reviews per calendar day, counting what the archive has already seen
// today. Without an archive there is nothing to count against, so no cap
// applies.
func (m *Manager) loadBalanced(list []*domain.Card, queueID string, now time.Time) []*domain.Card {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Schedules[queueID].Due.Before(list[j].Schedules[queueID].Due)
	})
	if m.arch == nil {
		return list
	}
	settings := m.Settings()

	reviewsToday, err := m.arch.CountReviewsOn(queueID, now)
	if err != nil {
		m.log.Warn("counting today's reviews", "queue", queueID, "error", err)
		return list
	}
	newToday, err := m.arch.CountNewOn(queueID, now)
	if err != nil {
		m.log.Warn("counting today's new cards", "queue", queueID, "error", err)
		return list
	}

	remainingTotal := settings.MaxReviewsPerDay - reviewsToday
	remainingNew := settings.NewCardsPerDay - newToday

	out := list[:0]
	for _, card := range list {
		if len(out) >= remainingTotal {
			break
		}
		if card.Schedules[queueID].State == domain.StateNew {
			if remainingNew <= 0 {
				continue
			}
			remainingNew--
		}
		out = append(out, card)
	}
	return out
}
