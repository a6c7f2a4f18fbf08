package study

import (
	"sort"
	"time"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/priority"
	"github.com/conorfennell/skillcards/internal/sm2"
)

// Kind says why a card was picked.
type Kind string

const (
	KindDue Kind = "due"
	KindNew Kind = "new"
)

// Request is everything Select needs. It is plain data so selection can
// run without touching storage.
type Request struct {
	Cards      []domain.Card
	Progress   map[string]*domain.Progress // by card ID; missing means never studied
	Categories map[string]domain.Category  // by category ID
	Admin      map[string]int              // admin level by category ID
	User       map[string]int              // user level by category ID
	Mode       priority.OverrideMode
	Hidden     map[string]bool // card IDs hidden in the deck
	BatchSize  int
	MaxNew     int // 0 means no cap beyond BatchSize
	Now        time.Time
}

// Pick is one card of a batch.
type Pick struct {
	CardID     string  `json:"card_id"`
	CategoryID string  `json:"category_id"`
	Kind       Kind    `json:"kind"`
	Priority   int     `json:"priority"`
	Weight     float64 `json:"weight"`
}

// Batch is the ordered result of a selection. The totals cover the whole
// visible pool, not just the picked cards.
type Batch struct {
	Picks    []Pick `json:"picks"`
	TotalDue int    `json:"total_due"`
	TotalNew int    `json:"total_new"`
}

// CardIDs returns the picked card IDs in order.
func (b Batch) CardIDs() []string {
	ids := make([]string, len(b.Picks))
	for i, p := range b.Picks {
		ids[i] = p.CardID
	}
	return ids
}

type candidate struct {
	card     domain.Card
	kind     Kind
	priority int
	weight   float64
	overdue  float64
}

func (c candidate) pick() Pick {
	return Pick{
		CardID:     c.card.ID,
		CategoryID: c.card.CategoryID,
		Kind:       c.kind,
		Priority:   c.priority,
		Weight:     c.weight,
	}
}

// Select builds the next study batch.
//
// Due cards come first, then never-studied cards fill the remaining slots.
// Within each group categories are interleaved by smooth weighted
// round-robin over the mastery-adjusted priority of each category's next
// card, so equally weighted categories alternate and heavier ones show up
// proportionally more often. Ties are broken by longest overdue (due) or
// most recently added category (new), then by ID, so the same request
// always yields the same batch.
func Select(req Request) Batch {
	var due, fresh []candidate
	levels := make(map[string]int)
	seen := make(map[string]bool, len(req.Cards))

	for _, card := range req.Cards {
		if req.Hidden[card.ID] || seen[card.ID] {
			continue
		}
		seen[card.ID] = true

		level, ok := levels[card.CategoryID]
		if !ok {
			level = req.effectivePriority(card.CategoryID)
			levels[card.CategoryID] = level
		}

		p := req.Progress[card.ID]
		switch {
		case p == nil:
			fresh = append(fresh, candidate{
				card:     card,
				kind:     KindNew,
				priority: level,
				weight:   priority.ApplyMasteryWeight(level, 0),
			})
		case sm2.IsDue(p, req.Now):
			due = append(due, candidate{
				card:     card,
				kind:     KindDue,
				priority: level,
				weight:   priority.ApplyMasteryWeight(level, p.MasteryScore),
				overdue:  sm2.OverdueDays(p, req.Now),
			})
		}
	}

	batch := Batch{TotalDue: len(due), TotalNew: len(fresh)}
	if req.BatchSize <= 0 {
		return batch
	}

	picks := interleave(due, req.BatchSize, dueBefore, func(a, b *queue) bool {
		return dueBefore(a.head(), b.head())
	})

	slots := req.BatchSize - len(picks)
	if req.MaxNew > 0 && slots > req.MaxNew {
		slots = req.MaxNew
	}
	picks = append(picks, interleave(fresh, slots, newBefore, func(a, b *queue) bool {
		ca, cb := req.Categories[a.id].CreatedAt, req.Categories[b.id].CreatedAt
		if !ca.Equal(cb) {
			return ca.After(cb)
		}
		return a.id < b.id
	})...)

	batch.Picks = picks
	return batch
}

func (req Request) effectivePriority(categoryID string) int {
	in := priority.Inputs{Mode: req.Mode}
	if v, ok := req.Admin[categoryID]; ok {
		in.Admin = &v
	}
	if v, ok := req.User[categoryID]; ok {
		in.User = &v
	}
	return priority.Resolve(in)
}

// dueBefore orders due cards inside a category.
func dueBefore(a, b candidate) bool {
	if a.weight != b.weight {
		return a.weight > b.weight
	}
	if a.overdue != b.overdue {
		return a.overdue > b.overdue
	}
	return a.card.ID < b.card.ID
}

// newBefore orders new cards inside a category: oldest card first.
func newBefore(a, b candidate) bool {
	if a.weight != b.weight {
		return a.weight > b.weight
	}
	if !a.card.CreatedAt.Equal(b.card.CreatedAt) {
		return a.card.CreatedAt.Before(b.card.CreatedAt)
	}
	return a.card.ID < b.card.ID
}

type queue struct {
	id      string
	cards   []candidate
	current float64
}

func (q *queue) head() candidate { return q.cards[0] }

// interleave takes up to n candidates, one category at a time.
func interleave(cands []candidate, n int, cardBefore func(a, b candidate) bool, queueBefore func(a, b *queue) bool) []Pick {
	if n <= 0 || len(cands) == 0 {
		return nil
	}

	byCategory := make(map[string]*queue)
	var queues []*queue
	for _, c := range cands {
		q, ok := byCategory[c.card.CategoryID]
		if !ok {
			q = &queue{id: c.card.CategoryID}
			byCategory[q.id] = q
			queues = append(queues, q)
		}
		q.cards = append(q.cards, c)
	}
	for _, q := range queues {
		sort.SliceStable(q.cards, func(i, j int) bool {
			return cardBefore(q.cards[i], q.cards[j])
		})
	}
	sort.SliceStable(queues, func(i, j int) bool {
		return queueBefore(queues[i], queues[j])
	})

	picks := make([]Pick, 0, min(n, len(cands)))
	for len(picks) < n {
		var best *queue
		var total float64
		for _, q := range queues {
			if len(q.cards) == 0 {
				continue
			}
			w := q.head().weight
			q.current += w
			total += w
			if best == nil || q.current > best.current ||
				(q.current == best.current && queueBefore(q, best)) {
				best = q
			}
		}
		if best == nil {
			break
		}
		picks = append(picks, best.head().pick())
		best.cards = best.cards[1:]
		best.current -= total
	}
	return picks
}
