// Package population implements the best-solutions priority queues and the
// ordered individual collection that an optimization algorithm iterates
// over, grounded on the scored-candidate-then-sort shape used by the
// teacher's cache eviction policies and adapted here to fitness-ranked
// retention instead of eviction scoring.
package population

import (
	"sort"

	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
)

// Entry is one slot in a BestQueue: a stored snapshot plus the scalar it was
// ranked on.
type Entry struct {
	Individual *individual.Individual
	Score      float64 // transformed fitness of criterion 0, ranked by the queue's direction
}

// BestQueue is a fixed-capacity (0 = unlimited) priority queue ordered by
// transformed fitness, best first.
type BestQueue struct {
	direction individual.Direction
	capacity  int
	entries   []Entry
}

// NewBestQueue returns an empty queue. capacity == 0 means unlimited.
func NewBestQueue(direction individual.Direction, capacity int) *BestQueue {
	return &BestQueue{direction: direction, capacity: capacity}
}

// Add inserts ind, scored on criterion 0's transformed fitness. clone
// controls whether a defensive copy is stored; replace clears the queue
// before inserting.
func (q *BestQueue) Add(ind *individual.Individual, clone, replace bool) error {
	if replace {
		q.entries = q.entries[:0]
	}
	score, err := ind.TransformedFitness(0)
	if err != nil {
		return err
	}
	stored := ind
	if clone {
		stored = ind.Clone()
	}
	q.entries = append(q.entries, Entry{Individual: stored, Score: score})
	q.resort()
	if q.capacity > 0 && len(q.entries) > q.capacity {
		q.entries = q.entries[:q.capacity]
	}
	return nil
}

func (q *BestQueue) resort() {
	sort.SliceStable(q.entries, func(i, j int) bool {
		return q.direction.Better(q.entries[i].Score, q.entries[j].Score)
	})
}

// Len returns the current number of stored entries.
func (q *BestQueue) Len() int { return len(q.entries) }

// Best returns the head entry (best known) and whether the queue is non-empty.
func (q *BestQueue) Best() (Entry, bool) {
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

// Entries returns a read-only snapshot of the queue contents, head first.
func (q *BestQueue) Entries() []Entry {
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Ordered reports whether the queue satisfies the head-never-worse
// invariant (spec invariant 5), primarily used by tests.
func (q *BestQueue) Ordered() bool {
	for i := 1; i < len(q.entries); i++ {
		if q.direction.Better(q.entries[i].Score, q.entries[i-1].Score) {
			return false
		}
	}
	return true
}

// Clear empties the queue.
func (q *BestQueue) Clear() { q.entries = nil }
