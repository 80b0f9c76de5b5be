// Package broker implements the in-process work queue shared between the
// algorithm (producer, via pkg/executor's Broker variant) and TCP server
// sessions (consumer, via pkg/server). Duplicate results are cheaply
// rejected by a bloom filter ahead of the authoritative in-flight map, so a
// worker that double-sends a result frame doesn't pay the deserialization
// cost twice.
package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
)

// ErrQueueClosed is returned by Get/Put once Close has been called.
var ErrQueueClosed = errors.New("broker: queue closed")

// WorkItem pairs an individual with the identifier the server uses to
// correlate its eventual result. On the return path (server -> executor),
// Raw/Valid carry the remote worker's decoded result instead of Ind.
type WorkItem struct {
	ID    string
	Ind   *individual.Individual
	Raw   []float64
	Valid float64
}

// Queue is a bounded, timeout-aware work queue. Producer and consumer sides
// are both safe for concurrent use from multiple goroutines.
type Queue struct {
	mu        sync.Mutex
	pending   chan WorkItem
	results   chan WorkItem
	inFlight  map[string]struct{}
	seenBloom *bloom.BloomFilter
	closed    bool
}

// New returns a Queue with the given buffer capacity for pending work and
// returned results, and an expected-item-count hint for the dedup filter.
func New(capacity int, expectedItems uint) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if expectedItems == 0 {
		expectedItems = 1024
	}
	return &Queue{
		pending:   make(chan WorkItem, capacity),
		results:   make(chan WorkItem, capacity),
		inFlight:  make(map[string]struct{}),
		seenBloom: bloom.NewWithEstimates(expectedItems, 0.01),
	}
}

// Put enqueues a work item for a server session to pick up. Blocks until
// space is available, ctx is done, or the queue is closed.
func (q *Queue) Put(ctx context.Context, item WorkItem) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.inFlight[item.ID] = struct{}{}
	q.mu.Unlock()

	select {
	case q.pending <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue is called by a server session looking for work to ship to a
// remote client. Returns ok=false if none is available within the timeout.
func (q *Queue) Dequeue(ctx context.Context) (WorkItem, bool) {
	select {
	case item, ok := <-q.pending:
		return item, ok
	case <-ctx.Done():
		return WorkItem{}, false
	}
}

// Reinject is called by a server session once it has deserialized a
// returned result; it is filtered through the bloom pre-check before the
// authoritative in-flight map lookup so a duplicate result frame is cheap
// to discard.
func (q *Queue) Reinject(item WorkItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	idBytes := []byte(item.ID)
	if q.seenBloom.Test(idBytes) {
		if _, stillInFlight := q.inFlight[item.ID]; !stillInFlight {
			return false // confirmed duplicate: bloom hit and no longer in flight
		}
	}
	if _, ok := q.inFlight[item.ID]; !ok {
		return false // unknown id: stale or forged result, drop
	}
	delete(q.inFlight, item.ID)
	q.seenBloom.Add(idBytes)

	select {
	case q.results <- item:
		return true
	default:
		return false
	}
}

// Take is called by the executor polling for completed results, with a
// per-call timeout.
func (q *Queue) Take(timeout time.Duration) (WorkItem, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	select {
	case item, ok := <-q.results:
		return item, ok
	case <-ctx.Done():
		return WorkItem{}, false
	}
}

// MarkLost removes an in-flight item that will never be returned (e.g. its
// owning session died); it re-enters the pending queue if resubmit is true,
// otherwise it is dropped and becomes unprocessed per spec.md 7's
// network-failure handling.
func (q *Queue) MarkLost(ctx context.Context, item WorkItem, resubmit bool) error {
	q.mu.Lock()
	delete(q.inFlight, item.ID)
	q.mu.Unlock()
	if !resubmit {
		return nil
	}
	return q.Put(ctx, item)
}

// Close stops accepting new work; pending Dequeue/Take calls observe closure
// via channel closure semantics.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.pending)
	close(q.results)
}

// InFlightCount returns the number of items currently dispatched but not
// yet returned, for diagnostics/HTTP status reporting.
func (q *Queue) InFlightCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}
