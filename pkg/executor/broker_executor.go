package executor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/TheEntropyCollective/evogeneva/pkg/broker"
	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
	"github.com/TheEntropyCollective/evogeneva/pkg/resilience"
)

// Broker hands masked items to an in-process broker.Queue; pkg/server
// consumes from the same queue and returns processed items. The executor
// polls for returned items with a timeout per batch; items still missing at
// the deadline become unprocessed.
type Broker struct {
	queue         *broker.Queue
	pollTimeout   time.Duration
	batchDeadline time.Duration
	logger        *logging.Logger
}

// NewBroker wraps queue with the given per-poll and per-batch timeouts.
func NewBroker(queue *broker.Queue, pollTimeout, batchDeadline time.Duration) *Broker {
	if pollTimeout <= 0 {
		pollTimeout = 100 * time.Millisecond
	}
	if batchDeadline <= 0 {
		batchDeadline = 30 * time.Second
	}
	return &Broker{
		queue:         queue,
		pollTimeout:   pollTimeout,
		batchDeadline: batchDeadline,
		logger:        logging.GetGlobalLogger().WithComponent("broker_executor"),
	}
}

func (e *Broker) WorkOn(
	ctx context.Context,
	individuals []*individual.Individual,
	mask []bool,
	fns []individual.EvaluateFunc,
	resubmitUnprocessed bool,
	tag string,
) ([]*individual.Individual, error) {
	byID := make(map[string]*individual.Individual)
	deadline := time.Now().Add(e.batchDeadline)

	for i, ind := range individuals {
		if i >= len(mask) || !mask[i] {
			continue
		}
		id := uuid.NewString()
		byID[id] = ind
		if err := e.queue.Put(ctx, broker.WorkItem{ID: id, Ind: ind}); err != nil {
			classified := resilience.Classify(err, classifyQueueError(err), "broker_executor.put")
			return nil, classified
		}
	}

	var unprocessed []*individual.Individual
	for len(byID) > 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		poll := e.pollTimeout
		if remaining < poll {
			poll = remaining
		}
		item, ok := e.queue.Take(poll)
		if !ok {
			continue
		}
		if ind, found := byID[item.ID]; found {
			if err := ind.ApplyRemoteResult(item.Raw, item.Valid); err != nil {
				markProcessingFailed(ind)
				unprocessed = append(unprocessed, ind)
			}
		}
		delete(byID, item.ID)
	}

	for id, ind := range byID {
		if resubmitUnprocessed {
			e.queue.MarkLost(ctx, broker.WorkItem{ID: id, Ind: ind}, true)
		}
		timeoutErr := resilience.Classify(context.DeadlineExceeded, resilience.TimeoutError, "broker_executor.batch_deadline")
		e.logger.Warn("work item never returned within batch deadline", map[string]interface{}{
			"tag": tag, "id": id, "error": timeoutErr.Error(),
		})
		unprocessed = append(unprocessed, ind)
	}
	return unprocessed, nil
}

// classifyQueueError distinguishes the queue being shut down (a
// configuration-level condition, not a transient network symptom) from
// ctx cancellation, which is the network/caller-timeout case.
func classifyQueueError(err error) resilience.ErrorType {
	if err == broker.ErrQueueClosed {
		return resilience.ConfigurationError
	}
	return resilience.TimeoutError
}
