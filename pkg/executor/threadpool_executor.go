package executor

import (
	"context"

	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
	"github.com/TheEntropyCollective/evogeneva/pkg/threadpool"
)

// ThreadPool submits each masked item to a threadpool.Pool, then drains.
// Any task that returned an error leaves its individual marked
// "processing failed" and appended to outUnprocessed; it never produces
// unprocessed items otherwise.
type ThreadPool struct {
	pool *threadpool.Pool
}

// NewThreadPool wraps an existing pool.
func NewThreadPool(pool *threadpool.Pool) *ThreadPool {
	return &ThreadPool{pool: pool}
}

func (e *ThreadPool) WorkOn(
	ctx context.Context,
	individuals []*individual.Individual,
	mask []bool,
	fns []individual.EvaluateFunc,
	resubmitUnprocessed bool,
	tag string,
) ([]*individual.Individual, error) {
	type pending struct {
		ind *individual.Individual
		fut *threadpool.Future[struct{}]
	}
	var submitted []pending

	for i, ind := range individuals {
		if i >= len(mask) || !mask[i] {
			continue
		}
		ind := ind
		fut, err := threadpool.AsyncSchedule(e.pool, func() (struct{}, error) {
			return struct{}{}, ind.Evaluate(fns)
		})
		if err != nil {
			return nil, err
		}
		submitted = append(submitted, pending{ind: ind, fut: fut})
	}

	e.pool.Wait()

	var unprocessed []*individual.Individual
	for _, p := range submitted {
		if _, err := p.fut.Get(ctx); err != nil {
			markProcessingFailed(p.ind)
			unprocessed = append(unprocessed, p.ind)
		}
	}
	return unprocessed, nil
}
