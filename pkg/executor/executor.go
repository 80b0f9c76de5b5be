// Package executor implements the uniform evaluation contract of
// spec.md 4.3 over three backends: serial, thread-pool, and broker.
package executor

import (
	"context"

	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
)

// Executor evaluates a masked subset of a batch of individuals. Entries
// flagged true in mask are evaluated (dirty -> clean or dirty -> delayed);
// other entries must not be touched. Individuals the executor cannot
// evaluate within its time/retry budget are appended to outUnprocessed with
// freshness left Dirty (or marked ProcessingFailed). Input ordering of
// individuals not evaluated must be preserved.
type Executor interface {
	WorkOn(
		ctx context.Context,
		individuals []*individual.Individual,
		mask []bool,
		fns []individual.EvaluateFunc,
		resubmitUnprocessed bool,
		tag string,
	) (outUnprocessed []*individual.Individual, err error)
}

// markProcessingFailed marks ind as failed in a way callers can detect via the
// sentinel personality key; used by ThreadPool and Broker executors.
func markProcessingFailed(ind *individual.Individual) {
	ind.Personality()["processing_failed"] = true
}

// IsProcessingFailed reports whether ind was marked failed by an executor.
func IsProcessingFailed(ind *individual.Individual) bool {
	v, ok := ind.Personality()["processing_failed"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
