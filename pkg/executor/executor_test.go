package executor

import (
	"context"
	"testing"

	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
	"github.com/TheEntropyCollective/evogeneva/pkg/threadpool"
)

type scalarParams struct{ v float64 }

func (p *scalarParams) Flatten() []float64        { return []float64{p.v} }
func (p *scalarParams) Len() int                  { return 1 }
func (p *scalarParams) Adapt(r randsrc.Source) int { return 1 }
func (p *scalarParams) Clone() individual.ParameterSet {
	return &scalarParams{v: p.v}
}

func newTestIndividual(v float64) *individual.Individual {
	return individual.New(&scalarParams{v: v}, individual.Config{
		NumCriteria: 1, Policy: individual.Simple, Direction: individual.Direction{Maximize: false},
	})
}

func identityEval(params []float64, sink *individual.InvalidSink) (float64, float64) {
	return params[0], 0
}

func TestSerialEvaluatesMaskedOnly(t *testing.T) {
	inds := []*individual.Individual{newTestIndividual(1), newTestIndividual(2), newTestIndividual(3)}
	mask := []bool{true, false, true}

	unprocessed, err := NewSerial().WorkOn(context.Background(), inds, mask, []individual.EvaluateFunc{identityEval}, false, "test")
	if err != nil {
		t.Fatalf("work_on: %v", err)
	}
	if len(unprocessed) != 0 {
		t.Fatalf("serial must never produce unprocessed items, got %d", len(unprocessed))
	}
	if !inds[0].IsClean() || inds[1].IsClean() || !inds[2].IsClean() {
		t.Fatalf("mask not respected: clean=%v,%v,%v", inds[0].IsClean(), inds[1].IsClean(), inds[2].IsClean())
	}
}

func TestThreadPoolExecutorEvaluatesAndDrains(t *testing.T) {
	pool := threadpool.New(2, nil)
	defer pool.Shutdown()
	exec := NewThreadPool(pool)

	inds := []*individual.Individual{newTestIndividual(1), newTestIndividual(2), newTestIndividual(3)}
	mask := []bool{true, true, true}

	unprocessed, err := exec.WorkOn(context.Background(), inds, mask, []individual.EvaluateFunc{identityEval}, false, "test")
	if err != nil {
		t.Fatalf("work_on: %v", err)
	}
	if len(unprocessed) != 0 {
		t.Fatalf("expected no unprocessed items, got %d", len(unprocessed))
	}
	for i, ind := range inds {
		if !ind.IsClean() {
			t.Fatalf("individual %d not clean after thread-pool evaluation", i)
		}
	}
	if pool.InFlight() != 0 {
		t.Fatalf("pool still reports in-flight tasks after Wait drained in WorkOn")
	}
}

func TestThreadPoolExecutorMarksFailedTasksUnprocessed(t *testing.T) {
	pool := threadpool.New(2, nil)
	defer pool.Shutdown()
	exec := NewThreadPool(pool)

	good := newTestIndividual(1)
	bad := newTestIndividual(2)
	mask := []bool{true, true}

	// Evaluate returns an error on fn-count mismatch against NumCriteria;
	// that's the failure path the thread pool converts into
	// markProcessingFailed, without needing a panicking EvaluateFunc.
	badFns := []individual.EvaluateFunc{identityEval, identityEval}

	unprocessed, err := exec.WorkOn(context.Background(), []*individual.Individual{good, bad}, mask, badFns, false, "test")
	if err != nil {
		t.Fatalf("work_on: %v", err)
	}
	if len(unprocessed) != 2 {
		t.Fatalf("expected both individuals marked unprocessed on arity mismatch, got %d", len(unprocessed))
	}
	for _, ind := range unprocessed {
		if !IsProcessingFailed(ind) {
			t.Fatalf("expected processing_failed personality flag set")
		}
	}
}
