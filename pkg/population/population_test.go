package population

import (
	"testing"

	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
)

type fixedParams struct{ v []float64 }

func (p *fixedParams) Flatten() []float64             { return append([]float64(nil), p.v...) }
func (p *fixedParams) Len() int                       { return len(p.v) }
func (p *fixedParams) Adapt(r randsrc.Source) int      { return 1 }
func (p *fixedParams) Clone() individual.ParameterSet { return &fixedParams{v: append([]float64(nil), p.v...)} }

func newCleanIndividual(t *testing.T, raw float64, dir individual.Direction) *individual.Individual {
	t.Helper()
	ind := individual.New(&fixedParams{v: []float64{raw}}, individual.Config{
		NumCriteria: 1, Policy: individual.Simple, Direction: dir,
	})
	fn := func(params []float64, sink *individual.InvalidSink) (float64, float64) { return raw, 0 }
	if err := ind.Evaluate([]individual.EvaluateFunc{fn}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return ind
}

func TestBestQueueOrderedAndBounded(t *testing.T) {
	dir := individual.Direction{Maximize: false}
	q := NewBestQueue(dir, 3)
	values := []float64{5, 1, 4, 9, 2, 6}
	for _, v := range values {
		ind := newCleanIndividual(t, v, dir)
		if err := q.Add(ind, true, false); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("len = %d, want 3 (capacity bound)", q.Len())
	}
	if !q.Ordered() {
		t.Fatalf("queue not ordered: %+v", q.Entries())
	}
	best, ok := q.Best()
	if !ok || best.Score != 1 {
		t.Fatalf("best = %+v, want score 1", best)
	}
}

func TestBestQueueReplaceClearsPriorEntries(t *testing.T) {
	dir := individual.Direction{Maximize: false}
	q := NewBestQueue(dir, 0)
	q.Add(newCleanIndividual(t, 1, dir), true, false)
	q.Add(newCleanIndividual(t, 2, dir), true, false)
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
	q.Add(newCleanIndividual(t, 9, dir), true, true)
	if q.Len() != 1 {
		t.Fatalf("len after replace = %d, want 1", q.Len())
	}
}

func TestPopulationAdjustSizeGrowsAndShrinks(t *testing.T) {
	dir := individual.Direction{Maximize: false}
	pop := New(Config{Direction: dir, NumCriteria: 1, ParentCount: 1})
	filler := individual.New(&fixedParams{v: []float64{0}}, individual.Config{NumCriteria: 1, Policy: individual.Simple, Direction: dir})
	pop.SetIndividuals([]*individual.Individual{filler})

	if err := pop.AdjustSize(4, filler); err != nil {
		t.Fatalf("adjust size grow: %v", err)
	}
	if len(pop.Individuals()) != 4 {
		t.Fatalf("len after grow = %d, want 4", len(pop.Individuals()))
	}

	if err := pop.AdjustSize(2, filler); err != nil {
		t.Fatalf("adjust size shrink: %v", err)
	}
	if len(pop.Individuals()) != 2 {
		t.Fatalf("len after shrink = %d, want 2", len(pop.Individuals()))
	}
}

func TestPopulationAdjustSizeErrorsWithoutFiller(t *testing.T) {
	pop := New(Config{Direction: individual.Direction{Maximize: false}, NumCriteria: 1})
	if err := pop.AdjustSize(3, nil); err == nil {
		t.Fatalf("expected error growing an empty population with no filler")
	}
}

func TestUpdateStallResetsOnImprovement(t *testing.T) {
	dir := individual.Direction{Maximize: false}
	pop := New(Config{Direction: dir, NumCriteria: 1})
	pop.UpdateStall(10)
	pop.UpdateStall(10) // no improvement (equal, not strictly better)
	if pop.StallCount() != 1 {
		t.Fatalf("stall count = %d, want 1", pop.StallCount())
	}
	pop.UpdateStall(5) // improvement in minimization
	if pop.StallCount() != 0 {
		t.Fatalf("stall count after improvement = %d, want 0", pop.StallCount())
	}
}

func TestHaltFirstReasonWins(t *testing.T) {
	pop := New(Config{Direction: individual.Direction{Maximize: false}, NumCriteria: 1})
	pop.Halt(HaltMaxIterations)
	pop.Halt(HaltMaxStalls)
	halted, reason := pop.Halted()
	if !halted || reason != HaltMaxIterations {
		t.Fatalf("halted=%v reason=%v, want HaltMaxIterations preserved", halted, reason)
	}
	pop.ResetHalt()
	if halted, _ := pop.Halted(); halted {
		t.Fatalf("expected not halted after reset")
	}
}

func TestAccumulateWorstKnownTracksValidWorst(t *testing.T) {
	dir := individual.Direction{Maximize: false}
	pop := New(Config{Direction: dir, NumCriteria: 1})
	pop.ResetWorstKnown()
	pop.AccumulateWorstKnown(newCleanIndividual(t, 3, dir))
	pop.AccumulateWorstKnown(newCleanIndividual(t, 7, dir))
	pop.AccumulateWorstKnown(newCleanIndividual(t, 1, dir))
	wk := pop.WorstKnown()
	if wk[0].Transformed != 7 {
		t.Fatalf("worst known = %v, want 7 (largest value is worst under minimization)", wk[0].Transformed)
	}
}
