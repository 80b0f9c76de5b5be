package swarm

import (
	"context"
	"testing"

	"github.com/TheEntropyCollective/evogeneva/pkg/executor"
	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
	"github.com/TheEntropyCollective/evogeneva/pkg/population"
	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
)

type boxParams struct {
	values      []float64
	lower, upper []float64
}

func newBoxParams(n int, lo, hi, start float64) *boxParams {
	values := make([]float64, n)
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range values {
		values[i] = start
		lower[i] = lo
		upper[i] = hi
	}
	return &boxParams{values: values, lower: lower, upper: upper}
}

func (p *boxParams) Flatten() []float64 { return append([]float64(nil), p.values...) }
func (p *boxParams) Len() int           { return len(p.values) }
func (p *boxParams) Adapt(r randsrc.Source) int {
	idx := r.UniformInt(len(p.values))
	p.values[idx] += r.Gaussian(0, 0.1)
	return 1
}
func (p *boxParams) Clone() individual.ParameterSet {
	return &boxParams{values: append([]float64(nil), p.values...), lower: p.lower, upper: p.upper}
}
func (p *boxParams) SetFlat(values []float64) { copy(p.values, values) }
func (p *boxParams) Bounds() ([]float64, []float64) { return p.lower, p.upper }

func sumSquares(params []float64, sink *individual.InvalidSink) (float64, float64) {
	total := 0.0
	for _, v := range params {
		total += v * v
	}
	return total, 0
}

func newSwarmPop(n int, dir individual.Direction) *population.Population {
	pop := population.New(population.Config{Direction: dir, NumCriteria: 1, ParentCount: 0, GlobalBestCapacity: 10})
	cfg := individual.Config{NumCriteria: 1, Policy: individual.Simple, Direction: dir}
	inds := make([]*individual.Individual, 0, n)
	for i := 0; i < n; i++ {
		inds = append(inds, individual.New(newBoxParams(3, -5, 5, float64(i)-float64(n)/2), cfg))
	}
	pop.SetIndividuals(inds)
	return pop
}

func TestSwarmConvergesTowardOrigin(t *testing.T) {
	dir := individual.Direction{Maximize: false}
	pop := newSwarmPop(20, dir)
	sw := New(Config{
		NNeighborhoods:          4,
		NNeighborhoodMembers:    5,
		CPersonal:               1.49,
		CNeighborhood:           1.49,
		CGlobal:                 0.5,
		CVelocity:               0.72,
		VelocityRangePercentage: 0.5,
		UpdateRule:              Linear,
		Rand:                    randsrc.NewDefault(7, 8),
	}, nil)
	exec := executor.NewSerial()
	fns := []individual.EvaluateFunc{sumSquares}

	sw.AssignPersonalities(pop)

	var firstBest, lastBest float64
	for i := 0; i < 15; i++ {
		pop.MarkIteration()
		_, best, err := sw.CycleLogic(context.Background(), pop, exec, fns)
		if err != nil {
			t.Fatalf("cycle_logic iteration %d: %v", i, err)
		}
		if i == 0 {
			firstBest = best
		}
		lastBest = best
		pop.SetIteration(pop.Iteration() + 1)
	}
	if lastBest > firstBest {
		t.Fatalf("swarm did not improve: first=%v last=%v", firstBest, lastBest)
	}
}

func TestClampVelocityRescalesUniformly(t *testing.T) {
	v := []float64{10, 1}
	lower := []float64{-1, -1}
	upper := []float64{1, 1}
	clampVelocity(v, lower, upper, 0.5) // cap = 1 per dimension

	if v[0] > 1.0001 || v[0] < 0.9999 {
		t.Fatalf("v[0] = %v, want clamped to 1", v[0])
	}
	// v[1] started within the cap; uniform rescale must shrink it by the
	// same factor as v[0], not clamp it independently to the cap.
	if v[1] > 0.1001 || v[1] < 0.0999 {
		t.Fatalf("v[1] = %v, want uniformly rescaled to 0.1", v[1])
	}
}

func TestRepulsionFlipsVelocityDirection(t *testing.T) {
	dir := individual.Direction{Maximize: false}
	pop := newSwarmPop(6, dir)
	sw := New(Config{
		NNeighborhoods:       2,
		NNeighborhoodMembers: 3,
		CPersonal:            1,
		CNeighborhood:        1,
		CVelocity:            0.5,
		VelocityRangePercentage: 1,
		RepulsionThreshold:   1,
		Rand:                 randsrc.NewDefault(9, 10),
	}, nil)
	exec := executor.NewSerial()
	fns := []individual.EvaluateFunc{sumSquares}

	sw.AssignPersonalities(pop)
	pop.MarkIteration()
	if _, _, err := sw.CycleLogic(context.Background(), pop, exec, fns); err != nil {
		t.Fatalf("cycle_logic: %v", err)
	}
	pop.SetIteration(pop.Iteration() + 1)

	// Force a stall so the next cycle enters the repulsion branch. Under
	// minimization the first call stores -1e300 as the best known; the
	// second, equal value is no improvement, so the stall count becomes 1.
	for i := uint64(0); i < 2; i++ {
		pop.UpdateStall(-1e300)
	}
	if pop.StallCount() == 0 {
		t.Fatalf("expected stall count to be nonzero")
	}
	pop.MarkIteration()
	if _, _, err := sw.CycleLogic(context.Background(), pop, exec, fns); err != nil {
		t.Fatalf("cycle_logic under repulsion: %v", err)
	}

	// With the same state and the same random draws, the repulsion branch
	// must yield exactly the negated velocity of the normal branch.
	ind := pop.Individuals()[0]
	velocityFor := func(repulsion bool) []float64 {
		state := *sw.states[ind]
		state.velocity = append([]float64(nil), state.velocity...)
		vp := ind.Params.Clone().(VectorPosition)
		sw.rand = randsrc.NewDefault(11, 12)
		sw.updateVelocityAndPosition(vp, &state, repulsion)
		return state.velocity
	}
	forward, reversed := velocityFor(false), velocityFor(true)
	for i := range forward {
		if reversed[i] != -forward[i] {
			t.Fatalf("velocity[%d] = %v under repulsion, want %v", i, reversed[i], -forward[i])
		}
	}
}
