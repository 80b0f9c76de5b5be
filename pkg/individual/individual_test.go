package individual

import (
	"math"
	"testing"

	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
)

// vecParams is a minimal ParameterSet over a fixed-length float vector,
// used only to exercise the individual lifecycle in tests.
type vecParams struct {
	values []float64
	lower  float64
	upper  float64
}

func newVecParams(n int, lower, upper float64) *vecParams {
	v := make([]float64, n)
	for i := range v {
		v[i] = (lower + upper) / 2
	}
	return &vecParams{values: v, lower: lower, upper: upper}
}

func (p *vecParams) Flatten() []float64 { return append([]float64(nil), p.values...) }
func (p *vecParams) Len() int           { return len(p.values) }

func (p *vecParams) Adapt(r randsrc.Source) int {
	idx := r.UniformInt(len(p.values))
	delta := r.Gaussian(0, 0.1)
	newVal := p.values[idx] + delta
	if newVal < p.lower {
		newVal = p.lower
	}
	if newVal > p.upper {
		newVal = p.upper
	}
	if newVal == p.values[idx] {
		return 0
	}
	p.values[idx] = newVal
	return 1
}

func (p *vecParams) Clone() ParameterSet {
	return &vecParams{values: append([]float64(nil), p.values...), lower: p.lower, upper: p.upper}
}

func sumSquares(params []float64, sink *InvalidSink) (float64, float64) {
	total := 0.0
	for _, v := range params {
		total += v * v
	}
	return total, 0
}

func TestCleanTransformedFitnessIsStable(t *testing.T) {
	ind := New(newVecParams(5, -5, 5), Config{NumCriteria: 1, Policy: Simple, Direction: Direction{Maximize: false}})
	if err := ind.Evaluate([]EvaluateFunc{sumSquares}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	a, err := ind.TransformedFitness(0)
	if err != nil {
		t.Fatalf("transformed fitness: %v", err)
	}
	b, _ := ind.TransformedFitness(0)
	if a != b {
		t.Fatalf("transformed fitness changed between reads: %v vs %v", a, b)
	}
}

func TestDirtyAfterAdaptCleanAfterEvaluate(t *testing.T) {
	r := randsrc.NewDefault(1, 2)
	ind := New(newVecParams(5, -5, 5), Config{NumCriteria: 1, Policy: Simple, Direction: Direction{Maximize: false}})
	ind.Adapt(r)
	if ind.IsClean() {
		t.Fatalf("expected dirty after adapt")
	}
	if _, err := ind.TransformedFitness(0); err == nil {
		t.Fatalf("expected error reading transformed fitness while dirty")
	}
	if err := ind.Evaluate([]EvaluateFunc{sumSquares}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !ind.IsClean() {
		t.Fatalf("expected clean after evaluate under simple policy")
	}
}

func TestMinOnlyFitnessNegatesUnderMaximize(t *testing.T) {
	maxInd := New(newVecParams(3, -1, 1), Config{NumCriteria: 1, Policy: Simple, Direction: Direction{Maximize: true}})
	maxInd.Evaluate([]EvaluateFunc{sumSquares})
	transformed, _ := maxInd.TransformedFitness(0)
	minOnly, _ := maxInd.MinOnlyFitness(0)
	if minOnly != -transformed {
		t.Fatalf("maximize: min_only = %v, want %v", minOnly, -transformed)
	}

	minInd := New(newVecParams(3, -1, 1), Config{NumCriteria: 1, Policy: Simple, Direction: Direction{Maximize: false}})
	minInd.Evaluate([]EvaluateFunc{sumSquares})
	transformed2, _ := minInd.TransformedFitness(0)
	minOnly2, _ := minInd.MinOnlyFitness(0)
	if minOnly2 != transformed2 {
		t.Fatalf("minimize: min_only = %v, want %v", minOnly2, transformed2)
	}
}

func TestSigmoidBoundedByBarrier(t *testing.T) {
	ind := New(newVecParams(1, -1e9, 1e9), Config{
		NumCriteria: 1,
		Policy:      Sigmoid,
		Direction:   Direction{Maximize: false},
		Steepness:   1,
		Barrier:     10,
	})
	huge := func(params []float64, sink *InvalidSink) (float64, float64) {
		return 1e9, 0
	}
	ind.Evaluate([]EvaluateFunc{huge})
	transformed, _ := ind.TransformedFitness(0)
	if math.Abs(transformed) > 10 {
		t.Fatalf("sigmoid transform %v exceeds barrier 10", transformed)
	}
	if transformed < 9.999 || transformed > 10.001 {
		t.Fatalf("sigmoid transform %v not within expected (9.999, 10.001)", transformed)
	}
}

func TestUserMarkInvalidTreatedAsConstraintViolation(t *testing.T) {
	ind := New(newVecParams(2, -1, 1), Config{
		NumCriteria: 1,
		Policy:      WorstCaseForInvalid,
		Direction:   Direction{Maximize: false},
	})
	fn := func(params []float64, sink *InvalidSink) (float64, float64) {
		sink.MarkInvalid()
		return 42, 0
	}
	ind.Evaluate([]EvaluateFunc{fn})
	if ind.IsValid() {
		t.Fatalf("expected invalid after MarkInvalid")
	}
	raw, _ := ind.RawFitness(0)
	if raw != ind.direction.WorstCase() {
		t.Fatalf("raw = %v, want worst case", raw)
	}
}

func TestWorstKnownValidPolicyDelaysThenResolves(t *testing.T) {
	ind := New(newVecParams(2, -1, 1), Config{
		NumCriteria: 1,
		Policy:      WorstKnownValidForInvalid,
		Direction:   Direction{Maximize: false},
		Barrier:     1,
	})
	fn := func(params []float64, sink *InvalidSink) (float64, float64) {
		return 5, 2 // violated
	}
	ind.Evaluate([]EvaluateFunc{fn})
	if ind.Freshness() != Delayed {
		t.Fatalf("expected delayed freshness, got %v", ind.Freshness())
	}
	err := ind.ResolveDelayed([]CriterionFitness{{Raw: 3, Transformed: 3}})
	if err != nil {
		t.Fatalf("resolve delayed: %v", err)
	}
	if ind.Freshness() != Clean {
		t.Fatalf("expected clean after resolve, got %v", ind.Freshness())
	}
}
