package population

import (
	"fmt"

	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
)

// HaltReason enumerates why a run stopped.
type HaltReason int

const (
	NotHalted HaltReason = iota
	HaltSignal
	HaltTerminationFile
	HaltMaxIterations
	HaltMaxStalls
	HaltMaxDuration
	HaltQualityThreshold
	HaltCustom
)

func (r HaltReason) String() string {
	switch r {
	case HaltSignal:
		return "signal received"
	case HaltTerminationFile:
		return "touched termination"
	case HaltMaxIterations:
		return "maximum iterations reached"
	case HaltMaxStalls:
		return "stall limit exceeded"
	case HaltMaxDuration:
		return "maximum duration exceeded"
	case HaltQualityThreshold:
		return "quality threshold exceeded"
	case HaltCustom:
		return "custom halt criterion"
	default:
		return "not halted"
	}
}

// Population is the ordered individual collection an algorithm iterates
// over: insertion order is significant (parent/child split for EAs,
// neighborhood membership for swarms).
type Population struct {
	Direction individual.Direction

	individuals []*individual.Individual
	parentCount int // mu: first ParentCount entries are parents

	iteration uint64
	offset    uint64

	GlobalBest    *BestQueue
	IterationBest *BestQueue

	worstKnown    []individual.CriterionFitness
	numCriteria   int

	stallCount     uint64
	stallThreshold uint64
	bestKnown      float64
	haveBest       bool

	halted     bool
	haltReason HaltReason
}

// Config configures a new Population.
type Config struct {
	Direction          individual.Direction
	NumCriteria        int
	ParentCount        int
	GlobalBestCapacity int
	StallThreshold     uint64
}

// New constructs an empty population.
func New(cfg Config) *Population {
	n := cfg.NumCriteria
	if n <= 0 {
		n = 1
	}
	p := &Population{
		Direction:      cfg.Direction,
		parentCount:    cfg.ParentCount,
		numCriteria:    n,
		GlobalBest:     NewBestQueue(cfg.Direction, cfg.GlobalBestCapacity),
		IterationBest:  NewBestQueue(cfg.Direction, 0),
		worstKnown:     make([]individual.CriterionFitness, n),
		stallThreshold: cfg.StallThreshold,
	}
	return p
}

// Individuals returns the live slice (not a copy) for in-place algorithm access.
func (p *Population) Individuals() []*individual.Individual { return p.individuals }

// SetIndividuals replaces the population contents wholesale.
func (p *Population) SetIndividuals(inds []*individual.Individual) { p.individuals = inds }

// ParentCount returns mu, the number of leading parent slots.
func (p *Population) ParentCount() int { return p.parentCount }

// Parents returns the first ParentCount individuals.
func (p *Population) Parents() []*individual.Individual {
	if p.parentCount > len(p.individuals) {
		return p.individuals
	}
	return p.individuals[:p.parentCount]
}

// Children returns everything past ParentCount.
func (p *Population) Children() []*individual.Individual {
	if p.parentCount > len(p.individuals) {
		return nil
	}
	return p.individuals[p.parentCount:]
}

// Iteration returns the current iteration counter.
func (p *Population) Iteration() uint64 { return p.iteration }

// SetIteration sets the iteration counter, used at run start (offset) and
// incremented by the loop driver each pass.
func (p *Population) SetIteration(i uint64) { p.iteration = i }

// Offset returns the starting iteration (non-zero after checkpoint resume).
func (p *Population) Offset() uint64 { return p.offset }

// SetOffset sets the starting iteration.
func (p *Population) SetOffset(o uint64) { p.offset = o }

// AdjustSize resizes the population to size by appending clones of filler
// when too small, or truncating when too large. filler must be non-nil if
// growth is needed; an empty population with a growth requirement is a
// user error.
func (p *Population) AdjustSize(size int, filler *individual.Individual) error {
	if len(p.individuals) > size {
		p.individuals = p.individuals[:size]
		return nil
	}
	for len(p.individuals) < size {
		if filler == nil {
			return fmt.Errorf("population: cannot grow to size %d, no filler individual supplied and population is empty", size)
		}
		p.individuals = append(p.individuals, filler.Clone())
	}
	return nil
}

// MarkIteration stamps the current iteration number onto every individual.
func (p *Population) MarkIteration() {
	for _, ind := range p.individuals {
		ind.SetAssignedIteration(p.iteration)
	}
}

// ResetWorstKnown clears the per-iteration worst-known-valid accumulator to
// each criterion's direction-adjusted worst case.
func (p *Population) ResetWorstKnown() {
	w := p.Direction.WorstCase()
	for i := range p.worstKnown {
		p.worstKnown[i] = individual.CriterionFitness{Raw: w, Transformed: w}
	}
}

// AccumulateWorstKnown folds ind's fitness into the running worst-known-valid
// vector if ind is valid and worse than the current accumulator.
func (p *Population) AccumulateWorstKnown(ind *individual.Individual) {
	if !ind.IsValid() {
		return
	}
	for i := 0; i < p.numCriteria && i < ind.NumCriteria(); i++ {
		t, err := ind.TransformedFitness(i)
		if err != nil {
			continue
		}
		cur := p.worstKnown[i].Transformed
		// An accumulator still holding ResetWorstKnown's value counts as empty.
		if cur != p.Direction.WorstCase() && !p.Direction.Better(cur, t) {
			continue
		}
		raw, _ := ind.RawFitness(i)
		p.worstKnown[i] = individual.CriterionFitness{Raw: raw, Transformed: t}
	}
}

// WorstKnown returns the current worst-known-valid snapshot.
func (p *Population) WorstKnown() []individual.CriterionFitness {
	out := make([]individual.CriterionFitness, len(p.worstKnown))
	copy(out, p.worstKnown)
	return out
}

// BroadcastWorstKnown pushes the current worst-known-valid vector to every
// individual, resolving any Delayed individuals.
func (p *Population) BroadcastWorstKnown() {
	for _, ind := range p.individuals {
		ind.SetWorstKnownValid(p.worstKnown)
		ind.ResolveDelayed(p.worstKnown)
	}
}

// UpdateStall compares candidateBest (this iteration's best transformed
// fitness for criterion 0) against the stored best; if strictly better the
// stall counter resets and the new best is stored, otherwise the counter
// increments.
func (p *Population) UpdateStall(candidateBest float64) {
	if !p.haveBest || p.Direction.Better(candidateBest, p.bestKnown) {
		p.bestKnown = candidateBest
		p.haveBest = true
		p.stallCount = 0
		return
	}
	p.stallCount++
}

// StallCount returns the number of iterations since the last improvement.
func (p *Population) StallCount() uint64 { return p.stallCount }

// StallThreshold returns the configured act-on-stalls threshold.
func (p *Population) StallThreshold() uint64 { return p.stallThreshold }

// BroadcastStallCount pushes the current stall count to every individual.
func (p *Population) BroadcastStallCount() {
	for _, ind := range p.individuals {
		ind.SetTotalStalls(p.stallCount)
	}
}

// BestKnown returns the best transformed fitness seen so far and whether
// any value has been recorded yet.
func (p *Population) BestKnown() (float64, bool) { return p.bestKnown, p.haveBest }

// Halted reports whether the run has been halted and why.
func (p *Population) Halted() (bool, HaltReason) { return p.halted, p.haltReason }

// Halt marks the run halted with the given reason. The first call wins;
// subsequent calls within the same iteration are no-ops so the originally
// triggering criterion is preserved.
func (p *Population) Halt(reason HaltReason) {
	if p.halted {
		return
	}
	p.halted = true
	p.haltReason = reason
}

// ResetHalt clears halted state, used when chaining another optimize() call.
func (p *Population) ResetHalt() {
	p.halted = false
	p.haltReason = NotHalted
}
