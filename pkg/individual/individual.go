// Package individual implements the candidate-solution lifecycle: parameter
// adaption, the dirty/clean/delayed freshness tri-state, constraint
// validity, and the four fitness-transformation policies.
package individual

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
)

// ParameterSet is the external collaborator holding typed parameter genes
// (float, int, bool, ...). Only a flattened real-valued view is needed by
// the runtime; concrete gene types and their adaptors are out of scope.
type ParameterSet interface {
	// Flatten returns the parameter vector as a real-valued slice for
	// uniform streaming (serialization, velocity arithmetic, etc).
	Flatten() []float64
	// Len returns the number of scalar parameters.
	Len() int
	// Adapt mutates the parameter set in place using r for randomness and
	// reports how many scalar parameters actually changed.
	Adapt(r randsrc.Source) int
	// Clone returns a deep copy.
	Clone() ParameterSet
}

// Freshness is the tri-state evaluation-cache flag described in spec §3.
type Freshness int

const (
	// Clean means the transformed fitness matches the current parameters.
	Clean Freshness = iota
	// Dirty means parameters changed since the last evaluation.
	Dirty
	// Delayed means evaluation is pending cross-population information
	// (the worst-known-valid fitness under worst_known_valid_for_invalid).
	Delayed
)

func (f Freshness) String() string {
	switch f {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Delayed:
		return "delayed"
	default:
		return "unknown"
	}
}

// EvalPolicy selects one of the four fitness-transformation rules in spec §4.2.
type EvalPolicy int

const (
	Simple EvalPolicy = iota
	WorstCaseForInvalid
	Sigmoid
	WorstKnownValidForInvalid
)

// CriterionFitness holds one criterion's raw/transformed pair.
type CriterionFitness struct {
	Raw         float64
	Transformed float64
}

// EvaluateFunc is the user-supplied raw fitness function for one criterion.
// It receives the flattened parameters and the lock through which it may
// mark the solution invalid; it returns the raw fitness and a validity
// level (v <= 1 valid, v > 1 degree of infeasibility). Returning
// math.Inf(1) as the validity level is equivalent to MarkInvalid.
type EvaluateFunc func(params []float64, lock *InvalidSink) (raw float64, validity float64)

// InvalidSink is the user-facing handle into the invalid-by-user lock,
// exposed only while an evaluation is in flight.
type InvalidSink struct {
	lock *invalidLock
}

// MarkInvalid flags the in-flight evaluation as invalid.
func (s *InvalidSink) MarkInvalid() {
	s.lock.MarkInvalid()
}

// Identity carries the per-evaluation and per-lifetime bookkeeping fields
// from spec §3 "Identity".
type Identity struct {
	EvaluationID     string
	TotalAdaptions   uint64
	TotalStalls      uint64
	AssignedIteration uint64
}

// Individual is one candidate solution.
type Individual struct {
	Params ParameterSet

	freshness  Freshness
	fitness    []CriterionFitness
	validity   float64
	worstKnown []CriterionFitness

	policy    EvalPolicy
	direction Direction
	steepness float64
	barrier   float64

	personality map[string]any
	identity    Identity
	lock        invalidLock

	maxUnsuccessfulAdaptions uint
}

// Config bundles the per-population settings that govern how an individual
// evaluates and adapts; these are set once per population (spec §4.2).
type Config struct {
	NumCriteria              int
	Policy                   EvalPolicy
	Direction                Direction
	Steepness                float64
	Barrier                  float64
	MaxUnsuccessfulAdaptions uint
}

// New constructs a fresh, dirty individual wrapping params.
func New(params ParameterSet, cfg Config) *Individual {
	n := cfg.NumCriteria
	if n <= 0 {
		n = 1
	}
	ind := &Individual{
		Params:                   params,
		freshness:                Dirty,
		fitness:                  make([]CriterionFitness, n),
		worstKnown:               make([]CriterionFitness, n),
		policy:                   cfg.Policy,
		direction:                cfg.Direction,
		steepness:                cfg.Steepness,
		barrier:                  cfg.Barrier,
		personality:              make(map[string]any),
		maxUnsuccessfulAdaptions: cfg.MaxUnsuccessfulAdaptions,
	}
	w := cfg.Direction.WorstCase()
	for i := range ind.fitness {
		ind.fitness[i] = CriterionFitness{Raw: w, Transformed: w}
		ind.worstKnown[i] = CriterionFitness{Raw: w, Transformed: w}
	}
	return ind
}

// Freshness reports the current freshness state.
func (ind *Individual) Freshness() Freshness { return ind.freshness }

// IsClean reports whether the cached fitness is current.
func (ind *Individual) IsClean() bool { return ind.freshness == Clean }

// Adapt calls the parameter set's adaption routine repeatedly until at
// least one parameter changes, or until MaxUnsuccessfulAdaptions attempts
// have occurred (0 means no cap). Returns the number of parameters changed
// on the final attempt and sets freshness to Dirty.
func (ind *Individual) Adapt(r randsrc.Source) int {
	changed := 0
	attempts := uint(0)
	for {
		changed = ind.Params.Adapt(r)
		attempts++
		if changed > 0 {
			break
		}
		if ind.maxUnsuccessfulAdaptions != 0 && attempts >= ind.maxUnsuccessfulAdaptions {
			break
		}
	}
	ind.freshness = Dirty
	ind.identity.TotalAdaptions++
	return changed
}

// BeginEvaluation opens the invalid-by-user lock and returns the sink the
// evaluation function should use to report invalidity. It also stamps a
// fresh evaluation id.
func (ind *Individual) BeginEvaluation() *InvalidSink {
	ind.lock.begin()
	ind.identity.EvaluationID = uuid.NewString()
	return &InvalidSink{lock: &ind.lock}
}

// Evaluate runs fn for every criterion under the configured policy,
// updating raw/transformed fitness and freshness per spec §4.2. Evaluate
// opens the invalid-by-user lock itself (via BeginEvaluation) and seals it
// once the functions have returned.
func (ind *Individual) Evaluate(fns []EvaluateFunc) error {
	if len(fns) != len(ind.fitness) {
		return fmt.Errorf("individual: evaluate called with %d functions, want %d", len(fns), len(ind.fitness))
	}
	sink := ind.BeginEvaluation()
	params := ind.Params.Flatten()

	worstValidity := 0.0
	raws := make([]float64, len(fns))
	for i, fn := range fns {
		raw, v := fn(params, sink)
		raws[i] = raw
		if v > worstValidity {
			worstValidity = v
		}
	}
	userInvalid := ind.lock.end()
	validity := worstValidity
	if userInvalid && validity <= 1 {
		validity = math.Inf(1)
	}

	return ind.finalize(raws, validity)
}

// ApplyRemoteResult finalizes an individual's fitness from raw values and a
// validity level obtained from a remote worker (pkg/server), bypassing the
// local EvaluateFunc call. Used when a broker-dispatched individual's
// result frame has been deserialized on the consumer side.
func (ind *Individual) ApplyRemoteResult(raws []float64, validity float64) error {
	if len(raws) != len(ind.fitness) {
		return fmt.Errorf("individual: remote result has %d criteria, want %d", len(raws), len(ind.fitness))
	}
	return ind.finalize(raws, validity)
}

func (ind *Individual) finalize(raws []float64, validity float64) error {
	ind.validity = validity
	violated := ind.validity > 1

	switch ind.policy {
	case Simple:
		for i := range ind.fitness {
			ind.fitness[i] = CriterionFitness{Raw: raws[i], Transformed: raws[i]}
		}
		ind.freshness = Clean

	case WorstCaseForInvalid:
		w := ind.direction.WorstCase()
		for i := range ind.fitness {
			if violated {
				ind.fitness[i] = CriterionFitness{Raw: w, Transformed: w}
			} else {
				ind.fitness[i] = CriterionFitness{Raw: raws[i], Transformed: raws[i]}
			}
		}
		ind.freshness = Clean

	case Sigmoid:
		w := ind.direction.WorstCase()
		for i := range ind.fitness {
			if violated {
				transformed := ind.direction.Sign() * ind.validity * ind.barrier
				ind.fitness[i] = CriterionFitness{Raw: w, Transformed: transformed}
			} else {
				ind.fitness[i] = CriterionFitness{Raw: raws[i], Transformed: sigmoid(raws[i], ind.steepness, ind.barrier)}
			}
		}
		ind.freshness = Clean

	case WorstKnownValidForInvalid:
		w := ind.direction.WorstCase()
		for i := range ind.fitness {
			if violated {
				ind.fitness[i] = CriterionFitness{Raw: w, Transformed: ind.direction.WorstCase()}
				ind.freshness = Delayed
			} else {
				ind.fitness[i] = CriterionFitness{Raw: raws[i], Transformed: raws[i]}
			}
		}
		if !violated {
			ind.freshness = Clean
		}

	default:
		return fmt.Errorf("individual: unknown evaluation policy %d", ind.policy)
	}

	return nil
}

// ResolveDelayed finishes a Delayed individual once the algorithm has
// computed the iteration's worst-known-valid fitness; only meaningful under
// WorstKnownValidForInvalid.
func (ind *Individual) ResolveDelayed(worstKnown []CriterionFitness) error {
	if ind.freshness != Delayed {
		return nil
	}
	if len(worstKnown) != len(ind.fitness) {
		return fmt.Errorf("individual: resolve delayed with %d criteria, want %d", len(worstKnown), len(ind.fitness))
	}
	floor := math.Max(ind.barrier, 1)
	for i := range ind.fitness {
		wk := worstKnown[i].Transformed
		mag := math.Max(wk, floor)
		ind.fitness[i].Transformed = ind.direction.Sign() * mag * ind.validity
	}
	ind.freshness = Clean
	return nil
}

func sigmoid(f, steepness, barrier float64) float64 {
	if steepness <= 0 {
		steepness = 1
	}
	return barrier * (2/(1+math.Exp(-steepness*f)) - 1)
}

// TransformedFitness returns the transformed fitness for criterion i. It is
// a const accessor: calling it on a Dirty individual is a user error per
// spec invariant 1/2.
func (ind *Individual) TransformedFitness(i int) (float64, error) {
	if ind.freshness == Dirty {
		return 0, fmt.Errorf("individual: transformed fitness read while dirty")
	}
	if i < 0 || i >= len(ind.fitness) {
		return 0, fmt.Errorf("individual: criterion index %d out of range", i)
	}
	return ind.fitness[i].Transformed, nil
}

// RawFitness returns the raw fitness for criterion i.
func (ind *Individual) RawFitness(i int) (float64, error) {
	if i < 0 || i >= len(ind.fitness) {
		return 0, fmt.Errorf("individual: criterion index %d out of range", i)
	}
	return ind.fitness[i].Raw, nil
}

// MinOnlyFitness returns the direction-adjusted scalar for criterion i used
// by algorithms that assume smaller-is-better internally.
func (ind *Individual) MinOnlyFitness(i int) (float64, error) {
	t, err := ind.TransformedFitness(i)
	if err != nil {
		return 0, err
	}
	return ind.direction.MinOnly(t), nil
}

// ValidityLevel returns the current constraint validity level.
func (ind *Individual) ValidityLevel() float64 { return ind.validity }

// IsValid reports whether ValidityLevel() <= 1.
func (ind *Individual) IsValid() bool { return ind.validity <= 1 }

// SetWorstKnownValid records the per-criterion worst-known-valid snapshot
// supplied by the surrounding algorithm after an iteration.
func (ind *Individual) SetWorstKnownValid(wk []CriterionFitness) {
	copy(ind.worstKnown, wk)
}

// WorstKnownValid returns the stored worst-known-valid snapshot.
func (ind *Individual) WorstKnownValid() []CriterionFitness {
	out := make([]CriterionFitness, len(ind.worstKnown))
	copy(out, ind.worstKnown)
	return out
}

// Personality returns the algorithm-specific scratch map. Exactly one
// algorithm should own this at a time; call ClearPersonality on exit.
func (ind *Individual) Personality() map[string]any { return ind.personality }

// ClearPersonality wipes the personality map, called when an algorithm
// relinquishes ownership of the individual.
func (ind *Individual) ClearPersonality() {
	ind.personality = make(map[string]any)
}

// Identity returns a copy of the individual's identity bookkeeping.
func (ind *Individual) Identity() Identity { return ind.identity }

// SetAssignedIteration stamps the current iteration number onto the
// individual, per spec §4.4 step "mark each individual with the current
// iteration number".
func (ind *Individual) SetAssignedIteration(iter uint64) {
	ind.identity.AssignedIteration = iter
}

// SetTotalStalls records the algorithm-provided stall count.
func (ind *Individual) SetTotalStalls(stalls uint64) {
	ind.identity.TotalStalls = stalls
}

// NumCriteria returns the number of fitness criteria tracked.
func (ind *Individual) NumCriteria() int { return len(ind.fitness) }

// Clone deep-copies the individual, including a fresh personality map copy
// and a new (non-evaluation-scoped) lock.
func (ind *Individual) Clone() *Individual {
	out := &Individual{
		Params:                   ind.Params.Clone(),
		freshness:                ind.freshness,
		fitness:                  append([]CriterionFitness(nil), ind.fitness...),
		validity:                 ind.validity,
		worstKnown:               append([]CriterionFitness(nil), ind.worstKnown...),
		policy:                   ind.policy,
		direction:                ind.direction,
		steepness:                ind.steepness,
		barrier:                  ind.barrier,
		personality:              make(map[string]any, len(ind.personality)),
		identity:                 ind.identity,
		maxUnsuccessfulAdaptions: ind.maxUnsuccessfulAdaptions,
	}
	for k, v := range ind.personality {
		out.personality[k] = v
	}
	return out
}
