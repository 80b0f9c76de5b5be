// Package swarm implements the particle-swarm Algorithm variant of
// spec.md 4.7: position/velocity individuals partitioned into fixed-size
// neighborhoods, updated each iteration toward personal, neighborhood, and
// global bests, with an optional repulsion phase on prolonged stalling.
package swarm

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/TheEntropyCollective/evogeneva/pkg/executor"
	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
	"github.com/TheEntropyCollective/evogeneva/pkg/population"
	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
)

// VectorPosition is the ParameterSet refinement the swarm variant requires:
// a real-valued position it can overwrite directly and whose per-dimension
// bounds it needs for velocity clamping. Concrete gene adaptors remain out
// of scope; callers supply a ParameterSet implementing this for swarm runs.
type VectorPosition interface {
	individual.ParameterSet
	SetFlat(values []float64)
	Bounds() (lower, upper []float64)
}

// UpdateRule selects whether the stochastic coefficients are drawn once per
// update (linear) or once per dimension (classic).
type UpdateRule int

const (
	Linear UpdateRule = iota
	Classic
)

// Config configures a Swarm instance.
type Config struct {
	NNeighborhoods          int
	NNeighborhoodMembers    int
	CPersonal               float64
	CNeighborhood           float64
	CGlobal                 float64
	CVelocity               float64
	VelocityRangePercentage float64
	UpdateRule              UpdateRule
	RepulsionThreshold      uint64
	Rand                    randsrc.Source
}

type particleState struct {
	velocity            []float64
	personalBestPos     []float64
	personalBestFitness float64
	neighborhood        int
}

type neighborhoodState struct {
	bestPos     []float64
	bestFitness float64
	haveBest    bool
}

// Swarm implements algorithm.Algorithm for the particle-swarm variant.
type Swarm struct {
	cfg    Config
	rand   randsrc.Source
	logger *logging.Logger

	states         map[*individual.Individual]*particleState
	neighborhoods  []*neighborhoodState
	globalBestPos  []float64
	globalBest     float64
	haveGlobalBest bool
}

// New constructs a Swarm. logger may be nil to use the global logger.
func New(cfg Config, logger *logging.Logger) *Swarm {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if cfg.Rand == nil {
		cfg.Rand = randsrc.NewUnseeded()
	}
	if cfg.NNeighborhoods <= 0 {
		cfg.NNeighborhoods = 1
	}
	return &Swarm{
		cfg:    cfg,
		rand:   cfg.Rand,
		logger: logger.WithComponent("swarm"),
		states: make(map[*individual.Individual]*particleState),
	}
}

// AssignPersonalities partitions the population into fixed-size
// neighborhoods and initializes each particle's velocity and personal best.
func (s *Swarm) AssignPersonalities(pop *population.Population) {
	s.neighborhoods = make([]*neighborhoodState, s.cfg.NNeighborhoods)
	for i := range s.neighborhoods {
		s.neighborhoods[i] = &neighborhoodState{bestFitness: pop.Direction.WorstCase()}
	}
	s.globalBest = pop.Direction.WorstCase()
	s.haveGlobalBest = false

	for i, ind := range pop.Individuals() {
		vp, ok := ind.Params.(VectorPosition)
		if !ok {
			continue
		}
		n := vp.Len()
		state := &particleState{
			velocity:            make([]float64, n),
			personalBestPos:     append([]float64(nil), vp.Flatten()...),
			personalBestFitness: pop.Direction.WorstCase(),
			neighborhood:        i % s.cfg.NNeighborhoods,
		}
		s.states[ind] = state
		ind.Personality()["neighborhood"] = state.neighborhood
	}
}

// ActOnStalls is a no-op for swarm: repulsion (triggered by
// pop.StallCount() inside CycleLogic) is the variant's own stall response.
func (s *Swarm) ActOnStalls(pop *population.Population) {
	s.logger.Info("acting on stall", map[string]interface{}{"stallCount": pop.StallCount()})
}

// CycleLogic updates every particle's velocity and position, evaluates the
// generation, then refreshes personal/neighborhood/global bests.
func (s *Swarm) CycleLogic(ctx context.Context, pop *population.Population, exec executor.Executor, fns []individual.EvaluateFunc) (float64, float64, error) {
	repulsion := s.cfg.RepulsionThreshold > 0 && pop.StallCount() >= s.cfg.RepulsionThreshold

	for _, ind := range pop.Individuals() {
		vp, ok := ind.Params.(VectorPosition)
		if !ok {
			return 0, 0, fmt.Errorf("swarm: individual parameter set does not implement VectorPosition")
		}
		state, ok := s.states[ind]
		if !ok {
			return 0, 0, fmt.Errorf("swarm: individual has no personality state (AssignPersonalities not called)")
		}
		s.updateVelocityAndPosition(vp, state, repulsion)
	}

	mask := make([]bool, len(pop.Individuals()))
	for i := range mask {
		mask[i] = true
	}
	if _, err := exec.WorkOn(ctx, pop.Individuals(), mask, fns, true, "swarm-cycle"); err != nil {
		return 0, 0, fmt.Errorf("swarm: work_on: %w", err)
	}

	bestRaw, bestTransformed, err := s.updateBests(pop)
	if err != nil {
		return 0, 0, err
	}
	return bestRaw, bestTransformed, nil
}

func (s *Swarm) updateVelocityAndPosition(vp VectorPosition, state *particleState, repulsion bool) {
	x := vp.Flatten()
	lower, upper := vp.Bounds()
	n := len(x)

	neighborhoodBest := state.personalBestPos
	if nb := s.neighborhoods[state.neighborhood]; nb.haveBest {
		neighborhoodBest = nb.bestPos
	}
	globalBest := state.personalBestPos
	if s.haveGlobalBest {
		globalBest = s.globalBestPos
	}

	newVelocity := make([]float64, n)
	if s.cfg.UpdateRule == Linear {
		r1, r2, r3 := s.rand.Uniform01(), s.rand.Uniform01(), s.rand.Uniform01()
		for i := 0; i < n; i++ {
			newVelocity[i] = s.cfg.CVelocity*state.velocity[i] +
				s.cfg.CPersonal*r1*(state.personalBestPos[i]-x[i]) +
				s.cfg.CNeighborhood*r2*(neighborhoodBest[i]-x[i]) +
				s.cfg.CGlobal*r3*(globalBest[i]-x[i])
		}
	} else {
		for i := 0; i < n; i++ {
			r1, r2, r3 := s.rand.Uniform01(), s.rand.Uniform01(), s.rand.Uniform01()
			newVelocity[i] = s.cfg.CVelocity*state.velocity[i] +
				s.cfg.CPersonal*r1*(state.personalBestPos[i]-x[i]) +
				s.cfg.CNeighborhood*r2*(neighborhoodBest[i]-x[i]) +
				s.cfg.CGlobal*r3*(globalBest[i]-x[i])
		}
	}

	if repulsion {
		for i := range newVelocity {
			newVelocity[i] = -newVelocity[i]
		}
	}

	clampVelocity(newVelocity, lower, upper, s.cfg.VelocityRangePercentage)
	state.velocity = newVelocity

	newPos := make([]float64, n)
	for i := 0; i < n; i++ {
		p := x[i] + newVelocity[i]
		if p < lower[i] {
			p = lower[i]
		}
		if p > upper[i] {
			p = upper[i]
		}
		newPos[i] = p
	}
	vp.SetFlat(newPos)
}

// clampVelocity caps each dimension to +-range*(upper-lower); if any
// dimension would overflow, the whole vector is rescaled uniformly so no
// component exceeds its cap, preserving direction.
func clampVelocity(v, lower, upper []float64, rangePct float64) {
	worstRatio := 1.0
	for i := range v {
		limit := rangePct * (upper[i] - lower[i])
		if limit <= 0 {
			continue
		}
		if ratio := math.Abs(v[i]) / limit; ratio > worstRatio {
			worstRatio = ratio
		}
	}
	if worstRatio > 1 {
		for i := range v {
			v[i] /= worstRatio
		}
	}
}

func (s *Swarm) updateBests(pop *population.Population) (float64, float64, error) {
	bestRaw := 0.0
	bestTransformed := pop.Direction.WorstCase()
	haveAny := false

	byNeighborhood := make(map[int][]*individual.Individual)
	for _, ind := range pop.Individuals() {
		state, ok := s.states[ind]
		if !ok || !ind.IsClean() {
			continue
		}
		transformed, err := ind.TransformedFitness(0)
		if err != nil {
			continue
		}
		if pop.Direction.Better(transformed, state.personalBestFitness) {
			state.personalBestFitness = transformed
			state.personalBestPos = append([]float64(nil), ind.Params.(VectorPosition).Flatten()...)
		}
		byNeighborhood[state.neighborhood] = append(byNeighborhood[state.neighborhood], ind)

		if pop.Direction.Better(transformed, bestTransformed) || !haveAny {
			bestTransformed = transformed
			if raw, err := ind.RawFitness(0); err == nil {
				bestRaw = raw
			}
			haveAny = true
		}
	}

	for nIdx, members := range byNeighborhood {
		sort.SliceStable(members, func(i, j int) bool {
			ti, _ := members[i].TransformedFitness(0)
			tj, _ := members[j].TransformedFitness(0)
			return pop.Direction.Better(ti, tj)
		})
		head := members[0]
		t, err := head.TransformedFitness(0)
		if err != nil {
			continue
		}
		nb := s.neighborhoods[nIdx]
		if !nb.haveBest || pop.Direction.Better(t, nb.bestFitness) {
			nb.bestFitness = t
			nb.bestPos = append([]float64(nil), head.Params.(VectorPosition).Flatten()...)
			nb.haveBest = true
		}
		if !s.haveGlobalBest || pop.Direction.Better(nb.bestFitness, s.globalBest) {
			s.globalBest = nb.bestFitness
			s.globalBestPos = append([]float64(nil), nb.bestPos...)
			s.haveGlobalBest = true
		}
	}

	if !haveAny {
		return 0, 0, fmt.Errorf("swarm: no individual survived evaluation this iteration")
	}
	return bestRaw, bestTransformed, nil
}
