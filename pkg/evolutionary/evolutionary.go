// Package evolutionary implements the recombination/selection Algorithm
// variant of spec.md 4.6: parents produce children by weighted or random
// inheritance, children are adapted and evaluated, and a selection scheme
// picks the next generation's parents from the parent+child pool.
package evolutionary

import (
	"context"
	"fmt"
	"sort"

	"github.com/TheEntropyCollective/evogeneva/pkg/executor"
	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
	"github.com/TheEntropyCollective/evogeneva/pkg/population"
	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
)

// RecombinationMethod selects how a child's source parent is chosen.
type RecombinationMethod int

const (
	Random RecombinationMethod = iota
	ValueWeighted
)

// SelectionMethod selects the next generation's survivors.
type SelectionMethod int

const (
	MuPlusNu SelectionMethod = iota
	MuCommaNu
	MuNu1Pretain
	MuPlusNuPareto
	MuCommaNuPareto
)

func (m SelectionMethod) evaluatesParents(firstIteration bool) bool {
	return firstIteration || m == MuPlusNu || m == MuPlusNuPareto
}

func (m SelectionMethod) pareto() bool {
	return m == MuPlusNuPareto || m == MuCommaNuPareto
}

func (m SelectionMethod) parentsPlusChildren() bool {
	return m == MuPlusNu || m == MuPlusNuPareto
}

// Config configures an EA instance.
type Config struct {
	Recombination RecombinationMethod
	Selection     SelectionMethod
	Rand          randsrc.Source
}

// EA implements algorithm.Algorithm for the evolutionary variant.
type EA struct {
	recombination RecombinationMethod
	selection     SelectionMethod
	rand          randsrc.Source
	logger        *logging.Logger

	prevBestParent *individual.Individual // for MuNu1Pretain
}

// New constructs an EA. logger may be nil to use the global logger.
func New(cfg Config, logger *logging.Logger) *EA {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if cfg.Rand == nil {
		cfg.Rand = randsrc.NewUnseeded()
	}
	return &EA{
		recombination: cfg.Recombination,
		selection:     cfg.Selection,
		rand:          cfg.Rand,
		logger:        logger.WithComponent("evolutionary"),
	}
}

// AssignPersonalities stamps a role marker onto every individual at run start.
func (e *EA) AssignPersonalities(pop *population.Population) {
	for i, ind := range pop.Individuals() {
		role := "child"
		if i < pop.ParentCount() {
			role = "parent"
		}
		ind.Personality()["role"] = role
	}
}

// ActOnStalls logs the stall event; widening the adaption step size is left
// to concrete gene adaptors (out of scope per spec.md's Non-goals), so this
// is a notification hook only unless Params implements stepWidener.
func (e *EA) ActOnStalls(pop *population.Population) {
	widened := 0
	for _, ind := range pop.Individuals() {
		if w, ok := ind.Params.(stepWidener); ok {
			w.WidenAdaptionStep()
			widened++
		}
	}
	e.logger.Info("acting on stall", map[string]interface{}{"widened": widened})
}

// stepWidener is an optional extension a concrete ParameterSet may implement
// to react to act_on_stalls by widening its mutation step size.
type stepWidener interface {
	WidenAdaptionStep()
}

// CycleLogic recombines children from the current parents, adapts and
// evaluates the generation, then selects the next parent set.
func (e *EA) CycleLogic(ctx context.Context, pop *population.Population, exec executor.Executor, fns []individual.EvaluateFunc) (float64, float64, error) {
	firstIteration := pop.Iteration() == pop.Offset()
	mu := pop.ParentCount()
	if mu <= 0 {
		return 0, 0, fmt.Errorf("evolutionary: parent count must be positive")
	}

	parents := pop.Parents()
	children := pop.Children()

	e.recombine(parents, children, firstIteration)

	evalParents := e.selection.evaluatesParents(firstIteration)
	mask := make([]bool, len(pop.Individuals()))
	for i := range mask {
		mask[i] = i >= mu || evalParents
	}

	unprocessed, err := exec.WorkOn(ctx, pop.Individuals(), mask, fns, true, "ea-cycle")
	if err != nil {
		return 0, 0, fmt.Errorf("evolutionary: work_on: %w", err)
	}
	dropped := make(map[*individual.Individual]struct{}, len(unprocessed))
	for _, ind := range unprocessed {
		dropped[ind] = struct{}{}
	}

	candidatePool := children
	if e.selection.parentsPlusChildren() || firstIteration {
		candidatePool = append(append([]*individual.Individual{}, parents...), children...)
	}

	eligible := make([]*individual.Individual, 0, len(candidatePool))
	for _, ind := range candidatePool {
		if _, isDropped := dropped[ind]; isDropped {
			continue
		}
		if !ind.IsClean() {
			continue
		}
		eligible = append(eligible, ind)
	}
	if len(eligible) == 0 {
		return 0, 0, fmt.Errorf("evolutionary: no individual survived evaluation this iteration")
	}
	for len(eligible) < mu {
		eligible = append(eligible, eligible[len(eligible)-1].Clone())
	}

	winners := e.selection.choose(eligible, pop.Direction, mu, firstIteration, e.prevBestParent, e.rand)

	newParents := make([]*individual.Individual, mu)
	for i, w := range winners {
		newParents[i] = w.Clone()
	}
	e.prevBestParent = newParents[0].Clone()

	pop.SetIndividuals(append(newParents, children...))

	bestTransformed, terr := newParents[0].TransformedFitness(0)
	if terr != nil {
		return 0, 0, fmt.Errorf("evolutionary: winner transformed fitness: %w", terr)
	}
	bestRaw, rerr := newParents[0].RawFitness(0)
	if rerr != nil {
		return 0, 0, fmt.Errorf("evolutionary: winner raw fitness: %w", rerr)
	}
	return bestRaw, bestTransformed, nil
}

// recombine assigns each child a source parent's parameter set (per the
// configured recombination method) and adapts it.
func (e *EA) recombine(parents, children []*individual.Individual, firstIteration bool) {
	weights := make([]float64, len(parents))
	useRandom := e.recombination == Random || firstIteration
	if !useRandom {
		for i := range weights {
			weights[i] = 1.0 / float64(i+2)
		}
	}
	for _, child := range children {
		srcIdx := 0
		if len(parents) > 1 {
			if useRandom {
				srcIdx = e.rand.UniformInt(len(parents))
			} else {
				srcIdx = randsrc.WeightedIndex(e.rand, weights)
			}
		}
		child.Params = parents[srcIdx].Params.Clone()
		child.Adapt(e.rand)
	}
}

func (m SelectionMethod) choose(pool []*individual.Individual, dir individual.Direction, mu int, firstIteration bool, prevBestParent *individual.Individual, r randsrc.Source) []*individual.Individual {
	switch m {
	case MuPlusNu:
		return selectByMinOnly(pool, mu)
	case MuCommaNu:
		// pool already carries parents+children when firstIteration (CycleLogic
		// widens the candidate pool), giving the spec's iteration-0 MU_PLUS_NU
		// fallback for free.
		return selectByMinOnly(pool, mu)
	case MuNu1Pretain:
		winners := selectByMinOnly(pool, mu)
		if prevBestParent == nil || firstIteration {
			return winners
		}
		prevScore, err := prevBestParent.TransformedFitness(0)
		if err != nil {
			return winners
		}
		beaten := false
		for _, w := range winners {
			s, err := w.TransformedFitness(0)
			if err == nil && dir.Better(s, prevScore) {
				beaten = true
				break
			}
		}
		if !beaten {
			winners[len(winners)-1] = prevBestParent
			winners = sortByMinOnly(winners)
		}
		return winners
	case MuPlusNuPareto, MuCommaNuPareto:
		return selectPareto(pool, dir, mu, r)
	default:
		return selectByMinOnly(pool, mu)
	}
}

func selectByMinOnly(pool []*individual.Individual, mu int) []*individual.Individual {
	sorted := sortByMinOnly(append([]*individual.Individual{}, pool...))
	if len(sorted) > mu {
		sorted = sorted[:mu]
	}
	return sorted
}

func sortByMinOnly(pool []*individual.Individual) []*individual.Individual {
	sort.SliceStable(pool, func(i, j int) bool {
		si, _ := pool[i].MinOnlyFitness(0)
		sj, _ := pool[j].MinOnlyFitness(0)
		return si < sj
	})
	return pool
}

// dominates reports whether a dominates b: not worse on every criterion and
// strictly better on at least one.
func dominates(a, b *individual.Individual, dir individual.Direction) bool {
	strictlyBetterSomewhere := false
	n := a.NumCriteria()
	if b.NumCriteria() < n {
		n = b.NumCriteria()
	}
	for i := 0; i < n; i++ {
		ta, errA := a.TransformedFitness(i)
		tb, errB := b.TransformedFitness(i)
		if errA != nil || errB != nil {
			return false
		}
		if !dir.NotWorse(ta, tb) {
			return false
		}
		if dir.Better(ta, tb) {
			strictlyBetterSomewhere = true
		}
	}
	return strictlyBetterSomewhere
}

func selectPareto(pool []*individual.Individual, dir individual.Direction, mu int, r randsrc.Source) []*individual.Individual {
	front := make([]*individual.Individual, 0, len(pool))
	for _, a := range pool {
		dominated := false
		for _, b := range pool {
			if a == b {
				continue
			}
			if dominates(b, a, dir) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, a)
		}
	}

	if len(front) > mu {
		shuffle(front, r)
		return front[:mu]
	}
	if len(front) == mu {
		return front
	}

	inFront := make(map[*individual.Individual]struct{}, len(front))
	for _, f := range front {
		inFront[f] = struct{}{}
	}
	rest := make([]*individual.Individual, 0, len(pool)-len(front))
	for _, ind := range pool {
		if _, ok := inFront[ind]; !ok {
			rest = append(rest, ind)
		}
	}
	rest = sortByMinOnly(rest)
	out := append([]*individual.Individual{}, front...)
	for _, ind := range rest {
		if len(out) >= mu {
			break
		}
		out = append(out, ind)
	}
	return sortByMinOnly(out)
}

func shuffle(s []*individual.Individual, r randsrc.Source) {
	for i := len(s) - 1; i > 0; i-- {
		j := r.UniformInt(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
