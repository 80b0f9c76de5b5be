// Command evogeneva-run drives a single local optimization run (serial or
// thread-pool executor, evolutionary or swarm variant) against a built-in
// sphere-function objective, to completion or halt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/TheEntropyCollective/evogeneva/pkg/algorithm"
	"github.com/TheEntropyCollective/evogeneva/pkg/checkpoint"
	"github.com/TheEntropyCollective/evogeneva/pkg/config"
	"github.com/TheEntropyCollective/evogeneva/pkg/evolutionary"
	"github.com/TheEntropyCollective/evogeneva/pkg/executor"
	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
	"github.com/TheEntropyCollective/evogeneva/pkg/monitor"
	"github.com/TheEntropyCollective/evogeneva/pkg/population"
	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
	"github.com/TheEntropyCollective/evogeneva/pkg/swarm"
	"github.com/TheEntropyCollective/evogeneva/pkg/threadpool"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration JSON file")
		preset     = flag.String("preset", "", "Named preset (quickstart, distributed); ignored when -config is given")
		variant    = flag.String("variant", "evolutionary", "Algorithm variant: evolutionary or swarm")
		exec       = flag.String("executor", "threadpool", "Execution backend: serial or threadpool")
		dims       = flag.Int("dims", 10, "Number of parameters in the demo sphere objective")
		threads    = flag.Int("threads", 4, "Thread pool size when executor=threadpool")
	)
	flag.Parse()

	logger := logging.GetGlobalLogger().WithComponent("evogeneva-run")

	cfg := config.GetPresetConfig(*preset)
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			logger.Error("config load failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	dir := individual.Direction{Maximize: cfg.Algorithm.Maximize}
	rand := randsrc.NewUnseeded()

	pop := population.New(population.Config{
		Direction:          dir,
		NumCriteria:        1,
		ParentCount:        cfg.EA.NParents,
		GlobalBestCapacity: cfg.Algorithm.NRecordBestIndividuals,
		StallThreshold:     cfg.Algorithm.IndividualUpdateStallCounterThreshold,
	})

	indCfg := individual.Config{
		NumCriteria:              1,
		Policy:                   individual.EvalPolicy(cfg.Algorithm.EvalPolicy),
		Direction:                dir,
		Steepness:                cfg.Algorithm.Steepness,
		Barrier:                  cfg.Algorithm.Barrier,
		MaxUnsuccessfulAdaptions: cfg.Algorithm.MaxUnsuccessfulAdaptions,
	}

	inds := make([]*individual.Individual, cfg.EA.Size)
	for i := range inds {
		inds[i] = individual.New(newSpherePoint(*dims, -5, 5, rand), indCfg)
	}
	pop.SetIndividuals(inds)

	var alg algorithm.Algorithm
	switch *variant {
	case "swarm":
		alg = swarm.New(swarm.Config{
			NNeighborhoods:          cfg.Swarm.NNeighborhoods,
			NNeighborhoodMembers:    cfg.Swarm.NNeighborhoodMembers,
			CPersonal:               cfg.Swarm.CPersonal,
			CNeighborhood:           cfg.Swarm.CNeighborhood,
			CGlobal:                 cfg.Swarm.CGlobal,
			CVelocity:               cfg.Swarm.CVelocity,
			VelocityRangePercentage: cfg.Swarm.VelocityRangePercentage,
			UpdateRule:              swarm.UpdateRule(cfg.Swarm.UpdateRule),
			RepulsionThreshold:      cfg.Swarm.RepulsionThreshold,
			Rand:                    rand,
		}, logger)
	default:
		alg = evolutionary.New(evolutionary.Config{
			Recombination: evolutionary.RecombinationMethod(cfg.EA.RecombinationMethod),
			Selection:     evolutionary.SelectionMethod(cfg.EA.SortingMethod),
			Rand:          rand,
		}, logger)
	}

	var execBackend executor.Executor
	switch *exec {
	case "serial":
		execBackend = executor.NewSerial()
	default:
		pool := threadpool.New(*threads, logger)
		execBackend = executor.NewThreadPool(pool)
	}

	fns := []individual.EvaluateFunc{sphereObjective}

	halt := algorithm.HaltConfig{
		MaxIteration:             cfg.Algorithm.MaxIteration,
		MinIteration:             cfg.Algorithm.MinIteration,
		MaxStallIteration:        cfg.Algorithm.MaxStallIteration,
		TerminationFile:          cfg.Algorithm.TerminationFile,
		TouchedTerminationActive: cfg.Algorithm.TouchedTerminationActive,
		ThresholdActive:          cfg.Algorithm.ThresholdActive,
		Threshold:                cfg.Algorithm.Threshold,
		ReportIteration:          cfg.Algorithm.ReportIteration,
		EmitTerminationReason:    cfg.Algorithm.EmitTerminationReason,
	}

	loop := algorithm.New(alg, pop, execBackend, fns, halt, logger)
	loop.Monitors = []monitor.Monitor{monitor.NewLogMonitor(logger)}
	if cfg.Algorithm.CPDirectory != "" {
		loop.CP = &checkpoint.Config{
			Directory: cfg.Algorithm.CPDirectory,
			BaseName:  cfg.Algorithm.CPBaseName,
			Overwrite: cfg.Algorithm.CPOverwrite,
			Encoding:  checkpoint.Encoding(cfg.Algorithm.CPSerMode),
		}
		loop.CPInterval = cfg.Algorithm.CPInterval
		loop.StateFunc = func() []byte { return []byte(fmt.Sprintf("iteration=%d", pop.Iteration())) }
	}

	if err := loop.Optimize(context.Background(), 0, inds[0], cfg.EA.Size); err != nil {
		logger.Error("run failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	best, ok := pop.GlobalBest.Best()
	if ok {
		fmt.Printf("best fitness: %v after %d iterations\n", best.Score, pop.Iteration())
	}
}

func sphereObjective(params []float64, sink *individual.InvalidSink) (float64, float64) {
	total := 0.0
	for _, v := range params {
		total += v * v
	}
	return total, 0
}

// spherePoint is a minimal bounded float-vector ParameterSet used only to
// make this entry point runnable; concrete gene adaptors are a library
// Non-goal (spec.md 1), so this type lives in the binary, not pkg/.
type spherePoint struct {
	values       []float64
	lower, upper []float64
	rand         randsrc.Source
}

func newSpherePoint(n int, lo, hi float64, r randsrc.Source) *spherePoint {
	values := make([]float64, n)
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range values {
		lower[i] = lo
		upper[i] = hi
		values[i] = lo + r.Uniform01()*(hi-lo)
	}
	return &spherePoint{values: values, lower: lower, upper: upper, rand: r}
}

func (p *spherePoint) Flatten() []float64 { return append([]float64(nil), p.values...) }
func (p *spherePoint) Len() int           { return len(p.values) }

func (p *spherePoint) Adapt(r randsrc.Source) int {
	idx := r.UniformInt(len(p.values))
	delta := r.Gaussian(0, 0.1*(p.upper[idx]-p.lower[idx]))
	v := p.values[idx] + delta
	if v < p.lower[idx] {
		v = p.lower[idx]
	}
	if v > p.upper[idx] {
		v = p.upper[idx]
	}
	if v == p.values[idx] {
		return 0
	}
	p.values[idx] = v
	return 1
}

func (p *spherePoint) Clone() individual.ParameterSet {
	return &spherePoint{
		values: append([]float64(nil), p.values...),
		lower:  p.lower,
		upper:  p.upper,
		rand:   p.rand,
	}
}

func (p *spherePoint) SetFlat(values []float64) { copy(p.values, values) }
func (p *spherePoint) Bounds() ([]float64, []float64) { return p.lower, p.upper }
