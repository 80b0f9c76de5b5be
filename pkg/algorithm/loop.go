// Package algorithm implements the optimization loop driver of spec.md
// 4.4: the algorithm-agnostic adapt/evaluate/select/halt sequence shared by
// pkg/evolutionary and pkg/swarm, re-architected per spec.md 9 as a trait
// carrying pluggable operations plus a shared loop driver rather than an
// inheritance stack.
package algorithm

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheEntropyCollective/evogeneva/pkg/checkpoint"
	"github.com/TheEntropyCollective/evogeneva/pkg/executor"
	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
	"github.com/TheEntropyCollective/evogeneva/pkg/monitor"
	"github.com/TheEntropyCollective/evogeneva/pkg/population"
)

// Algorithm is the pluggable hook set a concrete variant (evolutionary,
// swarm) supplies to the loop driver.
type Algorithm interface {
	// CycleLogic runs one full iteration (adapt, evaluate, select/
	// recombine as appropriate) and returns the best (raw, transformed)
	// fitness of criterion 0 observed this iteration.
	CycleLogic(ctx context.Context, pop *population.Population, exec executor.Executor, fns []individual.EvaluateFunc) (bestRaw, bestTransformed float64, err error)
	// ActOnStalls is called when the stall counter exceeds the configured
	// threshold; algorithms may, e.g., widen adaption step size.
	ActOnStalls(pop *population.Population)
	// AssignPersonalities stamps a fresh personality record onto every
	// individual at run start.
	AssignPersonalities(pop *population.Population)
}

// HaltConfig mirrors spec.md 6's algorithm-level halt/report/checkpoint keys.
type HaltConfig struct {
	MaxIteration            uint64
	MinIteration            uint64
	MaxStallIteration       uint64
	TerminationFile         string
	TouchedTerminationActive bool
	MaxDuration             time.Duration
	MinDuration             time.Duration
	ThresholdActive         bool
	Threshold               float64
	ReportIteration         uint64
	EmitTerminationReason   bool
	CustomHalt              func() bool
}

// Loop drives a single optimization run from start to halt.
type Loop struct {
	Algorithm Algorithm
	Pop       *population.Population
	Exec      executor.Executor
	EvalFns   []individual.EvaluateFunc
	Halt      HaltConfig
	Monitors  []monitor.Monitor
	CP         *checkpoint.Config
	CPInterval int // spec.md 6 cpInterval: >0 every N iterations, -1 on improvement, 0 disabled
	StateFunc  func() []byte // opaque full-algorithm-state snapshot for checkpointing

	logger *logging.Logger

	startTime       time.Time
	termFileModTime time.Time
	sigCh           chan os.Signal
}

// New constructs a Loop. logger may be nil to use the global logger.
func New(alg Algorithm, pop *population.Population, exec executor.Executor, fns []individual.EvaluateFunc, halt HaltConfig, logger *logging.Logger) *Loop {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Loop{
		Algorithm: alg,
		Pop:       pop,
		Exec:      exec,
		EvalFns:   fns,
		Halt:      halt,
		logger:    logger.WithComponent("algorithm_loop"),
	}
}

// Optimize drives the run from iteration offset to halt, per spec.md 4.4.
func (l *Loop) Optimize(ctx context.Context, offset uint64, fillerForGrowth *individual.Individual, targetSize int) error {
	l.Pop.SetIteration(offset)
	l.Pop.SetOffset(offset)
	l.Pop.ResetHalt()

	// Step 2: push already-clean individuals into the global best queue so
	// chained runs preserve prior bests.
	for _, ind := range l.Pop.Individuals() {
		if ind.IsClean() {
			l.Pop.GlobalBest.Add(ind, true, false)
		}
	}

	// Step 3: adjust population to nominal size.
	if err := l.Pop.AdjustSize(targetSize, fillerForGrowth); err != nil {
		return fmt.Errorf("algorithm: adjust_population: %w", err)
	}

	// Step 4: assign personalities.
	l.Algorithm.AssignPersonalities(l.Pop)

	// Step 5: run started.
	for _, m := range l.Monitors {
		m.OnRunStarted(l.Pop.Iteration())
	}

	// Step 6: record the start time. The population's best-known fitness
	// and stall counter are not reset here; they carry over from any
	// earlier run on the same population.
	l.startTime = time.Now()

	l.sigCh = make(chan os.Signal, 1)
	signal.Notify(l.sigCh, syscall.SIGHUP)
	defer signal.Stop(l.sigCh)

	var lastBestRaw float64
	for {
		l.Pop.MarkIteration()

		bestRaw, bestTransformed, err := l.Algorithm.CycleLogic(ctx, l.Pop, l.Exec, l.EvalFns)
		if err != nil {
			return fmt.Errorf("algorithm: cycle_logic: %w", err)
		}
		lastBestRaw = bestRaw

		prevBest, hadBest := l.Pop.BestKnown()
		improved := !hadBest || l.Pop.Direction.Better(bestTransformed, prevBest)
		l.Pop.UpdateStall(bestTransformed)

		for _, ind := range l.Pop.Individuals() {
			if ind.IsClean() {
				l.Pop.GlobalBest.Add(ind, true, false)
				l.Pop.IterationBest.Add(ind, true, false)
			}
		}

		halted, reason := l.Pop.Halted()
		l.maybeCheckpoint(improved, halted)

		l.Pop.BroadcastWorstKnown()
		l.Pop.BroadcastStallCount()

		if l.Pop.StallThreshold() > 0 && l.Pop.StallCount() > l.Pop.StallThreshold() {
			l.Algorithm.ActOnStalls(l.Pop)
		}

		if l.Halt.ReportIteration > 0 && l.Pop.Iteration()%l.Halt.ReportIteration == 0 {
			for _, m := range l.Monitors {
				m.OnIteration(l.Pop.Iteration(), bestRaw, bestTransformed, l.Pop.StallCount())
			}
		}

		l.Pop.SetIteration(l.Pop.Iteration() + 1)

		if reason := l.evaluateHalt(bestRaw); reason != population.NotHalted {
			l.Pop.Halt(reason)
		}

		if halted, reason = l.Pop.Halted(); halted {
			if l.Halt.EmitTerminationReason {
				l.logger.Info("run halted", map[string]interface{}{
					"reason": reason.String(), "bestRaw": lastBestRaw, "iteration": l.Pop.Iteration(),
				})
			}
			break
		}
	}

	l.finalize()

	for _, m := range l.Monitors {
		m.OnRunEnded(l.Pop.Iteration(), l.lastHaltReason(), lastBestRaw)
	}

	for _, ind := range l.Pop.Individuals() {
		ind.ClearPersonality()
	}

	return nil
}

func (l *Loop) lastHaltReason() string {
	_, reason := l.Pop.Halted()
	return reason.String()
}

func (l *Loop) finalize() {
	if l.CP == nil || l.StateFunc == nil {
		return
	}
	best, ok := l.Pop.GlobalBest.Best()
	bestFitness := 0.0
	if ok {
		bestFitness = best.Score
	}
	checkpoint.Write(*l.CP, checkpoint.Snapshot{
		Iteration:   l.Pop.Iteration(),
		BestFitness: bestFitness,
		State:       l.StateFunc(),
	}, true)
}

func (l *Loop) maybeCheckpoint(improved, halted bool) {
	if l.CP == nil || l.StateFunc == nil {
		return
	}
	if !checkpoint.ShouldCheckpoint(l.CPInterval, l.Pop.Iteration(), improved, halted) {
		return
	}
	best, ok := l.Pop.GlobalBest.Best()
	bestFitness := 0.0
	if ok {
		bestFitness = best.Score
	}
	if _, err := checkpoint.Write(*l.CP, checkpoint.Snapshot{
		Iteration:   l.Pop.Iteration(),
		BestFitness: bestFitness,
		State:       l.StateFunc(),
	}, false); err != nil {
		l.logger.Warn("checkpoint write failed", map[string]interface{}{"error": err.Error()})
	}
}

// evaluateHalt checks every automatic halt criterion, gated by
// min-iteration/min-time thresholds; user-triggered criteria (signal,
// termination file) take precedence and are not gated.
func (l *Loop) evaluateHalt(bestRaw float64) population.HaltReason {
	select {
	case <-l.sigCh:
		return population.HaltSignal
	default:
	}

	if l.Halt.TouchedTerminationActive && l.Halt.TerminationFile != "" {
		if info, err := os.Stat(l.Halt.TerminationFile); err == nil {
			if info.ModTime().After(l.startTime) && info.ModTime().After(l.termFileModTime) {
				l.termFileModTime = info.ModTime()
				return population.HaltTerminationFile
			}
		}
	}

	pastMinIteration := l.Pop.Iteration() >= l.Halt.MinIteration
	pastMinTime := l.Halt.MinDuration == 0 || time.Since(l.startTime) >= l.Halt.MinDuration
	if !pastMinIteration || !pastMinTime {
		return population.NotHalted
	}

	if l.Halt.MaxIteration > 0 && l.Pop.Iteration() >= l.Halt.MaxIteration {
		return population.HaltMaxIterations
	}
	if l.Halt.MaxStallIteration > 0 && l.Pop.StallCount() > l.Halt.MaxStallIteration {
		return population.HaltMaxStalls
	}
	if l.Halt.MaxDuration > 0 && time.Since(l.startTime) >= l.Halt.MaxDuration {
		return population.HaltMaxDuration
	}
	if l.Halt.ThresholdActive {
		crossed := (l.Pop.Direction.Maximize && bestRaw >= l.Halt.Threshold) ||
			(!l.Pop.Direction.Maximize && bestRaw <= l.Halt.Threshold)
		if crossed {
			return population.HaltQualityThreshold
		}
	}
	if l.Halt.CustomHalt != nil && l.Halt.CustomHalt() {
		return population.HaltCustom
	}
	return population.NotHalted
}

