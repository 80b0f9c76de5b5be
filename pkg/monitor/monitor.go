// Package monitor implements the pluggable, side-effect-free observers of
// spec.md: notified on run start, each iteration, and run end.
package monitor

// Monitor is notified of optimization-loop lifecycle events. Implementations
// must not mutate the population they are passed.
type Monitor interface {
	OnRunStarted(iteration uint64)
	OnIteration(iteration uint64, bestRaw, bestTransformed float64, stalls uint64)
	OnRunEnded(iteration uint64, reason string, bestRaw float64)
}
