// Package randsrc provides the random-number collaborator required by the
// optimization runtime: uniform reals/ints and Gaussian draws, injectable so
// tests can seed deterministically.
package randsrc

import (
	"math"
	"math/rand/v2"
)

// Source exposes the distributions the optimization runtime depends on.
type Source interface {
	// Uniform01 returns a uniform draw in [0, 1).
	Uniform01() float64
	// UniformInt returns a uniform draw in [0, n).
	UniformInt(n int) int
	// Gaussian returns a draw from N(mean, sigma^2).
	Gaussian(mean, sigma float64) float64
}

// Default wraps math/rand/v2's generator.
type Default struct {
	rng *rand.Rand
}

// NewDefault returns a Source seeded from two uint64 seed words. Callers
// that need reproducibility (e.g. scenario tests) should fix the seed;
// callers that don't care can derive one from crypto/rand once at startup.
func NewDefault(seed1, seed2 uint64) *Default {
	return &Default{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// NewUnseeded returns a Source seeded from the runtime's default entropy.
func NewUnseeded() *Default {
	return &Default{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

func (d *Default) Uniform01() float64 {
	return d.rng.Float64()
}

func (d *Default) UniformInt(n int) int {
	if n <= 0 {
		return 0
	}
	return d.rng.IntN(n)
}

func (d *Default) Gaussian(mean, sigma float64) float64 {
	return mean + sigma*d.rng.NormFloat64()
}

// WeightedIndex draws an index in [0, len(weights)) with probability
// proportional to weights[i]. Weights need not be normalized; a
// non-positive total falls back to a uniform draw across all indices.
func WeightedIndex(s Source, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 || math.IsNaN(total) {
		return s.UniformInt(len(weights))
	}
	target := s.Uniform01() * total
	acc := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if target < acc {
			return i
		}
	}
	return len(weights) - 1
}
