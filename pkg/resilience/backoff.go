package resilience

import (
	"time"

	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
)

// LinearJitterBackoff returns the sleep duration for connection attempt n
// (1-indexed), uniform in [0, 2*n] seconds, matching spec.md 4.5's
// client-startup retry rule.
func LinearJitterBackoff(r randsrc.Source, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	maxSeconds := float64(2 * attempt)
	seconds := r.Uniform01() * maxSeconds
	return time.Duration(seconds * float64(time.Second))
}
