package monitor

import (
	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
)

// LogMonitor writes lifecycle events through pkg/logging.
type LogMonitor struct {
	logger *logging.Logger
}

// NewLogMonitor wraps logger (or the global logger if nil).
func NewLogMonitor(logger *logging.Logger) *LogMonitor {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LogMonitor{logger: logger.WithComponent("monitor")}
}

func (m *LogMonitor) OnRunStarted(iteration uint64) {
	m.logger.Info("run started", map[string]interface{}{"iteration": iteration})
}

func (m *LogMonitor) OnIteration(iteration uint64, bestRaw, bestTransformed float64, stalls uint64) {
	m.logger.Info("iteration", map[string]interface{}{
		"iteration":       iteration,
		"bestRaw":         bestRaw,
		"bestTransformed": bestTransformed,
		"stalls":          stalls,
	})
}

func (m *LogMonitor) OnRunEnded(iteration uint64, reason string, bestRaw float64) {
	m.logger.Info("run ended", map[string]interface{}{
		"iteration": iteration,
		"reason":    reason,
		"bestRaw":   bestRaw,
	})
}
