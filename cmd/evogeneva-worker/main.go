// Command evogeneva-worker connects to an evogeneva-server broker consumer
// over TCP and evaluates dispatched individuals against a built-in
// sphere-function objective, matching the parameters evogeneva-run uses.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheEntropyCollective/evogeneva/pkg/client"
	"github.com/TheEntropyCollective/evogeneva/pkg/config"
	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
	"github.com/TheEntropyCollective/evogeneva/pkg/protocol"
	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
)

func main() {
	var (
		serverAddr = flag.String("server", "", "evogeneva-server address, host:port or multiaddr")
		serMode    = flag.Int("ser-mode", 0, "Serialization mode: 0=text 1=xml 2=binary")
		maxStalls  = flag.Int("max-stalls", 0, "Stop once consecutive idle replies exceed this count (0 = infinite)")
	)
	flag.Parse()

	logger := logging.GetGlobalLogger().WithComponent("evogeneva-worker")

	addr := *serverAddr
	if addr == "" {
		addr = os.Getenv("EVOGENEVA_BROKER_ADDR")
	}
	resolved, err := config.ResolveAddr(addr)
	if err != nil || resolved == "" {
		logger.Error("invalid or missing server address", map[string]interface{}{"addr": addr})
		os.Exit(1)
	}

	cfg := client.DefaultConfig()
	cfg.ServerAddr = resolved
	cfg.SerializationMode = protocol.SerializationMode(*serMode)
	cfg.MaxStalls = *maxStalls

	c := client.New(cfg, sphereEval, logger, randsrc.NewUnseeded())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := c.Run(ctx); err != nil {
		logger.Error("worker exited", map[string]interface{}{"error": err.Error(), "totalAttempts": c.TotalAttempts()})
		os.Exit(1)
	}
}

// sphereEval mirrors cmd/evogeneva-run's built-in objective so a worker
// fleet can evaluate the same demo run a local evogeneva-run would.
func sphereEval(params []float64) ([]float64, float64) {
	total := 0.0
	for _, v := range params {
		total += v * v
	}
	return []float64{total}, 0
}
