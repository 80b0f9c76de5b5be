// Command evogeneva-server runs the TCP broker consumer: it accepts worker
// connections, dispatches queued work, and serves an HTTP status API plus a
// websocket live-monitor stream alongside it.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheEntropyCollective/evogeneva/pkg/broker"
	"github.com/TheEntropyCollective/evogeneva/pkg/config"
	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
	"github.com/TheEntropyCollective/evogeneva/pkg/monitor"
	"github.com/TheEntropyCollective/evogeneva/pkg/protocol"
	"github.com/TheEntropyCollective/evogeneva/pkg/server"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to configuration JSON file")
		listenAddr   = flag.String("listen", "", "TCP address workers connect to (overrides config broker.wsAddr)")
		httpAddr     = flag.String("http", ":9091", "HTTP status/monitor listen address")
		queueCap     = flag.Int("queue-capacity", 1024, "Broker queue capacity")
		expectItems  = flag.Uint("expected-items", 10000, "Expected distinct work items, sizes the dedup filter")
	)
	flag.Parse()

	logger := logging.GetGlobalLogger().WithComponent("evogeneva-server")

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			logger.Error("config load failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		cfg = loaded
	}

	addr := cfg.Broker.WSAddr
	if *listenAddr != "" {
		addr = *listenAddr
	}
	resolved, err := config.ResolveAddr(addr)
	if err != nil {
		logger.Error("invalid listen address", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	queue := broker.New(*queueCap, uint(*expectItems))
	srvCfg := server.DefaultConfig()
	srvCfg.ListenAddr = resolved
	srvCfg.SerializationMode = protocol.SerializationMode(cfg.Broker.WSSerializationMode)
	srvCfg.NListenerThreads = cfg.Broker.WSNListenerThreads

	srv := server.New(srvCfg, queue, logger)
	wsMonitor := monitor.NewWebSocketMonitor(logger)

	mux := http.NewServeMux()
	mux.Handle("/", srv.NewHTTPHandler())
	mux.HandleFunc("/ws", wsMonitor.HandleUpgrade)

	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Info("http status API listening", map[string]interface{}{"addr": *httpAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down", nil)
		cancel()
		srv.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server exited", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}
