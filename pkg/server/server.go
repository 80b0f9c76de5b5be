// Package server implements the TCP broker consumer of spec.md 4.5: the
// accept loop, per-connection session state machine, an HTTP status API
// (gorilla/mux), and a websocket live-monitor stream (gorilla/websocket, in
// pkg/monitor).
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/TheEntropyCollective/evogeneva/pkg/broker"
	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
	"github.com/TheEntropyCollective/evogeneva/pkg/protocol"
)

// Config configures the broker consumer, mirroring spec.md 6's "Broker
// consumer" configuration keys (ws_* prefix there; unprefixed here since
// this struct IS the broker-consumer config).
type Config struct {
	ListenAddr               string
	SerializationMode        protocol.SerializationMode
	BrokerRetrieveMaxRetries int
	BrokerPollTimeout        time.Duration
	NoDataSleepMillis        int
	NListenerThreads         int
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:               ":9090",
		SerializationMode:        protocol.Text,
		BrokerRetrieveMaxRetries: 5,
		BrokerPollTimeout:        200 * time.Millisecond,
		NoDataSleepMillis:        500,
		NListenerThreads:         4,
	}
}

// Server is the TCP broker consumer: it accepts worker connections and
// bridges them to a broker.Queue shared with the algorithm's executor.
type Server struct {
	cfg    Config
	queue  *broker.Queue
	logger *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	stop     chan struct{}
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

// New constructs a Server bound to queue, not yet listening.
func New(cfg Config, queue *broker.Queue, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Server{
		cfg:      cfg,
		queue:    queue,
		logger:   logger.WithComponent("server"),
		stop:     make(chan struct{}),
		sessions: make(map[*Session]struct{}),
	}
}

// ListenAndServe binds the configured address and runs the accept loop
// until ctx is done or Stop is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("listening", map[string]interface{}{"addr": s.cfg.ListenAddr})

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}
		sess := newSession(conn, s.queue, s.cfg, s.logger)
		s.mu.Lock()
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.Run(ctx, s.stop)
			s.mu.Lock()
			delete(s.sessions, sess)
			s.mu.Unlock()
		}()
	}
}

// Stop signals every active session to send a close command and shut down,
// then waits for them to finish.
func (s *Server) Stop() {
	close(s.stop)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

// SessionCount returns the number of currently active sessions, for the
// HTTP status API.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Addr returns the listener's bound address. Only valid after
// ListenAndServe has started listening; useful when ListenAddr requests an
// ephemeral port (":0").
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
