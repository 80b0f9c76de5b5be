// Package client implements the remote evaluation worker of spec.md 4.5: a
// connect-with-backoff, ready/ping/compute loop that evaluates individuals
// dispatched by pkg/server.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
	"github.com/TheEntropyCollective/evogeneva/pkg/protocol"
	"github.com/TheEntropyCollective/evogeneva/pkg/randsrc"
	"github.com/TheEntropyCollective/evogeneva/pkg/resilience"
)

// clientState mirrors spec.md 4.5's client state machine, kept mostly for
// diagnostics since the control flow itself is a straight-line receive loop.
type clientState int

const (
	connecting clientState = iota
	idleWait
	requesting
	computing
	responding
	closed
)

// EvalFunc is the user evaluation routine run for each dispatched item. It
// returns per-criterion raw fitness and a validity level.
type EvalFunc func(params []float64) (raw []float64, validity float64)

// Config configures a Client.
type Config struct {
	ServerAddr            string
	SerializationMode     protocol.SerializationMode
	MaxConnectionAttempts int // 0 = infinite
	PingInterval          time.Duration
	MaxOpenPings          int
	MaxStalls             int // 0 = infinite
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		SerializationMode:     protocol.Text,
		MaxConnectionAttempts: 0,
		PingInterval:          10 * time.Second,
		MaxOpenPings:          3,
		MaxStalls:             0,
	}
}

// Client is a single remote evaluation worker connection.
type Client struct {
	cfg     Config
	eval    EvalFunc
	logger  *logging.Logger
	rand    randsrc.Source
	breaker *resilience.CircuitBreaker

	state            clientState
	totalAttempts    int
	outstandingPings int
	stallCount       int
	writeCh          chan writeRequest
}

type writeRequest struct {
	cmd     string
	mode    protocol.SerializationMode
	payload []byte
	done    chan error
}

// New constructs a Client.
func New(cfg Config, eval EvalFunc, logger *logging.Logger, rand randsrc.Source) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if rand == nil {
		rand = randsrc.NewUnseeded()
	}
	return &Client{
		cfg:     cfg,
		eval:    eval,
		logger:  logger.WithComponent("client"),
		rand:    rand,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		writeCh: make(chan writeRequest, 8),
	}
}

// Run connects and serves the ready/ping/compute loop until the server
// closes the connection, a fatal protocol error occurs, ctx is cancelled,
// or the stall/open-ping ceilings are exceeded. A clean server-initiated
// close is reported as nil error (spec.md 7: "broken connection... not an
// error").
func (c *Client) Run(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	reader := protocol.NewFrameReader(conn)
	writer := protocol.NewFrameWriter(conn)

	writerDone := make(chan struct{})
	go c.writeLoop(writer, writerDone)
	defer func() {
		close(c.writeCh)
		<-writerDone
	}()

	if err := c.send(protocol.CmdReady); err != nil {
		return err
	}

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		for {
			select {
			case <-pingTicker.C:
				c.outstandingPings++
				if c.cfg.MaxOpenPings > 0 && c.outstandingPings > c.cfg.MaxOpenPings {
					conn.Close()
					return
				}
				c.send(protocol.CmdPing)
			case <-ctx.Done():
				return
			case <-pingDone:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		cmd, err := reader.ReadCommand()
		if err != nil {
			c.logger.Debug("connection ended", map[string]interface{}{"error": err.Error()})
			return nil // spec.md 7: broken connection is a normal termination
		}

		switch {
		case cmd == protocol.CmdClose:
			return nil
		case cmd == protocol.CmdUnknown:
			c.logger.Warn("server reported unknown command")
			return fmt.Errorf("client: server reported unknown command")
		case cmd == protocol.CmdPong:
			if c.outstandingPings > 0 {
				c.outstandingPings--
			}
		case len(cmd) >= 4 && cmd[:4] == "idle":
			ms := parseIdleMillis(cmd)
			time.Sleep(time.Duration(ms) * time.Millisecond)
			c.stallCount++
			if c.cfg.MaxStalls > 0 && c.stallCount > c.cfg.MaxStalls {
				return nil
			}
			c.send(protocol.CmdReady)
		case cmd == protocol.CmdCompute:
			c.stallCount = 0
			mode, payload, err := reader.ReadWorkMessage()
			if err != nil {
				c.logger.Warn("malformed compute frame", map[string]interface{}{"error": err.Error()})
				return fmt.Errorf("client: malformed compute frame: %w", err)
			}
			go c.handleCompute(mode, payload)
		default:
			c.logger.Warn("malformed command", map[string]interface{}{"command": cmd})
			return fmt.Errorf("client: malformed command %q", cmd)
		}
	}
}

func (c *Client) handleCompute(mode protocol.SerializationMode, payload []byte) {
	work, err := protocol.Decode(mode, payload)
	if err != nil {
		c.logger.Warn("failed to decode work item", map[string]interface{}{"error": err.Error()})
		return
	}
	raw, validity := c.eval(work.Params)
	result := &protocol.WorkPayload{ID: work.ID, Raw: raw, Valid: validity}
	data, err := protocol.Encode(mode, result)
	if err != nil {
		c.logger.Warn("failed to encode result", map[string]interface{}{"error": err.Error()})
		return
	}
	c.sendWork(protocol.CmdResult, mode, data)
}

func (c *Client) send(cmd string) error {
	req := writeRequest{cmd: cmd, done: make(chan error, 1)}
	c.writeCh <- req
	return <-req.done
}

func (c *Client) sendWork(cmd string, mode protocol.SerializationMode, payload []byte) error {
	req := writeRequest{cmd: cmd, mode: mode, payload: payload, done: make(chan error, 1)}
	c.writeCh <- req
	return <-req.done
}

func (c *Client) writeLoop(writer *protocol.FrameWriter, done chan struct{}) {
	defer close(done)
	for req := range c.writeCh {
		var err error
		if req.payload != nil {
			err = writer.WriteWorkMessage(req.cmd, req.mode, req.payload)
		} else {
			err = writer.WriteCommand(req.cmd)
		}
		req.done <- err
	}
}

// connect resolves and dials the server, retrying with the randomized
// linear backoff of spec.md 4.5 on failure. Dial attempts are gated by a
// circuit breaker so a server that is down hard doesn't get hammered with a
// dial every backoff interval once the failure threshold trips.
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	attempt := 0
	for {
		attempt++
		c.totalAttempts++

		var conn net.Conn
		dialErr := c.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			conn, err = d.DialContext(ctx, "tcp", c.cfg.ServerAddr)
			return err
		})
		if dialErr == nil {
			return conn, nil
		}

		classified := resilience.Classify(dialErr, classifyDialError(dialErr), "client.connect")
		if c.cfg.MaxConnectionAttempts > 0 && attempt >= c.cfg.MaxConnectionAttempts {
			return nil, fmt.Errorf("client: exhausted %d connection attempts: %w", attempt, classified)
		}
		backoff := resilience.LinearJitterBackoff(c.rand, attempt)
		c.logger.Debug("connection attempt failed, backing off", map[string]interface{}{
			"attempt": attempt, "backoff": backoff.String(), "error": classified.Error(),
		})
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// classifyDialError classifies a timed-out net.Error as TimeoutError and
// every other error, including a breaker-open rejection, as NetworkError.
func classifyDialError(err error) resilience.ErrorType {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return resilience.TimeoutError
	}
	return resilience.NetworkError
}

// TotalAttempts returns the cumulative connection attempt count.
func (c *Client) TotalAttempts() int { return c.totalAttempts }

func parseIdleMillis(cmd string) int {
	// cmd is "idle(<ms>)"
	var ms int
	fmt.Sscanf(cmd, "idle(%d)", &ms)
	return ms
}
