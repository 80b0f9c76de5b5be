package server

import (
	"context"
	"fmt"
	"net"

	"github.com/TheEntropyCollective/evogeneva/pkg/broker"
	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
	"github.com/TheEntropyCollective/evogeneva/pkg/protocol"
)

// sessionState is the per-connection state machine of spec.md 4.5.
type sessionState int

const (
	awaitingCommand sessionState = iota
	sendingWork
	receivingResult
	closing
)

// Session owns one TCP connection exclusively. Reads and writes are
// serialized through per-direction strands (a dedicated goroutine draining
// reads, and all writes funneled through a single channel), grounded on the
// teacher's mutex-guarded connection state idiom in
// pkg/resilience/connection_manager.go, reimplemented here as the
// channel-actor pattern spec.md 9 calls for.
type Session struct {
	conn   net.Conn
	reader *protocol.FrameReader
	writer *protocol.FrameWriter

	queue  *broker.Queue
	logger *logging.Logger
	cfg    Config

	writeCh chan writeRequest
	state   sessionState
}

type writeRequest struct {
	cmd     string
	mode    protocol.SerializationMode
	payload []byte
	done    chan error
}

func newSession(conn net.Conn, queue *broker.Queue, cfg Config, logger *logging.Logger) *Session {
	return &Session{
		conn:    conn,
		reader:  protocol.NewFrameReader(conn),
		writer:  protocol.NewFrameWriter(conn),
		queue:   queue,
		cfg:     cfg,
		logger:  logger.WithComponent("session"),
		writeCh: make(chan writeRequest, 8),
		state:   awaitingCommand,
	}
}

// Run drives the session until the connection closes or the server signals
// shutdown via stop. It blocks the calling goroutine; callers should invoke
// it from its own goroutine per accepted connection.
func (s *Session) Run(ctx context.Context, stop <-chan struct{}) {
	defer s.conn.Close()

	writerDone := make(chan struct{})
	go s.writeLoop(writerDone)
	defer func() {
		close(s.writeCh)
		<-writerDone
	}()

	for {
		select {
		case <-stop:
			s.sendClose()
			return
		case <-ctx.Done():
			return
		default:
		}

		cmd, err := s.reader.ReadCommand()
		if err != nil {
			s.logger.Debug("session read ended", map[string]interface{}{"error": err.Error()})
			return
		}

		switch cmd {
		case protocol.CmdPing:
			if err := s.sendSimple(protocol.CmdPong); err != nil {
				return
			}
		case protocol.CmdReady:
			if err := s.handleReady(ctx); err != nil {
				return
			}
		case protocol.CmdResult:
			if err := s.handleResult(ctx); err != nil {
				return
			}
			if err := s.handleReady(ctx); err != nil {
				return
			}
		default:
			s.logger.Warn("unknown command", map[string]interface{}{"command": cmd})
			if err := s.sendSimple(protocol.CmdUnknown); err != nil {
				return
			}
		}
	}
}

// handleReady answers one client "ready" command with exactly one response:
// it polls the broker queue internally for up to
// cfg.BrokerRetrieveMaxRetries empty polls before giving up and sending
// idle, since the client does not send another "ready" until it has
// received a reply to this one.
func (s *Session) handleReady(ctx context.Context) error {
	s.state = sendingWork

	var item broker.WorkItem
	found := false
	for retries := 0; retries < s.cfg.BrokerRetrieveMaxRetries; retries++ {
		pollCtx, cancel := context.WithTimeout(ctx, s.cfg.BrokerPollTimeout)
		var ok bool
		item, ok = s.queue.Dequeue(pollCtx)
		cancel()
		if ok {
			found = true
			break
		}
	}
	if !found {
		s.state = awaitingCommand
		return s.sendIdle()
	}

	payload := &protocol.WorkPayload{ID: item.ID, Params: item.Ind.Params.Flatten()}
	data, err := protocol.Encode(s.cfg.SerializationMode, payload)
	if err != nil {
		return err
	}
	s.state = awaitingCommand
	return s.write(protocol.CmdCompute, s.cfg.SerializationMode, data)
}

func (s *Session) handleResult(ctx context.Context) error {
	s.state = receivingResult
	mode, data, err := s.reader.ReadWorkMessage()
	if err != nil {
		return err
	}
	s.state = awaitingCommand

	go func() {
		payload, err := protocol.Decode(mode, data)
		if err != nil {
			s.logger.Warn("discarding undeserializable result", map[string]interface{}{"error": err.Error()})
			return
		}
		s.queue.Reinject(broker.WorkItem{ID: payload.ID, Raw: payload.Raw, Valid: payload.Valid})
	}()
	return nil
}

func (s *Session) sendIdle() error {
	cmd := fmt.Sprintf("idle(%d)", s.cfg.NoDataSleepMillis)
	return s.sendSimple(cmd)
}

func (s *Session) sendClose() {
	s.write(protocol.CmdClose, 0, nil)
}

func (s *Session) sendSimple(cmd string) error {
	return s.write(cmd, 0, nil)
}

func (s *Session) write(cmd string, mode protocol.SerializationMode, payload []byte) error {
	req := writeRequest{cmd: cmd, mode: mode, payload: payload, done: make(chan error, 1)}
	s.writeCh <- req
	return <-req.done
}

func (s *Session) writeLoop(done chan struct{}) {
	defer close(done)
	for req := range s.writeCh {
		var err error
		if req.payload != nil {
			err = s.writer.WriteWorkMessage(req.cmd, req.mode, req.payload)
		} else {
			err = s.writer.WriteCommand(req.cmd)
		}
		req.done <- err
	}
}
