package protocol

import (
	"testing"

	"github.com/TheEntropyCollective/evogeneva/pkg/netutil"
)

// TestFrameRoundTripOverRealSocket exercises FrameWriter/FrameReader over an
// actual accepted TCP connection rather than a bytes.Buffer, catching any
// assumption that doesn't hold once partial reads/writes are possible.
func TestFrameRoundTripOverRealSocket(t *testing.T) {
	ln, err := netutil.LoopbackListener()
	if err != nil {
		t.Fatalf("loopback listener: %v", err)
	}
	defer ln.Close()

	payload := []byte("over the wire")
	errCh := make(chan error, 1)

	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			errCh <- acceptErr
			return
		}
		defer conn.Close()
		w := NewFrameWriter(conn)
		errCh <- w.WriteWorkMessage(CmdResult, Binary, payload)
	}()

	conn, err := netutil.DialListener(ln)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	r := NewFrameReader(conn)
	cmd, err := r.ReadCommand()
	if err != nil {
		t.Fatalf("read command: %v", err)
	}
	if cmd != CmdResult {
		t.Fatalf("cmd = %q, want %q", cmd, CmdResult)
	}
	mode, got, err := r.ReadWorkMessage()
	if err != nil {
		t.Fatalf("read work message: %v", err)
	}
	if mode != Binary {
		t.Fatalf("mode = %v, want Binary", mode)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
	if writeErr := <-errCh; writeErr != nil {
		t.Fatalf("server write: %v", writeErr)
	}
}
