package netutil

import (
	"testing"
)

func TestLoopbackListenerDialRoundTrip(t *testing.T) {
	ln, err := LoopbackListener()
	if err != nil {
		t.Fatalf("loopback listener: %v", err)
	}
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		close(accepted)
	}()

	conn, err := DialListener(ln)
	if err != nil {
		t.Fatalf("dial listener: %v", err)
	}
	conn.Close()
	<-accepted
}
