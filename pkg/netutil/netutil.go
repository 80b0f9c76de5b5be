// Package netutil provides a portable loopback listener for the protocol
// and server packages' socket-level tests, grounded on
// golang.org/x/net/nettest's environment-aware listener construction so
// tests behave the same in sandboxes where IPv6 loopback is unavailable.
package netutil

import (
	"net"

	"golang.org/x/net/nettest"
)

// LoopbackListener returns a TCP listener bound to an ephemeral localhost
// port, suitable for dialing immediately in the same test process.
func LoopbackListener() (net.Listener, error) {
	return nettest.NewLocalListener("tcp")
}

// DialListener dials the address a LoopbackListener is bound to. It exists
// because the listener's port is ephemeral and callers otherwise have no
// portable way to address it back.
func DialListener(ln net.Listener) (net.Conn, error) {
	return net.Dial(ln.Addr().Network(), ln.Addr().String())
}
