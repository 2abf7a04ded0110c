// Package network implements the HotSync network transport: a plain TCP
// listener that NetSync-capable handhelds (connecting over Wi-Fi, or
// through the desktop network-HotSync proxy) dial into directly, with no
// ack/retransmit layer beneath the NetSync framing itself.
package network

import (
	"fmt"
	"net"
)

// DefaultPort is the TCP port NetSync handhelds dial, per spec.md §4.3.
const DefaultPort = 14238

// Listener accepts incoming NetSync connections.
type Listener struct {
	ln net.Listener
}

// Listen binds addr (e.g. ":14238") and returns a Listener ready to accept
// handheld connections.
func Listen(addr string) (*Listener, error) {
	if addr == "" {
		addr = fmt.Sprintf(":%d", DefaultPort)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("network: listen on %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks until a handheld connects, returning the raw connection
// for the handshake engine to wrap in a netsync.Codec.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("network: accept: %w", err)
	}
	return conn, nil
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
