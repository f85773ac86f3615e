// Package testutil provides test-only network plumbing shared across
// packages.
package testutil

import "net"

// PipeListener is an in-process net.Listener backed by net.Pipe. Tests dial
// it to hand the server an accepted connection without touching a real
// socket, which also lets them choose the apparent peer address.
type PipeListener struct {
	conns  chan net.Conn
	closed chan struct{}
}

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// NewPipeListener creates a listener with a small accept queue.
func NewPipeListener() *PipeListener {
	return &PipeListener{
		conns:  make(chan net.Conn, 8),
		closed: make(chan struct{}),
	}
}

func (l *PipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *PipeListener) Close() error {
	select {
	case <-l.closed:
		return nil
	default:
		close(l.closed)
	}
	for {
		select {
		case c := <-l.conns:
			if c != nil {
				_ = c.Close()
			}
		default:
			return nil
		}
	}
}

func (l *PipeListener) Addr() net.Addr { return pipeAddr("pipe") }

// Dial returns the client end of a new connection pair whose server end
// will be produced by the next Accept. The server sees remoteHost as the
// peer's address.
func (l *PipeListener) Dial(remoteHost string) (net.Conn, error) {
	serverEnd, clientEnd := net.Pipe()
	wrapped := &addrConn{Conn: serverEnd, remote: pipeAddr(remoteHost)}
	select {
	case l.conns <- wrapped:
		return clientEnd, nil
	case <-l.closed:
		serverEnd.Close()
		clientEnd.Close()
		return nil, net.ErrClosed
	}
}

// addrConn overrides the remote address reported for a piped connection so
// allowlist checks see a realistic peer host.
type addrConn struct {
	net.Conn
	remote net.Addr
}

func (c *addrConn) RemoteAddr() net.Addr { return c.remote }
