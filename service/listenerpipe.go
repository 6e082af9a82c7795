package service

import (
	"net"
	"sync"
)

// ListenerPipe connects a server to a client inside one process. The
// listener is given to the server in Config.Listener and the returned
// connection to the client. The listener hands out its end of the pipe
// once, later calls to Accept wait until the listener is closed, so the
// server sees a single client that never reconnects.
func ListenerPipe() (net.Listener, net.Conn) {
	serverEnd, clientEnd := net.Pipe()
	return &pipeListener{conn: serverEnd, closed: make(chan struct{})}, clientEnd
}

type pipeListener struct {
	mu       sync.Mutex
	accepted bool
	conn     net.Conn

	closed    chan struct{}
	closeOnce sync.Once
}

func (l *pipeListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	first := !l.accepted
	l.accepted = true
	l.mu.Unlock()
	if first {
		return l.conn, nil
	}
	<-l.closed
	return nil, net.ErrClosed
}

// Close wakes up a pending Accept. It does not close the pipe, the
// connection belongs to the server once accepted.
func (l *pipeListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return pipeAddr{}
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

