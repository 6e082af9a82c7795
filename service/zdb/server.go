// Package zdb implements the zdb breakpoint server.
//
// The server accepts one client at a time. Requests are framed with
// pkg/wire and are single line commands, see command.go. Each client gets a
// fresh proc.Target on the configured host; when the client disconnects
// every breakpoint it created is deleted.
//
// All Target state is owned by a single event loop goroutine. Bytes read
// from the client and trap callbacks coming from the host are both posted
// to the loop, so breakpoint bookkeeping is never concurrent.
package zdb

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/zdbg/zdb/pkg/logflags"
	"github.com/zdbg/zdb/pkg/overlay"
	"github.com/zdbg/zdb/pkg/proc"
	"github.com/zdbg/zdb/pkg/wire"
	"github.com/zdbg/zdb/service"
)

// Server is a zdb breakpoint server.
type Server struct {
	// config is all the information necessary to start the server.
	config *service.Config
	// listener is used to accept client connections.
	listener net.Listener
	// host wraps config.Host so that trap callbacks run on the event loop.
	host *loopHost
	// resolver maps overlay names to table slots.
	resolver *overlay.Resolver
	// stopChan is closed when the server is Stop()-ed. This can be used to
	// signal to goroutines run by the server that it's time to quit.
	stopChan chan struct{}
	// events is the queue of the event loop.
	events chan func()
	// loopDone is closed when the event loop exits.
	loopDone chan struct{}

	mu      sync.Mutex
	conn    net.Conn // active client connection, nil if none
	started bool
	stopped bool

	// session is the state of the active client, only touched by the event
	// loop.
	session *session

	// log is used for structured logging.
	log logflags.Logger
}

var _ service.Server = (*Server)(nil)

type session struct {
	conn   net.Conn
	framer *wire.Framer
	target *proc.Target
}

// NewServer creates a new Server.
func NewServer(config *service.Config) *Server {
	logger := logflags.ServerLogger()
	logflags.WriteListeningMessage(config.Listener.Addr().String())
	resolver := config.Resolver
	if resolver == nil {
		resolver = overlay.NewResolver(overlay.DefaultTables())
	}
	s := &Server{
		config:   config,
		listener: config.Listener,
		resolver: resolver,
		stopChan: make(chan struct{}),
		events:   make(chan func()),
		loopDone: make(chan struct{}),
		log:      logger,
	}
	s.host = &loopHost{Host: config.Host, s: s}
	return s
}

// Run starts accepting clients.
func (s *Server) Run() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("server stopped")
	}
	if s.started {
		return errors.New("server already running")
	}
	s.started = true
	go s.loop()
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and the client connection. The client's
// breakpoints are cleared before Stop returns.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	close(s.stopChan)
	if s.conn != nil {
		// the connection goroutine notices the closed connection and ends
		// the session, unless the event loop already quit
		s.conn.Close()
	}
	s.mu.Unlock()

	err := s.listener.Close()
	if started {
		<-s.loopDone
	}
	return err
}

// call runs fn on the event loop and waits for it to complete. Returns
// false if the event loop is not running anymore.
func (s *Server) call(fn func()) bool {
	done := make(chan struct{})
	select {
	case s.events <- func() { fn(); close(done) }:
	case <-s.loopDone:
		return false
	}
	select {
	case <-done:
		return true
	case <-s.loopDone:
		return false
	}
}

func (s *Server) loop() {
	defer close(s.loopDone)
	for {
		select {
		case ev := <-s.events:
			ev()
		case <-s.stopChan:
			if s.session != nil {
				s.endSession(s.session.conn)
			}
			return
		}
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
			default:
				s.log.Errorf("Error accepting client connection: %s", err)
			}
			return
		}
		if !s.claim(conn) {
			s.log.Error("only one client at a time may be connected to the server")
			conn.Close()
			continue
		}
		go s.serveConn(conn)
	}
}

// claim makes conn the active connection if there is none.
func (s *Server) claim(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil || s.stopped {
		return false
	}
	s.conn = conn
	return true
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.release(conn)

	if !s.call(func() { s.startSession(conn) }) {
		return
	}
	defer s.call(func() { s.endSession(conn) })

	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if !s.call(func() { s.feed(conn, data) }) {
				return
			}
		}
		if err != nil {
			stopRequested := false
			select {
			case <-s.stopChan:
				stopRequested = true
			default:
			}
			if err != io.EOF && !stopRequested && !errors.Is(err, net.ErrClosed) {
				s.log.Errorf("reading from client: %v", err)
			}
			return
		}
	}
}

// release frees the client slot after conn's session ended.
func (s *Server) release(conn net.Conn) {
	conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	s.signalDisconnect()
}

func (s *Server) signalDisconnect() {
	if s.config.DisconnectChan == nil {
		return
	}
	select {
	case s.config.DisconnectChan <- struct{}{}:
	default:
	}
}

func (s *Server) startSession(conn net.Conn) {
	target := proc.NewTarget(s.host, s.resolver)
	target.SetTableBases(s.config.TableBases)
	target.Breakpoints().OnHit = func(bp *proc.Breakpoint) {
		s.log.Infof("breakpoint hit: %s", bp.FunctionName)
	}
	s.session = &session{
		conn:   conn,
		framer: wire.NewFramer(s.config.BufferSize),
		target: target,
	}
	s.log.Infof("Client connected from %s", conn.RemoteAddr())
}

// endSession deletes every breakpoint of conn's session.
func (s *Server) endSession(conn net.Conn) {
	sess := s.session
	if sess == nil || sess.conn != conn {
		return
	}
	sess.target.Detach()
	s.session = nil
	s.log.Info("Client disconnected! Cleared all breakpoints")
}

func (s *Server) feed(conn net.Conn, data []byte) {
	sess := s.session
	if sess == nil || sess.conn != conn {
		return
	}
	err := sess.framer.Feed(data, func(payload string) {
		resp, ok := s.handleInput(sess.target, payload)
		if !ok {
			return
		}
		if _, err := conn.Write(wire.EncodeResponse(resp)); err != nil {
			s.log.WithError(err).Error("writing response")
		}
	})
	if err != nil {
		s.log.WithError(err).Error("closing client connection")
		conn.Close()
	}
}
