package service

import (
	"net"

	"github.com/zdbg/zdb/pkg/host"
	"github.com/zdbg/zdb/pkg/overlay"
)

// Config provides the configuration to start a breakpoint server.
type Config struct {
	// Listener is used to serve requests.
	Listener net.Listener

	// Host is the machine breakpoints are set on. It outlives client
	// sessions, every session starts with no traps armed.
	Host host.Host

	// Resolver maps overlay names to overlay table slots. If nil the
	// default overlay tables are used.
	Resolver *overlay.Resolver

	// TableBases are the overlay table locations a session starts with,
	// until the client sends its own.
	TableBases [overlay.NumCategories]uint32

	// BufferSize is the largest request accepted from a client. Zero selects
	// the default.
	BufferSize int

	// DisconnectChan is sent a value, without blocking, every time a
	// client disconnects and its breakpoints have been cleared.
	DisconnectChan chan<- struct{}
}
