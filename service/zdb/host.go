package zdb

import "github.com/zdbg/zdb/pkg/host"

// loopHost is the host.Host given to session targets. Trap callbacks are
// run on the server's event loop, the caller of the callback is blocked
// until it completes.
//
// Callbacks must not be invoked from the event loop itself, host
// implementations only call them from their own goroutines or from
// methods the event loop never uses.
type loopHost struct {
	host.Host
	s *Server
}

func (h *loopHost) ArmExecutionTrap(addr uint32, onHit func()) host.TrapID {
	return h.Host.ArmExecutionTrap(addr, func() { h.s.call(onHit) })
}

func (h *loopHost) ArmAnyExecutionTrap(onHit func()) host.TrapID {
	return h.Host.ArmAnyExecutionTrap(func() { h.s.call(onHit) })
}

func (h *loopHost) ArmWriteTrap(addr uint32, onWrite func(addr uint32)) host.TrapID {
	return h.Host.ArmWriteTrap(addr, func(addr uint32) {
		h.s.call(func() { onWrite(addr) })
	})
}
