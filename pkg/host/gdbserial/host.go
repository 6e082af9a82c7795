// Package gdbserial implements host.Host on top of a GDB Remote Serial
// Protocol stub, such as the gdb server of an N64 emulator.
//
// A single goroutine owns the connection to the stub. It resumes the
// target, waits for stop packets and turns them into trap callbacks. Host
// methods called from other goroutines are sent to it as requests; while
// the target is running the stub is interrupted to serve them.
//
// Execution traps are implemented with software breakpoints ('Z0'), write
// traps with write watchpoints ('Z2'), wildcard execution traps by single
// stepping the target for as long as one is armed.
//
// Trap callbacks run on a separate goroutine and the owning goroutine keeps
// serving requests until every callback of a stop has returned: callbacks
// may therefore use the Host freely, and the target is only resumed after
// they are done.
package gdbserial

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/zdbg/zdb/pkg/host"
	"github.com/zdbg/zdb/pkg/logflags"
)

// DefaultPCRegnum is the register number of the program counter in the
// MIPS register layout used by gdb.
const DefaultPCRegnum = 0x25

const sigtrap = 5

// Config describes how to reach a stub.
type Config struct {
	Addr     string // host:port of the stub
	PCRegnum int    // register number of the program counter
	Addr64   bool   // the stub expects sign extended 64bit addresses

	// Halted leaves the target stopped after connecting instead of
	// resuming it.
	Halted bool
}

type trapKind uint8

const (
	execTrap trapKind = iota
	anyExecTrap
	writeTrap
)

type trap struct {
	kind    trapKind
	addr    uint32
	onHit   func()
	onWrite func(uint32)
}

type request struct {
	fn   func()
	done chan struct{}
}

// Host is a host.Host backed by a gdb stub.
type Host struct {
	conn     *gdbConn
	pcRegnum int

	// owned by the loop goroutine
	traps      map[host.TrapID]*trap
	lastID     host.TrapID
	execRefs   map[uint32]int
	writeRefs  map[uint32]int
	running    bool   // target resumed, waiting for a stop packet
	halted     bool   // Halt called since the last Resume
	pc         uint32 // program counter at the last stop
	reinsertBp bool   // the breakpoint at pc was lifted to step over it

	requests  chan request
	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	log logflags.Logger
}

var _ host.Host = (*Host)(nil)

// Dial connects to the stub described by cfg and starts the target.
func Dial(cfg Config) (*Host, error) {
	c, err := net.DialTimeout("tcp", cfg.Addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	h, err := New(c, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	return h, nil
}

// New starts a Host over an established connection to a stub.
func New(c net.Conn, cfg Config) (*Host, error) {
	if cfg.PCRegnum == 0 {
		cfg.PCRegnum = DefaultPCRegnum
	}
	h := &Host{
		conn:      newConn(c, cfg.Addr64),
		pcRegnum:  cfg.PCRegnum,
		traps:     make(map[host.TrapID]*trap),
		execRefs:  make(map[uint32]int),
		writeRefs: make(map[uint32]int),
		halted:    cfg.Halted,
		requests:  make(chan request),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
		log:       logflags.HostLogger().WithField("backend", "gdb"),
	}
	if err := h.conn.handshake(); err != nil {
		return nil, fmt.Errorf("gdb stub handshake: %v", err)
	}
	if _, err := h.conn.stopReason(); err != nil {
		return nil, err
	}
	pc, err := h.conn.readRegister(h.pcRegnum)
	if err != nil {
		return nil, err
	}
	h.pc = pc
	h.log.Infof("connected to gdb stub, target stopped at %#08x", pc)
	go h.loop()
	return h, nil
}

// do runs fn on the loop goroutine. Returns false if the host is closed.
func (h *Host) do(fn func()) bool {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case h.requests <- req:
	case <-h.done:
		return false
	}
	select {
	case <-req.done:
		return true
	case <-h.done:
		return false
	}
}

func (h *Host) arm(t *trap) host.TrapID {
	id := host.NoTrap
	h.do(func() {
		var err error
		switch t.kind {
		case execTrap:
			if h.execRefs[t.addr] == 0 {
				err = h.conn.setBreakpoint(t.addr)
			}
			if err == nil {
				h.execRefs[t.addr]++
			}
		case writeTrap:
			if h.writeRefs[t.addr] == 0 {
				err = h.conn.setWatchpoint(t.addr)
			}
			if err == nil {
				h.writeRefs[t.addr]++
			}
		}
		if err != nil {
			h.log.Errorf("could not arm trap at %#08x: %v", t.addr, err)
		}
		// the trap is registered even if the stub refused it so that the
		// caller can remove it as usual
		h.lastID++
		id = h.lastID
		h.traps[id] = t
	})
	return id
}

// ArmExecutionTrap implements host.Host.
func (h *Host) ArmExecutionTrap(addr uint32, onHit func()) host.TrapID {
	return h.arm(&trap{kind: execTrap, addr: addr, onHit: onHit})
}

// ArmAnyExecutionTrap implements host.Host.
func (h *Host) ArmAnyExecutionTrap(onHit func()) host.TrapID {
	return h.arm(&trap{kind: anyExecTrap, onHit: onHit})
}

// ArmWriteTrap implements host.Host.
func (h *Host) ArmWriteTrap(addr uint32, onWrite func(uint32)) host.TrapID {
	return h.arm(&trap{kind: writeTrap, addr: addr, onWrite: onWrite})
}

// RemoveTrap implements host.Host.
func (h *Host) RemoveTrap(id host.TrapID) {
	h.do(func() {
		t, ok := h.traps[id]
		if !ok {
			return
		}
		delete(h.traps, id)
		var err error
		switch t.kind {
		case execTrap:
			h.execRefs[t.addr]--
			if h.execRefs[t.addr] <= 0 {
				delete(h.execRefs, t.addr)
				if h.reinsertBp && t.addr == h.pc {
					// already lifted to step over it
					h.reinsertBp = false
				} else {
					err = h.conn.clearBreakpoint(t.addr)
				}
			}
		case writeTrap:
			h.writeRefs[t.addr]--
			if h.writeRefs[t.addr] <= 0 {
				delete(h.writeRefs, t.addr)
				err = h.conn.clearWatchpoint(t.addr)
			}
		}
		if err != nil {
			h.log.Errorf("could not remove trap %d: %v", id, err)
		}
	})
}

// ReadWord implements host.Host.
func (h *Host) ReadWord(addr uint32) uint32 {
	var v uint32
	h.do(func() {
		var err error
		v, err = h.conn.readWord(addr)
		if err != nil {
			h.log.Errorf("reading %#08x: %v", addr, err)
		}
	})
	return v
}

// Halt implements host.Host.
func (h *Host) Halt() {
	h.do(func() { h.halted = true })
}

// Resume implements host.Host.
func (h *Host) Resume() {
	h.do(func() { h.halted = false })
}

// Close stops the target's surveillance, detaches from the stub and closes
// the connection.
func (h *Host) Close() error {
	h.closeOnce.Do(func() { close(h.stopChan) })
	<-h.done
	return h.conn.close()
}

// Done is closed when the host stops serving requests, because of Close
// or because the connection to the stub was lost.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

var errClosed = errors.New("host closed")

func (h *Host) loop() {
	defer close(h.done)
	defer h.shutdown()

	if err := h.maybeResume(); err != nil {
		h.log.Errorf("resuming target: %v", err)
		return
	}

	for {
		select {
		case req := <-h.requests:
			var stop []byte
			if h.running {
				var err error
				stop, err = h.interrupt()
				if err != nil {
					h.log.Errorf("interrupting target: %v", err)
					close(req.done)
					return
				}
			}
			req.fn()
			close(req.done)
			if stop != nil {
				// callbacks may need the caller of req, serve it first
				if err := h.handleStop(stop); err != nil {
					h.log.Errorf("%v", err)
					return
				}
			}
			if err := h.maybeResume(); err != nil {
				h.log.Errorf("resuming target: %v", err)
				return
			}

		case pkt, ok := <-h.conn.packets:
			if !ok {
				h.log.Errorf("connection to gdb stub lost: %v", h.conn.readErr)
				return
			}
			if !h.running {
				h.log.Warnf("unexpected packet while stopped: %s", pkt)
				continue
			}
			if err := h.handleStop(pkt); err != nil {
				h.log.Errorf("%v", err)
				return
			}
			if err := h.maybeResume(); err != nil {
				h.log.Errorf("resuming target: %v", err)
				return
			}

		case <-h.stopChan:
			return
		}
	}
}

// interrupt stops the running target and returns the stop packet.
func (h *Host) interrupt() ([]byte, error) {
	if err := h.conn.sendCtrlC(); err != nil {
		return nil, err
	}
	for {
		pkt, err := h.conn.recv(h.conn.timeout)
		if err != nil {
			return nil, err
		}
		sp, err := parseStopPacket(pkt)
		if err != nil {
			return nil, err
		}
		if !sp.output {
			return pkt, nil
		}
	}
}

// handleStop processes a stop packet received while the target was
// running and fires the matching callbacks.
func (h *Host) handleStop(pkt []byte) error {
	sp, err := parseStopPacket(pkt)
	if err != nil {
		return err
	}
	if sp.output {
		return nil
	}
	h.running = false
	if sp.exited {
		return errors.New("target exited")
	}

	if h.reinsertBp {
		h.reinsertBp = false
		if h.execRefs[h.pc] > 0 {
			if err := h.conn.setBreakpoint(h.pc); err != nil {
				h.log.Errorf("reinserting breakpoint at %#08x: %v", h.pc, err)
			}
		}
	}

	pc, err := h.conn.readRegister(h.pcRegnum)
	if err != nil {
		return err
	}
	h.pc = pc

	switch {
	case sp.watch:
		h.log.Debugf("write to %#08x at pc %#08x", sp.watchAddr, pc)
		ids := h.matching(func(t *trap) bool { return t.kind == writeTrap && t.addr == sp.watchAddr })
		return h.fire(ids, func(t *trap) { t.onWrite(sp.watchAddr) })
	case sp.sig == sigtrap:
		wild := h.matching(func(t *trap) bool { return t.kind == anyExecTrap })
		atpc := h.matching(func(t *trap) bool { return t.kind == execTrap && t.addr == pc })
		return h.fire(append(wild, atpc...), func(t *trap) { t.onHit() })
	default:
		h.log.Debugf("target stopped with signal %d at %#08x", sp.sig, pc)
		return nil
	}
}

// fire runs call for every trap in ids that is still armed when its turn
// comes, on a separate goroutine, serving requests in the meantime.
func (h *Host) fire(ids []host.TrapID, call func(t *trap)) error {
	if len(ids) == 0 {
		return nil
	}
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for _, id := range ids {
			var t *trap
			if !h.do(func() { t = h.traps[id] }) {
				return
			}
			if t != nil {
				call(t)
			}
		}
	}()
	for {
		select {
		case req := <-h.requests:
			req.fn()
			close(req.done)
		case <-finished:
			return nil
		case <-h.stopChan:
			return errClosed
		}
	}
}

func (h *Host) maybeResume() error {
	if h.running || h.halted {
		return nil
	}
	step := false
	for _, t := range h.traps {
		if t.kind == anyExecTrap {
			step = true
			break
		}
	}
	if h.execRefs[h.pc] > 0 {
		// step over the breakpoint we are stopped at
		if err := h.conn.clearBreakpoint(h.pc); err != nil {
			return err
		}
		h.reinsertBp = true
		step = true
	}
	if err := h.conn.resume(step); err != nil {
		return err
	}
	h.running = true
	return nil
}

// matching returns the ids of the traps satisfying pred in arming order.
func (h *Host) matching(pred func(*trap) bool) []host.TrapID {
	var ids []host.TrapID
	for id, t := range h.traps {
		if pred(t) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Host) shutdown() {
	if h.running {
		if _, err := h.interrupt(); err != nil {
			h.log.Debugf("interrupting target: %v", err)
			return
		}
		h.running = false
	}
	if err := h.conn.detach(); err != nil {
		h.log.Debugf("detaching: %v", err)
	}
}
