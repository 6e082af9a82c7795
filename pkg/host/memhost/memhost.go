// Package memhost implements host.Host on top of a simulated, word
// addressed memory. Execution is driven explicitly by calling Step and
// memory changes by calling WriteWord, which makes it suitable for tests
// and for running the server without an emulator attached.
package memhost

import (
	"sort"
	"sync"

	"github.com/zdbg/zdb/pkg/host"
	"github.com/zdbg/zdb/pkg/logflags"
)

type trapKind uint8

const (
	execTrap trapKind = iota
	anyExecTrap
	writeTrap
)

func (k trapKind) String() string {
	switch k {
	case execTrap:
		return "exec"
	case anyExecTrap:
		return "exec(any)"
	case writeTrap:
		return "write"
	}
	return "unknown"
}

type trap struct {
	id      host.TrapID
	kind    trapKind
	addr    uint32
	onHit   func()
	onWrite func(uint32)
}

// Host is a simulated machine. All methods are safe for concurrent use,
// callbacks are invoked without internal locks held so they may arm and
// remove traps.
type Host struct {
	mu     sync.Mutex
	mem    map[uint32]uint32
	traps  map[host.TrapID]*trap
	lastID host.TrapID
	halted bool
	log    logflags.Logger
}

var _ host.Host = (*Host)(nil)

// New returns a simulated host with all memory reading as zero.
func New() *Host {
	return &Host{
		mem:   make(map[uint32]uint32),
		traps: make(map[host.TrapID]*trap),
		log:   logflags.HostLogger().WithField("backend", "sim"),
	}
}

func (h *Host) arm(t *trap) host.TrapID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastID++
	t.id = h.lastID
	h.traps[t.id] = t
	h.log.Debugf("armed %s trap %d at %#08x", t.kind, t.id, t.addr)
	return t.id
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
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.traps[id]; ok {
		h.log.Debugf("removed %s trap %d", t.kind, id)
		delete(h.traps, id)
	}
}

// ReadWord implements host.Host.
func (h *Host) ReadWord(addr uint32) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mem[addr]
}

// Halt implements host.Host.
func (h *Host) Halt() {
	h.mu.Lock()
	h.halted = true
	h.mu.Unlock()
}

// Resume implements host.Host.
func (h *Host) Resume() {
	h.mu.Lock()
	h.halted = false
	h.mu.Unlock()
}

// Halted reports whether Halt was called since the last Resume.
func (h *Host) Halted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.halted
}

// WriteWord stores val at addr and then fires the write traps armed on
// addr.
func (h *Host) WriteWord(addr, val uint32) {
	h.mu.Lock()
	h.mem[addr] = val
	ids := h.matching(func(t *trap) bool { return t.kind == writeTrap && t.addr == addr })
	h.mu.Unlock()

	for _, id := range ids {
		if t := h.lookup(id); t != nil {
			t.onWrite(addr)
		}
	}
}

// Step executes one instruction at pc: wildcard execution traps fire
// first, then the traps armed on pc. Step does nothing and returns false
// while the host is halted.
func (h *Host) Step(pc uint32) bool {
	h.mu.Lock()
	if h.halted {
		h.mu.Unlock()
		return false
	}
	anyIDs := h.matching(func(t *trap) bool { return t.kind == anyExecTrap })
	pcIDs := h.matching(func(t *trap) bool { return t.kind == execTrap && t.addr == pc })
	h.mu.Unlock()

	for _, id := range append(anyIDs, pcIDs...) {
		if t := h.lookup(id); t != nil {
			t.onHit()
		}
	}
	return true
}

// ExecTrapsAt returns the number of execution traps armed on addr.
func (h *Host) ExecTrapsAt(addr uint32) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.matching(func(t *trap) bool { return t.kind == execTrap && t.addr == addr }))
}

// WriteTrapsAt returns the number of write traps armed on addr.
func (h *Host) WriteTrapsAt(addr uint32) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.matching(func(t *trap) bool { return t.kind == writeTrap && t.addr == addr }))
}

// AnyExecTraps returns the number of wildcard execution traps armed.
func (h *Host) AnyExecTraps() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.matching(func(t *trap) bool { return t.kind == anyExecTrap }))
}

// Armed returns the number of traps currently installed.
func (h *Host) Armed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.traps)
}

// matching returns the ids of the traps satisfying pred in arming order.
// Must be called with h.mu held.
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

// lookup returns the trap with the given id if it is still armed, a
// callback run earlier in the same event may have removed it.
func (h *Host) lookup(id host.TrapID) *trap {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.traps[id]
}
