package proc

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/zdbg/zdb/pkg/host"
	"github.com/zdbg/zdb/pkg/logflags"
)

// Breakpoint represents a logical breakpoint requested for a function.
// A breakpoint is only backed by an execution trap while it is enabled;
// breakpoints inside an overlay are enabled and disabled as the overlay is
// loaded, moved and unloaded.
type Breakpoint struct {
	ID           int    // Key of the breakpoint in BreakpointMap.M
	FunctionName string // Name of the function, unique across breakpoints

	Addr    uint32      // Address the trap is armed at, valid if Enabled
	TrapID  host.TrapID // Execution trap, valid if Enabled
	Enabled bool

	// OverlayName is set for breakpoints inside an overlay. OverlayOffset is
	// the offset of the function from the overlay's load address.
	OverlayName   string
	OverlayOffset uint32

	TotalHitCount uint64 // Number of times the breakpoint has been reached
}

// InOverlay returns true if bp targets code inside an overlay.
func (bp *Breakpoint) InOverlay() bool {
	return bp.OverlayName != ""
}

func (bp *Breakpoint) String() string {
	where := "pending"
	if bp.Enabled {
		where = fmt.Sprintf("%#08x", bp.Addr)
	}
	if bp.InOverlay() {
		return fmt.Sprintf("Breakpoint %d %s at %s (%s+%#x) (%d)", bp.ID, bp.FunctionName, where, bp.OverlayName, bp.OverlayOffset, bp.TotalHitCount)
	}
	return fmt.Sprintf("Breakpoint %d %s at %s (%d)", bp.ID, bp.FunctionName, where, bp.TotalHitCount)
}

// BreakpointExistsError is returned when trying to create a breakpoint for
// a function that already has one.
type BreakpointExistsError struct {
	FunctionName string
}

func (bpe BreakpointExistsError) Error() string {
	return fmt.Sprintf("%s already has an active breakpoint", bpe.FunctionName)
}

// NoBreakpointError is returned when trying to delete a breakpoint for a
// function that doesn't have one.
type NoBreakpointError struct {
	FunctionName string
}

func (nbp NoBreakpointError) Error() string {
	return fmt.Sprintf("%s does not have an active breakpoint", nbp.FunctionName)
}

// BreakpointMap owns every breakpoint and indexes them by function name,
// by trap address, by trap id and by overlay. Only the arena M holds
// breakpoints, the indices hold breakpoint ids.
//
// BreakpointMap is not safe for concurrent use, see Target.
type BreakpointMap struct {
	M map[int]*Breakpoint

	byName    map[string]int
	byAddr    map[uint32][]int
	byTrap    map[host.TrapID]int
	byOverlay map[string][]int

	host    host.Host
	watches *WatchManager

	// OnHit is called every time an enabled breakpoint is reached, before
	// the host is halted.
	OnHit func(bp *Breakpoint)

	breakpointIDCounter int
	log                 logflags.Logger
}

// NewBreakpointMap creates a new BreakpointMap arming traps on h.
func NewBreakpointMap(h host.Host) *BreakpointMap {
	return &BreakpointMap{
		M:         make(map[int]*Breakpoint),
		byName:    make(map[string]int),
		byAddr:    make(map[uint32][]int),
		byTrap:    make(map[host.TrapID]int),
		byOverlay: make(map[string][]int),
		host:      h,
		log:       logflags.BreakpointsLogger(),
	}
}

// Create allocates a disabled breakpoint for fn.
func (bpmap *BreakpointMap) Create(fn string) (*Breakpoint, error) {
	if _, ok := bpmap.byName[fn]; ok {
		return nil, BreakpointExistsError{fn}
	}
	bpmap.breakpointIDCounter++
	bp := &Breakpoint{ID: bpmap.breakpointIDCounter, FunctionName: fn}
	bpmap.M[bp.ID] = bp
	bpmap.byName[fn] = bp.ID
	return bp, nil
}

// AssociateOverlay records that bp lives at offset inside overlay ovl and
// makes it a dependent of that overlay.
func (bpmap *BreakpointMap) AssociateOverlay(bp *Breakpoint, ovl string, offset uint32) {
	bp.OverlayName = ovl
	bp.OverlayOffset = offset
	bpmap.byOverlay[ovl] = append(bpmap.byOverlay[ovl], bp.ID)
}

// Enable arms an execution trap for bp at addr. Enabling an enabled
// breakpoint does nothing, even if addr differs: use Retarget to move it.
func (bpmap *BreakpointMap) Enable(bp *Breakpoint, addr uint32) {
	if bp.Enabled {
		return
	}
	id := bp.ID
	bp.Addr = addr
	bp.TrapID = bpmap.host.ArmExecutionTrap(addr, func() { bpmap.hit(id) })
	bpmap.byAddr[addr] = append(bpmap.byAddr[addr], id)
	bpmap.byTrap[bp.TrapID] = id
	bp.Enabled = true
	bpmap.log.Debugf("enabled %s", bp)
}

// Disable removes bp's execution trap. Disabling a disabled breakpoint
// does nothing.
func (bpmap *BreakpointMap) Disable(bp *Breakpoint) {
	if !bp.Enabled {
		return
	}
	bpmap.host.RemoveTrap(bp.TrapID)
	ids := bpmap.byAddr[bp.Addr]
	if i := slices.Index(ids, bp.ID); i >= 0 {
		ids = slices.Delete(ids, i, i+1)
	}
	if len(ids) > 0 {
		bpmap.byAddr[bp.Addr] = ids
	} else {
		delete(bpmap.byAddr, bp.Addr)
	}
	delete(bpmap.byTrap, bp.TrapID)
	bp.Addr = 0
	bp.TrapID = host.NoTrap
	bp.Enabled = false
	bpmap.log.Debugf("disabled %s", bp)
}

// Retarget makes sure bp is enabled at addr, moving its trap if it is
// currently enabled somewhere else.
func (bpmap *BreakpointMap) Retarget(bp *Breakpoint, addr uint32) {
	if bp.Enabled && bp.Addr == addr {
		return
	}
	bpmap.Disable(bp)
	bpmap.Enable(bp, addr)
}

// Delete disables bp and forgets it. If bp was the last breakpoint
// depending on its overlay the overlay's watch is torn down.
func (bpmap *BreakpointMap) Delete(bp *Breakpoint) {
	bpmap.Disable(bp)
	delete(bpmap.byName, bp.FunctionName)
	delete(bpmap.M, bp.ID)

	if !bp.InOverlay() {
		return
	}
	deps := bpmap.byOverlay[bp.OverlayName]
	if i := slices.Index(deps, bp.ID); i >= 0 {
		deps = slices.Delete(deps, i, i+1)
	}
	if len(deps) > 0 {
		bpmap.byOverlay[bp.OverlayName] = deps
		return
	}
	delete(bpmap.byOverlay, bp.OverlayName)
	if bpmap.watches != nil {
		bpmap.watches.Teardown(bp.OverlayName)
	}
}

// ByName returns the breakpoint for function fn.
func (bpmap *BreakpointMap) ByName(fn string) (*Breakpoint, bool) {
	id, ok := bpmap.byName[fn]
	if !ok {
		return nil, false
	}
	return bpmap.M[id], true
}

// ByAddr returns the enabled breakpoint armed at addr. If more than one
// breakpoint is armed there the one enabled first is returned.
func (bpmap *BreakpointMap) ByAddr(addr uint32) (*Breakpoint, bool) {
	ids := bpmap.byAddr[addr]
	if len(ids) == 0 {
		return nil, false
	}
	return bpmap.M[ids[0]], true
}

// AllByAddr returns every enabled breakpoint armed at addr, in the order
// they were enabled.
func (bpmap *BreakpointMap) AllByAddr(addr uint32) []*Breakpoint {
	ids := bpmap.byAddr[addr]
	r := make([]*Breakpoint, 0, len(ids))
	for _, id := range ids {
		r = append(r, bpmap.M[id])
	}
	return r
}

// ByTrap returns the enabled breakpoint backed by trap id.
func (bpmap *BreakpointMap) ByTrap(id host.TrapID) (*Breakpoint, bool) {
	bpid, ok := bpmap.byTrap[id]
	if !ok {
		return nil, false
	}
	return bpmap.M[bpid], true
}

// Dependents returns the breakpoints depending on overlay ovl, in creation
// order.
func (bpmap *BreakpointMap) Dependents(ovl string) []*Breakpoint {
	ids := bpmap.byOverlay[ovl]
	r := make([]*Breakpoint, 0, len(ids))
	for _, id := range ids {
		r = append(r, bpmap.M[id])
	}
	return r
}

// Names returns the function names of all breakpoints, sorted.
func (bpmap *BreakpointMap) Names() []string {
	r := make([]string, 0, len(bpmap.byName))
	for fn := range bpmap.byName {
		r = append(r, fn)
	}
	slices.Sort(r)
	return r
}

// Len returns the number of breakpoints.
func (bpmap *BreakpointMap) Len() int {
	return len(bpmap.M)
}

func (bpmap *BreakpointMap) hit(id int) {
	bp, ok := bpmap.M[id]
	if !ok || !bp.Enabled {
		return
	}
	bp.TotalHitCount++
	bpmap.log.Infof("hit breakpoint %s", bp.FunctionName)
	if bpmap.OnHit != nil {
		bpmap.OnHit(bp)
	}
	bpmap.host.Halt()
}
