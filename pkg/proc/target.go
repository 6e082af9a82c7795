package proc

import (
	"errors"
	"fmt"

	"github.com/zdbg/zdb/pkg/host"
	"github.com/zdbg/zdb/pkg/logflags"
	"github.com/zdbg/zdb/pkg/overlay"
)

// ErrUnknownOverlay is returned when an overlay name is not part of any
// overlay table.
var ErrUnknownOverlay = errors.New("unrecognized overlay")

// Target is the breakpoint state of one debugging session: the breakpoint
// registry, the overlay watches and the overlay table locations.
//
// Target is not safe for concurrent use. All calls, including the trap
// callbacks it installs on the host, must be serialized by the caller.
type Target struct {
	host     host.Host
	resolver *overlay.Resolver
	bpmap    *BreakpointMap
	watches  *WatchManager

	tableBases [overlay.NumCategories]uint32

	log logflags.Logger
}

// NewTarget returns an empty Target arming traps on h and resolving
// overlay names with resolver.
func NewTarget(h host.Host, resolver *overlay.Resolver) *Target {
	bpmap := NewBreakpointMap(h)
	return &Target{
		host:     h,
		resolver: resolver,
		bpmap:    bpmap,
		watches:  NewWatchManager(bpmap),
		log:      logflags.BreakpointsLogger(),
	}
}

// Breakpoints returns the breakpoint registry.
func (t *Target) Breakpoints() *BreakpointMap {
	return t.bpmap
}

// Watches returns the overlay watch manager.
func (t *Target) Watches() *WatchManager {
	return t.watches
}

// SetTableBases records the addresses of the overlay tables, indexed by
// overlay.Category.
func (t *Target) SetTableBases(bases [overlay.NumCategories]uint32) {
	t.tableBases = bases
	t.log.Debugf("overlay tables at %#08x", bases)
}

// TableBases returns the addresses of the overlay tables.
func (t *Target) TableBases() [overlay.NumCategories]uint32 {
	return t.tableBases
}

// SetBreakpoint creates a breakpoint for fn at addr.
func (t *Target) SetBreakpoint(fn string, addr uint32) (*Breakpoint, error) {
	bp, err := t.bpmap.Create(fn)
	if err != nil {
		return nil, err
	}
	t.bpmap.Enable(bp, addr)
	return bp, nil
}

// SetOverlayBreakpoint creates a breakpoint for fn at offset inside
// overlay ovl. Categories are searched in order, the first one listing ovl
// wins. If fn already has a breakpoint that breakpoint is returned and
// nothing else happens.
func (t *Target) SetOverlayBreakpoint(fn, ovl string, offset uint32) (*Breakpoint, error) {
	if bp, ok := t.bpmap.ByName(fn); ok {
		return bp, nil
	}
	for cat := overlay.Category(0); cat < overlay.NumCategories; cat++ {
		ok, err := t.watches.ResolveAndArm(t.resolver, cat, t.tableBases[cat], ovl, offset, fn)
		if err != nil {
			return nil, err
		}
		if ok {
			bp, _ := t.bpmap.ByName(fn)
			return bp, nil
		}
	}
	return nil, fmt.Errorf("%w %s", ErrUnknownOverlay, ovl)
}

// ClearBreakpoint deletes the breakpoint of fn.
func (t *Target) ClearBreakpoint(fn string) error {
	bp, ok := t.bpmap.ByName(fn)
	if !ok {
		return NoBreakpointError{fn}
	}
	t.bpmap.Delete(bp)
	return nil
}

// ClearAllBreakpoints deletes every breakpoint, which also tears down every
// overlay watch.
func (t *Target) ClearAllBreakpoints() {
	for _, fn := range t.bpmap.Names() {
		if bp, ok := t.bpmap.ByName(fn); ok {
			t.bpmap.Delete(bp)
		}
	}
}

// Resume resumes execution after a breakpoint halted the host.
func (t *Target) Resume() {
	t.host.Resume()
}

// Detach releases every trap owned by t. t can not be used afterwards.
func (t *Target) Detach() {
	t.ClearAllBreakpoints()
}
