package proc

import (
	"fmt"

	"github.com/zdbg/zdb/pkg/host"
	"github.com/zdbg/zdb/pkg/logflags"
	"github.com/zdbg/zdb/pkg/overlay"
)

// This file implements overlay watches.
//
// Overlays are loaded at an address chosen at runtime and recorded in a
// slot of their category's overlay table (zero while unloaded). For every
// overlay that has at least one breakpoint we keep exactly one write trap
// on that slot. When the slot is written the new value is not read right
// away, since the write may not be observable yet, instead a one-shot
// wildcard execution trap is armed and the slot is read on the next
// executed instruction. A nonzero value re-targets every dependent
// breakpoint to the new load address, zero disables them all.

// WatchState is the state of an overlay watch.
type WatchState uint8

const (
	// WatchIdle is the state of a watch that has been torn down.
	WatchIdle WatchState = iota
	// WatchWatching means the table slot write trap is armed.
	WatchWatching
	// WatchPendingResolution means the slot was written and a one-shot
	// trap will read it on the next instruction.
	WatchPendingResolution
)

func (s WatchState) String() string {
	switch s {
	case WatchIdle:
		return "idle"
	case WatchWatching:
		return "watching"
	case WatchPendingResolution:
		return "pending-resolution"
	}
	return fmt.Sprintf("WatchState(%d)", s)
}

// OverlayWatch is the surveillance of one overlay's table slot.
type OverlayWatch struct {
	OverlayName string
	EntryAddr   uint32      // Address of the slot holding the load address
	WatchTrapID host.TrapID // Write trap on EntryAddr
	State       WatchState

	resolveTrapID host.TrapID // One-shot trap, valid in WatchPendingResolution
}

// WatchManager owns the overlay watches of a BreakpointMap.
type WatchManager struct {
	bpmap   *BreakpointMap
	host    host.Host
	watches map[string]*OverlayWatch
	log     logflags.Logger
}

// NewWatchManager creates the watch manager for bpmap. Deleting the last
// breakpoint of an overlay from bpmap tears down that overlay's watch.
func NewWatchManager(bpmap *BreakpointMap) *WatchManager {
	wm := &WatchManager{
		bpmap:   bpmap,
		host:    bpmap.host,
		watches: make(map[string]*OverlayWatch),
		log:     logflags.BreakpointsLogger(),
	}
	bpmap.watches = wm
	return wm
}

// ResolveAndArm creates a breakpoint for fn at offset inside overlay ovl,
// if ovl is part of category cat. The category's table starts at
// tableBase. The breakpoint is enabled right away if the overlay is
// loaded, pending otherwise. Returns false if ovl is not in the category.
func (wm *WatchManager) ResolveAndArm(resolver *overlay.Resolver, cat overlay.Category, tableBase uint32, ovl string, offset uint32, fn string) (bool, error) {
	idx, ok := resolver.Index(cat, ovl)
	if !ok {
		return false, nil
	}
	entry := cat.Geometry().EntryAddr(tableBase, idx)
	base := wm.host.ReadWord(entry)

	bp, err := wm.bpmap.Create(fn)
	if err != nil {
		return false, err
	}
	wm.bpmap.AssociateOverlay(bp, ovl, offset)
	if base != 0 {
		wm.bpmap.Enable(bp, base+offset)
	}

	if _, ok := wm.watches[ovl]; !ok {
		w := &OverlayWatch{OverlayName: ovl, EntryAddr: entry, State: WatchWatching}
		w.WatchTrapID = wm.host.ArmWriteTrap(entry, func(uint32) { wm.tableWritten(ovl) })
		wm.watches[ovl] = w
		wm.log.Debugf("watching %s overlay %s at %#08x", cat, ovl, entry)
	}
	return true, nil
}

// Watch returns the watch for overlay ovl.
func (wm *WatchManager) Watch(ovl string) (*OverlayWatch, bool) {
	w, ok := wm.watches[ovl]
	return w, ok
}

// Len returns the number of overlays being watched.
func (wm *WatchManager) Len() int {
	return len(wm.watches)
}

// Teardown removes every trap owned by ovl's watch and forgets it.
func (wm *WatchManager) Teardown(ovl string) {
	w, ok := wm.watches[ovl]
	if !ok {
		return
	}
	if w.State == WatchPendingResolution {
		wm.host.RemoveTrap(w.resolveTrapID)
		w.resolveTrapID = host.NoTrap
	}
	wm.host.RemoveTrap(w.WatchTrapID)
	w.State = WatchIdle
	delete(wm.watches, ovl)
	wm.log.Debugf("stopped watching overlay %s", ovl)
}

func (wm *WatchManager) tableWritten(ovl string) {
	w, ok := wm.watches[ovl]
	if !ok || w.State != WatchWatching {
		// already waiting for the next instruction
		return
	}
	w.State = WatchPendingResolution
	w.resolveTrapID = wm.host.ArmAnyExecutionTrap(func() { wm.resolve(ovl) })
}

func (wm *WatchManager) resolve(ovl string) {
	w, ok := wm.watches[ovl]
	if !ok || w.State != WatchPendingResolution {
		return
	}
	base := wm.host.ReadWord(w.EntryAddr)
	deps := wm.bpmap.Dependents(ovl)
	if base != 0 {
		wm.log.Debugf("overlay %s loaded at %#08x", ovl, base)
		for _, bp := range deps {
			wm.bpmap.Retarget(bp, base+bp.OverlayOffset)
		}
	} else {
		wm.log.Debugf("overlay %s unloaded", ovl)
		for _, bp := range deps {
			wm.bpmap.Disable(bp)
		}
	}
	wm.host.RemoveTrap(w.resolveTrapID)
	w.resolveTrapID = host.NoTrap
	w.State = WatchWatching
}
