package proc_test

import (
	"errors"
	"flag"
	"os"
	"testing"

	"github.com/zdbg/zdb/pkg/host/memhost"
	"github.com/zdbg/zdb/pkg/logflags"
	"github.com/zdbg/zdb/pkg/overlay"
	"github.com/zdbg/zdb/pkg/proc"
)

const (
	actorTable   = 0x800E8530
	hidanSlot    = actorTable + 1*0x20 + 0x10 // bg_hidan is the second actor
	particleBase = 0x800E7C40
)

func TestMain(m *testing.M) {
	var logConf string
	flag.StringVar(&logConf, "log", "", "configures logging")
	flag.Parse()
	logflags.Setup(logConf != "", logConf, "")
	os.Exit(m.Run())
}

func testTables() overlay.Tables {
	tables := overlay.DefaultTables()
	tables[overlay.Actor] = []string{"player", "bg_hidan", "en_test"}
	tables[overlay.Particle] = []string{"effect_ss_dust", "effect_ss_bomb"}
	return tables
}

func withTestTarget(t *testing.T, fn func(tgt *proc.Target, sim *memhost.Host)) {
	sim := memhost.New()
	tgt := proc.NewTarget(sim, overlay.NewResolver(testTables()))
	tgt.SetTableBases([overlay.NumCategories]uint32{actorTable, particleBase, 0x800F1000, 0x800F2000})
	fn(tgt, sim)
	tgt.Detach()
	if n := sim.Armed(); n != 0 {
		t.Fatalf("%d traps left armed after Detach", n)
	}
}

// checkIndices verifies that every index of the registry agrees with the
// set of enabled breakpoints.
func checkIndices(t *testing.T, tgt *proc.Target) {
	t.Helper()
	bpmap := tgt.Breakpoints()
	for _, bp := range bpmap.M {
		got, ok := bpmap.ByName(bp.FunctionName)
		if !ok || got != bp {
			t.Fatalf("%s not indexed by name", bp.FunctionName)
		}
		if bp.Enabled {
			if bp.TrapID == 0 {
				t.Fatalf("%s enabled without a trap", bp.FunctionName)
			}
			if got, ok := bpmap.ByTrap(bp.TrapID); !ok || got != bp {
				t.Fatalf("%s not indexed by trap", bp.FunctionName)
			}
			found := false
			for _, other := range bpmap.AllByAddr(bp.Addr) {
				if other == bp {
					found = true
				}
			}
			if !found {
				t.Fatalf("%s not indexed by address", bp.FunctionName)
			}
		} else if bp.Addr != 0 || bp.TrapID != 0 {
			t.Fatalf("%s disabled but has address %#x trap %d", bp.FunctionName, bp.Addr, bp.TrapID)
		}
	}
}

func TestEnableIndexesByAddress(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		bp, err := tgt.SetBreakpoint("myFunc", 4660)
		if err != nil {
			t.Fatal(err)
		}
		if got, ok := tgt.Breakpoints().ByAddr(4660); !ok || got != bp {
			t.Fatalf("ByAddr(4660) = %v, %v", got, ok)
		}
		if sim.ExecTrapsAt(4660) != 1 {
			t.Fatal("no execution trap armed")
		}
		checkIndices(t, tgt)

		tgt.Breakpoints().Disable(bp)
		if _, ok := tgt.Breakpoints().ByAddr(4660); ok {
			t.Fatal("disabled breakpoint still indexed by address")
		}
		if _, ok := tgt.Breakpoints().ByTrap(bp.TrapID); ok {
			t.Fatal("disabled breakpoint still indexed by trap")
		}
		if sim.ExecTrapsAt(4660) != 0 {
			t.Fatal("execution trap not removed")
		}
		checkIndices(t, tgt)
	})
}

func TestSharedAddress(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		a, err := tgt.SetBreakpoint("a", 0x100)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := tgt.SetBreakpoint("b", 0x100); err != nil {
			t.Fatal(err)
		}
		if n := len(tgt.Breakpoints().AllByAddr(0x100)); n != 2 {
			t.Fatalf("%d breakpoints indexed at 0x100, want 2", n)
		}
		checkIndices(t, tgt)

		if err := tgt.ClearBreakpoint("b"); err != nil {
			t.Fatal(err)
		}
		if !a.Enabled || a.Addr != 0x100 {
			t.Fatalf("a changed by deleting b: %v", a)
		}
		if got, ok := tgt.Breakpoints().ByAddr(0x100); !ok || got != a {
			t.Fatalf("ByAddr(0x100) = %v, %v", got, ok)
		}
		if sim.ExecTrapsAt(0x100) != 1 {
			t.Fatalf("%d execution traps at 0x100, want 1", sim.ExecTrapsAt(0x100))
		}
		checkIndices(t, tgt)

		if err := tgt.ClearBreakpoint("a"); err != nil {
			t.Fatal(err)
		}
		if _, ok := tgt.Breakpoints().ByAddr(0x100); ok {
			t.Fatal("address still indexed after deleting both breakpoints")
		}
	})
}

func TestEnableIsIdempotent(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		bp, _ := tgt.SetBreakpoint("myFunc", 0x80001000)
		trap := bp.TrapID

		tgt.Breakpoints().Enable(bp, 0x80001000)
		tgt.Breakpoints().Enable(bp, 0x80002000)
		if bp.Addr != 0x80001000 || bp.TrapID != trap {
			t.Fatalf("second Enable changed the breakpoint: %s", bp)
		}
		if sim.Armed() != 1 {
			t.Fatalf("expected one trap, got %d", sim.Armed())
		}

		tgt.Breakpoints().Retarget(bp, 0x80002000)
		if bp.Addr != 0x80002000 || sim.ExecTrapsAt(0x80001000) != 0 || sim.ExecTrapsAt(0x80002000) != 1 {
			t.Fatalf("Retarget did not move the trap: %s", bp)
		}
		checkIndices(t, tgt)
	})
}

func TestDuplicateBreakpoint(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		tgt.SetBreakpoint("myFunc", 4660)
		_, err := tgt.SetBreakpoint("myFunc", 1)
		var exists proc.BreakpointExistsError
		if !errors.As(err, &exists) {
			t.Fatalf("expected BreakpointExistsError, got %v", err)
		}
		if err.Error() != "myFunc already has an active breakpoint" {
			t.Fatalf("wrong message %q", err.Error())
		}
		if sim.ExecTrapsAt(1) != 0 {
			t.Fatal("duplicate breakpoint armed a trap")
		}
	})
}

func TestBreakpointHitHalts(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		var hits []string
		tgt.Breakpoints().OnHit = func(bp *proc.Breakpoint) {
			hits = append(hits, bp.FunctionName)
		}
		bp, _ := tgt.SetBreakpoint("myFunc", 0x80001000)
		sim.Step(0x80000ffc)
		if sim.Halted() {
			t.Fatal("halted before reaching the breakpoint")
		}
		sim.Step(0x80001000)
		if !sim.Halted() || len(hits) != 1 || hits[0] != "myFunc" || bp.TotalHitCount != 1 {
			t.Fatalf("halted=%v hits=%v count=%d", sim.Halted(), hits, bp.TotalHitCount)
		}
		tgt.Resume()
		if sim.Halted() {
			t.Fatal("Resume did not resume the host")
		}
	})
}

func TestDeleteRemovesEveryIndex(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		sim.WriteWord(hidanSlot, 0x80100000)
		bp, err := tgt.SetOverlayBreakpoint("target", "bg_hidan", 64)
		if err != nil {
			t.Fatal(err)
		}
		trap := bp.TrapID
		if err := tgt.ClearBreakpoint("target"); err != nil {
			t.Fatal(err)
		}
		bpmap := tgt.Breakpoints()
		if _, ok := bpmap.ByName("target"); ok {
			t.Fatal("still indexed by name")
		}
		if _, ok := bpmap.ByAddr(0x80100040); ok {
			t.Fatal("still indexed by address")
		}
		if _, ok := bpmap.ByTrap(trap); ok {
			t.Fatal("still indexed by trap")
		}
		if len(bpmap.Dependents("bg_hidan")) != 0 {
			t.Fatal("still an overlay dependent")
		}
		if tgt.Watches().Len() != 0 || sim.Armed() != 0 {
			t.Fatalf("watches=%d traps=%d after deleting the only breakpoint", tgt.Watches().Len(), sim.Armed())
		}

		err = tgt.ClearBreakpoint("target")
		if err == nil || err.Error() != "target does not have an active breakpoint" {
			t.Fatalf("unexpected error deleting twice: %v", err)
		}
	})
}

func TestOneWatchPerOverlay(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		tgt.SetOverlayBreakpoint("a", "bg_hidan", 0x10)
		tgt.SetOverlayBreakpoint("b", "bg_hidan", 0x20)
		if tgt.Watches().Len() != 1 || sim.WriteTrapsAt(hidanSlot) != 1 {
			t.Fatalf("watches=%d write traps=%d", tgt.Watches().Len(), sim.WriteTrapsAt(hidanSlot))
		}
		if deps := tgt.Breakpoints().Dependents("bg_hidan"); len(deps) != 2 {
			t.Fatalf("expected 2 dependents, got %d", len(deps))
		}

		tgt.ClearBreakpoint("a")
		if w, ok := tgt.Watches().Watch("bg_hidan"); !ok || w.State != proc.WatchWatching {
			t.Fatal("watch torn down while a dependent is left")
		}
		tgt.ClearBreakpoint("b")
		if tgt.Watches().Len() != 0 || sim.WriteTrapsAt(hidanSlot) != 0 {
			t.Fatal("watch left after deleting every dependent")
		}
	})
}

func TestOverlayLoadUnloadMove(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		bp, err := tgt.SetOverlayBreakpoint("target", "bg_hidan", 64)
		if err != nil {
			t.Fatal(err)
		}
		other, _ := tgt.SetOverlayBreakpoint("other", "bg_hidan", 0x100)
		if bp.Enabled || other.Enabled {
			t.Fatal("breakpoints of an unloaded overlay must be pending")
		}

		// load: the write alone must not resolve anything
		sim.WriteWord(hidanSlot, 0x80100000)
		w, _ := tgt.Watches().Watch("bg_hidan")
		if w.State != proc.WatchPendingResolution || bp.Enabled {
			t.Fatalf("state %s enabled %v right after the write", w.State, bp.Enabled)
		}
		sim.Step(0x80000180)
		if !bp.Enabled || bp.Addr != 0x80100040 || !other.Enabled || other.Addr != 0x80100100 {
			t.Fatalf("after load: %s / %s", bp, other)
		}
		if w.State != proc.WatchWatching || sim.AnyExecTraps() != 0 {
			t.Fatalf("one-shot trap not cleaned up: state %s, %d wildcard traps", w.State, sim.AnyExecTraps())
		}
		checkIndices(t, tgt)

		// move
		sim.WriteWord(hidanSlot, 0x80200000)
		sim.Step(0x80000180)
		if bp.Addr != 0x80200040 || sim.ExecTrapsAt(0x80100040) != 0 || sim.ExecTrapsAt(0x80200040) != 1 {
			t.Fatalf("after move: %s", bp)
		}
		checkIndices(t, tgt)

		// unload
		sim.WriteWord(hidanSlot, 0)
		sim.Step(0x80000180)
		if bp.Enabled || other.Enabled {
			t.Fatalf("after unload: %s / %s", bp, other)
		}
		if sim.Armed() != 1 {
			t.Fatalf("only the write trap should be armed, got %d traps", sim.Armed())
		}
		checkIndices(t, tgt)
	})
}

func TestWatchKeepsSlotAfterTableMove(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		if _, err := tgt.SetOverlayBreakpoint("first", "bg_hidan", 0); err != nil {
			t.Fatal(err)
		}

		const movedTable = 0x80300000
		const movedSlot = movedTable + 1*0x20 + 0x10
		bases := tgt.TableBases()
		bases[overlay.Actor] = movedTable
		tgt.SetTableBases(bases)
		sim.WriteWord(movedSlot, 0x80100000)

		// the initial read uses the new table
		second, err := tgt.SetOverlayBreakpoint("second", "bg_hidan", 0x10)
		if err != nil {
			t.Fatal(err)
		}
		if !second.Enabled || second.Addr != 0x80100010 {
			t.Fatalf("second not armed from the new table: %s", second)
		}

		// relocation keeps following the slot the watch was created on
		w, _ := tgt.Watches().Watch("bg_hidan")
		if w.EntryAddr != hidanSlot {
			t.Fatalf("watch moved to %#x", w.EntryAddr)
		}
		sim.WriteWord(movedSlot, 0x80200000)
		if w.State != proc.WatchWatching {
			t.Fatalf("write to the new table resolved the watch: %s", w.State)
		}
		sim.WriteWord(hidanSlot, 0x80400000)
		sim.Step(0x80000180)
		if second.Addr != 0x80400010 {
			t.Fatalf("after write to the original slot: %s", second)
		}
		checkIndices(t, tgt)
	})
}

func TestRepeatedWritesResolveOnce(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		bp, _ := tgt.SetOverlayBreakpoint("target", "bg_hidan", 64)
		sim.WriteWord(hidanSlot, 0x80100000)
		sim.WriteWord(hidanSlot, 0x80300000)
		if sim.AnyExecTraps() != 1 {
			t.Fatalf("expected a single one-shot trap, got %d", sim.AnyExecTraps())
		}
		sim.Step(0)
		if bp.Addr != 0x80300040 {
			t.Fatalf("the last written base must win: %s", bp)
		}
	})
}

func TestDeleteWhilePendingResolution(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		tgt.SetOverlayBreakpoint("target", "bg_hidan", 64)
		sim.WriteWord(hidanSlot, 0x80100000)
		tgt.ClearAllBreakpoints()
		if sim.Armed() != 0 {
			t.Fatalf("%d traps left after clearing a pending overlay", sim.Armed())
		}
		sim.Step(0)
	})
}

func TestOverlayAlreadyLoaded(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		sim.WriteWord(particleBase+1*0x1C+0x10, 0x80400000)
		bp, err := tgt.SetOverlayBreakpoint("EffectSsBomb_Draw", "effect_ss_bomb", 0x24)
		if err != nil {
			t.Fatal(err)
		}
		if !bp.Enabled || bp.Addr != 0x80400024 {
			t.Fatalf("breakpoint in a loaded overlay: %s", bp)
		}
		if sim.WriteTrapsAt(particleBase+1*0x1C+0x10) != 1 {
			t.Fatal("particle slot is not watched")
		}
	})
}

func TestOverlayBreakpointExisting(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		first, _ := tgt.SetBreakpoint("target", 0x80001000)
		bp, err := tgt.SetOverlayBreakpoint("target", "bg_hidan", 64)
		if err != nil || bp != first {
			t.Fatalf("existing breakpoint not returned: %v %v", bp, err)
		}
		if tgt.Watches().Len() != 0 {
			t.Fatal("watch created for an existing breakpoint")
		}
	})
}

func TestUnknownOverlay(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		_, err := tgt.SetOverlayBreakpoint("fn", "no_such_overlay", 0)
		if !errors.Is(err, proc.ErrUnknownOverlay) {
			t.Fatalf("expected ErrUnknownOverlay, got %v", err)
		}
		if tgt.Breakpoints().Len() != 0 || sim.Armed() != 0 {
			t.Fatal("unknown overlay left state behind")
		}
	})
}

func TestNamesSorted(t *testing.T) {
	withTestTarget(t, func(tgt *proc.Target, sim *memhost.Host) {
		tgt.SetBreakpoint("zeta", 3)
		tgt.SetBreakpoint("alpha", 1)
		tgt.SetOverlayBreakpoint("mid", "en_test", 0)
		names := tgt.Breakpoints().Names()
		want := []string{"alpha", "mid", "zeta"}
		if len(names) != len(want) {
			t.Fatalf("got %v", names)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Fatalf("got %v want %v", names, want)
			}
		}
	})
}
