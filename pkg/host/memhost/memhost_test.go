package memhost

import (
	"testing"
)

func TestWriteFiresAfterStore(t *testing.T) {
	h := New()
	var seen []uint32
	h.ArmWriteTrap(0x100, func(addr uint32) {
		seen = append(seen, addr, h.ReadWord(addr))
	})
	h.WriteWord(0x104, 1)
	h.WriteWord(0x100, 0x80100000)
	if len(seen) != 2 || seen[0] != 0x100 || seen[1] != 0x80100000 {
		t.Fatalf("unexpected write callbacks %#x", seen)
	}
}

func TestStepFiresWildcardBeforeAddress(t *testing.T) {
	h := New()
	var order []string
	h.ArmExecutionTrap(0x80000400, func() { order = append(order, "addr") })
	var anyID = h.ArmAnyExecutionTrap(func() { order = append(order, "any") })

	h.Step(0x80000400)
	if len(order) != 2 || order[0] != "any" || order[1] != "addr" {
		t.Fatalf("wrong firing order %v", order)
	}

	h.RemoveTrap(anyID)
	h.RemoveTrap(anyID)
	order = nil
	h.Step(0x80000404)
	if len(order) != 0 {
		t.Fatalf("removed or unrelated traps fired: %v", order)
	}
}

func TestCallbackMayRemoveLaterTrap(t *testing.T) {
	h := New()
	fired := 0
	var victim = h.ArmAnyExecutionTrap(func() {})
	h.RemoveTrap(victim)
	h.ArmAnyExecutionTrap(func() {
		fired++
		h.RemoveTrap(victim)
	})
	victim = h.ArmAnyExecutionTrap(func() { fired += 100 })

	h.Step(0)
	if fired != 1 {
		t.Fatalf("trap removed by an earlier callback still fired: %d", fired)
	}
	if h.AnyExecTraps() != 1 {
		t.Fatalf("expected one wildcard trap left, got %d", h.AnyExecTraps())
	}
}

func TestHaltStopsExecution(t *testing.T) {
	h := New()
	hits := 0
	h.ArmExecutionTrap(0x10, func() {
		hits++
		h.Halt()
	})
	if !h.Step(0x10) {
		t.Fatal("step refused while running")
	}
	if h.Step(0x10) {
		t.Fatal("step executed while halted")
	}
	if hits != 1 || !h.Halted() {
		t.Fatalf("hits=%d halted=%v", hits, h.Halted())
	}
	h.Resume()
	h.Step(0x10)
	if hits != 2 {
		t.Fatalf("expected second hit after resume, got %d", hits)
	}
	if h.Armed() != 1 || h.ExecTrapsAt(0x10) != 1 {
		t.Fatalf("unexpected trap count %d", h.Armed())
	}
}
