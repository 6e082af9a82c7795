// Package host defines the trap primitives zdb consumes from the machine
// running the game: execution traps, write traps and word reads.
package host

// TrapID is an opaque handle for an installed trap.
type TrapID int

// NoTrap is never returned by a successful Arm call.
const NoTrap TrapID = 0

// Host is implemented by every emulator backend.
//
// No method reports an error: backends log their failures and carry on,
// callers treat every call as successful. Callbacks may be delivered on a
// goroutine owned by the backend, never concurrently with each other.
type Host interface {
	// ArmExecutionTrap installs a trap that fires when execution reaches
	// addr.
	ArmExecutionTrap(addr uint32, onHit func()) TrapID
	// ArmAnyExecutionTrap installs a trap that fires on the next
	// instruction executed, wherever it is.
	ArmAnyExecutionTrap(onHit func()) TrapID
	// ArmWriteTrap installs a trap that fires after a write to addr has
	// completed. onWrite receives the written address.
	ArmWriteTrap(addr uint32, onWrite func(addr uint32)) TrapID
	// RemoveTrap uninstalls a trap. Removing an unknown or already removed
	// trap is a no-op.
	RemoveTrap(id TrapID)
	// ReadWord reads the 32bit word at addr.
	ReadWord(addr uint32) uint32
	// Halt suspends emulated execution.
	Halt()
	// Resume undoes Halt.
	Resume()
}
