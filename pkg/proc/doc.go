// Package proc manages the breakpoints of a debugging session on the target
// machine.
//
// Breakpoints are kept in a registry indexed by function name, address,
// trap and overlay. Breakpoints on functions inside overlays are moved by
// overlay watches as the game loads, relocates and unloads the overlay.
package proc
