package service

import "github.com/zdbg/zdb/pkg/overlay"

// Client represents a breakpoint server client. All client methods are
// synchronous.
type Client interface {
	// Call sends cmd to the server verbatim and returns the response.
	Call(cmd string) (string, error)
	// Notify sends msg to the server without waiting for a response.
	Notify(msg string) error

	// CreateBreakpoint sets a breakpoint on function fn at addr.
	CreateBreakpoint(fn string, addr uint32) error
	// CreateOverlayBreakpoint sets a breakpoint on function fn at offset
	// inside overlay ovl.
	CreateOverlayBreakpoint(fn, ovl string, offset uint32) error
	// ListBreakpoints returns the function names of all breakpoints, sorted.
	ListBreakpoints() ([]string, error)
	// ClearBreakpointByName deletes the breakpoint on function fn.
	ClearBreakpointByName(fn string) error
	// ClearAllBreakpoints deletes every breakpoint.
	ClearAllBreakpoints() error
	// SetTableLocations tells the server where the overlay tables are.
	SetTableLocations(bases [overlay.NumCategories]uint32) error
	// Continue resumes a target halted by a breakpoint.
	Continue() error

	// Disconnect closes the connection, the server clears every breakpoint.
	Disconnect() error
}
