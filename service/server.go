package service

// Server is a breakpoint server.
type Server interface {
	// Run starts serving clients and returns immediately.
	Run() error
	// Stop disconnects the current client, clears its breakpoints and stops
	// accepting new clients.
	Stop() error
}
