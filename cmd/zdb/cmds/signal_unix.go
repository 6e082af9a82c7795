//go:build !windows

package cmds

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// waitForStopSignal blocks until the server receives SIGINT or SIGTERM or
// hostDone is closed.
func waitForStopSignal(hostDone <-chan struct{}) stopReason {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(ch)
	select {
	case <-ch:
		return stopSignal
	case <-hostDone:
		return stopHostLost
	}
}
