package cmds

import (
	"os"
	"os/signal"
)

// waitForStopSignal blocks until the server receives Ctrl-C or hostDone is
// closed.
func waitForStopSignal(hostDone <-chan struct{}) stopReason {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	defer signal.Stop(ch)
	select {
	case <-ch:
		return stopSignal
	case <-hostDone:
		return stopHostLost
	}
}
