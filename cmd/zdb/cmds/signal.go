package cmds

type stopReason int

const (
	stopSignal stopReason = iota
	stopHostLost
)
