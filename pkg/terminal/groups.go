package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	breakCmds
	targetCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Manipulating breakpoints", breakCmds},
	{"Talking to the server", targetCmds},
	{"Other commands", otherCmds},
}
