package terminal

import (
	"github.com/zdbg/zdb/pkg/terminal/starbind"
	"github.com/zdbg/zdb/service"
)

type starlarkContext struct {
	term *Term
}

var _ starbind.Context = starlarkContext{}

func (ctx starlarkContext) Client() service.Client {
	return ctx.term.client
}

func (ctx starlarkContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	ctx.term.cmds.Register(name, func(t *Term, args string) error {
		return fn(args)
	}, helpMsg)
}

func (ctx starlarkContext) CallCommand(cmdstr string) error {
	return ctx.term.cmds.Call(cmdstr, ctx.term)
}

// starlarkOutput sends the output of scripts to the terminal's current
// stdout.
type starlarkOutput struct {
	term *Term
}

func (w starlarkOutput) Write(p []byte) (int, error) {
	return w.term.stdout.Write(p)
}
