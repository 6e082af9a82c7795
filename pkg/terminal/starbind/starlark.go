// Package starbind exposes the zdb client to starlark scripts run by the
// terminal's source command.
package starbind

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/zdbg/zdb/service"
)

const (
	zdbCommandBuiltinName  = "zdb_command"
	serverCallBuiltinName  = "server_call"
	breakpointsBuiltinName = "breakpoints"
	readFileBuiltinName    = "read_file"
	writeFileBuiltinName   = "write_file"
	helpBuiltinName        = "help"
	commandPrefix          = "command_"
	zdbContextName         = "zdb_context"
)

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// Context is the context in which starlark scripts are evaluated.
type Context interface {
	Client() service.Client
	RegisterCommand(name, helpMsg string, cmdfn func(args string) error)
	CallCommand(cmdstr string) error
}

// Env is the environment used to evaluate starlark scripts.
type Env struct {
	env       starlark.StringDict
	contextMu sync.Mutex
	thread    *starlark.Thread
	cancelfn  context.CancelFunc

	ctx Context
	out io.Writer
}

// New creates a new starlark binding environment.
func New(ctx Context, out io.Writer) *Env {
	env := &Env{ctx: ctx, out: out, env: starlark.StringDict{}}

	doc := make(map[string]string)
	builtindoc := func(name, args, descr string) {
		doc[name] = name + args + "\n\n" + name + " " + descr
	}

	env.env[zdbCommandBuiltinName] = starlark.NewBuiltin(zdbCommandBuiltinName, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, err
		}
		argstrs, err := stringArgs(zdbCommandBuiltinName, args)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.None, decorateError(thread, env.ctx.CallCommand(strings.Join(argstrs, " ")))
	})
	builtindoc(zdbCommandBuiltinName, "(Command)", "runs a terminal command, for example zdb_command(\"break player_Init\").")

	env.env[serverCallBuiltinName] = starlark.NewBuiltin(serverCallBuiltinName, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, err
		}
		argstrs, err := stringArgs(serverCallBuiltinName, args)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		resp, err := env.ctx.Client().Call(strings.Join(argstrs, " "))
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.String(resp), nil
	})
	builtindoc(serverCallBuiltinName, "(Request)", "sends Request to the server and returns its response.")

	env.env[breakpointsBuiltinName] = starlark.NewBuiltin(breakpointsBuiltinName, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		names, err := env.ctx.Client().ListBreakpoints()
		if err != nil {
			return nil, decorateError(thread, err)
		}
		elems := make([]starlark.Value, len(names))
		for i := range names {
			elems[i] = starlark.String(names[i])
		}
		return starlark.NewList(elems), nil
	})
	builtindoc(breakpointsBuiltinName, "()", "returns the function names of all breakpoints.")

	env.env[readFileBuiltinName] = starlark.NewBuiltin(readFileBuiltinName, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) != 1 {
			return nil, decorateError(thread, fmt.Errorf("wrong number of arguments"))
		}
		path, ok := args[0].(starlark.String)
		if !ok {
			return nil, decorateError(thread, fmt.Errorf("argument of read_file was not a string"))
		}
		buf, err := os.ReadFile(string(path))
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.String(string(buf)), nil
	})
	builtindoc(readFileBuiltinName, "(Path)", "reads a file.")

	env.env[writeFileBuiltinName] = starlark.NewBuiltin(writeFileBuiltinName, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) != 2 {
			return nil, decorateError(thread, fmt.Errorf("wrong number of arguments"))
		}
		path, ok := args[0].(starlark.String)
		if !ok {
			return nil, decorateError(thread, fmt.Errorf("first argument of write_file was not a string"))
		}
		text := args[1].String()
		if s, ok := args[1].(starlark.String); ok {
			text = string(s)
		}
		err := os.WriteFile(string(path), []byte(text), 0640)
		return starlark.None, decorateError(thread, err)
	})
	builtindoc(writeFileBuiltinName, "(Path, Text)", "writes text to the specified file.")

	env.env[helpBuiltinName] = starlark.NewBuiltin(helpBuiltinName, func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		switch len(args) {
		case 0:
			fmt.Fprintln(env.out, "Available builtins:")
			bins := make([]string, 0, len(env.env))
			for name, value := range env.env {
				if _, ok := value.(*starlark.Builtin); ok {
					bins = append(bins, name)
				}
			}
			sort.Strings(bins)
			for _, bin := range bins {
				fmt.Fprintf(env.out, "\t%s\n", bin)
			}
		case 1:
			switch x := args[0].(type) {
			case *starlark.Builtin:
				if doc[x.Name()] != "" {
					fmt.Fprintf(env.out, "%s\n", doc[x.Name()])
				} else {
					fmt.Fprintf(env.out, "no help for builtin %s\n", x.Name())
				}
			case *starlark.Function:
				fmt.Fprintf(env.out, "user defined function %s\n", x.Name())
				if doc := x.Doc(); doc != "" {
					fmt.Fprintln(env.out, doc)
				}
			default:
				fmt.Fprintf(env.out, "no help for object of type %T\n", args[0])
			}
		default:
			fmt.Fprintln(env.out, "wrong number of arguments ", len(args))
		}
		return starlark.None, nil
	})
	builtindoc(helpBuiltinName, "(Object)", "prints help for Object.")

	return env
}

// Execute executes a script. Path is the name of the file to execute and
// source is the source code to execute.
// Source can be either a []byte, a string or a io.Reader. If source is nil
// Execute will execute the file specified by 'path'.
// After the file is executed if a function named mainFnName exists it will
// be called with no arguments.
func (env *Env) Execute(path string, source interface{}, mainFnName string) (_ starlark.Value, _err error) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		_err = fmt.Errorf("panic executing starlark script: %v", err)
		fmt.Fprintf(env.out, "panic executing starlark script: %v\n", err)
		for i := 0; ; i++ {
			pc, file, line, ok := runtime.Caller(i)
			if !ok {
				break
			}
			fname := "<unknown>"
			if fn := runtime.FuncForPC(pc); fn != nil {
				fname = fn.Name()
			}
			fmt.Fprintf(env.out, "%s\n\tin %s:%d\n", fname, file, line)
		}
	}()

	thread := env.newThread()
	globals, err := starlark.ExecFile(thread, path, source, env.env)
	if err != nil {
		return starlark.None, err
	}

	if err := env.exportGlobals(globals); err != nil {
		return starlark.None, err
	}

	if mainFnName == "" {
		return starlark.None, nil
	}
	mainval := globals[mainFnName]
	if mainval == nil {
		return starlark.None, nil
	}
	mainfn, ok := mainval.(*starlark.Function)
	if !ok {
		return starlark.None, fmt.Errorf("%s is not a function", mainFnName)
	}
	if mainfn.NumParams() != 0 {
		return starlark.None, fmt.Errorf("wrong number of arguments for %s", mainFnName)
	}
	return starlark.Call(thread, mainfn, nil, nil)
}

// exportGlobals saves globals with a name starting with a capital letter
// into the environment and creates commands from globals with a name
// starting with "command_"
func (env *Env) exportGlobals(globals starlark.StringDict) error {
	for name, val := range globals {
		switch {
		case strings.HasPrefix(name, commandPrefix):
			env.createCommand(name, val)
		case name[0] >= 'A' && name[0] <= 'Z':
			env.env[name] = val
		}
	}
	return nil
}

// Cancel cancels the execution of a currently running script or function.
func (env *Env) Cancel() {
	if env == nil {
		return
	}
	env.contextMu.Lock()
	if env.cancelfn != nil {
		env.cancelfn()
		env.cancelfn = nil
	}
	if env.thread != nil {
		env.thread.Cancel("user interrupt")
	}
	env.contextMu.Unlock()
}

func (env *Env) newThread() *starlark.Thread {
	thread := &starlark.Thread{
		Print: func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) },
	}
	env.contextMu.Lock()
	var ctx context.Context
	ctx, env.cancelfn = context.WithCancel(context.Background())
	env.thread = thread
	env.contextMu.Unlock()
	thread.SetLocal(zdbContextName, ctx)
	return thread
}

// createCommand registers a terminal command for a function named
// command_<name>. The command's argument string is passed to the function
// as its only argument.
func (env *Env) createCommand(name string, val starlark.Value) {
	fnval, ok := val.(*starlark.Function)
	if !ok {
		return
	}

	name = name[len(commandPrefix):]

	helpMsg := fnval.Doc()
	if helpMsg == "" {
		helpMsg = "user defined"
	}

	env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
		var argtuple starlark.Tuple
		if fnval.NumParams() > 0 {
			argtuple = starlark.Tuple{starlark.String(args)}
		}
		_, err := starlark.Call(env.newThread(), fnval, argtuple, nil)
		return err
	})
}

func stringArgs(builtin string, args starlark.Tuple) ([]string, error) {
	argstrs := make([]string, len(args))
	for i := range args {
		a, ok := args[i].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("argument of %s is not a string", builtin)
		}
		argstrs[i] = string(a)
	}
	return argstrs, nil
}

func isCancelled(thread *starlark.Thread) error {
	if ctx, ok := thread.Local(zdbContextName).(context.Context); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func decorateError(thread *starlark.Thread, err error) error {
	if err == nil {
		return nil
	}
	pos := thread.CallFrame(1).Pos
	if pos.Col > 0 {
		return fmt.Errorf("%s:%d:%d: %v", pos.Filename(), pos.Line, pos.Col, err)
	}
	return fmt.Errorf("%s:%d: %v", pos.Filename(), pos.Line, err)
}
