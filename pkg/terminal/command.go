// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"
	"golang.org/x/exp/slices"

	"github.com/zdbg/zdb/pkg/overlay"
	"github.com/zdbg/zdb/pkg/symbols"
	"github.com/zdbg/zdb/service"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the zdb terminal.
type Commands struct {
	cmds   []command
	client service.Client
	// prefixes maps every alias to the index of its command in cmds.
	prefixes *trie.Trie
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands(client service.Client) *Commands {
	c := &Commands{client: client}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"break", "b"}, group: breakCmds, cmdFn: breakpoint, helpMsg: `Sets a breakpoint.

	break <function>
	break <function> <address>
	break <function> ovl <overlay> <offset>

Without an address the function is looked up in the map file. Functions
linked into an overlay get a breakpoint that follows the overlay as the
game loads, moves and unloads it.

See also: "help functions" and "help delete"`},
		{aliases: []string{"breakpoints", "info", "bp"}, group: breakCmds, cmdFn: breakpoints, helpMsg: `Print out info for active breakpoints.

Breakpoints in overlays that are not loaded are listed too.`},
		{aliases: []string{"delete", "d"}, group: breakCmds, cmdFn: deleteBreakpoint, helpMsg: `Deletes breakpoint.

	delete <function>`},
		{aliases: []string{"clear", "clearall"}, group: breakCmds, cmdFn: clearAll, helpMsg: `Deletes all breakpoints.`},
		{aliases: []string{"functions", "funcs"}, group: breakCmds, cmdFn: functions, helpMsg: `Print list of functions in the map file.

	functions [<prefix>]`},
		{aliases: []string{"tablelocs"}, group: targetCmds, cmdFn: tableLocations, helpMsg: `Sets the location of the overlay tables.

	tablelocs <actor> <particle> <gamestate> <kaleido>

Overlay breakpoints created before the tables are located stay pending.`},
		{aliases: []string{"continue", "c"}, group: targetCmds, cmdFn: cont, helpMsg: `Resumes the game after it stopped on a breakpoint.`},
		{aliases: []string{"raw"}, group: targetCmds, cmdFn: raw, helpMsg: `Sends a request to the server and prints the response.

	raw <request>`},
		{aliases: []string{"notify"}, group: targetCmds, cmdFn: notify, helpMsg: `Sends a message to the server without waiting for a response.

	notify <message>

The server does not answer JSON messages, use notify instead of raw for them.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter. Setting map-file loads the
new map file.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of zdb commands.

	source <path>

If path ends with the .star extension it will be interpreted as a starlark
script. Scripts can call zdb_command("break player_Init") to run terminal
commands and define new commands with functions named command_<name>.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the terminal.

Every breakpoint set by this terminal is deleted by the server.`},
	}

	c.buildPrefixes()
	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			c.cmds[i].helpMsg = helpMsg
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
	c.buildPrefixes()
}

func (c *Commands) buildPrefixes() {
	c.prefixes = trie.New()
	for i := range c.cmds {
		for _, alias := range c.cmds[i].aliases {
			c.prefixes.Add(alias, i)
		}
	}
}

// AmbiguousCommandError is returned when a command prefix matches more
// than one command.
type AmbiguousCommandError struct {
	Prefix     string
	Candidates []string
}

func (e *AmbiguousCommandError) Error() string {
	return fmt.Sprintf("ambiguous command %q, could be: %s", e.Prefix, strings.Join(e.Candidates, ", "))
}

var noCmdError = errors.New("command not available")

// Find will look up the command for the given command input. Any unique
// prefix of an alias selects the command.
func (c *Commands) Find(cmdstr string) (cmdfunc, error) {
	if cmdstr == "" {
		return nullCommand, nil
	}
	if n, ok := c.prefixes.Find(cmdstr); ok {
		return c.cmds[n.Meta().(int)].cmdFn, nil
	}

	keys := c.prefixes.PrefixSearch(cmdstr)
	found := -1
	var names []string
	for _, key := range keys {
		n, _ := c.prefixes.Find(key)
		idx := n.Meta().(int)
		if found >= 0 && idx != found {
			found = -2
		} else if found != -2 {
			found = idx
		}
		names = append(names, key)
	}
	switch {
	case found >= 0:
		return c.cmds[found].cmdFn, nil
	case found == -2:
		slices.Sort(names)
		return nil, &AmbiguousCommandError{Prefix: cmdstr, Candidates: names}
	}
	return nil, noCmdError
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	fn, err := c.Find(cmdname)
	if err != nil {
		return err
	}
	return fn(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
	c.buildPrefixes()
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			if cmd.match(args) {
				fmt.Fprintln(t.stdout, cmd.helpMsg)
				return nil
			}
		}
		return noCmdError
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits a command's argument string into words, quotes group
// words together.
func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", args)
	}
	return v[0], nil
}

func breakpoint(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	switch {
	case len(v) == 1:
		if t.symbols == nil {
			return errors.New("no map file loaded, specify the address of the function")
		}
		sym, err := t.symbols.Lookup(v[0])
		if err != nil {
			var aerr *symbols.AmbiguousError
			if errors.As(err, &aerr) {
				for _, cand := range aerr.Candidates {
					fmt.Fprintf(t.stdout, "\t%s\n", cand)
				}
			}
			return err
		}
		if sym.InOverlay() {
			err = t.client.CreateOverlayBreakpoint(sym.Name, sym.Overlay, sym.Offset)
		} else {
			err = t.client.CreateBreakpoint(sym.Name, sym.Addr)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(t.stdout, "Breakpoint set on %s\n", sym)
		return nil
	case len(v) == 2:
		addr, err := parseNumber(v[1])
		if err != nil {
			return err
		}
		if err := t.client.CreateBreakpoint(v[0], addr); err != nil {
			return err
		}
		fmt.Fprintf(t.stdout, "Breakpoint set on %s (%#08x)\n", v[0], addr)
		return nil
	case len(v) == 4 && v[1] == "ovl":
		off, err := parseNumber(v[3])
		if err != nil {
			return err
		}
		if err := t.client.CreateOverlayBreakpoint(v[0], v[2], off); err != nil {
			return err
		}
		fmt.Fprintf(t.stdout, "Breakpoint set on %s (%s+%#x)\n", v[0], v[2], off)
		return nil
	}
	return errors.New("wrong number of arguments: break <function> [<address> | ovl <overlay> <offset>]")
}

func breakpoints(t *Term, args string) error {
	names, err := t.client.ListBreakpoints()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(t.stdout, "(no active breakpoints)")
		return nil
	}
	for i, name := range names {
		t.Println(fmt.Sprintf("%3d  ", i+1), name)
	}
	return nil
}

func deleteBreakpoint(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != 1 {
		return errors.New("not enough arguments: delete <function>")
	}
	if err := t.client.ClearBreakpointByName(v[0]); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Breakpoint on %s cleared\n", v[0])
	return nil
}

func clearAll(t *Term, args string) error {
	if err := t.client.ClearAllBreakpoints(); err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, "All breakpoints cleared")
	return nil
}

func functions(t *Term, args string) error {
	if t.symbols == nil {
		return errors.New("no map file loaded")
	}
	names := t.symbols.Names(args)
	slices.Sort(names)
	for _, name := range names {
		sym, err := t.symbols.Lookup(name)
		if err != nil {
			fmt.Fprintln(t.stdout, name)
			continue
		}
		fmt.Fprintln(t.stdout, sym)
	}
	return nil
}

func tableLocations(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != int(overlay.NumCategories) {
		return fmt.Errorf("wrong number of arguments: tablelocs needs %d addresses", overlay.NumCategories)
	}
	var bases [overlay.NumCategories]uint32
	for i := range bases {
		bases[i], err = parseNumber(v[i])
		if err != nil {
			return err
		}
	}
	return t.client.SetTableLocations(bases)
}

func cont(t *Term, args string) error {
	return t.client.Continue()
}

func raw(t *Term, args string) error {
	if args == "" {
		return errors.New("not enough arguments: raw <request>")
	}
	resp, err := t.client.Call(args)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, resp)
	return nil
}

func notify(t *Term, args string) error {
	if args == "" {
		return errors.New("not enough arguments: notify <message>")
	}
	return t.client.Notify(args)
}

// ExitRequestError is returned when the user
// exits the terminal.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func (c *Commands) sourceCommand(t *Term, args string) error {
	if len(args) == 0 {
		return errors.New("wrong number of arguments: source <filename>")
	}

	if strings.HasSuffix(args, ".star") {
		_, err := t.starlarkEnv.Execute(args, nil, "main")
		return err
	}

	return c.executeFile(t, args)
}
