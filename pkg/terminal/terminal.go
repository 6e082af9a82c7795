package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/exp/slices"

	"github.com/zdbg/zdb/pkg/config"
	"github.com/zdbg/zdb/pkg/symbols"
	"github.com/zdbg/zdb/pkg/terminal/starbind"
	"github.com/zdbg/zdb/service"
)

const (
	historyFile                 string = ".zdb_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"

	ansiBlue = 34
)

// Term represents the terminal running the zdb client.
type Term struct {
	client      service.Client
	conf        *config.Config
	prompt      string
	line        *liner.State
	cmds        *Commands
	symbols     *symbols.Table
	dumb        bool
	stdout      io.Writer
	starlarkEnv *starbind.Env
	InitFile    string

	quittingMutex sync.Mutex
	quitting      bool
}

// New returns a new Term. syms is used to find the functions named by the
// break command, it can be nil.
func New(client service.Client, conf *config.Config, syms *symbols.Table) *Term {
	cmds := DebugCommands(client)
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())
	if dumb {
		w = os.Stdout
	} else {
		w = colorable.NewColorableStdout()
	}

	t := &Term{
		client:  client,
		conf:    conf,
		prompt:  "(zdb) ",
		line:    liner.NewLiner(),
		cmds:    cmds,
		symbols: syms,
		dumb:    dumb,
		stdout:  w,
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, starlarkOutput{t})
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		t.starlarkEnv.Cancel()
	}
}

// Run begins running the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	// Stop running scripts on SIGINT
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	t.line.SetCtrlCAborts(true)
	t.line.SetCompleter(t.complete)

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == liner.ErrPromptAborted {
				continue
			}
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				fmt.Fprintln(os.Stderr, "Connection to the server lost")
				t.quittingMutex.Lock()
				t.quitting = true
				t.quittingMutex.Unlock()
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// complete completes command names and, for the break command, function
// names from the map file.
func (t *Term) complete(line string) (c []string) {
	if rest, ok := strings.CutPrefix(line, "break "); ok && t.symbols != nil {
		if strings.Contains(rest, " ") {
			return nil
		}
		names := t.symbols.Names(rest)
		slices.Sort(names)
		for _, name := range names {
			c = append(c, "break "+name)
		}
		return c
	}
	c = t.cmds.prefixes.PrefixSearch(strings.ToLower(line))
	slices.Sort(c)
	return c
}

// Println prints a line to the terminal.
func (t *Term) Println(prefix, str string) {
	if !t.dumb {
		terminalColorEscapeCode := fmt.Sprintf(terminalHighlightEscapeCode, ansiBlue)
		prefix = fmt.Sprintf("%s%s%s", terminalColorEscapeCode, prefix, terminalResetEscapeCode)
	}
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR|os.O_TRUNC, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	t.quittingMutex.Lock()
	quitting := t.quitting
	t.quittingMutex.Unlock()

	if err := t.client.Disconnect(); err != nil && !quitting {
		return 1, err
	}
	return 0, nil
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}

// parseNumber parses a decimal or 0x prefixed hexadecimal address.
func parseNumber(str string) (uint32, error) {
	var (
		n   uint64
		err error
	)
	if rest, ok := strings.CutPrefix(strings.ToLower(str), "0x"); ok {
		n, err = strconv.ParseUint(rest, 16, 32)
	} else {
		n, err = strconv.ParseUint(str, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", str)
	}
	return uint32(n), nil
}
