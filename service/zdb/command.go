package zdb

import (
	"errors"
	"strconv"
	"strings"
	"unsafe"

	"github.com/tidwall/gjson"
	"golang.org/x/exp/constraints"

	"github.com/zdbg/zdb/pkg/overlay"
	"github.com/zdbg/zdb/pkg/proc"
)

const (
	respSuccess             = "success"
	respNoBreakpoints       = "(no active breakpoints)"
	respUnrecognizedOverlay = "server did not recognize overlay"
	respUnrecognizedCommand = "server did not recognize command"
)

var errUnrecognizedCommand = errors.New(respUnrecognizedCommand)

type cmdfunc func(s *Server, t *proc.Target, args []string) (string, error)

type command struct {
	name  string
	cmdFn cmdfunc
}

// commands are the requests understood by the server:
//
//	break <function> <address>
//	break <function> ovl <overlay> <offset>
//	info
//	delete <function>
//	clear
//	tablelocs <actor> <particle> <gamestate> <kaleido>
//	continue
var commands = []command{
	{"break", setBreakpoint},
	{"info", listBreakpoints},
	{"delete", clearBreakpoint},
	{"clear", clearAll},
	{"tablelocs", tableLocations},
	{"continue", cont},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// handleInput processes one request and returns the response, if any.
func (s *Server) handleInput(t *proc.Target, input string) (string, bool) {
	if isTruthyJSON(input) {
		s.log.Info("received valid JSON")
		return "", false
	}
	resp := s.processCommand(t, input)
	s.log.Debugf("msg for client: %s", resp)
	return resp, true
}

func (s *Server) processCommand(t *proc.Target, input string) string {
	s.log.Debugf("command: %s", input)
	args := strings.Fields(input)
	if len(args) == 0 {
		s.log.Errorf("unrecognized command from client: %q", input)
		return respUnrecognizedCommand
	}
	cmd, ok := findCommand(args[0])
	if !ok {
		s.log.Errorf("unrecognized command from client: %s", input)
		return respUnrecognizedCommand
	}
	resp, err := cmd.cmdFn(s, t, args[1:])
	switch {
	case err == nil:
		return resp
	case errors.Is(err, errUnrecognizedCommand):
		s.log.Errorf("malformed command from client: %s", input)
		return respUnrecognizedCommand
	case errors.Is(err, proc.ErrUnknownOverlay):
		s.log.Errorf("tried to set breakpoint in %v", err)
		return respUnrecognizedOverlay
	default:
		return err.Error()
	}
}

func setBreakpoint(s *Server, t *proc.Target, args []string) (string, error) {
	if len(args) >= 2 && args[1] == "ovl" {
		if len(args) < 4 {
			return "", errUnrecognizedCommand
		}
		off, err := parseNumber[uint32](args[3])
		if err != nil {
			return "", errUnrecognizedCommand
		}
		if _, err := t.SetOverlayBreakpoint(args[0], args[2], off); err != nil {
			return "", err
		}
		return respSuccess, nil
	}
	if len(args) < 2 {
		return "", errUnrecognizedCommand
	}
	addr, err := parseNumber[uint32](args[1])
	if err != nil {
		return "", errUnrecognizedCommand
	}
	if _, err := t.SetBreakpoint(args[0], addr); err != nil {
		return "", err
	}
	return respSuccess, nil
}

func listBreakpoints(s *Server, t *proc.Target, args []string) (string, error) {
	names := t.Breakpoints().Names()
	if len(names) == 0 {
		return respNoBreakpoints, nil
	}
	return strings.Join(names, "\n"), nil
}

func clearBreakpoint(s *Server, t *proc.Target, args []string) (string, error) {
	if len(args) < 1 {
		return "", errUnrecognizedCommand
	}
	if err := t.ClearBreakpoint(args[0]); err != nil {
		return "", err
	}
	return respSuccess, nil
}

func clearAll(s *Server, t *proc.Target, args []string) (string, error) {
	t.ClearAllBreakpoints()
	return respSuccess, nil
}

func tableLocations(s *Server, t *proc.Target, args []string) (string, error) {
	if len(args) < int(overlay.NumCategories) {
		return "", errUnrecognizedCommand
	}
	var bases [overlay.NumCategories]uint32
	for i := range bases {
		v, err := parseNumber[uint32](args[i])
		if err != nil {
			return "", errUnrecognizedCommand
		}
		bases[i] = v
	}
	t.SetTableBases(bases)
	return respSuccess, nil
}

func cont(s *Server, t *proc.Target, args []string) (string, error) {
	t.Resume()
	return respSuccess, nil
}

// parseNumber parses a decimal or 0x prefixed hexadecimal number.
func parseNumber[T constraints.Unsigned](str string) (T, error) {
	var zero T
	bits := 8 * int(unsafe.Sizeof(zero))
	var (
		v   uint64
		err error
	)
	if rest, ok := strings.CutPrefix(strings.ToLower(str), "0x"); ok {
		v, err = strconv.ParseUint(rest, 16, bits)
	} else {
		v, err = strconv.ParseUint(str, 10, bits)
	}
	return T(v), err
}

// isTruthyJSON reports whether input is a JSON document whose value is
// truthy: an object, an array, true, a non zero number or a non empty
// string.
func isTruthyJSON(input string) bool {
	if !gjson.Valid(input) {
		return false
	}
	v := gjson.Parse(input)
	switch v.Type {
	case gjson.JSON, gjson.True:
		return true
	case gjson.Number:
		return v.Float() != 0
	case gjson.String:
		return v.Str != ""
	default:
		return false
	}
}
