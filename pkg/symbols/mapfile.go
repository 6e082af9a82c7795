// Package symbols finds functions in the GNU ld map file of a game build.
//
// Functions linked into an overlay are reported as an offset from the
// overlay's load address, since their final address is only known once the
// game loads the overlay. Overlay output sections are recognized by their
// "..ovl_" name prefix.
package symbols

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const overlaySectionPrefix = "..ovl_"

// Symbol is the location of a function.
type Symbol struct {
	Name string
	Addr uint32 // Absolute address, zero for overlay functions

	Overlay string // Overlay name, lowercase, empty if not in an overlay
	Offset  uint32 // Offset from the overlay's load address
}

// InOverlay returns true if s is linked into an overlay.
func (s Symbol) InOverlay() bool {
	return s.Overlay != ""
}

func (s Symbol) String() string {
	if s.InOverlay() {
		return fmt.Sprintf("%s (%s+%#x)", s.Name, s.Overlay, s.Offset)
	}
	return fmt.Sprintf("%s (%#08x)", s.Name, s.Addr)
}

// ErrNotFound is returned when the map file has no symbol by that name.
var ErrNotFound = errors.New("could not find function")

// AmbiguousError is returned when more than one symbol has the requested
// name.
type AmbiguousError struct {
	Name       string
	Candidates []Symbol
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("found more than one function with name %s", e.Name)
}

// Table holds the symbols of a map file.
type Table struct {
	syms map[string][]Symbol
}

// Load parses the map file at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s as a map file: %v", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse parses a map file.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{syms: make(map[string][]Symbol)}

	var (
		lastLine string
		overlay  string
		ramBase  uint32
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)

		if strings.Contains(line, "load address") {
			// long section names are printed on a line of their own
			if len(fields) == 0 || !strings.HasPrefix(fields[0], ".") {
				fields = append(strings.Fields(lastLine), fields...)
			}
			if len(fields) >= 2 {
				if base, ok := parseAddr(fields[1]); ok {
					ramBase = base
				}
				overlay = ""
				if strings.HasPrefix(fields[0], overlaySectionPrefix) {
					overlay = strings.ToLower(fields[0][len(overlaySectionPrefix):])
				}
			}
		} else if len(fields) == 2 {
			if addr, ok := parseAddr(fields[0]); ok && isIdent(fields[1]) {
				sym := Symbol{Name: fields[1]}
				if overlay != "" {
					sym.Overlay = overlay
					sym.Offset = addr - ramBase
				} else {
					sym.Addr = addr
				}
				t.syms[sym.Name] = append(t.syms[sym.Name], sym)
			}
		}
		lastLine = line
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup returns the only symbol named name.
func (t *Table) Lookup(name string) (Symbol, error) {
	cands := t.syms[name]
	switch len(cands) {
	case 0:
		return Symbol{}, fmt.Errorf("%w with name %s", ErrNotFound, name)
	case 1:
		return cands[0], nil
	default:
		return Symbol{}, &AmbiguousError{Name: name, Candidates: cands}
	}
}

// Names returns the names of all symbols starting with prefix.
func (t *Table) Names(prefix string) []string {
	var r []string
	for name := range t.syms {
		if strings.HasPrefix(name, prefix) {
			r = append(r, name)
		}
	}
	return r
}

func parseAddr(s string) (uint32, bool) {
	if !strings.HasPrefix(s, "0x") {
		return 0, false
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func isIdent(s string) bool {
	for i, c := range s {
		switch {
		case c == '_', c == '$', c == '.' && i > 0:
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}
