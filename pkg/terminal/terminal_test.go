package terminal

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zdbg/zdb/pkg/config"
	"github.com/zdbg/zdb/pkg/host/memhost"
	"github.com/zdbg/zdb/pkg/logflags"
	"github.com/zdbg/zdb/pkg/overlay"
	"github.com/zdbg/zdb/pkg/symbols"
	"github.com/zdbg/zdb/service"
	"github.com/zdbg/zdb/service/zdb"
)

func TestMain(m *testing.M) {
	var logConf string
	flag.StringVar(&logConf, "log", "", "configures logging")
	flag.Parse()
	logflags.Setup(logConf != "", logConf, "")
	os.Exit(m.Run())
}

const testMap = `
..code          0x80010060    0xd4ea0 load address 0x00001060
 .text          0x80010060      0x7c0 build/src/code/main.o
                0x80010060                main
                0x80010220                Main_ThreadEntry

..ovl_Bg_Hidan_Kousi
                0x80800000      0x6f0 load address 0x00e3c000
 .text          0x80800000      0x5a0 build/src/overlays/actors/ovl_Bg_Hidan_Kousi/z_bg_hidan_kousi.o
                0x80800000                BgHidanKousi_Init
                0x80800040                BgHidanKousi_Update
                0x80800100                Shared_Func

..ovl_En_Test   0x80810000     0x1000 load address 0x00e40000
 .text          0x80810000      0x800 build/src/overlays/actors/ovl_En_Test/z_en_test.o
                0x80810024                EnTest_Draw
                0x80810100                Shared_Func
`

type FakeTerminal struct {
	*Term
	t   testing.TB
	sim *memhost.Host
}

func (ft *FakeTerminal) Exec(cmdstr string) (string, error) {
	var out bytes.Buffer
	stdout := ft.Term.stdout
	ft.Term.stdout = &out
	defer func() { ft.Term.stdout = stdout }()
	err := ft.cmds.Call(cmdstr, ft.Term)
	return out.String(), err
}

func (ft *FakeTerminal) MustExec(cmdstr string) string {
	outstr, err := ft.Exec(cmdstr)
	if err != nil {
		ft.t.Errorf("output of %q: %q", cmdstr, outstr)
		ft.t.Fatalf("Error executing <%s>: %v", cmdstr, err)
	}
	return outstr
}

func (ft *FakeTerminal) AssertExecError(cmdstr, contains string) {
	outstr, err := ft.Exec(cmdstr)
	if err == nil {
		ft.t.Errorf("output of %q: %q", cmdstr, outstr)
		ft.t.Fatalf("Expected error executing %q", cmdstr)
	}
	if !strings.Contains(err.Error(), contains) {
		ft.t.Fatalf("Wrong error for %q: %v (expected %q)", cmdstr, err, contains)
	}
}

func withTestTerminal(t *testing.T, fn func(term *FakeTerminal)) {
	tables := overlay.DefaultTables()
	tables[overlay.Actor] = []string{"player", "bg_hidan_kousi", "en_test"}

	listener, clientConn := service.ListenerPipe()
	sim := memhost.New()
	server := zdb.NewServer(&service.Config{
		Listener: listener,
		Host:     sim,
		Resolver: overlay.NewResolver(tables),
	})
	if err := server.Run(); err != nil {
		t.Fatalf("could not start server: %v", err)
	}
	defer server.Stop()

	client := zdb.NewClientFromConn(clientConn)
	defer client.Disconnect()

	syms, err := symbols.Parse(strings.NewReader(testMap))
	if err != nil {
		t.Fatal(err)
	}
	term := New(client, &config.Config{}, syms)
	term.dumb = true
	defer term.Close()
	fn(&FakeTerminal{Term: term, t: t, sim: sim})
}

func TestCommandFind(t *testing.T) {
	cmds := DebugCommands(nil)
	for _, cmdstr := range []string{"break", "b", "breakp", "continue", "c", "cont", "cle", "tab", "s", "q"} {
		if _, err := cmds.Find(cmdstr); err != nil {
			t.Errorf("Find(%q): %v", cmdstr, err)
		}
	}

	_, err := cmds.Find("br")
	var aerr *AmbiguousCommandError
	if !errors.As(err, &aerr) {
		t.Fatalf("Find(\"br\"): expected ambiguous command, got %v", err)
	}
	if strings.Join(aerr.Candidates, " ") != "break breakpoints" {
		t.Errorf("wrong candidates %v", aerr.Candidates)
	}

	if _, err := cmds.Find("nosuchcommand"); err != noCmdError {
		t.Fatalf("expected noCmdError, got %v", err)
	}
}

func TestCommandDefault(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		term.AssertExecError("frame 0", "command not available")
		if out := term.MustExec(""); out != "" {
			t.Fatalf("empty command printed %q", out)
		}
	})
}

func TestCommandRegister(t *testing.T) {
	cmds := DebugCommands(nil)
	cmds.Register("foo", func(t *Term, args string) error { return errors.New("registered command") }, "foo command")
	fn, err := cmds.Find("foo")
	if err != nil {
		t.Fatal(err)
	}
	if err := fn(nil, ""); err == nil || err.Error() != "registered command" {
		t.Fatal("wrong command output")
	}
}

func TestMerge(t *testing.T) {
	cmds := DebugCommands(nil)
	cmds.Merge(map[string][]string{
		"break": {"stop"},
		"clear": {"wipe"},
	})
	for _, cmdstr := range []string{"stop", "wipe", "b"} {
		if _, err := cmds.Find(cmdstr); err != nil {
			t.Errorf("Find(%q): %v", cmdstr, err)
		}
	}
	// merging again replaces the previous configuration aliases
	cmds.Merge(map[string][]string{"break": {"halt"}})
	if _, err := cmds.Find("wipe"); err == nil {
		t.Error("alias wipe survived merge")
	}
	if _, err := cmds.Find("halt"); err != nil {
		t.Errorf("Find(\"halt\"): %v", err)
	}
}

func TestBreakFromMapFile(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		out := term.MustExec("break Main_ThreadEntry")
		if !strings.Contains(out, "Main_ThreadEntry (0x80010220)") {
			t.Fatalf("wrong output %q", out)
		}
		if term.sim.ExecTrapsAt(0x80010220) != 1 {
			t.Fatal("no trap armed at 0x80010220")
		}

		out = term.MustExec("break BgHidanKousi_Update")
		if !strings.Contains(out, "bg_hidan_kousi+0x40") {
			t.Fatalf("wrong output %q", out)
		}

		out = term.MustExec("breakpoints")
		if !strings.Contains(out, "BgHidanKousi_Update") || !strings.Contains(out, "Main_ThreadEntry") {
			t.Fatalf("breakpoint missing from %q", out)
		}

		term.AssertExecError("break Main_ThreadEntry", "already has an active breakpoint")
		term.AssertExecError("break NoSuchFunction", "could not find function")
	})
}

func TestBreakAmbiguous(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		out, err := term.Exec("break Shared_Func")
		var aerr *symbols.AmbiguousError
		if !errors.As(err, &aerr) {
			t.Fatalf("expected ambiguous function error, got %v", err)
		}
		if !strings.Contains(out, "bg_hidan_kousi+0x100") || !strings.Contains(out, "en_test+0x100") {
			t.Fatalf("candidates not listed: %q", out)
		}
	})
}

func TestBreakExplicit(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		term.MustExec("break foo 0x80001000")
		if term.sim.ExecTrapsAt(0x80001000) != 1 {
			t.Fatal("no trap armed at 0x80001000")
		}
		term.MustExec("break bar ovl en_test 0x24")
		term.AssertExecError("break baz ovl en_nope 0", "server did not recognize overlay")
		term.AssertExecError("break foo notanumber", "invalid address")
		term.AssertExecError("break", "wrong number of arguments")

		out := term.MustExec("info")
		if out != "  1  bar\n  2  foo\n" {
			t.Fatalf("wrong breakpoint list %q", out)
		}
	})
}

func TestDeleteAndClear(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		term.MustExec("break foo 0x100")
		term.MustExec("break bar 0x200")
		term.MustExec("delete foo")
		term.AssertExecError("delete foo", "does not have an active breakpoint")
		if term.sim.ExecTrapsAt(0x100) != 0 {
			t.Fatal("trap at 0x100 still armed")
		}
		term.MustExec("clear")
		if out := term.MustExec("info"); out != "(no active breakpoints)\n" {
			t.Fatalf("wrong output %q", out)
		}
		if term.sim.Armed() != 0 {
			t.Fatalf("%d traps left armed", term.sim.Armed())
		}
	})
}

func TestTableLocations(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		term.MustExec("tablelocs 0x800e8530 0x800e7c40 0x800f1280 0x800f1340")
		term.AssertExecError("tablelocs 0x800e8530", "wrong number of arguments")
	})
}

func TestRawAndNotify(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		if out := term.MustExec("raw hello"); out != "server did not recognize command\n" {
			t.Fatalf("wrong output %q", out)
		}
		term.MustExec(`notify {"state": "paused"}`)
		if out := term.MustExec("raw info"); out != "(no active breakpoints)\n" {
			t.Fatalf("wrong output %q", out)
		}
	})
}

func TestFunctions(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		out := term.MustExec("functions BgHidanKousi_")
		want := "BgHidanKousi_Init (bg_hidan_kousi+0x0)\nBgHidanKousi_Update (bg_hidan_kousi+0x40)\n"
		if out != want {
			t.Fatalf("got %q want %q", out, want)
		}
	})
}

func TestSourceFile(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		path := filepath.Join(t.TempDir(), "init")
		script := "# breakpoints\nbreak foo 0x100\n\nbreak EnTest_Draw\n"
		if err := os.WriteFile(path, []byte(script), 0600); err != nil {
			t.Fatal(err)
		}
		term.MustExec("source " + path)
		if out := term.MustExec("info"); out != "  1  EnTest_Draw\n  2  foo\n" {
			t.Fatalf("wrong breakpoint list %q", out)
		}
	})
}

func TestSourceStarlark(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		path := filepath.Join(t.TempDir(), "script.star")
		script := `
def command_pair(args):
    "Sets two breakpoints."
    zdb_command("break first 0x100")
    zdb_command("break " + args + " 0x200")

def main():
    print(server_call("info"))
`
		if err := os.WriteFile(path, []byte(script), 0600); err != nil {
			t.Fatal(err)
		}
		out := term.MustExec("source " + path)
		if out != "(no active breakpoints)\n" {
			t.Fatalf("wrong output %q", out)
		}
		term.MustExec("pair second")
		if out := term.MustExec("info"); out != "  1  first\n  2  second\n" {
			t.Fatalf("wrong breakpoint list %q", out)
		}
		if out := term.MustExec("help pair"); out != "Sets two breakpoints.\n" {
			t.Fatalf("wrong help %q", out)
		}
	})
}

func TestConfigCommand(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		term.MustExec("config alias break stop")
		term.MustExec("stop foo 0x100")
		if term.sim.ExecTrapsAt(0x100) != 1 {
			t.Fatal("alias did not set a breakpoint")
		}
		term.MustExec("config alias stop")
		if _, err := term.Exec("stop bar 0x200"); err == nil {
			t.Fatal("removed alias still works")
		}

		term.MustExec("config buffer-size 0x40")
		if term.conf.BufferSize != 0x40 {
			t.Fatalf("buffer-size not set: %d", term.conf.BufferSize)
		}
		term.MustExec("config table-bases 1 2 3 0x4")
		if got := term.conf.TableBases; len(got) != 4 || got[3] != 4 {
			t.Fatalf("table-bases not set: %v", got)
		}
		term.AssertExecError("config table-bases 1 2", "needs 4 addresses")
		term.AssertExecError("config nosuchkey 1", "is not a configuration parameter")

		out := term.MustExec("config -list")
		if !strings.Contains(out, "buffer-size") || !strings.Contains(out, "0x4") {
			t.Fatalf("wrong configuration listing %q", out)
		}
	})
}

func TestConfigMapFile(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		path := filepath.Join(t.TempDir(), "other.map")
		m := "..boot          0x80000460     0x10 load address 0x00001000\n                0x80000460                bootproc\n"
		if err := os.WriteFile(path, []byte(m), 0600); err != nil {
			t.Fatal(err)
		}
		term.MustExec("config map-file " + path)
		if out := term.MustExec("functions"); out != "bootproc (0x80000460)\n" {
			t.Fatalf("wrong output %q", out)
		}
		term.AssertExecError("config map-file "+filepath.Join(t.TempDir(), "missing.map"), "could not open")
	})
}

func TestExit(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		_, err := term.Exec("exit")
		if _, ok := err.(ExitRequestError); !ok {
			t.Fatalf("expected ExitRequestError, got %v", err)
		}
	})
}

func TestComplete(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		got := strings.Join(term.complete("de"), " ")
		if got != "delete" {
			t.Errorf("complete(\"de\") = %q", got)
		}
		got = strings.Join(term.complete("break BgHidanKousi_"), " ")
		if got != "break BgHidanKousi_Init break BgHidanKousi_Update" {
			t.Errorf("complete(\"break BgHidanKousi_\") = %q", got)
		}
	})
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"4660", 4660, true},
		{"0x1234", 0x1234, true},
		{"0X80000000", 0x80000000, true},
		{"010", 10, true},
		{"0x100000000", 0, false},
		{"-1", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		got, err := parseNumber(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("parseNumber(%q) = %#x, %v", tc.in, got, err)
		}
	}
}
