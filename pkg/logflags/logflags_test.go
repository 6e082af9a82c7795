package logflags

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMakeLogger_usingLoggerFactory(t *testing.T) {
	if loggerFactory != nil {
		t.Fatalf("expected loggerFactory to be nil; but was <%v>", loggerFactory)
	}
	defer func() {
		loggerFactory = nil
	}()
	if logOut != nil {
		t.Fatalf("expected logOut to be nil; but was <%v>", logOut)
	}
	logOut = &bufferWriter{}
	defer func() {
		logOut = nil
	}()

	expectedLogger := &logrusLogger{}
	SetLoggerFactory(func(level logrus.Level, fields Fields, out io.Writer) Logger {
		if level != logrus.TraceLevel {
			t.Fatalf("expected level to be <%v>; but was <%v>", logrus.TraceLevel, level)
		}
		if len(fields) != 1 || fields["foo"] != "bar" {
			t.Fatalf("expected fields to be {'foo':'bar'}; but was <%v>", fields)
		}
		if out != logOut {
			t.Fatalf("expected out to be <%v>; but was <%v>", logOut, out)
		}
		return expectedLogger
	})

	actual := makeLogger(logrus.TraceLevel, Fields{"foo": "bar"})
	if actual != expectedLogger {
		t.Fatalf("expected actual to <%v>; but was <%v>", expectedLogger, actual)
	}
}

func TestMakeFlaggableLogger_withFlagFalse(t *testing.T) {
	actual := makeFlaggableLogger(false, Fields{"foo": "bar"})
	actualEntry, expectedType := actual.(*logrusLogger)
	if !expectedType {
		t.Fatalf("expected actual to be of type <%v>; but was <%v>", reflect.TypeOf((*logrus.Entry)(nil)), reflect.TypeOf(actualEntry))
	}
	if actualEntry.Entry.Logger.Level != logrus.ErrorLevel {
		t.Fatalf("expected actualEntry.Entry.Logger.Level to be <%v>; but was <%v>", logrus.ErrorLevel, actualEntry.Logger.Level)
	}
	if len(actualEntry.Entry.Data) != 1 || actualEntry.Data["foo"] != "bar" {
		t.Fatalf("expected actualEntry.Entry.Data to be {'foo':'bar'}; but was <%v>", actualEntry.Data)
	}
}

func TestMakeFlaggableLogger_withFlagTrue(t *testing.T) {
	actual := makeFlaggableLogger(true, Fields{"foo": "bar"})
	actualEntry, expectedType := actual.(*logrusLogger)
	if !expectedType {
		t.Fatalf("expected actual to be of type <%v>; but was <%v>", reflect.TypeOf((*logrus.Entry)(nil)), reflect.TypeOf(actualEntry))
	}
	if actualEntry.Entry.Logger.Level != logrus.DebugLevel {
		t.Fatalf("expected actualEntry.Entry.Logger.Level to be <%v>; but was <%v>", logrus.DebugLevel, actualEntry.Logger.Level)
	}
}

func TestTextFormatterWritesLayerFirst(t *testing.T) {
	out := &bufferWriter{}
	logOut = out
	defer func() {
		logOut = nil
	}()

	logger := makeLogger(logrus.DebugLevel, Fields{"layer": "server", "client": "127.0.0.1"})
	logger.Info("client connected")

	got := out.String()
	if !strings.Contains(got, " info layer=server client=127.0.0.1 client connected\n") {
		t.Fatalf("unexpected log line %q", got)
	}
}

func TestWithErrorTagsMessage(t *testing.T) {
	out := &bufferWriter{}
	logOut = out
	defer func() {
		logOut = nil
	}()

	logger := makeLogger(logrus.DebugLevel, Fields{"layer": "server"})
	logger.WithError(io.ErrClosedPipe).Error("writing response")

	got := out.String()
	if !strings.Contains(got, " error layer=server error=io: read/write on closed pipe writing response\n") {
		t.Fatalf("unexpected log line %q", got)
	}
}

func TestSetup(t *testing.T) {
	defer func() {
		server, wire, breakpoints, host, gdbWire, configLayer = false, false, false, false, false, false
	}()

	if err := Setup(false, "wire", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected %v, got %v", errLogstrWithoutLog, err)
	}
	if err := Setup(true, "", ""); err != nil {
		t.Fatal(err)
	}
	if !Server() || Wire() {
		t.Fatalf("default log output should enable only the server layer")
	}
	if err := Setup(true, "wire,breakpoints,gdbwire", ""); err != nil {
		t.Fatal(err)
	}
	if !Wire() || !Breakpoints() || !GdbWire() || Host() || Config() {
		t.Fatalf("wrong layers enabled: wire=%v breakpoints=%v gdbwire=%v host=%v config=%v", Wire(), Breakpoints(), GdbWire(), Host(), Config())
	}
}

type bufferWriter struct {
	bytes.Buffer
}

func (bw *bufferWriter) Close() error {
	return nil
}
