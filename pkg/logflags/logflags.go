package logflags

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var server = false
var wire = false
var breakpoints = false
var host = false
var gdbWire = false
var configLayer = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if !flag {
		return makeLogger(logrus.ErrorLevel, fields)
	}
	return makeLogger(logrus.DebugLevel, fields)
}

// Server returns true if the server package should log session events.
func Server() bool {
	return server
}

// ServerLogger returns a logger for the breakpoint server.
func ServerLogger() Logger {
	return makeFlaggableLogger(server, Fields{"layer": "server"})
}

// Wire returns true if every message exchanged with the client should be
// logged.
func Wire() bool {
	return wire
}

// WireLogger returns a logger for client messages.
func WireLogger() Logger {
	return makeFlaggableLogger(wire, Fields{"layer": "wire"})
}

// Breakpoints returns true if breakpoint and overlay watch transitions
// should be logged.
func Breakpoints() bool {
	return breakpoints
}

// BreakpointsLogger returns a logger for pkg/proc.
func BreakpointsLogger() Logger {
	return makeFlaggableLogger(breakpoints, Fields{"layer": "proc"})
}

// Host returns true if trap installation and removal should be logged.
func Host() bool {
	return host
}

// HostLogger returns a logger for host backends.
func HostLogger() Logger {
	return makeFlaggableLogger(host, Fields{"layer": "host"})
}

// GdbWire returns true if the gdbserial package should log all the packets
// exchanged with the stub.
func GdbWire() bool {
	return gdbWire
}

// GdbWireLogger returns a configured logger for the gdbserial wire protocol.
func GdbWireLogger() Logger {
	return makeFlaggableLogger(gdbWire, Fields{"layer": "gdbconn"})
}

// Config returns true if configuration and overlay table loading should be
// logged.
func Config() bool {
	return configLayer
}

// ConfigLogger returns a logger for configuration loading.
func ConfigLogger() Logger {
	return makeFlaggableLogger(configLayer, Fields{"layer": "config"})
}

// WriteListeningMessage writes the "server listening at" message to the
// log destination, or to stdout if none was configured.
func WriteListeningMessage(addr string) {
	msg := fmt.Sprintf("zdb server listening at: %s\n", addr)
	if logOut != nil {
		fmt.Fprint(logOut, msg)
		return
	}
	fmt.Print(msg)
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets debugger flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "zdb-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "server"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "server":
			server = true
		case "wire":
			wire = true
		case "breakpoints":
			breakpoints = true
		case "host":
			host = true
		case "gdbwire":
			gdbWire = true
		case "config":
			configLayer = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q\n", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
}

var textFormatterInstance = &textFormatter{}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	fmt.Fprintf(b, "%s %s ", entry.Time.Format("2006-01-02T15:04:05Z07:00"), entry.Level.String())

	if layer, ok := entry.Data["layer"]; ok {
		fmt.Fprintf(b, "layer=%v ", layer)
	}
	for k, v := range entry.Data {
		if k == "layer" {
			continue
		}
		fmt.Fprintf(b, "%s=%v ", k, v)
	}

	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}
