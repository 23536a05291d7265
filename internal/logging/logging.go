// Package logging provides the small leveled logger cwdbg uses
// everywhere, modeled on the original debugger's logmsg()/LOG() macro in
// server/util.c: one line per message with a timestamp and a level name.
// The calling location is not recorded.
package logging

import (
	"fmt"
	"log"
	"os"
)

// Level is one of the five levels the original debugger recognizes.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Crit
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Crit:
		return "CRIT"
	default:
		return "?????"
	}
}

// threshold is the global log level; messages below it are discarded.
// The original keeps this as a plain global (g_loglevel) toggled by
// --debug; we do the same rather than threading a logger handle through
// every call, matching the teacher's own preference for package-level
// state in small tools (cmd/viewcore's flag package globals).
var threshold = Info

var std = log.New(os.Stderr, "", log.LstdFlags)

// SetLevel adjusts the global threshold; --debug sets it to Debug.
func SetLevel(l Level) {
	threshold = l
}

// Logf logs a message at the given level if it passes the threshold.
func Logf(level Level, format string, args ...any) {
	if level < threshold {
		return
	}
	std.Printf("%-5s | %s", level, fmt.Sprintf(format, args...))
}

// Fatalf logs at Crit and exits the process, the Go equivalent of the
// original's "LOG(CRIT, ...); quit_debugger(..., RETURN_FAIL)" pattern
// for debugger-internal invariant violations.
func Fatalf(format string, args ...any) {
	Logf(Crit, format, args...)
	os.Exit(1)
}
