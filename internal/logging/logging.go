// Package logging hands out component loggers backed by gommon/log, the
// logger echo uses, so client and server output share one format.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/labstack/gommon/log"
)

const header = `${time_rfc3339} ${level} [${prefix}]`

var (
	mu      sync.Mutex
	level   = log.INFO
	output  io.Writer = os.Stderr
	loggers []*log.Logger
)

// ParseLevel maps a config string to a gommon level. Unknown values fall back to INFO.
func ParseLevel(name string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off", "none", "silent":
		return log.OFF
	default:
		return log.INFO
	}
}

// New returns a logger tagged with the given component prefix.
func New(prefix string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()

	l := log.New(prefix)
	l.SetHeader(header)
	l.SetLevel(level)
	l.SetOutput(output)
	loggers = append(loggers, l)
	return l
}

// SetLevel changes the level of every logger handed out so far and of future ones.
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()

	level = ParseLevel(name)
	for _, l := range loggers {
		l.SetLevel(level)
	}
}

// SetOutput redirects every logger. The terminal UI points this at a file
// so log lines do not tear the rendered frame.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	output = w
	for _, l := range loggers {
		l.SetOutput(w)
	}
}

// ShortID trims an identifier for log prefixes like "[Job 1a2b3c4d]".
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
