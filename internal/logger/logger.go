// Package logger wires named loggers to a single process-wide handler.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cenkalti/log"
)

// Logger is the logging interface handed out to the rest of the engine.
type Logger log.Logger

var handler log.Handler = newHandler()

func newHandler() log.Handler {
	h := log.NewFileHandler(os.Stderr)
	h.SetFormatter(lineFormatter{})
	return h
}

// SetHandler replaces the process-wide handler. Loggers created before the
// call keep the old one.
func SetHandler(h log.Handler) {
	h.SetFormatter(lineFormatter{})
	handler = h
}

// SetLevel sets the minimum level on the process-wide handler.
func SetLevel(l log.Level) {
	handler.SetLevel(l)
}

// New returns a Logger whose messages are prefixed with name.
// Filtering happens at the handler, so the logger itself passes everything.
func New(name string) Logger {
	l := log.NewLogger(name)
	l.SetLevel(log.DEBUG)
	l.SetHandler(handler)
	return l
}

type lineFormatter struct{}

func (lineFormatter) Format(rec *log.Record) string {
	caller := fmt.Sprintf("%s:%d", filepath.Base(rec.Filename), rec.Line)
	return fmt.Sprintf("%s %-8s [%s] %-8s %s",
		fmt.Sprint(rec.Time)[:19], rec.Level, rec.LoggerName, caller, rec.Message)
}
