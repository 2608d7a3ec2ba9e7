package auth

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// logrLogger adapts a logr.Logger to Logger. Debug maps to V(1).
type logrLogger struct {
	l logr.Logger
}

// NewLogrLogger wraps a logr.Logger.
func NewLogrLogger(l logr.Logger) Logger {
	return logrLogger{l: l}
}

func (g logrLogger) Debug(msg string, args ...any) {
	g.l.V(1).Info(msg, args...)
}

func (g logrLogger) Info(msg string, args ...any) {
	g.l.Info(msg, args...)
}

func (g logrLogger) Warn(msg string, args ...any) {
	g.l.Info(msg, append([]any{"level", "warn"}, args...)...)
}

// Error pulls an "error" key out of args so logr can render it as the
// error value.
func (g logrLogger) Error(msg string, args ...any) {
	var err error
	rest := make([]any, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) && args[i] == "error" {
			if e, ok := args[i+1].(error); ok {
				err = e
				continue
			}
		}
		rest = append(rest, args[i])
		if i+1 < len(args) {
			rest = append(rest, args[i+1])
		}
	}
	g.l.Error(err, msg, rest...)
}

func defLogger() Logger {
	return NewLogrLogger(stdr.New(log.New(os.Stderr, "[AUTH] ", log.LstdFlags)).WithName("auth"))
}

// normalizeLogger returns a usable logger for nil input.
func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger()
	}
	return l
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards everything.
func NopLogger() Logger {
	return nopLogger{}
}
