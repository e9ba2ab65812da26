// Package logging provides the agent's single process-wide logger: level-
// gated, stderr-bound output serialized through one mutex so the sampler,
// the orchestrator, and every upload worker can log concurrently without
// interleaving partial lines. This is the one process-global value the rest
// of the agent is allowed to reach for directly; every other piece of state
// is owned explicitly by whichever component created it.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
)

// Level mirrors the four verbosity tiers the CLI's -v flag selects between.
// Higher numbers are more verbose; 0 means silent.
type Level int32

const (
	LevelSilent Level = 0
	LevelWarn   Level = 1
	LevelInfo   Level = 2
	LevelDebug  Level = 3
)

// Logger serializes writes to a single destination behind a mutex and skips
// formatting work entirely when the message's level is gated out.
type Logger struct {
	out   io.Writer
	mu    sync.Mutex
	level atomic.Int32
	slog  *slog.Logger
}

// New creates a Logger writing to w, starting at the given level.
func New(w io.Writer, level Level) *Logger {
	l := &Logger{out: w}
	l.level.Store(int32(level))
	l.slog = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return l
}

// SetLevel adjusts the verbosity gate. Safe to call concurrently with
// logging calls.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// Level returns the current verbosity gate.
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Logf logs a formatted message at the given level if the gate allows it.
// Messages are prefixed with the calling file and line, matching the
// original tool's LOG(level, fmt, ...) macro.
func (l *Logger) Logf(level Level, format string, args ...any) {
	if Level(l.level.Load()) < level {
		return
	}

	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file, line = "???", 0
	} else {
		file = trimPath(file)
	}

	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%d] %s:%d: %s\n", level, file, line, msg)
}

// trimPath keeps only the last path element, matching the terse __FILE__
// style basenames the original logger printed.
func trimPath(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// Structured returns a slog.Logger sharing this Logger's destination and
// mutex-free write path, for the handful of call sites (observability
// wiring, startup banners) that want key/value structured fields instead of
// a printf-style message.
func (l *Logger) Structured() *slog.Logger {
	return l.slog
}

// global is the one sanctioned process-wide logging singleton.
var (
	global   *Logger
	globalMu sync.RWMutex
)

func init() {
	global = New(os.Stderr, LevelWarn)
}

// SetGlobal replaces the process-wide logger. Orchestrator startup calls
// this once, after parsing -v/-q, before any component starts logging.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

// Global returns the process-wide logger.
func Global() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Warnf, Infof, and Debugf log through the process-wide logger at the
// matching level. They exist so call sites don't all need to fetch Global()
// and pick a level constant by hand.
func Warnf(format string, args ...any)  { Global().logfSkip(LevelWarn, format, args...) }
func Infof(format string, args ...any)  { Global().logfSkip(LevelInfo, format, args...) }
func Debugf(format string, args ...any) { Global().logfSkip(LevelDebug, format, args...) }

// logfSkip is Logf with one extra frame skipped, so Warnf/Infof/Debugf
// report their caller's file:line rather than logger.go's.
func (l *Logger) logfSkip(level Level, format string, args ...any) {
	if Level(l.level.Load()) < level {
		return
	}
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "???", 0
	} else {
		file = trimPath(file)
	}
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%d] %s:%d: %s\n", level, file, line, msg)
}
