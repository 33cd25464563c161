// Package monitoring carries the observability surfaces of track recovery:
// the ops/diag/trace log streams, Prometheus metrics and score plots.
package monitoring

import (
	"io"
	"log"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	mu          sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

func init() {
	opsLogger = newLogger(log.Writer())
}

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger(w.Ops)
	diagLogger = newLogger(w.Diag)
	traceLogger = newLogger(w.Trace)
}

// newLogger creates a *log.Logger for a given writer, or returns nil if w is nil.
func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[trackrecovery] ", log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream (failures and pass lifecycle).
func Opsf(format string, args ...interface{}) {
	printf(&opsLogger, format, args...)
}

// Diagf logs to the diag stream (per-pass summaries and cut statistics).
func Diagf(format string, args ...interface{}) {
	printf(&diagLogger, format, args...)
}

// Tracef logs to the trace stream (per-candidate and per-commit detail).
func Tracef(format string, args ...interface{}) {
	printf(&traceLogger, format, args...)
}

// TraceEnabled reports whether the trace stream has a writer, so hot loops
// can skip formatting.
func TraceEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return traceLogger != nil
}

func printf(target **log.Logger, format string, args ...interface{}) {
	mu.RLock()
	l := *target
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
