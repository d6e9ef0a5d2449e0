// Package telemetry provides the tiered logging streams shared by every
// tof package: ops (actionable warnings/errors), diag (day-to-day
// diagnostics) and trace (high-frequency packet-level detail).
package telemetry

import (
	"io"
	"log"
)

var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetWriters configures the three logging streams. Pass nil for any writer
// to disable that stream entirely.
func SetWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger("[tof] ", ops)
	diagLogger = newLogger("[tof] ", diag)
	traceLogger = newLogger("[tof] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Ops logs actionable warnings, errors, and data loss events.
func Ops(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// Diag logs day-to-day diagnostics and tuning context.
func Diag(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// Trace logs high-frequency packet/event telemetry.
func Trace(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}

// DO NOT add a Debug function, that's an anti-pattern. Each callsite needs
// to decide whether it is Ops, Diag, or Trace.
