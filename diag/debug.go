// Package diag provides caller-aware debug logging for the roverd
// runtime. Every helper checks config.Debug before producing output,
// matching the teacher's shared/debug.go (DebugPrint/DebugError/
// DebugPanic) so log lines read the same across the codebase.
package diag

import (
	"log"
	"path/filepath"
	"runtime"
	"strings"
)

// enabled reports whether verbose debug output is on. It is a function
// value (not a direct read of config.Debug) so diag has no import
// dependency on config, avoiding an import cycle since config may want
// to log during its own validation.
var enabled = func() bool { return false }

// SetEnabledFunc installs the predicate diag consults before emitting
// verbose output. cmd/roverd wires this to config.Debug at startup.
func SetEnabledFunc(fn func() bool) {
	enabled = fn
}

// Printf logs a debug message with caller file, line, and function
// name, when debug mode is enabled. It is a silent no-op otherwise.
func Printf(format string, args ...interface{}) {
	if !enabled() {
		return
	}
	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		log.Printf("DEBUG: "+format, args...)
		return
	}
	filename := filepath.Base(file)
	funcName := shortFuncName(runtime.FuncForPC(pc).Name())
	log.Printf("[%s:%d %s]: "+format, append([]interface{}{filename, line, funcName}, args...)...)
}

// Errorf always logs, regardless of debug mode, but includes caller
// context only when debug mode is enabled. Severity is carried by the
// errs.RuntimeError values returned to callers; diag publishes nothing
// on the pubsub tree, and this is purely the textual log line.
func Errorf(err error) {
	if !enabled() {
		log.Printf("ERROR: %v", err)
		return
	}
	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		log.Printf("ERROR: %v", err)
		return
	}
	filename := filepath.Base(file)
	funcName := shortFuncName(runtime.FuncForPC(pc).Name())
	log.Printf("ERROR [%s:%d %s]: %v", filename, line, funcName, err)
}

// Panicf logs a critical-path message. In debug mode it panics after
// logging caller context (to fail loudly during development); outside
// debug mode it logs and returns, since roverd's supervision tree is
// expected to contain the resulting failure rather than crash the
// process.
func Panicf(format string, args ...interface{}) {
	if !enabled() {
		log.Printf("CRITICAL (would panic in debug mode): "+format, args...)
		return
	}
	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		log.Panicf("PANIC: "+format, args...)
		return
	}
	filename := filepath.Base(file)
	funcName := shortFuncName(runtime.FuncForPC(pc).Name())
	log.Panicf("PANIC [%s:%d %s]: "+format, append([]interface{}{filename, line, funcName}, args...)...)
}

func shortFuncName(fullName string) string {
	if i := strings.LastIndex(fullName, "/"); i >= 0 {
		fullName = fullName[i+1:]
	}
	if i := strings.LastIndex(fullName, "."); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}
