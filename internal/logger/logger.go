// Package logger provides leveled tracing for the retrieval pipeline.
// Debug and Info are gated behind verbose mode so stage decisions,
// fallbacks, and gate rejections can be followed on stderr; Warn always
// prints, since degraded queries should be visible even in quiet runs.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	out     io.Writer = os.Stderr
)

// SetVerbose enables or disables Debug and Info output.
func SetVerbose(v bool) {
	mu.Lock()
	verbose = v
	mu.Unlock()
}

// SetOutput redirects log output, for tests. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// Debug traces pipeline internals when verbose mode is on.
func Debug(format string, args ...any) {
	emit("DEBUG", true, format, args)
}

// Info reports notable outcomes when verbose mode is on.
func Info(format string, args ...any) {
	emit("INFO", true, format, args)
}

// Warn reports a degraded but non-fatal condition. Not gated.
func Warn(format string, args ...any) {
	emit("WARN", false, format, args)
}

func emit(level string, gated bool, format string, args []any) {
	mu.RLock()
	defer mu.RUnlock()
	if gated && !verbose {
		return
	}
	fmt.Fprintf(out, "[%s] %s\n", level, fmt.Sprintf(format, args...))
}
