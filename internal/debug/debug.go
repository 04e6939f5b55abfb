// Package debug provides leveled, subsystem-tagged logging that stays
// silent unless explicitly enabled: a mutex-guarded writer gated by an
// env var / build flag, never active in tests by default.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EnableDebug can be overridden at build time:
//   go build -ldflags "-X github.com/cxrefd/cxrefd/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var (
	mu     sync.Mutex
	output io.Writer
)

// SetOutput sets the writer debug lines go to. Pass nil to disable.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// IsEnabled reports whether debug logging is active.
func IsEnabled() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("CXREF_DEBUG")
	return v == "1" || v == "true"
}

func logf(channel, format string, args ...any) {
	if !IsEnabled() {
		return
	}
	mu.Lock()
	w := output
	mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(w, "%s [%s] %s\n", time.Now().Format(time.RFC3339Nano), channel, msg)
}

// LogParse logs a message from ParseWorker.
func LogParse(format string, args ...any) { logf("parse", format, args...) }

// LogVisit logs a message from VisitWorker.
func LogVisit(format string, args ...any) { logf("visit", format, args...) }

// LogQuery logs a message from the Query facade.
func LogQuery(format string, args ...any) { logf("query", format, args...) }

// LogAudit logs a message from the IncludeAuditor.
func LogAudit(format string, args ...any) { logf("audit", format, args...) }
