// Package debug provides an on/off debug logger. Logging is off unless
// KUZU_DEBUG is set; hot paths never log.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	enabled = os.Getenv("KUZU_DEBUG") != ""
	logger  = log.New(os.Stderr, "kz: ", log.LstdFlags)
)

// Enabled reports whether debug logging is on.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Enable turns debug logging on for the process.
func Enable() {
	mu.Lock()
	defer mu.Unlock()
	enabled = true
}

// SetLogFile routes output through a rotating file instead of stderr.
func SetLogFile(path string) {
	if path == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	var w io.Writer = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	}
	logger = log.New(w, "kz: ", log.LstdFlags)
}

// Logf logs a formatted line when debug logging is enabled.
func Logf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	logger.Output(2, fmt.Sprintf(format, args...))
}
