// Package util provides helper functions for logging events
package util

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

var debug atomic.Bool

// SetupLogger configures the standard logger used by every component.
func SetupLogger(verbose bool) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	debug.Store(verbose)
}

// Info prints general system information messages with timestamp.
func Info(msg string, args ...any) {
	log.Printf("[INFO] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Error prints error messages with timestamp.
func Error(msg string, args ...any) {
	log.Printf("[ERROR] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Debug prints only when verbose logging is enabled.
func Debug(msg string, args ...any) {
	if !debug.Load() {
		return
	}
	log.Printf("[DEBUG] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}
