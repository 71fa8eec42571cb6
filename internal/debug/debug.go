// Package debug provides a cheap, conditionally-enabled trace logger for
// hot paths (push traversal, filter decisions) that would be too noisy for
// the structured logger at Info level.
package debug

import (
	"fmt"
	"os"
	"sync"
)

var (
	once    sync.Once
	enabled bool
)

// Enabled reports whether DATAHUB_DEBUG is set to a truthy value.
func Enabled() bool {
	once.Do(func() {
		v := os.Getenv("DATAHUB_DEBUG")
		enabled = v != "" && v != "0" && v != "false"
	})
	return enabled
}

// Logf writes a debug trace line to stderr, if enabled. No-op otherwise.
func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	fmt.Fprintf(os.Stderr, "debug: "+format+"\n", args...)
}
