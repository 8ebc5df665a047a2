//go:build !windows

package shutdown

import (
	"os"
	"syscall"
)

var terminateSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Only asynchronously delivered fault signals reach here; faults raised by Go
// code itself become runtime panics.
var fatalSignals = []os.Signal{syscall.SIGSEGV, syscall.SIGBUS, syscall.SIGABRT}
