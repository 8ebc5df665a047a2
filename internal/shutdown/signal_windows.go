//go:build windows

package shutdown

import (
	"os"
	"syscall"
)

var terminateSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

var fatalSignals []os.Signal
