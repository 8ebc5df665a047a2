package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/loykin/tbox/internal/pidfile"
)

// daemonChildVar marks the re-executed background process.
const daemonChildVar = "TBOX_DAEMON_CHILD"

// daemonize re-executes the current command in the background and exits the
// parent. In the child it returns nil immediately.
func daemonize(pidFile string, logFile string) error {
	if os.Getenv(daemonChildVar) == "1" {
		return nil
	}
	if pidFile != "" {
		if pid, alive, err := pidfile.Alive(pidFile); err == nil && alive {
			return fmt.Errorf("%w (pid %d, %s)", pidfile.ErrAlreadyRunning, pid, pidFile)
		}
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// #nosec 204
	cmd := exec.Command(executable, daemonArgs(os.Args[1:])...)
	cmd.Env = append(os.Environ(), daemonChildVar+"=1")
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil

	if logFile != "" {
		// #nosec 304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = logF.Close() }()
		cmd.Stdout = logF
		cmd.Stderr = logF
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	if pidFile != "" {
		if err := pidfile.Write(pidFile, cmd.Process.Pid); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
	}

	fmt.Printf("Daemon started with PID %d\n", cmd.Process.Pid)
	os.Exit(0)
	return nil
}

// daemonArgs drops --daemonize from args. The child keeps --pidfile so it
// removes the file on exit, and --logfile is irrelevant once output is
// redirected.
func daemonArgs(args []string) []string {
	out := make([]string, 0, len(args))
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case arg == "--daemonize" || strings.HasPrefix(arg, "--daemonize="):
			continue
		case arg == "--logfile":
			skipNext = true
			continue
		case strings.HasPrefix(arg, "--logfile="):
			continue
		}
		out = append(out, arg)
	}
	return out
}
