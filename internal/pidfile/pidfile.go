// Package pidfile guards a daemon against running twice. A PID file holds
// the PID on the first line and, when known, the process start time as JSON
// on the second so a recycled PID is not mistaken for a live daemon.
package pidfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/loykin/tbox/internal/fsutil"
)

var ErrAlreadyRunning = errors.New("daemon already running")

// Meta is the optional second line of a PID file.
type Meta struct {
	StartUnix int64 `json:"start_unix"`
}

// Write records pid in path together with its start time.
func Write(path string, pid int) error {
	var b strings.Builder
	b.WriteString(strconv.Itoa(pid))
	b.WriteByte('\n')
	if start := startUnix(pid); start > 0 {
		mb, err := json.Marshal(Meta{StartUnix: start})
		if err != nil {
			return err
		}
		b.Write(mb)
		b.WriteByte('\n')
	}
	return fsutil.WriteFile(nil, path, []byte(b.String()))
}

// Read parses path. A missing or unparsable meta line yields a zero Meta.
func Read(path string) (int, Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, Meta{}, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, Meta{}, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	var meta Meta
	if len(lines) > 1 {
		_ = json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &meta)
	}
	return pid, meta, nil
}

// Alive reports whether the process recorded in path is running. A missing
// file is not an error.
func Alive(path string) (int, bool, error) {
	pid, meta, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if meta.StartUnix > 0 {
		if cur := startUnix(pid); cur > 0 && cur != meta.StartUnix {
			// recycled pid
			return pid, false, nil
		}
	}
	return pid, pidAlive(pid), nil
}

// Acquire writes pid to path unless another live process already owns it.
// A stale or unreadable file is overwritten.
func Acquire(path string, pid int) error {
	if other, alive, err := Alive(path); err == nil && alive && other != pid {
		return fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, other, path)
	}
	return Write(path, pid)
}

// Release removes path if it still names pid.
func Release(path string, pid int) error {
	owner, _, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if owner != pid {
		return nil
	}
	return os.Remove(path)
}
