package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	pidFilePermissions = 0o644
	pidDirPermissions  = 0o755
)

// errNoServer is returned by signalReload when no server holds the PID file.
var errNoServer = errors.New("no running flow-go server")

// writePIDFile writes the current process ID to path under an exclusive
// flock, so only one server runs per data directory. The returned cleanup
// removes the file and releases the lock.
func writePIDFile(path string) (cleanup func(), err error) {
	if path == "" {
		return nil, errors.New("PID file path is empty; cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another flow-go server is already running (could not lock %s)", path)
	}

	if err := stampPID(f); err != nil {
		f.Close()

		return nil, fmt.Errorf("recording PID in %s: %w", path, err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// stampPID replaces the file's contents with the current process ID and
// flushes it so "flow-go reload" sees it immediately.
func stampPID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}

	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return err
	}

	return f.Sync()
}

func readPIDFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, convErr := strconv.Atoi(strings.TrimSpace(string(raw)))
	if convErr != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s: %q", path, strings.TrimSpace(string(raw)))
	}

	return pid, nil
}

// signalReload sends SIGHUP to the server recorded in pidPath, asking it to
// re-read its config file. A PID file left by a dead process is removed.
func signalReload(pidPath string) (int, error) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w (no PID file at %s)", errNoServer, pidPath)
		}

		return 0, err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)

		return pid, fmt.Errorf("%w (PID %d is gone; stale PID file removed)", errNoServer, pid)
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return pid, fmt.Errorf("sending SIGHUP to PID %d: %w", pid, err)
	}

	return pid, nil
}
