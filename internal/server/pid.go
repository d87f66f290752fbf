package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PIDFileName is created in the application directory while the API is serving
const PIDFileName = "clipboard-history.pid"

// ErrAlreadyRunning is returned when another live instance holds the PID file
var ErrAlreadyRunning = errors.New("another clipboard-history instance is running")

// pidFile manages the PID file for the server
type pidFile struct {
	path string
}

// newPIDFile creates a PID file manager in dir
func newPIDFile(dir string) (*pidFile, error) {
	if dir == "" {
		return nil, errors.New("no PID directory configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}
	return &pidFile{path: filepath.Join(dir, PIDFileName)}, nil
}

// acquire claims the PID file. A live owner causes ErrAlreadyRunning unless
// replace is set, in which case the owner is asked to terminate first.
func (p *pidFile) acquire(replace bool) error {
	pid, err := p.read()
	if err != nil {
		return err
	}

	if pid != 0 && pid != os.Getpid() && isRunning(pid) {
		if !replace {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		if err := killProcess(pid); err != nil {
			return err
		}
		waitForExit(pid, 3*time.Second)
	}

	return p.write()
}

// write writes the current process PID to the PID file
func (p *pidFile) write() error {
	pid := os.Getpid()
	return os.WriteFile(p.path, []byte(strconv.Itoa(pid)), 0644)
}

// read reads the PID from the PID file
func (p *pidFile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	// Unreadable content is left behind by an interrupted write and is
	// treated as stale.
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}

	return pid, nil
}

// remove removes the PID file if it still belongs to this process
func (p *pidFile) remove() error {
	if pid, err := p.read(); err == nil && pid != 0 && pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// isRunning checks if a process with the given PID is running
func isRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix systems, FindProcess always succeeds, so we need to check if the process actually exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// killProcess attempts to kill a process with the given PID
func killProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	// First try SIGTERM for graceful shutdown
	if err := process.Signal(syscall.SIGTERM); err != nil {
		if err := process.Kill(); err != nil {
			return fmt.Errorf("failed to kill process: %w", err)
		}
	}

	return nil
}

func waitForExit(pid int, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) && isRunning(pid) {
		time.Sleep(50 * time.Millisecond)
	}
}
