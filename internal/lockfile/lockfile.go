// Package lockfile provides pid-file locking to prevent multiple flowbot
// instances on one host.
//
// On startup the service reads any existing lock, probes whether its recorded
// pid is still alive, reclaims stale locks and otherwise refuses to start.
// The probe is an existence check only; it does not verify the process
// identity or permissions.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "flowbot.lock"

// Lock represents an acquired singleton lock.
type Lock struct {
	path     string
	acquired bool
}

// LockError reports a lock held by a live process.
type LockError struct {
	LockPath string
	OwnerPID int
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock %s is held by running process %d", e.LockPath, e.OwnerPID)
}

// Acquire attempts exclusive ownership of the lock file in stateDir. A lock
// whose recorded pid is no longer alive is reclaimed; a lock held by a live
// process yields a *LockError and the caller should exit.
func Acquire(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("Attempting to acquire singleton lock", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory for lock", "error", err, "state_dir", stateDir)
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	if data, err := os.ReadFile(lockPath); err == nil {
		pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr == nil && pidAlive(pid) {
			slog.Error("Another flowbot instance is running", "lock_path", lockPath, "owner_pid", pid)
			return nil, &LockError{LockPath: lockPath, OwnerPID: pid}
		}
		slog.Warn("Removing stale lock file", "lock_path", lockPath, "stale_pid_text", strings.TrimSpace(string(data)))
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock %s: %w", lockPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read lock file %s: %w", lockPath, err)
	}

	pid := os.Getpid()
	if err := os.WriteFile(lockPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		slog.Error("Failed to write lock file", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to write lock file %s: %w", lockPath, err)
	}

	slog.Info("Singleton lock acquired", "lock_path", lockPath, "pid", pid)
	return &Lock{path: lockPath, acquired: true}, nil
}

// Release removes the lock file. Safe to call multiple times; it runs on
// normal exit and from the termination signal handler.
func (l *Lock) Release() error {
	if !l.acquired {
		slog.Debug("Lock already released", "lock_path", l.path)
		return nil
	}
	l.acquired = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to remove lock file", "error", err, "lock_path", l.path)
		return fmt.Errorf("failed to remove lock file %s: %w", l.path, err)
	}
	slog.Info("Singleton lock released", "lock_path", l.path)
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// pidAlive probes process existence with signal 0. EPERM still means the
// process exists, just owned by someone else.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
