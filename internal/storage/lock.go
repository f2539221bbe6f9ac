package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// lockPrefix starts with a dot so lock files never match a namespace filter.
const lockPrefix = ".lock"

// ErrLocked is returned when another live process holds the namespace lock.
var ErrLocked = errors.New("namespace is locked by another store")

// NamespaceLock is a PID file guarding one namespace in a root directory.
type NamespaceLock struct {
	path string
}

// NewNamespaceLock creates a lock manager for namespace under rootDir.
func NewNamespaceLock(rootDir, namespace string) *NamespaceLock {
	return &NamespaceLock{path: filepath.Join(rootDir, lockPrefix+namespace)}
}

// Path returns the full path to the lock file.
func (l *NamespaceLock) Path() string {
	return l.path
}

// Read returns the PID stored in the lock file, or 0 if not found.
func (l *NamespaceLock) Read() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read lock file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in lock file: %w", err)
	}
	return pid, nil
}

// Holder returns the PID of the live process holding the lock.
// A lock left behind by a dead process, or one holding no valid PID, is
// removed.
func (l *NamespaceLock) Holder() (int, bool) {
	pid, err := l.Read()
	if err != nil {
		// Empty or garbled: the writer died between create and write.
		if !errors.Is(err, os.ErrPermission) {
			l.remove()
		}
		return 0, false
	}
	if pid == 0 {
		return 0, false
	}
	if !processExists(pid) {
		l.remove()
		return 0, false
	}
	return pid, true
}

// Acquire writes the current PID to the lock file. It fails with ErrLocked
// if a live process, including this one, already holds the lock.
func (l *NamespaceLock) Acquire() error {
	if pid, held := l.Holder(); held {
		return fmt.Errorf("%w (pid=%d, %s)", ErrLocked, pid, l.path)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w (%s)", ErrLocked, l.path)
		}
		return fmt.Errorf("create lock file: %w", err)
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		f.Close()
		l.remove()
		return fmt.Errorf("write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		l.remove()
		return fmt.Errorf("close lock file: %w", err)
	}
	return nil
}

// Release removes the lock file if it is held by this process.
func (l *NamespaceLock) Release() error {
	pid, err := l.Read()
	if err != nil {
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return l.remove()
}

func (l *NamespaceLock) remove() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// processExists checks if a process with the given PID is alive.
func processExists(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Signal 0 checks existence;
	// EPERM means the process exists but belongs to another user.
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
