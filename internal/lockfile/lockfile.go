// Package lockfile manages the gateway's advisory lock file, a JSON
// record of the owning pid and port at a well-known state path.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLocked is returned by Acquire when a live gateway already owns the
// lock for the same port.
var ErrLocked = errors.New("lock held by a live process")

// ErrCorrupt is returned by Read when the lock file exists but does not
// parse. Corrupt locks count as stale: RemoveStale deletes them and
// Acquire overwrites them.
var ErrCorrupt = errors.New("corrupt lock file")

// Lock is the serialized lock file content.
type Lock struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// Liveness answers whether a pid is still running. Satisfied by
// procinspect.Inspector.
type Liveness interface {
	Alive(pid int32) bool
}

// Manager reads, writes and validates the lock file.
type Manager struct {
	path string
	proc Liveness
}

// New returns a Manager for the lock at path.
func New(path string, proc Liveness) *Manager {
	return &Manager{path: path, proc: proc}
}

// Path returns the lock file location.
func (m *Manager) Path() string { return m.path }

// Read loads the current lock. A missing file returns (nil, nil).
func (m *Manager) Read() (*Lock, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", err)
	}
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &l, nil
}

// Stale reports whether the lock refers to a dead pid or a different
// port than expected.
func (m *Manager) Stale(l *Lock, port int) bool {
	if l == nil {
		return false
	}
	if !m.proc.Alive(int32(l.PID)) {
		return true
	}
	return l.Port != port
}

// RemoveStale deletes the lock file if it is stale for the port.
// Returns true when a lock was removed.
func (m *Manager) RemoveStale(port int) (bool, error) {
	l, err := m.Read()
	if errors.Is(err, ErrCorrupt) {
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("remove corrupt lock: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if l == nil || !m.Stale(l, port) {
		return false, nil
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove stale lock: %w", err)
	}
	return true, nil
}

// Acquire writes a lock owned by this process. A live non-stale owner
// yields ErrLocked; a stale lock is silently replaced.
func (m *Manager) Acquire(port int) error {
	existing, err := m.Read()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	if existing != nil && !m.Stale(existing, port) && existing.PID != os.Getpid() {
		return fmt.Errorf("%w: pid %d port %d", ErrLocked, existing.PID, existing.Port)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	l := Lock{PID: os.Getpid(), Port: port, StartedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write lock: %w", err)
	}
	return nil
}

// Release removes the lock if this process owns it. A corrupt lock has
// no provable owner and stays put.
func (m *Manager) Release() error {
	l, err := m.Read()
	if errors.Is(err, ErrCorrupt) {
		return nil
	}
	if err != nil {
		return err
	}
	if l == nil || l.PID != os.Getpid() {
		return nil
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
