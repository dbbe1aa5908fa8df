package history

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Lock creates a PID lock file for a session, the same convention the
// teacher's storage.SessionStorage uses to prevent two instances from
// driving the same session concurrently.
func (s *Store) Lock(id string) error {
	return os.WriteFile(s.lockPath(id), []byte(fmt.Sprintf("%d", os.Getpid())), 0o600)
}

// Unlock removes a session's lock file; a missing file is not an error.
func (s *Store) Unlock(id string) error {
	if err := os.Remove(s.lockPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Locked reports whether a session is locked by a still-running process.
// A lock file naming a dead PID is stale and is cleaned up.
func (s *Store) Locked(id string) (bool, error) {
	data, err := os.ReadFile(s.lockPath(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading lock for session %s: %w", id, err)
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		_ = os.Remove(s.lockPath(id))
		return false, nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil || errors.Is(proc.Signal(syscall.Signal(0)), os.ErrProcessDone) {
		_ = os.Remove(s.lockPath(id))
		return false, nil
	}

	return true, nil
}

func (s *Store) lockPath(id string) string {
	return s.path(id) + ".lock"
}
