// Package lockfile guards the state directory against concurrent client
// instances. Two processes sharing one SQLite state database and one session
// identity would race each other, so the first instance takes an exclusive
// lock and later ones fail fast.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const lockName = "yourownrag.lock"

// ErrAlreadyLocked indicates another running instance owns the state dir.
var ErrAlreadyLocked = errors.New("state directory already locked by another instance")

type Lock struct {
	path string
	f    *os.File
}

// Acquire takes the exclusive instance lock for stateDir, creating the
// directory if needed. The holder's pid is written into the lock file for
// troubleshooting.
func Acquire(stateDir string) (*Lock, error) {
	stateDir = strings.TrimSpace(stateDir)
	if stateDir == "" {
		return nil, errors.New("empty state dir")
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(stateDir, lockName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Sync()

	return &Lock{path: path, f: f}, nil
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// HolderPID reads the pid recorded in the lock file at stateDir. Returns 0
// when no lock file exists or it holds no pid.
func HolderPID(stateDir string) int {
	b, err := os.ReadFile(filepath.Join(stateDir, lockName))
	if err != nil {
		return 0
	}
	var pid int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(b)), "%d", &pid); err != nil {
		return 0
	}
	return pid
}

func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
