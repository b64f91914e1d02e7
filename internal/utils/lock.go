package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix    = ".lock"
	defaultRetryDelay = 250 * time.Millisecond
)

// HistoryLock serializes writers of the run history database across
// processes. While held, the lock file next to the database names the run
// being saved.
type HistoryLock struct {
	lock *flock.Flock
	path string

	// RetryDelay is the polling interval while another process holds the lock.
	RetryDelay time.Duration
	Log        Logger
}

// NewHistoryLock returns the lock guarding the database at dbPath ("" means
// the default location).
func NewHistoryLock(dbPath string) (*HistoryLock, error) {
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not resolve run history path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, err
	}
	lockPath := absPath + lockFileSuffix
	return &HistoryLock{
		lock:       flock.New(lockPath),
		path:       lockPath,
		RetryDelay: defaultRetryDelay,
		Log:        NopLogger{},
	}, nil
}

func (l *HistoryLock) Path() string { return l.path }

// Holder returns the description written by the process holding the lock,
// or "" when nobody has recorded one.
func (l *HistoryLock) Holder() string {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// Acquire takes the lock on behalf of holder (for example "run <id> of ZYN"),
// polling until it is free or ctx is done.
func (l *HistoryLock) Acquire(ctx context.Context, holder string) error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking run history for %s: %w", holder, err)
	}
	if !locked {
		busy := l.Holder()
		if busy == "" {
			busy = "another worklogs process"
		}
		OrNop(l.Log).Infof("Run history is busy with %s, waiting to save %s", busy, holder)

		delay := l.RetryDelay
		if delay <= 0 {
			delay = defaultRetryDelay
		}
		if _, err := l.lock.TryLockContext(ctx, delay); err != nil {
			return fmt.Errorf("waiting for run history to save %s: %w", holder, err)
		}
	}

	if err := os.WriteFile(l.path, []byte(holder+"\n"), 0o644); err != nil {
		OrNop(l.Log).Debugf("Could not record lock holder in %s: %v", l.path, err)
	}
	return nil
}

// Release clears the holder and drops the lock. Releasing a lock that is
// not held is a no-op.
func (l *HistoryLock) Release() error {
	if !l.lock.Locked() {
		return nil
	}
	if err := os.Truncate(l.path, 0); err != nil && !os.IsNotExist(err) {
		OrNop(l.Log).Debugf("Could not clear lock holder in %s: %v", l.path, err)
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("releasing run history lock %s: %w", l.path, err)
	}
	return nil
}

// GetAbsDBPath resolves the run history path, defaulting to
// ~/.config/worklogs/worklogs.sqlite.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "worklogs", "worklogs.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
