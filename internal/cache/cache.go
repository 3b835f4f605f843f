// Package cache removes stale client cache artifacts before a login attempt
// and serializes access to them with advisory file locks.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/al-bashkir/oidc-tunnel-login/internal/autherr"
)

// lockRetryInterval is how often a held lock is retried
const lockRetryInterval = 50 * time.Millisecond

// DefaultLockTimeout is used when Hygiene.LockTimeout is zero
const DefaultLockTimeout = 5 * time.Second

// Hygiene deletes cache artifacts that are known to break the login flow.
type Hygiene struct {
	// Artifacts are the files to remove
	Artifacts []string

	// LockTimeout bounds the wait for each artifact's lock
	LockTimeout time.Duration
}

// Report describes what a hygiene run did.
type Report struct {
	// Removed lists the artifacts that were deleted
	Removed []string

	// Warnings holds one CacheCleanupWarning per artifact that could not be removed
	Warnings []error
}

// Run removes every existing artifact. Failures never abort the run; they are
// logged and returned as warnings because the login works without the cache.
func (h *Hygiene) Run(ctx context.Context) *Report {
	report := &Report{}

	for _, path := range h.Artifacts {
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Cache artifact not present", "path", path)
			continue
		}

		err := WithLock(ctx, path, h.lockTimeout(), func() error {
			return os.Remove(path)
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			warning := autherr.New(autherr.KindCacheCleanupWarning,
				fmt.Sprintf("could not remove cache artifact %s", path), err).
				WithHint("remove it manually with 'rm -f %s' if login keeps failing", path)
			slog.Warn("Cache cleanup failed, continuing without it",
				"path", path,
				"error", err,
			)
			report.Warnings = append(report.Warnings, warning)
			continue
		}

		slog.Info("Removed stale cache artifact", "path", path)
		report.Removed = append(report.Removed, path)
	}

	return report
}

func (h *Hygiene) lockTimeout() time.Duration {
	if h.LockTimeout <= 0 {
		return DefaultLockTimeout
	}
	return h.LockTimeout
}

// WithLock runs fn while holding an exclusive lock on path+".lock".
func WithLock(ctx context.Context, path string, timeout time.Duration, fn func() error) error {
	lockPath := path + ".lock"

	// Create file lock
	fileLock := flock.New(lockPath)
	defer func() {
		// The lock file is left in place; removing it would let a second
		// process lock a fresh inode while a waiter still holds the old one.
		if !fileLock.Locked() {
			return
		}
		if err := fileLock.Unlock(); err != nil {
			slog.Warn("Failed to unlock file", "path", lockPath, "error", err)
		}
	}()

	// Create context with timeout
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Acquire lock with context
	locked, err := fileLock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("could not acquire lock for %s: timeout after %v", path, timeout)
	}

	return fn()
}
