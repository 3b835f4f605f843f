package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al-bashkir/oidc-tunnel-login/internal/autherr"
)

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(`{"stale":true}`), 0600))
	return path
}

func TestRunRemovesArtifacts(t *testing.T) {
	dir := t.TempDir()
	a := writeArtifact(t, dir, "discovery.json")
	b := writeArtifact(t, dir, "http_cache.bin")
	missing := filepath.Join(dir, "absent.bin")

	h := &Hygiene{Artifacts: []string{a, missing, b}, LockTimeout: time.Second}
	report := h.Run(context.Background())

	assert.Equal(t, []string{a, b}, report.Removed)
	assert.Empty(t, report.Warnings)
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
	assert.NoFileExists(t, a+".lock")
}

func TestRunNothingToDo(t *testing.T) {
	h := &Hygiene{Artifacts: []string{filepath.Join(t.TempDir(), "nope")}}
	report := h.Run(context.Background())

	assert.Empty(t, report.Removed)
	assert.Empty(t, report.Warnings)
}

func TestRunDeleteFailureIsWarning(t *testing.T) {
	dir := t.TempDir()

	// A non-empty directory cannot be removed with os.Remove, even as root.
	stubborn := filepath.Join(dir, "cache.d")
	require.NoError(t, os.Mkdir(stubborn, 0700))
	writeArtifact(t, stubborn, "entry")

	ok := writeArtifact(t, dir, "discovery.json")

	h := &Hygiene{Artifacts: []string{stubborn, ok}, LockTimeout: time.Second}
	report := h.Run(context.Background())

	require.Len(t, report.Warnings, 1)
	assert.True(t, autherr.Is(report.Warnings[0], autherr.KindCacheCleanupWarning))
	assert.Contains(t, autherr.HintOf(report.Warnings[0]), "rm -f "+stubborn)
	assert.Equal(t, []string{ok}, report.Removed, "later artifacts are still processed")
	assert.DirExists(t, stubborn)
}

func TestRunLockHeldIsWarning(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "discovery.json")

	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = holder.Unlock() })

	h := &Hygiene{Artifacts: []string{path}, LockTimeout: 100 * time.Millisecond}
	report := h.Run(context.Background())

	require.Len(t, report.Warnings, 1)
	assert.True(t, autherr.Is(report.Warnings[0], autherr.KindCacheCleanupWarning))
	assert.FileExists(t, path)
}

func TestWithLockPropagatesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")

	err := WithLock(context.Background(), path, time.Second, func() error {
		return os.ErrPermission
	})
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestWithLockKeepsLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	lockPath := path + ".lock"

	require.NoError(t, WithLock(context.Background(), path, time.Second, func() error { return nil }))
	assert.FileExists(t, lockPath)

	// A waiter that opened the lock file before release must share the inode
	// with anyone locking afterwards.
	waiter := flock.New(lockPath)
	locked, err := waiter.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	err = WithLock(context.Background(), path, 100*time.Millisecond, func() error {
		t.Fatal("fn ran while another holder had the lock")
		return nil
	})
	assert.Error(t, err)
	require.NoError(t, waiter.Unlock())

	require.NoError(t, WithLock(context.Background(), path, time.Second, func() error { return nil }))
	assert.FileExists(t, lockPath)
}

func TestLockTimeoutDefault(t *testing.T) {
	assert.Equal(t, DefaultLockTimeout, (&Hygiene{}).lockTimeout())
	assert.Equal(t, time.Second, (&Hygiene{LockTimeout: time.Second}).lockTimeout())
}
