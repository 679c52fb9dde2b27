package store

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireInstanceLock_BlocksConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireInstanceLock(dir)
	require.NoError(t, err)
	defer func() {
		_ = lock.Release()
	}()

	_, err = AcquireInstanceLock(dir)
	require.ErrorIs(t, err, ErrLocked)
	require.Contains(t, err.Error(), "pid=")

	require.NoError(t, lock.Release())

	lock2, err := AcquireInstanceLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestAcquireInstanceLock_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "config")

	lock, err := AcquireInstanceLock(dir)
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(dir, instanceLockDirName))
	require.NoError(t, lock.Release())
	require.NoDirExists(t, filepath.Join(dir, instanceLockDirName))
}

func TestAcquireInstanceLock_RequiresDir(t *testing.T) {
	_, err := AcquireInstanceLock("  ")
	require.Error(t, err)
}

func TestInstanceLockZeroValueRelease(t *testing.T) {
	require.NoError(t, InstanceLock{}.Release())
}

func writeLockOwner(t *testing.T, dir string, owner LockOwner) string {
	t.Helper()
	lockDir := filepath.Join(dir, instanceLockDirName)
	require.NoError(t, os.MkdirAll(lockDir, 0o700))
	require.NoError(t, WriteJSON(filepath.Join(lockDir, instanceLockOwnerFile), owner))
	return lockDir
}

func exitedPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	return cmd.ProcessState.Pid()
}

func TestAcquireInstanceLock_ReclaimsDeadOwner(t *testing.T) {
	dir := t.TempDir()
	dead := LockOwner{PID: exitedPID(t), CreatedAt: "2026-01-01T00:00:00Z", Hostname: hostnameOrUnknown()}
	writeLockOwner(t, dir, dead)

	lock, err := AcquireInstanceLock(dir)
	require.NoError(t, err)
	previous, ok := lock.Reclaimed()
	require.True(t, ok)
	require.Equal(t, dead, previous)

	owner, err := readLockOwner(filepath.Join(dir, instanceLockDirName))
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), owner.PID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, lock.Release())
	require.NoDirExists(t, filepath.Join(dir, instanceLockDirName))
}

func TestAcquireInstanceLock_KeepsLiveOwner(t *testing.T) {
	dir := t.TempDir()
	writeLockOwner(t, dir, LockOwner{PID: os.Getpid(), CreatedAt: "2026-01-01T00:00:00Z", Hostname: hostnameOrUnknown()})

	_, err := AcquireInstanceLock(dir)
	require.ErrorIs(t, err, ErrLocked)
}

func TestAcquireInstanceLock_KeepsOwnerFromOtherHost(t *testing.T) {
	dir := t.TempDir()
	writeLockOwner(t, dir, LockOwner{PID: exitedPID(t), CreatedAt: "2026-01-01T00:00:00Z", Hostname: "other-" + hostnameOrUnknown()})

	_, err := AcquireInstanceLock(dir)
	require.ErrorIs(t, err, ErrLocked)
	require.Contains(t, err.Error(), "host=other-")
}

func TestAcquireInstanceLock_OwnerlessLockExpires(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, instanceLockDirName)
	require.NoError(t, os.Mkdir(lockDir, 0o700))

	_, err := AcquireInstanceLock(dir)
	require.ErrorIs(t, err, ErrLocked)

	old := time.Now().Add(-2 * ownerlessLockGrace)
	require.NoError(t, os.Chtimes(lockDir, old, old))

	lock, err := AcquireInstanceLock(dir)
	require.NoError(t, err)
	_, ok := lock.Reclaimed()
	require.False(t, ok)
	require.NoError(t, lock.Release())
}
