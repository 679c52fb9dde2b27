package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	instanceLockDirName   = ".claim.lock"
	instanceLockOwnerFile = "owner.json"

	// A lock directory without a readable owner is only trusted for this long;
	// after that the writer is assumed to have died between mkdir and write.
	ownerlessLockGrace = time.Minute
)

var ErrLocked = errors.New("config directory is locked")

// InstanceLock is the on-disk marker that a claim batch owns a config
// directory. Mutating commands take it too, so they cannot rewrite accounts
// or settings underneath a running batch.
type InstanceLock struct {
	lockDir   string
	reclaimed *LockOwner
}

type LockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func (o LockOwner) String() string {
	return fmt.Sprintf("pid=%d created_at=%s host=%s", o.PID, o.CreatedAt, o.Hostname)
}

// AcquireInstanceLock takes the lock for dir. A lock left behind by a process
// that no longer exists on this host is removed and taken over.
func AcquireInstanceLock(dir string) (InstanceLock, error) {
	target := strings.TrimSpace(dir)
	if target == "" {
		return InstanceLock{}, errors.New("config directory is required")
	}
	if err := Mkdir(target); err != nil {
		return InstanceLock{}, err
	}
	lockDir := filepath.Join(target, instanceLockDirName)

	var reclaimed *LockOwner
	for attempt := 0; ; attempt++ {
		err := os.Mkdir(lockDir, 0o700)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return InstanceLock{}, fmt.Errorf("acquire instance lock for %s: %w", target, err)
		}
		owner, ownerErr := readLockOwner(lockDir)
		if attempt > 0 || !lockIsStale(lockDir, owner, ownerErr) {
			if ownerErr == nil && owner.PID > 0 {
				return InstanceLock{}, fmt.Errorf("%w: %s (%s)", ErrLocked, target, owner)
			}
			return InstanceLock{}, fmt.Errorf("%w: %s", ErrLocked, target)
		}
		if err := discardLockDir(lockDir); err != nil {
			return InstanceLock{}, fmt.Errorf("reclaim stale instance lock for %s: %w", target, err)
		}
		if ownerErr == nil {
			reclaimed = &owner
		}
	}

	self := LockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, instanceLockOwnerFile), self); err != nil {
		_ = os.Remove(lockDir)
		return InstanceLock{}, fmt.Errorf("write instance lock owner for %s: %w", target, err)
	}
	return InstanceLock{lockDir: lockDir, reclaimed: reclaimed}, nil
}

// Reclaimed returns the owner of the stale lock this one replaced, if any.
func (l InstanceLock) Reclaimed() (LockOwner, bool) {
	if l.reclaimed == nil {
		return LockOwner{}, false
	}
	return *l.reclaimed, true
}

func (l InstanceLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, instanceLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release instance lock %s: %w", l.lockDir, err)
	}
	return nil
}

func readLockOwner(lockDir string) (LockOwner, error) {
	var owner LockOwner
	if err := ReadJSON(filepath.Join(lockDir, instanceLockOwnerFile), &owner); err != nil {
		return LockOwner{}, err
	}
	return owner, nil
}

// lockIsStale only judges owners on this host; a PID from another machine
// says nothing about local processes.
func lockIsStale(lockDir string, owner LockOwner, ownerErr error) bool {
	if ownerErr != nil || owner.PID <= 0 {
		info, err := os.Stat(lockDir)
		return err == nil && time.Since(info.ModTime()) > ownerlessLockGrace
	}
	if owner.Hostname != hostnameOrUnknown() {
		return false
	}
	return !processAlive(owner.PID)
}

// processAlive sends signal 0. EPERM still means the process exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH)
}

// discardLockDir renames before deleting; only one of several racing
// reclaimers wins the rename.
func discardLockDir(lockDir string) error {
	graveyard := lockDir + ".stale-" + uuid.NewString()
	if err := os.Rename(lockDir, graveyard); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.RemoveAll(graveyard)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
