package driver

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	sup := New(Options{Probe: SkipProbe})
	t.Cleanup(sup.Shutdown)
	return sup
}

func TestEnsureRunningSpawnsOnceAndReusesProcess(t *testing.T) {
	installFakeDriver(t, sleepingDriver)
	sup := newTestSupervisor(t)

	port, err := sup.EnsureRunning(t.Context())
	require.NoError(t, err)
	require.NotZero(t, port)

	again, err := sup.EnsureRunning(t.Context())
	require.NoError(t, err)
	require.Equal(t, port, again)
	require.Equal(t, 1, sup.Spawns())

	h, ok := sup.Current()
	require.True(t, ok)
	require.Equal(t, port, h.Port)
	require.NotZero(t, h.PID)
}

func TestEnsureRunningConcurrentCallersShareOneProcess(t *testing.T) {
	installFakeDriver(t, sleepingDriver)
	sup := newTestSupervisor(t)

	const callers = 16
	ports := make([]uint16, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			ports[i], errs[i] = sup.EnsureRunning(t.Context())
		})
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		require.Equal(t, ports[0], ports[i])
	}
	require.Equal(t, 1, sup.Spawns())
}

func TestEnsureRunningRestartsExitedProcessOnNewPort(t *testing.T) {
	installFakeDriver(t, sleepingDriver)
	sup := newTestSupervisor(t)

	port, err := sup.EnsureRunning(t.Context())
	require.NoError(t, err)
	h, ok := sup.Current()
	require.True(t, ok)

	proc, err := os.FindProcess(h.PID)
	require.NoError(t, err)
	require.NoError(t, proc.Kill())
	require.Eventually(t, func() bool {
		_, alive := sup.Current()
		return !alive
	}, 5*time.Second, 20*time.Millisecond)

	restarted, err := sup.EnsureRunning(t.Context())
	require.NoError(t, err)
	require.NotEqual(t, port, restarted)
	require.Equal(t, 2, sup.Spawns())

	h2, ok := sup.Current()
	require.True(t, ok)
	require.NotEqual(t, h.PID, h2.PID)
}

func TestEnsureRunningMissingBinaryIsFatal(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	sup := New(Options{Binary: "definitely-not-a-driver", Probe: SkipProbe})

	_, err := sup.EnsureRunning(t.Context())
	require.ErrorIs(t, err, ErrDriverNotFound)

	_, err = sup.EnsureRunning(t.Context())
	require.ErrorIs(t, err, ErrDriverNotFound)
	require.Zero(t, sup.Spawns())
}

func TestEnsureRunningSpawnFailure(t *testing.T) {
	installFakeDriver(t, "#!/nonexistent/interpreter\n")
	sup := New(Options{Probe: SkipProbe})

	_, err := sup.EnsureRunning(t.Context())
	require.ErrorIs(t, err, ErrDriverSpawn)
	_, ok := sup.Current()
	require.False(t, ok)
}

func TestEnsureRunningReadinessTimeoutKillsProcess(t *testing.T) {
	installFakeDriver(t, sleepingDriver)
	notReady := ProbeFunc(func(ctx context.Context, _ uint16) error {
		<-ctx.Done()
		return ctx.Err()
	})
	sup := New(Options{Probe: notReady, ReadyTimeout: 100 * time.Millisecond})

	_, err := sup.EnsureRunning(t.Context())
	require.ErrorIs(t, err, ErrDriverSpawn)
	require.Equal(t, 1, sup.Spawns())
	_, ok := sup.Current()
	require.False(t, ok)
}

func TestEnsureRunningReportsEarlyExit(t *testing.T) {
	installFakeDriver(t, "#!/usr/bin/env bash\nexit 3\n")
	waitForCancel := ProbeFunc(func(ctx context.Context, _ uint16) error {
		<-ctx.Done()
		return ctx.Err()
	})
	sup := New(Options{Probe: waitForCancel, ReadyTimeout: 5 * time.Second})

	start := time.Now()
	_, err := sup.EnsureRunning(t.Context())
	require.ErrorIs(t, err, ErrDriverSpawn)
	require.Contains(t, err.Error(), "exited before becoming ready")
	require.Contains(t, err.Error(), "exit status 3")
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestEnsureRunningCancelledContextDoesNotRespawn(t *testing.T) {
	installFakeDriver(t, sleepingDriver)
	sup := newTestSupervisor(t)

	_, err := sup.EnsureRunning(t.Context())
	require.NoError(t, err)
	h, ok := sup.Current()
	require.True(t, ok)
	proc, err := os.FindProcess(h.PID)
	require.NoError(t, err)
	require.NoError(t, proc.Kill())
	require.Eventually(t, func() bool {
		_, alive := sup.Current()
		return !alive
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	for range 5 {
		_, err := sup.EnsureRunning(ctx)
		require.ErrorIs(t, err, ErrDriverSpawn)
		require.ErrorIs(t, err, context.Canceled)
	}
	require.Equal(t, 1, sup.Spawns())
}

func TestShutdownDoesNotBlockWhileLocked(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	sup := New(Options{Probe: SkipProbe})

	sup.mu.Lock()
	done := make(chan struct{})
	go func() {
		sup.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown blocked on a held lock")
	}
	sup.mu.Unlock()
}

func TestShutdownStopsProcess(t *testing.T) {
	installFakeDriver(t, sleepingDriver)
	sup := New(Options{Probe: SkipProbe})

	_, err := sup.EnsureRunning(t.Context())
	require.NoError(t, err)
	h, ok := sup.Current()
	require.True(t, ok)

	sup.Shutdown()
	sup.Shutdown()

	_, ok = sup.Current()
	require.False(t, ok)
	proc, err := os.FindProcess(h.PID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return errors.Is(proc.Signal(syscall.Signal(0)), os.ErrProcessDone)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCheckDependency(t *testing.T) {
	installFakeDriver(t, sleepingDriver)
	require.NoError(t, CheckDependency(""))

	report := DependencyStatus("")
	require.True(t, report.Found)
	require.Equal(t, DefaultBinary, report.Binary)

	require.ErrorIs(t, CheckDependency("no-such-driver-binary"), ErrDriverNotFound)
}
