package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phayes/freeport"
)

const DefaultReadyTimeout = 10 * time.Second

type Options struct {
	// Binary is looked up on PATH once, on the first EnsureRunning call.
	Binary       string
	Args         []string
	Probe        Prober
	ReadyTimeout time.Duration
	Stdout       io.Writer
	Stderr       io.Writer
	Logger       *slog.Logger
}

// Handle describes the driver process currently tracked by a Supervisor.
type Handle struct {
	Port uint16 `json:"port"`
	PID  int    `json:"pid"`
}

type process struct {
	port uint16
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Supervisor owns at most one live browser-driver process and hands its
// port to every caller.
type Supervisor struct {
	opts    Options
	resolve func() (string, error)
	logger  *slog.Logger

	mu       sync.Mutex
	proc     *process
	lastPort uint16
	spawns   atomic.Int64
}

func New(opts Options) *Supervisor {
	opts.Binary = binaryOrDefault(opts.Binary)
	if opts.Probe == nil {
		opts.Probe = NewHTTPProber()
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	binary := opts.Binary
	return &Supervisor{
		opts:   opts,
		logger: logger.With("component", "driver", "binary", binary),
		resolve: sync.OnceValues(func() (string, error) {
			path, err := exec.LookPath(binary)
			if err != nil {
				return "", fmt.Errorf("%w: %s: %v", ErrDriverNotFound, binary, err)
			}
			return path, nil
		}),
	}
}

// EnsureRunning guarantees that a driver process is alive and returns the
// port it listens on. A process found to have exited is replaced by a new
// one on a fresh port. The lock is held only while checking or spawning.
func (s *Supervisor) EnsureRunning(ctx context.Context) (uint16, error) {
	path, err := s.resolve()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		if !s.proc.exited() {
			return s.proc.port, nil
		}
		s.logger.WarnContext(ctx, "driver process exited, restarting",
			"port", s.proc.port, "exit", exitDescription(s.proc.cmd))
		s.proc = nil
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDriverSpawn, err)
	}

	p, err := s.spawn(ctx, path)
	if err != nil {
		return 0, err
	}
	s.proc = p
	s.lastPort = p.port
	return p.port, nil
}

// Shutdown kills the tracked process. It never blocks: when another caller
// holds the lock it does nothing, which keeps it safe on signal and panic
// paths.
func (s *Supervisor) Shutdown() {
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()
	if s.proc == nil {
		return
	}
	if s.proc.cmd.Process != nil {
		_ = s.proc.cmd.Process.Kill()
	}
	s.proc = nil
}

func (s *Supervisor) Current() (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil || s.proc.exited() {
		return Handle{}, false
	}
	return Handle{Port: s.proc.port, PID: s.proc.cmd.Process.Pid}, true
}

// Spawns reports how many driver processes have been started.
func (s *Supervisor) Spawns() int {
	return int(s.spawns.Load())
}

func (s *Supervisor) spawn(ctx context.Context, path string) (*process, error) {
	port, err := s.pickPort()
	if err != nil {
		return nil, fmt.Errorf("%w: pick port: %v", ErrDriverSpawn, err)
	}

	args := append([]string{fmt.Sprintf("--port=%d", port)}, s.opts.Args...)
	cmd := exec.Command(path, args...)
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrDriverSpawn, path, err)
	}
	s.spawns.Add(1)

	p := &process{port: port, cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()

	probeCtx, cancel := context.WithTimeout(ctx, s.opts.ReadyTimeout)
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-probeCtx.Done():
		}
	}()

	if err := s.opts.Probe.Ready(probeCtx, port); err != nil {
		// done closes before the watcher cancels probeCtx, so an early exit is
		// already visible here.
		if p.exited() {
			return nil, fmt.Errorf("%w: process exited before becoming ready (%s)", ErrDriverSpawn, exitDescription(cmd))
		}
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("%w: not ready on port %d: %v", ErrDriverSpawn, port, err)
	}

	s.logger.InfoContext(ctx, "driver process started", "port", port, "pid", cmd.Process.Pid)
	return p, nil
}

// pickPort avoids handing out the port of the process that just died, so a
// restart is always observable as a port change.
func (s *Supervisor) pickPort() (uint16, error) {
	var lastErr error
	for range 5 {
		port, err := freeport.GetFreePort()
		if err != nil {
			lastErr = err
			continue
		}
		if port <= 0 || port > 65535 {
			lastErr = fmt.Errorf("port %d out of range", port)
			continue
		}
		if uint16(port) == s.lastPort {
			lastErr = errors.New("picked previous port")
			continue
		}
		return uint16(port), nil
	}
	return 0, lastErr
}

func exitDescription(cmd *exec.Cmd) string {
	if cmd.ProcessState == nil {
		return "unknown"
	}
	return cmd.ProcessState.String()
}
