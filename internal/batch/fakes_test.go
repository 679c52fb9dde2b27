package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"auto-claimer/internal/model"
)

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []model.JobState
	finished  int
	// finishedAfter is the number of snapshots seen when NotifyBatchFinished ran.
	finishedAfter int
	err           error
}

func (p *recordingPublisher) Publish(state model.JobState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, state)
	return p.err
}

func (p *recordingPublisher) NotifyBatchFinished() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished++
	p.finishedAfter = len(p.snapshots)
}

func (p *recordingPublisher) all() []model.JobState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.JobState(nil), p.snapshots...)
}

type fixedPort struct {
	calls atomic.Int64
	err   error
}

func (f *fixedPort) EnsureRunning(context.Context) (uint16, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return 9515, nil
}

// claimFunc adapts a function to Executor.
type claimFunc func(ctx context.Context, account model.Account, port uint16) bool

func (f claimFunc) PerformClaim(ctx context.Context, account model.Account, port uint16) bool {
	return f(ctx, account, port)
}

// exclusiveExecutor fails the test run if two workers ever hold the same
// account at once or an account is claimed twice.
type exclusiveExecutor struct {
	mu       sync.Mutex
	inFlight map[string]bool
	claims   map[string]int
	overlap  bool
	delay    func(email string) time.Duration
	outcome  func(email string) bool
}

func newExclusiveExecutor() *exclusiveExecutor {
	return &exclusiveExecutor{
		inFlight: map[string]bool{},
		claims:   map[string]int{},
		delay:    func(string) time.Duration { return time.Millisecond },
		outcome:  func(string) bool { return true },
	}
}

func (e *exclusiveExecutor) PerformClaim(_ context.Context, account model.Account, _ uint16) bool {
	e.mu.Lock()
	if e.inFlight[account.Email] {
		e.overlap = true
	}
	e.inFlight[account.Email] = true
	e.claims[account.Email]++
	e.mu.Unlock()

	time.Sleep(e.delay(account.Email))

	e.mu.Lock()
	delete(e.inFlight, account.Email)
	e.mu.Unlock()
	return e.outcome(account.Email)
}

// scriptedClock returns the given instants in order and then repeats the last.
type scriptedClock struct {
	mu    sync.Mutex
	times []time.Time
	next  int
}

func (c *scriptedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[min(c.next, len(c.times)-1)]
	c.next++
	return t
}

func makeAccounts(n int) []model.Account {
	out := make([]model.Account, n)
	for i := range out {
		out[i] = model.Account{Email: fmt.Sprintf("user-%d@example.com", i), Password: "pw"}
	}
	return out
}
