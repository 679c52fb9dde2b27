package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"auto-claimer/internal/model"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidConcurrency = errors.New("concurrency must be at least 1")

// Executor performs the scripted claim for one account against the driver
// listening on port. Failures are reported as false, never as a fault.
type Executor interface {
	PerformClaim(ctx context.Context, account model.Account, port uint16) bool
}

type PortSource interface {
	EnsureRunning(ctx context.Context) (uint16, error)
}

// Publisher receives a snapshot after every state change and one terminal
// notification once the batch is over.
type Publisher interface {
	Publish(state model.JobState) error
	NotifyBatchFinished()
}

type Scheduler struct {
	Ports     PortSource
	Executor  Executor
	Publisher Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// RunBatch claims every account using concurrency workers and blocks until
// all of them have exited. Account i always reports into status slot i.
// The batch runs to completion even when the driver cannot be started; the
// first such error is returned after the final snapshot was published.
func (s *Scheduler) RunBatch(ctx context.Context, accounts []model.Account, concurrency int) (model.JobState, error) {
	if concurrency < 1 {
		return model.JobState{}, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, concurrency)
	}
	pub := s.Publisher
	if pub == nil {
		pub = nopPublisher{}
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("batch_id", uuid.NewString())
	logger.InfoContext(ctx, "batch started", "accounts", len(accounts), "concurrency", concurrency)
	started := time.Now()

	agg := newAggregator(len(accounts), concurrency, pub, now, logger)
	agg.publish(ctx)

	events := make(chan event, concurrency)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		agg.run(ctx, events)
	}()

	var cursor atomic.Int64
	var g errgroup.Group
	for w := 1; w <= concurrency; w++ {
		wl := logger.With("worker", w)
		g.Go(func() error {
			return s.work(ctx, wl, accounts, &cursor, events)
		})
	}
	err := g.Wait()
	close(events)
	<-aggDone

	final := agg.finish(ctx)
	pub.NotifyBatchFinished()

	tally := final.Tally()
	logger.InfoContext(ctx, "batch finished",
		"succeeded", tally.Succeeded,
		"failed", tally.Failed,
		"took", time.Since(started).Round(time.Millisecond))
	return final, err
}

func (s *Scheduler) work(ctx context.Context, logger *slog.Logger, accounts []model.Account, cursor *atomic.Int64, events chan<- event) error {
	var firstErr error
	for {
		i := int(cursor.Add(1) - 1)
		if i >= len(accounts) {
			return firstErr
		}
		events <- event{index: i, kind: eventStarted}

		ok, err := s.claim(ctx, logger, accounts[i])
		if err != nil {
			logger.ErrorContext(ctx, "driver unavailable, marking account failed", "index", i, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("account %d: %w", i, err)
			}
		}
		events <- event{index: i, kind: eventFinished, ok: ok}
	}
}

func (s *Scheduler) claim(ctx context.Context, logger *slog.Logger, account model.Account) (bool, error) {
	port, err := s.Ports.EnsureRunning(ctx)
	if err != nil {
		return false, err
	}
	return s.perform(ctx, logger, account, port), nil
}

func (s *Scheduler) perform(ctx context.Context, logger *slog.Logger, account model.Account, port uint16) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "claim executor panicked", "account", account.Email, "panic", r)
			ok = false
		}
	}()
	ok = s.Executor.PerformClaim(ctx, account, port)
	logger.DebugContext(ctx, "claim finished", "account", account.Email, "ok", ok)
	return ok
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.JobState) error { return nil }
func (nopPublisher) NotifyBatchFinished()         {}
