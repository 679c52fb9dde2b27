// Package app holds the application state shared by every command: the
// stored accounts and settings, the running guard and the last published
// job state.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"auto-claimer/internal/batch"
	"auto-claimer/internal/model"
	"auto-claimer/internal/store"

	"github.com/samber/lo"
)

var ErrBatchRunning = errors.New("a claim batch is already running")

// Result is delivered once per started batch.
type Result struct {
	State model.JobState
	Err   error
}

type App struct {
	store    *store.Store
	ports    batch.PortSource
	executor batch.Executor
	logger   *slog.Logger
	now      func() time.Time

	running atomic.Bool

	mu   sync.Mutex
	last model.JobState
}

func New(st *store.Store, ports batch.PortSource, executor batch.Executor, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		store:    st,
		ports:    ports,
		executor: executor,
		logger:   logger,
		now:      time.Now,
	}
}

func (a *App) Running() bool {
	return a.running.Load()
}

func (a *App) Accounts() []model.Account {
	return a.store.LoadAccounts()
}

// SetAccounts replaces the stored account list.
func (a *App) SetAccounts(accounts []model.Account) error {
	if a.running.Load() {
		return ErrBatchRunning
	}
	return a.store.SaveAccounts(accounts)
}

// AddAccount stores account, replacing an entry whose email matches
// case-insensitively.
func (a *App) AddAccount(account model.Account) error {
	normalized := model.NormalizeAccounts([]model.Account{account})
	if len(normalized) == 0 {
		return errors.New("account email is required")
	}
	account = normalized[0]
	existing := a.Accounts()
	kept := lo.Reject(existing, func(x model.Account, _ int) bool {
		return strings.EqualFold(x.Email, account.Email)
	})
	return a.SetAccounts(append(kept, account))
}

func (a *App) Settings() model.Settings {
	return a.store.LoadSettings()
}

func (a *App) SetSettings(settings model.Settings) error {
	if a.running.Load() {
		return ErrBatchRunning
	}
	if settings.Concurrency < 1 {
		return fmt.Errorf("%w: got %d", batch.ErrInvalidConcurrency, settings.Concurrency)
	}
	return a.store.SaveSettings(settings)
}

// JobState returns the most recent snapshot of the current or last batch.
func (a *App) JobState() model.JobState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last.Clone()
}

// StartClaim runs one batch over the stored accounts in its own goroutine.
// A concurrency of zero uses the stored setting. The returned channel
// delivers exactly one Result and is then closed.
func (a *App) StartClaim(ctx context.Context, pub batch.Publisher, concurrency int) (<-chan Result, error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, ErrBatchRunning
	}
	if concurrency == 0 {
		concurrency = a.Settings().Concurrency
	}
	if concurrency < 1 {
		a.running.Store(false)
		return nil, fmt.Errorf("%w: got %d", batch.ErrInvalidConcurrency, concurrency)
	}
	accounts := a.Accounts()

	sched := &batch.Scheduler{
		Ports:     a.ports,
		Executor:  a.executor,
		Publisher: &recordingPublisher{app: a, next: pub},
		Logger:    a.logger,
		Now:       a.now,
	}

	results := make(chan Result, 1)
	go func() {
		defer close(results)
		state, err := sched.RunBatch(ctx, accounts, concurrency)
		a.running.Store(false)
		results <- Result{State: state, Err: err}
	}()
	return results, nil
}

func (a *App) record(state model.JobState) {
	a.mu.Lock()
	a.last = state.Clone()
	a.mu.Unlock()
}

type recordingPublisher struct {
	app  *App
	next batch.Publisher
}

func (p *recordingPublisher) Publish(state model.JobState) error {
	p.app.record(state)
	if p.next == nil {
		return nil
	}
	return p.next.Publish(state)
}

func (p *recordingPublisher) NotifyBatchFinished() {
	if p.next != nil {
		p.next.NotifyBatchFinished()
	}
}
