package batch

import (
	"context"
	"log/slog"
	"time"

	"auto-claimer/internal/model"
)

type eventKind int

const (
	eventStarted eventKind = iota
	eventFinished
)

type event struct {
	index int
	kind  eventKind
	ok    bool
}

// aggregator is the only owner of the batch JobState. Workers report to it
// over a channel; it applies each event and publishes a full snapshot.
type aggregator struct {
	state      model.JobState
	lastFinish time.Time
	now        func() time.Time
	pub        Publisher
	logger     *slog.Logger
}

func newAggregator(total, concurrency int, pub Publisher, now func() time.Time, logger *slog.Logger) *aggregator {
	return &aggregator{
		state:      model.NewJobState(total, concurrency),
		lastFinish: now(),
		now:        now,
		pub:        pub,
		logger:     logger,
	}
}

func (a *aggregator) run(ctx context.Context, events <-chan event) {
	for ev := range events {
		a.apply(ctx, ev)
	}
}

func (a *aggregator) apply(ctx context.Context, ev event) {
	switch ev.kind {
	case eventStarted:
		if err := model.TransitionStatus(a.state.Statuses, ev.index, model.StatusRunning); err != nil {
			a.logger.ErrorContext(ctx, "dropping start event", "index", ev.index, "error", err)
			return
		}
	case eventFinished:
		to := model.StatusFailed
		if ev.ok {
			to = model.StatusSucceeded
		}
		if err := model.TransitionStatus(a.state.Statuses, ev.index, to); err != nil {
			a.logger.ErrorContext(ctx, "dropping finish event", "index", ev.index, "error", err)
			return
		}
		a.state.Remaining--
		eta := a.estimate()
		a.state.ETASeconds = &eta
	}
	a.publish(ctx)
}

// estimate assumes every remaining account takes as long as the gap between
// the last two finishes.
func (a *aggregator) estimate() uint64 {
	now := a.now()
	elapsed := max(now.Sub(a.lastFinish), 0)
	a.lastFinish = now
	return uint64(elapsed/time.Second) * uint64(a.state.Remaining)
}

func (a *aggregator) publish(ctx context.Context) {
	if err := a.pub.Publish(a.state.Clone()); err != nil {
		a.logger.WarnContext(ctx, "publishing job state failed", "error", err)
	}
}

func (a *aggregator) finish(ctx context.Context) model.JobState {
	a.state.Running = false
	a.publish(ctx)
	return a.state.Clone()
}
