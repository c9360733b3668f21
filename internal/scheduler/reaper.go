package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the idle-session sweep every five minutes.
const DefaultSweepSchedule = "@every 5m"

// Sweeper expires idle sessions. Satisfied by session.Manager.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) ([]string, error)
}

// Reaper runs a Sweeper on a cron schedule.
type Reaper struct {
	sweeper  Sweeper
	spec     string
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time

	running atomic.Bool // a sweep is in flight (dedup)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewParser accepts standard five-field expressions and descriptors such as "@every 1m".
func NewParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// NewReaper parses spec ("" = DefaultSweepSchedule) and returns a stopped Reaper.
func NewReaper(s Sweeper, spec string, logger *slog.Logger) (*Reaper, error) {
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	schedule, err := NewParser().Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		sweeper:  s,
		spec:     spec,
		schedule: schedule,
		logger:   logger.With(slog.String("component", "reaper")),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Spec returns the schedule expression.
func (r *Reaper) Spec() string { return r.spec }

// Next returns the first sweep time after from.
func (r *Reaper) Next(from time.Time) time.Time {
	return r.schedule.Next(from)
}

// Start launches the background sweep loop.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return fmt.Errorf("reaper already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(loopCtx)
	r.logger.Info("reaper started", slog.String("schedule", r.spec))
	return nil
}

func (r *Reaper) loop(ctx context.Context) {
	defer close(r.done)

	for {
		now := r.now()
		timer := time.NewTimer(r.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			_, _ = r.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps immediately. It returns (nil, nil) when a sweep is already running.
func (r *Reaper) RunOnce(ctx context.Context) ([]string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, nil
	}
	defer r.running.Store(false)

	expired, err := r.sweeper.Sweep(ctx, r.now())
	if err != nil {
		r.logger.ErrorContext(ctx, "session sweep failed", slog.String("error", err.Error()))
		return expired, err
	}
	if len(expired) > 0 {
		r.logger.InfoContext(ctx, "expired idle sessions", slog.Int("count", len(expired)))
	}
	return expired, nil
}

// Stop gracefully shuts down the reaper.
func (r *Reaper) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return nil
	}

	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil

	r.logger.Info("reaper stopped")
	return nil
}
