// Package scheduler runs the GitHub sync on a repeating interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BaCuaBan77/Portfolio-generator/internal/refresh"
)

// DefaultIntervalDays is used when no positive interval is configured.
const DefaultIntervalDays = 7

// Trigger names recorded with each run.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Syncer runs one sync cycle.
type Syncer interface {
	Sync(ctx context.Context, trigger string) (*refresh.Result, error)
}

// IntervalFromDays converts a whole-day interval to a duration.
func IntervalFromDays(days int) time.Duration {
	if days <= 0 {
		days = DefaultIntervalDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// Status is a snapshot of the scheduler for status endpoints.
type Status struct {
	Active         bool            `json:"active"`
	Running        bool            `json:"running"`
	Interval       string          `json:"interval"`
	NextRun        *time.Time      `json:"nextRun,omitempty"`
	LastTrigger    string          `json:"lastTrigger,omitempty"`
	LastFinishedAt *time.Time      `json:"lastFinishedAt,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
	LastResult     *refresh.Result `json:"lastResult,omitempty"`
}

// Scheduler triggers syncs immediately on Start and then every interval.
// At most one sync runs at a time; triggers that arrive while one is running
// are dropped.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu             sync.Mutex
	cron           *cron.Cron
	ctx            context.Context
	lastTrigger    string
	lastFinishedAt time.Time
	lastErr        error
	lastResult     *refresh.Result
}

// New returns a stopped Scheduler.
func New(syncer Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = IntervalFromDays(DefaultIntervalDays)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Start runs one sync in the background and arms the repeating timer. Syncs
// run with ctx. Calling Start on a started scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return
	}
	s.ctx = ctx
	logger := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger)))
	c.Schedule(cron.Every(s.interval), cron.FuncJob(s.tick))
	c.Start()
	s.cron = c
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.interval.String())
	s.TriggerNow(TriggerStartup)
}

// Stop cancels the timer and waits for any sync in flight. It is safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		s.logger.Info("scheduler stopped")
	}
	s.wg.Wait()
}

// TriggerNow starts a sync in the background. It returns false, and does
// nothing, if a sync is already running.
func (s *Scheduler) TriggerNow(trigger string) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("sync already in progress, skipping", "trigger", trigger)
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(trigger)
	}()
	return true
}

// Running reports whether a sync is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastResult returns the result of the last successful sync, if any.
func (s *Scheduler) LastResult() *refresh.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Active:      s.cron != nil,
		Running:     s.running.Load(),
		Interval:    s.interval.String(),
		LastTrigger: s.lastTrigger,
		LastResult:  s.lastResult,
	}
	if s.cron != nil {
		if entries := s.cron.Entries(); len(entries) > 0 && !entries[0].Next.IsZero() {
			next := entries[0].Next
			st.NextRun = &next
		}
	}
	if !s.lastFinishedAt.IsZero() {
		t := s.lastFinishedAt
		st.LastFinishedAt = &t
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// tick is the cron job. It runs synchronously in cron's goroutine.
func (s *Scheduler) tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("sync already in progress, skipping scheduled run")
		return
	}
	s.execute(TriggerSchedule)
}

// execute runs one sync. The caller must have set the running flag.
func (s *Scheduler) execute(trigger string) {
	defer s.running.Store(false)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	res, err := s.safeSync(ctx, trigger)

	s.mu.Lock()
	s.lastTrigger = trigger
	s.lastFinishedAt = time.Now().UTC()
	s.lastErr = err
	if err == nil {
		s.lastResult = res
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled sync failed", "trigger", trigger, "error", err)
	}
}

func (s *Scheduler) safeSync(ctx context.Context, trigger string) (res *refresh.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()
	return s.syncer.Sync(ctx, trigger)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
