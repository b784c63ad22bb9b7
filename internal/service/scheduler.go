package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/runstate"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval      = 10 * time.Minute
	defaultReconcileInterval = time.Hour
	defaultFallbackSleep     = 10 * time.Minute
	dayLayout                = "2006-01-02"
)

// PassRunner executes one full campaign pass.
type PassRunner interface {
	Execute(ctx context.Context) (runstate.PassSummary, error)
}

// Locker guards a pass across processes. Extend pushes the expiry out by
// TTL and fails with domain.ErrLockLost once another owner holds the key.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
	TTL() time.Duration
}

// TimeWindow is a daily [Start, End) interval in minutes after midnight.
// A window whose end is before its start wraps past midnight.
type TimeWindow struct {
	Enabled bool
	Start   int
	End     int
}

// ParseTimeWindow builds an enabled window from two HH:MM values.
func ParseTimeWindow(start string, end string) (TimeWindow, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("invalid window start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("invalid window end: %w", err)
	}
	if startMin == endMin {
		return TimeWindow{}, fmt.Errorf("%w: window start and end are equal", domain.ErrValidation)
	}
	return TimeWindow{Enabled: true, Start: startMin, End: endMin}, nil
}

func (w TimeWindow) Contains(t time.Time) bool {
	if !w.Enabled {
		return true
	}
	minute := t.Hour()*60 + t.Minute()
	if w.Start < w.End {
		return minute >= w.Start && minute < w.End
	}
	return minute >= w.Start || minute < w.End
}

func parseClock(raw string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q is not HH:MM", domain.ErrValidation, raw)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: bad hour in %q", domain.ErrValidation, raw)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: bad minute in %q", domain.ErrValidation, raw)
	}
	return hour*60 + minute, nil
}

type SchedulerConfig struct {
	PollInterval      time.Duration
	ReconcileInterval time.Duration
	FallbackSleep     time.Duration
	OncePerDay        bool
	Window            TimeWindow
	Location          *time.Location
}

// Scheduler starts a pass whenever the gate opens and runs opt-out
// reconciliation on its own timer while no pass is running.
type Scheduler struct {
	runner     PassRunner
	reconciler Syncer
	state      *runstate.RunState
	lock       Locker
	cfg        SchedulerConfig
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	newRunID   func() string
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewScheduler(
	runner PassRunner,
	state *runstate.RunState,
	cfg SchedulerConfig,
	logger *zap.Logger,
) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("pass runner is required")
	}
	if state == nil {
		state = runstate.New()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = defaultReconcileInterval
	}
	if cfg.FallbackSleep < 0 {
		cfg.FallbackSleep = defaultFallbackSleep
	}
	if cfg.Location == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load default timezone: %w", err)
		}
		cfg.Location = loc
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		runner:   runner,
		state:    state,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
		sleep:    sleepContext,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *Scheduler) SetReconciler(reconciler Syncer) {
	if s == nil {
		return
	}
	s.reconciler = reconciler
}

func (s *Scheduler) SetLock(lock Locker) {
	if s == nil {
		return
	}
	s.lock = lock
}

// Start reconciles once, then runs the poll loop and the reconcile loop
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.logger.Info("scheduler started",
		zap.Duration("pollInterval", s.cfg.PollInterval),
		zap.Duration("reconcileInterval", s.cfg.ReconcileInterval),
		zap.Bool("timeWindow", s.cfg.Window.Enabled),
		zap.Bool("oncePerDay", s.cfg.OncePerDay),
		zap.String("timezone", s.cfg.Location.String()),
	)

	if s.reconciler != nil {
		s.reconcileOnce(ctx)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.pollLoop(groupCtx)
	})
	if s.reconciler != nil {
		g.Go(func() error {
			return s.reconcileLoop(groupCtx)
		})
	}
	return g.Wait()
}

func (s *Scheduler) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("scheduler poll failed", zap.Error(err))
			if err := s.sleep(ctx, s.cfg.FallbackSleep); err != nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) reconcileLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.reconcileOnce(ctx)
		}
	}
}

// keepLock renews the run lock every third of its TTL until the returned
// stop func is called. Losing the lock cancels the pass, which then ends at
// the next batch boundary.
func (s *Scheduler) keepLock(ctx context.Context, stopPass context.CancelFunc, logger *zap.Logger) func() {
	every := s.lock.TTL() / 3
	if every <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			err := s.lock.Extend(context.WithoutCancel(ctx))
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrLockLost):
				logger.Error("run lock lost, stopping pass at next batch boundary")
				stopPass()
				return
			default:
				logger.Warn("failed to extend run lock", zap.Error(err))
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Scheduler) reconcileOnce(ctx context.Context) {
	if !s.state.TryBeginReconcile() {
		s.logger.Debug("pass in progress, timed reconcile skipped")
		return
	}
	defer s.state.FinishReconcile()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reconcile panicked", zap.Any("panic", r))
		}
	}()

	runCtx := observability.WithRunID(ctx, s.newRunID())
	if _, err := s.reconciler.Sync(runCtx); err != nil && ctx.Err() == nil {
		observability.WithContextLogger(s.logger, runCtx).Error("timed reconcile failed", zap.Error(err))
	}
}

// poll evaluates the gate once and, when it opens, runs a pass to
// completion. Panics inside the pass come back as errors.
func (s *Scheduler) poll(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("campaign pass panicked: %v", r)
		}
	}()

	now := s.now().In(s.cfg.Location)
	today := now.Format(dayLayout)

	if s.state.InProgress() {
		s.logger.Debug("pass already running, poll skipped")
		return nil
	}
	if !s.cfg.Window.Contains(now) {
		s.logger.Debug("outside send window", zap.String("localTime", now.Format("15:04")))
		return nil
	}
	if (s.cfg.OncePerDay || s.cfg.Window.Enabled) && s.state.RanOn(today) {
		s.logger.Debug("pass already completed today", zap.String("day", today))
		return nil
	}

	runID := s.newRunID()
	if !s.state.TryBegin(runID) {
		s.logger.Debug("scheduler busy, poll skipped")
		return nil
	}
	var summary *runstate.PassSummary
	s.metrics.SetPassInProgress(true)
	defer func() {
		s.state.Finish(summary)
		s.metrics.SetPassInProgress(false)
	}()

	runCtx, stopPass := context.WithCancel(observability.WithRunID(ctx, runID))
	defer stopPass()
	logger := observability.WithContextLogger(s.logger, runCtx)

	if s.lock != nil {
		acquired, err := s.lock.Acquire(runCtx)
		if err != nil {
			return fmt.Errorf("failed to acquire run lock: %w", err)
		}
		if !acquired {
			logger.Info("run lock held by another instance, poll skipped")
			return nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(runCtx)); err != nil {
				logger.Warn("failed to release run lock", zap.Error(err))
			}
		}()
		defer s.keepLock(runCtx, stopPass, logger)()
	}

	logger.Info("campaign pass starting", zap.String("day", today))
	result, err := s.runner.Execute(runCtx)
	if err != nil {
		return fmt.Errorf("campaign pass failed: %w", err)
	}
	summary = &result
	if !result.Interrupted {
		s.state.MarkRunDate(today)
	}
	return nil
}
