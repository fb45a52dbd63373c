package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	appbilling "github.com/ecoapi/backend/internal/application/billing"
)

// Reconciler runs one reconciliation sweep. Satisfied by the application
// layer's ReconcileService.
type Reconciler interface {
	RunMonthly(ctx context.Context, referenceDate time.Time) (*appbilling.BatchResult, error)
}

// OverageScheduler triggers the overage reconciliation sweep once a day at a
// configured UTC hour. The sweep itself is idempotent, so a deployment with
// several instances or an external cron hitting the batch endpoint in
// parallel only costs redundant reads, never double charges.
type OverageScheduler struct {
	reconciler Reconciler
	runHour    int
	runTimeout time.Duration
	interval   time.Duration
	logger     *zap.Logger

	mu         sync.Mutex
	isRunning  bool
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	lastRunDay string
	now        func() time.Time
}

// NewOverageScheduler creates a scheduler that fires daily at runHour UTC
func NewOverageScheduler(reconciler Reconciler, runHour int, runTimeout time.Duration, logger *zap.Logger) *OverageScheduler {
	if runHour < 0 || runHour > 23 {
		runHour = 2
	}
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	return &OverageScheduler{
		reconciler: reconciler,
		runHour:    runHour,
		runTimeout: runTimeout,
		interval:   time.Minute,
		logger:     logger,
		now:        time.Now,
	}
}

// Start begins the scheduling loop. Calling Start on a running scheduler is
// a no-op.
func (s *OverageScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Warn("overage scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	s.isRunning = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("overage scheduler started",
		zap.Int("run_hour_utc", s.runHour),
		zap.Duration("run_timeout", s.runTimeout),
	)
}

// Stop halts the scheduling loop and waits for an in-flight run to finish
func (s *OverageScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancelFunc
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("overage scheduler stopped")
}

func (s *OverageScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.due() {
				s.run(ctx)
			}
		}
	}
}

// due reports whether the daily run should fire now. At most one run per
// UTC day, at or after the configured hour.
func (s *OverageScheduler) due() bool {
	now := s.now().UTC()
	if now.Hour() != s.runHour {
		return false
	}

	day := now.Format("2006-01-02")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRunDay == day {
		return false
	}
	s.lastRunDay = day
	return true
}

func (s *OverageScheduler) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	started := s.now()
	result, err := s.reconciler.RunMonthly(runCtx, started.UTC())
	if err != nil {
		s.logger.Error("scheduled overage reconciliation failed",
			zap.Duration("elapsed", s.now().Sub(started)),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("scheduled overage reconciliation completed",
		zap.Int("processed", result.Processed),
		zap.Int("total", len(result.Charges)),
		zap.Duration("elapsed", s.now().Sub(started)),
	)
}
