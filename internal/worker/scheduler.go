package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultOverdueSchedule runs the sweep every morning.
const DefaultOverdueSchedule = "0 6 * * *"

// Scheduler runs the overdue sweep on a cron schedule. A run still going
// when the next one is due is skipped.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewScheduler registers sweeper under the five-field cron spec.
func NewScheduler(spec string, sweeper *OverdueSweeper, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if spec == "" {
		spec = DefaultOverdueSchedule
	}
	cl := cronLogger{logger.Named("cron").Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()
		if _, err := sweeper.Sweep(ctx); err != nil {
			logger.Error("overdue sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling overdue sweep %q: %w", spec, err)
	}
	logger.Info("overdue sweep scheduled", zap.String("schedule", spec))
	return &Scheduler{cron: c, log: logger}, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("overdue sweep still running at shutdown")
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
