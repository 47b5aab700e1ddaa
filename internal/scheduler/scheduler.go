package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/example/printdesk/internal/logger"
	"github.com/example/printdesk/internal/metrics"
)

// Locker grants a named lease so only one replica runs a job at a time.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

// Scheduler runs jobs on cron specs with a seconds field.
type Scheduler struct {
	cron   *cron.Cron
	locker Locker
}

// New builds a Scheduler. A nil locker runs every job unguarded.
func New(locker Locker) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		locker: locker,
	}
}

// AddJob registers fn under spec. Each run gets a context bounded by timeout.
func (s *Scheduler) AddJob(name, spec string, timeout time.Duration, fn JobFunc) error {
	if _, err := s.cron.AddFunc(spec, func() {
		s.Run(name, timeout, fn)
	}); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Run executes a single job run, honouring the lock.
func (s *Scheduler) Run(name string, timeout time.Duration, fn JobFunc) {
	m := metrics.GetMetrics()
	log := logger.L().With(zap.String("job", name))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "printdesk:job:"+name, timeout)
		if err != nil {
			m.JobRunsTotal.WithLabelValues(name, "skipped").Inc()
			log.Debug("job skipped, lock not acquired", zap.Error(err))
			return
		}
		defer release()
	}

	started := time.Now()
	if err := fn(ctx); err != nil {
		m.JobRunsTotal.WithLabelValues(name, "error").Inc()
		log.Error("job failed", zap.Error(err), zap.Duration("took", time.Since(started)))
		return
	}
	m.JobRunsTotal.WithLabelValues(name, "ok").Inc()
	log.Debug("job finished", zap.Duration("took", time.Since(started)))
}

// Start begins dispatching in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.L().Warn("scheduler stop timed out, jobs still running")
	}
}
