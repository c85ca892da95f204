// Package scheduler runs the background jobs: the RMC time-limit check, the
// morning test reminders, the evening missed-test check and notification
// retries. Jobs coordinate across instances with redis SET NX leases so each
// tick runs exactly once cluster-wide.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/omi1811/concretethings-sub000/internal/config"
	"github.com/omi1811/concretethings-sub000/internal/notify"
	"github.com/omi1811/concretethings-sub000/internal/qsm/service"
)

// Scheduler owns the job loops.
type Scheduler struct {
	rdb      *redis.Client
	services *service.Services
	notifier *notify.Dispatcher
	cfg      config.JobsConfig
	logger   *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(rdb *redis.Client, services *service.Services, notifier *notify.Dispatcher, cfg config.JobsConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		rdb:      rdb,
		services: services,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start launches the job loops. No-op when jobs are disabled.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled")
		return
	}

	interval := s.cfg.VehicleCheckInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	s.loop("vehicle-check", interval, func(ctx context.Context, now time.Time) {
		if !s.acquireLease(ctx, fmt.Sprintf("vehicle-check:%d", now.Unix()/int64(interval.Seconds())), interval) {
			return
		}
		n, err := s.services.Vehicle.RunTimeLimitCheckAll(ctx, now)
		if err != nil {
			s.logger.Warn("vehicle-check failed", zap.Error(err))
			return
		}
		if n > 0 {
			s.logger.Info("vehicle-check complete", zap.Int("warned", n))
		}
	})

	// The reminder sweep runs every minute because each project fires at its
	// own reminder_time in its own timezone; the per-minute lease keeps the
	// sweep to one instance, and the 23h guard on the due query makes repeat
	// sweeps after a project's window opens no-ops.
	s.loop("test-reminders", time.Minute, func(ctx context.Context, now time.Time) {
		if !s.acquireLease(ctx, fmt.Sprintf("test-reminders:%d", now.Unix()/60), time.Minute) {
			return
		}
		n, err := s.services.Reminder.RunDailyReminders(ctx, now)
		if err != nil {
			s.logger.Warn("test-reminders failed", zap.Error(err))
			return
		}
		if n > 0 {
			s.logger.Info("test-reminders complete", zap.Int("fired", n))
		}
	})

	// The missed-test digest is a once-a-day job; the day-keyed lease makes
	// the first instance past the hour the only one that fires.
	s.loop("missed-test-check", time.Minute, func(ctx context.Context, now time.Time) {
		if now.Hour() < s.cfg.MissedCheckHour {
			return
		}
		if !s.acquireLease(ctx, "missed-test-check:"+now.Format("2006-01-02"), 24*time.Hour) {
			return
		}
		n, err := s.services.Reminder.RunMissedTestCheck(ctx, now)
		if err != nil {
			s.logger.Warn("missed-test-check failed", zap.Error(err))
			return
		}
		s.logger.Info("missed-test-check complete", zap.Int("warnings", n))
	})

	s.loop("notify-retry", 5*time.Minute, func(ctx context.Context, now time.Time) {
		if s.notifier == nil {
			return
		}
		if !s.acquireLease(ctx, fmt.Sprintf("notify-retry:%d", now.Unix()/300), 5*time.Minute) {
			return
		}
		s.notifier.RetryFailed(ctx, 100)
	})
}

// Stop signals all loops and waits for in-flight iterations.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) loop(name string, interval time.Duration, run func(ctx context.Context, now time.Time)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case now := <-ticker.C:
				s.iterate(name, now, run)
			}
		}
	}()
}

func (s *Scheduler) iterate(name string, now time.Time, run func(ctx context.Context, now time.Time)) {
	timeout := s.cfg.IterationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()
	run(ctx, now)
}

// acquireLease claims a cluster-wide lease for one tick. A redis outage
// degrades to running on every instance rather than not at all.
func (s *Scheduler) acquireLease(ctx context.Context, key string, ttl time.Duration) bool {
	if s.rdb == nil {
		return true
	}
	ok, err := s.rdb.SetNX(ctx, "qsm:job:"+key, "1", ttl).Result()
	if err != nil {
		s.logger.Warn("lease acquire failed, running anyway", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

// RunVehicleCheck triggers the time-limit supervisor once, bypassing leases.
func (s *Scheduler) RunVehicleCheck(ctx context.Context) (int, error) {
	return s.services.Vehicle.RunTimeLimitCheckAll(ctx, time.Now())
}

// RunTestReminders triggers the reminder job once, bypassing leases.
func (s *Scheduler) RunTestReminders(ctx context.Context) (int, error) {
	return s.services.Reminder.RunDailyReminders(ctx, time.Now())
}

// RunMissedTestCheck triggers the missed-test job once, bypassing leases.
func (s *Scheduler) RunMissedTestCheck(ctx context.Context) (int, error) {
	return s.services.Reminder.RunMissedTestCheck(ctx, time.Now())
}
