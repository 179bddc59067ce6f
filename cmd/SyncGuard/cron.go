package main

import (
	"context"
	"fmt"
	"time"

	"SyncGuard/internal/conf"
	"SyncGuard/internal/service"
	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/robfig/cron/v3"
)

const (
	// 每天 05:00 同步当天数据（秒 分 时 日 月 周）
	defaultSchedule   = "0 0 5 * * *"
	defaultRunTimeout = 2 * time.Hour
	schedulerOperator = "scheduler"
)

var _ transport.Server = (*Scheduler)(nil)

// Scheduler runs the daily sync on a cron schedule.
// It is registered with kratos as a server so it starts and stops with the app.
type Scheduler struct {
	cron     *cron.Cron
	svc      *service.SyncService
	schedule string
	timeout  time.Duration
	logger   *log.Helper
	events   *pkglog.LogHelper
	location *time.Location
}

// NewScheduler creates the daily sync scheduler.
func NewScheduler(c *conf.Sync, svc *service.SyncService, logger log.Logger) (*Scheduler, error) {
	s := &Scheduler{
		svc:      svc,
		schedule: defaultSchedule,
		timeout:  defaultRunTimeout,
		logger:   log.NewHelper(logger),
		events:   pkglog.NewLogHelper(logger),
		location: svc.Location(),
	}
	if c != nil {
		if c.Schedule != "" {
			s.schedule = c.Schedule
		}
		if c.RunTimeout > 0 {
			s.timeout = c.RunTimeout
		}
	}

	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(s.location),
		// a run that overruns its slot must not overlap the next one
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", s.schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = pkglog.WithRequestContext(ctx, pkglog.GenerateRequestID(), schedulerOperator)

	s.events.Scheduler("Starting daily KPI sync", "timeout", s.timeout.String())

	reply, err := s.svc.Sync(ctx, "", nil)
	if err != nil {
		s.logger.Errorw("msg", "daily KPI sync failed", "error", err)
		return
	}
	if reply.Error != "" {
		s.logger.Warnw("msg", "daily KPI sync finished with errors", "date", reply.Date, "error", reply.Error)
		return
	}
	s.events.Scheduler("Daily KPI sync completed", "date", reply.Date)
}

// Start implements transport.Server.
func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	s.events.Scheduler("Sync scheduler started",
		"schedule", s.schedule,
		"timezone", s.location.String(),
	)
	return nil
}

// Stop implements transport.Server. It waits for a running sync to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.events.Scheduler("Sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the kratos helper to cron.Logger.
type cronLogger struct {
	h *log.Helper
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.h.Infow(append([]interface{}{"msg", msg}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.h.Errorw(append([]interface{}{"msg", msg, "error", err}, keysAndValues...)...)
}
