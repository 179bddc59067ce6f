package service

import (
	"context"
	"net/http"
	"time"

	"SyncGuard/internal/biz"
	"SyncGuard/internal/conf"
	"SyncGuard/internal/data"
	"SyncGuard/internal/metrics"
	"SyncGuard/internal/model"
	pkglog "SyncGuard/pkg/log"
	"SyncGuard/pkg/probe"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultProbeTimeout = 5 * time.Second
	defaultTimezone     = "Asia/Tashkent"
	defaultAuditLimit   = 20
	maxAuditLimit       = 200
)

// ServiceStats is the breaker and limiter view of one (service, scope).
type ServiceStats struct {
	Service   string              `json:"service"`
	Scope     string              `json:"scope"`
	Circuit   *biz.CircuitStats   `json:"circuit_breaker"`
	RateLimit *biz.RateLimitStats `json:"rate_limiter"`
}

// ResetReply lists the services whose breaker was reset.
type ResetReply struct {
	Scope    string   `json:"scope"`
	Services []string `json:"services"`
}

// ProbeReply is the outcome of a manual reachability probe.
type ProbeReply struct {
	Service string `json:"service"`
	Scope   string `json:"scope"`
	State   string `json:"state"`
	// Skipped is set when the breaker was not open and no request was made.
	Skipped bool          `json:"skipped"`
	Result  *probe.Result `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
	Reset   bool          `json:"reset"`
}

// RunningReply reports the running lock.
type RunningReply struct {
	Running bool              `json:"running"`
	Info    *data.RunningInfo `json:"info,omitempty"`
}

// SyncReply is the outcome of a manual run: Overall for a full run, Tenant for one tenant.
type SyncReply struct {
	Date    string             `json:"date"`
	Overall *data.OverallStats `json:"overall,omitempty"`
	Tenant  *data.TenantResult `json:"tenant,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// SyncService is the operator facade shared by the HTTP API, the gRPC health check
// and syncctl.
type SyncService struct {
	breaker  *biz.CircuitBreakerUsecase
	limiter  *biz.RateLimiterUseCase
	monitor  *biz.SyncMonitor
	batch    *biz.SyncBatchUsecase
	registry *biz.StrategyRegistry
	metrics  *metrics.Metrics

	probeClient  *http.Client
	probeTargets map[string]string
	probeErr     error

	location *time.Location
	now      func() time.Time
	logger   *log.Helper
	events   *pkglog.LogHelper
}

// NewSyncService creates the operator facade.
func NewSyncService(
	breaker *biz.CircuitBreakerUsecase,
	limiter *biz.RateLimiterUseCase,
	monitor *biz.SyncMonitor,
	batch *biz.SyncBatchUsecase,
	registry *biz.StrategyRegistry,
	m *metrics.Metrics,
	c *conf.Sync,
	logger log.Logger,
) *SyncService {
	s := &SyncService{
		breaker:  breaker,
		limiter:  limiter,
		monitor:  monitor,
		batch:    batch,
		registry: registry,
		metrics:  m,
		location: time.UTC,
		now:      time.Now,
		logger:   log.NewHelper(logger),
		events:   pkglog.NewLogHelper(logger),
	}

	timeout, proxyURL := defaultProbeTimeout, ""
	tz := defaultTimezone
	if c != nil {
		if c.Probe != nil {
			if c.Probe.Timeout > 0 {
				timeout = c.Probe.Timeout
			}
			proxyURL = c.Probe.ProxyURL
			s.probeTargets = c.Probe.Targets
		}
		if c.Timezone != "" {
			tz = c.Timezone
		}
	}

	if loc, err := time.LoadLocation(tz); err == nil {
		s.location = loc
	} else {
		s.logger.Warnw("msg", "unknown timezone, dates default to UTC", "timezone", tz, "error", err)
	}

	// A broken proxy setting only disables probing.
	s.probeClient, s.probeErr = probe.NewHTTPClient(proxyURL, timeout)
	if s.probeErr != nil {
		s.logger.Warnw("msg", "probe client unavailable", "error", s.probeErr)
	}
	return s
}

// Location is the business timezone that dates and the daily schedule use.
func (s *SyncService) Location() *time.Location {
	return s.location
}

// Today returns the current calendar date in the configured timezone.
func (s *SyncService) Today() time.Time {
	return data.NormalizeDate(s.now().In(s.location))
}

// ParseDate parses YYYY-MM-DD; empty means today.
func (s *SyncService) ParseDate(value string) (time.Time, error) {
	if value == "" {
		return s.Today(), nil
	}
	t, err := time.Parse(data.DateLayout, value)
	if err != nil {
		return time.Time{}, errors.BadRequest("INVALID_DATE", "date must be YYYY-MM-DD: "+value)
	}
	return t, nil
}

func (s *SyncService) checkService(service string) error {
	if _, ok := s.registry.Get(service); !ok {
		return errors.NotFound("UNKNOWN_SERVICE", "unknown service: "+service)
	}
	return nil
}

// Health grades the run of date.
func (s *SyncService) Health(ctx context.Context, date string) (*biz.HealthStatus, error) {
	d, err := s.ParseDate(date)
	if err != nil {
		return nil, err
	}
	return s.monitor.GetHealthStatus(ctx, d)
}

// Serving reports whether today's run is anything but critical.
func (s *SyncService) Serving(ctx context.Context) bool {
	hs, err := s.monitor.GetHealthStatus(ctx, s.Today())
	if err != nil {
		s.logger.Warnw("msg", "health check failed", "error", err)
		return true
	}
	return hs.Status != biz.HealthCritical
}

// Stats returns breaker and limiter stats of a service.
func (s *SyncService) Stats(ctx context.Context, service string, tenantID *int64) (*ServiceStats, error) {
	if err := s.checkService(service); err != nil {
		return nil, err
	}
	cs, err := s.breaker.GetStats(ctx, service, tenantID)
	if err != nil {
		return nil, err
	}
	rs, err := s.limiter.GetStats(ctx, service, tenantID)
	if err != nil {
		return nil, err
	}
	return &ServiceStats{
		Service:   service,
		Scope:     model.ScopeName(tenantID),
		Circuit:   cs,
		RateLimit: rs,
	}, nil
}

// Reset forces the breaker of service, or of every registered service when all is set,
// back to closed.
func (s *SyncService) Reset(ctx context.Context, service string, all bool, tenantID *int64) (*ResetReply, error) {
	services := []string{service}
	if all {
		services = s.registry.Services()
	} else if err := s.checkService(service); err != nil {
		return nil, err
	}

	operator := pkglog.GetOperator(ctx)
	for _, svc := range services {
		if err := s.breaker.Reset(ctx, svc, tenantID, operator); err != nil {
			return nil, err
		}
	}
	s.events.Audit("circuit breaker reset by operator",
		"services", services,
		"scope", model.ScopeName(tenantID),
		"operator", operator)
	return &ResetReply{Scope: model.ScopeName(tenantID), Services: services}, nil
}

// Probe checks whether an open service answers again. It only sends a request while the
// breaker is open; with autoReset a reachable target resets the breaker.
func (s *SyncService) Probe(ctx context.Context, service string, tenantID *int64, autoReset bool) (*ProbeReply, error) {
	if err := s.checkService(service); err != nil {
		return nil, err
	}
	state, err := s.breaker.GetState(ctx, service, tenantID)
	if err != nil {
		return nil, err
	}

	reply := &ProbeReply{Service: service, Scope: model.ScopeName(tenantID), State: state}
	if state != data.CircuitOpen {
		reply.Skipped = true
		return reply, nil
	}
	if s.probeErr != nil {
		return nil, errors.InternalServer("PROBE_UNAVAILABLE", s.probeErr.Error())
	}
	target := s.probeTargets[service]
	if target == "" {
		return nil, errors.BadRequest("PROBE_TARGET_MISSING", "no probe target configured for "+service)
	}

	res, err := probe.Check(ctx, s.probeClient, target)
	reply.Result = res
	if err != nil {
		reply.Error = err.Error()
	}
	if err != nil || !res.Reachable {
		s.metrics.ProbeResult(service, "unreachable")
		s.events.Circuit("probe failed, breaker stays open",
			"service", service,
			"scope", reply.Scope,
			"target", target,
			"error", err)
		return reply, nil
	}

	s.metrics.ProbeResult(service, "reachable")
	s.events.Circuit("probe succeeded",
		"service", service,
		"scope", reply.Scope,
		"status_code", res.StatusCode,
		"latency_ms", res.Latency.Milliseconds())

	if autoReset {
		if err := s.breaker.Reset(ctx, service, tenantID, pkglog.GetOperator(ctx)); err != nil {
			return nil, err
		}
		reply.Reset = true
		reply.State = data.CircuitClosed
	}
	return reply, nil
}

// FailedTenants lists tenants without a synced actual for date.
func (s *SyncService) FailedTenants(ctx context.Context, date string) ([]biz.FailedTenant, error) {
	d, err := s.ParseDate(date)
	if err != nil {
		return nil, err
	}
	return s.monitor.GetFailedTenants(ctx, d)
}

// Trends returns per-day run statistics, oldest first.
func (s *SyncService) Trends(ctx context.Context, days int) ([]biz.TrendPoint, error) {
	if days < 0 || days > biz.MaxTrendDays {
		return nil, errors.BadRequest("INVALID_DAYS", "days must be between 1 and 90")
	}
	return s.monitor.GetPerformanceTrends(ctx, days)
}

// Batches returns the batch records of date.
func (s *SyncService) Batches(ctx context.Context, date string) ([]*data.BatchStats, error) {
	d, err := s.ParseDate(date)
	if err != nil {
		return nil, err
	}
	return s.monitor.GetBatchStats(ctx, d)
}

// Dashboard bundles the operator views of date.
func (s *SyncService) Dashboard(ctx context.Context, date string) (*biz.Dashboard, error) {
	d, err := s.ParseDate(date)
	if err != nil {
		return nil, err
	}
	return s.monitor.GetDashboard(ctx, d)
}

// Running reports the running lock.
func (s *SyncService) Running(ctx context.Context) (*RunningReply, error) {
	running, info, err := s.monitor.IsRunning(ctx)
	if err != nil {
		return nil, err
	}
	return &RunningReply{Running: running, Info: info}, nil
}

// Sync runs the daily sync for date, or for a single tenant when tenantID is set.
func (s *SyncService) Sync(ctx context.Context, date string, tenantID *int64) (*SyncReply, error) {
	d, err := s.ParseDate(date)
	if err != nil {
		return nil, err
	}
	reply := &SyncReply{Date: data.DateKey(d)}

	s.events.Sync("manual sync requested",
		"date", reply.Date,
		"scope", model.ScopeName(tenantID),
		"operator", pkglog.GetOperator(ctx))

	if tenantID != nil {
		res, err := s.batch.RunTenant(ctx, *tenantID, d)
		if res == nil {
			return nil, err
		}
		reply.Tenant = res
		if err != nil {
			reply.Error = err.Error()
		}
		return reply, nil
	}

	if reply.Overall, err = s.batch.RunDaily(ctx, d); err != nil {
		return nil, err
	}
	return reply, nil
}

// AuditEvents returns the latest breaker audit entries of a service.
func (s *SyncService) AuditEvents(ctx context.Context, service string, limit int) ([]model.AuditEntry, error) {
	if err := s.checkService(service); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	return s.breaker.RecentEvents(ctx, service, limit)
}

// Services lists the registered sources.
func (s *SyncService) Services() []string {
	return s.registry.Services()
}
