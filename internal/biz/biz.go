// Package biz contains business logic layer implementations.
// This layer holds the resilience rules and the KPI sync domain.
package biz

import (
	"SyncGuard/internal/data"
	"SyncGuard/internal/metrics"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewCircuitBreakerUsecase,
	NewRateLimiterUseCase,
	NewInstagramStrategy,
	NewFacebookStrategy,
	NewPosStrategy,
	NewDefaultStrategyRegistry,
	NewSyncOrchestrator,
	NewSyncMonitor,
	NewSyncBatchUsecase,
	metrics.ProviderSet,
	// Import data layer providers
	data.NewCircuitBreakerRepo,
	data.NewRateLimitRepo,
	data.NewSyncStatsRepo,
	data.NewKpiActualRepo,
	data.NewTenantRepo,
	data.NewMirrorRepo,
	data.NewAuditLogger,
	data.NewLogNotifier,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(CircuitBreakerRepo), new(*data.CircuitBreakerRepo)),
	wire.Bind(new(RateLimitRepo), new(*data.RateLimitRepo)),
	wire.Bind(new(SyncStatsRepo), new(*data.SyncStatsRepo)),
	wire.Bind(new(KpiActualRepo), new(*data.KpiActualRepo)),
	wire.Bind(new(ActualHistory), new(*data.KpiActualRepo)),
	wire.Bind(new(TenantRepo), new(*data.TenantRepo)),
	wire.Bind(new(InstagramMirror), new(*data.MirrorRepo)),
	wire.Bind(new(FacebookMirror), new(*data.MirrorRepo)),
	wire.Bind(new(PosMirror), new(*data.MirrorRepo)),
	wire.Bind(new(AuditLogger), new(*data.AuditLoggerImpl)),
	wire.Bind(new(AlertNotifier), new(*data.LogNotifier)),
)
