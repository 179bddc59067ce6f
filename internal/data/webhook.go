package data

import (
	"context"

	"SyncGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// LogNotifier implements biz.AlertNotifier by writing alerts to the log.
// Mail and chat delivery are owned by the platform and consume these log lines.
type LogNotifier struct {
	logger *log.Helper
}

// NewLogNotifier creates a new log-only notifier
func NewLogNotifier(logger log.Logger) *LogNotifier {
	return &LogNotifier{
		logger: log.NewHelper(logger),
	}
}

// NotifyCircuitOpened logs a breaker opening.
func (n *LogNotifier) NotifyCircuitOpened(_ context.Context, event *model.CircuitEvent) error {
	n.logger.Warnw("msg", "circuit opened",
		"service", event.Service,
		"scope", event.Scope(),
		"failure_count", event.FailureCount,
		"opened_at", event.OpenedAt,
		"type", "alert")
	return nil
}

// NotifyCircuitRecovered logs a breaker closing after a half-open trial.
func (n *LogNotifier) NotifyCircuitRecovered(_ context.Context, event *model.CircuitEvent) error {
	n.logger.Infow("msg", "circuit recovered",
		"service", event.Service,
		"scope", event.Scope(),
		"success_count", event.SuccessCount,
		"type", "circuit")
	return nil
}

// NotifySyncAlert logs a critical sync health verdict.
func (n *LogNotifier) NotifySyncAlert(_ context.Context, event *model.SyncAlertEvent) error {
	n.logger.Errorw("msg", "kpi sync health critical",
		"date", event.Date,
		"status", event.Status,
		"success_rate", event.SuccessRate,
		"avg_duration", event.AvgDuration,
		"failed_tenants", event.FailedTenants,
		"recommendations", event.Recommendations,
		"type", "alert")
	return nil
}
