package data

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"SyncGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

const auditChanSize = 1000

// CircuitAuditLog is the GORM model for circuit_audit_logs table
type CircuitAuditLog struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	Service   string    `gorm:"column:service;type:varchar(100);not null;index:idx_circuit_audit_service"`
	TenantID  *int64    `gorm:"column:business_id;index"`
	Action    string    `gorm:"column:action;type:varchar(50);not null"`
	Details   string    `gorm:"column:details;type:json"`
	Operator  string    `gorm:"column:operator;type:varchar(100);default:system;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (CircuitAuditLog) TableName() string {
	return "circuit_audit_logs"
}

// AuditLoggerImpl implements biz.AuditLogger.
// Rows are written by a background goroutine so a slow database never delays
// a breaker transition.
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *CircuitAuditLog
	done    chan struct{}
	once    sync.Once
	logger  *log.Helper
}

// NewAuditLogger creates a new audit logger with async channel.
// The cleanup drains queued rows before returning.
func NewAuditLogger(db *gorm.DB, logger log.Logger) (*AuditLoggerImpl, func()) {
	al := &AuditLoggerImpl{
		db:      db,
		logChan: make(chan *CircuitAuditLog, auditChanSize),
		done:    make(chan struct{}),
		logger:  log.NewHelper(logger),
	}

	go al.start()

	return al, al.Close
}

// start processes audit log events from channel
func (a *AuditLoggerImpl) start() {
	defer close(a.done)
	for event := range a.logChan {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("msg", "failed to write circuit audit log",
				"service", event.Service,
				"action", event.Action,
				"error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued rows to be written.
func (a *AuditLoggerImpl) Close() {
	a.once.Do(func() {
		close(a.logChan)
	})
	<-a.done
}

// LogCircuitEvent queues one transition. Never blocks: a full queue drops the row.
func (a *AuditLoggerImpl) LogCircuitEvent(_ context.Context, event *model.CircuitEvent) {
	if event == nil {
		return
	}

	details := map[string]interface{}{
		"scope":         event.Scope(),
		"from_state":    event.FromState,
		"to_state":      event.ToState,
		"failure_count": event.FailureCount,
		"success_count": event.SuccessCount,
	}
	if event.OpenedAt != nil {
		details["opened_at"] = event.OpenedAt.UTC().Format(time.RFC3339)
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("msg", "failed to marshal audit log details", "error", err)
		return
	}

	operator := event.Operator
	if operator == "" {
		operator = "system"
	}

	row := &CircuitAuditLog{
		Service:  event.Service,
		TenantID: event.TenantID,
		Action:   event.Action,
		Details:  string(detailsJSON),
		Operator: operator,
	}
	if !event.OccurredAt.IsZero() {
		row.CreatedAt = event.OccurredAt
	}

	defer func() {
		// send on a closed channel after shutdown
		if recover() != nil {
			a.logger.Warnw("msg", "audit logger closed, dropping event", "service", event.Service, "action", event.Action)
		}
	}()

	select {
	case a.logChan <- row:
	default:
		a.logger.Warnw("msg", "audit log channel full, dropping event",
			"service", event.Service,
			"action", event.Action)
	}
}

// ListRecent returns the newest audit rows, optionally filtered by service.
func (a *AuditLoggerImpl) ListRecent(ctx context.Context, service string, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	q := a.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if service != "" {
		q = q.Where("service = ?", service)
	}

	var rows []CircuitAuditLog
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list circuit audit logs: %w", err)
	}

	entries := make([]model.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, model.AuditEntry{
			ID:        row.ID,
			Service:   row.Service,
			Scope:     model.ScopeName(row.TenantID),
			Action:    row.Action,
			Details:   row.Details,
			Operator:  row.Operator,
			CreatedAt: row.CreatedAt,
		})
	}
	return entries, nil
}
