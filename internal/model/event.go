package model

import "time"

// CircuitEvent describes one circuit breaker state transition.
type CircuitEvent struct {
	Service      string
	TenantID     *int64 // nil = global scope
	Action       string // one of the AuditAction* constants
	FromState    string
	ToState      string
	FailureCount int
	SuccessCount int
	OpenedAt     *time.Time
	Operator     string // "system" for automatic transitions
	OccurredAt   time.Time
}

// Scope renders the tenant scope the way breaker keys do.
func (e *CircuitEvent) Scope() string {
	return ScopeName(e.TenantID)
}

// SyncAlertEvent is raised when a day's sync health is critical.
type SyncAlertEvent struct {
	Date            string
	Status          string
	SuccessRate     float64
	AvgDuration     float64
	FailedTenants   int
	Recommendations []string
}
