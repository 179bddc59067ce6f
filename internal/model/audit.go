package model

import (
	"strconv"
	"time"
)

// Circuit audit actions
const (
	AuditActionCircuitOpened    = "CIRCUIT_OPENED"
	AuditActionCircuitRecovered = "CIRCUIT_RECOVERED"
	AuditActionCircuitReopened  = "CIRCUIT_REOPENED"
	AuditActionCircuitReset     = "CIRCUIT_RESET"
)

// AuditEntry is a circuit audit row as shown to operators.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Service   string    `json:"service"`
	Scope     string    `json:"scope"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Operator  string    `json:"operator"`
	CreatedAt time.Time `json:"created_at"`
}

// ScopeName returns "business_{id}" for a tenant and "global" for nil.
func ScopeName(tenantID *int64) string {
	if tenantID == nil {
		return "global"
	}
	return "business_" + strconv.FormatInt(*tenantID, 10)
}
