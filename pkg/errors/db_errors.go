// Package errors provides database error classification and handling utilities.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DatabaseErrorType represents the type of database error.
type DatabaseErrorType int

const (
	// ErrorTypeUnknown represents an unknown database error.
	ErrorTypeUnknown DatabaseErrorType = iota
	// ErrorTypeDuplicateKey represents a duplicate key constraint violation (MySQL 1062).
	ErrorTypeDuplicateKey
	// ErrorTypeConstraintViolation represents a foreign key violation (MySQL 1451, 1452).
	ErrorTypeConstraintViolation
	// ErrorTypeInvalidJSON represents invalid sync_metadata JSON (MySQL 3140-3143).
	ErrorTypeInvalidJSON
	// ErrorTypeDataTooLong represents a data too long error (MySQL 1406).
	ErrorTypeDataTooLong
	// ErrorTypeNotFound represents a record not found error.
	ErrorTypeNotFound
	// ErrorTypeDeadlock represents a deadlock or lock wait timeout (MySQL 1213, 1205).
	ErrorTypeDeadlock
	// ErrorTypeConnectionError represents a database connection error.
	ErrorTypeConnectionError
	// ErrorTypeInvalidValue represents a NULL or truncated value error.
	ErrorTypeInvalidValue
)

// String returns a short label used in logs and metrics.
func (t DatabaseErrorType) String() string {
	switch t {
	case ErrorTypeDuplicateKey:
		return "duplicate_key"
	case ErrorTypeConstraintViolation:
		return "constraint_violation"
	case ErrorTypeInvalidJSON:
		return "invalid_json"
	case ErrorTypeDataTooLong:
		return "data_too_long"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeDeadlock:
		return "deadlock"
	case ErrorTypeConnectionError:
		return "connection"
	case ErrorTypeInvalidValue:
		return "invalid_value"
	default:
		return "unknown"
	}
}

// DatabaseError wraps a database error with classification information.
type DatabaseError struct {
	Type         DatabaseErrorType
	OriginalErr  error
	MySQLErrCode uint16
	Message      string
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.MySQLErrCode > 0 {
		return fmt.Sprintf("%s (MySQL error %d): %v", e.Message, e.MySQLErrCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// ClassifyDBError classifies a database error into a specific error type.
//
// Example:
//
//	if err := repo.Upsert(ctx, actual); err != nil {
//	    if dbErr := errors.ClassifyDBError(err); dbErr.Type == errors.ErrorTypeDeadlock {
//	        // retry the upsert
//	    }
//	}
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{Type: ErrorTypeNotFound, OriginalErr: err, Message: "record not found"}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return classifyMySQLError(mysqlErr)
	}

	if isConnectionError(err.Error()) {
		return &DatabaseError{Type: ErrorTypeConnectionError, OriginalErr: err, Message: "database connection error"}
	}

	return &DatabaseError{Type: ErrorTypeUnknown, OriginalErr: err, Message: "unknown database error"}
}

func classifyMySQLError(err *mysql.MySQLError) *DatabaseError {
	dbErr := &DatabaseError{OriginalErr: err, MySQLErrCode: err.Number}

	switch err.Number {
	case 1062: // ER_DUP_ENTRY
		dbErr.Type, dbErr.Message = ErrorTypeDuplicateKey, "duplicate key constraint violation"
	case 3140, 3141, 3142, 3143:
		dbErr.Type, dbErr.Message = ErrorTypeInvalidJSON, "invalid JSON data"
	case 1406: // ER_DATA_TOO_LONG
		dbErr.Type, dbErr.Message = ErrorTypeDataTooLong, "data too long for column"
	case 1451, 1452:
		dbErr.Type, dbErr.Message = ErrorTypeConstraintViolation, "foreign key constraint violation"
	case 1213, 1205: // ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		dbErr.Type, dbErr.Message = ErrorTypeDeadlock, "lock conflict"
	case 1048, 1265, 1366:
		dbErr.Type, dbErr.Message = ErrorTypeInvalidValue, "invalid or truncated value"
	default:
		dbErr.Type, dbErr.Message = ErrorTypeUnknown, "MySQL error"
	}

	return dbErr
}

var connectionKeywords = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"connection lost",
	"can't connect",
	"dial tcp",
	"bad connection",
}

// isConnectionError checks if the error message indicates a connection problem.
func isConnectionError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// IsNotFoundError checks if the error is a record not found error.
func IsNotFoundError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeNotFound
}

// IsDuplicateKeyError checks if the error is a duplicate key constraint violation.
func IsDuplicateKeyError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeDuplicateKey
}

// IsRetryable reports whether repeating the same statement may succeed.
// Two workers upserting the same (tenant, metric, date) row can deadlock on
// the unique index; that and transient connection loss are retryable.
func IsRetryable(err error) bool {
	dbErr := ClassifyDBError(err)
	if dbErr == nil {
		return false
	}
	return dbErr.Type == ErrorTypeDeadlock || dbErr.Type == ErrorTypeConnectionError
}
