package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyDBError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyDBError(nil))
	assert.False(t, IsRetryable(nil))
}

func TestClassifyDBError_GORMRecordNotFound(t *testing.T) {
	dbErr := ClassifyDBError(fmt.Errorf("load target: %w", gorm.ErrRecordNotFound))

	assert.Equal(t, ErrorTypeNotFound, dbErr.Type)
	assert.True(t, errors.Is(dbErr, gorm.ErrRecordNotFound))
	assert.True(t, IsNotFoundError(gorm.ErrRecordNotFound))
}

func TestClassifyDBError_MySQLCodes(t *testing.T) {
	tests := []struct {
		code uint16
		want DatabaseErrorType
	}{
		{1062, ErrorTypeDuplicateKey},
		{3140, ErrorTypeInvalidJSON},
		{3143, ErrorTypeInvalidJSON},
		{1406, ErrorTypeDataTooLong},
		{1452, ErrorTypeConstraintViolation},
		{1451, ErrorTypeConstraintViolation},
		{1213, ErrorTypeDeadlock},
		{1205, ErrorTypeDeadlock},
		{1048, ErrorTypeInvalidValue},
		{1366, ErrorTypeInvalidValue},
		{9999, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code_%d", tt.code), func(t *testing.T) {
			dbErr := ClassifyDBError(&mysql.MySQLError{Number: tt.code, Message: "boom"})
			assert.Equal(t, tt.want, dbErr.Type)
			assert.Equal(t, tt.code, dbErr.MySQLErrCode)
			assert.Contains(t, dbErr.Error(), fmt.Sprintf("MySQL error %d", tt.code))
		})
	}
}

func TestClassifyDBError_ConnectionErrors(t *testing.T) {
	for _, msg := range []string{
		"dial tcp 10.0.0.5:3306: connect: Connection Refused",
		"driver: bad connection",
		"i/o timeout",
	} {
		dbErr := ClassifyDBError(errors.New(msg))
		assert.Equal(t, ErrorTypeConnectionError, dbErr.Type, msg)
	}

	assert.Equal(t, ErrorTypeUnknown, ClassifyDBError(errors.New("syntax error")).Type)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&mysql.MySQLError{Number: 1213}))
	assert.True(t, IsRetryable(errors.New("connection reset by peer")))
	assert.False(t, IsRetryable(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsRetryable(gorm.ErrRecordNotFound))
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, IsDuplicateKeyError(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsDuplicateKeyError(errors.New("other")))
}

func TestDatabaseErrorType_String(t *testing.T) {
	assert.Equal(t, "deadlock", ErrorTypeDeadlock.String())
	assert.Equal(t, "unknown", DatabaseErrorType(99).String())
}
