package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		CodeUnknown,
		CodeValidation,
		CodeConfiguration,
		CodeTimeout,
		CodeCanceled,
		CodeNotFound,
		CodeConflict,
		CodeMalformedDocument,
		CodeMissingField,
		CodeInvalidValue,
		CodeInvalidEnum,
		CodeNoScan,
		CodeDuplicateScan,
		CodeDocumentTooLarge,
		CodeDatabaseConnection,
		CodeDatabaseQuery,
		CodeDatabaseMigration,
		CodeDatabaseTimeout,
		CodeFileNotFound,
		CodeFilePermission,
		CodeServiceUnavailable,
		CodeServiceTimeout,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		assert.NotEmpty(t, string(code))
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestReportError(t *testing.T) {
	t.Run("message only", func(t *testing.T) {
		err := NewReportError(CodeNoScan, "no scan found")
		assert.Equal(t, "[NO_SCAN] no scan found", err.Error())
	})

	t.Run("value is quoted", func(t *testing.T) {
		err := ErrInvalidEnum("host state", "paused")
		assert.Equal(t, CodeInvalidEnum, err.Code)
		assert.Equal(t, "paused", err.Value)
		assert.Equal(t, `[INVALID_ENUM] invalid host state: "paused"`, err.Error())
	})

	t.Run("element and line", func(t *testing.T) {
		err := ErrMissingField("port", "portid")
		err.Line = 42
		assert.Equal(t, `[MISSING_FIELD] missing required attribute "portid" (element: port) (line: 42)`, err.Error())
	})

	t.Run("wrapped cause", func(t *testing.T) {
		cause := fmt.Errorf("unexpected EOF")
		err := WrapReportError(CodeMalformedDocument, "truncated document", cause)
		assert.Same(t, cause, err.Unwrap())
		assert.True(t, stderrors.Is(err, cause))
	})
}

func TestDatabaseError(t *testing.T) {
	t.Run("basic database error", func(t *testing.T) {
		err := NewDatabaseError(CodeDatabaseConnection, "connection failed")
		assert.Equal(t, "[DATABASE_CONNECTION] connection failed", err.Error())
		assert.NotNil(t, err.Context)
	})

	t.Run("database error with operation", func(t *testing.T) {
		err := NewDatabaseError(CodeDatabaseQuery, "query failed")
		err.Operation = "SELECT"
		assert.Equal(t, "[DATABASE_QUERY] query failed (operation: SELECT)", err.Error())
	})

	t.Run("with query", func(t *testing.T) {
		err := ErrDatabaseQuery("SELECT * FROM hosts", fmt.Errorf("boom"))
		assert.Equal(t, "SELECT * FROM hosts", err.Query)
	})

	t.Run("not found", func(t *testing.T) {
		err := ErrNotFound("scan", "abc")
		assert.Equal(t, CodeNotFound, err.Code)
		assert.Equal(t, "abc", err.Context["id"])
	})
}

func TestConfigError(t *testing.T) {
	err := NewConfigFieldError(CodeValidation, "invalid port", "database.port", 65536)
	assert.Equal(t, "database.port", err.Field)
	assert.Equal(t, 65536, err.Value)
	assert.Equal(t, "[VALIDATION] invalid port (field: database.port)", err.Error())

	cause := fmt.Errorf("file not found")
	wrapped := WrapConfigError(CodeFileNotFound, "config file missing", cause)
	assert.Same(t, cause, wrapped.Unwrap())
}

func TestServiceError(t *testing.T) {
	err := NewServiceError(CodeServiceUnavailable, "workers", "job queue is full")
	assert.Equal(t, "[SERVICE_UNAVAILABLE] workers: job queue is full", err.Error())
	assert.Nil(t, err.Unwrap())

	cause := fmt.Errorf("connection refused")
	wrapped := WrapServiceError(CodeServiceUnavailable, "archive", "upload failed", cause)
	assert.Same(t, cause, wrapped.Unwrap())
	assert.True(t, IsCode(fmt.Errorf("put: %w", wrapped), CodeServiceUnavailable))
}

func TestUtilityFunctions(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      ErrorCode
		retryable bool
	}{
		{
			name: "report error",
			err:  ErrNoScan(),
			code: CodeNoScan,
		},
		{
			name: "wrapped report error",
			err:  fmt.Errorf("upload: %w", ErrInvalidEnum("port state", "weird")),
			code: CodeInvalidEnum,
		},
		{
			name:      "database connection",
			err:       ErrDatabaseConnection(fmt.Errorf("refused")),
			code:      CodeDatabaseConnection,
			retryable: true,
		},
		{
			name: "config error",
			err:  ErrConfigMissing("database.host"),
			code: CodeConfiguration,
		},
		{
			name:      "service timeout",
			err:       WrapServiceError(CodeServiceTimeout, "archive", "upload timed out", fmt.Errorf("deadline")),
			code:      CodeServiceTimeout,
			retryable: true,
		},
		{
			name: "corrupt stored row",
			err:  WrapDatabaseError(CodeDatabaseQuery, "failed to decode host", ErrInvalidEnum("host state", "paused")),
			code: CodeDatabaseQuery,
		},
		{
			name: "outer code wins through plain wrapping",
			err: fmt.Errorf("list hosts: %w",
				WrapDatabaseError(CodeDatabaseQuery, "failed to decode port", ErrInvalidEnum("port state", "weird"))),
			code: CodeDatabaseQuery,
		},
		{
			name: "standard error",
			err:  fmt.Errorf("standard error"),
			code: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, GetCode(tt.err))
			assert.True(t, IsCode(tt.err, tt.code))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}

	assert.False(t, IsCode(nil, CodeUnknown))

	nested := WrapDatabaseError(CodeDatabaseQuery, "failed to decode host", ErrInvalidEnum("host state", "paused"))
	assert.True(t, IsCode(nested, CodeInvalidEnum), "inner codes stay visible to IsCode")
}

func TestIsReportError(t *testing.T) {
	require.True(t, IsReportError(fmt.Errorf("ctx: %w", ErrNoScan())))
	require.False(t, IsReportError(ErrNotFound("host", "1")))
	require.False(t, IsReportError(nil))
}
