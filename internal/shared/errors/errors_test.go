package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorErrorIncludesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewProbeFailedError("probe against runs failed").WithCause(cause)

	assert.Contains(t, err.Error(), "probe against runs failed")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestAppErrorBuilderMethods(t *testing.T) {
	err := NewIntegrityViolationError("entity is referenced").
		WithCode("REF_BLOCKED").
		WithComponent("integrity-validator").
		WithDetail("blocking_references", []map[string]interface{}{
			{"childCollection": "runs", "count": 2},
		})

	assert.Equal(t, "REF_BLOCKED", err.Code)
	assert.Equal(t, "integrity-validator", err.Component)
	assert.Contains(t, err.Details, "blocking_references")
	assert.Equal(t, http.StatusConflict, err.HTTPCode)
}

func TestTaxonomyHTTPCodes(t *testing.T) {
	cases := []struct {
		err  *AppError
		code int
	}{
		{NewInvalidInputError("bad id"), http.StatusBadRequest},
		{NewProbeFailedError("storage down"), http.StatusInternalServerError},
		{NewIntegrityViolationError("blocked"), http.StatusConflict},
		{NewIndexConflictError("duplicate values"), http.StatusConflict},
		{NewMigrationAbortError("backup failed"), http.StatusInternalServerError},
		{NewNotFoundError("migration record"), http.StatusNotFound},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.HTTPCode, string(tc.err.Type))
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(NewIndexConflictError("dup")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stderrors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", NewInvalidInputError("bad"))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(wrapped))
}

func TestIsInvalidInput(t *testing.T) {
	assert.True(t, IsInvalidInput(NewInvalidInputError("bad id")))
	assert.True(t, IsInvalidInput(ErrInvalidEntityID))
	assert.True(t, IsInvalidInput(fmt.Errorf("wrap: %w", ErrUnknownParentType)))
	assert.False(t, IsInvalidInput(NewProbeFailedError("down")))
}

func TestIsProbeFailed(t *testing.T) {
	assert.True(t, IsProbeFailed(NewProbeFailedError("down")))
	assert.True(t, IsProbeFailed(fmt.Errorf("wrap: %w", ErrProbeFailed)))
	assert.True(t, IsProbeFailed(ErrValidationTimeout))
	assert.False(t, IsProbeFailed(NewInvalidInputError("bad")))
}

func TestIsIntegrityViolation(t *testing.T) {
	assert.True(t, IsIntegrityViolation(NewIntegrityViolationError("blocked")))
	assert.False(t, IsIntegrityViolation(stderrors.New("other")))
}

func TestIsIndexConflict(t *testing.T) {
	assert.True(t, IsIndexConflict(NewIndexConflictError("dup")))
	assert.True(t, IsIndexConflict(ErrIndexUniquenessClash))
	assert.False(t, IsIndexConflict(NewConflictError("generic conflict")))
}

func TestIsMigrationAbort(t *testing.T) {
	assert.True(t, IsMigrationAbort(NewMigrationAbortError("backup failed")))
	assert.True(t, IsMigrationAbort(fmt.Errorf("stage: %w", ErrBackupFailed)))
	assert.False(t, IsMigrationAbort(NewMigrationPartialError("3 docs failed")))
}

func TestIsConflictCoversIntegrityAndIndex(t *testing.T) {
	assert.True(t, IsConflict(NewIntegrityViolationError("blocked")))
	assert.True(t, IsConflict(NewIndexConflictError("dup")))
	assert.True(t, IsConflict(ErrConflict))
}

func TestWrapErrorPreservesAppError(t *testing.T) {
	orig := NewInvalidInputError("bad id")
	wrapped := WrapError(orig, "ignored")
	require.Same(t, orig, wrapped)

	plain := WrapError(stderrors.New("boom"), "context message")
	assert.Equal(t, ErrorTypeInternal, plain.Type)
	assert.Contains(t, plain.Error(), "context message")
}
