package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	plain := NotFound("test not found")
	assert.Equal(t, "test not found", plain.Error())

	cause := errors.New("connection refused")
	wrapped := Wrap(cause, ErrCodeStorage, "query tests")
	assert.Equal(t, "query tests: connection refused", wrapped.Error())
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeStorage, "no-op"))
	assert.Nil(t, Wrapf(nil, ErrCodeStorage, "no-op %d", 1))
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		err  error
		code ErrorCode
		is   func(error) bool
	}{
		{NotFound("x"), ErrCodeNotFound, IsNotFound},
		{Validation("x"), ErrCodeValidation, IsValidation},
		{NotReady("x"), ErrCodeNotReady, IsNotReady},
		{InvalidTransitionf("%s to %s", "queued", "failed"), ErrCodeInvalidTransition, IsInvalidTransition},
		{Conflict("x"), ErrCodeConflict, IsConflict},
		{Storage("x"), ErrCodeStorage, IsStorage},
		{Internal("x"), ErrCodeInternal, IsInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.True(t, tt.is(tt.err))
			assert.Equal(t, tt.code, GetCode(tt.err))
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	inner := NotFound("test abc123 not found")
	outer := fmt.Errorf("start test: %w", inner)

	assert.True(t, IsNotFound(outer))
	assert.False(t, IsValidation(outer))
	assert.Equal(t, ErrCodeNotFound, GetCode(outer))
}

func TestValidationField(t *testing.T) {
	err := ValidationField("domain", "domain is required")
	require.True(t, IsValidation(err))
	assert.Equal(t, "domain", GetField(err))

	assert.Empty(t, GetField(errors.New("plain")))
	assert.Empty(t, GetCode(errors.New("plain")))
}
