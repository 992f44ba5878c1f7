package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewError(t *testing.T) {
	err := NewError(13001, KindNotFound, "test error")

	assert.Equal(t, 13001, err.Code)
	assert.Equal(t, KindNotFound, err.Kind)
	assert.Equal(t, "test error", err.Message)
	assert.Nil(t, err.Err)
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      NewError(13001, KindNotFound, "test error"),
			expected: "[13001] test error",
		},
		{
			name:     "with wrapped error",
			err:      NewError(13001, KindNotFound, "test error").Wrap(errors.New("original error")),
			expected: "[13001] test error: original error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_WrapKeepsIdentity(t *testing.T) {
	original := errors.New("original error")
	wrapped := ErrGroupNotFound.Wrap(original)

	assert.Equal(t, ErrGroupNotFound.Code, wrapped.Code)
	assert.Equal(t, ErrGroupNotFound.Kind, wrapped.Kind)
	assert.Same(t, original, errors.Unwrap(wrapped))
	assert.ErrorIs(t, wrapped, ErrGroupNotFound)
	assert.ErrorIs(t, wrapped, original)
	// Wrap 不修改预定义错误
	assert.Nil(t, ErrGroupNotFound.Err)
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   *AppError
		expected bool
	}{
		{"same error", ErrInvitationPending, ErrInvitationPending, true},
		{"wrapped app error", fmt.Errorf("create: %w", ErrInvitationPending), ErrInvitationPending, true},
		{"different code", ErrAlreadyMember, ErrInvitationPending, false},
		{"plain error", errors.New("boom"), ErrInvitationPending, false},
		{"nil error", nil, ErrInvitationPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Is(tt.err, tt.target))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(ErrMemberNotFound))
	assert.Equal(t, KindForbidden, KindOf(fmt.Errorf("x: %w", ErrNotGroupMember)))
	assert.Equal(t, KindConflict, KindOf(ErrDirectPairLost))
	assert.Equal(t, KindInvalidState, KindOf(ErrInvitationExpired))
	assert.Equal(t, KindInvalidArgument, KindOf(ErrCannotMessageSelf))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "not_found", KindNotFound.String())
}

func TestGetCodeAndMessage(t *testing.T) {
	assert.Equal(t, CodeOwnerOnly, GetCode(ErrOwnerOnly))
	assert.Equal(t, CodeServerError, GetCode(errors.New("boom")))
	assert.Equal(t, "not a member", GetMessage(ErrNotGroupMember))
	assert.Equal(t, "internal server error", GetMessage(errors.New("boom")))
}
