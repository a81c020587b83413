package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := NewError(ErrFatalTask, "invalid credit card expiry")
	assert.Equal(t, "[FATAL_TASK] invalid credit card expiry", err.Error())

	cause := errors.New("parse failure")
	err = err.WithCause(cause)
	assert.Contains(t, err.Error(), "parse failure")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransient("inventory service down")))
	assert.False(t, IsRetryable(NewFatal("invalid input")))

	// 包装后仍可识别
	wrapped := fmt.Errorf("stage payment: %w", NewFatal("card expired"))
	assert.False(t, IsRetryable(wrapped))

	// 未知错误按瞬时处理
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.False(t, IsRetryable(nil))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrBadCheckpoint, GetErrorCode(NewError(ErrBadCheckpoint, "corrupt")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))

	wrapped := fmt.Errorf("dispatch: %w", NewError(ErrSignalTimeout, "no decision"))
	assert.Equal(t, ErrSignalTimeout, GetErrorCode(wrapped))
}

func TestWithStage(t *testing.T) {
	err := NewTransient("down").WithStage("reserve_inventory")
	assert.Equal(t, "reserve_inventory", err.Stage)
	assert.True(t, err.Retryable)
}
