package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Task error codes
const (
	ErrTransientTask   ErrorCode = "TRANSIENT_TASK"
	ErrFatalTask       ErrorCode = "FATAL_TASK"
	ErrBadCheckpoint   ErrorCode = "BAD_CHECKPOINT"
	ErrTaskIncomplete  ErrorCode = "TASK_INCOMPLETE"
	ErrLivenessTimeout ErrorCode = "LIVENESS_TIMEOUT"
	ErrTaskNotFound    ErrorCode = "TASK_NOT_FOUND"
)

// Pipeline error codes
const (
	ErrSignalTimeout     ErrorCode = "SIGNAL_TIMEOUT"
	ErrRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrInternalFault     ErrorCode = "INTERNAL_FAULT"
)

// Infrastructure error codes
const (
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrConfigInvalid    ErrorCode = "CONFIG_INVALID"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Stage     string    `json:"stage,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewTransient creates a retryable task error.
// 瞬时错误：消耗重试预算，触发退避后重新派发
func NewTransient(message string) *Error {
	return &Error{Code: ErrTransientTask, Message: message, Retryable: true}
}

// NewFatal creates a non-retryable task error.
// 致命错误：跳过剩余重试预算，流水线直接进入 Failed
func NewFatal(message string) *Error {
	return &Error{Code: ErrFatalTask, Message: message, Retryable: false}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithStage records the pipeline stage the error originated from.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// IsRetryable checks if an error is retryable.
// 非 *Error 类型的错误一律按瞬时处理（与协调器对未知崩溃的处理一致）。
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return err != nil
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
