// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for the DMA pipeline.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrExhausted     = fmt.Errorf("resource exhausted")
	ErrForbidden     = fmt.Errorf("DMA forbidden by policy")
	ErrInvalidHandle = fmt.Errorf("invalid allocation handle")
	ErrTimeout       = fmt.Errorf("hardware handshake timeout")
	ErrClosed        = fmt.Errorf("allocator is closed")
)

// ErrorCode represents specific failure conditions in the pipeline.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	// ErrCodeConfig: bad pool sizing or alignment at init. Fatal, aborts init.
	ErrCodeConfig
	// ErrCodeSizeExceeded: request larger than the largest slot size.
	ErrCodeSizeExceeded
	// ErrCodeExhausted: pool or ring full. Recoverable; caller retries or drops.
	ErrCodeExhausted
	// ErrCodeForbidden: DMA allocation requested under PolicyForbidden.
	ErrCodeForbidden
	// ErrCodeBoundary: internal 64KB-boundary invariant failure observed at
	// runtime. The allocation is refused, never returned with bad bounds.
	ErrCodeBoundary
	// ErrCodeInvalidHandle: double free or foreign free. Reported, never
	// acted on.
	ErrCodeInvalidHandle
	// ErrCodeTimeout: init handshake exceeded its retry budget.
	ErrCodeTimeout
	ErrCodeInternal
)

// Error is a structured error carrying a taxonomy code plus context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns ErrCodeOK for nil and ErrCodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
