// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Skycast.
//
// Every component of the assistant reports failures as a *SkycastError carrying
// one of the codes below, so transports can decide how to surface them without
// string matching.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies Skycast errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the caller supplied invalid input.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeConfiguration indicates a required setting or credential is missing.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeProviderUnavailable indicates the completion provider could not be reached
	// or answered with a server-side failure.
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"

	// CodeAuthenticationFailed indicates the provider rejected the credential.
	CodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"

	// CodeSchemaViolation indicates a structured completion did not match its schema.
	CodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// CodeInvalidToolArguments indicates tool arguments failed validation.
	CodeInvalidToolArguments ErrorCode = "INVALID_TOOL_ARGUMENTS"

	// CodeToolExecutionFailed indicates a tool executor failed.
	CodeToolExecutionFailed ErrorCode = "TOOL_EXECUTION_FAILED"

	// CodeSessionStore indicates a session persistence failure.
	CodeSessionStore ErrorCode = "SESSION_STORE_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"
)

// SkycastError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type SkycastError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *SkycastError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *SkycastError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *SkycastError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Attributes  map[string]string      `json:"attributes,omitempty"`
	}{
		Message:     e.Message,
		Code:        string(e.Code),
		Err:         cause,
		Recoverable: e.Recoverable,
		Context:     e.Context,
		Attributes:  e.Attributes,
	})
}

// New creates a new SkycastError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *SkycastError {
	return &SkycastError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *SkycastError) WithContext(key string, value interface{}) *SkycastError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *SkycastError) WithAttribute(key, value string) *SkycastError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *SkycastError) WithRecoverable(recoverable bool) *SkycastError {
	e.Recoverable = recoverable
	return e
}

// AsSkycastError returns the first SkycastError in err's chain, or wraps err
// as an internal error.
func AsSkycastError(err error) *SkycastError {
	if err == nil {
		return nil
	}
	var se *SkycastError
	if stderrors.As(err, &se) {
		return se
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the first SkycastError in err's chain.
// It returns an empty code for nil and CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsSkycastError(err).Code
}

// Is reports whether err's chain contains a SkycastError with the given code.
func Is(err error, code ErrorCode) bool {
	var se *SkycastError
	for err != nil {
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Err
	}
	return false
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *SkycastError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeInvalidInput, CodeInvalidToolArguments:
		return 400
	case CodeAuthenticationFailed:
		return 401
	case CodeTimeout:
		return 408
	case CodeProviderUnavailable, CodeToolExecutionFailed:
		return 502
	default:
		return 500
	}
}
