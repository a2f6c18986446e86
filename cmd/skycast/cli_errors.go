// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/jllopis/skycast/pkg/errors"
)

// CLIError wraps SkycastError with a hint for the operator.
type CLIError struct {
	*errors.SkycastError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(se *errors.SkycastError, hint string) *CLIError {
	return &CLIError{SkycastError: se, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.SkycastError == nil {
		return "unknown error"
	}
	msg := e.SkycastError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// PrintError prints the error to stderr.
func (e *CLIError) PrintError() {
	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", e.SkycastError.Code, e.SkycastError.Message)
	if e.Hint != "" {
		fmt.Fprintf(os.Stderr, "  Hint: %s\n", e.Hint)
	}
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	se := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg)
	return NewCLIError(se, "run 'skycast help' for usage information")
}

// NewConfigError wraps a load or validation failure. Missing credentials get
// a hint naming the variable to set.
func NewConfigError(err error, configPath string) *CLIError {
	se := errors.AsSkycastError(err)
	if se.Code != errors.CodeConfiguration {
		se = errors.New(errors.CodeConfiguration, "configuration error", err)
	}

	hint := "check your configuration file and SKYCAST_* variables"
	switch se.Context["key"] {
	case "llm.api_key":
		hint = "set GEMINI_API_KEY in the environment or a .env file"
	case "weather.api_key":
		hint = "set WEATHER_API_KEY in the environment or a .env file"
	default:
		if configPath != "" {
			hint = fmt.Sprintf("check %s for errors", configPath)
		}
	}
	return NewCLIError(se, hint)
}

// PrintSimpleError prints errors that carry no hint.
func PrintSimpleError(err error) {
	se := errors.AsSkycastError(err)
	if se.Code == errors.CodeInternal && se.Message == "wrapped error" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", se.Code, err.Error())
}
