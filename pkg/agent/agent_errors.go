// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"github.com/jllopis/skycast/pkg/errors"
)

// WrapTurnError adds agent and model context to a completion failure.
// Typed provider errors keep their code; anything else becomes
// CodeProviderUnavailable.
func WrapTurnError(err error, agentName, model string) *errors.SkycastError {
	if err == nil {
		return nil
	}
	var se *errors.SkycastError
	if errors.CodeOf(err) == errors.CodeInternal {
		se = errors.New(errors.CodeProviderUnavailable, "completion failed", err).WithRecoverable(true)
	} else {
		se = errors.AsSkycastError(err)
	}
	se = se.WithContext("agent", agentName)
	if model != "" {
		se = se.WithContext("model", model).WithAttribute("llm.model", model)
	}
	return se
}
