// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/skycast/pkg/errors"
)

// WithTimeout runs fn with a deadline of d. fn must honour ctx; when the
// deadline passes first the result is a CodeTimeout error. A zero d means no
// deadline.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	value, err := fn(ctx)
	if err != nil && stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, errors.New(errors.CodeTimeout, "operation exceeded timeout", err).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	}
	return value, err
}
