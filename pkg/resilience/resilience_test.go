// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jllopis/skycast/pkg/errors"
)

func transient() error {
	return errors.New(errors.CodeProviderUnavailable, "503", nil).WithRecoverable(true)
}

func fastConfig() RetryConfig {
	return DefaultRetryConfig().WithInitialDelay(time.Millisecond).WithMaxDelay(5 * time.Millisecond)
}

func TestRetrySuccess(t *testing.T) {
	attempts := 0
	err := fastConfig().Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return transient()
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	err := fastConfig().WithMaxAttempts(2).Do(context.Background(), func() error {
		attempts++
		return transient()
	})

	if !errors.Is(err, errors.CodeProviderUnavailable) {
		t.Errorf("expected last error, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetrySkipsNonRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "typed", err: errors.New(errors.CodeAuthenticationFailed, "bad key", nil)},
		{name: "untyped", err: stderrors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := fastConfig().Do(context.Background(), func() error {
				attempts++
				return tt.err
			})
			if err != tt.err {
				t.Errorf("expected original error, got %v", err)
			}
			if attempts != 1 {
				t.Errorf("expected 1 attempt, got %d", attempts)
			}
		})
	}
}

func TestNoRetry(t *testing.T) {
	attempts := 0
	_ = NoRetry().Do(context.Background(), func() error {
		attempts++
		return transient()
	})
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	cfg := DefaultRetryConfig().WithInitialDelay(time.Hour).WithMaxDelay(time.Hour)
	err := cfg.Do(ctx, func() error {
		attempts++
		cancel()
		return transient()
	})

	if !errors.Is(err, errors.CodeTimeout) {
		t.Errorf("expected TIMEOUT, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", transient()
		}
		return "sunny", nil
	})

	if err != nil || result != "sunny" {
		t.Errorf("expected sunny, got %q, %v", result, err)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	if d := calculateBackoff(1, cfg); d != time.Second {
		t.Errorf("first retry delay = %v, want 1s", d)
	}
	if d := calculateBackoff(5, cfg); d != 3*time.Second {
		t.Errorf("capped delay = %v, want 3s", d)
	}
}

func TestWithTimeout(t *testing.T) {
	v, err := WithTimeout(context.Background(), 0, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("expected 42, got %d, %v", v, err)
	}

	_, err = WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, errors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if !errors.AsSkycastError(err).Recoverable {
		t.Error("timeouts should be recoverable")
	}

	cause := errors.New(errors.CodeToolExecutionFailed, "404", nil)
	_, err = WithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 0, cause
	})
	if err != cause {
		t.Errorf("expected failure passed through, got %v", err)
	}
}
