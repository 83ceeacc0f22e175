package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(ErrCodeConnectionFailed, "Connection failed"),
			expected: "[FRPT1001] ERROR: Connection failed",
		},
		{
			name: "error with suggestions",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithSuggestions("Check network", "Verify DSN"),
			expected: "[FRPT1001] ERROR: Connection failed\nSuggestions:\n  1. Check network\n  2. Verify DSN",
		},
		{
			name: "error with context",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithContext("host", "example.com").
				WithContext("port", 443),
			expected: "[FRPT1001] ERROR: Connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ErrCodeConnectionFailed, tt.err.Code)
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("table OPPORTUNITIES does not exist")

	appErr := SourceError("Failed to read opportunities", "SELECT * FROM OPPORTUNITIES", baseErr)

	assert.Equal(t, baseErr, appErr.Cause)
	assert.Equal(t, ErrCodeSourceUnavailable, appErr.Code)
	assert.Equal(t, SeverityCritical, appErr.Severity)
	assert.NotEmpty(t, appErr.Suggestions)
	assert.True(t, stderrors.Is(appErr, baseErr))
	assert.True(t, stderrors.Is(appErr, New(ErrCodeSourceUnavailable, "")))
}

func TestWrapInheritsContext(t *testing.T) {
	inner := ConfigError("bad period", "reports.revenue_hierarchy.periods")
	outer := Wrap(inner, ErrCodeInternal, "run failed")

	assert.Equal(t, "reports.revenue_hierarchy.periods", outer.Context["field"])
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
}

func TestRetryLogic(t *testing.T) {
	attempts := 0
	maxAttempts := 3
	var notified []int

	config := &RetryConfig{
		MaxRetries:     maxAttempts - 1,
		InitialDelay:   10 * time.Millisecond,
		MaxDelay:       100 * time.Millisecond,
		Multiplier:     2.0,
		RetryableError: func(err error) bool { return true },
		OnRetry: func(attempt int, _ time.Duration, _ error) {
			notified = append(notified, attempt)
		},
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		if attempts < maxAttempts {
			return New(ErrCodeConnectionTimeout, "Timeout").AsRecoverable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, maxAttempts, attempts)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return New(ErrCodeAuthenticationFailed, "bad password")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeAuthenticationFailed, GetErrorCode(err))
}

func TestRetryExhausted(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:     1,
		InitialDelay:   time.Millisecond,
		MaxDelay:       time.Millisecond,
		Multiplier:     1,
		RetryableError: func(err error) bool { return true },
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		return fmt.Errorf("still down")
	})

	require.Error(t, err)
	assert.Equal(t, ErrCodeResourceExhausted, GetErrorCode(err))
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 100*time.Millisecond)
	ctx := context.Background()

	assert.Error(t, cb.Execute(ctx, func() error { return fmt.Errorf("failure 1") }))
	assert.Error(t, cb.Execute(ctx, func() error { return fmt.Errorf("failure 2") }))

	err := cb.Execute(ctx, func() error { return nil })
	require.Error(t, err)
	assert.Equal(t, ErrCodeServiceUnavailable, GetErrorCode(err))
	assert.Equal(t, "open", cb.GetState())

	time.Sleep(150 * time.Millisecond)

	assert.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, "closed", cb.GetState())
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, ErrCodeConnectionFailed, GetErrorCode(New(ErrCodeConnectionFailed, "Test")))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(fmt.Errorf("regular error")))
	assert.Equal(t, ErrCodeConfigInvalid, GetErrorCode(fmt.Errorf("wrapped: %w", ConfigError("x", "y"))))
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(New(ErrCodeTimeout, "slow").AsRecoverable()))
	assert.False(t, IsRecoverable(New(ErrCodeTimeout, "slow")))
	assert.False(t, IsRecoverable(fmt.Errorf("plain")))
}

func BenchmarkErrorCreation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = New(ErrCodeConnectionFailed, "Connection failed").
			WithContext("host", "example.com").
			WithSuggestions("Check connection")
	}
}
