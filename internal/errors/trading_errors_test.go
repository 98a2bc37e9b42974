package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCategoryRetryability tests that transient categories retry and policy
// categories do not
func TestCategoryRetryability(t *testing.T) {
	retryable := []ErrorCategory{
		ErrorCategoryNetwork, ErrorCategoryTimeout,
		ErrorCategoryTemporary, ErrorCategoryRateLimit, ErrorCategoryExecution,
	}
	for _, cat := range retryable {
		assert.True(t, New(cat, "test", "op", "boom").IsRetryable(), string(cat))
	}

	terminal := []ErrorCategory{
		ErrorCategoryValidation, ErrorCategoryRiskLimit,
		ErrorCategoryProtectionGap, ErrorCategoryFatal, ErrorCategoryConfiguration,
	}
	for _, cat := range terminal {
		assert.False(t, New(cat, "test", "op", "boom").IsRetryable(), string(cat))
	}
}

// TestIsFatal tests that only engine-stopping categories report fatal
func TestIsFatal(t *testing.T) {
	assert.True(t, New(ErrorCategoryCredentials, "broker", "auth", "bad key").IsFatal())
	assert.True(t, New(ErrorCategoryConfiguration, "config", "load", "missing").IsFatal())
	assert.False(t, New(ErrorCategoryNetwork, "broker", "quote", "down").IsFatal())
}

// TestWrap_PreservesUnderlying tests error chain unwrapping
func TestWrap_PreservesUnderlying(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	wrapped := Wrap(inner, ErrorCategoryNetwork, "broker", "connect")

	assert.True(t, errors.Is(wrapped, inner))
	assert.Contains(t, wrapped.Error(), "NETWORK")
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.Nil(t, Wrap(nil, ErrorCategoryNetwork, "broker", "connect"))
}

// TestCategorize_FromMessage tests text-based categorization of generic
// errors coming back from broker SDKs
func TestCategorize_FromMessage(t *testing.T) {
	cases := []struct {
		msg       string
		category  ErrorCategory
		retryable bool
	}{
		{"context deadline exceeded", ErrorCategoryTimeout, true},
		{"dial tcp: connection reset by peer", ErrorCategoryNetwork, true},
		{"unauthorized: api key expired", ErrorCategoryCredentials, false},
		{"429 too many requests", ErrorCategoryRateLimit, true},
		{"order rejected: insufficient buying power", ErrorCategoryExecution, false},
		{"invalid quantity", ErrorCategoryValidation, false},
		{"something odd happened", ErrorCategoryTemporary, true},
	}

	for _, tc := range cases {
		err := Categorize(fmt.Errorf("%s", tc.msg), "broker", "submit")
		assert.Equal(t, tc.category, err.Category, tc.msg)
		assert.Equal(t, tc.retryable, err.IsRetryable(), tc.msg)
	}
}

// TestCategorize_PassesThroughTradingErrors tests that already-categorized
// errors keep their category
func TestCategorize_PassesThroughTradingErrors(t *testing.T) {
	original := NewRiskLimitBreach("risk", "check", "daily loss limit")
	assert.Same(t, original, Categorize(original, "engine", "evaluate"))
	assert.Nil(t, Categorize(nil, "engine", "evaluate"))
}

// TestWithContext tests the fluent context builder
func TestWithContext(t *testing.T) {
	err := NewProtectionGap("lifecycle", "AAPL")
	assert.Equal(t, "AAPL", err.Context["symbol"])

	err = err.WithContext("attempts", 2).WithRetryable(true)
	assert.Equal(t, 2, err.Context["attempts"])
	assert.True(t, err.IsRetryable())
}
