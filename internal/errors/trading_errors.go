package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Critical errors that should stop the engine
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryCredentials   ErrorCategory = "CREDENTIALS"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Trading-policy errors
	ErrorCategoryValidation    ErrorCategory = "VALIDATION"     // malformed input, rejected locally
	ErrorCategoryRiskLimit     ErrorCategory = "RISK_LIMIT"     // sizing limit or circuit breaker, new entries suppressed
	ErrorCategoryExecution     ErrorCategory = "EXECUTION"      // broker reject or fill timeout
	ErrorCategoryProtectionGap ErrorCategory = "PROTECTION_GAP" // open position without an active stop
	ErrorCategoryAdvisory      ErrorCategory = "ADVISORY"       // advisor unavailable, fail open

	// Transient errors
	ErrorCategoryNetwork   ErrorCategory = "NETWORK"
	ErrorCategoryTimeout   ErrorCategory = "TIMEOUT"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
	ErrorCategoryTemporary ErrorCategory = "TEMPORARY"
)

// TradingError represents a categorized error with context
type TradingError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *TradingError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s in %s: %v", e.Category, e.Component, e.Message, e.Operation, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s in %s", e.Category, e.Component, e.Message, e.Operation)
}

// Unwrap returns the underlying error for error unwrapping
func (e *TradingError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *TradingError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should stop the engine
func (e *TradingError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal ||
		e.Category == ErrorCategoryCredentials ||
		e.Category == ErrorCategoryConfiguration
}

// New creates a new categorized trading error
func New(category ErrorCategory, component, operation, message string) *TradingError {
	return &TradingError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with trading error context
func Wrap(err error, category ErrorCategory, component, operation string) *TradingError {
	if err == nil {
		return nil
	}

	return &TradingError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext adds context information to the error
func (e *TradingError) WithContext(key string, value interface{}) *TradingError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable sets the retryable flag
func (e *TradingError) WithRetryable(retryable bool) *TradingError {
	e.Retryable = retryable
	return e
}

// isRetryableCategory determines if an error category is generally retryable
func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryTemporary, ErrorCategoryRateLimit:
		return true
	case ErrorCategoryExecution:
		return true // a single retry, the executor enforces the cap
	default:
		return false
	}
}

// Categorize attempts to categorize a generic error from its message
func Categorize(err error, component, operation string) *TradingError {
	if err == nil {
		return nil
	}

	if tradingErr, ok := err.(*TradingError); ok {
		return tradingErr
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "context deadline exceeded") {
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	}

	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dns") || strings.Contains(errMsg, "dial") {
		return Wrap(err, ErrorCategoryNetwork, component, operation)
	}

	if strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "api secret") ||
		strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "unauthorized") {
		return Wrap(err, ErrorCategoryCredentials, component, operation)
	}

	if strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests") {
		return Wrap(err, ErrorCategoryRateLimit, component, operation)
	}

	if strings.Contains(errMsg, "insufficient") || strings.Contains(errMsg, "rejected") {
		return Wrap(err, ErrorCategoryExecution, component, operation).WithRetryable(false)
	}

	if strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "constraint") ||
		strings.Contains(errMsg, "minimum") || strings.Contains(errMsg, "maximum") {
		return Wrap(err, ErrorCategoryValidation, component, operation)
	}

	return Wrap(err, ErrorCategoryTemporary, component, operation)
}

// Common error constructors

func NewValidationError(component, operation, message string) *TradingError {
	return New(ErrorCategoryValidation, component, operation, message)
}

func NewRiskLimitBreach(component, operation, message string) *TradingError {
	return New(ErrorCategoryRiskLimit, component, operation, message)
}

func NewExecutionFailure(component, operation string, err error) *TradingError {
	return Wrap(err, ErrorCategoryExecution, component, operation)
}

func NewProtectionGap(component, symbol string) *TradingError {
	return New(ErrorCategoryProtectionGap, component, "protect_position", "position has no active stop").
		WithContext("symbol", symbol)
}

func NewAdvisoryUnavailable(component string, err error) *TradingError {
	return Wrap(err, ErrorCategoryAdvisory, component, "validate_trade")
}

func NewConfigurationError(component, operation, message string) *TradingError {
	return New(ErrorCategoryConfiguration, component, operation, message)
}
