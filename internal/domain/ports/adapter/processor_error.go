package adapter

import "fmt"

// ErrorCategory is the narrow set of domain-safe failure classes provider
// errors are translated into at the adapter boundary; the core never sees
// provider-specific error types.
type ErrorCategory string

const (
	CategoryDeclined       ErrorCategory = "declined"
	CategoryRateLimited    ErrorCategory = "rate_limited"
	CategoryInvalidRequest ErrorCategory = "invalid_request"
	CategoryUnavailable    ErrorCategory = "transient_unavailable"
	CategoryConfig         ErrorCategory = "configuration_error"
	CategoryNetwork        ErrorCategory = "network_error"
)

type ProcessorError struct {
	Processor string
	Category  ErrorCategory
	Code      string // provider code, informational only
	Err       error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", e.Processor, e.Category, e.Code, e.Err)
}

func (e *ProcessorError) Unwrap() error { return e.Err }

func NewProcessorError(processor string, category ErrorCategory, code string, err error) *ProcessorError {
	return &ProcessorError{Processor: processor, Category: category, Code: code, Err: err}
}

// IsTransient reports whether a retry against another processor (or later
// against the same one) can plausibly succeed.
func (e *ProcessorError) IsTransient() bool {
	switch e.Category {
	case CategoryUnavailable, CategoryNetwork, CategoryRateLimited:
		return true
	}
	return false
}
