package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/portfolio-tracker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryProvider represents market-data provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryDegraded represents failures that were absorbed into degraded data
	CategoryDegraded ErrorCategory = "degraded"
)

// Error codes for the fetch taxonomy
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeNoData              = "NO_DATA"
	CodeInvalidResponse     = "INVALID_RESPONSE"
	CodeAllSourcesExhausted = "ALL_SOURCES_EXHAUSTED"
	CodeTotalFetchFailure   = "TOTAL_FETCH_FAILURE"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Is matches any CategorizedError with the same code, so the package
// sentinels work with errors.Is.
func (e *CategorizedError) Is(target error) bool {
	t, ok := target.(*CategorizedError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Sentinels for the fetch outcome taxonomy. Compare with errors.Is.
var (
	ErrRateLimited = &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    "provider rate limit exceeded",
	}
	ErrNoData = &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       CodeNoData,
		Message:    "provider returned no data",
	}
	ErrInvalidResponse = &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       CodeInvalidResponse,
		Message:    "provider returned an invalid response",
	}
	ErrAllSourcesExhausted = &CategorizedError{
		Category:   CategoryDegraded,
		StatusCode: http.StatusOK,
		Code:       CodeAllSourcesExhausted,
		Message:    "all candidate symbols exhausted",
	}
	ErrTotalFetchFailure = &CategorizedError{
		Category:   CategoryDegraded,
		StatusCode: http.StatusOK,
		Code:       CodeTotalFetchFailure,
		Message:    "no position could be resolved this cycle",
	}
)

func derive(base *CategorizedError, message string, cause error, details map[string]interface{}) *CategorizedError {
	if message == "" {
		message = base.Message
	}
	return &CategorizedError{
		Category:   base.Category,
		StatusCode: base.StatusCode,
		Code:       base.Code,
		Message:    message,
		Details:    details,
		Cause:      cause,
	}
}

// NewRateLimitedError reports provider throttling for a symbol
func NewRateLimitedError(symbol string, cause error) *CategorizedError {
	return derive(ErrRateLimited, fmt.Sprintf("provider rate limit exceeded for %s", symbol), cause,
		map[string]interface{}{"symbol": symbol})
}

// NewNoDataError reports an empty provider response for a symbol
func NewNoDataError(symbol string, reason string) *CategorizedError {
	return derive(ErrNoData, fmt.Sprintf("no data for %s: %s", symbol, reason), nil,
		map[string]interface{}{"symbol": symbol, "reason": reason})
}

// NewInvalidResponseError reports an unusable provider response for a symbol
func NewInvalidResponseError(symbol string, cause error) *CategorizedError {
	return derive(ErrInvalidResponse, fmt.Sprintf("invalid response for %s", symbol), cause,
		map[string]interface{}{"symbol": symbol})
}

// NewAllSourcesExhaustedError reports that every candidate failed
func NewAllSourcesExhaustedError(symbol string, candidates []string, cause error) *CategorizedError {
	return derive(ErrAllSourcesExhausted, fmt.Sprintf("all sources exhausted for %s", symbol), cause,
		map[string]interface{}{"symbol": symbol, "candidates": candidates})
}

// NewTotalFetchFailureError reports a cycle with zero usable records
func NewTotalFetchFailureError(total int) *CategorizedError {
	return derive(ErrTotalFetchFailure, fmt.Sprintf("unable to fetch data for any of %d positions", total), nil,
		map[string]interface{}{"total": total})
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// FetchOutcome classifies a single fetch attempt for the resolver
type FetchOutcome int

const (
	OutcomeSuccess FetchOutcome = iota
	OutcomeRateLimited
	OutcomeNoData
	OutcomeInvalid
)

// String returns the outcome name used in logs
func (o FetchOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeNoData:
		return "no_data"
	default:
		return "invalid_response"
	}
}

// ClassifyFetch maps a fetcher error to the outcome that drives retries.
// Anything unrecognised is treated as an invalid response.
func ClassifyFetch(err error) FetchOutcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case stderrors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case stderrors.Is(err, ErrNoData):
		return OutcomeNoData
	default:
		return OutcomeInvalid
	}
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryRateLimit, CategoryCache:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}
