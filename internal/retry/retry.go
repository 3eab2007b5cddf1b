package retry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/portfolio-tracker/internal/logging"
)

// Backoff selects how the delay grows between attempts
type Backoff string

const (
	// BackoffLinear waits base*attempt: 2s, 4s, 6s...
	BackoffLinear Backoff = "linear"
	// BackoffExponential waits base*multiplier^(attempt-1), capped at MaxDelay
	BackoffExponential Backoff = "exponential"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts  int           // Maximum number of attempts
	InitialDelay time.Duration // Delay unit for the first retry
	MaxDelay     time.Duration // Cap on any single delay, zero for no cap
	Multiplier   float64       // Multiplier for exponential backoff
	Backoff      Backoff
}

// DefaultRetryConfig returns the quote fetch policy: 3 attempts, linear 2s steps
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		Backoff:      BackoffLinear,
	}
}

// ConnectRetryConfig is used for infrastructure dials at startup.
// Pattern: 500ms, 1s, 2s, 4s, max 5s
func ConnectRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Backoff:      BackoffExponential,
	}
}

// Delay returns how long to wait after the given failed attempt (1-based)
func (c *RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var delay float64
	switch c.Backoff {
	case BackoffExponential:
		mult := c.Multiplier
		if mult <= 0 {
			mult = 2.0
		}
		delay = float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1))
	default:
		delay = float64(c.InitialDelay) * float64(attempt)
	}

	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	return time.Duration(delay)
}

// Sleeper waits for d or until ctx is done. Tests substitute a recorder.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context, attempt int) error

// WithBackoff executes fn until it succeeds, attempts run out, or ctx ends
func WithBackoff(ctx context.Context, config *RetryConfig, sleep Sleeper, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx)
	startTime := time.Now()
	if sleep == nil {
		sleep = SleepContext
	}

	result := &RetryResult{}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)
			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration,
				}).Info("Operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if attempt >= config.MaxAttempts {
			logger.WithFields(map[string]interface{}{
				"attempts": attempt,
				"error":    err.Error(),
			}).Warn("Operation failed after max retry attempts")
			break
		}

		delay := config.Delay(attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": config.MaxAttempts,
			"delay":       delay,
			"backoff":     config.Backoff,
			"error":       err.Error(),
		}).Debug("Operation failed, retrying")

		if serr := sleep(ctx, delay); serr != nil {
			logger.WithError(serr).Warn("Retry cancelled during backoff")
			result.LastError = serr
			break
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// WithRetry is a simpler retry function that returns an error on failure
func WithRetry(ctx context.Context, config *RetryConfig, fn RetryFunc) error {
	result := WithBackoff(ctx, config, SleepContext, fn)
	if !result.Success {
		return fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	return nil
}

// RetryStats tracks statistics about symbol resolutions
type RetryStats struct {
	TotalOperations int     `json:"totalOperations"`
	SuccessfulOps   int     `json:"successfulOps"`
	FailedOps       int     `json:"failedOps"`
	TotalRetries    int     `json:"totalRetries"`
	RateLimited     int     `json:"rateLimited"`
	AverageAttempts float64 `json:"averageAttempts"`
}

// RetryStatsTracker tracks retry statistics. Safe for concurrent use.
type RetryStatsTracker struct {
	mu    sync.Mutex
	stats RetryStats
}

// NewRetryStatsTracker creates a new retry stats tracker
func NewRetryStatsTracker() *RetryStatsTracker {
	return &RetryStatsTracker{}
}

// Record records one finished operation
func (rst *RetryStatsTracker) Record(attempts int, success bool, rateLimited int) {
	rst.mu.Lock()
	defer rst.mu.Unlock()

	rst.stats.TotalOperations++
	if success {
		rst.stats.SuccessfulOps++
	} else {
		rst.stats.FailedOps++
	}
	if attempts > 1 {
		rst.stats.TotalRetries += attempts - 1
	}
	rst.stats.RateLimited += rateLimited
	rst.stats.AverageAttempts = float64(rst.stats.TotalRetries+rst.stats.TotalOperations) / float64(rst.stats.TotalOperations)
}

// GetStats returns the current retry statistics
func (rst *RetryStatsTracker) GetStats() RetryStats {
	rst.mu.Lock()
	defer rst.mu.Unlock()
	return rst.stats
}

// Reset resets the retry statistics
func (rst *RetryStatsTracker) Reset() {
	rst.mu.Lock()
	defer rst.mu.Unlock()
	rst.stats = RetryStats{}
}
