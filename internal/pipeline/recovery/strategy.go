package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/vietddude/errwatch/internal/core/domain"
)

// Error carries a structured code used as the primary strategy key.
type Error struct {
	Code string
	Err  error
}

// NewError wraps err with a dispatch code.
func NewError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrFallbackFailed marks a fallback handler that could not recover.
var ErrFallbackFailed = errors.New("fallback failed")

// FallbackResult is what a fallback handler reports.
type FallbackResult struct {
	Success bool
	Message string
}

// FallbackFunc attempts a workaround for a failure.
type FallbackFunc func(ctx context.Context, err error, rc Context) (FallbackResult, error)

// Strategy maps an error signature to a recovery action. Code is matched
// first; Pattern runs against the lower-cased message.
type Strategy struct {
	Name       string
	Code       string
	Pattern    *regexp.Regexp
	Action     domain.RecoveryActionKind
	MaxRetries int
	Delay      time.Duration
	Fallback   FallbackFunc
}

// DefaultStrategies returns the stock table. cacheDir is cleared by the
// cache fallback.
func DefaultStrategies(cacheDir string) []Strategy {
	return []Strategy{
		{
			Name:       "rate-limit",
			Code:       "rate_limit",
			Pattern:    regexp.MustCompile(`rate limit|too many requests|\b429\b`),
			Action:     domain.ActionRetry,
			MaxRetries: 3,
			Delay:      2 * time.Second,
		},
		{
			Name:       "connection-refused",
			Code:       "connection_refused",
			Pattern:    regexp.MustCompile(`econnrefused|connection refused`),
			Action:     domain.ActionRetry,
			MaxRetries: 5,
			Delay:      2 * time.Second,
		},
		{
			Name:       "timeout",
			Code:       "timeout",
			Pattern:    regexp.MustCompile(`timeout|timed out|etimedout`),
			Action:     domain.ActionRetry,
			MaxRetries: 3,
			Delay:      time.Second,
		},
		{
			Name:       "network",
			Code:       "network",
			Pattern:    regexp.MustCompile(`network|econnreset|socket hang up`),
			Action:     domain.ActionRetry,
			MaxRetries: 3,
			Delay:      time.Second,
		},
		{
			Name:    "not-found",
			Code:    "not_found",
			Pattern: regexp.MustCompile(`not found|enoent|no such file`),
			Action:  domain.ActionSkip,
		},
		{
			Name:     "cache",
			Code:     "cache",
			Pattern:  regexp.MustCompile(`cache`),
			Action:   domain.ActionFallback,
			Fallback: ClearCacheFallback(cacheDir),
		},
		{
			Name:    "out-of-memory",
			Code:    "out_of_memory",
			Pattern: regexp.MustCompile(`out of memory|heap limit|\boom\b`),
			Action:  domain.ActionEscalate,
		},
	}
}

// ClearCacheFallback removes dir so the caller can rebuild it.
func ClearCacheFallback(dir string) FallbackFunc {
	return func(_ context.Context, _ error, _ Context) (FallbackResult, error) {
		if dir == "" {
			return FallbackResult{}, fmt.Errorf("%w: no cache directory configured", ErrFallbackFailed)
		}
		if err := os.RemoveAll(dir); err != nil {
			return FallbackResult{}, fmt.Errorf("%w: %v", ErrFallbackFailed, err)
		}
		return FallbackResult{Success: true, Message: "cleared cache at " + dir}, nil
	}
}

func (s Strategy) matches(lowerMsg string) bool {
	return s.Pattern != nil && s.Pattern.MatchString(lowerMsg)
}
