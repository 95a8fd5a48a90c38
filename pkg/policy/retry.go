// Package policy holds the retry and timeout policies shared by every
// executor. Both policies consult the feature gates on each call, so a single
// process can flip between legacy and enhanced behavior between assignments.
package policy

import (
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/flags"
)

// RetryConfig parameterizes one retry loop. TotalTimeoutMS comes from the
// request's timeout_ms; MaxRetries from its retry_count.
type RetryConfig struct {
	BaseDelayMS    int64
	MaxDelayMS     int64
	TotalTimeoutMS int64
	MaxRetries     int32
}

// DefaultRetryConfig returns the baseline configuration: 100ms base, 5s cap,
// 30s budget, 3 retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseDelayMS:    100,
		MaxDelayMS:     5000,
		TotalTimeoutMS: 30000,
		MaxRetries:     3,
	}
}

// RetryPolicy computes backoff delays, classifies errors and tracks the
// wall-clock retry budget for one assignment.
type RetryPolicy struct {
	cfg RetryConfig
}

// NewRetryPolicy builds a policy, filling zero fields from the defaults.
func NewRetryPolicy(cfg RetryConfig) RetryPolicy {
	def := DefaultRetryConfig()

	if cfg.BaseDelayMS <= 0 {
		cfg.BaseDelayMS = def.BaseDelayMS
	}

	if cfg.MaxDelayMS <= 0 {
		cfg.MaxDelayMS = def.MaxDelayMS
	}

	if cfg.TotalTimeoutMS <= 0 {
		cfg.TotalTimeoutMS = def.TotalTimeoutMS
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return RetryPolicy{cfg: cfg}
}

// BackoffDelayMS returns the delay to sleep before retrying after the given
// zero-based attempt. Legacy behavior is linear (100ms * (attempt+1)); with
// advanced retry enabled it is base*2^attempt capped at MaxDelayMS.
func (p RetryPolicy) BackoffDelayMS(attempt int32) int64 {
	if !flags.AdvancedRetryEnabled() {
		return 100 * int64(attempt+1)
	}

	if attempt >= 62 {
		return p.cfg.MaxDelayMS
	}

	delay := p.cfg.BaseDelayMS << uint(attempt)
	if delay <= 0 || delay > p.cfg.MaxDelayMS {
		return p.cfg.MaxDelayMS
	}

	return delay
}

// IsRetryable classifies an attempt outcome. httpStatus is the parsed
// status_code output for HTTP steps, zero otherwise. Legacy behavior retries
// everything. With advanced retry enabled: 4xx is terminal, 5xx retryable;
// network errors retryable; validation, permission and cancellation codes
// terminal; execution and system codes retryable; unknown codes retryable.
func (p RetryPolicy) IsRetryable(code core.ErrorCode, httpStatus int) bool {
	if !flags.AdvancedRetryEnabled() {
		return true
	}

	if httpStatus >= 400 && httpStatus < 500 {
		return false
	}

	if httpStatus >= 500 {
		return true
	}

	if code.IsValidation() {
		return false
	}

	switch code {
	case core.ErrNetworkError, core.ErrConnectionTimeout:
		return true
	case core.ErrPermissionDenied:
		return false
	case core.ErrExecutionFailed, core.ErrResourceUnavailable:
		return true
	case core.ErrInternalError, core.ErrSystemOverload:
		return true
	case core.ErrCancelledByUser, core.ErrCancelledByTimeout:
		return false
	default:
		// Unknown codes fail open so a new error class never strands work.
		return true
	}
}

// IsBudgetExhausted reports whether the next attempt must not start. The
// budget accounts for the backoff sleep before it happens: the check is true
// once either the elapsed time or elapsed time plus the next backoff reaches
// the total budget. Legacy behavior has no budget.
func (p RetryPolicy) IsBudgetExhausted(elapsedMS int64, attempt int32) bool {
	if !flags.AdvancedRetryEnabled() {
		return false
	}

	if elapsedMS >= p.cfg.TotalTimeoutMS {
		return true
	}

	return elapsedMS+p.BackoffDelayMS(attempt) >= p.cfg.TotalTimeoutMS
}

// MaxRetries returns the maximum number of attempts excluding the first.
func (p RetryPolicy) MaxRetries() int32 {
	return p.cfg.MaxRetries
}

// TotalTimeoutMS returns the wall-clock budget across all attempts.
func (p RetryPolicy) TotalTimeoutMS() int64 {
	return p.cfg.TotalTimeoutMS
}
