package core

// StepStatus is the closed set of terminal outcomes for a step execution.
type StepStatus int

const (
	StatusOK StepStatus = iota
	StatusError
	StatusTimeout
	StatusCancelled
)

// ErrorCode is the machine-readable error taxonomy. Codes are grouped into
// ranges: 1xxx validation, 2xxx execution, 3xxx network, 4xxx system, 5xxx
// cancellation.
type ErrorCode int

const (
	ErrNone ErrorCode = 0

	ErrInvalidInput         ErrorCode = 1001
	ErrMissingRequiredField ErrorCode = 1002
	ErrInvalidFormat        ErrorCode = 1003

	ErrExecutionFailed     ErrorCode = 2001
	ErrResourceUnavailable ErrorCode = 2002
	ErrPermissionDenied    ErrorCode = 2003
	ErrQuotaExceeded       ErrorCode = 2004

	ErrNetworkError      ErrorCode = 3001
	ErrConnectionTimeout ErrorCode = 3002
	ErrHTTPError         ErrorCode = 3003

	ErrInternalError  ErrorCode = 4001
	ErrSystemOverload ErrorCode = 4002

	ErrCancelledByUser    ErrorCode = 5001
	ErrCancelledByTimeout ErrorCode = 5002
)

// IsValidation reports whether the code sits in the 1xxx validation range.
func (c ErrorCode) IsValidation() bool {
	return c >= 1000 && c < 2000
}

// StepResult is the single shape every code path returns: success, validation
// failure, executor error, timeout and cancellation all produce one of these.
// Build results through the factory constructors; they guarantee the
// status/error-code invariants at the point of creation.
type StepResult struct {
	Status       StepStatus        `json:"status"`
	ErrorCode    ErrorCode         `json:"error_code"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     ResultMetadata    `json:"metadata"`
	LatencyMS    int64             `json:"latency_ms"`
	RetriesUsed  int32             `json:"retries_used"`
}

// Success builds an ok result carrying the step outputs.
func Success(meta ResultMetadata, outputs map[string]string, latencyMS int64) StepResult {
	return StepResult{
		Status:    StatusOK,
		ErrorCode: ErrNone,
		Outputs:   outputs,
		Metadata:  meta,
		LatencyMS: latencyMS,
	}
}

// ErrorResult builds an error result with a machine-readable code and a
// human-readable message.
func ErrorResult(code ErrorCode, message string, meta ResultMetadata, latencyMS int64) StepResult {
	return StepResult{
		Status:       StatusError,
		ErrorCode:    code,
		ErrorMessage: message,
		Metadata:     meta,
		LatencyMS:    latencyMS,
	}
}

// TimeoutResult builds a timeout result. The error code is always
// ErrCancelledByTimeout.
func TimeoutResult(meta ResultMetadata, latencyMS int64) StepResult {
	return StepResult{
		Status:    StatusTimeout,
		ErrorCode: ErrCancelledByTimeout,
		Metadata:  meta,
		LatencyMS: latencyMS,
	}
}

// CancelledResult builds a cancellation result. The error code defaults to
// ErrCancelledByUser.
func CancelledResult(meta ResultMetadata, latencyMS int64) StepResult {
	return StepResult{
		Status:    StatusCancelled,
		ErrorCode: ErrCancelledByUser,
		Metadata:  meta,
		LatencyMS: latencyMS,
	}
}

func (r StepResult) IsSuccess() bool   { return r.Status == StatusOK }
func (r StepResult) IsError() bool     { return r.Status == StatusError }
func (r StepResult) IsTimeout() bool   { return r.Status == StatusTimeout }
func (r StepResult) IsCancelled() bool { return r.Status == StatusCancelled }

// Validate reports whether the result satisfies the status/error-code
// invariants: ok carries no error code, every failure status carries one,
// timeout is always cancelled_by_timeout, and latency and retry counts are
// non-negative.
func Validate(r StepResult) bool {
	switch r.Status {
	case StatusOK:
		if r.ErrorCode != ErrNone {
			return false
		}
	case StatusError, StatusCancelled:
		if r.ErrorCode == ErrNone {
			return false
		}
	case StatusTimeout:
		if r.ErrorCode != ErrCancelledByTimeout {
			return false
		}
	default:
		return false
	}

	return r.LatencyMS >= 0 && r.RetriesUsed >= 0
}
