package contract

import (
	"encoding/json"
	"strconv"

	"github.com/rustkas/beamline-worker/pkg/core"
)

// StatusString maps a step status onto its wire representation.
func StatusString(status core.StepStatus) string {
	switch status {
	case core.StatusOK:
		return "success"
	case core.StatusError:
		return "error"
	case core.StatusTimeout:
		return "timeout"
	case core.StatusCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// ErrorCodeString maps an error code onto its upper-snake-case wire string.
func ErrorCodeString(code core.ErrorCode) string {
	switch code {
	case core.ErrNone:
		return "NONE"
	case core.ErrInvalidInput:
		return "INVALID_INPUT"
	case core.ErrMissingRequiredField:
		return "MISSING_REQUIRED_FIELD"
	case core.ErrInvalidFormat:
		return "INVALID_FORMAT"
	case core.ErrExecutionFailed:
		return "EXECUTION_FAILED"
	case core.ErrResourceUnavailable:
		return "RESOURCE_UNAVAILABLE"
	case core.ErrPermissionDenied:
		return "PERMISSION_DENIED"
	case core.ErrQuotaExceeded:
		return "QUOTA_EXCEEDED"
	case core.ErrNetworkError:
		return "NETWORK_ERROR"
	case core.ErrConnectionTimeout:
		return "CONNECTION_TIMEOUT"
	case core.ErrHTTPError:
		return "HTTP_ERROR"
	case core.ErrInternalError:
		return "INTERNAL_ERROR"
	case core.ErrSystemOverload:
		return "SYSTEM_OVERLOAD"
	case core.ErrCancelledByUser:
		return "CANCELLED_BY_USER"
	case core.ErrCancelledByTimeout:
		return "CANCELLED_BY_TIMEOUT"
	default:
		return "UNKNOWN_ERROR"
	}
}

type jobEnvelope struct {
	Type string `json:"type"`
}

// ToExecResult converts a step result into the version-1 exec-result mapping
// published on the result subject. Correlation IDs appear only when
// non-empty; error_code and error_message only on error status. Cost is a
// placeholder in this schema version.
func ToExecResult(res core.StepResult, assignmentID, requestID, providerID, jobType string) map[string]string {
	job, _ := json.Marshal(jobEnvelope{Type: jobType})

	out := map[string]string{
		"version":       SchemaVersion,
		"assignment_id": assignmentID,
		"request_id":    requestID,
		"status":        StatusString(res.Status),
		"provider_id":   providerID,
		"job":           string(job),
		"latency_ms":    strconv.FormatInt(res.LatencyMS, 10),
		"cost":          "0.0",
	}

	if res.Metadata.TraceID != "" {
		out["trace_id"] = res.Metadata.TraceID
	}

	if res.Metadata.RunID != "" {
		out["run_id"] = res.Metadata.RunID
	}

	if res.Metadata.TenantID != "" {
		out["tenant_id"] = res.Metadata.TenantID
	}

	if res.Status == core.StatusError {
		out["error_code"] = ErrorCodeString(res.ErrorCode)
		if res.ErrorMessage != "" {
			out["error_message"] = res.ErrorMessage
		}
	}

	return out
}
