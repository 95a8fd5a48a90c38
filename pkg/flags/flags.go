// Package flags exposes the feature gates that select between baseline and
// enhanced behavior for retry, timeout, queue admission and metrics. Each gate
// reads its environment variable on every call so behavior can be toggled
// between runs without code changes.
package flags

import (
	"os"
	"strings"
)

const (
	EnvAdvancedRetry        = "CP2_ADVANCED_RETRY_ENABLED"
	EnvCompleteTimeout      = "CP2_COMPLETE_TIMEOUT_ENABLED"
	EnvQueueManagement      = "CP2_QUEUE_MANAGEMENT_ENABLED"
	EnvObservabilityMetrics = "CP2_OBSERVABILITY_METRICS_ENABLED"
)

// AdvancedRetryEnabled gates exponential backoff, error classification and the
// retry budget.
func AdvancedRetryEnabled() bool {
	return envBool(EnvAdvancedRetry)
}

// CompleteTimeoutEnabled gates per-operation FS timeouts and the split HTTP
// connect/total timeouts.
func CompleteTimeoutEnabled() bool {
	return envBool(EnvCompleteTimeout)
}

// QueueManagementEnabled gates the bounded pool queue and its rejection path.
func QueueManagementEnabled() bool {
	return envBool(EnvQueueManagement)
}

// ObservabilityMetricsEnabled gates the /metrics endpoint and the step metric
// families.
func ObservabilityMetricsEnabled() bool {
	return envBool(EnvObservabilityMetrics)
}

// envBool treats "true", "1" and "yes" (case-insensitive) as true; anything
// else, including unset, is false.
func envBool(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
