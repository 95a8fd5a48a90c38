package flags_test

import (
	"testing"

	"github.com/rustkas/beamline-worker/pkg/flags"
	"github.com/stretchr/testify/assert"
)

func TestEnvBoolParsing(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected bool
	}{
		{name: "true", value: "true", expected: true},
		{name: "TRUE", value: "TRUE", expected: true},
		{name: "one", value: "1", expected: true},
		{name: "yes", value: "yes", expected: true},
		{name: "Yes", value: "Yes", expected: true},
		{name: "false", value: "false", expected: false},
		{name: "zero", value: "0", expected: false},
		{name: "no", value: "no", expected: false},
		{name: "garbage", value: "enabled", expected: false},
		{name: "empty", value: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(flags.EnvAdvancedRetry, tt.value)
			assert.Equal(t, tt.expected, flags.AdvancedRetryEnabled())
		})
	}
}

func TestFlagsDefaultToFalse(t *testing.T) {
	t.Setenv(flags.EnvAdvancedRetry, "")
	t.Setenv(flags.EnvCompleteTimeout, "")
	t.Setenv(flags.EnvQueueManagement, "")
	t.Setenv(flags.EnvObservabilityMetrics, "")

	assert.False(t, flags.AdvancedRetryEnabled())
	assert.False(t, flags.CompleteTimeoutEnabled())
	assert.False(t, flags.QueueManagementEnabled())
	assert.False(t, flags.ObservabilityMetricsEnabled())
}

func TestFlagsReadPerCall(t *testing.T) {
	t.Setenv(flags.EnvQueueManagement, "false")
	assert.False(t, flags.QueueManagementEnabled())

	t.Setenv(flags.EnvQueueManagement, "true")
	assert.True(t, flags.QueueManagementEnabled())
}
