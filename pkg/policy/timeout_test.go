package policy_test

import (
	"testing"

	"github.com/rustkas/beamline-worker/pkg/flags"
	"github.com/rustkas/beamline-worker/pkg/policy"
	"github.com/stretchr/testify/assert"
)

func TestFSTimeoutsDisabledWithoutFlag(t *testing.T) {
	t.Setenv(flags.EnvCompleteTimeout, "false")

	assert.Equal(t, int64(0), policy.FSTimeoutMS(policy.FSOpRead))
	assert.Equal(t, int64(0), policy.FSTimeoutMS(policy.FSOpWrite))
	assert.Equal(t, int64(0), policy.HTTPConnectTimeoutMS())
	assert.Equal(t, int64(7000), policy.HTTPTotalTimeoutMS(7000))
}

func TestFSTimeoutsPerOperation(t *testing.T) {
	t.Setenv(flags.EnvCompleteTimeout, "true")

	tests := []struct {
		operation string
		expected  int64
	}{
		{operation: policy.FSOpRead, expected: 5000},
		{operation: "fs.blob_get", expected: 5000},
		{operation: policy.FSOpWrite, expected: 10000},
		{operation: "fs.blob_put", expected: 10000},
		{operation: policy.FSOpDelete, expected: 3000},
		{operation: "stat", expected: 5000},
	}

	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.FSTimeoutMS(tt.operation))
		})
	}
}

func TestHTTPTimeoutsWithFlag(t *testing.T) {
	t.Setenv(flags.EnvCompleteTimeout, "true")

	assert.Equal(t, int64(5000), policy.HTTPConnectTimeoutMS())
	assert.Equal(t, int64(12000), policy.HTTPTotalTimeoutMS(7000))
}
