package runtime

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/flags"
	"github.com/rustkas/beamline-worker/pkg/obs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBlock replays a fixed sequence of results, one per attempt. The
// last result repeats when attempts outnumber the script.
type scriptedBlock struct {
	blockType string
	results   []core.StepResult
	delay     time.Duration
	calls     int
}

func (b *scriptedBlock) BlockType() string { return b.blockType }

func (b *scriptedBlock) ResourceClass() core.ResourceClass { return core.ResourceIO }

func (b *scriptedBlock) Init(_ context.Context, _ core.BlockContext) error { return nil }

func (b *scriptedBlock) Execute(_ context.Context, _ core.StepRequest, bctx core.BlockContext) core.StepResult {
	if b.delay > 0 {
		time.Sleep(b.delay)
	}

	idx := b.calls
	if idx >= len(b.results) {
		idx = len(b.results) - 1
	}

	b.calls++

	res := b.results[idx]
	res.Metadata = core.MetadataFromContext(bctx)

	return res
}

type panickyBlock struct{}

func (panickyBlock) BlockType() string { return "http.request" }

func (panickyBlock) ResourceClass() core.ResourceClass { return core.ResourceIO }

func (panickyBlock) Init(_ context.Context, _ core.BlockContext) error { return nil }

func (panickyBlock) Execute(_ context.Context, _ core.StepRequest, _ core.BlockContext) core.StepResult {
	panic("handler bug")
}

func httpError(status string) core.StepResult {
	res := core.ErrorResult(core.ErrHTTPError, "HTTP request failed with status: "+status, core.ResultMetadata{}, 1)
	res.Outputs = map[string]string{"status_code": status}

	return res
}

func testTask(timeoutMS int64, retries int32) Task {
	return Task{
		Req: core.StepRequest{
			Type:       "http.request",
			TimeoutMS:  timeoutMS,
			RetryCount: retries,
		},
		Ctx:          core.BlockContext{TenantID: "ten-1", StepID: "step-1"},
		AssignmentID: "as-1",
		RequestID:    "req-1",
		ProviderID:   "prov-1",
	}
}

func counterValue(t *testing.T, o *obs.Observability, name string, want map[string]string) float64 {
	t.Helper()

	families, err := o.Registry().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}

		for _, metric := range family.GetMetric() {
			labels := make(map[string]string)
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}

			matches := true

			for key, value := range want {
				if labels[key] != value {
					matches = false

					break
				}
			}

			if matches {
				return metricValue(metric)
			}
		}
	}

	return 0
}

func metricValue(m *dto.Metric) float64 {
	if m.GetCounter() != nil {
		return m.GetCounter().GetValue()
	}

	return m.GetGauge().GetValue()
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	t.Setenv(flags.EnvAdvancedRetry, "false")

	o := obs.New("worker-test")
	block := &scriptedBlock{
		blockType: "http.request",
		results: []core.StepResult{
			core.Success(core.ResultMetadata{}, map[string]string{"status_code": "200", "body": "hello"}, 1),
		},
	}

	exec := NewExecutor(block, o)
	res := exec.Execute(context.Background(), testTask(5000, 3))

	require.True(t, res.IsSuccess())
	assert.Equal(t, int32(0), res.RetriesUsed)
	assert.Equal(t, "200", res.Outputs["status_code"])
	assert.Equal(t, "hello", res.Outputs["body"])
	assert.Equal(t, 1, block.calls)

	assert.Equal(t, 1.0, counterValue(t, o, "worker_step_executions_total", map[string]string{
		"step_type":        "http.request",
		"execution_status": "success",
	}))
}

func TestExecuteRetriesServerErrorsUntilSuccess(t *testing.T) {
	t.Setenv(flags.EnvAdvancedRetry, "true")

	o := obs.New("worker-test")
	block := &scriptedBlock{
		blockType: "http.request",
		results: []core.StepResult{
			httpError("500"),
			httpError("500"),
			core.Success(core.ResultMetadata{}, map[string]string{"status_code": "200"}, 1),
		},
	}

	var sleeps []time.Duration

	exec := NewExecutor(block, o)
	exec.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	res := exec.Execute(context.Background(), testTask(5000, 3))

	require.True(t, res.IsSuccess())
	assert.Equal(t, int32(2), res.RetriesUsed)
	assert.Equal(t, 3, block.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeps)

	assert.Equal(t, 1.0, counterValue(t, o, "worker_step_executions_total", map[string]string{
		"step_type":        "http.request",
		"execution_status": "success",
	}))
	assert.Equal(t, 2.0, counterValue(t, o, "worker_step_errors_total", map[string]string{
		"step_type":  "http.request",
		"error_code": "3003",
	}))
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	t.Setenv(flags.EnvAdvancedRetry, "true")

	o := obs.New("worker-test")
	block := &scriptedBlock{blockType: "http.request", results: []core.StepResult{httpError("404")}}

	exec := NewExecutor(block, o)
	exec.sleep = func(time.Duration) { t.Fatal("must not sleep for a terminal error") }

	res := exec.Execute(context.Background(), testTask(5000, 3))

	require.True(t, res.IsError())
	assert.Equal(t, core.ErrHTTPError, res.ErrorCode)
	assert.Equal(t, int32(0), res.RetriesUsed)
	assert.Equal(t, 1, block.calls)
}

func TestExecuteStopsWhenBudgetExhausted(t *testing.T) {
	t.Setenv(flags.EnvAdvancedRetry, "true")

	o := obs.New("worker-test")
	block := &scriptedBlock{
		blockType: "http.request",
		delay:     120 * time.Millisecond,
		results: []core.StepResult{
			core.ErrorResult(core.ErrNetworkError, "hang", core.ResultMetadata{}, 120),
		},
	}

	exec := NewExecutor(block, o)
	exec.sleep = func(time.Duration) {}

	start := time.Now()
	res := exec.Execute(context.Background(), testTask(300, 10))
	elapsed := time.Since(start)

	require.True(t, res.IsTimeout())
	assert.Equal(t, core.ErrCancelledByTimeout, res.ErrorCode)
	assert.Equal(t, "retry budget exhausted", res.ErrorMessage)
	assert.GreaterOrEqual(t, res.RetriesUsed, int32(1))
	assert.LessOrEqual(t, int(res.RetriesUsed), block.calls+1)
	assert.Less(t, elapsed, 500*time.Millisecond)

	assert.Equal(t, 1.0, counterValue(t, o, "worker_step_executions_total", map[string]string{
		"step_type":        "http.request",
		"execution_status": "timeout",
	}))
}

func TestExecuteLastAttemptSurfacesAsIs(t *testing.T) {
	t.Setenv(flags.EnvAdvancedRetry, "true")

	o := obs.New("worker-test")
	block := &scriptedBlock{
		blockType: "http.request",
		results:   []core.StepResult{core.ErrorResult(core.ErrNetworkError, "unreachable", core.ResultMetadata{}, 1)},
	}

	exec := NewExecutor(block, o)
	exec.sleep = func(time.Duration) {}

	res := exec.Execute(context.Background(), testTask(60000, 2))

	require.True(t, res.IsError())
	assert.Equal(t, core.ErrNetworkError, res.ErrorCode)
	assert.Equal(t, int32(2), res.RetriesUsed)
	assert.Equal(t, 3, block.calls)
}

func TestExecuteConvertsHandlerPanic(t *testing.T) {
	t.Setenv(flags.EnvAdvancedRetry, "true")

	o := obs.New("worker-test")
	exec := NewExecutor(panickyBlock{}, o)
	exec.sleep = func(time.Duration) {}

	res := exec.Execute(context.Background(), testTask(60000, 1))

	require.True(t, res.IsError())
	assert.Equal(t, core.ErrExecutionFailed, res.ErrorCode)
	assert.Contains(t, res.ErrorMessage, "handler panic")
	assert.True(t, core.Validate(res))
}
