package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/flags"
	"github.com/rustkas/beamline-worker/pkg/obs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resultCollector is a thread-safe ResultSink for tests.
type resultCollector struct {
	mu      sync.Mutex
	results []core.StepResult
	order   []string
	done    chan struct{}
}

func newResultCollector() *resultCollector {
	return &resultCollector{done: make(chan struct{}, 64)}
}

func (c *resultCollector) sink(task Task, res core.StepResult) {
	c.mu.Lock()
	c.results = append(c.results, res)
	c.order = append(c.order, task.Ctx.StepID)
	c.mu.Unlock()

	c.done <- struct{}{}
}

func (c *resultCollector) wait(t *testing.T, n int) {
	t.Helper()

	for range n {
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}
}

func poolTask(stepID string) Task {
	return Task{
		Req: core.StepRequest{Type: "http.request", TimeoutMS: 5000},
		Ctx: core.BlockContext{TenantID: "ten-1", StepID: stepID},
	}
}

func gaugeValue(t *testing.T, o *obs.Observability, name, pool string) float64 {
	t.Helper()

	return counterValue(t, o, name, map[string]string{"resource_pool": pool})
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	t.Setenv(flags.EnvQueueManagement, "true")

	o := obs.New("worker-test")
	release := make(chan struct{})

	execute := func(_ context.Context, _ Task) core.StepResult {
		<-release

		return core.Success(core.ResultMetadata{}, nil, 1)
	}

	collector := newResultCollector()
	pool := NewPool(PoolConfig{Class: core.ResourceCPU, MaxConcurrency: 1, MaxQueueSize: 2}, o, execute, collector.sink)
	pool.Start(context.Background())

	defer pool.Stop()

	admissions := make([]bool, 4)
	acked := make(chan struct{}, 4)

	for i := range 4 {
		pool.Submit(poolTask(fmt.Sprintf("step-%d", i)), func(admitted bool) {
			admissions[i] = admitted
			acked <- struct{}{}
		})
	}

	for range 4 {
		select {
		case <-acked:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for admission decisions")
		}
	}

	assert.Equal(t, []bool{true, true, true, false}, admissions)

	// One dispatched, two queued, one rejected.
	assert.Equal(t, 2.0, gaugeValue(t, o, "worker_queue_depth", "cpu"))
	assert.Equal(t, 1.0, gaugeValue(t, o, "worker_active_tasks", "cpu"))

	close(release)
	collector.wait(t, 3)

	assert.Equal(t, 0.0, gaugeValue(t, o, "worker_queue_depth", "cpu"))
	assert.Len(t, collector.results, 3)
}

func TestPoolDispatchesFIFO(t *testing.T) {
	t.Setenv(flags.EnvQueueManagement, "true")

	o := obs.New("worker-test")
	release := make(chan struct{}, 16)

	execute := func(_ context.Context, _ Task) core.StepResult {
		<-release

		return core.Success(core.ResultMetadata{}, nil, 1)
	}

	collector := newResultCollector()
	pool := NewPool(PoolConfig{Class: core.ResourceIO, MaxConcurrency: 1, MaxQueueSize: 10}, o, execute, collector.sink)
	pool.Start(context.Background())

	defer pool.Stop()

	acked := make(chan struct{}, 5)

	for i := range 5 {
		pool.Submit(poolTask(fmt.Sprintf("step-%d", i)), func(bool) { acked <- struct{}{} })
	}

	for range 5 {
		<-acked
	}

	for range 5 {
		release <- struct{}{}
	}

	collector.wait(t, 5)

	assert.Equal(t, []string{"step-0", "step-1", "step-2", "step-3", "step-4"}, collector.order)
}

func TestPoolCancelRemovesQueuedEntries(t *testing.T) {
	t.Setenv(flags.EnvQueueManagement, "true")

	o := obs.New("worker-test")
	release := make(chan struct{})

	execute := func(_ context.Context, _ Task) core.StepResult {
		<-release

		return core.Success(core.ResultMetadata{}, nil, 1)
	}

	collector := newResultCollector()
	pool := NewPool(PoolConfig{Class: core.ResourceCPU, MaxConcurrency: 1, MaxQueueSize: 10}, o, execute, collector.sink)
	pool.Start(context.Background())

	defer pool.Stop()

	acked := make(chan struct{}, 3)

	pool.Submit(poolTask("step-running"), func(bool) { acked <- struct{}{} })
	pool.Submit(poolTask("step-doomed"), func(bool) { acked <- struct{}{} })
	pool.Submit(poolTask("step-kept"), func(bool) { acked <- struct{}{} })

	for range 3 {
		<-acked
	}

	pool.Cancel("step-doomed")
	collector.wait(t, 1)

	require.Len(t, collector.results, 1)
	cancelled := collector.results[0]
	assert.True(t, cancelled.IsCancelled())
	assert.Equal(t, core.ErrCancelledByUser, cancelled.ErrorCode)
	assert.Equal(t, "step-doomed", cancelled.Metadata.StepID)

	// The in-flight step is not interrupted; the remaining queued entry still
	// dispatches.
	close(release)
	collector.wait(t, 2)

	assert.Equal(t, []string{"step-doomed", "step-running", "step-kept"}, collector.order)
}

func TestPoolUnboundedWithoutQueueManagement(t *testing.T) {
	t.Setenv(flags.EnvQueueManagement, "false")

	o := obs.New("worker-test")
	release := make(chan struct{})

	execute := func(_ context.Context, _ Task) core.StepResult {
		<-release

		return core.Success(core.ResultMetadata{}, nil, 1)
	}

	collector := newResultCollector()
	pool := NewPool(PoolConfig{Class: core.ResourceCPU, MaxConcurrency: 1, MaxQueueSize: 2}, o, execute, collector.sink)
	pool.Start(context.Background())

	defer pool.Stop()

	acked := make(chan bool, 10)

	for i := range 10 {
		pool.Submit(poolTask(fmt.Sprintf("step-%d", i)), func(admitted bool) { acked <- admitted })
	}

	for range 10 {
		assert.True(t, <-acked)
	}

	close(release)
	collector.wait(t, 10)
}
