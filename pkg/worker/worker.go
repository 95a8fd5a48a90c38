// Package worker wires the stages together: observability endpoints, one
// pool per resource class, one executor per registered block, the ingress and
// the bus subscriptions. It owns the shared configuration and forwards
// shutdown.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"github.com/rustkas/beamline-worker/pkg/contract"
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/eventbus"
	"github.com/rustkas/beamline-worker/pkg/ingress"
	"github.com/rustkas/beamline-worker/pkg/obs"
	"github.com/rustkas/beamline-worker/pkg/registry"
	"github.com/rustkas/beamline-worker/pkg/runtime"
)

type Worker struct {
	id       string
	cfg      core.WorkerConfig
	bus      eventbus.Bus
	registry *registry.Registry
	obs      *obs.Observability
	logger   *slog.Logger
	tracer   trace.Tracer

	executors map[string]*runtime.Executor
	pools     map[core.ResourceClass]*runtime.Pool
	ingress   *ingress.Ingress
}

func New(
	id string,
	cfg core.WorkerConfig,
	bus eventbus.Bus,
	reg *registry.Registry,
	observability *obs.Observability,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:       id,
		cfg:      cfg,
		bus:      bus,
		registry: reg,
		obs:      observability,
		logger:   logger.With("module", "worker", "worker_id", id),
	}
}

// WithTracer attaches an OpenTelemetry tracer to every executor.
func (w *Worker) WithTracer(tracer trace.Tracer) *Worker {
	w.tracer = tracer

	return w
}

// Start brings the worker up: endpoints, executors, pools, ingress and bus
// subscriptions. Endpoint bind failures are fatal and abort the start.
func (w *Worker) Start(ctx context.Context) error {
	healthAddr, metricsAddr, err := endpointAddrs(w.cfg.PrometheusEndpoint)
	if err != nil {
		return fmt.Errorf("invalid prometheus endpoint: %w", err)
	}

	if err := w.obs.StartHealthEndpoint(healthAddr); err != nil {
		return err
	}

	if err := w.obs.StartMetricsEndpoint(metricsAddr); err != nil {
		return err
	}

	if err := w.buildExecutors(); err != nil {
		return err
	}

	w.buildPools(ctx)

	submitters := make(map[core.ResourceClass]ingress.Submitter, len(w.pools))
	for class, pool := range w.pools {
		submitters[class] = pool
	}

	w.ingress = ingress.New(w.cfg, w.registry, w.bus, w.obs, submitters)

	w.bus.OnAssignment(w.ingress.HandleAssignment)
	w.bus.OnCancel(w.handleCancel)

	if err := w.bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	w.obs.SetHealthStatus("worker", true)
	w.logger.InfoContext(ctx, "Worker started",
		"block_types", w.registry.BlockTypes(),
		"health_addr", w.obs.HealthAddr(),
		"metrics_addr", w.obs.MetricsAddr(),
	)

	return nil
}

// Stop tears the worker down: pools first so no new results are produced,
// then the endpoints and the bus.
func (w *Worker) Stop(ctx context.Context) {
	for _, pool := range w.pools {
		pool.Stop()
	}

	w.obs.SetHealthStatus("worker", false)
	w.obs.Stop(ctx)

	if err := w.bus.Close(); err != nil {
		w.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}
}

// HealthAddr returns the bound health endpoint address.
func (w *Worker) HealthAddr() string {
	return w.obs.HealthAddr()
}

// MetricsAddr returns the bound metrics endpoint address.
func (w *Worker) MetricsAddr() string {
	return w.obs.MetricsAddr()
}

func (w *Worker) buildExecutors() error {
	w.executors = make(map[string]*runtime.Executor)

	for _, blockType := range w.registry.BlockTypes() {
		block, err := w.registry.CreateBlock(blockType)
		if err != nil {
			return fmt.Errorf("failed to create block %s: %w", blockType, err)
		}

		executor := runtime.NewExecutor(block, w.obs)
		if w.tracer != nil {
			executor.WithTracer(w.tracer)
		}

		w.executors[blockType] = executor
	}

	return nil
}

func (w *Worker) buildPools(ctx context.Context) {
	w.pools = make(map[core.ResourceClass]*runtime.Pool)

	for _, class := range []core.ResourceClass{core.ResourceCPU, core.ResourceGPU, core.ResourceIO} {
		pool := runtime.NewPool(runtime.PoolConfig{
			Class:          class,
			MaxConcurrency: w.cfg.PoolSize(class),
		}, w.obs, w.execute, w.publishResult)

		pool.Start(ctx)
		w.pools[class] = pool
	}
}

// execute dispatches a task to the executor of its step type. A type without
// an executor slipped past ingress validation; it is surfaced as a result,
// not a crash.
func (w *Worker) execute(ctx context.Context, task runtime.Task) core.StepResult {
	executor, ok := w.executors[task.Req.Type]
	if !ok {
		return core.ErrorResult(
			core.ErrExecutionFailed,
			"no executor for step type: "+task.Req.Type,
			core.MetadataFromContext(task.Ctx),
			0,
		)
	}

	return executor.Execute(ctx, task)
}

// publishResult converts the terminal result onto the wire schema and
// publishes it. At most one result is published per admitted assignment.
func (w *Worker) publishResult(task runtime.Task, res core.StepResult) {
	record := contract.ToExecResult(res, task.AssignmentID, task.RequestID, task.ProviderID, task.Req.Type)

	if err := w.bus.PublishResult(context.Background(), record); err != nil {
		w.obs.Logger().ErrorCtx("failed to publish result", task.Ctx, map[string]any{
			"assignment_id": task.AssignmentID,
			"error":         err.Error(),
		})
	}
}

// handleCancel broadcasts a step cancellation to every pool; queued entries
// for the step are removed, in-flight handlers keep running until their own
// timeouts fire.
func (w *Worker) handleCancel(_ context.Context, stepID string) error {
	for _, pool := range w.pools {
		pool.Cancel(stepID)
	}

	return nil
}

// endpointAddrs derives the health and metrics addresses from the base
// endpoint: health is base port+1, metrics base port+2.
func endpointAddrs(base string) (string, string, error) {
	host, portStr, err := net.SplitHostPort(base)
	if err != nil {
		return "", "", err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", "", err
	}

	health := net.JoinHostPort(host, strconv.Itoa(port+1))
	metrics := net.JoinHostPort(host, strconv.Itoa(port+2))

	return health, metrics, nil
}
