// Package ingress decodes incoming assignments, validates them against the
// version-1 contract, acknowledges them and forwards admitted work to the
// pool of the right resource class.
package ingress

import (
	"context"
	"strings"

	"github.com/rustkas/beamline-worker/pkg/contract"
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/eventbus"
	"github.com/rustkas/beamline-worker/pkg/obs"
	"github.com/rustkas/beamline-worker/pkg/registry"
	"github.com/rustkas/beamline-worker/pkg/runtime"
)

// Submitter is the pool-facing side of the ingress: one pool per resource
// class.
type Submitter interface {
	Submit(task runtime.Task, ack func(admitted bool))
}

// Ingress validates assignments and routes them. An invalid assignment is
// rejected with a reason and never touches a pool; a valid one is
// acknowledged by the owning pool's admission decision, so the ack always
// precedes the result.
type Ingress struct {
	cfg       core.WorkerConfig
	registry  *registry.Registry
	publisher eventbus.Publisher
	obs       *obs.Observability

	pools map[core.ResourceClass]Submitter
}

func New(
	cfg core.WorkerConfig,
	reg *registry.Registry,
	publisher eventbus.Publisher,
	observability *obs.Observability,
	pools map[core.ResourceClass]Submitter,
) *Ingress {
	return &Ingress{
		cfg:       cfg,
		registry:  reg,
		publisher: publisher,
		obs:       observability,
		pools:     pools,
	}
}

// HandleAssignment processes one decoded assignment from the bus.
func (i *Ingress) HandleAssignment(ctx context.Context, assignment contract.Assignment) error {
	bctx := i.blockContext(&assignment)

	if reason, ok := assignment.Validate(); !ok {
		i.obs.Logger().WarnCtx("assignment rejected", bctx, map[string]any{
			"assignment_id": assignment.AssignmentID,
			"reason":        reason,
		})

		return i.publisher.PublishAck(ctx, contract.RejectedAck(&assignment, reason))
	}

	if !i.registry.IsRegistered(assignment.Job.Type) {
		i.obs.Logger().WarnCtx("assignment rejected", bctx, map[string]any{
			"assignment_id": assignment.AssignmentID,
			"job_type":      assignment.Job.Type,
			"reason":        contract.ReasonUnsupportedJobType,
		})

		return i.publisher.PublishAck(ctx, contract.RejectedAck(&assignment, contract.ReasonUnsupportedJobType))
	}

	task := i.task(&assignment, bctx)
	pool := i.pools[i.routeClass(&assignment)]

	pool.Submit(task, func(admitted bool) {
		if admitted {
			_ = i.publisher.PublishAck(ctx, contract.AcceptedAck(&assignment))

			return
		}

		_ = i.publisher.PublishAck(ctx, contract.RejectedAck(&assignment, contract.ReasonQueueFull))
	})

	return nil
}

func (i *Ingress) blockContext(a *contract.Assignment) core.BlockContext {
	return core.BlockContext{
		TenantID: a.TenantID,
		TraceID:  a.TraceID,
		RunID:    a.RunID,
		FlowID:   a.FlowID,
		StepID:   a.StepID,
		Sandbox:  i.cfg.SandboxMode,
	}
}

func (i *Ingress) task(a *contract.Assignment, bctx core.BlockContext) runtime.Task {
	timeoutMS := a.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = core.DefaultTimeoutMS
	}

	retryCount := core.DefaultRetryCount
	if a.RetryCount != nil && *a.RetryCount >= 0 {
		retryCount = *a.RetryCount
	}

	return runtime.Task{
		Req: core.StepRequest{
			Type:       a.Job.Type,
			Inputs:     a.Job.Inputs,
			Resources:  a.Resources,
			TimeoutMS:  timeoutMS,
			RetryCount: retryCount,
			Guardrails: a.Guardrails,
		},
		Ctx:          bctx,
		AssignmentID: a.AssignmentID,
		RequestID:    a.RequestID,
		ProviderID:   a.Executor.ProviderID,
	}
}

// routeClass picks the pool for an assignment. The explicit class hint wins;
// AI and media hints map to gpu. Without a recognized hint, HTTP and FS jobs
// go to io, other jobs to the handler's declared class, and cpu when the step
// type has none.
func (i *Ingress) routeClass(a *contract.Assignment) core.ResourceClass {
	switch strings.ToLower(a.Resources[core.ResourceClassKey]) {
	case "gpu", "ai", "media":
		return core.ResourceGPU
	case "io":
		return core.ResourceIO
	case "cpu":
		return core.ResourceCPU
	}

	if strings.HasPrefix(a.Job.Type, "http.") || strings.HasPrefix(a.Job.Type, "fs.") {
		return core.ResourceIO
	}

	if class, ok := i.registry.ResourceClassFor(a.Job.Type); ok {
		return class
	}

	return core.ResourceCPU
}
