package runtime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rustkas/beamline-worker/pkg/contract"
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/obs"
	"github.com/rustkas/beamline-worker/pkg/otelhelper"
	"github.com/rustkas/beamline-worker/pkg/policy"
	"github.com/rustkas/beamline-worker/pkg/protocol"
)

// Executor wraps one block handler with the retry loop. The loop enforces the
// retry budget before every attempt, classifies attempt failures, sleeps the
// backoff between attempts and records one terminal metric set per task.
type Executor struct {
	block  protocol.Block
	obs    *obs.Observability
	tracer trace.Tracer

	sleep func(time.Duration)
}

// NewExecutor builds an executor around one handler.
func NewExecutor(block protocol.Block, observability *obs.Observability) *Executor {
	return &Executor{
		block: block,
		obs:   observability,
		sleep: time.Sleep,
	}
}

// WithTracer attaches an OpenTelemetry tracer; without one no spans are
// emitted.
func (e *Executor) WithTracer(tracer trace.Tracer) *Executor {
	e.tracer = tracer

	return e
}

// Execute runs the task to a terminal result. The budget check accounts for
// the upcoming backoff sleep, so no attempt starts past the total deadline;
// budget exhaustion at a retry boundary surfaces as a timeout result.
func (e *Executor) Execute(ctx context.Context, task Task) core.StepResult {
	totalStart := time.Now()
	meta := core.MetadataFromContext(task.Ctx)

	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "step.execute",
			attribute.String(otelhelper.StepTypeKey, task.Req.Type),
			attribute.String(otelhelper.TenantIDKey, task.Ctx.TenantID),
			attribute.String(otelhelper.FlowIDKey, task.Ctx.FlowID),
			attribute.String(otelhelper.StepIDKey, task.Ctx.StepID),
		)
		defer span.End()
	}

	retry := policy.NewRetryPolicy(policy.RetryConfig{
		TotalTimeoutMS: task.Req.TimeoutMS,
		MaxRetries:     task.Req.RetryCount,
	})

	var res core.StepResult

	for attempt := int32(0); ; attempt++ {
		elapsed := time.Since(totalStart).Milliseconds()

		if retry.IsBudgetExhausted(elapsed, attempt) {
			res = core.TimeoutResult(meta, elapsed)
			res.ErrorMessage = "retry budget exhausted"
			res.RetriesUsed = attempt
			e.recordAttemptError(task, res)

			break
		}

		res = e.attempt(ctx, task)
		res.RetriesUsed = attempt

		if res.IsSuccess() {
			break
		}

		e.recordAttemptError(task, res)

		if !retry.IsRetryable(res.ErrorCode, httpStatusOf(res)) {
			break
		}

		if attempt == retry.MaxRetries() {
			break
		}

		e.sleep(time.Duration(retry.BackoffDelayMS(attempt)) * time.Millisecond)
	}

	e.recordTerminal(task, res, time.Since(totalStart).Seconds())

	return res
}

// attempt invokes the handler once. A panic out of the handler is a bug, not
// a business error; it is converted into an execution_failed result so the
// retry and metric pipeline always sees a StepResult.
func (e *Executor) attempt(ctx context.Context, task Task) (res core.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			res = core.ErrorResult(
				core.ErrExecutionFailed,
				fmt.Sprintf("handler panic: %v", r),
				core.MetadataFromContext(task.Ctx),
				0,
			)
		}
	}()

	if err := e.block.Init(ctx, task.Ctx); err != nil {
		return core.ErrorResult(
			core.ErrExecutionFailed,
			"handler init failed: "+err.Error(),
			core.MetadataFromContext(task.Ctx),
			0,
		)
	}

	return e.block.Execute(ctx, task.Req, task.Ctx)
}

func (e *Executor) recordAttemptError(task Task, res core.StepResult) {
	e.obs.RecordStepError(task.Req.Type, strconv.Itoa(int(res.ErrorCode)), res.Metadata)
}

func (e *Executor) recordTerminal(task Task, res core.StepResult, seconds float64) {
	status := contract.StatusString(res.Status)

	e.obs.RecordStepExecution(task.Req.Type, status, res.Metadata)
	e.obs.RecordStepDuration(task.Req.Type, status, seconds, res.Metadata)
}

// httpStatusOf parses the status_code output when the handler produced one;
// zero otherwise.
func httpStatusOf(res core.StepResult) int {
	raw, ok := res.Outputs["status_code"]
	if !ok {
		return 0
	}

	status, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}

	return status
}
