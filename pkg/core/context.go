// Package core defines the data model shared by every stage of the worker:
// block context, step requests, step results and the worker configuration.
package core

// BlockContext is the environment a step runs under. It carries the five
// correlation identifiers, the sandbox flag and the ordered authorization
// scopes granted to the step.
type BlockContext struct {
	TenantID   string   `json:"tenant_id"`
	TraceID    string   `json:"trace_id"`
	RunID      string   `json:"run_id"`
	FlowID     string   `json:"flow_id"`
	StepID     string   `json:"step_id"`
	Sandbox    bool     `json:"sandbox"`
	RBACScopes []string `json:"rbac_scopes,omitempty"`
}

// ResultMetadata is the correlation block carried on every StepResult. Any
// field may be empty when its context does not exist; non-empty values are
// copied verbatim from request to result.
type ResultMetadata struct {
	TraceID  string `json:"trace_id"`
	RunID    string `json:"run_id"`
	FlowID   string `json:"flow_id"`
	StepID   string `json:"step_id"`
	TenantID string `json:"tenant_id"`
}

// MetadataFromContext copies the correlation identifiers out of a block
// context. Every handler populates its result metadata through this helper so
// the IDs survive end-to-end.
func MetadataFromContext(ctx BlockContext) ResultMetadata {
	return ResultMetadata{
		TraceID:  ctx.TraceID,
		RunID:    ctx.RunID,
		FlowID:   ctx.FlowID,
		StepID:   ctx.StepID,
		TenantID: ctx.TenantID,
	}
}
