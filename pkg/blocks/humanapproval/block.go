// Package humanapproval implements the human.approval block. The block files
// an approval request and returns immediately: a synthetic approval in
// sandbox mode, a pending record otherwise. Delivery of the eventual human
// decision is owned by an external collaborator.
package humanapproval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rustkas/beamline-worker/pkg/core"
)

const BlockType = "human.approval"

const defaultTimeoutSeconds = "3600"

// Block handles one approval request. Required inputs: approval_type,
// description. Optional: approvers, timeout_seconds.
type Block struct{}

func NewBlock() *Block {
	return &Block{}
}

func (b *Block) BlockType() string {
	return BlockType
}

func (b *Block) ResourceClass() core.ResourceClass {
	return core.ResourceCPU
}

func (b *Block) Init(_ context.Context, _ core.BlockContext) error {
	return nil
}

func (b *Block) Execute(_ context.Context, req core.StepRequest, bctx core.BlockContext) core.StepResult {
	start := time.Now()
	meta := core.MetadataFromContext(bctx)

	if !req.HasInputs("approval_type", "description") {
		return core.ErrorResult(
			core.ErrMissingRequiredField,
			"missing required inputs: approval_type, description",
			meta,
			elapsedMS(start),
		)
	}

	approvalID := "approval-" + uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if bctx.Sandbox {
		outputs := map[string]string{
			"approval_id": approvalID,
			"decision":    "approved",
			"approved_by": "sandbox_user",
			"approved_at": now,
			"reason":      "sandbox approval",
		}

		return core.Success(meta, outputs, elapsedMS(start))
	}

	outputs := map[string]string{
		"approval_id":     approvalID,
		"status":          "pending",
		"message":         "approval request submitted, waiting for human approval",
		"approval_type":   req.Inputs["approval_type"],
		"description":     req.Inputs["description"],
		"approvers":       req.Input("approvers", ""),
		"timeout_seconds": req.Input("timeout_seconds", defaultTimeoutSeconds),
		"requested_at":    now,
	}

	return core.Success(meta, outputs, elapsedMS(start))
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
