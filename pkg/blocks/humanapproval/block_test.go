package humanapproval_test

import (
	"context"
	"testing"

	"github.com/rustkas/beamline-worker/pkg/blocks/humanapproval"
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalRequest() core.StepRequest {
	return core.StepRequest{
		Type: humanapproval.BlockType,
		Inputs: map[string]string{
			"approval_type": "deploy",
			"description":   "approve production rollout",
		},
		TimeoutMS: 5000,
	}
}

func TestExecuteSandboxApprovesImmediately(t *testing.T) {
	t.Parallel()

	block := humanapproval.NewBlock()
	res := block.Execute(context.Background(), approvalRequest(), core.BlockContext{TenantID: "t", Sandbox: true})

	require.True(t, res.IsSuccess())
	assert.Equal(t, "approved", res.Outputs["decision"])
	assert.Equal(t, "sandbox_user", res.Outputs["approved_by"])
	assert.NotEmpty(t, res.Outputs["approval_id"])
}

func TestExecuteOutsideSandboxIsPending(t *testing.T) {
	t.Parallel()

	req := approvalRequest()
	req.Inputs["approvers"] = "ops-team"
	req.Inputs["timeout_seconds"] = "600"

	block := humanapproval.NewBlock()
	res := block.Execute(context.Background(), req, core.BlockContext{TenantID: "t"})

	require.True(t, res.IsSuccess())
	assert.Equal(t, "pending", res.Outputs["status"])
	assert.Equal(t, "deploy", res.Outputs["approval_type"])
	assert.Equal(t, "ops-team", res.Outputs["approvers"])
	assert.Equal(t, "600", res.Outputs["timeout_seconds"])
	assert.NotEmpty(t, res.Outputs["approval_id"])
	assert.NotEmpty(t, res.Outputs["requested_at"])
}

func TestExecuteGeneratesUniqueApprovalIDs(t *testing.T) {
	t.Parallel()

	block := humanapproval.NewBlock()
	bctx := core.BlockContext{Sandbox: true}

	first := block.Execute(context.Background(), approvalRequest(), bctx)
	second := block.Execute(context.Background(), approvalRequest(), bctx)

	assert.NotEqual(t, first.Outputs["approval_id"], second.Outputs["approval_id"])
}

func TestExecuteMissingInputs(t *testing.T) {
	t.Parallel()

	block := humanapproval.NewBlock()
	res := block.Execute(context.Background(), core.StepRequest{Type: humanapproval.BlockType}, core.BlockContext{})

	require.True(t, res.IsError())
	assert.Equal(t, core.ErrMissingRequiredField, res.ErrorCode)
}
