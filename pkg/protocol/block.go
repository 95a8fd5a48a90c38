// Package protocol defines the capability set every block handler implements.
package protocol

import (
	"context"

	"github.com/rustkas/beamline-worker/pkg/core"
)

// Block executes one step type. Implementations must populate result metadata
// from the block context and return a factory-built StepResult on every path;
// errors never escape Execute. A handler owns external resources only for the
// duration of a single Execute call.
type Block interface {
	BlockType() string
	ResourceClass() core.ResourceClass

	// Init prepares the handler for the given context. It is cheap and
	// idempotent.
	Init(ctx context.Context, bctx core.BlockContext) error

	Execute(ctx context.Context, req core.StepRequest, bctx core.BlockContext) core.StepResult
}

// BlockFactory builds handler instances for one step type.
type BlockFactory interface {
	Create() (Block, error)
	ID() string
	ResourceClass() core.ResourceClass
}
